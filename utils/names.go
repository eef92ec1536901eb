package utils

import (
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// FilenamePlaceholder is replaced by the input stem in output filename templates.
const FilenamePlaceholder = "%filename%"

var (
	imageExts   = []string{".png", ".jpg", ".jpeg", ".webp", ".bmp", ".avif"}
	zipExts     = []string{".zip", ".cbz"}
	rarExts     = []string{".rar", ".cbr"}
	archiveExts = append(append([]string{}, zipExts...), rarExts...)
)

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// IsImageExt reports whether name carries a recognised image extension.
func IsImageExt(name string) bool { return hasExt(name, imageExts) }

// IsArchiveExt reports whether name is a zip or rar style container.
func IsArchiveExt(name string) bool { return hasExt(name, archiveExts) }

// IsZipExt reports whether name is a zip style container.
func IsZipExt(name string) bool { return hasExt(name, zipExts) }

// IsRarExt reports whether name is a rar style container.
func IsRarExt(name string) bool { return hasExt(name, rarExts) }

// Stem returns the base name of p without its extension.
func Stem(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OutputName applies template to the stem of input.  An empty template
// keeps the stem unchanged.
func OutputName(template, input string) string {
	stem := Stem(input)
	if template == "" {
		return stem
	}
	return strings.ReplaceAll(template, FilenamePlaceholder, stem)
}

// ReplaceExt swaps the extension of an archive entry name for ext (no dot).
// Entry names always use forward slashes.
func ReplaceExt(name, ext string) string {
	return strings.TrimSuffix(name, path.Ext(name)) + "." + ext
}

// DecodeLegacyName makes a best effort to turn a zip entry name stored in a
// legacy code page into UTF-8.  Names that are already valid UTF-8 are
// returned unchanged, as is the original name when decoding fails.  charset
// is an IANA name; empty or unknown names use code page 437.
func DecodeLegacyName(name, charset string) string {
	if utf8.ValidString(name) {
		return name
	}
	out, err := legacyEncoding(charset).NewDecoder().String(name)
	if err != nil || !utf8.ValidString(out) {
		return name
	}
	return out
}

func legacyEncoding(charset string) encoding.Encoding {
	if charset != "" {
		if enc, err := ianaindex.IANA.Encoding(charset); err == nil && enc != nil {
			return enc
		}
	}
	return charmap.CodePage437
}
