package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	apperrors "github.com/Skryldev/batch-upscale/errors"
	"github.com/Skryldev/batch-upscale/utils"
)

// OpenArchive returns the enumerator matching the container extension of p.
func OpenArchive(p, charset string) (Enumerator, error) {
	switch {
	case utils.IsZipExt(p):
		return NewZip(p, charset)
	case utils.IsRarExt(p):
		return NewRar(p)
	}
	return nil, apperrors.New(apperrors.CategoryArchive, "source.open",
		fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, filepath.Ext(p)))
}

// writeFile stores data at p, creating parent directories.
func writeFile(ctx context.Context, op, p string, data []byte, perm os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, op, err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, op+".mkdir", err)
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, op+".open", err)
	}
	if _, err = f.Write(data); err != nil {
		f.Close()
		return apperrors.Wrap(apperrors.CategoryStorage, op+".write", err)
	}
	return apperrors.Wrap(apperrors.CategoryStorage, op+".close", f.Close())
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

// ── File sink ─────────────────────────────────────────────────────────────────

// FileSink writes the single processed image of a run to a fixed path.
// Copied-through bytes land next to it under their original base name.
type FileSink struct {
	dest string
	perm os.FileMode
}

// NewFileSink creates the parent directory of dest.
func NewFileSink(dest string, perm os.FileMode) (*FileSink, error) {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, apperrors.New(apperrors.CategoryStorage, "sink.file",
			fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err))
	}
	return &FileSink{dest: dest, perm: perm}, nil
}

// Dest returns the output path.
func (s *FileSink) Dest() string { return s.dest }

func (s *FileSink) Exists(string) bool { return fileExists(s.dest) }

func (s *FileSink) PutImage(ctx context.Context, _ string, data []byte) error {
	return writeFile(ctx, "sink.file.put", s.dest, data, s.perm)
}

func (s *FileSink) PutRaw(ctx context.Context, name string, data []byte) error {
	p := filepath.Join(filepath.Dir(s.dest), filepath.Base(name))
	return writeFile(ctx, "sink.file.raw", p, data, s.perm)
}

func (s *FileSink) Kind() Kind   { return KindFile }
func (s *FileSink) Close() error { return nil }

// ── Folder sink ───────────────────────────────────────────────────────────────

// FolderSink mirrors the input tree under root.  Image outputs take the
// filename template applied to the input stem plus the output extension;
// copied-through files keep their relative path.
type FolderSink struct {
	root     string
	template string
	ext      string
	perm     os.FileMode
}

// NewFolderSink creates root.  ext is the image output extension without dot.
func NewFolderSink(root, template, ext string, perm os.FileMode) (*FolderSink, error) {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.New(apperrors.CategoryStorage, "sink.folder",
			fmt.Errorf("%w: mkdir %s: %v", apperrors.ErrStorageUnavailable, root, err))
	}
	return &FolderSink{root: root, template: template, ext: ext, perm: perm}, nil
}

// OutputPath returns where the processed image for entry name is written.
func (s *FolderSink) OutputPath(name string) string {
	return s.derived(name, s.ext)
}

// ArchivePath returns where the output container for a nested archive entry
// is written, using archiveExt (no dot).
func (s *FolderSink) ArchivePath(name, archiveExt string) string {
	return s.derived(name, archiveExt)
}

func (s *FolderSink) derived(name, ext string) string {
	dir := path.Dir(filepath.ToSlash(name))
	return filepath.Join(s.root, filepath.FromSlash(dir), utils.OutputName(s.template, name)+"."+ext)
}

func (s *FolderSink) Exists(name string) bool { return fileExists(s.OutputPath(name)) }

func (s *FolderSink) PutImage(ctx context.Context, name string, data []byte) error {
	return writeFile(ctx, "sink.folder.put", s.OutputPath(name), data, s.perm)
}

func (s *FolderSink) PutRaw(ctx context.Context, name string, data []byte) error {
	p := filepath.Join(s.root, filepath.FromSlash(path.Clean("/" + filepath.ToSlash(name))))
	return writeFile(ctx, "sink.folder.raw", p, data, s.perm)
}

func (s *FolderSink) Kind() Kind   { return KindFolder }
func (s *FolderSink) Close() error { return nil }

// errSinkClosed is returned when writing to a closed archive sink.
var errSinkClosed = errors.New("sink closed")
