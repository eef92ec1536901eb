package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	apperrors "github.com/Skryldev/batch-upscale/errors"
	"github.com/Skryldev/batch-upscale/utils"
)

// File enumerates a single file.
type File struct {
	path string
}

// NewFile checks that path is a readable regular file.
func NewFile(path string) (*File, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryInput, "source.file",
			fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err))
	}
	if fi.IsDir() {
		return nil, apperrors.New(apperrors.CategoryInput, "source.file",
			fmt.Errorf("%w: %s is a directory", apperrors.ErrSourceUnavailable, path))
	}
	return &File{path: path}, nil
}

func (f *File) Enumerate(ctx context.Context, fn func(Entry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(Entry{
		Name:    filepath.Base(f.path),
		Path:    f.path,
		Archive: utils.IsArchiveExt(f.path),
	})
}

func (f *File) Count() int   { return 1 }
func (f *File) Close() error { return nil }

// Folder walks a directory tree in lexical order, yielding images and,
// separately flagged, nested archives.  Other files are ignored.
type Folder struct {
	root     string
	images   bool
	archives bool
}

// NewFolder opens root for enumeration.  images and archives select which
// entries are yielded.
func NewFolder(root string, images, archives bool) (*Folder, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryInput, "source.folder",
			fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err))
	}
	if !fi.IsDir() {
		return nil, apperrors.New(apperrors.CategoryInput, "source.folder",
			fmt.Errorf("%w: %s is not a directory", apperrors.ErrSourceUnavailable, root))
	}
	return &Folder{root: root, images: images, archives: archives}, nil
}

func (f *Folder) Enumerate(ctx context.Context, fn func(Entry) error) error {
	return filepath.WalkDir(f.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return apperrors.New(apperrors.CategoryInput, "source.folder", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		var archive bool
		switch {
		case utils.IsImageExt(p):
			if !f.images {
				return nil
			}
		case utils.IsArchiveExt(p):
			if !f.archives {
				return nil
			}
			archive = true
		default:
			return nil
		}

		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return apperrors.New(apperrors.CategoryInput, "source.folder", err)
		}
		return fn(Entry{Name: filepath.ToSlash(rel), Path: p, Archive: archive})
	})
}

func (f *Folder) Close() error { return nil }
