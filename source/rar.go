package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nwaples/rardecode/v2"

	apperrors "github.com/Skryldev/batch-upscale/errors"
)

// Rar enumerates the file entries of a rar container in stored order.
// Rar archives are read sequentially, so an entry's reader is only valid
// inside the enumeration callback.
type Rar struct {
	path  string
	count int
}

// NewRar opens path once to validate it and count its file entries.
func NewRar(path string) (*Rar, error) {
	rc, err := rardecode.OpenReader(path)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryArchive, "source.rar",
			fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err))
	}
	defer rc.Close()

	n := 0
	for {
		h, err := rc.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.New(apperrors.CategoryArchive, "source.rar", err)
		}
		if !h.IsDir {
			n++
		}
	}
	return &Rar{path: path, count: n}, nil
}

func (r *Rar) Count() int { return r.count }

func (r *Rar) Enumerate(ctx context.Context, fn func(Entry) error) error {
	rc, err := rardecode.OpenReader(r.path)
	if err != nil {
		return apperrors.New(apperrors.CategoryArchive, "source.rar",
			fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err))
	}
	defer rc.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		h, err := rc.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return apperrors.New(apperrors.CategoryArchive, "source.rar", err)
		}
		if h.IsDir {
			continue
		}
		err = fn(Entry{
			Name: h.Name,
			open: func() (io.ReadCloser, error) { return io.NopCloser(rc), nil },
		})
		if err != nil {
			return err
		}
	}
}

func (r *Rar) Close() error { return nil }
