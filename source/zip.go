package source

import (
	"archive/zip"
	"context"
	"fmt"
	"io"

	apperrors "github.com/Skryldev/batch-upscale/errors"
	"github.com/Skryldev/batch-upscale/utils"
)

// Zip enumerates the file entries of a zip container in stored order.
type Zip struct {
	rc      *zip.ReadCloser
	charset string
}

// NewZip opens path.  charset names the code page used to decode entry names
// stored without the UTF-8 flag; empty means code page 437.
func NewZip(path, charset string) (*Zip, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryArchive, "source.zip",
			fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err))
	}
	return &Zip{rc: rc, charset: charset}, nil
}

// Count returns the number of file entries.
func (z *Zip) Count() int {
	n := 0
	for _, f := range z.rc.File {
		if !f.FileInfo().IsDir() {
			n++
		}
	}
	return n
}

func (z *Zip) Enumerate(ctx context.Context, fn func(Entry) error) error {
	for _, f := range z.rc.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		name := f.Name
		if f.NonUTF8 {
			name = utils.DecodeLegacyName(name, z.charset)
		}
		zf := f
		err := fn(Entry{
			Name: name,
			open: func() (io.ReadCloser, error) { return zf.Open() },
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (z *Zip) Close() error { return z.rc.Close() }
