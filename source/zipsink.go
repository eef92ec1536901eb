package source

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "github.com/Skryldev/batch-upscale/errors"
	"github.com/Skryldev/batch-upscale/utils"
)

// ZipSink writes a new deflate-compressed zip container.  Image entries keep
// their name with the extension rewritten; copied-through entries keep their
// name and bytes unchanged.  Entries appear in the order they are written.
//
// Puts come from one goroutine; Exists may be called from another while a
// run is in progress.
type ZipSink struct {
	path string
	ext  string
	f    *os.File
	w    *zip.Writer
	now  func() time.Time

	mu      sync.Mutex
	written map[string]struct{}
}

// NewZipSink creates the container at p.  ext is the image output extension
// without dot.
func NewZipSink(p, ext string) (*ZipSink, error) {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, apperrors.New(apperrors.CategoryStorage, "sink.zip",
			fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err))
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryStorage, "sink.zip",
			fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err))
	}
	return &ZipSink{
		path:    p,
		ext:     ext,
		f:       f,
		w:       zip.NewWriter(f),
		written: make(map[string]struct{}),
		now:     time.Now,
	}, nil
}

// Path returns the container path.
func (s *ZipSink) Path() string { return s.path }

// EntryName returns the entry name an image input is stored under.
func (s *ZipSink) EntryName(name string) string { return utils.ReplaceExt(name, s.ext) }

func (s *ZipSink) Exists(name string) bool { return s.has(s.EntryName(name)) }

func (s *ZipSink) has(entry string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.written[entry]
	return ok
}

// PutImage stores an image under its rewritten entry name.  A second image
// mapping to an entry already written is dropped.
func (s *ZipSink) PutImage(ctx context.Context, name string, data []byte) error {
	entry := s.EntryName(name)
	if s.has(entry) {
		return nil
	}
	return s.put(ctx, entry, data)
}

func (s *ZipSink) PutRaw(ctx context.Context, name string, data []byte) error {
	return s.put(ctx, name, data)
}

func (s *ZipSink) put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "sink.zip.put", err)
	}
	if s.w == nil {
		return apperrors.New(apperrors.CategoryStorage, "sink.zip.put", errSinkClosed)
	}
	w, err := s.w.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: s.now(),
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "sink.zip.create", err)
	}
	if _, err := w.Write(data); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "sink.zip.write", err)
	}
	s.mu.Lock()
	s.written[name] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *ZipSink) Kind() Kind { return KindZip }

// Close finishes the central directory and closes the file.
func (s *ZipSink) Close() error {
	if s.w == nil {
		return nil
	}
	werr := s.w.Close()
	ferr := s.f.Close()
	s.w = nil
	if werr != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "sink.zip.close", werr)
	}
	return apperrors.Wrap(apperrors.CategoryStorage, "sink.zip.close", ferr)
}
