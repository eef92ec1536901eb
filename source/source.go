// Package source enumerates input entries from files, folder trees and
// archives, and persists results to matching files, folders and archives.
package source

import (
	"context"
	"io"
	"os"

	"github.com/Skryldev/batch-upscale/utils"
)

// Entry is one enumerated input.
type Entry struct {
	// Name is the entry identity: the relative path in a folder, the entry
	// name in an archive, the base name of a single file.
	Name string
	// Path is the filesystem path for entries that live on disk.
	Path string
	// Archive marks a nested container found while walking a folder.
	Archive bool

	open func() (io.ReadCloser, error)
}

// Open returns the entry's bytes.  For streaming archives the reader is only
// valid until the enumeration callback returns.
func (e Entry) Open() (io.ReadCloser, error) {
	if e.open != nil {
		return e.open()
	}
	return os.Open(e.Path)
}

// Read drains the entry into memory.  max > 0 caps the accepted size.
func (e Entry) Read(ctx context.Context, chunkSize int, max int64) ([]byte, error) {
	rc, err := e.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return utils.ReadAll(ctx, rc, chunkSize, max)
}

// IsImage reports whether the entry name has an image extension.
func (e Entry) IsImage() bool { return utils.IsImageExt(e.Name) }

// Enumerator yields entries in a stable order.  Enumerate stops at the first
// error returned by fn and returns it.
type Enumerator interface {
	Enumerate(ctx context.Context, fn func(Entry) error) error
	Close() error
}

// Counter is implemented by enumerators that know their size up front.
type Counter interface {
	Count() int
}

// Kind identifies the addressing scheme of a sink.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
	KindZip    Kind = "zip"
)

// Sink persists processed results under names mirroring the input entry.
// Puts and Close are issued by one goroutine; Exists must be safe to call
// concurrently with them.
type Sink interface {
	// Exists reports whether the output for entry name is already present.
	Exists(name string) bool
	// PutImage stores encoded image bytes for entry name.
	PutImage(ctx context.Context, name string, data []byte) error
	// PutRaw stores bytes that were copied through unprocessed.
	PutRaw(ctx context.Context, name string, data []byte) error
	Kind() Kind
	Close() error
}
