// Package store provides a small, goroutine safe key-value interface where
// values are streams instead of opaque byte arrays. The Memory store is the
// normal backing for the transient handle cache; the FileSystem store is an
// option for keeping handle bytes out of process memory.
package store

import (
	"errors"
	"io"
)

// ReadAtCloser combines the io.ReaderAt and io.Closer interfaces.
type ReadAtCloser interface {
	io.ReaderAt
	io.Closer
}

// Store is a stream based key-value store. Items are immutable once
// stored, but may be deleted and replaced with a new value.
//
// The FileSystem store uses keys as file names, so keys should not contain
// forbidden filesystem characters such as '/'.
type Store interface {
	Open(key string) (ReadAtCloser, int64, error)
	List() []string
	Create(key string) (io.WriteCloser, error)
	Delete(key string) error
}

// ErrKeyExists indicates an attempt to create a key which already exists.
var ErrKeyExists = errors.New("key already exists")

// ErrKeyInvalid indicates a key containing a slash or control character.
var ErrKeyInvalid = errors.New("invalid key")

// NewReader converts a ReaderAt into an io.Reader. It is a utility to help
// work with the ReadAtCloser returned by Open.
func NewReader(r io.ReaderAt) io.Reader {
	return &reader{r: r}
}

type reader struct {
	r   io.ReaderAt
	off int64
}

func (r *reader) Read(p []byte) (n int, err error) {
	n, err = r.r.ReadAt(p, r.off)
	r.off += int64(n)
	if err == io.EOF && n > 0 {
		// a short read is not an error for an io.Reader
		err = nil
	}
	return
}
