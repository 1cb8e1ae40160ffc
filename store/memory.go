package store

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// Memory is an in-memory Store. It is the default backing for the handle
// cache, and is also handy for tests.
type Memory struct {
	m     sync.RWMutex
	blobs map[string]*buf
}

var _ Store = &Memory{}

// NewMemory returns a new, empty memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]*buf)}
}

// List returns the keys of every item in the store, in no particular order.
func (ms *Memory) List() []string {
	ms.m.RLock()
	defer ms.m.RUnlock()
	result := make([]string, 0, len(ms.blobs))
	for k := range ms.blobs {
		result = append(result, k)
	}
	return result
}

// Open returns a ReadAtCloser and the size of the given blob.
func (ms *Memory) Open(key string) (ReadAtCloser, int64, error) {
	ms.m.RLock()
	v, ok := ms.blobs[key]
	ms.m.RUnlock()
	if !ok {
		return nil, 0, errors.Errorf("no item %s", key)
	}
	return v, v.size(), nil
}

// Create makes a new entry in the store and returns a writer to save data
// into it. The entry is readable as soon as the writer is closed.
func (ms *Memory) Create(key string) (io.WriteCloser, error) {
	ms.m.Lock()
	defer ms.m.Unlock()
	if _, ok := ms.blobs[key]; ok {
		return nil, ErrKeyExists
	}
	r := &buf{}
	ms.blobs[key] = r
	return r, nil
}

// Delete the given key from the store. It is not an error if the item does
// not exist.
func (ms *Memory) Delete(key string) error {
	ms.m.Lock()
	delete(ms.blobs, key)
	ms.m.Unlock()
	return nil
}

type buf struct {
	m sync.RWMutex
	b []byte
}

func (r *buf) Write(p []byte) (int, error) {
	r.m.Lock()
	r.b = append(r.b, p...)
	r.m.Unlock()
	return len(p), nil
}

func (r *buf) ReadAt(p []byte, off int64) (int, error) {
	r.m.RLock()
	defer r.m.RUnlock()
	if int(off) >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *buf) size() int64 {
	r.m.RLock()
	defer r.m.RUnlock()
	return int64(len(r.b))
}

func (r *buf) Close() error { return nil }
