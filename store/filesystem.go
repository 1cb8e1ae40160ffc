package store

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	raven "github.com/getsentry/raven-go"
)

// FileSystem is a Store backed by a single directory. Keys are used as file
// names directly; new items are staged in a scratch subdirectory and moved
// into place on Close so readers never see a partial write.
type FileSystem struct {
	root string
}

var _ Store = &FileSystem{}

// the subdir files are kept in while being written
const scratchdir = "scratch"

// NewFileSystem creates a FileSystem store rooted at the given path.
func NewFileSystem(root string) *FileSystem {
	return &FileSystem{root: root}
}

// List returns the keys of every item in the store.
func (s *FileSystem) List() []string {
	f, err := os.Open(s.root)
	if err != nil {
		log.Println(err)
		raven.CaptureError(err, nil)
		return nil
	}
	defer f.Close()
	entries, err := f.Readdir(-1)
	if err != nil {
		log.Println(err)
		raven.CaptureError(err, nil)
		return nil
	}
	var result []string
	for _, e := range entries {
		if !e.IsDir() {
			result = append(result, e.Name())
		}
	}
	return result
}

// Open returns a reader for the given item along with its size.
func (s *FileSystem) Open(key string) (ReadAtCloser, int64, error) {
	if err := validKey(key); err != nil {
		return nil, 0, err
	}
	f, err := os.Open(filepath.Join(s.root, key))
	if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

// Create makes a new item with the given key and returns a writer for
// saving data into it.
func (s *FileSystem) Create(key string) (io.WriteCloser, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	target := filepath.Join(s.root, key)
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		return nil, ErrKeyExists
	}
	dir := filepath.Join(s.root, scratchdir)
	if err := os.MkdirAll(dir, 0775); err != nil {
		raven.CaptureError(err, nil)
		return nil, err
	}
	// O_EXCL so a concurrent Create of the same key fails instead of
	// silently interleaving
	temp := filepath.Join(dir, key)
	w, err := os.OpenFile(temp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		return nil, err
	}
	return &moveCloser{WriteCloser: w, source: temp, target: target}, nil
}

// moveCloser moves the scratch file into its final place on Close.
type moveCloser struct {
	io.WriteCloser
	source string
	target string
}

func (w *moveCloser) Close() error {
	err := w.WriteCloser.Close()
	if err != nil {
		return err
	}
	if _, err = os.Stat(w.target); !os.IsNotExist(err) {
		return ErrKeyExists
	}
	return os.Rename(w.source, w.target)
}

// Delete the given key from the store. It is not an error if the key does
// not exist.
func (s *FileSystem) Delete(key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.root, key))
	if err != nil && os.IsNotExist(err) {
		err = nil
	}
	return err
}

func validKey(key string) error {
	if key == "" || key == scratchdir || strings.ContainsAny(key, `/\`) {
		return ErrKeyInvalid
	}
	for _, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ErrKeyInvalid
		}
	}
	return nil
}
