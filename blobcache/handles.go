// Package blobcache keeps time-bounded handles to reassembled files. A
// handle is minted when a transfer completes, resolves to the assembled
// bytes for a fixed retention window, and then becomes indistinguishable
// from "not found". The window is armed once at mint time and is not
// renewed by access.
//
// Handles are backed by a store, so the bytes can live entirely in memory
// or on disk.
package blobcache

import (
	"log"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/lithammer/shortuuid/v3"

	"github.com/roomdrop/roomdrop/store"
)

// Handles is the cache of live transient handles.
type Handles struct {
	clock clock.Clock // fixed at construction
	s     store.Store
	ttl   time.Duration

	done chan struct{}

	m       sync.Mutex
	expires map[string]time.Time
}

// New returns a handle cache backed by s. Handles live for d after being
// minted. Call Stop when done to halt the background purge goroutine.
func New(s store.Store, d time.Duration) *Handles {
	return NewWithClock(s, d, clock.New())
}

// NewWithClock is New with the expiry clock supplied by the caller, so
// tests can drive it with a mock. The clock must be in place before the
// purge goroutine starts, which is why it cannot be swapped later.
func NewWithClock(s store.Store, d time.Duration, c clock.Clock) *Handles {
	h := &Handles{
		clock:   c,
		s:       s,
		ttl:     d,
		done:    make(chan struct{}),
		expires: make(map[string]time.Time),
	}
	go h.background()
	return h
}

// Stop halts the background purge goroutine.
func (h *Handles) Stop() {
	close(h.done)
}

// Mint stores data under a fresh token and returns the token. The expiry
// clock for the token starts now and is never reset.
func (h *Handles) Mint(data []byte) (string, error) {
	token := shortuuid.New()
	w, err := h.s.Create(token)
	if err != nil {
		return "", err
	}
	_, err = w.Write(data)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		h.s.Delete(token)
		return "", err
	}
	h.m.Lock()
	h.expires[token] = h.clock.Now().Add(h.ttl)
	h.m.Unlock()
	return token, nil
}

// Get returns a reader for the bytes held by the given token, along with
// their size. An unknown or expired token returns a nil reader and no
// error; callers treat that as not found.
func (h *Handles) Get(token string) (store.ReadAtCloser, int64, error) {
	h.m.Lock()
	expires, ok := h.expires[token]
	h.m.Unlock()
	if !ok || !h.clock.Now().Before(expires) {
		return nil, 0, nil
	}
	rac, size, err := h.s.Open(token)
	if err != nil {
		// the backing entry is gone or unreadable; drop the token
		h.m.Lock()
		delete(h.expires, token)
		h.m.Unlock()
		return nil, 0, err
	}
	return rac, size, nil
}

// purge removes every expired token and its stored bytes.
func (h *Handles) purge() {
	now := h.clock.Now()
	h.m.Lock()
	var dead []string
	for token, expires := range h.expires {
		if !now.Before(expires) {
			dead = append(dead, token)
			delete(h.expires, token)
		}
	}
	h.m.Unlock()
	for _, token := range dead {
		if err := h.s.Delete(token); err != nil {
			log.Println("blobcache: purge", token, ":", err)
		}
	}
}

// background reclaims storage for expired tokens. Expiry itself is
// enforced in Get, so the sweep interval only affects how long dead bytes
// linger, not how long tokens resolve.
func (h *Handles) background() {
	d := h.ttl / 4
	if d < time.Second {
		d = time.Second
	}
	tick := h.clock.Ticker(d)
	defer tick.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-tick.C:
		}
		h.purge()
	}
}
