/*
Package chunk holds the partial or complete byte sequence for one file
being transferred into a room. Senders deliver a file as consecutive
indexed pieces of arbitrary size; the buffer enforces strict ordering,
accumulates the pieces, and detects when the declared size has been
reached. Out-of-order and duplicate deliveries are dropped without
mutating the buffer so the sender can retry.
*/
package chunk

import (
	"bytes"
	"fmt"
	"sync"
)

// Buffer accumulates the chunks of a single file. The declared size is
// fixed at creation and is never revised. A Buffer is safe for use by
// multiple goroutines, which matters when two senders stream under the
// same file name: they share one index space and race for each slot.
type Buffer struct {
	m sync.Mutex

	name     string
	size     int64 // declared total size, in bytes
	received int64 // bytes accepted so far
	next     int   // index the next chunk must carry
	pieces   [][]byte
	complete bool
}

// Summary is the progress record reported for a buffer, whether or not
// the transfer has finished.
type Summary struct {
	FileName     string `json:"fileName"`
	FileSize     int64  `json:"fileSize"`
	ReceivedSize int64  `json:"receivedSize"`
}

// OutOfOrderError reports a chunk delivered with the wrong index. The
// chunk was dropped and the buffer is unchanged.
type OutOfOrderError struct {
	Expected int
	Got      int
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("chunk %d out of order. expected %d.", e.Got, e.Expected)
}

// New creates an empty buffer for a file with the given declared size.
func New(name string, size int64) *Buffer {
	return &Buffer{name: name, size: size}
}

// Accept offers the chunk with the given index to the buffer. The chunk is
// accepted only if index is exactly the next expected one; otherwise an
// *OutOfOrderError is returned and no state changes. A duplicate of an
// already accepted index fails the same way, since the cursor has moved on.
//
// Accept reports done == true on the single call that makes the received
// byte count equal the declared size. The equality test is exact: if a
// sender overshoots the declared size the buffer never completes, and if
// the declared size was wrong the buffer may complete early. Neither case
// is corrected here.
func (b *Buffer) Accept(index int, data []byte) (done bool, err error) {
	b.m.Lock()
	defer b.m.Unlock()
	if index != b.next {
		return false, &OutOfOrderError{Expected: b.next, Got: index}
	}
	b.pieces = append(b.pieces, data)
	b.received += int64(len(data))
	b.next++
	if !b.complete && b.received == b.size {
		b.complete = true
		done = true
	}
	return done, nil
}

// Assemble returns the accepted chunks concatenated in index order.
func (b *Buffer) Assemble() []byte {
	b.m.Lock()
	defer b.m.Unlock()
	var buf bytes.Buffer
	buf.Grow(int(b.received))
	for _, p := range b.pieces {
		buf.Write(p)
	}
	return buf.Bytes()
}

// Summary returns the current progress of the buffer.
func (b *Buffer) Summary() Summary {
	b.m.Lock()
	defer b.m.Unlock()
	return Summary{
		FileName:     b.name,
		FileSize:     b.size,
		ReceivedSize: b.received,
	}
}

// Complete reports whether the buffer has reached its declared size.
func (b *Buffer) Complete() bool {
	b.m.Lock()
	defer b.m.Unlock()
	return b.complete
}
