/*
Package room groups peer connections and in-flight file transfers under a
single identifier. A room routes chunk deliveries to the right buffer,
fans progress and completion notifications out to every joined
connection, and mints a transient download handle when a file finishes.

Rooms are created on demand and never destroyed; only the handle cache
reclaims anything. All mutation of a room's membership and file table is
serialized by a per-room lock.
*/
package room

import (
	"fmt"
	"log"
	"sync"

	"github.com/pkg/errors"

	"github.com/roomdrop/roomdrop/blobcache"
	"github.com/roomdrop/roomdrop/chunk"
)

// Conn is one peer connection joined to a room. Send delivers a single
// event to the peer and should not block indefinitely; a failed send is
// the peer's problem, not the room's.
type Conn interface {
	ID() string
	Send(event string, payload interface{}) error
}

// Room is an isolated namespace of peers and file transfers.
type Room struct {
	id      string
	handles *blobcache.Handles

	m       sync.Mutex
	members map[string]Conn
	files   map[string]*chunk.Buffer
	order   []string // file names in first-chunk arrival order
}

func newRoom(id string, handles *blobcache.Handles) *Room {
	return &Room{
		id:      id,
		handles: handles,
		members: make(map[string]Conn),
		files:   make(map[string]*chunk.Buffer),
	}
}

// ID returns the room's identifier.
func (r *Room) ID() string { return r.id }

// Join adds the connection to the room and announces it to every member,
// the joiner included. Joining twice is a no-op apart from the repeated
// announcement.
func (r *Room) Join(c Conn) {
	r.m.Lock()
	r.members[c.ID()] = c
	r.m.Unlock()
	r.Broadcast(EventUserJoined, Notice{
		Message: fmt.Sprintf("User %s joined room %s", c.ID(), r.id),
	})
}

// Leave removes the connection from the room. Nothing is announced;
// transfers in flight keep their state since buffers are owned by the
// room, not by connections.
func (r *Room) Leave(connID string) {
	r.m.Lock()
	delete(r.members, connID)
	r.m.Unlock()
}

// MemberCount returns the number of currently joined connections.
func (r *Room) MemberCount() int {
	r.m.Lock()
	defer r.m.Unlock()
	return len(r.members)
}

// Broadcast delivers the event to every joined connection. Delivery is
// best-effort: a failed send is logged and does not stop delivery to the
// remaining members or surface to the caller.
func (r *Room) Broadcast(event string, payload interface{}) {
	r.m.Lock()
	conns := make([]Conn, 0, len(r.members))
	for _, c := range r.members {
		conns = append(conns, c)
	}
	r.m.Unlock()
	for _, c := range conns {
		if err := c.Send(event, payload); err != nil {
			log.Println("broadcast to", c.ID(), "failed:", err)
		}
	}
}

// ListFiles returns a summary for every buffer in the room, complete or
// not, in the order their first chunks arrived.
func (r *Room) ListFiles() []chunk.Summary {
	r.m.Lock()
	defer r.m.Unlock()
	result := make([]chunk.Summary, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.files[name].Summary())
	}
	return result
}

// AcceptChunk routes one chunk delivery to the named file's buffer,
// creating the buffer on first reference. The declared fileSize only
// matters on that first chunk; it is fixed from then on. Two senders
// using the same file name share one buffer and one index cursor.
//
// Every accepted chunk is announced to the room as progress. The chunk
// that completes the file additionally triggers assembly, handle minting,
// and the completion announcements. The returned error, if any, is an
// *chunk.OutOfOrderError for the sender's ack.
func (r *Room) AcceptChunk(fileName string, fileSize int64, index int, data []byte) error {
	r.m.Lock()
	b, ok := r.files[fileName]
	if !ok {
		b = chunk.New(fileName, fileSize)
		r.files[fileName] = b
		r.order = append(r.order, fileName)
	}
	r.m.Unlock()

	done, err := b.Accept(index, data)
	if err != nil {
		return err
	}
	r.Broadcast(EventProgress, b.Summary())
	if done {
		r.Broadcast(EventReceived, Received{FileName: fileName})
		token, err := r.handles.Mint(b.Assemble())
		if err != nil {
			// members already heard FILE_RECEIVED; without a handle
			// there is just no URL to give them
			log.Println("minting handle for", fileName, "in", r.id, "failed:", err)
			return nil
		}
		r.Broadcast(EventReceivedURL, ReceivedURL{
			FileName: fileName,
			URL:      "/blob/" + token,
		})
	}
	return nil
}

// ErrRoomNotFound is returned by strict resolution of an unknown room id.
var ErrRoomNotFound = errors.New("room not found")
