package room

import (
	"sync"

	"github.com/lithammer/shortuuid/v3"

	"github.com/roomdrop/roomdrop/blobcache"
)

// Policy states a caller's intent when resolving a room id. Join uses
// Strict so a mistyped id is an error the peer hears about; chunk
// delivery uses AutoCreate so a transfer racing ahead of its room's
// bookkeeping is not lost.
type Policy int

const (
	// Strict resolution fails with ErrRoomNotFound for unknown ids.
	Strict Policy = iota
	// AutoCreate resolution creates the room if it does not exist.
	AutoCreate
)

// Registry is the process-wide mapping from room id to Room. It is the
// only place rooms are looked up or allocated. Rooms live until process
// shutdown.
type Registry struct {
	handles *blobcache.Handles

	m     sync.Mutex
	rooms map[string]*Room
}

// NewRegistry returns an empty registry. Completed files in any of its
// rooms mint their handles from the given cache.
func NewRegistry(handles *blobcache.Handles) *Registry {
	return &Registry{
		handles: handles,
		rooms:   make(map[string]*Room),
	}
}

// Create allocates an empty room under a fresh identifier. It never
// fails.
func (reg *Registry) Create() *Room {
	reg.m.Lock()
	defer reg.m.Unlock()
	for {
		id := shortuuid.New()
		if _, taken := reg.rooms[id]; taken {
			continue
		}
		r := newRoom(id, reg.handles)
		reg.rooms[id] = r
		return r
	}
}

// Resolve looks up the room for id according to the given policy. With
// Strict an unknown id returns ErrRoomNotFound; with AutoCreate the room
// is created atomically with the lookup.
func (reg *Registry) Resolve(id string, p Policy) (*Room, error) {
	reg.m.Lock()
	defer reg.m.Unlock()
	r, ok := reg.rooms[id]
	if !ok {
		if p == Strict {
			return nil, ErrRoomNotFound
		}
		r = newRoom(id, reg.handles)
		reg.rooms[id] = r
	}
	return r, nil
}
