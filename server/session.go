package server

import (
	"encoding/json"
	"io"
	"log"
	"sync"

	"github.com/lithammer/shortuuid/v3"
	"golang.org/x/net/websocket"

	"github.com/roomdrop/roomdrop/chunk"
	"github.com/roomdrop/roomdrop/room"
)

// Messages a client may send on a transfer session.
const (
	MsgJoinRoom  = "JOIN_ROOM"
	MsgFileChunk = "FILE_CHUNK"
)

// EventAck is the per-chunk acknowledgment sent to the delivering
// connection only, distinct from the room-wide broadcasts.
const EventAck = "ack"

// clientMessage is the union of the fields a client message may carry.
// Which are meaningful depends on Event.
type clientMessage struct {
	Event      string `json:"event"`
	RoomID     string `json:"roomId"`
	FileName   string `json:"fileName"`
	FileSize   int64  `json:"fileSize"`
	ChunkIndex int    `json:"chunkIndex"`
	Chunk      []byte `json:"chunk"`
}

type okAck struct {
	Status     string `json:"status"`
	ChunkIndex int    `json:"chunkIndex"`
}

type errAck struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// session is the per-connection protocol handler. It implements
// room.Conn so rooms can broadcast to it.
type session struct {
	id string
	ws *websocket.Conn

	wm sync.Mutex // serializes frames from handler and broadcasts

	joined map[string]*room.Room // rooms this connection has joined
}

func (c *session) ID() string { return c.id }

// Send delivers one event frame to the peer. The payload's fields are
// flattened next to the event name, matching what clients listen for.
func (c *session) Send(event string, payload interface{}) error {
	frame := map[string]interface{}{"event": event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			return err
		}
		frame["event"] = event
	}
	c.wm.Lock()
	defer c.wm.Unlock()
	return websocket.JSON.Send(c.ws, frame)
}

// TransferSession runs the message loop for one websocket connection.
// It exits when the peer disconnects, at which point the connection is
// removed from every room it joined. Transfer state is left alone; the
// rooms own it.
func (s *RESTServer) TransferSession(ws *websocket.Conn) {
	c := &session{
		id:     shortuuid.New(),
		ws:     ws,
		joined: make(map[string]*room.Room),
	}
	log.Println("user connected:", c.id)

	for {
		var msg clientMessage
		err := websocket.JSON.Receive(ws, &msg)
		if err != nil {
			if err != io.EOF {
				log.Println("session", c.id, "receive:", err)
			}
			break
		}
		switch msg.Event {
		case MsgJoinRoom:
			s.handleJoin(c, msg)
		case MsgFileChunk:
			s.handleChunk(c, msg)
		default:
			c.Send(room.EventError, room.Notice{Message: "unknown event " + msg.Event})
		}
	}

	for _, rm := range c.joined {
		rm.Leave(c.id)
	}
	log.Println("user disconnected:", c.id)
}

// handleJoin resolves the room strictly: joining is the one place an
// unknown room id is an error the peer hears about, in contrast to the
// lenient chunk-delivery path below.
func (s *RESTServer) handleJoin(c *session, msg clientMessage) {
	rm, err := s.Rooms.Resolve(msg.RoomID, room.Strict)
	if err != nil {
		c.Send(room.EventError, room.Notice{Message: "Room not found"})
		return
	}
	rm.Join(c)
	c.joined[rm.ID()] = rm
	log.Printf("user %s joined room %s", c.id, rm.ID())
}

// handleChunk delivers one chunk. The room is fabricated if it does not
// exist so a sender racing ahead of room setup loses no data. The chunk
// is acked to the sender whether accepted or rejected; senders pipeline
// the next chunk only after a positive ack.
func (s *RESTServer) handleChunk(c *session, msg clientMessage) {
	rm, _ := s.Rooms.Resolve(msg.RoomID, room.AutoCreate) // cannot fail
	err := rm.AcceptChunk(msg.FileName, msg.FileSize, msg.ChunkIndex, msg.Chunk)
	if err != nil {
		if _, ok := err.(*chunk.OutOfOrderError); ok {
			log.Printf("room %s file %s: %s", msg.RoomID, msg.FileName, err)
		}
		c.Send(EventAck, errAck{Status: "error", Message: err.Error()})
		return
	}
	log.Printf("received chunk %d for file %s in room %s", msg.ChunkIndex, msg.FileName, msg.RoomID)
	c.Send(EventAck, okAck{Status: "ok", ChunkIndex: msg.ChunkIndex})
}
