package clientapi

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/websocket"
)

// A Session is a persistent websocket connection to the server. A session
// can join any number of rooms and stream files into them. It is not safe
// for concurrent use; open one session per goroutine.
type Session struct {
	ws        *websocket.Conn
	chunksize int
}

// message is the frame we send to the server.
type message struct {
	Event      string `json:"event"`
	RoomID     string `json:"roomId,omitempty"`
	FileName   string `json:"fileName,omitempty"`
	FileSize   int64  `json:"fileSize,omitempty"`
	ChunkIndex int    `json:"chunkIndex"`
	Chunk      []byte `json:"chunk,omitempty"`
}

// Dial opens a websocket session against the connection's host.
func (c *Connection) Dial() (*Session, error) {
	url := "ws" + strings.TrimPrefix(c.HostURL, "http") + "/ws"
	ws, err := websocket.Dial(url, "", c.HostURL)
	if err != nil {
		return nil, err
	}
	chunksize := c.ChunkSize
	if chunksize <= 0 {
		chunksize = defaultChunkSize
	}
	return &Session{ws: ws, chunksize: chunksize}, nil
}

// Join adds this session to the given room. It waits for either the join
// announcement or an error notice from the server.
func (s *Session) Join(roomID string) error {
	err := websocket.JSON.Send(s.ws, message{Event: "JOIN_ROOM", RoomID: roomID})
	if err != nil {
		return err
	}
	for {
		frame, err := s.Recv()
		if err != nil {
			return err
		}
		switch frame["event"] {
		case "userJoined":
			// announcements from rooms we joined earlier can arrive
			// ahead of the answer to this join
			msg, _ := frame["message"].(string)
			if strings.HasSuffix(msg, " joined room "+roomID) {
				return nil
			}
		case "error":
			msg, _ := frame["message"].(string)
			return errors.New(msg)
		}
		// some other room event arrived first. keep waiting.
	}
}

// Recv returns the next event frame from the server. It blocks.
func (s *Session) Recv() (map[string]interface{}, error) {
	var frame map[string]interface{}
	err := websocket.JSON.Receive(s.ws, &frame)
	return frame, err
}

// SendFile streams r into the room as a sequence of chunks, waiting for
// the server to acknowledge each chunk before sending the next. The size
// must be the exact number of bytes r will yield. If the session is a
// member of the room and the file completes, the download url broadcast
// by the server is returned; otherwise url is empty.
//
// Empty files are sent as a single zero-length chunk so the server still
// registers them.
func (s *Session) SendFile(roomID string, fileName string, r io.Reader, size int64) (url string, err error) {
	buffer := make([]byte, s.chunksize)
	index := 0
	sent := int64(0)
	for {
		n, rerr := io.ReadFull(r, buffer)
		if rerr == io.EOF && !(index == 0 && size == 0) {
			break
		}
		if rerr != nil && rerr != io.ErrUnexpectedEOF && rerr != io.EOF {
			return url, rerr
		}
		err = websocket.JSON.Send(s.ws, message{
			Event:      "FILE_CHUNK",
			RoomID:     roomID,
			FileName:   fileName,
			FileSize:   size,
			Chunk:      buffer[:n],
			ChunkIndex: index,
		})
		if err != nil {
			return url, err
		}
		u, err := s.waitAck(index)
		if u != "" {
			url = u
		}
		if err != nil {
			return url, err
		}
		index++
		sent += int64(n)
		if sent >= size {
			break
		}
	}
	if sent != size {
		return url, errors.Errorf("file %s: sent %d of %d bytes", fileName, sent, size)
	}
	return url, nil
}

// waitAck reads frames until the acknowledgment for the given chunk index
// arrives. Room broadcasts received in the meantime are scanned for the
// download url of a completed file and otherwise dropped.
func (s *Session) waitAck(index int) (url string, err error) {
	for {
		frame, err := s.Recv()
		if err != nil {
			return url, err
		}
		switch frame["event"] {
		case "ack":
			status, _ := frame["status"].(string)
			if status != "ok" {
				msg, _ := frame["message"].(string)
				return url, errors.New(msg)
			}
			return url, nil
		case "FILE_RECEIVED_URL":
			if u, ok := frame["url"].(string); ok {
				url = u
			}
		case "error":
			msg, _ := frame["message"].(string)
			return url, errors.New(msg)
		}
	}
}

// Close shuts the websocket down. The server will remove this session
// from every room it joined.
func (s *Session) Close() error {
	return s.ws.Close()
}

const defaultChunkSize = 65536
