package clientapi

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/roomdrop/roomdrop/blobcache"
	"github.com/roomdrop/roomdrop/room"
	"github.com/roomdrop/roomdrop/server"
	"github.com/roomdrop/roomdrop/store"
)

func newTestService(t *testing.T) (*Connection, func()) {
	handles := blobcache.New(store.NewMemory(), 60*time.Second)
	srv := &server.RESTServer{
		Rooms:   room.NewRegistry(handles),
		Handles: handles,
	}
	ts := httptest.NewServer(srv.Handler())
	conn := &Connection{HostURL: ts.URL, ChunkSize: 2}
	return conn, func() {
		ts.Close()
		handles.Stop()
	}
}

func TestCreateAndListRoom(t *testing.T) {
	conn, done := newTestService(t)
	defer done()

	roomID, err := conn.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: got %s, expected no error", err.Error())
	}
	if roomID == "" {
		t.Fatalf("got empty room id")
	}
	files, err := conn.ListFiles(roomID)
	if err != nil {
		t.Fatalf("ListFiles: got %s, expected no error", err.Error())
	}
	if len(files) != 0 {
		t.Fatalf("got %d files, expected 0", len(files))
	}
	_, err = conn.ListFiles("no-such-room")
	if err != ErrNotFound {
		t.Fatalf("got %v, expected ErrNotFound", err)
	}
}

func TestSendFileRoundTrip(t *testing.T) {
	conn, done := newTestService(t)
	defer done()

	roomID, err := conn.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: got %s", err.Error())
	}
	session, err := conn.Dial()
	if err != nil {
		t.Fatalf("Dial: got %s", err.Error())
	}
	defer session.Close()
	err = session.Join(roomID)
	if err != nil {
		t.Fatalf("Join: got %s, expected no error", err.Error())
	}

	const content = "hello, room"
	url, err := session.SendFile(roomID, "greeting.txt", strings.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("SendFile: got %s, expected no error", err.Error())
	}
	if url == "" {
		t.Fatalf("got empty url, expected a download url")
	}

	files, err := conn.ListFiles(roomID)
	if err != nil {
		t.Fatalf("ListFiles: got %s", err.Error())
	}
	if len(files) != 1 {
		t.Fatalf("got %d files, expected 1", len(files))
	}
	f := files[0]
	if f.FileName != "greeting.txt" || f.ReceivedSize != int64(len(content)) {
		t.Fatalf("got %#v, expected complete greeting.txt", f)
	}

	var buf bytes.Buffer
	err = conn.Download(&buf, url)
	if err != nil {
		t.Fatalf("Download: got %s, expected no error", err.Error())
	}
	if buf.String() != content {
		t.Fatalf("got %s, expected %s", buf.String(), content)
	}
}

func TestSendEmptyFile(t *testing.T) {
	conn, done := newTestService(t)
	defer done()

	roomID, err := conn.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: got %s", err.Error())
	}
	session, err := conn.Dial()
	if err != nil {
		t.Fatalf("Dial: got %s", err.Error())
	}
	defer session.Close()
	err = session.Join(roomID)
	if err != nil {
		t.Fatalf("Join: got %s", err.Error())
	}
	url, err := session.SendFile(roomID, "empty.dat", strings.NewReader(""), 0)
	if err != nil {
		t.Fatalf("SendFile: got %s, expected no error", err.Error())
	}
	var buf bytes.Buffer
	err = conn.Download(&buf, url)
	if err != nil {
		t.Fatalf("Download: got %s, expected no error", err.Error())
	}
	if buf.Len() != 0 {
		t.Fatalf("got %d bytes, expected 0", buf.Len())
	}
}

// A pending announcement for another peer joining an earlier room must
// not be mistaken for the answer to a later join.
func TestJoinNotFooledByStaleAnnouncement(t *testing.T) {
	conn, done := newTestService(t)
	defer done()

	roomID, err := conn.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: got %s", err.Error())
	}
	s1, err := conn.Dial()
	if err != nil {
		t.Fatalf("Dial: got %s", err.Error())
	}
	defer s1.Close()
	if err = s1.Join(roomID); err != nil {
		t.Fatalf("Join: got %s, expected no error", err.Error())
	}

	// a second peer joins, queueing a userJoined frame on s1
	s2, err := conn.Dial()
	if err != nil {
		t.Fatalf("Dial: got %s", err.Error())
	}
	defer s2.Close()
	if err = s2.Join(roomID); err != nil {
		t.Fatalf("Join: got %s, expected no error", err.Error())
	}
	time.Sleep(50 * time.Millisecond)

	err = s1.Join("missing")
	if err == nil {
		t.Fatalf("got no error, expected a join failure")
	}
}

func TestJoinUnknownRoomFails(t *testing.T) {
	conn, done := newTestService(t)
	defer done()

	session, err := conn.Dial()
	if err != nil {
		t.Fatalf("Dial: got %s", err.Error())
	}
	defer session.Close()
	err = session.Join("missing")
	if err == nil {
		t.Fatalf("got no error, expected a join failure")
	}
}
