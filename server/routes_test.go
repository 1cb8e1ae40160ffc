package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/facebookgo/clock"

	"github.com/roomdrop/roomdrop/blobcache"
	"github.com/roomdrop/roomdrop/chunk"
	"github.com/roomdrop/roomdrop/room"
	"github.com/roomdrop/roomdrop/store"
)

func newTestServer(t *testing.T) (*RESTServer, *httptest.Server) {
	t.Helper()
	handles := blobcache.New(store.NewMemory(), time.Minute)
	t.Cleanup(handles.Stop)
	s := &RESTServer{
		Rooms:   room.NewRegistry(handles),
		Handles: handles,
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestNewRoomThenListEmpty(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/room")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("GET /room: got status %d, expected 201", resp.StatusCode)
	}
	var created map[string]string
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()
	roomID := created["roomId"]
	if roomID == "" {
		t.Fatal("no roomId in response")
	}

	resp, err = http.Get(ts.URL + "/room/" + roomID + "/files")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("list files: got status %d, expected 200", resp.StatusCode)
	}
	var files []chunk.Summary
	json.NewDecoder(resp.Body).Decode(&files)
	if len(files) != 0 {
		t.Errorf("got %d summaries, expected 0", len(files))
	}
}

func TestListFilesUnknownRoom(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/room/never-created/files")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("got status %d, expected 404", resp.StatusCode)
	}
}

func TestBlobLifecycle(t *testing.T) {
	mock := clock.NewMock()
	handles := blobcache.NewWithClock(store.NewMemory(), time.Minute, mock)
	defer handles.Stop()
	s := &RESTServer{Rooms: room.NewRegistry(handles), Handles: handles}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	token, err := handles.Mint([]byte("reassembled"))
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.URL + "/blob/" + token)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("got status %d, expected 200", resp.StatusCode)
	}
	if string(body) != "reassembled" {
		t.Errorf("got body %q", body)
	}

	mock.Add(61 * time.Second)
	resp, err = http.Get(ts.URL + "/blob/" + token)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("expired blob: got status %d, expected 404", resp.StatusCode)
	}
}

func TestBlobUnknownToken(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/blob/bogus")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("got status %d, expected 404", resp.StatusCode)
	}
}

func TestWelcome(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "roomdrop") {
		t.Errorf("welcome page %q", body)
	}
}

func TestCORSHeader(t *testing.T) {
	handles := blobcache.New(store.NewMemory(), time.Minute)
	defer handles.Stop()
	s := &RESTServer{
		Rooms:       room.NewRegistry(handles),
		Handles:     handles,
		CORSOrigins: []string{"http://localhost:3001"},
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	req, _ := http.NewRequest("GET", ts.URL+"/room", nil)
	req.Header.Set("Origin", "http://localhost:3001")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3001" {
		t.Errorf("got Access-Control-Allow-Origin %q", got)
	}
}
