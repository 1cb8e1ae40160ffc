/*
Package clientapi provides a Go client for a roomdrop service: minting
rooms, joining them over a websocket session, streaming files in chunks,
and downloading completed files while their handles are live.
*/
package clientapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/pkg/errors"

	"github.com/roomdrop/roomdrop/chunk"
)

// A Connection represents a connection with a roomdrop service. It can be
// shared between multiple goroutines.
type Connection struct {
	// HostURL of the server, e.g. "http://localhost:3000".
	HostURL string

	// ChunkSize for file sends, in bytes. Defaults to 64 KiB.
	ChunkSize int

	client *http.Client
}

// Exported errors
var (
	ErrNotFound       = errors.New("not found")
	ErrUnexpectedResp = errors.New("unexpected response code")
)

// CreateRoom mints a fresh room and returns its identifier.
func (c *Connection) CreateRoom() (string, error) {
	resp, err := c.get("/room")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 201 {
		return "", errors.Wrapf(ErrUnexpectedResp, "%d from %s", resp.StatusCode, c.HostURL)
	}
	v, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		return "", err
	}
	return v.GetString("roomId")
}

// ListFiles returns a summary of every file in the room, in-progress ones
// included. An unknown room returns ErrNotFound.
func (c *Connection) ListFiles(roomID string) ([]chunk.Summary, error) {
	resp, err := c.get("/room/" + roomID + "/files")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case 200:
	case 404:
		return nil, ErrNotFound
	default:
		return nil, errors.Wrapf(ErrUnexpectedResp, "%d from %s", resp.StatusCode, c.HostURL)
	}
	var result []chunk.Summary
	err = json.NewDecoder(resp.Body).Decode(&result)
	return result, err
}

// Download copies the blob at the given url path (as announced in a
// FILE_RECEIVED_URL event) to w. Expired handles return ErrNotFound.
func (c *Connection) Download(w io.Writer, url string) error {
	resp, err := c.get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case 200:
	case 404:
		return ErrNotFound
	default:
		return fmt.Errorf("received status %d from %s", resp.StatusCode, c.HostURL)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// get performs an http GET using our client with a timeout. The timeout
// is arbitrary, and is just there so we don't hang indefinitely should
// the server never close the connection.
func (c *Connection) get(path string) (*http.Response, error) {
	if c.client == nil {
		c.client = &http.Client{
			Timeout: 10 * time.Minute, // arbitrary
		}
	}
	return c.client.Get(c.HostURL + path)
}
