package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/facebookgo/httpdown"
	"github.com/golang/groupcache/singleflight"
	"github.com/gorilla/handlers"
	"github.com/julienschmidt/httprouter"
	"golang.org/x/net/websocket"

	"github.com/roomdrop/roomdrop/blobcache"
	"github.com/roomdrop/roomdrop/room"
	"github.com/roomdrop/roomdrop/store"
)

// Version of the server. Overridden at link time for releases.
var Version = "devel"

// RESTServer holds the configuration for a roomdrop API server.
//
// Set the public fields and then call Run. Run will listen on the given
// port and handle REST requests and websocket transfer sessions until
// Stop is called.
type RESTServer struct {
	// PortNumber to listen on. Defaults to 3000.
	PortNumber string

	// Rooms is the process-wide room registry. Run will panic if nil.
	Rooms *room.Registry

	// Handles resolves transient download tokens for completed files.
	// Run will panic if nil.
	Handles *blobcache.Handles

	// CORSOrigins, when not empty, wraps the API in a CORS layer
	// allowing the listed origins.
	CORSOrigins []string

	server httpdown.Server // our listening socket

	// collapses concurrent downloads of the same blob token
	blobflight singleflight.Group
}

// Run starts the server and blocks listening for and handling requests.
func (s *RESTServer) Run() error {
	log.Println("==========")
	log.Printf("Starting roomdrop server version %s", Version)
	if s.Rooms == nil || s.Handles == nil {
		panic("Rooms and Handles must be set before calling Run")
	}
	if s.PortNumber == "" {
		s.PortNumber = "3000"
	}
	log.Println("Listening on", s.PortNumber)

	h := httpdown.HTTP{}
	var err error
	s.server, err = h.ListenAndServe(&http.Server{
		Addr:    ":" + s.PortNumber,
		Handler: s.Handler(),
	})
	if err != nil {
		log.Println(err)
		return err
	}
	return s.server.Wait()
}

// Stop shuts down the listening socket and waits for in-flight requests
// to drain.
func (s *RESTServer) Stop() error {
	return s.server.Stop()
}

// Handler returns the root http.Handler for this server. It is used by
// Run and exported for tests.
func (s *RESTServer) Handler() http.Handler {
	var routes = []struct {
		method  string
		route   string
		handler httprouter.Handle
	}{
		{"GET", "/room", s.NewRoomHandler},
		{"GET", "/room/:roomid/files", s.ListFilesHandler},
		{"GET", "/blob/:token", s.BlobHandler},
		{"GET", "/", WelcomeHandler},
	}

	r := httprouter.New()
	for _, route := range routes {
		r.Handle(route.method, route.route, logWrapper(route.handler))
	}

	// all transfer session traffic flows over one websocket route
	wsh := websocket.Handler(s.TransferSession)
	r.Handle("GET", "/ws", func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		wsh.ServeHTTP(w, req)
	})

	if len(s.CORSOrigins) > 0 {
		return handlers.CORS(
			handlers.AllowedOrigins(s.CORSOrigins),
			handlers.AllowedMethods([]string{"GET", "POST"}),
			handlers.AllowCredentials(),
		)(r)
	}
	return r
}

// NewRoomHandler handles requests to GET /room. It mints a fresh empty
// room and returns its identifier. It never fails.
func (s *RESTServer) NewRoomHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rm := s.Rooms.Create()
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"roomId": rm.ID()})
}

// ListFilesHandler handles requests to GET /room/:roomid/files. It
// returns a summary for every file in the room, in-progress ones
// included. Unknown rooms are a 404; listing does not fabricate rooms the
// way chunk delivery does.
func (s *RESTServer) ListFilesHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rm, err := s.Rooms.Resolve(ps.ByName("roomid"), room.Strict)
	if err != nil {
		w.WriteHeader(404)
		fmt.Fprintln(w, "cannot find room")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(rm.ListFiles())
}

// BlobHandler handles requests to GET /blob/:token. While the token's
// retention window is open it serves the reassembled bytes; afterwards it
// is a plain 404. Concurrent requests for the same token share one read
// of the backing store.
func (s *RESTServer) BlobHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	token := ps.ByName("token")
	v, err := s.blobflight.Do(token, func() (interface{}, error) {
		rac, _, err := s.Handles.Get(token)
		if err != nil || rac == nil {
			return nil, err
		}
		defer rac.Close()
		return io.ReadAll(store.NewReader(rac))
	})
	if err != nil {
		w.WriteHeader(500)
		fmt.Fprintln(w, err.Error())
		return
	}
	if v == nil {
		w.WriteHeader(404)
		fmt.Fprintln(w, "expired or unknown blob")
		return
	}
	data := v.([]byte)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.Write(data)
}

// WelcomeHandler handles requests to GET /.
func WelcomeHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	fmt.Fprintf(w, "roomdrop (%s)\n", Version)
}

// logWrapper takes a handler and returns a handler which does the same
// thing, after first logging the request URL.
func logWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		log.Println(r.Method, r.URL)
		handler(w, r, ps)
	}
}
