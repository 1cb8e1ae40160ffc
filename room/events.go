package room

// Event names broadcast to room members or sent to a single connection.
// These are part of the wire protocol and must match what clients listen
// for.
const (
	EventUserJoined  = "userJoined"
	EventProgress    = "FILE_PROGRESS"
	EventReceived    = "FILE_RECEIVED"
	EventReceivedURL = "FILE_RECEIVED_URL"
	EventError       = "error"
)

// Notice is the payload for userJoined and error events.
type Notice struct {
	Message string `json:"message"`
}

// Received is the payload announcing a completed file.
type Received struct {
	FileName string `json:"fileName"`
}

// ReceivedURL is the payload carrying the transient download location of
// a completed file. The URL stops resolving when the handle expires.
type ReceivedURL struct {
	FileName string `json:"fileName"`
	URL      string `json:"url"`
}
