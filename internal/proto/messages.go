package proto

// Auth is sent by the agent to the rendezvous as the first line on a
// tunnel connection, but only when the endpoint carries a secret key.
type Auth struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// Control line markers exchanged before the stream turns opaque.
const (
	LineReady = "READY"
	LinePing  = "PING"
	LinePong  = "PONG"

	AuthOK      = "AUTH_OK"
	AuthSuccess = "AUTH_SUCCESS"
	AuthFail    = "AUTH_FAIL"
)
