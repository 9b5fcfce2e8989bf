package msgactor

// SessionState is the state of a remote peer in the local session.
type SessionState byte

//go:generate go run golang.org/x/tools/cmd/stringer -type=SessionState
const (
	NotConnected SessionState = iota
	Connecting
	Connected
)
