package msgactor

import (
	"github.com/edup2p/nearby/types/key"
)

// Messages

// ======================================================================================================
// Transport events

// TransportAdvertiseFailed reports that a running advertisement died.
type TransportAdvertiseFailed struct {
	Err error
}

// TransportBrowseFailed reports that a running browse died.
type TransportBrowseFailed struct {
	Err error
}

type TransportPeerFound struct {
	Peer key.PeerPublic

	DisplayName string
}

type TransportPeerLost struct {
	Peer key.PeerPublic
}

// TransportInvitation is an invitation from a remote peer to join its session.
type TransportInvitation struct {
	Peer key.PeerPublic

	DisplayName string

	// Respond must be called exactly once, it never blocks.
	Respond func(accept bool)
}

type TransportPeerState struct {
	Peer key.PeerPublic

	DisplayName string

	State SessionState
}

type TransportData struct {
	Peer key.PeerPublic

	Payload []byte
}

type TransportStream struct {
	Peer key.PeerPublic

	Name string
}

type TransportResource struct {
	Peer key.PeerPublic

	Name string

	// else it started
	Finished bool

	Err error
}

// ======================================================================================================
// Manager commands

type ManInvite struct {
	Peer key.PeerPublic
}

type ManInviteByName struct {
	Name string
}

type ManSend struct {
	Payload []byte

	// nil sends to all connected peers
	To []key.PeerPublic
}
