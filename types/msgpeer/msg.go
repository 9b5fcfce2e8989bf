// Package msgpeer has the frames peers exchange over a session connection.
package msgpeer

import (
	"github.com/google/uuid"

	"github.com/edup2p/nearby/types/key"
)

type PeerMessageType byte

const (
	InviteType PeerMessageType = iota + 1
	AcceptType
	RejectType
	DataType
	ByeType
)

// === handshake phase

// Invite asks the receiving peer to join the sender's session.
type Invite struct {
	ID string

	From key.PeerPublic
	Name string

	// random check data, sealed to the invitee
	Attestation []byte
}

// Accept answers an Invite with the same ID.
type Accept struct {
	ID string

	From key.PeerPublic
	Name string

	// the invite's check data, opened and resealed to the inviter
	Attestation []byte
}

type Reject struct {
	ID string

	Reason string `bson:",omitempty"`
}

// === session phase

// Data carries one payload, sealed with the shared key of both peers.
type Data struct {
	Sealed []byte
}

// Bye is sent before a peer closes the connection.
type Bye struct{}

func NewInviteID() string {
	return uuid.NewString()
}

// ValidInviteID reports whether id looks like one made by NewInviteID.
func ValidInviteID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
