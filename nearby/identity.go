package nearby

import (
	"github.com/edup2p/nearby/types/key"
)

// Identity identifies this process for the lifetime of one app run.
type Identity struct {
	priv key.PeerPrivate

	ID key.PeerPublic

	// DisplayName is for presentation only, it isn't unique.
	DisplayName string
}

// NewIdentity generates a fresh peer key for displayName.
func NewIdentity(displayName string) Identity {
	return IdentityFrom(key.NewPeer(), displayName)
}

// IdentityFrom builds an Identity from a persisted key.
func IdentityFrom(priv key.PeerPrivate, displayName string) Identity {
	return Identity{
		priv:        priv,
		ID:          priv.Public(),
		DisplayName: displayName,
	}
}

// Private returns the private key, for transports that seal session traffic.
func (i Identity) Private() key.PeerPrivate {
	return i.priv
}

func (i Identity) Peer() Peer {
	return Peer{ID: i.ID, DisplayName: i.DisplayName}
}
