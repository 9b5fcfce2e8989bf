package nearby

import (
	"cmp"
	"slices"

	"github.com/edup2p/nearby/types"
	"github.com/edup2p/nearby/types/key"
	"github.com/edup2p/nearby/types/msgactor"
)

type SessionState = msgactor.SessionState

const (
	NotConnected = msgactor.NotConnected
	Connecting   = msgactor.Connecting
	Connected    = msgactor.Connected
)

// Peer is a remote instance, as observed by the browser or the session.
type Peer struct {
	ID key.PeerPublic

	DisplayName string
}

// Peers is a snapshot, sorted by display name and then by id.
type Peers []Peer

func comparePeers(a, b Peer) int {
	if c := cmp.Compare(a.DisplayName, b.DisplayName); c != 0 {
		return c
	}
	return a.ID.Compare(b.ID)
}

func sortedPeers(ps []Peer) Peers {
	slices.SortFunc(ps, comparePeers)
	return ps
}

func (ps Peers) DisplayNames() []string {
	return types.Map(ps, func(p Peer) string {
		return p.DisplayName
	})
}

func (ps Peers) IDs() []key.PeerPublic {
	return types.Map(ps, func(p Peer) key.PeerPublic {
		return p.ID
	})
}

// Find returns the peer with this id.
func (ps Peers) Find(id key.PeerPublic) (Peer, bool) {
	i := slices.IndexFunc(ps, func(p Peer) bool {
		return p.ID == id
	})
	if i < 0 {
		return Peer{}, false
	}
	return ps[i], true
}

func (ps Peers) Contains(id key.PeerPublic) bool {
	return slices.ContainsFunc(ps, func(p Peer) bool {
		return p.ID == id
	})
}
