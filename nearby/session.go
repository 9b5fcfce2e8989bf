package nearby

import (
	"context"
	"fmt"
	"slices"

	"github.com/edup2p/nearby/types"
	"github.com/edup2p/nearby/types/key"
	"github.com/edup2p/nearby/types/msgactor"
)

type sessionEntry struct {
	peer  Peer
	state SessionState
}

// Session tracks the state of every remote peer in the local session, and carries payloads.
//
// All of its state is owned by the manager's Run loop.
type Session struct {
	m *Manager

	states map[key.PeerPublic]sessionEntry
}

// Send queues payload for every connected peer.
func (s *Session) Send(payload []byte) {
	s.m.Send(payload)
}

func (s *Session) nameOf(peer key.PeerPublic) string {
	if e, ok := s.states[peer]; ok && e.peer.DisplayName != "" {
		return e.peer.DisplayName
	}
	if p, ok := s.m.browser.lookup(peer); ok {
		return p.DisplayName
	}
	return ""
}

func (s *Session) stateChanged(ev *msgactor.TransportPeerState) {
	name := ev.DisplayName
	if name == "" {
		name = s.nameOf(ev.Peer)
	}

	if ev.State == NotConnected {
		delete(s.states, ev.Peer)
	} else {
		s.states[ev.Peer] = sessionEntry{
			peer:  Peer{ID: ev.Peer, DisplayName: name},
			state: ev.State,
		}
	}

	L(s.m).Info("peer changed state", "peer", ev.Peer.Short(), "name", name, "state", ev.State)

	s.m.publishSession(s.stateSnapshot(), s.connected())
}

func (s *Session) received(ev *msgactor.TransportData) {
	from := Peer{ID: ev.Peer, DisplayName: s.nameOf(ev.Peer)}

	L(s.m).Log(context.Background(), types.LevelTrace, "received data", "from", ev.Peer.Short(), "len", len(ev.Payload))

	s.m.deliver(from, ev.Payload)
}

// send delivers to the connected peers in to, or to all connected peers when to is nil.
func (s *Session) send(payload []byte, to []key.PeerPublic) {
	var targets []key.PeerPublic

	for _, p := range s.connected() {
		if to == nil || slices.Contains(to, p.ID) {
			targets = append(targets, p.ID)
		}
	}

	if len(targets) == 0 {
		L(s.m).Debug("not sending, no connected peers", "len", len(payload))
		return
	}

	L(s.m).Debug("sending", "to", len(targets), "len", len(payload))

	if err := s.m.tr.Send(payload, targets); err != nil {
		s.m.report(fmt.Errorf("%w: %w", ErrSendFailure, err))
	}
}

func (s *Session) connected() Peers {
	var ps []Peer

	for _, e := range s.states {
		if e.state == Connected {
			ps = append(ps, e.peer)
		}
	}

	return sortedPeers(types.SliceOrEmpty(ps))
}

func (s *Session) stateSnapshot() map[key.PeerPublic]SessionState {
	m := make(map[key.PeerPublic]SessionState, len(s.states))
	for id, e := range s.states {
		m[id] = e.state
	}
	return m
}
