package nearby

import (
	"fmt"
	"sync"

	"github.com/edup2p/nearby/types/key"
	"golang.org/x/exp/maps"
)

// Browser scans for peers advertising the manager's service tag, and keeps the discovered set.
//
// The discovered set only lives while browsing; Stop empties it.
type Browser struct {
	m *Manager

	mu       sync.Mutex
	browsing bool
	peers    map[key.PeerPublic]Peer
}

// Start begins scanning, it is a no-op while already browsing.
func (b *Browser) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browsing {
		return nil
	}

	if err := b.m.tr.StartBrowsing(); err != nil {
		L(b.m).Error("did not start browsing", "tag", b.m.tag, "err", err)
		return fmt.Errorf("%w: %w", ErrBrowse, err)
	}

	b.browsing = true

	L(b.m).Debug("browsing", "tag", b.m.tag)

	return nil
}

// Stop ends scanning and forgets every discovered peer, it is safe to call multiple times.
func (b *Browser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.browsing {
		return
	}

	b.m.tr.StopBrowsing()

	b.resetLocked()

	L(b.m).Debug("stopped browsing", "tag", b.m.tag)
}

func (b *Browser) Browsing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.browsing
}

// Invite queues an invitation to a discovered peer.
func (b *Browser) Invite(peer key.PeerPublic) {
	b.m.Invite(peer)
}

// failed runs on the manager's Run loop, after the transport gave up scanning on its own.
func (b *Browser) failed() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.browsing {
		return
	}

	b.resetLocked()
}

func (b *Browser) resetLocked() {
	b.browsing = false

	hadPeers := len(b.peers) > 0
	clear(b.peers)

	if hadPeers {
		b.m.publishPeers(Peers{})
	}
}

func (b *Browser) found(p Peer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// left over from before Stop
	if !b.browsing {
		return
	}

	if old, ok := b.peers[p.ID]; !ok || old.DisplayName != p.DisplayName {
		L(b.m).Info("found peer", "peer", p.ID.Short(), "name", p.DisplayName)
	}

	b.peers[p.ID] = p
	b.m.publishPeers(b.snapshotLocked())
}

func (b *Browser) lost(peer key.PeerPublic) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.browsing {
		return
	}

	if _, ok := b.peers[peer]; ok {
		L(b.m).Info("lost peer", "peer", peer.Short())
		delete(b.peers, peer)
	}

	b.m.publishPeers(b.snapshotLocked())
}

func (b *Browser) snapshotLocked() Peers {
	return sortedPeers(maps.Values(b.peers))
}

func (b *Browser) lookup(peer key.PeerPublic) (Peer, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.peers[peer]
	return p, ok
}

func (b *Browser) invite(peer key.PeerPublic) {
	p, ok := b.lookup(peer)
	if !ok {
		b.m.report(fmt.Errorf("%w: %s", ErrUnknownPeer, peer.Short()))
		return
	}

	L(b.m).Info("inviting peer", "peer", peer.Short(), "name", p.DisplayName, "timeout", b.m.inviteTimeout)

	b.m.tr.Invite(peer, b.m.inviteTimeout)
}

// inviteByName picks the lowest id among the peers with this display name.
func (b *Browser) inviteByName(name string) {
	var match *Peer

	b.mu.Lock()
	for _, p := range b.peers {
		if p.DisplayName != name {
			continue
		}
		if match == nil || p.ID.Compare(match.ID) < 0 {
			match = &p
		}
	}
	b.mu.Unlock()

	if match == nil {
		b.m.report(fmt.Errorf("%w: no peer named %q", ErrUnknownPeer, name))
		return
	}

	b.invite(match.ID)
}
