// Package memnet is an in-process transport substrate.
//
// Transports joined to the same Network discover each other when they use the same
// service tag, and exchange invitations and payloads without touching the network.
// It backs tests and the self-contained demo.
package memnet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/edup2p/nearby/types/ifaces"
	"github.com/edup2p/nearby/types/key"
	"github.com/edup2p/nearby/types/mailbox"
	"github.com/edup2p/nearby/types/msgactor"
)

var _ ifaces.Transport = (*Transport)(nil)

var (
	ErrNotConnected = errors.New("peer not connected")
)

// Network is the shared medium transports join.
type Network struct {
	mu sync.Mutex

	// tag -> peer -> transport
	advertisers map[string]map[key.PeerPublic]*Transport
	browsers    map[string]map[key.PeerPublic]*Transport
}

func NewNetwork() *Network {
	return &Network{
		advertisers: make(map[string]map[key.PeerPublic]*Transport),
		browsers:    make(map[string]map[key.PeerPublic]*Transport),
	}
}

// Join creates a transport for a peer on this network.
func (n *Network) Join(id key.PeerPublic, displayName, tag string) *Transport {
	return &Transport{
		net:       n,
		id:        id,
		name:      displayName,
		tag:       tag,
		connected: make(map[key.PeerPublic]*Transport),
	}
}

func register(set map[string]map[key.PeerPublic]*Transport, t *Transport) bool {
	peers, ok := set[t.tag]
	if !ok {
		peers = make(map[key.PeerPublic]*Transport)
		set[t.tag] = peers
	}

	if _, ok := peers[t.id]; ok {
		return false
	}

	peers[t.id] = t
	return true
}

func unregister(set map[string]map[key.PeerPublic]*Transport, t *Transport) bool {
	peers := set[t.tag]

	if _, ok := peers[t.id]; !ok {
		return false
	}

	delete(peers, t.id)
	return true
}

// Transport is one peer's view of a Network.
type Transport struct {
	net *Network

	id   key.PeerPublic
	name string
	tag  string

	mb *mailbox.Mailbox

	// guarded by net.mu
	connected     map[key.PeerPublic]*Transport
	failAdvertise error
	failBrowse    error
	calls         Calls
}

// Calls counts the invitations and sends a transport was asked to do.
type Calls struct {
	Invites int
	Sends   int
}

func (t *Transport) Attach(ctx context.Context, inbox chan<- msgactor.ActorMessage) {
	t.mb = mailbox.New(ctx, inbox)
}

func (t *Transport) post(msg msgactor.ActorMessage) {
	if t.mb == nil {
		slog.Warn("memnet: dropping event for unattached transport", "peer", t.id.Short(), "msg", fmt.Sprintf("%T", msg))
		return
	}
	t.mb.Post(msg)
}

// FailAdvertising makes subsequent StartAdvertising calls fail with err, nil clears it.
func (t *Transport) FailAdvertising(err error) {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()

	t.failAdvertise = err
}

// FailBrowsing makes subsequent StartBrowsing calls fail with err, nil clears it.
func (t *Transport) FailBrowsing(err error) {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()

	t.failBrowse = err
}

// Calls returns how often Invite and Send were called.
func (t *Transport) Calls() Calls {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()

	return t.calls
}

func (t *Transport) StartAdvertising() error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()

	if t.failAdvertise != nil {
		return t.failAdvertise
	}

	if !register(t.net.advertisers, t) {
		return nil
	}

	for _, b := range t.net.browsers[t.tag] {
		if b != t {
			b.post(&msgactor.TransportPeerFound{Peer: t.id, DisplayName: t.name})
		}
	}

	return nil
}

func (t *Transport) StopAdvertising() {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()

	if !unregister(t.net.advertisers, t) {
		return
	}

	for _, b := range t.net.browsers[t.tag] {
		if b != t {
			b.post(&msgactor.TransportPeerLost{Peer: t.id})
		}
	}
}

func (t *Transport) StartBrowsing() error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()

	if t.failBrowse != nil {
		return t.failBrowse
	}

	if !register(t.net.browsers, t) {
		return nil
	}

	for _, a := range t.net.advertisers[t.tag] {
		if a != t {
			t.post(&msgactor.TransportPeerFound{Peer: a.id, DisplayName: a.name})
		}
	}

	return nil
}

func (t *Transport) StopBrowsing() {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()

	unregister(t.net.browsers, t)
}

func (t *Transport) Invite(peer key.PeerPublic, timeout time.Duration) {
	t.net.mu.Lock()
	t.calls.Invites++
	target := t.net.advertisers[t.tag][peer]
	t.net.mu.Unlock()

	if target == nil {
		slog.Debug("memnet: invited peer is not advertising", "peer", peer.Short())
		t.post(&msgactor.TransportPeerState{Peer: peer, State: msgactor.NotConnected})
		return
	}

	t.post(&msgactor.TransportPeerState{Peer: peer, DisplayName: target.name, State: msgactor.Connecting})

	answer := make(chan bool, 1)

	target.post(&msgactor.TransportInvitation{
		Peer:        t.id,
		DisplayName: t.name,
		Respond: func(accept bool) {
			select {
			case answer <- accept:
			default:
			}
		},
	})

	go t.awaitAnswer(target, answer, timeout)
}

func (t *Transport) awaitAnswer(target *Transport, answer <-chan bool, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	accepted := false

	select {
	case accepted = <-answer:
	case <-timer.C:
		slog.Debug("memnet: invitation timed out", "peer", target.id.Short(), "timeout", timeout)
	}

	if !accepted {
		t.post(&msgactor.TransportPeerState{Peer: target.id, DisplayName: target.name, State: msgactor.NotConnected})
		return
	}

	t.net.mu.Lock()
	t.connected[target.id] = target
	target.connected[t.id] = t
	t.net.mu.Unlock()

	t.post(&msgactor.TransportPeerState{Peer: target.id, DisplayName: target.name, State: msgactor.Connected})
	target.post(&msgactor.TransportPeerState{Peer: t.id, DisplayName: t.name, State: msgactor.Connected})
}

func (t *Transport) Send(payload []byte, peers []key.PeerPublic) error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()

	t.calls.Sends++

	var errs []error

	for _, p := range peers {
		remote, ok := t.connected[p]
		if !ok {
			errs = append(errs, fmt.Errorf("peer %s: %w", p.Short(), ErrNotConnected))
			continue
		}

		remote.post(&msgactor.TransportData{Peer: t.id, Payload: bytes.Clone(payload)})
	}

	return errors.Join(errs...)
}

func (t *Transport) Disconnect() {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()

	for id, remote := range t.connected {
		delete(remote.connected, t.id)
		delete(t.connected, id)

		remote.post(&msgactor.TransportPeerState{Peer: t.id, DisplayName: t.name, State: msgactor.NotConnected})
		t.post(&msgactor.TransportPeerState{Peer: id, DisplayName: remote.name, State: msgactor.NotConnected})
	}
}

// Drop severs the session link between two transports, as if the link failed.
func (n *Network) Drop(a, b *Transport) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := a.connected[b.id]; !ok {
		return
	}

	delete(a.connected, b.id)
	delete(b.connected, a.id)

	a.post(&msgactor.TransportPeerState{Peer: b.id, DisplayName: b.name, State: msgactor.NotConnected})
	b.post(&msgactor.TransportPeerState{Peer: a.id, DisplayName: a.name, State: msgactor.NotConnected})
}
