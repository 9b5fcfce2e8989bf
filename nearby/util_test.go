package nearby

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edup2p/nearby/types/ifaces"
	"github.com/edup2p/nearby/types/key"
	"github.com/edup2p/nearby/types/msgactor"
)

// Test constants
const assertEventuallyTick time.Duration = 1 * time.Millisecond
const assertEventuallyTimeout time.Duration = 1000 * assertEventuallyTick

var demoTag = MustParseServiceTag("demo-tag")

// fakeTransport records what the manager asks of it, and lets tests inject events.
type fakeTransport struct {
	mu sync.Mutex

	inbox chan<- msgactor.ActorMessage

	advErr    error
	browseErr error
	sendErr   error

	advertising bool
	browsing    bool

	advStarts    int
	browseStarts int

	invites     []key.PeerPublic
	timeouts    []time.Duration
	sends       []fakeSend
	disconnects int
}

type fakeSend struct {
	payload []byte
	peers   []key.PeerPublic
}

var _ ifaces.Transport = (*fakeTransport)(nil)

func (f *fakeTransport) Attach(_ context.Context, inbox chan<- msgactor.ActorMessage) {
	f.inbox = inbox
}

func (f *fakeTransport) StartAdvertising() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.advErr != nil {
		return f.advErr
	}
	f.advStarts++
	f.advertising = true
	return nil
}

func (f *fakeTransport) StopAdvertising() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.advertising = false
}

func (f *fakeTransport) StartBrowsing() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browseErr != nil {
		return f.browseErr
	}
	f.browseStarts++
	f.browsing = true
	return nil
}

func (f *fakeTransport) StopBrowsing() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.browsing = false
}

func (f *fakeTransport) Invite(peer key.PeerPublic, timeout time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.invites = append(f.invites, peer)
	f.timeouts = append(f.timeouts, timeout)
}

func (f *fakeTransport) Send(payload []byte, peers []key.PeerPublic) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sends = append(f.sends, fakeSend{payload: payload, peers: slices.Clone(peers)})
	return f.sendErr
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.disconnects++
}

func (f *fakeTransport) emit(msg msgactor.ActorMessage) {
	f.inbox <- msg
}

func (f *fakeTransport) starts() (advertise, browse int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.advStarts, f.browseStarts
}

func (f *fakeTransport) calls() (invites []key.PeerPublic, sends []fakeSend) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.invites), slices.Clone(f.sends)
}

type receivedMsg struct {
	from    Peer
	payload []byte
}

// recorder collects every notification a manager makes.
type recorder struct {
	mu sync.Mutex

	peers []Peers
	conns []Peers
	msgs  []receivedMsg
	errs  []error
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		PeersChanged: func(peers Peers) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.peers = append(r.peers, peers)
		},
		ConnectivityChanged: func(connected Peers) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.conns = append(r.conns, connected)
		},
		MessageReceived: func(from Peer, payload []byte) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.msgs = append(r.msgs, receivedMsg{from: from, payload: payload})
		},
		Error: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func (r *recorder) peerUpdates() []Peers {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.peers)
}

func (r *recorder) connUpdates() []Peers {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.conns)
}

func (r *recorder) received() []receivedMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.msgs)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.errs)
}

// lastPeerNames returns the names of the latest PeersChanged, or nil if there was none.
func (r *recorder) lastPeerNames() []string {
	ups := r.peerUpdates()
	if len(ups) == 0 {
		return nil
	}
	return ups[len(ups)-1].DisplayNames()
}

func (r *recorder) lastConnNames() []string {
	ups := r.connUpdates()
	if len(ups) == 0 {
		return nil
	}
	return ups[len(ups)-1].DisplayNames()
}

func newTestManager(t *testing.T, tr ifaces.Transport, name string, opts ...func(*Options)) (*Manager, *recorder) {
	t.Helper()

	rec := new(recorder)

	o := Options{
		Identity:  NewIdentity(name),
		Tag:       demoTag,
		Transport: tr,
		Handlers:  rec.handlers(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	m, err := NewManager(context.Background(), o)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	t.Cleanup(m.Stop)

	return m, rec
}

func startedFake(t *testing.T, name string, opts ...func(*Options)) (*Manager, *recorder, *fakeTransport) {
	t.Helper()

	tr := new(fakeTransport)
	m, rec := newTestManager(t, tr, name, opts...)

	if !assert.NoError(t, m.Start()) {
		t.FailNow()
	}

	return m, rec, tr
}

// barrier waits until the manager handled every command and event posted before it.
//
// It invites a fresh unknown peer, and waits for that peer's own report.
func barrier(t *testing.T, m *Manager, rec *recorder) {
	t.Helper()

	peer := key.NewPeer().Public()

	m.Invite(peer)

	assert.Eventually(t, func() bool {
		for _, err := range rec.errors() {
			if errors.Is(err, ErrUnknownPeer) && strings.Contains(err.Error(), peer.Short()) {
				return true
			}
		}
		return false
	}, assertEventuallyTimeout, assertEventuallyTick, "manager did not handle barrier invite")
}

func newPeerID() key.PeerPublic {
	return key.NewPeer().Public()
}
