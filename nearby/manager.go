package nearby

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edup2p/nearby/types/ifaces"
	"github.com/edup2p/nearby/types/key"
	"github.com/edup2p/nearby/types/mailbox"
	"github.com/edup2p/nearby/types/msgactor"
)

// Handlers are the caller's notification callbacks, all optional.
//
// They are invoked through the manager's Executor, never concurrently.
// Slices passed to them are snapshots, and must not be modified.
type Handlers struct {
	// PeersChanged receives the discovered set, sorted by display name.
	PeersChanged func(peers Peers)

	// ConnectivityChanged receives the connected peers, sorted by display name.
	ConnectivityChanged func(connected Peers)

	// MessageReceived receives a payload exactly as the remote peer sent it.
	MessageReceived func(from Peer, payload []byte)

	// Error receives failures that are only reported, such as ErrUnknownPeer and ErrSendFailure.
	Error func(err error)
}

type Options struct {
	Identity Identity

	Tag ServiceTag

	Transport ifaces.Transport

	Handlers Handlers

	// If nil, handlers run on a SerialExecutor owned by the manager.
	Executor ifaces.Executor

	// If zero, DefaultInviteTimeout is used. Negative values are rejected.
	InviteTimeout time.Duration

	// If nil, AcceptAll is used.
	InvitationPolicy InvitationPolicy
}

// Manager is the peer session manager; it composes an Advertiser, a Browser and a Session
// around one transport.
//
// Transport events and caller commands are handled one at a time on the manager's Run loop,
// which is the only writer of the discovered set and the session state table.
type Manager struct {
	*ActorCommon

	local Identity
	tag   ServiceTag
	tr    ifaces.Transport

	handlers Handlers
	exec     ifaces.Executor
	ownExec  *SerialExecutor

	inviteTimeout time.Duration

	cmds *mailbox.Mailbox

	advertiser *Advertiser
	browser    *Browser
	session    *Session

	peersSnap  atomic.Pointer[Peers]
	connSnap   atomic.Pointer[Peers]
	statesSnap atomic.Pointer[map[key.PeerPublic]SessionState]

	closeOnce sync.Once
	stopOnce  sync.Once
}

var _ ifaces.Actor = (*Manager)(nil)

func NewManager(ctx context.Context, opts Options) (*Manager, error) {
	if err := opts.Tag.Validate(); err != nil {
		return nil, err
	}

	if opts.Transport == nil {
		return nil, errors.New("cannot create manager with nil transport")
	}

	if opts.Identity.ID.IsZero() {
		return nil, errors.New("cannot create manager with zero identity")
	}

	if opts.InviteTimeout < 0 {
		return nil, fmt.Errorf("cannot create manager with negative invite timeout %s", opts.InviteTimeout)
	}

	m := &Manager{
		ActorCommon: MakeCommon(ctx, ManagerInboxChLen),

		local: opts.Identity,
		tag:   opts.Tag,
		tr:    opts.Transport,

		handlers:      opts.Handlers,
		exec:          opts.Executor,
		inviteTimeout: opts.InviteTimeout,
	}

	if m.exec == nil {
		m.ownExec = NewSerialExecutor()
		m.exec = m.ownExec
	}

	if m.inviteTimeout == 0 {
		m.inviteTimeout = DefaultInviteTimeout
	}

	policy := opts.InvitationPolicy
	if policy == nil {
		policy = AcceptAll
	}

	m.advertiser = &Advertiser{m: m, policy: policy}
	m.browser = &Browser{m: m, peers: make(map[key.PeerPublic]Peer)}
	m.session = &Session{m: m, states: make(map[key.PeerPublic]sessionEntry)}

	m.cmds = mailbox.New(m.ctx, m.inbox)

	m.tr.Attach(m.ctx, m.inbox)

	return m, nil
}

// Start runs the manager, then starts advertising and browsing.
//
// If either fails, the error wraps ErrAdvertise or ErrBrowse, and nothing is left announcing.
func (m *Manager) Start() error {
	if err := m.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStopped, err)
	}

	go m.Run()

	if err := m.advertiser.Start(); err != nil {
		return err
	}

	if err := m.browser.Start(); err != nil {
		m.advertiser.Stop()
		return err
	}

	return nil
}

// Stop withdraws the advertisement and the scan, leaves the session, and stops the manager.
//
// It is safe to call multiple times.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.advertiser.Stop()
		m.browser.Stop()
		m.tr.Disconnect()

		m.Cancel()

		// never ran, so Run won't close
		if m.running.CheckOrMark() {
			m.Close()
		}
	})
}

func (m *Manager) Run() {
	defer func() {
		if v := recover(); v != nil {
			L(m).Error("panicked", "panic", v)
			m.Cancel()
			m.Close()
		}
	}()

	if !m.running.CheckOrMark() {
		L(m).Warn("tried to run agent, while already running")
		return
	}

	for {
		select {
		case <-m.ctx.Done():
			m.Close()
			return
		case msg := <-m.inbox:
			m.Handle(msg)
		}
	}
}

func (m *Manager) Handle(msg msgactor.ActorMessage) {
	switch msg := msg.(type) {
	case *msgactor.TransportPeerFound:
		m.browser.found(Peer{ID: msg.Peer, DisplayName: msg.DisplayName})
	case *msgactor.TransportPeerLost:
		m.browser.lost(msg.Peer)
	case *msgactor.TransportInvitation:
		m.advertiser.invited(msg)
	case *msgactor.TransportPeerState:
		m.session.stateChanged(msg)
	case *msgactor.TransportData:
		m.session.received(msg)
	case *msgactor.TransportStream:
		L(m).Debug("ignoring stream", "from", msg.Peer.Short(), "name", msg.Name)
	case *msgactor.TransportResource:
		L(m).Debug("ignoring resource", "from", msg.Peer.Short(), "name", msg.Name, "finished", msg.Finished, "err", msg.Err)
	case *msgactor.TransportAdvertiseFailed:
		L(m).Error("advertisement failed", "err", msg.Err)
		m.advertiser.failed()
		m.report(fmt.Errorf("%w: %w", ErrAdvertise, msg.Err))
	case *msgactor.TransportBrowseFailed:
		L(m).Error("browsing failed", "err", msg.Err)
		m.browser.failed()
		m.report(fmt.Errorf("%w: %w", ErrBrowse, msg.Err))

	case *msgactor.ManInvite:
		m.browser.invite(msg.Peer)
	case *msgactor.ManInviteByName:
		m.browser.inviteByName(msg.Name)
	case *msgactor.ManSend:
		m.session.send(msg.Payload, msg.To)
	default:
		m.logUnknownMessage(msg)
	}
}

func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		if m.ownExec != nil {
			m.ownExec.Close()
		}
	})
}

// CALLER OPERATIONS

// Invite asks a discovered peer to join the session.
//
// Unknown peers are reported to Handlers.Error as ErrUnknownPeer.
func (m *Manager) Invite(peer key.PeerPublic) {
	m.cmds.Post(&msgactor.ManInvite{Peer: peer})
}

// InviteByName invites the discovered peer with this display name, the lowest id wins on ties.
func (m *Manager) InviteByName(name string) {
	m.cmds.Post(&msgactor.ManInviteByName{Name: name})
}

// Send delivers payload to every connected peer, best effort.
//
// It is a no-op without connected peers. Failures are reported to Handlers.Error as ErrSendFailure.
func (m *Manager) Send(payload []byte) {
	m.cmds.Post(&msgactor.ManSend{Payload: bytes.Clone(payload)})
}

// SendTo is Send, restricted to the listed peers that are connected.
func (m *Manager) SendTo(payload []byte, peers ...key.PeerPublic) {
	m.cmds.Post(&msgactor.ManSend{
		Payload: bytes.Clone(payload),
		To:      append([]key.PeerPublic{}, peers...),
	})
}

// ACCESSORS

func (m *Manager) Local() Identity {
	return m.local
}

func (m *Manager) Tag() ServiceTag {
	return m.tag
}

func (m *Manager) Advertiser() *Advertiser {
	return m.advertiser
}

func (m *Manager) Browser() *Browser {
	return m.browser
}

func (m *Manager) Session() *Session {
	return m.session
}

// Peers returns the most recently published discovered set.
func (m *Manager) Peers() Peers {
	if p := m.peersSnap.Load(); p != nil {
		return *p
	}
	return Peers{}
}

// Connected returns the most recently published connected peers.
func (m *Manager) Connected() Peers {
	if p := m.connSnap.Load(); p != nil {
		return *p
	}
	return Peers{}
}

// SessionState returns the most recently published state of a peer.
func (m *Manager) SessionState(peer key.PeerPublic) SessionState {
	if p := m.statesSnap.Load(); p != nil {
		return (*p)[peer]
	}
	return NotConnected
}

// NOTIFICATIONS

func (m *Manager) publishPeers(ps Peers) {
	m.peersSnap.Store(&ps)

	if h := m.handlers.PeersChanged; h != nil {
		m.exec.Execute(func() {
			h(ps)
		})
	}
}

func (m *Manager) publishSession(states map[key.PeerPublic]SessionState, connected Peers) {
	m.statesSnap.Store(&states)
	m.connSnap.Store(&connected)

	if h := m.handlers.ConnectivityChanged; h != nil {
		m.exec.Execute(func() {
			h(connected)
		})
	}
}

func (m *Manager) deliver(from Peer, payload []byte) {
	if h := m.handlers.MessageReceived; h != nil {
		m.exec.Execute(func() {
			h(from, payload)
		})
	}
}

func (m *Manager) report(err error) {
	L(m).Warn("reported failure", "err", err)

	if h := m.handlers.Error; h != nil {
		m.exec.Execute(func() {
			h(err)
		})
	}
}
