package lan

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/edup2p/nearby/types"
	"github.com/edup2p/nearby/types/dial"
	"github.com/edup2p/nearby/types/key"
	"github.com/edup2p/nearby/types/msgactor"
	"github.com/edup2p/nearby/types/msgpeer"
)

const checkDataLen = 32

var errBadAttestation = errors.New("attestation did not verify")

type peerConn struct {
	peer key.PeerPublic
	name string

	// who opened the connection
	dialer key.PeerPublic

	c      *msgpeer.Conn
	shared key.PeerShared

	closeOnce sync.Once
}

func newConn(nc net.Conn) *msgpeer.Conn {
	return msgpeer.NewConn(nc, bufio.NewReadWriter(bufio.NewReader(nc), bufio.NewWriter(nc)))
}

func (pc *peerConn) close() {
	pc.closeOnce.Do(func() {
		_ = pc.c.Close()
	})
}

func checkData() []byte {
	b := make([]byte, checkDataLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return b
}

// INVITING

func (t *Transport) Invite(peer key.PeerPublic, timeout time.Duration) {
	inst, ok := t.lookup(peer)
	if !ok {
		t.L().Debug("not inviting unknown peer", "peer", peer.Short())
		t.post(&msgactor.TransportPeerState{Peer: peer, State: msgactor.NotConnected})
		return
	}

	t.post(&msgactor.TransportPeerState{Peer: peer, DisplayName: inst.Name, State: msgactor.Connecting})

	go func() {
		pc, err := t.invite(inst.ID, inst.Name, inst.Addrs, inst.Port, timeout)
		if err != nil {
			t.L().Info("invitation failed", "peer", peer.Short(), "err", err)
			t.post(&msgactor.TransportPeerState{Peer: peer, DisplayName: inst.Name, State: msgactor.NotConnected})
			return
		}

		t.register(pc)
	}()
}

func (t *Transport) invite(peer key.PeerPublic, name string, addrs []netip.Addr, port uint16, timeout time.Duration) (*peerConn, error) {
	ctx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()

	nc, err := dial.TCP(ctx, dial.Opts{Addrs: addrs, Port: port, ConnectTimeout: timeout})
	if err != nil {
		return nil, err
	}

	deadline, _ := ctx.Deadline()
	if err := nc.SetDeadline(deadline); err != nil {
		nc.Close()
		return nil, err
	}

	c := newConn(nc)

	check := checkData()

	inv := &msgpeer.Invite{
		ID:          msgpeer.NewInviteID(),
		From:        t.id,
		Name:        t.cfg.DisplayName,
		Attestation: t.cfg.Private.SealTo(peer, check),
	}

	if err := c.Write(inv); err != nil {
		c.Close()
		return nil, fmt.Errorf("could not send invite: %w", err)
	}

	// bounded by the connection deadline, Read returns nil on expiry
	answer, err := c.Read(0)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("no answer: %w", err)
	}
	if answer == nil {
		c.Close()
		return nil, fmt.Errorf("no answer within %s", timeout)
	}

	switch answer := answer.(type) {
	case *msgpeer.Accept:
		if answer.ID != inv.ID || answer.From != peer {
			c.Close()
			return nil, fmt.Errorf("accept does not match invite %s", inv.ID)
		}

		got, ok := t.cfg.Private.OpenFrom(peer, answer.Attestation)
		if !ok || subtle.ConstantTimeCompare(got, check) != 1 {
			c.Close()
			return nil, errBadAttestation
		}

		if answer.Name != "" {
			name = answer.Name
		}
	case *msgpeer.Reject:
		c.Close()
		return nil, fmt.Errorf("rejected: %q", answer.Reason)
	default:
		c.Close()
		return nil, fmt.Errorf("unexpected answer %T", answer)
	}

	if err := nc.SetDeadline(time.Time{}); err != nil {
		c.Close()
		return nil, err
	}

	return &peerConn{
		peer:   peer,
		name:   name,
		dialer: t.id,
		c:      c,
		shared: t.cfg.Private.Shared(peer),
	}, nil
}

// INVITED

func (t *Transport) acceptLoop() {
	for {
		nc, err := t.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || t.ctx.Err() != nil {
				return
			}

			t.L().Error("session listener failed", "err", err)
			return
		}

		go t.handleIncoming(nc)
	}
}

func (t *Transport) handleIncoming(nc net.Conn) {
	c := newConn(nc)

	reject := func(id, reason string) {
		_ = c.WriteTimeout(&msgpeer.Reject{ID: id, Reason: reason}, writeTimeout)
		c.Close()
	}

	inv := new(msgpeer.Invite)
	if err := c.Expect(inv, t.cfg.HandshakeTimeout); err != nil {
		t.L().Debug("dropping incoming connection", "from", nc.RemoteAddr(), "err", err)
		c.Close()
		return
	}

	if !msgpeer.ValidInviteID(inv.ID) || inv.From.IsZero() || inv.From == t.id {
		reject(inv.ID, "malformed invite")
		return
	}

	t.mu.Lock()
	advertising := t.advertising
	t.mu.Unlock()

	if !advertising {
		t.L().Debug("rejecting invite while not advertising", "from", inv.From.Short())
		reject(inv.ID, "not advertising")
		return
	}

	check, ok := t.cfg.Private.OpenFrom(inv.From, inv.Attestation)
	if !ok {
		t.L().Warn("invite attestation did not verify", "from", inv.From.Short(), "addr", nc.RemoteAddr())
		reject(inv.ID, "bad attestation")
		return
	}

	answer := make(chan bool, 1)

	t.post(&msgactor.TransportInvitation{
		Peer:        inv.From,
		DisplayName: inv.Name,
		Respond: func(accept bool) {
			select {
			case answer <- accept:
			default:
			}
		},
	})

	timer := time.NewTimer(t.cfg.HandshakeTimeout)
	defer timer.Stop()

	var accepted bool

	select {
	case accepted = <-answer:
	case <-timer.C:
	case <-t.ctx.Done():
	}

	if !accepted {
		reject(inv.ID, "declined")
		return
	}

	err := c.WriteTimeout(&msgpeer.Accept{
		ID:          inv.ID,
		From:        t.id,
		Name:        t.cfg.DisplayName,
		Attestation: t.cfg.Private.SealTo(inv.From, check),
	}, writeTimeout)
	if err != nil {
		t.L().Info("could not accept invite", "from", inv.From.Short(), "err", err)
		c.Close()
		return
	}

	t.register(&peerConn{
		peer:   inv.From,
		name:   inv.Name,
		dialer: inv.From,
		c:      c,
		shared: t.cfg.Private.Shared(inv.From),
	})
}

// SESSION

// register makes pc the connection to its peer, replacing an earlier one.
//
// When both peers invited each other, each end keeps the connection opened by the lower id.
func (t *Transport) register(pc *peerConn) {
	t.mu.Lock()
	if types.IsContextDone(t.ctx) {
		t.mu.Unlock()
		pc.close()
		return
	}
	old := t.conns[pc.peer]
	if old != nil && old.dialer != pc.dialer && old.dialer.Compare(pc.dialer) < 0 {
		t.mu.Unlock()
		t.L().Debug("dropping crossed connection", "peer", pc.peer.Short(), "dialer", pc.dialer.Short())
		pc.close()
		return
	}
	t.conns[pc.peer] = pc
	t.mu.Unlock()

	if old != nil {
		old.close()
	}

	t.L().Info("peer connected", "peer", pc.peer.Short(), "name", pc.name)

	t.post(&msgactor.TransportPeerState{Peer: pc.peer, DisplayName: pc.name, State: msgactor.Connected})

	go t.sessionReadLoop(pc)
}

func (t *Transport) sessionReadLoop(pc *peerConn) {
	defer func() {
		pc.close()

		t.mu.Lock()
		current := t.conns[pc.peer] == pc
		if current {
			delete(t.conns, pc.peer)
		}
		t.mu.Unlock()

		if current {
			t.L().Info("peer disconnected", "peer", pc.peer.Short())
			t.post(&msgactor.TransportPeerState{Peer: pc.peer, DisplayName: pc.name, State: msgactor.NotConnected})
		}
	}()

	for {
		msg, err := pc.c.Read(0)
		if err != nil {
			t.L().Debug("session read ended", "peer", pc.peer.Short(), "err", err)
			return
		}

		switch msg := msg.(type) {
		case *msgpeer.Data:
			payload, ok := pc.shared.Open(msg.Sealed)
			if !ok {
				t.L().Warn("dropping payload that did not open", "peer", pc.peer.Short())
				continue
			}

			t.L().Log(t.ctx, types.LevelTrace, "received payload", "peer", pc.peer.Short(), "len", len(payload))

			t.post(&msgactor.TransportData{Peer: pc.peer, Payload: types.SliceOrEmpty(payload)})
		case *msgpeer.Bye:
			return
		default:
			t.L().Warn("unexpected message in session", "peer", pc.peer.Short(), "type", fmt.Sprintf("%T", msg))
		}
	}
}

func (t *Transport) Send(payload []byte, peers []key.PeerPublic) error {
	t.mu.Lock()
	pcs := make([]*peerConn, len(peers))
	for i, p := range peers {
		pcs[i] = t.conns[p]
	}
	t.mu.Unlock()

	var errs []error

	for i, pc := range pcs {
		if pc == nil {
			errs = append(errs, fmt.Errorf("peer %s: %w", peers[i].Short(), ErrNotConnected))
			continue
		}

		if err := pc.c.WriteTimeout(&msgpeer.Data{Sealed: pc.shared.Seal(payload)}, writeTimeout); err != nil {
			errs = append(errs, fmt.Errorf("peer %s: %w", pc.peer.Short(), err))
			pc.close()
		}
	}

	return errors.Join(errs...)
}

func (t *Transport) Disconnect() {
	t.mu.Lock()
	conns := t.conns
	t.conns = make(map[key.PeerPublic]*peerConn)
	t.mu.Unlock()

	for _, pc := range conns {
		if err := pc.c.WriteTimeout(&msgpeer.Bye{}, byeTimeout); err != nil {
			t.L().Debug("could not say bye", "peer", pc.peer.Short(), "err", err)
		}
		pc.close()

		t.post(&msgactor.TransportPeerState{Peer: pc.peer, DisplayName: pc.name, State: msgactor.NotConnected})
	}
}
