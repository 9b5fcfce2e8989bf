package lan

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"slices"
	"syscall"
	"time"

	"golang.org/x/net/dns/dnsmessage"
	"golang.org/x/net/ipv4"

	"github.com/edup2p/nearby/types"
	"github.com/edup2p/nearby/types/key"
	"github.com/edup2p/nearby/types/mdns"
	"github.com/edup2p/nearby/types/msgactor"
)

// entry is a browsed peer.
type entry struct {
	inst    mdns.Instance
	expires time.Time
}

func listenMulticast(ctx context.Context, group netip.AddrPort) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: reuseControl}

	pc, err := lc.ListenPacket(ctx, "udp4", netip.AddrPortFrom(netip.IPv4Unspecified(), group.Port()).String())
	if err != nil {
		return nil, fmt.Errorf("ListenPacket error: %w", err)
	}

	conn := pc.(*net.UDPConn)

	p4 := ipv4.NewPacketConn(conn)

	ift, err := net.Interfaces()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("cannot get interfaces: %w", err)
	}

	joined := 0
	for _, ifi := range ift {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 || ifi.Flags&net.FlagPointToPoint != 0 {
			continue
		}

		if err := p4.JoinGroup(&ifi, &net.UDPAddr{IP: group.Addr().AsSlice()}); err != nil {
			if !errors.Is(err, syscall.EAFNOSUPPORT) {
				slog.Warn("multicast JoinGroup failed", "err", err, "iface", ifi.Name)
			}
			continue
		}
		joined++
	}

	if joined == 0 {
		conn.Close()
		return nil, errors.New("could not join multicast group on any interface")
	}

	if err := p4.SetMulticastLoopback(true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cannot set multicast loopback: %w", err)
	}

	if err := p4.SetMulticastTTL(255); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cannot set Multicast TTL: %w", err)
	}

	return conn, nil
}

func (t *Transport) ensureSockLocked() error {
	if t.sock != nil {
		return nil
	}

	sock, err := listenMulticast(t.ctx, t.cfg.Group)
	if err != nil {
		return err
	}

	t.sock = sock

	go t.readLoop(sock)

	return nil
}

func (t *Transport) releaseSockLocked() {
	if t.advertising || t.browsing || t.sock == nil {
		return
	}

	if err := t.sock.Close(); err != nil {
		t.L().Debug("closing mdns socket", "err", err)
	}
	t.sock = nil
}

func (t *Transport) readLoop(sock *net.UDPConn) {
	buf := make([]byte, 1<<16)

	for {
		n, src, err := sock.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || t.ctx.Err() != nil {
				return
			}

			t.sockFailed(sock, err)
			return
		}

		msg := new(dnsmessage.Message)
		if err := msg.Unpack(buf[:n]); err != nil {
			t.L().Log(t.ctx, types.LevelTrace, "could not unpack mdns packet", "from", src, "err", err)
			continue
		}

		if msg.Response {
			t.handleResponse(msg, src)
		} else {
			t.handleQuery(msg, buf[:n], src)
		}
	}
}

// sockFailed reports a dead socket to whichever role was using it.
func (t *Transport) sockFailed(sock *net.UDPConn, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sock != sock {
		return
	}

	t.L().Error("mdns socket failed", "err", err)

	if t.advertising {
		t.advertising = false
		t.post(&msgactor.TransportAdvertiseFailed{Err: err})
	}

	if t.browsing {
		t.browsing = false
		t.browseCan()
		clear(t.directory)
		t.post(&msgactor.TransportBrowseFailed{Err: err})
	}

	t.releaseSockLocked()
}

func (t *Transport) write(msg *dnsmessage.Message, to netip.AddrPort) {
	pkt, err := msg.Pack()
	if err != nil {
		t.L().Error("could not pack mdns message", "err", err)
		return
	}

	t.mu.Lock()
	sock := t.sock
	t.mu.Unlock()

	if sock == nil {
		return
	}

	if _, err := sock.WriteToUDPAddrPort(pkt, to); err != nil {
		t.L().Warn("could not write mdns message", "to", to, "err", err)
	}
}

// ADVERTISING

func (t *Transport) StartAdvertising() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.advertising {
		return nil
	}

	if err := t.ensureSockLocked(); err != nil {
		return err
	}

	t.advertising = true

	go t.announce()

	return nil
}

func (t *Transport) announce() {
	msg, err := mdns.Announce(t.instance(), t.cfg.Tag)
	if err != nil {
		t.L().Error("could not build announcement", "err", err)
		return
	}

	t.write(msg, t.cfg.Group)

	select {
	case <-t.ctx.Done():
		return
	case <-time.After(reannounceDelay):
	}

	t.mu.Lock()
	still := t.advertising
	t.mu.Unlock()

	if still {
		t.write(msg, t.cfg.Group)
	}
}

func (t *Transport) StopAdvertising() {
	t.mu.Lock()
	if !t.advertising {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	if msg, err := mdns.Goodbye(t.instance(), t.cfg.Tag); err == nil {
		t.write(msg, t.cfg.Group)
	} else {
		t.L().Warn("could not build goodbye", "err", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.advertising = false
	t.releaseSockLocked()
}

func dataToB64Hash(b []byte) string {
	h := sha256.Sum256(b)

	return base64.StdEncoding.EncodeToString(h[:])
}

func (t *Transport) handleQuery(msg *dnsmessage.Message, pkt []byte, src netip.AddrPort) {
	t.mu.Lock()
	advertising := t.advertising
	t.mu.Unlock()

	if !advertising {
		return
	}

	match, unicast := mdns.IsQueryFor(msg, t.cfg.Tag)
	if !match {
		return
	}

	if _, _, _, ok, _ := t.rlStore.Take(t.ctx, src.String()+dataToB64Hash(pkt)); !ok {
		// loop storms
		return
	}

	resp, err := mdns.Announce(t.instance(), t.cfg.Tag)
	if err != nil {
		t.L().Error("could not build answer", "err", err)
		return
	}

	to := t.cfg.Group
	if unicast {
		to = src
	}

	t.L().Log(t.ctx, types.LevelTrace, "answering query", "from", src, "to", to)

	t.write(resp, to)
}

// BROWSING

func (t *Transport) StartBrowsing() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.browsing {
		return nil
	}

	if err := t.ensureSockLocked(); err != nil {
		return err
	}

	t.browsing = true

	var ctx context.Context
	ctx, t.browseCan = context.WithCancel(t.ctx)

	go t.browseLoop(ctx)

	return nil
}

func (t *Transport) StopBrowsing() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.browsing {
		return
	}

	t.browsing = false
	t.browseCan()

	clear(t.directory)

	t.releaseSockLocked()
}

func (t *Transport) browseLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.QueryInterval)
	defer ticker.Stop()

	q, err := mdns.Query(t.cfg.Tag, false)
	if err != nil {
		t.L().Error("could not build query", "err", err)
		return
	}

	for {
		t.write(q, t.cfg.Group)

		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.sweep(now)
		}
	}
}

// sweep forgets peers whose records expired.
func (t *Transport) sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, e := range t.directory {
		if now.After(e.expires) {
			t.L().Debug("peer expired", "peer", id.Short())

			delete(t.directory, id)
			t.post(&msgactor.TransportPeerLost{Peer: id})
		}
	}
}

func (t *Transport) handleResponse(msg *dnsmessage.Message, src netip.AddrPort) {
	insts := mdns.ParseResponse(msg, t.cfg.Tag)
	if len(insts) == 0 {
		return
	}

	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.browsing {
		return
	}

	for _, inst := range insts {
		if inst.ID == t.id {
			continue
		}

		old, known := t.directory[inst.ID]

		if inst.TTL == 0 {
			if known {
				delete(t.directory, inst.ID)
				t.post(&msgactor.TransportPeerLost{Peer: inst.ID})
			}
			continue
		}

		if len(inst.Addrs) == 0 {
			inst.Addrs = []netip.Addr{src.Addr().Unmap()}
		}

		t.directory[inst.ID] = &entry{
			inst:    inst,
			expires: now.Add(inst.TTL),
		}

		if !known || old.inst.Name != inst.Name {
			t.post(&msgactor.TransportPeerFound{Peer: inst.ID, DisplayName: inst.Name})
		}
	}
}

// lookup returns a copy of a browsed peer's instance.
func (t *Transport) lookup(peer key.PeerPublic) (mdns.Instance, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.directory[peer]
	if !ok {
		return mdns.Instance{}, false
	}

	inst := e.inst
	inst.Addrs = slices.Clone(inst.Addrs)

	return inst, true
}
