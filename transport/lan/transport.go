// Package lan is the local network transport: DNS-SD over multicast DNS for discovery,
// and TCP connections carrying sealed frames for sessions.
package lan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"

	"github.com/edup2p/nearby/types/ifaces"
	"github.com/edup2p/nearby/types/key"
	"github.com/edup2p/nearby/types/mailbox"
	"github.com/edup2p/nearby/types/mdns"
	"github.com/edup2p/nearby/types/msgactor"
)

var _ ifaces.Transport = (*Transport)(nil)

var (
	ErrNotConnected = errors.New("peer not connected")
	ErrClosed       = errors.New("transport closed")
)

type Transport struct {
	cfg Config
	id  key.PeerPublic

	ctx    context.Context
	ctxCan context.CancelCauseFunc

	mb *mailbox.Mailbox

	ln   net.Listener
	port uint16

	rlStore limiter.Store

	mu sync.Mutex

	// open while advertising or browsing
	sock *net.UDPConn

	advertising bool
	browsing    bool
	browseCan   context.CancelFunc

	directory map[key.PeerPublic]*entry
	conns     map[key.PeerPublic]*peerConn

	closeOnce sync.Once
}

// New opens the session listener. Discovery sockets are only opened while advertising or browsing.
func New(cfg Config) (*Transport, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.SetDefaults()

	ln, err := net.Listen("tcp4", netip.AddrPortFrom(cfg.ListenAddr, cfg.ListenPort).String())
	if err != nil {
		return nil, fmt.Errorf("could not listen for sessions: %w", err)
	}

	store, err := memorystore.New(&memorystore.Config{
		// Number of tokens allowed per interval.
		Tokens: 1,

		// Interval until tokens reset.
		Interval: time.Second,

		SweepInterval: 1 * time.Minute,
		SweepMinTTL:   1 * time.Minute,
	})
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("could not create rate limiter: %w", err)
	}

	return &Transport{
		cfg: cfg,
		id:  cfg.Private.Public(),

		ln:   ln,
		port: uint16(ln.Addr().(*net.TCPAddr).Port),

		rlStore: store,

		directory: make(map[key.PeerPublic]*entry),
		conns:     make(map[key.PeerPublic]*peerConn),
	}, nil
}

func (t *Transport) L() *slog.Logger {
	return slog.With("transport", "lan", "as", t.id.Short())
}

// Port is the session listener's port.
func (t *Transport) Port() uint16 {
	return t.port
}

func (t *Transport) Attach(ctx context.Context, inbox chan<- msgactor.ActorMessage) {
	t.ctx, t.ctxCan = context.WithCancelCause(ctx)
	t.mb = mailbox.New(t.ctx, inbox)

	go t.acceptLoop()

	go func() {
		<-t.ctx.Done()
		t.shutdown()
	}()
}

// Close shuts the transport down, dropping all sessions without notice.
func (t *Transport) Close() {
	if t.ctxCan != nil {
		t.ctxCan(ErrClosed)
		return
	}

	t.shutdown()
}

func (t *Transport) shutdown() {
	t.closeOnce.Do(func() {
		if err := t.ln.Close(); err != nil {
			t.L().Debug("closing listener", "err", err)
		}

		t.mu.Lock()
		if t.browseCan != nil {
			t.browseCan()
		}
		t.advertising = false
		t.browsing = false
		t.releaseSockLocked()

		conns := t.conns
		t.conns = make(map[key.PeerPublic]*peerConn)
		t.mu.Unlock()

		for _, pc := range conns {
			pc.close()
		}

		if err := t.rlStore.Close(context.Background()); err != nil {
			t.L().Debug("closing rate limiter", "err", err)
		}
	})
}

func (t *Transport) post(msg msgactor.ActorMessage) {
	t.mb.Post(msg)
}

// instance is the local peer, as announced.
func (t *Transport) instance() mdns.Instance {
	addrs := t.cfg.Addrs
	if len(addrs) == 0 {
		addrs = localAddrs()
	}

	return mdns.Instance{
		ID:    t.id,
		Name:  t.cfg.DisplayName,
		Port:  t.port,
		Addrs: addrs,
		TTL:   mdns.DefaultTTL,
	}
}
