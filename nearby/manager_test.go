package nearby

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edup2p/nearby/types/key"
	"github.com/edup2p/nearby/types/msgactor"
)

func TestNewManagerValidates(t *testing.T) {
	ctx := context.Background()

	_, err := NewManager(ctx, Options{Identity: NewIdentity("A"), Tag: "Bad_Tag", Transport: new(fakeTransport)})
	assert.ErrorIs(t, err, ErrInvalidServiceTag)

	_, err = NewManager(ctx, Options{Identity: NewIdentity("A"), Tag: demoTag})
	assert.Error(t, err)

	_, err = NewManager(ctx, Options{Tag: demoTag, Transport: new(fakeTransport)})
	assert.Error(t, err)

	_, err = NewManager(ctx, Options{Identity: NewIdentity("A"), Tag: demoTag, Transport: new(fakeTransport), InviteTimeout: -time.Second})
	assert.Error(t, err)
}

func TestStartAdvertiseFailure(t *testing.T) {
	boom := errors.New("boom")
	tr := &fakeTransport{advErr: boom}

	m, _ := newTestManager(t, tr, "A")

	err := m.Start()
	assert.ErrorIs(t, err, ErrAdvertise)
	assert.ErrorIs(t, err, boom)

	assert.False(t, m.Advertiser().Advertising())
	assert.False(t, m.Browser().Browsing())
}

func TestStartBrowseFailure(t *testing.T) {
	boom := errors.New("boom")
	tr := &fakeTransport{browseErr: boom}

	m, _ := newTestManager(t, tr, "A")

	err := m.Start()
	assert.ErrorIs(t, err, ErrBrowse)
	assert.ErrorIs(t, err, boom)

	// nothing is left announcing
	assert.False(t, m.Advertiser().Advertising())
	assert.False(t, tr.advertising)
}

func TestStartStop(t *testing.T) {
	m, _, tr := startedFake(t, "A")

	assert.True(t, m.Advertiser().Advertising())
	assert.True(t, m.Browser().Browsing())

	// idempotent
	assert.NoError(t, m.Advertiser().Start())
	assert.NoError(t, m.Browser().Start())

	m.Stop()
	m.Stop()

	assert.False(t, tr.advertising)
	assert.False(t, tr.browsing)
	assert.Equal(t, 1, tr.disconnects)

	assert.ErrorIs(t, m.Start(), ErrStopped)
}

func TestFoundLostReplay(t *testing.T) {
	m, rec, tr := startedFake(t, "local")

	a, b, c := newPeerID(), newPeerID(), newPeerID()

	tr.emit(&msgactor.TransportPeerFound{Peer: a, DisplayName: "A"})
	tr.emit(&msgactor.TransportPeerFound{Peer: b, DisplayName: "B"})
	tr.emit(&msgactor.TransportPeerFound{Peer: b, DisplayName: "B"})
	tr.emit(&msgactor.TransportPeerLost{Peer: a})
	tr.emit(&msgactor.TransportPeerLost{Peer: a})
	tr.emit(&msgactor.TransportPeerLost{Peer: c})
	tr.emit(&msgactor.TransportPeerFound{Peer: c, DisplayName: "C"})
	tr.emit(&msgactor.TransportPeerFound{Peer: a, DisplayName: "A"})

	barrier(t, m, rec)

	assert.ElementsMatch(t, []key.PeerPublic{a, b, c}, m.Peers().IDs())

	// one update per event, repeats included
	assert.Len(t, rec.peerUpdates(), 8)
	assert.Equal(t, []string{"A", "B", "C"}, rec.lastPeerNames())
}

func TestPeersChangedSortedUnique(t *testing.T) {
	m, rec, tr := startedFake(t, "local")

	ids := []key.PeerPublic{newPeerID(), newPeerID(), newPeerID(), newPeerID()}

	tr.emit(&msgactor.TransportPeerFound{Peer: ids[0], DisplayName: "zed"})
	tr.emit(&msgactor.TransportPeerFound{Peer: ids[1], DisplayName: "alice"})
	tr.emit(&msgactor.TransportPeerFound{Peer: ids[2], DisplayName: "Bob"})
	tr.emit(&msgactor.TransportPeerFound{Peer: ids[3], DisplayName: "alice"})
	// rename
	tr.emit(&msgactor.TransportPeerFound{Peer: ids[0], DisplayName: "amy"})

	barrier(t, m, rec)

	for _, ps := range rec.peerUpdates() {
		seen := make(map[key.PeerPublic]bool)
		for i, p := range ps {
			assert.False(t, seen[p.ID], "duplicate id in PeersChanged")
			seen[p.ID] = true

			if i > 0 {
				assert.LessOrEqual(t, comparePeers(ps[i-1], p), 0, "PeersChanged not sorted")
			}
		}
	}

	assert.Equal(t, []string{"Bob", "alice", "alice", "amy"}, rec.lastPeerNames())
	assert.Len(t, m.Peers(), 4)
}

func TestInviteUnknownPeer(t *testing.T) {
	m, rec, tr := startedFake(t, "local")

	peer := newPeerID()
	m.Invite(peer)

	assert.Eventually(t, func() bool {
		return len(rec.errors()) == 1
	}, assertEventuallyTimeout, assertEventuallyTick)

	assert.ErrorIs(t, rec.errors()[0], ErrUnknownPeer)

	invites, sends := tr.calls()
	assert.Empty(t, invites)
	assert.Empty(t, sends)

	assert.Equal(t, NotConnected, m.SessionState(peer))
	assert.Empty(t, rec.connUpdates())
}

func TestInvite(t *testing.T) {
	m, rec, tr := startedFake(t, "local", func(o *Options) {
		o.InviteTimeout = 3 * time.Second
	})

	peer := newPeerID()
	tr.emit(&msgactor.TransportPeerFound{Peer: peer, DisplayName: "A"})

	m.Browser().Invite(peer)
	barrier(t, m, rec)

	invites, _ := tr.calls()
	assert.Equal(t, []key.PeerPublic{peer}, invites)
	assert.Equal(t, []time.Duration{3 * time.Second}, tr.timeouts)
}

func TestInviteByName(t *testing.T) {
	m, rec, tr := startedFake(t, "local")

	x, y := newPeerID(), newPeerID()
	low := x
	if y.Compare(x) < 0 {
		low = y
	}

	tr.emit(&msgactor.TransportPeerFound{Peer: x, DisplayName: "twin"})
	tr.emit(&msgactor.TransportPeerFound{Peer: y, DisplayName: "twin"})

	m.InviteByName("twin")
	m.InviteByName("nobody")
	barrier(t, m, rec)

	invites, _ := tr.calls()
	assert.Equal(t, []key.PeerPublic{low}, invites)

	errs := rec.errors()
	if assert.Len(t, errs, 2) {
		assert.ErrorIs(t, errs[0], ErrUnknownPeer)
	}
}

func TestSendNoConnectedPeers(t *testing.T) {
	m, rec, tr := startedFake(t, "local")

	// connecting is not connected
	peer := newPeerID()
	tr.emit(&msgactor.TransportPeerState{Peer: peer, DisplayName: "A", State: Connecting})

	m.Send([]byte("red"))
	barrier(t, m, rec)

	_, sends := tr.calls()
	assert.Empty(t, sends)

	// only the barrier
	assert.Len(t, rec.errors(), 1)
}

func TestSend(t *testing.T) {
	m, rec, tr := startedFake(t, "local")

	a, b := newPeerID(), newPeerID()
	tr.emit(&msgactor.TransportPeerState{Peer: a, DisplayName: "A", State: Connected})
	tr.emit(&msgactor.TransportPeerState{Peer: b, DisplayName: "B", State: Connected})

	payload := []byte("red")
	m.Send(payload)
	// the manager keeps its own copy
	payload[0] = 'b'

	m.SendTo([]byte("yellow"), b, newPeerID())
	barrier(t, m, rec)

	_, sends := tr.calls()
	if assert.Len(t, sends, 2) {
		assert.Equal(t, []byte("red"), sends[0].payload)
		assert.ElementsMatch(t, []key.PeerPublic{a, b}, sends[0].peers)

		assert.Equal(t, []byte("yellow"), sends[1].payload)
		assert.Equal(t, []key.PeerPublic{b}, sends[1].peers)
	}
}

func TestSendFailureReported(t *testing.T) {
	m, rec, tr := startedFake(t, "local")

	boom := errors.New("boom")
	tr.mu.Lock()
	tr.sendErr = boom
	tr.mu.Unlock()

	tr.emit(&msgactor.TransportPeerState{Peer: newPeerID(), DisplayName: "A", State: Connected})

	m.Send([]byte("red"))

	assert.Eventually(t, func() bool {
		return len(rec.errors()) == 1
	}, assertEventuallyTimeout, assertEventuallyTick)

	err := rec.errors()[0]
	assert.ErrorIs(t, err, ErrSendFailure)
	assert.ErrorIs(t, err, boom)
}

func TestConnectivityChanged(t *testing.T) {
	m, rec, tr := startedFake(t, "local")

	peer := newPeerID()
	tr.emit(&msgactor.TransportPeerFound{Peer: peer, DisplayName: "A"})

	tr.emit(&msgactor.TransportPeerState{Peer: peer, State: Connecting})
	tr.emit(&msgactor.TransportPeerState{Peer: peer, State: Connecting})
	tr.emit(&msgactor.TransportPeerState{Peer: peer, State: Connected})

	barrier(t, m, rec)

	assert.Equal(t, Connected, m.SessionState(peer))
	// the name comes from discovery
	assert.Equal(t, []string{"A"}, m.Connected().DisplayNames())

	ups := rec.connUpdates()
	if assert.Len(t, ups, 3) {
		assert.Empty(t, ups[0])
		assert.Empty(t, ups[1])
		assert.Equal(t, []string{"A"}, ups[2].DisplayNames())
	}

	tr.emit(&msgactor.TransportPeerState{Peer: peer, State: NotConnected})
	barrier(t, m, rec)

	assert.Equal(t, NotConnected, m.SessionState(peer))
	assert.Empty(t, m.Connected())
	assert.Len(t, rec.connUpdates(), 4)

	// a repeated NotConnected is still reported
	tr.emit(&msgactor.TransportPeerState{Peer: peer, State: NotConnected})
	barrier(t, m, rec)

	assert.Len(t, rec.connUpdates(), 5)
}

func TestMessageReceived(t *testing.T) {
	m, rec, tr := startedFake(t, "local")

	peer := newPeerID()
	tr.emit(&msgactor.TransportPeerState{Peer: peer, DisplayName: "A", State: Connected})

	payload := []byte{0x00, 0xff, 'r', 'e', 'd'}
	tr.emit(&msgactor.TransportData{Peer: peer, Payload: payload})

	barrier(t, m, rec)

	msgs := rec.received()
	if assert.Len(t, msgs, 1) {
		assert.Equal(t, Peer{ID: peer, DisplayName: "A"}, msgs[0].from)
		assert.Equal(t, payload, msgs[0].payload)
	}
}

func TestInvitationPolicy(t *testing.T) {
	m, rec, tr := startedFake(t, "local", func(o *Options) {
		o.InvitationPolicy = func(from Peer) bool {
			return from.DisplayName != "mallory"
		}
	})

	answers := make(chan bool, 2)
	respond := func(accept bool) {
		answers <- accept
	}

	tr.emit(&msgactor.TransportInvitation{Peer: newPeerID(), DisplayName: "mallory", Respond: respond})
	tr.emit(&msgactor.TransportInvitation{Peer: newPeerID(), DisplayName: "A", Respond: respond})

	barrier(t, m, rec)

	assert.False(t, <-answers)
	assert.True(t, <-answers)
}

func TestDefaultPolicyAcceptsAll(t *testing.T) {
	m, rec, tr := startedFake(t, "local")

	answers := make(chan bool, 1)
	tr.emit(&msgactor.TransportInvitation{Peer: newPeerID(), DisplayName: "A", Respond: func(accept bool) {
		answers <- accept
	}})

	barrier(t, m, rec)

	assert.True(t, <-answers)
}

func TestTransportFailuresReported(t *testing.T) {
	m, rec, tr := startedFake(t, "local")

	boom := errors.New("boom")
	tr.emit(&msgactor.TransportAdvertiseFailed{Err: boom})
	tr.emit(&msgactor.TransportBrowseFailed{Err: boom})

	barrier(t, m, rec)

	errs := rec.errors()
	if assert.Len(t, errs, 3) {
		assert.ErrorIs(t, errs[0], ErrAdvertise)
		assert.ErrorIs(t, errs[1], ErrBrowse)
	}
}

func TestCustomExecutor(t *testing.T) {
	var ran []string

	// inline, on the manager's goroutine
	done := make(chan struct{}, 16)
	exec := ExecutorFunc(func(fn func()) {
		fn()
		done <- struct{}{}
	})

	_, _, tr := startedFake(t, "local", func(o *Options) {
		o.Executor = exec
		o.Handlers.PeersChanged = func(peers Peers) {
			ran = append(ran, peers.DisplayNames()...)
		}
	})

	tr.emit(&msgactor.TransportPeerFound{Peer: newPeerID(), DisplayName: "A"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("executor not used")
	}

	assert.Equal(t, []string{"A"}, ran)
}

func TestRestartAfterTransportFailure(t *testing.T) {
	m, rec, tr := startedFake(t, "local")

	peer := newPeerID()
	tr.emit(&msgactor.TransportPeerFound{Peer: peer, DisplayName: "A"})

	boom := errors.New("boom")
	tr.emit(&msgactor.TransportAdvertiseFailed{Err: boom})
	tr.emit(&msgactor.TransportBrowseFailed{Err: boom})

	barrier(t, m, rec)

	assert.False(t, m.Advertiser().Advertising())
	assert.False(t, m.Browser().Browsing())

	// peers seen before the failure are forgotten
	assert.Empty(t, m.Peers())
	assert.Equal(t, []string{}, rec.lastPeerNames())

	assert.NoError(t, m.Advertiser().Start())
	assert.NoError(t, m.Browser().Start())

	adv, browse := tr.starts()
	assert.Equal(t, 2, adv)
	assert.Equal(t, 2, browse)

	assert.True(t, m.Advertiser().Advertising())
	assert.True(t, m.Browser().Browsing())
}

func TestBrowserStopForgetsPeers(t *testing.T) {
	m, rec, tr := startedFake(t, "local")

	peer := newPeerID()
	tr.emit(&msgactor.TransportPeerFound{Peer: peer, DisplayName: "A"})
	barrier(t, m, rec)

	assert.Equal(t, []string{"A"}, m.Peers().DisplayNames())

	m.Browser().Stop()

	assert.Empty(t, m.Peers())
	assert.Equal(t, []string{}, rec.lastPeerNames())

	// left over from before Stop
	tr.emit(&msgactor.TransportPeerFound{Peer: peer, DisplayName: "A"})
	barrier(t, m, rec)

	assert.Empty(t, m.Peers())

	assert.NoError(t, m.Browser().Start())
	assert.Empty(t, m.Peers())

	// no longer discovered, so it can't be invited
	m.Invite(peer)
	barrier(t, m, rec)

	invites, _ := tr.calls()
	assert.Empty(t, invites)
}

func TestStreamAndResourceIgnored(t *testing.T) {
	m, rec, tr := startedFake(t, "local")

	peer := newPeerID()
	tr.emit(&msgactor.TransportStream{Peer: peer, Name: "colors"})
	tr.emit(&msgactor.TransportResource{Peer: peer, Name: "photo", Finished: true, Err: errors.New("cancelled")})

	barrier(t, m, rec)

	assert.Equal(t, NotConnected, m.SessionState(peer))
	assert.Empty(t, rec.peerUpdates())
	assert.Empty(t, rec.connUpdates())
	assert.Empty(t, rec.received())

	// only the barrier
	assert.Len(t, rec.errors(), 1)
}
