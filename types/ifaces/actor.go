package ifaces

import (
	"context"
	"time"

	"github.com/edup2p/nearby/types/key"
	"github.com/edup2p/nearby/types/msgactor"
)

type Actor interface {
	Run()

	Inbox() chan<- msgactor.ActorMessage

	Ctx() context.Context

	// Cancel this actor's context.
	Cancel()

	// Close is called by the Run loop when the context is done, to clean up
	Close()
}

// ===

// Transport is the peer-to-peer substrate below the session manager.
//
// All events (peers found and lost, invitations, session state changes, data,
// streams and resources) are delivered as msgactor messages to the attached inbox,
// in the order the transport observed them.
type Transport interface {
	// Attach sets the inbox for all events. Delivery stops once ctx is done.
	//
	// Must be called before any other method.
	Attach(ctx context.Context, inbox chan<- msgactor.ActorMessage)

	StartAdvertising() error
	StopAdvertising()

	StartBrowsing() error
	StopBrowsing()

	// Invite asks a discovered peer to join the local session.
	//
	// Returns immediately, the outcome arrives as msgactor.TransportPeerState events.
	Invite(peer key.PeerPublic, timeout time.Duration)

	// Send reliably delivers payload to each peer, and returns the failures of all
	// peers it could not deliver to, joined.
	Send(payload []byte, peers []key.PeerPublic) error

	// Disconnect leaves the session, dropping every connected peer.
	Disconnect()
}

// ===

// Executor runs notification callbacks on the caller's preferred context.
//
// Implementations must run callbacks one at a time, in submission order.
type Executor interface {
	Execute(func())
}
