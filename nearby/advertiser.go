package nearby

import (
	"fmt"
	"sync"

	"github.com/edup2p/nearby/types/msgactor"
)

// InvitationPolicy decides whether an invitation from a remote peer is accepted.
//
// It is called on the manager's goroutine, and must not block.
type InvitationPolicy func(from Peer) bool

// AcceptAll accepts every invitation.
func AcceptAll(Peer) bool {
	return true
}

// Advertiser announces the local peer under the manager's service tag, and answers invitations.
type Advertiser struct {
	m *Manager

	policy InvitationPolicy

	mu          sync.Mutex
	advertising bool
}

// Start begins announcing, it is a no-op while already advertising.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.advertising {
		return nil
	}

	if err := a.m.tr.StartAdvertising(); err != nil {
		L(a.m).Error("did not start advertising", "tag", a.m.tag, "err", err)
		return fmt.Errorf("%w: %w", ErrAdvertise, err)
	}

	a.advertising = true

	L(a.m).Debug("advertising", "tag", a.m.tag, "as", a.m.local.ID.Short())

	return nil
}

// Stop withdraws the announcement, it is safe to call multiple times.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.advertising {
		return
	}

	a.m.tr.StopAdvertising()
	a.advertising = false

	L(a.m).Debug("stopped advertising", "tag", a.m.tag)
}

func (a *Advertiser) Advertising() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.advertising
}

// failed runs on the manager's Run loop, after the transport withdrew the announcement on its own.
func (a *Advertiser) failed() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.advertising = false
}

// invited runs on the manager's Run loop.
func (a *Advertiser) invited(inv *msgactor.TransportInvitation) {
	from := Peer{ID: inv.Peer, DisplayName: inv.DisplayName}

	accept := a.policy(from)

	L(a.m).Info("received invitation", "from", inv.Peer.Short(), "name", inv.DisplayName, "accept", accept)

	inv.Respond(accept)
}
