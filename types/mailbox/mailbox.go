// Package mailbox provides an unbounded, ordered queue in front of an actor inbox,
// so event producers (transport callbacks, caller commands) never block on a busy actor.
package mailbox

import (
	"context"
	"sync"

	"github.com/edup2p/nearby/types/msgactor"
)

type Mailbox struct {
	ctx context.Context
	out chan<- msgactor.ActorMessage

	mu    sync.Mutex
	queue []msgactor.ActorMessage

	wake chan struct{}
}

// New starts forwarding posted messages to out, until ctx is done.
func New(ctx context.Context, out chan<- msgactor.ActorMessage) *Mailbox {
	m := &Mailbox{
		ctx:  ctx,
		out:  out,
		wake: make(chan struct{}, 1),
	}

	go m.run()

	return m
}

// Post queues a message, it never blocks.
//
// Messages posted after ctx is done are dropped.
func (m *Mailbox) Post(msg msgactor.ActorMessage) {
	if m.ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Mailbox) take() []msgactor.ActorMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queue
	m.queue = nil
	return q
}

func (m *Mailbox) run() {
	// drop whatever raced in before ctx ended
	defer m.take()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.wake:
		}

		for _, msg := range m.take() {
			select {
			case m.out <- msg:
			case <-m.ctx.Done():
				return
			}
		}
	}
}
