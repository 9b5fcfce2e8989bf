package nearby

import (
	"log/slog"
	"sync"

	"github.com/edup2p/nearby/types/ifaces"
)

var (
	_ ifaces.Executor = (*SerialExecutor)(nil)
	_ ifaces.Executor = ExecutorFunc(nil)
)

// ExecutorFunc adapts a function that schedules work (for example onto a UI loop) into an Executor.
type ExecutorFunc func(func())

func (f ExecutorFunc) Execute(fn func()) {
	f(fn)
}

// SerialExecutor runs callbacks one at a time on its own goroutine, in submission order.
//
// It is the default context handlers are called on.
type SerialExecutor struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool

	done chan struct{}
}

func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{
		done: make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)

	go e.run()

	return e
}

func (e *SerialExecutor) Execute(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	e.queue = append(e.queue, fn)
	e.cond.Signal()
}

// Close stops accepting callbacks; callbacks already queued still run.
func (e *SerialExecutor) Close() {
	e.mu.Lock()
	e.closed = true
	e.cond.Signal()
	e.mu.Unlock()
}

// Done is closed once every queued callback has run after Close.
func (e *SerialExecutor) Done() <-chan struct{} {
	return e.done
}

func (e *SerialExecutor) run() {
	defer close(e.done)

	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		fn := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.call(fn)
	}
}

func (e *SerialExecutor) call(fn func()) {
	defer func() {
		if v := recover(); v != nil {
			slog.Error("notification handler panicked", "panic", v)
		}
	}()

	fn()
}
