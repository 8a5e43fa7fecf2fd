package ble

import (
	"context"
	"sync"

	"github.com/chaz8081/istrip-bridge/internal/ble/protocol"
)

// DefaultQueueCapacity bounds pending commands during a sustained
// disconnect. The strip's commands are small; what matters is that a stalled
// link never grows memory without bound.
const DefaultQueueCapacity = 32

// Queue is a bounded FIFO mailbox of pending commands. Many producers
// enqueue concurrently; the manager's drain loop is the single consumer.
// Insertion order is the send order — strip commands are stateful, so
// reordering is never acceptable.
type Queue struct {
	mu     sync.Mutex
	ch     chan *protocol.Command
	closed bool
}

// NewQueue creates a queue holding at most capacity commands.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{ch: make(chan *protocol.Command, capacity)}
}

// Enqueue appends a command. It never blocks: a full queue returns
// ErrQueueFull immediately, a closed queue returns ErrShutdown.
func (q *Queue) Enqueue(cmd *protocol.Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrShutdown
	}
	select {
	case q.ch <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks until a command is available, the context is done, or the
// queue is closed and drained (ErrShutdown).
func (q *Queue) Dequeue(ctx context.Context) (*protocol.Command, error) {
	select {
	case cmd, ok := <-q.ch:
		if !ok {
			return nil, ErrShutdown
		}
		return cmd, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// commands exposes the underlying channel so the manager's drain loop can
// select across queue intake, disconnect signals, and health ticks at once.
func (q *Queue) commands() <-chan *protocol.Command {
	return q.ch
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops intake. Commands already queued remain readable via Dequeue
// or Drain until the channel empties.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Drain returns all remaining commands after Close, so their result
// channels can be completed rather than left hanging.
func (q *Queue) Drain() []*protocol.Command {
	var cmds []*protocol.Command
	for {
		select {
		case cmd, ok := <-q.ch:
			if !ok {
				return cmds
			}
			cmds = append(cmds, cmd)
		default:
			return cmds
		}
	}
}
