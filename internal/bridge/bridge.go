// Package bridge wires the protocol codec, command queue, and connection
// manager together and exposes the in-process submit API consumed by the
// HTTP layer. No business logic lives here beyond wiring and lifecycle
// ordering.
package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/chaz8081/istrip-bridge/internal/ble"
	"github.com/chaz8081/istrip-bridge/internal/ble/protocol"
)

// Options configures the bridge.
type Options struct {
	QueueCapacity int
	Manager       ble.ManagerOptions
}

// Status is a snapshot of the bridge's health for observability endpoints.
type Status struct {
	Address   string    `json:"address"`
	State     ble.State `json:"-"`
	Connected bool      `json:"connected"`
	Reachable bool      `json:"reachable"`
	QueueLen  int       `json:"queue_len"`
}

// Bridge owns one command queue and one connection manager for a single
// strip.
type Bridge struct {
	codec   *protocol.Codec
	queue   *ble.Queue
	manager *ble.Manager
	adapter ble.Adapter
	address string

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New builds a bridge for the strip at address. The key is the device's
// 16-byte AES key; opts.Manager.CharacteristicUUID names the control
// characteristic frames are written to.
func New(adapter ble.Adapter, address string, key []byte, opts Options) (*Bridge, error) {
	if address == "" {
		return nil, fmt.Errorf("bridge: device address must not be empty")
	}
	codec, err := protocol.NewCodec(key, opts.Manager.CharacteristicUUID)
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	queue := ble.NewQueue(opts.QueueCapacity)
	return &Bridge{
		codec:   codec,
		queue:   queue,
		manager: ble.NewManager(adapter, queue, codec, address, opts.Manager),
		adapter: adapter,
		address: address,
		done:    make(chan struct{}),
	}, nil
}

// Start enables the adapter and launches the manager's connect/drain cycle.
func (b *Bridge) Start() error {
	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("bridge: enable adapter: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go func() {
		defer close(b.done)
		b.manager.Run(ctx)
	}()
	return nil
}

// Submit validates and enqueues a command, fire-and-forget. It rejects
// synchronously with protocol.ErrUnsupportedCommand, ble.ErrQueueFull, or
// ble.ErrShutdown; delivery outcome is reported on the command's result
// channel if one was attached.
func (b *Bridge) Submit(cmd *protocol.Command) error {
	if err := protocol.Validate(cmd); err != nil {
		return err
	}
	return b.queue.Enqueue(cmd)
}

// SubmitWait submits a command and blocks until it reaches the device or
// fails terminally.
func (b *Bridge) SubmitWait(ctx context.Context, cmd *protocol.Command) error {
	cmd.WithResult()
	if err := b.Submit(cmd); err != nil {
		return err
	}
	return cmd.Wait(ctx)
}

// Status returns a snapshot of connection and queue health.
func (b *Bridge) Status() Status {
	state := b.manager.State()
	return Status{
		Address:   b.address,
		State:     state,
		Connected: state == ble.StateConnected,
		Reachable: b.manager.Reachable(),
		QueueLen:  b.queue.Len(),
	}
}

// Close drains and stops the bridge: intake stops first so the manager can
// fail the remaining commands, then the run loop is cancelled and awaited.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.queue.Close()
		if b.cancel != nil {
			b.cancel()
			<-b.done
		}
	})
	return nil
}
