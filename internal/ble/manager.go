package ble

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/chaz8081/istrip-bridge/internal/ble/protocol"
)

// State is the connection manager's lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// ManagerOptions configures the connection manager's behavior.
type ManagerOptions struct {
	ServiceUUID        string        // empty searches all primary services
	CharacteristicUUID string        // control characteristic for command frames
	BackoffMax         int           // max reconnect backoff in seconds
	HealthInterval     time.Duration // period between health-check reads
	FailureThreshold   int           // consecutive connect failures before the device is flagged unreachable
	WriteRate          float64       // sustained command writes per second
	WriteBurst         int
}

// DefaultManagerOptions returns sensible defaults.
func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{
		BackoffMax:       30,
		HealthInterval:   15 * time.Second,
		FailureThreshold: 5,
		WriteRate:        20,
		WriteBurst:       5,
	}
}

// Manager owns the BLE link to the strip: connect, health-check,
// reconnect-with-backoff, and sequential draining of the command queue onto
// the link. It is the only component that touches the connection; producers
// interact solely through the queue and command result channels.
type Manager struct {
	adapter Adapter
	queue   *Queue
	codec   *protocol.Codec
	address string
	opts    ManagerOptions
	limiter *rate.Limiter

	state       atomic.Int32
	unreachable atomic.Bool

	// disconnectCh receives peer-disconnect notifications from the BLE
	// stack's callback, turning them into an event the drain loop selects on.
	disconnectCh chan struct{}

	mu      sync.Mutex
	conn    Connection
	control Characteristic
	health  Characteristic
	pending *protocol.Command // dequeued but not yet delivered; replayed first after reconnect
}

// NewManager creates a connection manager for the device at address. The
// queue is drained onto the link only while connected.
func NewManager(adapter Adapter, queue *Queue, codec *protocol.Codec, address string, opts ManagerOptions) *Manager {
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 30
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = 15 * time.Second
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.WriteRate <= 0 {
		opts.WriteRate = 20
	}
	if opts.WriteBurst <= 0 {
		opts.WriteBurst = 5
	}
	return &Manager{
		adapter:      adapter,
		queue:        queue,
		codec:        codec,
		address:      address,
		opts:         opts,
		limiter:      rate.NewLimiter(rate.Limit(opts.WriteRate), opts.WriteBurst),
		disconnectCh: make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Reachable reports whether the device responded to a recent connect
// attempt. It turns false after FailureThreshold consecutive failures and
// true again on the next successful connect; the manager keeps retrying
// either way.
func (m *Manager) Reachable() bool {
	return !m.unreachable.Load()
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

// Run drives the connect/drain/reconnect cycle until ctx is cancelled or
// the queue is closed. On exit every command with a pending result channel
// receives a terminal outcome.
func (m *Manager) Run(ctx context.Context) {
	defer m.finalize()
	for {
		if !m.connectLoop(ctx) {
			return
		}
		if !m.drain(ctx) {
			return
		}
		// Connection lost: loop back into the reconnect cycle. Queued and
		// in-flight commands are retained and replayed in order.
	}
}

// connectLoop attempts to connect with exponential backoff until it
// succeeds or ctx is cancelled. Returns false on cancellation.
func (m *Manager) connectLoop(ctx context.Context) bool {
	m.setState(StateConnecting)
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt-1, m.opts.BackoffMax)
			slog.Info("[BLE] reconnect backoff", "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return false
			}
		}
		if ctx.Err() != nil {
			return false
		}

		conn, err := m.adapter.Connect(ctx, m.address)
		if err != nil {
			slog.Warn("[BLE] connect failed", "address", m.address, "attempt", attempt+1, "error", err)
			if attempt+1 >= m.opts.FailureThreshold && m.unreachable.CompareAndSwap(false, true) {
				slog.Error("[BLE] device unreachable, still retrying", "address", m.address, "failures", attempt+1)
			}
			continue
		}

		control, err := conn.DiscoverCharacteristic(m.opts.ServiceUUID, m.opts.CharacteristicUUID)
		if err != nil {
			slog.Warn("[BLE] discover control characteristic failed", "error", err)
			conn.Disconnect()
			continue
		}

		// Health probe characteristic is best-effort; every peripheral
		// should expose Generic Access, but a missing one only disables
		// the periodic liveness read.
		health, err := conn.DiscoverCharacteristic(GenericAccessServiceUUID, DeviceNameCharUUID)
		if err != nil {
			slog.Warn("[BLE] health characteristic unavailable, liveness checks disabled", "error", err)
			health = nil
		}

		conn.OnDisconnect(m.signalDisconnect)

		m.mu.Lock()
		m.conn = conn
		m.control = control
		m.health = health
		m.mu.Unlock()

		m.unreachable.Store(false)
		slog.Info("[BLE] connected", "address", m.address)
		return true
	}
}

// drain processes commands one at a time while connected. Returns true if
// the connection was lost (caller reconnects) or false on shutdown.
func (m *Manager) drain(ctx context.Context) bool {
	m.setState(StateConnected)

	ticker := time.NewTicker(m.opts.HealthInterval)
	defer ticker.Stop()

	for {
		// A command retained from a failed delivery goes out first to
		// preserve submission order across reconnects.
		if cmd := m.takePending(); cmd != nil {
			if !m.deliver(ctx, cmd) {
				return true
			}
			continue
		}

		select {
		case <-ctx.Done():
			return false
		case <-m.disconnectCh:
			slog.Warn("[BLE] peer disconnected")
			m.teardown()
			return true
		case <-ticker.C:
			if !m.healthCheck() {
				m.teardown()
				return true
			}
		case cmd, ok := <-m.queue.commands():
			if !ok {
				return false
			}
			if !m.deliver(ctx, cmd) {
				return true
			}
		}
	}
}

// deliver encodes and writes a single command. Returns false if the
// connection was lost; the command is then retained for replay.
func (m *Manager) deliver(ctx context.Context, cmd *protocol.Command) bool {
	frame, err := m.codec.Encode(cmd)
	if err != nil {
		// Invalid command: fail it and keep the connection. Submit
		// validates up front, so this only fires for commands built
		// outside the bridge.
		slog.Warn("[BLE] dropping unencodable command", "kind", cmd.Kind, "error", err)
		cmd.Complete(err)
		return true
	}

	if err := m.limiter.Wait(ctx); err != nil {
		m.setPending(cmd)
		return false
	}

	control := m.controlChar()
	if control == nil {
		m.setPending(cmd)
		return false
	}
	if err := control.Write(frame.Bytes); err != nil {
		slog.Warn("[BLE] write failed, reconnecting", "kind", cmd.Kind, "error", err)
		m.setPending(cmd)
		m.teardown()
		return false
	}

	cmd.Complete(nil)
	return true
}

// healthCheck reads the device-name characteristic to detect silent drops.
// BLE links can look alive at the OS level after the peripheral has stopped
// responding.
func (m *Manager) healthCheck() bool {
	health := m.healthChar()
	if health == nil {
		return true
	}
	if _, err := health.Read(); err != nil {
		slog.Warn("[BLE] health check failed, reconnecting", "error", err)
		return false
	}
	return true
}

// signalDisconnect delivers a peer-disconnect notification into the drain
// loop. Non-blocking: one pending signal is enough.
func (m *Manager) signalDisconnect() {
	select {
	case m.disconnectCh <- struct{}{}:
	default:
	}
}

// teardown closes the current connection and clears characteristic handles.
func (m *Manager) teardown() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.control = nil
	m.health = nil
	m.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
	}

	// Swallow a stale disconnect signal from the connection just closed so
	// it cannot tear down the next one.
	select {
	case <-m.disconnectCh:
	default:
	}
}

// finalize completes shutdown: fails the in-flight and remaining queued
// commands so no result channel is left unresolved, then closes the link.
func (m *Manager) finalize() {
	m.setState(StateDraining)
	if cmd := m.takePending(); cmd != nil {
		cmd.Complete(ErrShutdown)
	}
	for _, cmd := range m.queue.Drain() {
		cmd.Complete(ErrShutdown)
	}
	m.teardown()
	m.setState(StateDisconnected)
	slog.Info("[BLE] manager stopped")
}

func (m *Manager) controlChar() Characteristic {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.control
}

func (m *Manager) healthChar() Characteristic {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health
}

func (m *Manager) setPending(cmd *protocol.Command) {
	m.mu.Lock()
	m.pending = cmd
	m.mu.Unlock()
}

func (m *Manager) takePending() *protocol.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd := m.pending
	m.pending = nil
	return cmd
}

// backoffDelay returns the reconnection delay for attempt n, capped at
// maxSeconds.
func backoffDelay(attempt int, maxSeconds int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	max := time.Duration(maxSeconds) * time.Second
	if delay > max {
		return max
	}
	return delay
}
