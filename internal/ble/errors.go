package ble

import "errors"

var (
	// ErrQueueFull is returned by Enqueue when the queue is at capacity.
	// Backpressure is the caller's problem: retry, coalesce, or drop.
	ErrQueueFull = errors.New("ble: command queue full")

	// ErrShutdown is returned once the queue or manager has been shut down.
	ErrShutdown = errors.New("ble: shutting down")

	// ErrConnectionLost marks a command whose delivery was cut short by a
	// dropped connection and not retried.
	ErrConnectionLost = errors.New("ble: connection lost")
)
