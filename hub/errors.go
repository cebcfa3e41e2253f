package hub

import "errors"

var (
	// ErrRequestNotFound is returned when no pending human-input request
	// matches the given id.
	ErrRequestNotFound = errors.New("request not found")

	// ErrAgentNotConnected is returned when a response's owning agent has
	// no live connection to deliver to.
	ErrAgentNotConnected = errors.New("agent not connected")

	// ErrDuplicateConn is returned when a connection id is already
	// registered.
	ErrDuplicateConn = errors.New("connection id already registered")

	// ErrConnClosed is returned by Send after a connection has been closed.
	ErrConnClosed = errors.New("connection closed")

	// ErrQueueFull is returned by Send when a connection's outbound queue
	// is at capacity. The message is dropped, never queued late.
	ErrQueueFull = errors.New("outbound queue full")

	// ErrNotRunning is returned when the hub has no active listener.
	ErrNotRunning = errors.New("hub not running")
)
