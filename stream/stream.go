// Package stream provides the transport abstraction used by the packet
// engine. A Stream is a non-blocking byte channel with bounded readiness
// waits. Implementations cover raw file descriptors (serial devices, files,
// connected sockets), single-client TCP servers, connection-oriented UDP
// sockets with ICMP error masking, WebSocket connections, and a deterministic
// in-memory stream for tests.
//
// All reads and writes are non-blocking: a Read that has no data available
// returns 0 without error, and a Write may accept fewer bytes than offered.
// WaitRead and WaitWrite are the only suspension points; both return false
// when the timeout expires without the stream becoming ready.
package stream

import "time"

// InvalidFD is returned by FileDescriptor for streams that are not backed by
// a pollable file descriptor.
const InvalidFD = -1

// Stream is a generic IO handler that allows to wait, read and write on a
// byte transport. The standard io interfaces are not used because the packet
// engine needs non-blocking semantics plus bounded readiness waits.
type Stream interface {
	// WaitRead blocks until a subsequent Read is expected to make
	// progress, or until timeout expires. It returns false on timeout.
	// Interrupted waits are retried within the timeout budget.
	WaitRead(timeout time.Duration) (bool, error)

	// WaitWrite blocks until a subsequent Write is expected to make
	// progress, or until timeout expires. It returns false on timeout.
	WaitWrite(timeout time.Duration) (bool, error)

	// Read copies available bytes into p without blocking. It returns 0
	// when no data is available right now.
	Read(p []byte) (int, error)

	// Write submits bytes from p without blocking. It may accept only a
	// prefix; the returned count is in [0, len(p)].
	Write(p []byte) (int, error)

	// Clear drains whatever input is currently queued on the transport.
	Clear() error

	// EOF reports whether the peer has closed and all data was drained.
	EOF() bool

	// FileDescriptor returns the underlying pollable descriptor, or
	// InvalidFD when the stream is not FD-backed.
	FileDescriptor() int

	// Close releases the transport. It is idempotent.
	Close() error
}

// HasIO reports whether the stream has input ready within the given timeout.
// It is a convenience alias for WaitRead and returns false on timeout.
func HasIO(s Stream, timeout time.Duration) (bool, error) {
	return s.WaitRead(timeout)
}
