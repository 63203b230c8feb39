//go:build linux

package stream

import (
	"log/slog"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/c360/iodriver/errors"
)

// TCPServerStream implements Stream over a listening TCP socket that serves
// at most one client at a time. Reads and writes target the accepted client
// descriptor; while no client is connected they report no progress. Accepting
// is folded into the readiness waits: when the listening socket becomes
// readable the pending connection is accepted and replaces any current
// client.
type TCPServerStream struct {
	fd       int
	clientFD int
	eof      bool
	closed   bool
}

var _ Stream = (*TCPServerStream)(nil)

// NewTCPServerStream wraps an already listening, non-blocking socket.
func NewTCPServerStream(listenFD int) *TCPServerStream {
	return &TCPServerStream{fd: listenFD, clientFD: InvalidFD}
}

// ClientConnected reports whether a client is currently accepted.
func (s *TCPServerStream) ClientConnected() bool { return s.clientFD != InvalidFD }

// WaitRead implements Stream. Readiness of the listening socket triggers an
// accept; readiness of the client socket completes the wait.
func (s *TCPServerStream) WaitRead(timeout time.Duration) (bool, error) {
	return s.wait(timeout)
}

// WaitWrite implements Stream.
func (s *TCPServerStream) WaitWrite(timeout time.Duration) (bool, error) {
	return s.wait(timeout)
}

func (s *TCPServerStream) wait(timeout time.Duration) (bool, error) {
	fds := []int{s.fd}
	if s.clientFD != InvalidFD {
		fds = append(fds, s.clientFD)
	}
	ready, err := SelectRead(fds, timeout)
	if err != nil {
		return false, err
	}
	if ready[0] {
		if err := s.acceptClient(); err != nil {
			return false, err
		}
		return true, nil
	}
	return len(ready) > 1 && ready[1], nil
}

// acceptClient accepts the pending connection, replacing any current client.
func (s *TCPServerStream) acceptClient() error {
	newClient, _, err := syscall.Accept(s.fd)
	if err != nil {
		return errors.NewUnix("accept", "error accepting the pending connection", err)
	}
	if s.clientFD != InvalidFD {
		slog.Info("new client replaces the current one, closing the previous connection", "fd", s.clientFD)
		syscall.Close(s.clientFD)
	}
	if _, err := setNonBlockingFlag(newClient); err != nil {
		syscall.Close(newClient)
		return err
	}
	s.clientFD = newClient
	return nil
}

// Read implements Stream. Without a connected client it reports no data.
func (s *TCPServerStream) Read(p []byte) (int, error) {
	if s.clientFD == InvalidFD {
		return 0, nil
	}
	c, err := syscall.Read(s.clientFD, p)
	if c > 0 {
		return c, nil
	}
	if err == nil {
		s.eof = true
		return 0, nil
	}
	if err == syscall.EAGAIN {
		return 0, nil
	}
	return 0, errors.NewUnix("read", "error reading the client connection", err)
}

// Write implements Stream. Without a connected client it accepts nothing.
func (s *TCPServerStream) Write(p []byte) (int, error) {
	if s.clientFD == InvalidFD {
		return 0, nil
	}
	c, err := syscall.Write(s.clientFD, p)
	if err != nil {
		if err == syscall.EAGAIN || err == syscall.ENOBUFS {
			return 0, nil
		}
		return 0, errors.NewUnix("write", "error writing the client connection", err)
	}
	return c, nil
}

// Clear implements Stream by draining the client connection.
func (s *TCPServerStream) Clear() error {
	if s.clientFD == InvalidFD {
		return nil
	}
	var scratch [256]byte
	for {
		c, err := syscall.Read(s.clientFD, scratch[:])
		if c <= 0 || err != nil {
			return nil
		}
	}
}

// EOF implements Stream.
func (s *TCPServerStream) EOF() bool { return s.eof }

// FileDescriptor returns the client descriptor, or InvalidFD when no client
// is connected.
func (s *TCPServerStream) FileDescriptor() int { return s.clientFD }

// ListenerFileDescriptor returns the listening descriptor.
func (s *TCPServerStream) ListenerFileDescriptor() int { return s.fd }

// Close implements Stream, releasing both the client and listening sockets.
func (s *TCPServerStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var result *multierror.Error
	if s.clientFD != InvalidFD {
		if err := syscall.Close(s.clientFD); err != nil {
			result = multierror.Append(result, errors.NewUnix("close", "error closing the client connection", err))
		}
		s.clientFD = InvalidFD
	}
	if err := syscall.Close(s.fd); err != nil {
		result = multierror.Append(result, errors.NewUnix("close", "error closing the server socket", err))
	}
	return result.ErrorOrNil()
}
