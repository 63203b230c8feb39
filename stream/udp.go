//go:build linux

package stream

import (
	"syscall"
	"time"

	"github.com/c360/iodriver/errors"
)

// UDPServerStream implements Stream over a datagram socket.
//
// The stream either learns its peer from the first datagram received
// (dynamic mode) or is pinned to a remote address at construction. Writes
// before any peer is known are reported as fully sent.
//
// Datagram sockets surface ICMP failures (port unreachable, host/network
// unreachable) as errors on later reads and writes. Three mask flags
// translate the corresponding errno to "no data" on read and "whole buffer
// sent" on write. An unmasked error discovered while waiting for readiness
// is latched and surfaced by the next Read, exactly once.
type UDPServerStream struct {
	fd        int
	autoClose bool
	eof       bool
	closed    bool

	peer        syscall.Sockaddr
	peerDynamic bool
	hasPeer     bool

	ignoreConnRefused bool
	ignoreHostUnreach bool
	ignoreNetUnreach  bool

	pendingErr error

	// hooks for tests
	recvfrom func(fd int, p []byte, flags int) (int, syscall.Sockaddr, error)
	sendto   func(fd int, p []byte, flags int, to syscall.Sockaddr) error
}

var _ Stream = (*UDPServerStream)(nil)

// NewUDPServerStream wraps a bound datagram socket whose peer is learned
// from the first received datagram. All error masks start enabled.
func NewUDPServerStream(fd int, autoClose bool) *UDPServerStream {
	return &UDPServerStream{
		fd:                fd,
		autoClose:         autoClose,
		peerDynamic:       true,
		ignoreConnRefused: true,
		ignoreHostUnreach: true,
		ignoreNetUnreach:  true,
		recvfrom:          syscall.Recvfrom,
		sendto:            syscall.Sendto,
	}
}

// NewUDPClientStream wraps a datagram socket pinned to the given peer
// address. All error masks start enabled.
func NewUDPClientStream(fd int, autoClose bool, peer syscall.Sockaddr) *UDPServerStream {
	s := NewUDPServerStream(fd, autoClose)
	s.peer = peer
	s.peerDynamic = false
	s.hasPeer = true
	return s
}

// SetIgnoreConnRefused controls masking of ECONNREFUSED.
func (s *UDPServerStream) SetIgnoreConnRefused(enable bool) { s.ignoreConnRefused = enable }

// SetIgnoreHostUnreach controls masking of EHOSTUNREACH.
func (s *UDPServerStream) SetIgnoreHostUnreach(enable bool) { s.ignoreHostUnreach = enable }

// SetIgnoreNetUnreach controls masking of ENETUNREACH.
func (s *UDPServerStream) SetIgnoreNetUnreach(enable bool) { s.ignoreNetUnreach = enable }

// ignored reports whether the errno is masked by configuration.
func (s *UDPServerStream) ignored(err error) bool {
	switch {
	case s.ignoreConnRefused && err == syscall.ECONNREFUSED:
		return true
	case s.ignoreHostUnreach && err == syscall.EHOSTUNREACH:
		return true
	case s.ignoreNetUnreach && err == syscall.ENETUNREACH:
		return true
	}
	return false
}

// WaitRead implements Stream. After the socket reports readable, a
// zero-length peek surfaces any pending ICMP error: a masked error consumes
// the wake and the wait resumes with the remaining budget; an unmasked error
// is latched for the next Read.
func (s *UDPServerStream) WaitRead(timeout time.Duration) (bool, error) {
	if s.pendingErr != nil {
		return true, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining < 0 {
			return false, nil
		}
		ready, err := waitFD(s.fd, false, remaining)
		if err != nil || !ready {
			return ready, err
		}

		// zero-length peek to surface a queued socket error
		_, _, err = s.recvfrom(s.fd, nil, syscall.MSG_PEEK)
		if err != nil {
			if s.ignored(err) {
				continue
			}
			s.pendingErr = err
		}
		return true, nil
	}
}

// WaitWrite implements Stream.
func (s *UDPServerStream) WaitWrite(timeout time.Duration) (bool, error) {
	return waitFD(s.fd, true, timeout)
}

// Read implements Stream. A latched wait error is surfaced here, once.
func (s *UDPServerStream) Read(p []byte) (int, error) {
	if s.pendingErr != nil {
		err := s.pendingErr
		s.pendingErr = nil
		return 0, errors.NewUnix("read", "error reading the datagram socket", err)
	}

	n, from, err := s.recvfrom(s.fd, p, 0)
	if err == nil {
		s.hasPeer = true
		if s.peerDynamic && from != nil {
			s.peer = from
		}
		if n == 0 {
			s.eof = true
		}
		return n, nil
	}
	if err == syscall.EAGAIN || s.ignored(err) {
		return 0, nil
	}
	return 0, errors.NewUnix("read", "error reading the datagram socket", err)
}

// Write implements Stream. Until a peer is known the buffer is reported as
// fully sent.
func (s *UDPServerStream) Write(p []byte) (int, error) {
	if !s.hasPeer {
		return len(p), nil
	}
	err := s.sendto(s.fd, p, 0, s.peer)
	if err != nil {
		if err == syscall.EAGAIN || err == syscall.ENOBUFS {
			return 0, nil
		}
		if s.ignored(err) {
			return len(p), nil
		}
		return 0, errors.NewUnix("write", "error writing the datagram socket", err)
	}
	return len(p), nil
}

// Clear implements Stream by draining queued datagrams.
func (s *UDPServerStream) Clear() error {
	var scratch [2048]byte
	for {
		n, _, err := s.recvfrom(s.fd, scratch[:], 0)
		if n <= 0 || err != nil {
			return nil
		}
	}
}

// EOF implements Stream.
func (s *UDPServerStream) EOF() bool { return s.eof }

// FileDescriptor implements Stream.
func (s *UDPServerStream) FileDescriptor() int { return s.fd }

// Close implements Stream.
func (s *UDPServerStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.autoClose {
		return nil
	}
	if err := syscall.Close(s.fd); err != nil {
		return errors.NewUnix("close", "error closing the datagram socket", err)
	}
	return nil
}
