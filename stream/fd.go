//go:build linux

package stream

import (
	"log/slog"
	"syscall"
	"time"

	"github.com/c360/iodriver/errors"
)

// FDStream implements Stream for a raw file descriptor.
//
// The descriptor is switched to non-blocking mode on construction. A read
// returning 0 bytes marks EOF only when the stream was created with hasEOF
// set; serial-over-USB converters return spurious zero reads, so the serial
// factory disables EOF detection.
type FDStream struct {
	autoClose bool
	hasEOF    bool
	eof       bool
	closed    bool
	fd        int
}

var _ Stream = (*FDStream)(nil)

// NewFDStream wraps fd in a stream. When autoClose is set the descriptor is
// closed with the stream. The descriptor is put in non-blocking mode; a
// warning is logged if it had to be switched.
func NewFDStream(fd int, autoClose, hasEOF bool) (*FDStream, error) {
	switched, err := setNonBlockingFlag(fd)
	if err != nil {
		return nil, err
	}
	if switched {
		slog.Warn("file descriptor handed to the driver was in blocking mode, setting O_NONBLOCK", "fd", fd)
	}
	return &FDStream{autoClose: autoClose, hasEOF: hasEOF, fd: fd}, nil
}

// setNonBlockingFlag sets O_NONBLOCK on fd and reports whether the
// descriptor was in blocking mode.
func setNonBlockingFlag(fd int) (bool, error) {
	flags, err := fcntl(fd, syscall.F_GETFL, 0)
	if err != nil {
		return false, errors.NewUnix("fcntl", "cannot read descriptor flags", err)
	}
	if flags&syscall.O_NONBLOCK != 0 {
		return false, nil
	}
	if _, err := fcntl(fd, syscall.F_SETFL, flags|syscall.O_NONBLOCK); err != nil {
		return false, errors.NewUnix("fcntl", "cannot set the O_NONBLOCK flag", err)
	}
	return true, nil
}

// fcntl wraps the raw syscall; the syscall package does not export it.
func fcntl(fd, cmd, arg int) (int, error) {
	value, _, errno := syscall.Syscall(syscall.SYS_FCNTL, uintptr(fd), uintptr(cmd), uintptr(arg))
	if errno != 0 {
		return 0, errno
	}
	return int(value), nil
}

// SetAutoClose controls whether Close releases the underlying descriptor.
func (s *FDStream) SetAutoClose(flag bool) { s.autoClose = flag }

// WaitRead implements Stream.
func (s *FDStream) WaitRead(timeout time.Duration) (bool, error) {
	return waitFD(s.fd, false, timeout)
}

// WaitWrite implements Stream.
func (s *FDStream) WaitWrite(timeout time.Duration) (bool, error) {
	return waitFD(s.fd, true, timeout)
}

// Read implements Stream. EAGAIN is mapped to a zero-byte read.
func (s *FDStream) Read(p []byte) (int, error) {
	c, err := syscall.Read(s.fd, p)
	if c > 0 {
		return c, nil
	}
	if err == nil {
		if s.hasEOF {
			s.eof = true
		}
		return 0, nil
	}
	if err == syscall.EAGAIN {
		return 0, nil
	}
	return 0, errors.NewUnix("read", "error reading the file descriptor", err)
}

// Write implements Stream. EAGAIN and ENOBUFS are mapped to a zero-byte
// write.
func (s *FDStream) Write(p []byte) (int, error) {
	c, err := syscall.Write(s.fd, p)
	if err != nil {
		if err == syscall.EAGAIN || err == syscall.ENOBUFS {
			return 0, nil
		}
		return 0, errors.NewUnix("write", "error during write", err)
	}
	return c, nil
}

// Clear implements Stream by draining any queued input.
func (s *FDStream) Clear() error {
	var scratch [256]byte
	for {
		c, err := syscall.Read(s.fd, scratch[:])
		if c <= 0 || err != nil {
			return nil
		}
	}
}

// EOF implements Stream.
func (s *FDStream) EOF() bool { return s.eof }

// FileDescriptor implements Stream.
func (s *FDStream) FileDescriptor() int { return s.fd }

// Close implements Stream.
func (s *FDStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.autoClose {
		return nil
	}
	if err := syscall.Close(s.fd); err != nil {
		return errors.NewUnix("close", "error closing the file descriptor", err)
	}
	return nil
}
