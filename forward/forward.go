//go:build linux

// Package forward pumps bytes between two packet engines, either as raw
// chunks or as whole packets. It serves gateway setups such as exposing a
// serial device over TCP: a slow upstream is re-chunked by the per-side
// timeout before being written into the downstream.
package forward

import (
	"time"

	"github.com/c360/iodriver/driver"
	"github.com/c360/iodriver/errors"
	"github.com/c360/iodriver/stream"
)

// Mode selects how bytes are read from each side.
type Mode int

const (
	// Raw forwards arbitrary chunks as they arrive, bounded by the
	// per-side timeout.
	Raw Mode = iota
	// Packet forwards only complete packets, framed by each engine's own
	// extractor. Partial packets are never delivered to the other side.
	Packet
)

// Options configures a Forward run.
type Options struct {
	// Mode selects raw or packetized forwarding. Defaults to Raw.
	Mode Mode
	// BufferSize is the chunk buffer size. It must be at least the
	// larger MaxPacketSize of the two engines in Packet mode. Defaults
	// to the larger MaxPacketSize.
	BufferSize int
	// TimeoutA bounds reads from engine A, TimeoutB reads from engine B.
	TimeoutA time.Duration
	TimeoutB time.Duration
	// OneWay restricts the pump to the A-to-B direction.
	OneWay bool
	// PollInterval bounds how long one poll waits before rechecking EOF.
	// Defaults to 10 seconds.
	PollInterval time.Duration
}

// Forward pumps bytes between the two engines until one of them reports end
// of stream, or a poll error occurs. Both engines must be attached to
// FD-backed streams, and must not be used by other goroutines while the
// forwarder runs. Read timeouts on either side are not errors; they bound
// latency versus fragmentation.
func Forward(a, b *driver.Driver, opts Options) error {
	bufferSize := opts.BufferSize
	if minimum := maxPacketSize(a, b); bufferSize < minimum {
		bufferSize = minimum
	}
	pollInterval := opts.PollInterval
	if pollInterval == 0 {
		pollInterval = 10 * time.Second
	}

	buffer := make([]byte, bufferSize)
	fdA := a.FileDescriptor()
	fdB := b.FileDescriptor()
	if fdA == stream.InvalidFD || fdB == stream.InvalidFD {
		return errors.NewInvalid("forward", "both engines must be attached to FD-backed streams")
	}

	fds := []int{fdA, fdB}
	if opts.OneWay {
		fds = fds[:1]
	}

	for !a.EOF() && !b.EOF() {
		ready, err := stream.SelectRead(fds, pollInterval)
		if err != nil {
			return err
		}

		if ready[0] {
			if err := pump(a, b, buffer, opts.Mode, opts.TimeoutA); err != nil {
				return err
			}
		}
		if !opts.OneWay && ready[1] {
			if err := pump(b, a, buffer, opts.Mode, opts.TimeoutB); err != nil {
				return err
			}
		}
	}
	return nil
}

// pump moves one chunk or packet from src to dst, ignoring read timeouts.
func pump(src, dst *driver.Driver, buffer []byte, mode Mode, timeout time.Duration) error {
	var size int
	var err error
	if mode == Raw {
		size, err = src.ReadRawTimeout(buffer, timeout, timeout, 0)
	} else {
		size, err = src.ReadPacketTimeout(buffer, timeout, timeout)
	}
	if err != nil {
		if errors.IsTimeout(err) {
			return nil
		}
		return err
	}
	if size == 0 {
		return nil
	}
	return dst.WritePacket(buffer[:size])
}

func maxPacketSize(a, b *driver.Driver) int {
	if a.MaxPacketSize() > b.MaxPacketSize() {
		return a.MaxPacketSize()
	}
	return b.MaxPacketSize()
}
