package driver

import (
	"time"

	"github.com/c360/iodriver/errors"
)

// ReadPacket reads one complete packet into out using the default read
// timeout for both the packet and first-byte deadlines. out must be at least
// MaxPacketSize bytes. It returns the packet length.
func (d *Driver) ReadPacket(out []byte) (int, error) {
	return d.ReadPacketTimeout(out, d.readTimeout, d.readTimeout)
}

// ReadPacketTimeout reads one complete packet into out.
//
// firstByteTimeout bounds the wait for the first byte of the response;
// packetTimeout bounds the wait for the complete packet, counted from the
// start of the call. A timeout error reports which of the two deadlines
// expired.
func (d *Driver) ReadPacketTimeout(out []byte, packetTimeout, firstByteTimeout time.Duration) (int, error) {
	return d.readPacket(d.extractor, out, packetTimeout, firstByteTimeout)
}

// ReadPacketWith behaves like ReadPacketTimeout but frames with the given
// extractor instead of the driver's own. It exists for multiplexers that
// route several framings over one stream.
func (d *Driver) ReadPacketWith(ex Extractor, out []byte, packetTimeout, firstByteTimeout time.Duration) (int, error) {
	if ex == nil {
		return 0, errors.NewInvalid("readPacket", "an extractor is required")
	}
	return d.readPacket(ex, out, packetTimeout, firstByteTimeout)
}

func (d *Driver) readPacket(ex Extractor, out []byte, packetTimeout, firstByteTimeout time.Duration) (int, error) {
	if len(out) < d.maxPacketSize {
		return 0, errors.Lengthf("readPacket",
			"provided buffer too small (got %d, expected at least %d)", len(out), d.maxPacketSize)
	}

	if d.stream == nil {
		// No stream. Serve whatever the internal buffer still holds,
		// e.g. bytes left queued when the stream was closed.
		size, err := d.extractPacketFromInternalBuffer(ex, out)
		if err != nil {
			return 0, err
		}
		if size > 0 {
			return size, nil
		}
		return 0, errors.NewTimeout(errors.TimeoutPacket, "readPacket",
			"no packet in the internal buffer and no stream to read from")
	}

	timeoutKind := errors.TimeoutFirstByte
	first := packetTimeout
	if firstByteTimeout < first {
		first = firstByteTimeout
	}
	start := time.Now()
	deadline := start.Add(first)
	everReceived := false

	for {
		size, received, err := d.readPacketInternal(ex, out)
		if err != nil {
			return 0, err
		}
		if size > 0 {
			return size, nil
		}
		everReceived = everReceived || received

		if packetTimeout == 0 && !everReceived {
			return 0, errors.NewTimeout(errors.TimeoutFirstByte, "readPacket",
				"no data to read while a packet timeout of 0 was given")
		}

		if timeoutKind == errors.TimeoutFirstByte && received {
			deadline = start.Add(packetTimeout)
			timeoutKind = errors.TimeoutPacket
		}

		now := time.Now()
		if now.After(deadline) {
			return 0, errors.Timeoutf(timeoutKind, "readPacket",
				"no data after waiting %v", now.Sub(start))
		}

		ready, err := d.stream.WaitRead(deadline.Sub(now))
		if err != nil {
			return 0, err
		}
		if !ready {
			return 0, errors.Timeoutf(timeoutKind, "readPacket",
				"no data after waiting %v", time.Since(start))
		}
	}
}

// ReadRaw fills out with as many bytes as possible within the default read
// timeout, without attempting to frame packets.
func (d *Driver) ReadRaw(out []byte) (int, error) {
	return d.ReadRawTimeout(out, d.readTimeout, d.readTimeout, 0)
}

// ReadRawTimeout fills out with as many bytes as possible, subject to three
// deadlines running in parallel: firstByteTimeout until the first byte
// arrives, packetTimeout from the arrival of the first byte, and
// interByteTimeout restarted on every received byte. An interByteTimeout of
// zero falls back to packetTimeout.
//
// It returns the number of bytes placed in out and does not fail on
// timeout: expired deadlines simply produce a short (possibly zero) read.
// Bytes already queued in the internal buffer are drained first.
func (d *Driver) ReadRawTimeout(out []byte, packetTimeout, firstByteTimeout, interByteTimeout time.Duration) (int, error) {
	if d.stream == nil {
		return 0, errors.ErrNotOpen
	}

	fill := d.fill
	if fill > len(out) {
		fill = len(out)
	}
	d.pullBytesFromInternal(out, 0, fill)

	if firstByteTimeout > packetTimeout {
		firstByteTimeout = packetTimeout
	}
	if interByteTimeout == 0 {
		interByteTimeout = packetTimeout
	}

	now := time.Now()
	lastByte := now.Add(packetTimeout)
	received := false
	globalDeadline := now.Add(firstByteTimeout)

	for fill < len(out) && !now.After(globalDeadline) {
		deadline := lastByte.Add(interByteTimeout)
		if globalDeadline.Before(deadline) {
			deadline = globalDeadline
		}

		ready, err := d.stream.WaitRead(deadline.Sub(now))
		if err != nil {
			return fill, err
		}
		if !ready {
			break
		}

		c, err := d.stream.Read(out[fill:])
		if err != nil {
			return fill, err
		}
		now = time.Now()

		if c > 0 {
			lastByte = now
			if !received {
				globalDeadline = now.Add(packetTimeout)
				received = true
			}
			d.notifyRead(out[fill : fill+c])
		}
		fill += c
	}

	return fill, nil
}
