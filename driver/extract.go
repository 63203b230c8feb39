package driver

import (
	"time"

	"github.com/c360/iodriver/errors"
)

// findPacket reduces buf to the pair (skip, size): the number of bytes
// preceding the best packet candidate and that candidate's length. A size of
// zero means no complete packet was found; skip then counts the bytes that
// can already be ruled out.
//
// In extract-last mode the scan continues past a complete packet and later
// packets supersede earlier ones. Statistics for extract-last are accounted
// here, while scanning, so that superseded packets still count as received.
func (d *Driver) findPacket(ex Extractor, buf []byte, updateStats bool) (skip, size int, err error) {
	bestStart, bestSize := 0, 0
	off := 0
	for off < len(buf) {
		view := buf[off:]
		n := len(view)

		r := ex.ExtractPacket(view)
		if r > n || r < -n {
			return 0, 0, errors.Lengthf("extractPacket",
				"extractPacket() returned %d, which is out of range for a buffer of size %d", r, n)
		}

		if r == 0 {
			// valid prefix; an already found packet stands
			if bestSize > 0 {
				return bestStart, bestSize, nil
			}
			return off, 0, nil
		}

		var curSkip, curSize int
		if r < 0 {
			curSkip = -r
		} else {
			curSize = r
		}

		if updateStats && d.extractLast {
			d.stats.Stamp = time.Now()
			d.stats.BadRx += curSkip
			d.stats.GoodRx += curSize
			if d.metrics != nil {
				d.metrics.recordRx(curSize, curSkip, d.fill)
			}
		}

		if curSize > 0 {
			bestStart, bestSize = off+curSkip, curSize
			if !d.extractLast {
				return bestStart, bestSize, nil
			}
		}

		off += curSkip + curSize
	}

	if bestSize > 0 {
		return bestStart, bestSize, nil
	}
	// the whole buffer was junk
	return off, 0, nil
}

// doPacketExtraction runs findPacket on the internal buffer, copies the
// found packet (if any) into out, discards the bytes preceding it and moves
// any trailing bytes to the front of the internal buffer.
func (d *Driver) doPacketExtraction(ex Extractor, out []byte) (int, error) {
	skip, size, err := d.findPacket(ex, d.buf[:d.fill], true)
	if err != nil {
		return 0, err
	}
	if !d.extractLast {
		d.stats.Stamp = time.Now()
		d.stats.BadRx += skip
		d.stats.GoodRx += size
	}
	d.pullBytesFromInternal(out, skip, size)
	if d.metrics != nil {
		if d.extractLast {
			// counters were tracked during the scan; refresh the gauge
			d.metrics.recordRx(0, 0, d.fill)
		} else {
			d.metrics.recordRx(size, skip, d.fill)
		}
	}
	return size, nil
}

// pullBytesFromInternal removes skip+size bytes from the front of the
// internal buffer, copying the size bytes that follow the skipped region
// into out.
func (d *Driver) pullBytesFromInternal(out []byte, skip, size int) {
	total := skip + size
	copy(out, d.buf[skip:total])
	copy(d.buf, d.buf[total:d.fill])
	d.fill -= total
}

// extractPacketFromInternalBuffer serves ReadPacket when no stream is
// attached: it extracts from whatever the internal buffer holds.
func (d *Driver) extractPacketFromInternalBuffer(ex Extractor, out []byte) (int, error) {
	result := 0
	for d.fill > 0 {
		size, err := d.doPacketExtraction(ex, out)
		if err != nil {
			return 0, err
		}
		if size > 0 {
			result = size
		}
		if size == 0 || !d.extractLast {
			break
		}
	}
	return result, nil
}

// readPacketInternal performs the non-blocking read step: it extracts from
// the internal buffer, then keeps consuming the stream until it drains,
// reporting the best packet found and whether any bytes arrived.
func (d *Driver) readPacketInternal(ex Extractor, out []byte) (packetSize int, received bool, err error) {
	if d.fill > 0 {
		size, err := d.doPacketExtraction(ex, out)
		if err != nil {
			return 0, false, err
		}
		if size > 0 && !d.extractLast {
			return size, false, nil
		}
		packetSize = size
	}

	for {
		c, err := d.stream.Read(d.buf[d.fill:d.maxPacketSize])
		if err != nil {
			return 0, received, err
		}
		if c == 0 {
			return packetSize, received, nil
		}

		d.notifyRead(d.buf[d.fill : d.fill+c])
		received = true
		d.fill += c

		size, err := d.doPacketExtraction(ex, out)
		if err != nil {
			return 0, received, err
		}
		if size > 0 {
			if !d.extractLast {
				return size, received, nil
			}
			packetSize = size
		}

		if d.fill == d.maxPacketSize {
			return 0, received, errors.NewLength("readPacket", "current packet too large for buffer")
		}
	}
}

// HasPacket reports whether the internal buffer already holds a complete
// packet. It mutates neither the buffer nor the statistics.
func (d *Driver) HasPacket() bool {
	if d.fill == 0 {
		return false
	}
	_, size, err := d.findPacket(d.extractor, d.buf[:d.fill], false)
	return err == nil && size > 0
}
