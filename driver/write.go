package driver

import (
	"time"

	"github.com/c360/iodriver/errors"
	"github.com/c360/iodriver/pkg/deadline"
)

// WritePacket writes the whole buffer within the default write timeout.
func (d *Driver) WritePacket(buffer []byte) error {
	return d.WritePacketTimeout(buffer, d.writeTimeout)
}

// WritePacketTimeout writes the whole buffer, retrying partial writes until
// everything was accepted or the timeout expires. Listeners observe every
// accepted fragment. Partial success is never surfaced: the call either
// writes the full buffer or fails.
func (d *Driver) WritePacketTimeout(buffer []byte, timeout time.Duration) error {
	if d.stream == nil {
		return errors.ErrNotOpen
	}

	budget := deadline.New(timeout)
	written := 0
	for {
		c, err := d.stream.Write(buffer[written:])
		if err != nil {
			return err
		}
		if c > 0 {
			d.notifyWrite(buffer[written : written+c])
			written += c
		}

		if written == len(buffer) {
			d.stats.Stamp = time.Now()
			d.stats.Tx += len(buffer)
			if d.metrics != nil {
				d.metrics.recordTx(len(buffer))
			}
			return nil
		}

		if budget.Elapsed() {
			return errors.NewTimeout(errors.TimeoutPacket, "writePacket", "timeout")
		}

		ready, err := d.stream.WaitWrite(budget.Remaining())
		if err != nil {
			return err
		}
		if !ready {
			return errors.NewTimeout(errors.TimeoutPacket, "writePacket",
				"timeout waiting for the stream to accept bytes")
		}
	}
}
