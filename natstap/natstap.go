// Package natstap provides a driver listener that publishes observed raw I/O
// to NATS subjects, for passive tracing of a device link from elsewhere on
// the network. Publishing is fire-and-forget: a failed publish is logged and
// never disturbs the driver's I/O path.
package natstap

import (
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/c360/iodriver/driver"
)

// Listener mirrors every byte transferred by a driver onto two NATS
// subjects, one per direction.
type Listener struct {
	nc           *nats.Conn
	readSubject  string
	writeSubject string
	logger       *slog.Logger
}

// Ensure Listener satisfies the driver tap interface.
var _ driver.Listener = (*Listener)(nil)

// New creates a listener publishing to <prefix>.read and <prefix>.write.
func New(nc *nats.Conn, prefix string, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default().With("component", "natstap")
	}
	return &Listener{
		nc:           nc,
		readSubject:  prefix + ".read",
		writeSubject: prefix + ".write",
		logger:       logger,
	}
}

// ReadSubject returns the subject carrying bytes read from the device.
func (l *Listener) ReadSubject() string { return l.readSubject }

// WriteSubject returns the subject carrying bytes written to the device.
func (l *Listener) WriteSubject() string { return l.writeSubject }

// ReadData implements driver.Listener.
func (l *Listener) ReadData(data []byte) {
	l.publish(l.readSubject, data)
}

// WriteData implements driver.Listener.
func (l *Listener) WriteData(data []byte) {
	l.publish(l.writeSubject, data)
}

func (l *Listener) publish(subject string, data []byte) {
	if l.nc == nil {
		return
	}
	// the driver reuses the view after the call returns
	payload := make([]byte, len(data))
	copy(payload, data)
	if err := l.nc.Publish(subject, payload); err != nil {
		l.logger.Error("failed to publish tap data", "subject", subject, "error", err)
	}
}

// Close flushes buffered publishes. The connection itself belongs to the
// caller and stays open.
func (l *Listener) Close() error {
	if l.nc == nil {
		return nil
	}
	return l.nc.Flush()
}
