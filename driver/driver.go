// Package driver implements the packet-reassembly engine at the heart of
// iodriver. A Driver owns a bounded internal buffer, an attached stream and
// a user-supplied packet extractor; it turns the fragmented, possibly noisy
// byte flow of the stream into whole packets while enforcing per-packet,
// per-first-byte and inter-byte deadlines.
//
// The extractor drives the packet search. It is handed the unparsed bytes
// and answers with a framing verdict:
//
//   - a positive value n means a complete packet occupies the first n bytes
//   - zero means the buffer starts with a valid packet prefix and more bytes
//     are needed
//   - a negative value -k means the first k bytes are junk and must be
//     discarded
//
// A verdict outside [-n, n] for an n-byte view is a programming error and is
// reported as a LengthError.
package driver

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/c360/iodriver/errors"
	"github.com/c360/iodriver/metric"
	"github.com/c360/iodriver/stream"
)

// Extractor is the packet classifier supplied by the device driver. See the
// package documentation for the verdict semantics.
type Extractor interface {
	ExtractPacket(buffer []byte) int
}

// ExtractorFunc adapts a plain function to the Extractor interface.
type ExtractorFunc func(buffer []byte) int

// ExtractPacket implements Extractor.
func (f ExtractorFunc) ExtractPacket(buffer []byte) int { return f(buffer) }

// Driver is the packet-reassembly engine. It is not safe for concurrent use;
// one I/O operation runs at a time per instance.
type Driver struct {
	name      string
	extractor Extractor

	maxPacketSize int
	buf           []byte
	fill          int

	stream    stream.Stream
	listeners []Listener

	extractLast  bool
	readTimeout  time.Duration
	writeTimeout time.Duration

	stats   Status
	logger  *slog.Logger
	metrics *driverMetrics
}

// Option configures a Driver.
type Option func(*Driver) error

// WithName sets the instance name used in logs and metric namespacing.
// Defaults to a generated unique name.
func WithName(name string) Option {
	return func(d *Driver) error {
		d.name = name
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) error {
		d.logger = logger
		return nil
	}
}

// WithExtractLast makes the driver discard older complete packets in favour
// of the most recent when several are present in one burst.
func WithExtractLast() Option {
	return func(d *Driver) error {
		d.extractLast = true
		return nil
	}
}

// WithReadTimeout sets the default timeout used by ReadPacket and ReadRaw.
func WithReadTimeout(timeout time.Duration) Option {
	return func(d *Driver) error {
		d.readTimeout = timeout
		return nil
	}
}

// WithWriteTimeout sets the default timeout used by WritePacket.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(d *Driver) error {
		d.writeTimeout = timeout
		return nil
	}
}

// WithMetrics exposes the driver statistics as Prometheus metrics in the
// given registry, namespaced by the driver name.
func WithMetrics(registry *metric.Registry) Option {
	return func(d *Driver) error {
		metrics, err := newDriverMetrics(registry, d.name)
		if err != nil {
			return err
		}
		d.metrics = metrics
		return nil
	}
}

// New creates a driver for packets of at most maxPacketSize bytes, framed by
// the given extractor. The driver starts without an attached stream.
func New(maxPacketSize int, extractor Extractor, opts ...Option) (*Driver, error) {
	if maxPacketSize <= 0 {
		return nil, errors.Invalidf("driver.New", "max packet size must be positive, got %d", maxPacketSize)
	}
	if extractor == nil {
		return nil, errors.NewInvalid("driver.New", "an extractor is required")
	}

	d := &Driver{
		name:          fmt.Sprintf("driver-%s", uuid.NewString()[:8]),
		extractor:     extractor,
		maxPacketSize: maxPacketSize,
		buf:           make([]byte, maxPacketSize),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.logger == nil {
		d.logger = slog.Default().With("component", d.name)
	}
	return d, nil
}

// Name returns the instance name.
func (d *Driver) Name() string { return d.name }

// MaxPacketSize returns the size of the internal buffer, which bounds the
// largest packet the driver can assemble.
func (d *Driver) MaxPacketSize() int { return d.maxPacketSize }

// SetMainStream attaches a stream, closing any previously attached one.
func (d *Driver) SetMainStream(s stream.Stream) {
	if d.stream != nil {
		if err := d.stream.Close(); err != nil {
			d.logger.Warn("error closing the previous stream", "error", err)
		}
	}
	d.stream = s
}

// MainStream returns the attached stream, or nil.
func (d *Driver) MainStream() stream.Stream { return d.stream }

// SetFileDescriptor attaches a raw file descriptor. When autoClose is set
// the descriptor is closed with the stream. hasEOF controls whether
// zero-byte reads mark end of stream; serial devices return spurious zero
// reads and must pass false.
func (d *Driver) SetFileDescriptor(fd int, autoClose, hasEOF bool) error {
	s, err := stream.NewFDStream(fd, autoClose, hasEOF)
	if err != nil {
		return err
	}
	d.SetMainStream(s)
	return nil
}

// FileDescriptor returns the descriptor of the attached stream, or
// stream.InvalidFD.
func (d *Driver) FileDescriptor() int {
	if d.stream == nil {
		return stream.InvalidFD
	}
	return d.stream.FileDescriptor()
}

// Valid reports whether a stream is attached.
func (d *Driver) Valid() bool { return d.stream != nil }

// EOF reports whether the attached stream reached end of stream.
func (d *Driver) EOF() bool {
	if d.stream == nil {
		return false
	}
	return d.stream.EOF()
}

// AddListener registers a tap observing all transferred bytes.
func (d *Driver) AddListener(l Listener) {
	d.listeners = append(d.listeners, l)
}

// RemoveListener unregisters a previously added tap.
func (d *Driver) RemoveListener(l Listener) {
	for i, registered := range d.listeners {
		if registered == l {
			d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
			return
		}
	}
}

func (d *Driver) notifyRead(data []byte) {
	for _, l := range d.listeners {
		l.ReadData(data)
	}
}

func (d *Driver) notifyWrite(data []byte) {
	for _, l := range d.listeners {
		l.WriteData(data)
	}
}

// SetExtractLastPacket switches the extraction policy.
func (d *Driver) SetExtractLastPacket(flag bool) { d.extractLast = flag }

// ExtractLastPacket returns the current extraction policy.
func (d *Driver) ExtractLastPacket() bool { return d.extractLast }

// SetReadTimeout sets the default timeout used by ReadPacket and ReadRaw
// calls without explicit timeouts.
func (d *Driver) SetReadTimeout(timeout time.Duration) { d.readTimeout = timeout }

// ReadTimeout returns the default read timeout.
func (d *Driver) ReadTimeout() time.Duration { return d.readTimeout }

// SetWriteTimeout sets the default timeout used by WritePacket calls without
// explicit timeouts.
func (d *Driver) SetWriteTimeout(timeout time.Duration) { d.writeTimeout = timeout }

// WriteTimeout returns the default write timeout.
func (d *Driver) WriteTimeout() time.Duration { return d.writeTimeout }

// Status returns the I/O counters. QueuedBytes reflects the current internal
// buffer fill.
func (d *Driver) Status() Status {
	status := d.stats
	status.QueuedBytes = d.fill
	return status
}

// ResetStatus zeroes the I/O counters.
func (d *Driver) ResetStatus() { d.stats = Status{} }

// Clear drains whatever input is queued on the stream and empties the
// internal buffer. It is idempotent.
func (d *Driver) Clear() error {
	var err error
	if d.stream != nil {
		err = d.stream.Clear()
	}
	d.fill = 0
	return err
}

// Close drops the attached stream, closing owned descriptors, and releases
// any listener that needs releasing. It is idempotent.
func (d *Driver) Close() error {
	var result *multierror.Error
	if d.stream != nil {
		if err := d.stream.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		d.stream = nil
	}
	for _, l := range d.listeners {
		if closer, ok := l.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	d.listeners = nil
	return result.ErrorOrNil()
}
