// Package bus shares one byte stream among several packet framings. This is
// typical of multi-drop links such as RS-485, where devices with different
// framings hang off a single line and writing one giant extractor for all of
// them is impractical.
//
// Each device registers a Parser carrying its own extractor. A directed read
// frames with exactly one parser; outside directed reads, broadcast
// classification consults every registered parser and advances the shared
// buffer by the smallest amount any of them tolerated. Parsers that also
// implement Handler are notified of complete packets seen during broadcast,
// which serves devices that emit unsolicited periodic messages.
package bus

import (
	"sync"
	"time"

	"github.com/c360/iodriver/driver"
)

// Parser is a device-specific packet framing registered with a Bus.
type Parser interface {
	driver.Extractor
}

// Handler is a Parser that additionally accepts unsolicited packets found
// during broadcast classification. PacketReady receives the complete packet
// view; the bytes are only valid for the duration of the call.
type Handler interface {
	Parser
	PacketReady(packet []byte)
}

// Bus is a packet engine whose classification is routed among several
// registered parsers.
//
// AddParser and RemoveParser may be called from any goroutine: a plain mutex
// guards the parser list, and nothing else. Like the underlying engine, the
// bus runs one I/O operation at a time; serializing ReadPacket, ReadAny and
// WritePacket across goroutines is the caller's responsibility. The active
// parser travels through the read path as an explicit argument, and handler
// callbacks run without any bus lock held, so a handler may freely call back
// into the bus — register parsers, or write an immediate reply to an
// unsolicited message — without deadlocking.
type Bus struct {
	drv *driver.Driver

	mu      sync.Mutex // guards parsers
	parsers []Parser
}

// New creates a bus for packets of at most maxPacketSize bytes. The
// underlying driver uses broadcast classification as its extractor.
func New(maxPacketSize int, opts ...driver.Option) (*Bus, error) {
	b := &Bus{}
	drv, err := driver.New(maxPacketSize, driver.ExtractorFunc(b.broadcastExtract), opts...)
	if err != nil {
		return nil, err
	}
	b.drv = drv
	return b, nil
}

// Driver exposes the underlying engine for stream attachment and
// configuration.
func (b *Bus) Driver() *driver.Driver { return b.drv }

// AddParser registers a parser. Parsers are consulted in registration order
// during broadcast classification.
func (b *Bus) AddParser(p Parser) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parsers = append(b.parsers, p)
}

// RemoveParser unregisters a parser.
func (b *Bus) RemoveParser(p Parser) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, registered := range b.parsers {
		if registered == p {
			b.parsers = append(b.parsers[:i], b.parsers[i+1:]...)
			return
		}
	}
}

// snapshotParsers copies the parser list so broadcast classification and
// handler callbacks run without holding the list lock.
func (b *Bus) snapshotParsers() []Parser {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Parser(nil), b.parsers...)
}

// ReadPacket performs a directed read: only the given parser's extractor
// frames the data, and no handler callbacks fire.
func (b *Bus) ReadPacket(p Parser, out []byte, packetTimeout, firstByteTimeout time.Duration) (int, error) {
	return b.drv.ReadPacketWith(p, out, packetTimeout, firstByteTimeout)
}

// ReadAny performs a broadcast read: every registered parser is consulted
// and handlers receive the packets recognized along the way.
func (b *Bus) ReadAny(out []byte, packetTimeout, firstByteTimeout time.Duration) (int, error) {
	return b.drv.ReadPacketTimeout(out, packetTimeout, firstByteTimeout)
}

// WritePacket writes through the shared stream.
func (b *Bus) WritePacket(data []byte, timeout time.Duration) error {
	return b.drv.WritePacketTimeout(data, timeout)
}

// broadcastExtract asks every registered parser for a verdict. Packets
// recognized by a Handler are delivered through PacketReady and consumed.
// The buffer advances by the smallest amount any parser tolerated.
func (b *Bus) broadcastExtract(buffer []byte) int {
	parsers := b.snapshotParsers()

	minSkip := len(buffer)
	for _, p := range parsers {
		r := p.ExtractPacket(buffer)
		if r > 0 {
			if handler, ok := p.(Handler); ok {
				handler.PacketReady(buffer[:r])
			}
		}
		if abs(r) < minSkip {
			minSkip = abs(r)
		}
	}

	if minSkip == 0 {
		return 0
	}
	return -minSkip
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
