package driver

import "time"

// Status holds the I/O accounting of a driver instance.
//
// The invariant over any sequence of packet reads is
//
//	GoodRx + BadRx + QueuedBytes == bytes ever read from the stream
//
// ReadRaw transfers bytes without counting them in GoodRx or BadRx.
type Status struct {
	// GoodRx counts bytes recognized as packets. In extract-last mode it
	// includes packets superseded by a later one in the same burst.
	GoodRx int
	// BadRx counts bytes discarded as junk by the extractor.
	BadRx int
	// Tx counts bytes successfully written.
	Tx int
	// QueuedBytes is the current internal buffer fill.
	QueuedBytes int
	// Stamp is the time of the last byte movement.
	Stamp time.Time
}
