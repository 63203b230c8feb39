package stream

import (
	"bytes"
	"encoding/hex"
	"time"

	"github.com/c360/iodriver/errors"
)

// TestStream is a Stream meant to exercise packet engines from tests.
//
// It maintains two byte queues, one for data flowing to the driver and one
// for data the driver wrote. All communications are synchronous: WaitRead
// reports a timeout right away when no data is queued, WaitWrite never
// fails.
//
// In mock mode every write must match the head of an expectation FIFO
// byte-for-byte. A match enqueues the paired reply on the to-driver queue; a
// mismatch clears the FIFOs and fails with an invalid-argument error quoting
// both byte sequences in hex.
type TestStream struct {
	toDriver   []byte
	fromDriver []byte

	expectations [][]byte
	replies      [][]byte
	mockMode     bool
	eof          bool
}

var _ Stream = (*TestStream)(nil)

// NewTestStream creates an empty test stream.
func NewTestStream() *TestStream {
	return &TestStream{}
}

// PushDataToDriver enqueues data as if it came from the device.
func (s *TestStream) PushDataToDriver(data []byte) {
	s.toDriver = append(s.toDriver, data...)
}

// ReadDataFromDriver drains and returns everything the driver wrote since
// the last call.
func (s *TestStream) ReadDataFromDriver() []byte {
	data := s.fromDriver
	s.fromDriver = nil
	return data
}

// ExpectReply appends an expectation/reply pair to the mock FIFO. It fails
// unless the stream is in mock mode.
func (s *TestStream) ExpectReply(expectation, reply []byte) error {
	if !s.mockMode {
		return errors.ErrMockContext
	}
	s.expectations = append(s.expectations, append([]byte(nil), expectation...))
	s.replies = append(s.replies, append([]byte(nil), reply...))
	return nil
}

// ExpectationsAreEmpty reports whether the expectation FIFO has drained.
func (s *TestStream) ExpectationsAreEmpty() bool {
	return len(s.expectations) == 0
}

// SetMockMode switches expectation matching on or off.
func (s *TestStream) SetMockMode(mode bool) { s.mockMode = mode }

// MockMode reports whether expectation matching is active.
func (s *TestStream) MockMode() bool { return s.mockMode }

// ClearExpectations drops any residual expectation/reply pairs.
func (s *TestStream) ClearExpectations() {
	s.expectations = nil
	s.replies = nil
}

// SetEOF injects an end-of-stream condition.
func (s *TestStream) SetEOF(eof bool) { s.eof = eof }

// WaitRead implements Stream. It completes immediately when data is queued
// and reports a timeout otherwise.
func (s *TestStream) WaitRead(time.Duration) (bool, error) {
	return len(s.toDriver) > 0, nil
}

// WaitWrite implements Stream. It always completes.
func (s *TestStream) WaitWrite(time.Duration) (bool, error) {
	return true, nil
}

// Read implements Stream.
func (s *TestStream) Read(p []byte) (int, error) {
	n := copy(p, s.toDriver)
	s.toDriver = s.toDriver[n:]
	return n, nil
}

// Write implements Stream. In mock mode the data must match the head of the
// expectation FIFO.
func (s *TestStream) Write(p []byte) (int, error) {
	if !s.mockMode {
		s.fromDriver = append(s.fromDriver, p...)
		return len(p), nil
	}

	if len(s.expectations) == 0 {
		return 0, errors.Invalidf("write",
			"no expectation left for %s", hex.EncodeToString(p))
	}

	expectation := s.expectations[0]
	if !bytes.Equal(expectation, p) {
		s.ClearExpectations()
		return 0, errors.Invalidf("write",
			"expected %s but got %s",
			hex.EncodeToString(expectation), hex.EncodeToString(p))
	}

	s.toDriver = append(s.toDriver, s.replies[0]...)
	s.expectations = s.expectations[1:]
	s.replies = s.replies[1:]
	return len(p), nil
}

// Clear implements Stream by dropping queued to-driver data.
func (s *TestStream) Clear() error {
	s.toDriver = nil
	return nil
}

// EOF implements Stream.
func (s *TestStream) EOF() bool { return s.eof }

// FileDescriptor implements Stream.
func (s *TestStream) FileDescriptor() int { return InvalidFD }

// Close implements Stream.
func (s *TestStream) Close() error { return nil }
