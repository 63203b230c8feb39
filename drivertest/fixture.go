// Package drivertest provides a fixture that eases testing of iodriver-based
// device drivers. The fixture attaches an in-memory test stream to the
// driver under test and exposes helpers to push device data, inspect what
// the driver wrote, and run request/reply mock scenarios.
package drivertest

import (
	"testing"

	"github.com/c360/iodriver/driver"
	"github.com/c360/iodriver/stream"
)

// Fixture wraps a driver opened in test mode together with a read buffer
// sized to the driver's maximum packet size.
//
//	func TestHandlesGarbage(t *testing.T) {
//		drv, _ := driver.New(256, myExtractor)
//		f := drivertest.New(t, drv)
//		f.PushDataToDriver([]byte{0x67, 0x00, 0x61, 0x62, 0x00})
//		packet, err := f.ReadPacket()
//		...
//	}
type Fixture struct {
	t      *testing.T
	Driver *driver.Driver
	buf    []byte
}

// New attaches a test stream to the driver and returns the fixture. The
// driver is closed when the test finishes.
func New(t *testing.T, drv *driver.Driver) *Fixture {
	t.Helper()
	drv.OpenTestMode()
	t.Cleanup(func() {
		_ = drv.Close()
	})
	return &Fixture{t: t, Driver: drv, buf: make([]byte, drv.MaxPacketSize())}
}

// Stream returns the underlying test stream, or nil if the driver's main
// stream was replaced with something else.
func (f *Fixture) Stream() *stream.TestStream {
	s, _ := f.Driver.MainStream().(*stream.TestStream)
	return s
}

// ReadPacket reads one packet from the driver and returns it as an owned
// slice.
func (f *Fixture) ReadPacket() ([]byte, error) {
	size, err := f.Driver.ReadPacket(f.buf)
	if err != nil {
		return nil, err
	}
	packet := make([]byte, size)
	copy(packet, f.buf[:size])
	return packet, nil
}

// WritePacket writes data through the driver.
func (f *Fixture) WritePacket(data []byte) error {
	return f.Driver.WritePacket(data)
}

// PushDataToDriver enqueues data as if it was coming from the device.
func (f *Fixture) PushDataToDriver(data []byte) {
	f.Stream().PushDataToDriver(data)
}

// ReadDataFromDriver drains the data the driver sent to the device.
func (f *Fixture) ReadDataFromDriver() []byte {
	return f.Stream().ReadDataFromDriver()
}

// QueuedBytes returns the number of bytes currently held in the driver's
// internal buffer. This is useful mainly when testing extractors.
func (f *Fixture) QueuedBytes() int {
	return f.Driver.Status().QueuedBytes
}

// ExpectReply queues an expectation/reply pair. It is only valid inside a
// Mock scope; outside one it reports ErrMockContext.
func (f *Fixture) ExpectReply(expectation, reply []byte) error {
	return f.Stream().ExpectReply(expectation, reply)
}

// Mock runs fn inside a mock-context scope: mock mode is enabled on entry
// and, on any exit path, the fixture fails the test if expectations remain
// unsatisfied, restores non-mock mode and clears residual expectations.
func (f *Fixture) Mock(fn func()) {
	s := f.Stream()
	s.SetMockMode(true)
	defer func() {
		if !s.ExpectationsAreEmpty() {
			f.t.Errorf("test reached its end without satisfying all expectations")
		}
		s.SetMockMode(false)
		s.ClearExpectations()
	}()
	fn()
}
