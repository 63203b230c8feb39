//go:build linux

package driver_test

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/iodriver/driver"
	"github.com/c360/iodriver/errors"
)

// pipeDriver attaches the read end of a pipe to a fresh driver and returns
// the write end.
func pipeDriver(t *testing.T, opts ...driver.Option) (*driver.Driver, int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, syscall.Pipe(fds[:]))

	drv := newTestDriver(t, opts...)
	require.NoError(t, drv.SetFileDescriptor(fds[0], true, true))
	t.Cleanup(func() {
		drv.Close()
		syscall.Close(fds[1])
	})
	return drv, fds[1]
}

func feed(t *testing.T, tx int, data []byte) {
	t.Helper()
	n, err := syscall.Write(tx, data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
}

func TestFD_ReadPacket(t *testing.T) {
	drv, tx := pipeDriver(t)
	feed(t, tx, []byte{'g', 0, 'a', 'b', 0})

	out := make([]byte, 100)
	size, err := drv.ReadPacketTimeout(out, 100*time.Millisecond, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 'a', 'b', 0}, out[:size])
}

func TestFD_FirstByteTimeoutWhenNoData(t *testing.T) {
	drv, _ := pipeDriver(t)

	out := make([]byte, 100)
	start := time.Now()
	_, err := drv.ReadPacketTimeout(out, 100*time.Millisecond, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.IsFirstByteTimeout(err))
	assert.Less(t, time.Since(start), 100*time.Millisecond,
		"the first-byte deadline must cut the wait short")
}

func TestFD_PacketTimeoutWhenPacketIncomplete(t *testing.T) {
	drv, tx := pipeDriver(t)
	feed(t, tx, []byte{0, 'a'})

	out := make([]byte, 100)
	_, err := drv.ReadPacketTimeout(out, 30*time.Millisecond, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.IsPacketTimeout(err))
	assert.Equal(t, 2, drv.Status().QueuedBytes)
}

func TestFD_ByteAfterFirstByteDeadlineKeepsReadAlive(t *testing.T) {
	drv, tx := pipeDriver(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// little by little, slower than the first-byte timeout would
		// allow on its own, faster than the packet timeout
		for _, b := range []byte{0, 'a', 'b', 0} {
			time.Sleep(20 * time.Millisecond)
			syscall.Write(tx, []byte{b})
		}
	}()

	out := make([]byte, 100)
	size, err := drv.ReadPacketTimeout(out, 500*time.Millisecond, 100*time.Millisecond)
	<-done
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 'a', 'b', 0}, out[:size])
}

func TestFD_PacketTooLargeForBuffer(t *testing.T) {
	drv, err := driver.New(4, driver.ExtractorFunc(func(buffer []byte) int {
		return 0 // everything is a prefix, nothing completes
	}))
	require.NoError(t, err)

	var fds [2]int
	require.NoError(t, syscall.Pipe(fds[:]))
	require.NoError(t, drv.SetFileDescriptor(fds[0], true, true))
	t.Cleanup(func() {
		drv.Close()
		syscall.Close(fds[1])
	})

	feed(t, fds[1], []byte{1, 2, 3, 4})
	out := make([]byte, 4)
	_, err = drv.ReadPacketTimeout(out, 50*time.Millisecond, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.IsLength(err))
}

func TestFD_EOF(t *testing.T) {
	drv, tx := pipeDriver(t)
	assert.False(t, drv.EOF())

	feed(t, tx, []byte{0, 'a', 'b', 0})
	require.NoError(t, syscall.Close(tx))

	out := make([]byte, 100)
	_, err := drv.ReadPacketTimeout(out, 10*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)

	// the pending zero-byte read marks end of stream
	_, err = drv.ReadPacketTimeout(out, 10*time.Millisecond, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, drv.EOF())
}

func TestFD_ReadRawReadsAvailableBytes(t *testing.T) {
	drv, tx := pipeDriver(t)
	feed(t, tx, []byte{1, 2, 3})

	out := make([]byte, 100)
	n, err := drv.ReadRawTimeout(out, 50*time.Millisecond, 50*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, out[:n])
}

func TestFD_ReadRawConsumesWhatItRead(t *testing.T) {
	drv, tx := pipeDriver(t)
	feed(t, tx, []byte{1, 2, 3})

	out := make([]byte, 100)
	_, err := drv.ReadRawTimeout(out, 50*time.Millisecond, 50*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)

	n, err := drv.ReadRawTimeout(out, 20*time.Millisecond, 20*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFD_ReadRawDrainsInternalBufferFirst(t *testing.T) {
	drv, tx := pipeDriver(t)

	// a partial packet parks bytes in the internal buffer
	feed(t, tx, []byte{0, 'a'})
	out := make([]byte, 100)
	_, err := drv.ReadPacketTimeout(out, 20*time.Millisecond, 20*time.Millisecond)
	require.Error(t, err)
	require.Equal(t, 2, drv.Status().QueuedBytes)

	feed(t, tx, []byte{'b', 'c'})
	n, err := drv.ReadRawTimeout(out, 50*time.Millisecond, 50*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 'a', 'b', 'c'}, out[:n])
	assert.Equal(t, 0, drv.Status().QueuedBytes)
}

func TestFD_ReadRawDoesNotFailOnTimeout(t *testing.T) {
	drv, _ := pipeDriver(t)

	out := make([]byte, 100)
	start := time.Now()
	n, err := drv.ReadRawTimeout(out, 100*time.Millisecond, 20*time.Millisecond, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Less(t, time.Since(start), 100*time.Millisecond,
		"without a first byte the shorter first-byte deadline applies")
}

func TestFD_ReadRawStopsAtInterByteTimeout(t *testing.T) {
	drv, tx := pipeDriver(t)
	feed(t, tx, []byte{1, 2})

	out := make([]byte, 100)
	start := time.Now()
	n, err := drv.ReadRawTimeout(out, 500*time.Millisecond, 100*time.Millisecond, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Less(t, time.Since(start), 400*time.Millisecond,
		"the inter-byte deadline must end the read before the packet deadline")
}

func TestFD_ReadRawWithoutStream(t *testing.T) {
	drv := newTestDriver(t)
	out := make([]byte, 100)
	_, err := drv.ReadRawTimeout(out, time.Millisecond, time.Millisecond, 0)
	assert.ErrorIs(t, err, errors.ErrNotOpen)
}

func TestFD_WritePacketThroughPipe(t *testing.T) {
	var fds [2]int
	require.NoError(t, syscall.Pipe(fds[:]))

	drv := newTestDriver(t)
	require.NoError(t, drv.SetFileDescriptor(fds[1], true, false))
	t.Cleanup(func() {
		drv.Close()
		syscall.Close(fds[0])
	})

	require.NoError(t, drv.WritePacketTimeout([]byte{1, 2, 3}, 100*time.Millisecond))

	buf := make([]byte, 16)
	n, err := syscall.Read(fds[0], buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf[:n])
	assert.Equal(t, 3, drv.Status().Tx)
}

func TestFD_FileDescriptorAccessors(t *testing.T) {
	drv, _ := pipeDriver(t)
	assert.True(t, drv.Valid())
	assert.NotEqual(t, -1, drv.FileDescriptor())

	require.NoError(t, drv.Close())
	assert.False(t, drv.Valid())
	assert.Equal(t, -1, drv.FileDescriptor())
}
