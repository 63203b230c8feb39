//go:build linux

package stream

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeStreams(t *testing.T) (*FDStream, *FDStream) {
	t.Helper()
	var fds [2]int
	require.NoError(t, syscall.Pipe(fds[:]))

	reader, err := NewFDStream(fds[0], true, true)
	require.NoError(t, err)
	writer, err := NewFDStream(fds[1], true, false)
	require.NoError(t, err)
	t.Cleanup(func() {
		reader.Close()
		writer.Close()
	})
	return reader, writer
}

func TestFDStream_ReadWrite(t *testing.T) {
	reader, writer := pipeStreams(t)

	n, err := writer.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ready, err := reader.WaitRead(time.Second)
	require.NoError(t, err)
	require.True(t, ready)

	buf := make([]byte, 16)
	n, err = reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf[:n])
}

func TestFDStream_ReadWithoutDataReturnsZero(t *testing.T) {
	reader, _ := pipeStreams(t)

	buf := make([]byte, 16)
	n, err := reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.False(t, reader.EOF())
}

func TestFDStream_WaitReadTimesOut(t *testing.T) {
	reader, _ := pipeStreams(t)

	start := time.Now()
	ready, err := reader.WaitRead(20 * time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ready)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestFDStream_EOFAfterPeerClose(t *testing.T) {
	reader, writer := pipeStreams(t)

	_, err := writer.Write([]byte{42})
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	buf := make([]byte, 16)
	n, err := reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, reader.EOF())

	n, err = reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, reader.EOF())
}

func TestFDStream_NoEOFWhenDisabled(t *testing.T) {
	var fds [2]int
	require.NoError(t, syscall.Pipe(fds[:]))

	reader, err := NewFDStream(fds[0], true, false)
	require.NoError(t, err)
	defer reader.Close()
	require.NoError(t, syscall.Close(fds[1]))

	buf := make([]byte, 16)
	n, err := reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.False(t, reader.EOF(), "spurious zero reads must not set EOF for serial descriptors")
}

func TestFDStream_ClearDrainsQueuedInput(t *testing.T) {
	reader, writer := pipeStreams(t)

	_, err := writer.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, reader.Clear())

	buf := make([]byte, 16)
	n, err := reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFDStream_CloseIsIdempotent(t *testing.T) {
	reader, _ := pipeStreams(t)
	require.NoError(t, reader.Close())
	require.NoError(t, reader.Close())
}
