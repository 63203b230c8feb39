package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/iodriver/errors"
)

func TestTestStream_RoundTrip(t *testing.T) {
	s := NewTestStream()

	s.PushDataToDriver([]byte{0, 1, 2, 3})

	buf := make([]byte, 2)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{0, 1}, buf)

	n, err = s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{2, 3}, buf)

	n, err = s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTestStream_WaitRead(t *testing.T) {
	s := NewTestStream()

	ready, err := s.WaitRead(time.Second)
	require.NoError(t, err)
	assert.False(t, ready, "empty stream must report a timeout right away")

	s.PushDataToDriver([]byte{1})
	ready, err = s.WaitRead(0)
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestTestStream_WaitWriteAlwaysCompletes(t *testing.T) {
	s := NewTestStream()
	ready, err := s.WaitWrite(0)
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestTestStream_CapturesWrites(t *testing.T) {
	s := NewTestStream()

	n, err := s.Write([]byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.Write([]byte{3})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, []byte{1, 2, 3}, s.ReadDataFromDriver())
	assert.Empty(t, s.ReadDataFromDriver(), "drain must consume the queue")
}

func TestTestStream_ClearDropsQueuedInput(t *testing.T) {
	s := NewTestStream()
	s.PushDataToDriver([]byte{1, 2, 3})
	require.NoError(t, s.Clear())

	buf := make([]byte, 4)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTestStream_ExpectReplyRequiresMockMode(t *testing.T) {
	s := NewTestStream()
	err := s.ExpectReply([]byte{1}, []byte{2})
	assert.ErrorIs(t, err, errors.ErrMockContext)
}

func TestTestStream_MockMatchEnqueuesReply(t *testing.T) {
	s := NewTestStream()
	s.SetMockMode(true)
	require.NoError(t, s.ExpectReply([]byte{0, 1, 2, 3}, []byte{3, 2, 1, 0}))

	n, err := s.Write([]byte{0, 1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.True(t, s.ExpectationsAreEmpty())

	buf := make([]byte, 4)
	n, err = s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 2, 1, 0}, buf[:n])
}

func TestTestStream_MockMismatchClearsExpectations(t *testing.T) {
	s := NewTestStream()
	s.SetMockMode(true)
	require.NoError(t, s.ExpectReply([]byte{0, 1, 2, 3}, []byte{3, 2, 1, 0}))

	_, err := s.Write([]byte{0, 1, 2, 4})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
	assert.Contains(t, err.Error(), "00010203")
	assert.Contains(t, err.Error(), "00010204")
	assert.True(t, s.ExpectationsAreEmpty())
}

func TestTestStream_MockWriteWithoutExpectation(t *testing.T) {
	s := NewTestStream()
	s.SetMockMode(true)

	_, err := s.Write([]byte{0xff})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestTestStream_ExpectationsServedInOrder(t *testing.T) {
	s := NewTestStream()
	s.SetMockMode(true)
	require.NoError(t, s.ExpectReply([]byte{1}, []byte{0x10}))
	require.NoError(t, s.ExpectReply([]byte{2}, []byte{0x20}))

	_, err := s.Write([]byte{1})
	require.NoError(t, err)
	_, err = s.Write([]byte{2})
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10, 0x20}, buf[:n])
}

func TestTestStream_SetEOF(t *testing.T) {
	s := NewTestStream()
	assert.False(t, s.EOF())
	s.SetEOF(true)
	assert.True(t, s.EOF())
}
