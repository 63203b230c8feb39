//go:build linux

package driver_test

import (
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/iodriver/driver"
	"github.com/c360/iodriver/errors"
	"github.com/c360/iodriver/stream"
)

func TestOpenURI_UnknownScheme(t *testing.T) {
	drv := newTestDriver(t)
	defer drv.Close()

	err := drv.OpenURI("ftp://host:21")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestOpenURI_InvalidSyntax(t *testing.T) {
	drv := newTestDriver(t)
	defer drv.Close()

	err := drv.OpenURI("tcp:/host")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestOpenURI_MissingPorts(t *testing.T) {
	tests := []string{
		"serial:///dev/ttyUSB0",
		"tcp://localhost",
		"tcpserver://",
		"udp://localhost",
	}
	for _, uriString := range tests {
		t.Run(uriString, func(t *testing.T) {
			drv := newTestDriver(t)
			defer drv.Close()

			err := drv.OpenURI(uriString)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidArgument(err))
		})
	}
}

func TestOpenURI_TestMode(t *testing.T) {
	drv := newTestDriver(t)
	defer drv.Close()

	require.NoError(t, drv.OpenURI("test://"))
	first := drv.MainStream()
	_, ok := first.(*stream.TestStream)
	require.True(t, ok)

	// reopening keeps the attached test stream
	require.NoError(t, drv.OpenURI("test://"))
	assert.Same(t, first, drv.MainStream())
}

func TestOpenURI_RejectsUnconnectedWithConnRefusedReporting(t *testing.T) {
	drv := newTestDriver(t)
	defer drv.Close()

	err := drv.OpenURI("udp://127.0.0.1:4000?ignore_connrefused=0&connected=0")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestOpenURI_BackwardUDPFormRejectsIPv6(t *testing.T) {
	drv := newTestDriver(t)
	defer drv.Close()

	err := drv.OpenURI("udp://[::1]:4000:5000")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestOpenURI_UDPBidirectionalRoundTrip(t *testing.T) {
	server := newTestDriver(t)
	defer server.Close()
	require.NoError(t, server.OpenURI("udpserver://0"))

	// learn the server's port from its socket
	serverPort := localPort(t, server.FileDescriptor())

	client := newTestDriver(t)
	defer client.Close()
	require.NoError(t, client.OpenURI(fmt.Sprintf("udp://127.0.0.1:%d?ignore_connrefused=1", serverPort)))

	require.NoError(t, client.WritePacketTimeout([]byte{0, 'a', 'b', 0}, 100*time.Millisecond))

	out := make([]byte, 100)
	size, err := server.ReadPacketTimeout(out, 500*time.Millisecond, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 'a', 'b', 0}, out[:size])

	// the server learned its peer from the first datagram
	require.NoError(t, server.WritePacketTimeout([]byte{0, 'c', 'd', 0}, 100*time.Millisecond))
	size, err = client.ReadPacketTimeout(out, 500*time.Millisecond, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 'c', 'd', 0}, out[:size])
}

func TestOpenURI_BackwardUDPFormBindsLocalPort(t *testing.T) {
	drv := newTestDriver(t)
	defer drv.Close()

	require.NoError(t, drv.OpenURI("udp://127.0.0.1:4000:0"))
	assert.True(t, drv.Valid())
}

func TestUDP_IgnoredConnRefusedMasksICMPError(t *testing.T) {
	drv := newTestDriver(t)
	defer drv.Close()

	// nobody listens on this port; with the mask on, the write succeeds
	// and the read times out instead of reporting the ICMP error
	require.NoError(t, drv.OpenURI("udp://127.0.0.1:1?local_port=0&connected=1&ignore_connrefused=1"))

	require.NoError(t, drv.WritePacketTimeout([]byte{0, 1, 2, 0}, 100*time.Millisecond))
	// a second write gives the kernel a chance to have latched the ICMP error
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, drv.WritePacketTimeout([]byte{0, 1, 2, 0}, 100*time.Millisecond))

	out := make([]byte, 100)
	_, err := drv.ReadPacketTimeout(out, 50*time.Millisecond, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err), "expected a timeout, got %v", err)
}

func TestOpenTCP_RoundTrip(t *testing.T) {
	server := newTestDriver(t)
	defer server.Close()
	require.NoError(t, server.OpenTCPServer(0))

	// the stream reports no descriptor until a client is accepted; fetch
	// the bound port from the listening socket
	listenFD := serverListenFD(t, server)
	serverPort := localPort(t, listenFD)

	client := newTestDriver(t)
	defer client.Close()
	require.NoError(t, client.OpenTCP("127.0.0.1", serverPort))

	require.NoError(t, client.WritePacketTimeout([]byte{0, 'a', 'b', 0}, 100*time.Millisecond))

	out := make([]byte, 100)
	size, err := server.ReadPacketTimeout(out, time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 'a', 'b', 0}, out[:size])

	// server to client, through the accepted connection
	require.NoError(t, server.WritePacketTimeout([]byte{0, 'c', 'd', 0}, 100*time.Millisecond))
	size, err = client.ReadPacketTimeout(out, time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 'c', 'd', 0}, out[:size])
}

// localPort fetches the bound port of a socket descriptor.
func localPort(t *testing.T, fd int) int {
	t.Helper()
	sa, err := syscall.Getsockname(fd)
	require.NoError(t, err)
	switch addr := sa.(type) {
	case *syscall.SockaddrInet4:
		return addr.Port
	case *syscall.SockaddrInet6:
		return addr.Port
	default:
		t.Fatalf("unexpected sockaddr type %T", sa)
		return 0
	}
}

// serverListenFD fetches the listening descriptor of a driver attached to a
// TCP server stream.
func serverListenFD(t *testing.T, drv *driver.Driver) int {
	t.Helper()
	s, ok := drv.MainStream().(*stream.TCPServerStream)
	require.True(t, ok)
	return s.ListenerFileDescriptor()
}

func TestOpenFile(t *testing.T) {
	drv := newTestDriver(t)
	defer drv.Close()

	err := drv.OpenURI("file:///dev/null")
	require.NoError(t, err)
	assert.True(t, drv.Valid())
}
