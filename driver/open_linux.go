//go:build linux

package driver

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"

	"github.com/c360/iodriver/errors"
	"github.com/c360/iodriver/serial"
	"github.com/c360/iodriver/stream"
	"github.com/c360/iodriver/uri"
)

var knownSchemes = []string{"serial", "tcp", "tcpserver", "udp", "udpserver", "file", "test", "ws"}

// OpenURI parses a connection string and attaches the corresponding stream.
//
// Recognized schemes:
//
//	serial://DEVICE:BAUDRATE[?byte_size=N&parity=none|even|odd&stop_bits=1|2]
//	tcp://HOST:PORT
//	tcpserver://:PORT
//	udp://HOST:REMOTE_PORT[?local_port=N&connected=0|1&ignore_connrefused=0|1&...]
//	udpserver://PORT
//	file://PATH
//	test://
//	ws://HOST:PORT[/PATH]
//
// The historical form udp://host:remote_port:local_port is accepted and
// rewritten to udp://host:remote_port?local_port=PORT. It is only supported
// for plain IPv4 hosts.
func (d *Driver) OpenURI(uriString string) error {
	var parsed uri.URI
	var err error
	switch {
	case strings.HasPrefix(uriString, "udp://"):
		parsed, err = backwardParseBidirectionalUDP(uriString)
	case strings.HasPrefix(uriString, "ws://"):
		// a WebSocket path is not part of the connection grammar; the
		// dialer receives the URL as is
		parsed = uri.URI{Scheme: "ws"}
	default:
		parsed, err = uri.Parse(uriString)
	}
	if err != nil {
		return err
	}

	scheme := parsed.Scheme
	if !schemeKnown(scheme) {
		return errors.Invalidf("openURI", "unknown scheme %s", scheme)
	}

	switch scheme {
	case "serial":
		if parsed.Port == 0 {
			return errors.NewInvalid("openURI", "missing baud rate specification in serial URI")
		}
		config, err := serial.FromURI(parsed)
		if err != nil {
			return err
		}
		return d.OpenSerial(parsed.Host, parsed.Port, config)
	case "tcp":
		if parsed.Port == 0 {
			return errors.NewInvalid("openURI", "missing port specification in tcp URI")
		}
		return d.OpenTCP(parsed.Host, parsed.Port)
	case "tcpserver":
		if parsed.Port == 0 {
			return errors.NewInvalid("openURI", "missing port specification in tcp server URI")
		}
		return d.OpenTCPServer(parsed.Port)
	case "udp":
		return d.openURIUDP(parsed)
	case "udpserver":
		port, err := strconv.Atoi(parsed.Host)
		if err != nil {
			return errors.Invalidf("openURI", "invalid port %q in udpserver URI", parsed.Host)
		}
		return d.OpenUDPServer(port)
	case "file":
		return d.OpenFile(parsed.Host)
	case "test":
		d.OpenTestMode()
		return nil
	case "ws":
		return d.OpenWebSocket(uriString)
	}
	return nil
}

func schemeKnown(scheme string) bool {
	for _, known := range knownSchemes {
		if scheme == known {
			return true
		}
	}
	return false
}

// backwardParseBidirectionalUDP handles the old syntax
// udp://host:remote_port:local_port, transforming it into the new
// udp://host:remote_port?local_port=PORT URI. Bracketed IPv6 hosts are not
// supported by the old syntax.
func backwardParseBidirectionalUDP(uriString string) (uri.URI, error) {
	if strings.ContainsAny(uriString, "?&=") {
		return uri.Parse(uriString)
	}

	rest := uriString[len("udp://"):]
	if strings.Contains(rest, "[") {
		return uri.URI{}, errors.NewInvalid("openURI",
			"the udp://host:remote_port:local_port form does not support IPv6 hosts")
	}

	firstColon := strings.Index(rest, ":")
	lastColon := strings.LastIndex(rest, ":")
	if firstColon == lastColon {
		return uri.Parse(uriString)
	}

	localPort := rest[lastColon+1:]
	return uri.Parse(uriString[:len("udp://")+lastColon] + "?local_port=" + localPort)
}

// openURIUDP applies the UDP option defaults and opens the bidirectional
// stream. connected defaults to 1 without local_port and to 0 with it.
// ignore_connrefused defaults to 0 on a socket connected without local_port
// and to 1 otherwise; ignore_hostunreach and ignore_netunreach default to 0.
// ignore_connrefused=0 on an unconnected socket is rejected.
func (d *Driver) openURIUDP(parsed uri.URI) error {
	if parsed.Port == 0 {
		return errors.NewInvalid("openURI", "missing port specification in udp URI")
	}

	localPort := parsed.Option("local_port", "")
	ignoreConnRefused := parsed.Option("ignore_connrefused", "")
	ignoreHostUnreach := parsed.Option("ignore_hostunreach", "0")
	ignoreNetUnreach := parsed.Option("ignore_netunreach", "0")
	connected := parsed.Option("connected", "")

	if localPort == "" && ignoreConnRefused == "" {
		d.logger.Warn("udp://host:port streams historically would report connection refused errors. " +
			"This default behavior will change in the future. Set the ignore_connrefused option to 1 " +
			"to update to the new behavior and remove this warning, or set it to 0 to ensure that the " +
			"behavior will be retained when the default changes")
	}
	if localPort != "" && connected == "" {
		d.logger.Warn("udp://host:remote_port?local_port=PORT historically was not connecting the " +
			"socket, which means that any remote host could send messages to the local socket. " +
			"This default behavior will change in the future. Set the connected option to 1 to allow " +
			"only the specified remote host to send packets, or to 0 to keep the current behavior " +
			"even after the default is changed")
	}

	if connected == "" {
		if localPort == "" {
			connected = "1"
		} else {
			connected = "0"
		}
	}
	isConnected := connected == "1"

	if ignoreConnRefused == "" {
		if isConnected && localPort != "" {
			ignoreConnRefused = "1"
		} else if isConnected {
			ignoreConnRefused = "0"
		} else {
			ignoreConnRefused = "1"
		}
	}
	if localPort == "" {
		localPort = "0"
	}
	if ignoreConnRefused == "0" && !isConnected {
		return errors.NewInvalid("openURI",
			"cannot set ignore_connrefused=0 on an unconnected UDP stream")
	}

	localPortValue, err := strconv.Atoi(localPort)
	if err != nil {
		return errors.Invalidf("openURI", "invalid local_port %q in udp URI", localPort)
	}

	return d.OpenUDPBidirectional(parsed.Host, parsed.Port, localPortValue, UDPOptions{
		Connected:         isConnected,
		IgnoreConnRefused: ignoreConnRefused == "1",
		IgnoreHostUnreach: ignoreHostUnreach == "1",
		IgnoreNetUnreach:  ignoreNetUnreach == "1",
	})
}

// OpenSerial opens a serial device, applies the line configuration and
// attaches it. EOF detection is disabled: serial-over-USB converters return
// spurious zero-byte reads.
func (d *Driver) OpenSerial(device string, baudRate int, config serial.Configuration) error {
	fd, err := serial.Open(device, baudRate)
	if err != nil {
		return err
	}
	if err := serial.Apply(fd, config); err != nil {
		syscall.Close(fd)
		return err
	}
	return d.SetFileDescriptor(fd, true, false)
}

// SetSerialBaudrate changes the line speed of the attached serial stream.
func (d *Driver) SetSerialBaudrate(rate int) error {
	if d.stream == nil {
		return errors.ErrNotOpen
	}
	return serial.SetBaudrate(d.FileDescriptor(), rate)
}

// OpenFile opens a file or named pipe and attaches it.
func (d *Driver) OpenFile(path string) error {
	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_SYNC|syscall.O_NONBLOCK, 0)
	if err != nil {
		return errors.NewUnix("open", "cannot open file "+path, err)
	}
	return d.SetFileDescriptor(fd, true, true)
}

// OpenTCP connects to a TCP endpoint and attaches the connection.
func (d *Driver) OpenTCP(host string, port int) error {
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return errors.Invalidf("openTCP", "cannot resolve %s:%d: %s", host, port, err)
	}
	sa, family, err := ipToSockaddr(addr.IP, addr.Port)
	if err != nil {
		return err
	}

	fd, err := syscall.Socket(family, syscall.SOCK_STREAM|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return errors.NewUnix("socket", "cannot create the client socket", err)
	}
	if err := syscall.Connect(fd, sa); err != nil {
		syscall.Close(fd)
		return errors.NewUnix("connect", fmt.Sprintf("cannot connect to %s:%d", host, port), err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1); err != nil {
		syscall.Close(fd)
		return errors.NewUnix("setsockopt", "cannot set the TCP_NODELAY flag", err)
	}
	return d.SetFileDescriptor(fd, true, true)
}

// OpenTCPServer binds a listening socket serving at most one client at a
// time and attaches it. Accepting is folded into the read/write waits.
func (d *Driver) OpenTCPServer(port int) error {
	fd, err := bindSocket(syscall.AF_INET, syscall.SOCK_STREAM, port)
	if err != nil {
		return err
	}
	if err := syscall.Listen(fd, 5); err != nil {
		syscall.Close(fd)
		return errors.NewUnix("listen", "cannot listen on the server socket", err)
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return errors.NewUnix("fcntl", "cannot set the O_NONBLOCK flag", err)
	}
	d.SetMainStream(stream.NewTCPServerStream(fd))
	return nil
}

// OpenUDPServer binds a datagram socket whose peer is learned from the
// first received datagram.
func (d *Driver) OpenUDPServer(port int) error {
	fd, err := bindSocket(syscall.AF_INET, syscall.SOCK_DGRAM, port)
	if err != nil {
		return err
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return errors.NewUnix("fcntl", "cannot set the O_NONBLOCK flag", err)
	}
	d.SetMainStream(stream.NewUDPServerStream(fd, true))
	return nil
}

// UDPOptions carries the connection and error-masking configuration of a
// bidirectional UDP stream.
type UDPOptions struct {
	// Connected connects the socket to the remote peer, restricting who
	// may send to the local socket and enabling ICMP error reporting.
	Connected bool

	IgnoreConnRefused bool
	IgnoreHostUnreach bool
	IgnoreNetUnreach  bool
}

// OpenUDPBidirectional binds a local datagram socket and pins its peer to
// host:remotePort.
func (d *Driver) OpenUDPBidirectional(host string, remotePort, localPort int, opts UDPOptions) error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(remotePort)))
	if err != nil {
		return errors.Invalidf("openUDP", "cannot resolve %s:%d: %s", host, remotePort, err)
	}
	peer, family, err := ipToSockaddr(addr.IP, addr.Port)
	if err != nil {
		return err
	}

	fd, err := bindSocket(family, syscall.SOCK_DGRAM, localPort)
	if err != nil {
		return err
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return errors.NewUnix("fcntl", "cannot set the O_NONBLOCK flag", err)
	}
	if opts.Connected {
		if err := syscall.Connect(fd, peer); err != nil {
			syscall.Close(fd)
			return errors.NewUnix("connect", fmt.Sprintf("cannot connect to %s:%d", host, remotePort), err)
		}
	}

	s := stream.NewUDPClientStream(fd, true, peer)
	s.SetIgnoreConnRefused(opts.IgnoreConnRefused)
	s.SetIgnoreHostUnreach(opts.IgnoreHostUnreach)
	s.SetIgnoreNetUnreach(opts.IgnoreNetUnreach)
	d.SetMainStream(s)
	return nil
}

// bindSocket creates a socket of the given family and type bound to the
// wildcard address on port.
func bindSocket(family, sockType, port int) (int, error) {
	fd, err := syscall.Socket(family, sockType|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, errors.NewUnix("socket", "cannot create the server socket", err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		syscall.Close(fd)
		return -1, errors.NewUnix("setsockopt", "cannot set SO_REUSEADDR", err)
	}

	var sa syscall.Sockaddr
	if family == syscall.AF_INET6 {
		sa = &syscall.SockaddrInet6{Port: port}
	} else {
		sa = &syscall.SockaddrInet4{Port: port}
	}
	if err := syscall.Bind(fd, sa); err != nil {
		syscall.Close(fd)
		return -1, errors.NewUnix("bind", fmt.Sprintf("cannot open server socket on port %d", port), err)
	}
	return fd, nil
}

// ipToSockaddr converts a resolved IP and port to a syscall socket address.
func ipToSockaddr(ip net.IP, port int) (syscall.Sockaddr, int, error) {
	if ip == nil {
		return nil, 0, errors.NewInvalid("resolve", "address did not resolve to an IP")
	}
	if ip4 := ip.To4(); ip4 != nil {
		sa := &syscall.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return sa, syscall.AF_INET, nil
	}
	sa := &syscall.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return sa, syscall.AF_INET6, nil
}
