// Package iodriver is a foundation for writing device drivers that exchange
// discrete, variable-length packets over byte-oriented, potentially lossy or
// noisy streams: serial lines, TCP sockets, UDP datagram sockets, WebSocket
// connections, named pipes and files.
//
// Reads on such transports seldom deliver a whole packet in one call. Bytes
// arrive fragmented, interleaved with garbage or truncated packets, and the
// caller must respect timeouts per packet, per first byte and per inter-byte
// gap. The driver package solves this once: device drivers supply a small
// packet extractor and get reassembly, scrubbing, timeout handling and I/O
// accounting for free.
//
// The module is organized as follows:
//
//   - driver: the packet-reassembly engine and the connection facade
//   - stream: the transport abstraction (FD, TCP server, UDP, WebSocket, test)
//   - bus: sharing one stream among several packet framings (RS-485 style)
//   - forward: pumping bytes between two engines, raw or packetized
//   - drivertest: a fixture for testing drivers against an in-memory stream
//   - natstap: mirroring raw device I/O onto NATS subjects
//   - serial: serial line configuration and termios plumbing
//   - uri: the connection URI grammar
//   - errors: the error taxonomy shared by all packages
//   - metric: Prometheus metric registration for driver statistics
//
// Process-level note: writing to a TCP socket whose peer vanished raises
// SIGPIPE. The module does not install signal handlers behind the caller's
// back; programs forwarding over TCP should ignore SIGPIPE themselves.
package iodriver
