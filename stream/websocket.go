package stream

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/iodriver/errors"
)

// WSStream implements Stream over a WebSocket connection. Each Write becomes
// one binary message; received messages queue up until drained by Read.
//
// WebSocket connections are not backed by a pollable descriptor, so
// FileDescriptor returns InvalidFD and the stream cannot be used with the
// FD-level forwarder.
type WSStream struct {
	conn     *websocket.Conn
	incoming chan []byte
	pending  []byte

	mu       sync.Mutex
	readErr  error
	eof      bool
	closed   bool
	stopOnce sync.Once
}

var _ Stream = (*WSStream)(nil)

// NewWSStream wraps an established WebSocket connection and starts the
// receive pump.
func NewWSStream(conn *websocket.Conn) *WSStream {
	s := &WSStream{
		conn:     conn,
		incoming: make(chan []byte, 64),
	}
	go s.readPump()
	return s
}

// readPump moves messages from the connection into the incoming queue until
// the connection fails or closes.
func (s *WSStream) readPump() {
	defer close(s.incoming)
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !s.closed {
				s.readErr = err
			}
			s.mu.Unlock()
			return
		}
		s.incoming <- message
	}
}

// WaitRead implements Stream.
func (s *WSStream) WaitRead(timeout time.Duration) (bool, error) {
	if len(s.pending) > 0 {
		return true, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case message, ok := <-s.incoming:
		if !ok {
			s.markEOF()
			return true, nil
		}
		s.pending = append(s.pending, message...)
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

// WaitWrite implements Stream. Message writes never need readiness.
func (s *WSStream) WaitWrite(time.Duration) (bool, error) {
	return true, nil
}

// Read implements Stream.
func (s *WSStream) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		select {
		case message, ok := <-s.incoming:
			if !ok {
				s.markEOF()
				return 0, s.takeReadErr()
			}
			s.pending = message
		default:
			return 0, nil
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Write implements Stream by sending one binary message.
func (s *WSStream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, errors.NewUnix("write", "error writing the websocket connection", err)
	}
	return len(p), nil
}

// Clear implements Stream by dropping buffered and queued messages.
func (s *WSStream) Clear() error {
	s.pending = nil
	for {
		select {
		case _, ok := <-s.incoming:
			if !ok {
				s.markEOF()
				return nil
			}
		default:
			return nil
		}
	}
}

// EOF implements Stream.
func (s *WSStream) EOF() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eof
}

// FileDescriptor implements Stream.
func (s *WSStream) FileDescriptor() int { return InvalidFD }

// Close implements Stream.
func (s *WSStream) Close() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *WSStream) markEOF() {
	s.mu.Lock()
	s.eof = true
	s.mu.Unlock()
}

func (s *WSStream) takeReadErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr == nil {
		return nil
	}
	err := s.readErr
	s.readErr = nil
	return errors.NewUnix("read", "error reading the websocket connection", err)
}
