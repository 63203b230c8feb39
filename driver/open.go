package driver

import (
	"github.com/gorilla/websocket"

	"github.com/c360/iodriver/stream"
)

// OpenTestMode attaches an in-memory test stream, keeping any test stream
// already attached.
func (d *Driver) OpenTestMode() {
	if _, ok := d.stream.(*stream.TestStream); ok {
		return
	}
	d.SetMainStream(stream.NewTestStream())
}

// OpenWebSocket dials a WebSocket endpoint and attaches it as the main
// stream. Each WritePacket becomes one binary message.
func (d *Driver) OpenWebSocket(url string) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return err
	}
	d.SetMainStream(stream.NewWSStream(conn))
	return nil
}
