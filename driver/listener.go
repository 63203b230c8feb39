package driver

// Listener observes the raw bytes transferred by a driver. ReadData and
// WriteData receive the exact byte views moved on the wire, in transfer
// order, before the triggering ReadPacket or WritePacket returns. The views
// are only valid for the duration of the call; listeners must copy what they
// keep.
type Listener interface {
	ReadData(data []byte)
	WriteData(data []byte)
}

// BufferListener records transferred bytes into two in-memory queues for
// passive logging.
type BufferListener struct {
	readBuffer  []byte
	writeBuffer []byte
}

// NewBufferListener creates an empty recording listener.
func NewBufferListener() *BufferListener {
	return &BufferListener{}
}

// ReadData implements Listener.
func (l *BufferListener) ReadData(data []byte) {
	l.readBuffer = append(l.readBuffer, data...)
}

// WriteData implements Listener.
func (l *BufferListener) WriteData(data []byte) {
	l.writeBuffer = append(l.writeBuffer, data...)
}

// FlushRead drains and returns the recorded read bytes.
func (l *BufferListener) FlushRead() []byte {
	data := l.readBuffer
	l.readBuffer = nil
	return data
}

// FlushWrite drains and returns the recorded written bytes.
func (l *BufferListener) FlushWrite() []byte {
	data := l.writeBuffer
	l.writeBuffer = nil
	return data
}
