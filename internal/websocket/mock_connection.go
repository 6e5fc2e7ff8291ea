package websocket

import (
	"errors"
	"sync"
	"time"
)

// ErrConnectionClosed is returned by MockConnection operations after
// Close.
var ErrConnectionClosed = errors.New("connection closed")

// MockConnection is an in-memory Connection for tests. Written frames
// are captured; reads block until a frame is queued or the connection
// closes.
type MockConnection struct {
	mu      sync.Mutex
	written [][]byte
	inbound chan []byte
	closed  bool
	done    chan struct{}

	writeErr error
}

// NewMockConnection creates a mock connection.
func NewMockConnection() *MockConnection {
	return &MockConnection{
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

// QueueIncoming schedules a frame for the next ReadMessage call.
func (m *MockConnection) QueueIncoming(data []byte) {
	m.inbound <- data
}

// FailWrites makes every later WriteMessage return err.
func (m *MockConnection) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Written returns a copy of every frame written so far.
func (m *MockConnection) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

func (m *MockConnection) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrConnectionClosed
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	m.written = append(m.written, frame)
	return nil
}

func (m *MockConnection) ReadMessage() (int, []byte, error) {
	select {
	case data := <-m.inbound:
		return 1, data, nil
	case <-m.done:
		return 0, nil, ErrConnectionClosed
	}
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *MockConnection) SetReadDeadline(t time.Time) error  { return nil }
func (m *MockConnection) SetWriteDeadline(t time.Time) error { return nil }
func (m *MockConnection) SetReadLimit(limit int64)           {}
func (m *MockConnection) SetPongHandler(h func(string) error) {}
func (m *MockConnection) RemoteAddr() string                 { return "192.0.2.1:54321" }
