package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MockServer is an in-process WebSocket server for testing. By default it
// echoes every text frame back to the sender.
type MockServer struct {
	server *httptest.Server
	url    string

	mu          sync.Mutex
	conns       map[*websocket.Conn]struct{}
	buffer      [][]byte
	onConnect   func(*websocket.Conn)
	onMessage   func(*websocket.Conn, []byte)
	reject      bool
	rejectCount int
}

// NewMockServer starts a mock WebSocket server.
func NewMockServer() *MockServer {
	m := &MockServer{
		conns: make(map[*websocket.Conn]struct{}),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	m.url = "ws" + strings.TrimPrefix(m.server.URL, "http")
	return m
}

// URL returns the ws:// address of the server.
func (m *MockServer) URL() string {
	return m.url
}

// Close shuts the server down.
func (m *MockServer) Close() {
	m.server.Close()
}

// SetReject configures whether new upgrade requests are refused.
func (m *MockServer) SetReject(reject bool) {
	m.mu.Lock()
	m.reject = reject
	m.mu.Unlock()
}

// RejectCount returns how many upgrade requests were refused.
func (m *MockServer) RejectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejectCount
}

// OnConnect sets a callback invoked for each accepted connection.
func (m *MockServer) OnConnect(fn func(*websocket.Conn)) {
	m.mu.Lock()
	m.onConnect = fn
	m.mu.Unlock()
}

// OnMessage sets a callback invoked for each received text frame.
func (m *MockServer) OnMessage(fn func(*websocket.Conn, []byte)) {
	m.mu.Lock()
	m.onMessage = fn
	m.mu.Unlock()
}

// DropAll abruptly closes every active connection without a close handshake,
// so clients observe an unclean end.
func (m *MockServer) DropAll() {
	m.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// Broadcast sends one text frame to every active connection.
func (m *MockServer) Broadcast(data []byte) {
	m.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(time.Second))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			m.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (m *MockServer) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Received returns a copy of every text frame received so far.
func (m *MockServer) Received() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.buffer))
	copy(out, m.buffer)
	return out
}

func (m *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	reject := m.reject
	if reject {
		m.rejectCount++
	}
	onConnect := m.onConnect
	m.mu.Unlock()

	if reject {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	m.mu.Lock()
	m.conns[conn] = struct{}{}
	m.mu.Unlock()
	if onConnect != nil {
		onConnect(conn)
	}

	defer func() {
		m.remove(conn)
		conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		m.mu.Lock()
		m.buffer = append(m.buffer, data)
		onMessage := m.onMessage
		m.mu.Unlock()

		if onMessage != nil {
			onMessage(conn, data)
		}

		// Echo by default
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (m *MockServer) remove(conn *websocket.Conn) {
	m.mu.Lock()
	delete(m.conns, conn)
	m.mu.Unlock()
}
