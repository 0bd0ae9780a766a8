package session

import (
	"sync"
	"time"
)

// MockTransport implements the Transport interface for testing. Events are
// driven explicitly through the Simulate methods, and every operation is
// recorded for verifying test expectations.
type MockTransport struct {
	mu sync.Mutex

	handlers Handlers
	alive    bool

	connectCalls []string
	closeCalls   []int
	pingCalls    int
	sent         [][]byte

	// For simulating errors and send timing
	sendErr   error
	sendDelay time.Duration

	// Overlap detection for the send gate
	inFlight   bool
	overlapped bool
}

// NewMockTransport creates a new mock transport for testing.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Bind implements Transport.
func (m *MockTransport) Bind(h Handlers) {
	m.mu.Lock()
	m.handlers = h
	m.mu.Unlock()
}

// Connect implements Transport. It records the address and resolves only
// when a Simulate method is called.
func (m *MockTransport) Connect(addr string) {
	m.mu.Lock()
	m.connectCalls = append(m.connectCalls, addr)
	m.mu.Unlock()
}

// Send implements Transport. It flags overlapping issuances and records the
// payload after the configured delay.
func (m *MockTransport) Send(data []byte) error {
	m.mu.Lock()
	if m.inFlight {
		m.overlapped = true
	}
	m.inFlight = true
	delay := m.sendDelay
	err := m.sendErr
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	m.inFlight = false
	if err == nil {
		m.sent = append(m.sent, append([]byte(nil), data...))
	}
	m.mu.Unlock()
	return err
}

// Close implements Transport. It records the status code; the closed event
// must be driven separately with SimulateClose.
func (m *MockTransport) Close(code int) {
	m.mu.Lock()
	m.closeCalls = append(m.closeCalls, code)
	m.mu.Unlock()
}

// Ping implements Transport.
func (m *MockTransport) Ping() {
	m.mu.Lock()
	m.pingCalls++
	m.mu.Unlock()
}

// Alive implements Transport.
func (m *MockTransport) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive
}

// SetAlive overrides the liveness flag.
func (m *MockTransport) SetAlive(alive bool) {
	m.mu.Lock()
	m.alive = alive
	m.mu.Unlock()
}

// SetSendError sets an error to be returned by Send.
func (m *MockTransport) SetSendError(err error) {
	m.mu.Lock()
	m.sendErr = err
	m.mu.Unlock()
}

// SetSendDelay makes each Send block for d before completing, widening the
// window in which overlapping issuances would be observed.
func (m *MockTransport) SetSendDelay(d time.Duration) {
	m.mu.Lock()
	m.sendDelay = d
	m.mu.Unlock()
}

// SimulateOpen raises the opened event and marks the transport alive.
func (m *MockTransport) SimulateOpen() {
	m.mu.Lock()
	m.alive = true
	h := m.handlers
	m.mu.Unlock()
	if h.OnOpen != nil {
		h.OnOpen()
	}
}

// SimulateMessage raises the message event with raw wire text.
func (m *MockTransport) SimulateMessage(data []byte) {
	m.mu.Lock()
	h := m.handlers
	m.mu.Unlock()
	if h.OnMessage != nil {
		h.OnMessage(data)
	}
}

// SimulateError raises the error event and marks the transport dead.
func (m *MockTransport) SimulateError(err error) {
	m.mu.Lock()
	m.alive = false
	h := m.handlers
	m.mu.Unlock()
	if h.OnError != nil {
		h.OnError(err)
	}
}

// SimulateClose raises the closed event and marks the transport dead.
func (m *MockTransport) SimulateClose(clean bool) {
	m.mu.Lock()
	m.alive = false
	h := m.handlers
	m.mu.Unlock()
	if h.OnClose != nil {
		h.OnClose(clean)
	}
}

// ConnectCalls returns the addresses passed to Connect, in call order.
func (m *MockTransport) ConnectCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.connectCalls...)
}

// CloseCalls returns the status codes passed to Close, in call order.
func (m *MockTransport) CloseCalls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.closeCalls...)
}

// PingCount returns the number of liveness probes issued.
func (m *MockTransport) PingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingCalls
}

// Sent returns the payloads issued so far, in issuance order.
func (m *MockTransport) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// Overlapped reports whether two issuances were ever observed in flight at
// the same time.
func (m *MockTransport) Overlapped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlapped
}
