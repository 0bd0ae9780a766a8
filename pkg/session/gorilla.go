package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/gorilla/websocket"

	"github.com/veiloq/ws-session/pkg/logging"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	controlTimeout   = time.Second

	// closeGrace lets the close frame flush and the peer reply before the
	// underlying conn is torn down.
	closeGrace = 100 * time.Millisecond
)

// GorillaTransport is the production Transport backed by gorilla/websocket.
//
// Connect may be called again on the same handle after a failure; each call
// dials a fresh underlying connection, so handle reuse never reuses a dead
// network conn. Send is not internally serialized beyond a write deadline —
// the session manager's send gate is the single-writer discipline.
type GorillaTransport struct {
	logger      logging.Logger
	dialRetries uint
	dialDelay   time.Duration

	mu       sync.Mutex
	handlers Handlers
	conn     *websocket.Conn
	alive    bool
	closing  bool
	gen      int // bumps on every Connect; stale read loops exit silently
}

// GorillaOption configures a GorillaTransport.
type GorillaOption func(*GorillaTransport)

// WithDialRetry retries a failed handshake up to attempts times with a fixed
// delay before the error event is raised. The default is a single attempt.
func WithDialRetry(attempts uint, delay time.Duration) GorillaOption {
	return func(t *GorillaTransport) {
		if attempts > 0 {
			t.dialRetries = attempts
		}
		t.dialDelay = delay
	}
}

// NewGorillaTransport creates a gorilla/websocket transport.
func NewGorillaTransport(logger logging.Logger, opts ...GorillaOption) *GorillaTransport {
	if logger == nil {
		logger = logging.NewLogger()
	}
	t := &GorillaTransport{
		logger:      logger,
		dialRetries: 1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Bind implements Transport.
func (t *GorillaTransport) Bind(h Handlers) {
	t.mu.Lock()
	t.handlers = h
	t.mu.Unlock()
}

// Connect implements Transport. It dials addr on its own goroutine and
// reports the outcome through the bound handlers: OnOpen on success, OnError
// on handshake failure.
func (t *GorillaTransport) Connect(addr string) {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.closing = false
	h := t.handlers
	t.mu.Unlock()

	go func() {
		conn, err := t.dial(addr)
		if err != nil {
			if h.OnError != nil {
				h.OnError(fmt.Errorf("dial %s: %w", addr, err))
			}
			return
		}

		t.mu.Lock()
		if gen != t.gen {
			t.mu.Unlock()
			conn.Close()
			return
		}
		t.conn = conn
		t.alive = true
		t.mu.Unlock()

		go t.readLoop(conn, gen, h)
		if h.OnOpen != nil {
			h.OnOpen()
		}
	}()
}

func (t *GorillaTransport) dial(addr string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	var conn *websocket.Conn
	err := retry.Do(
		func() error {
			c, _, err := dialer.Dial(addr, nil)
			if err != nil {
				return err
			}
			conn = c
			return nil
		},
		retry.Attempts(t.dialRetries),
		retry.Delay(t.dialDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	return conn, err
}

func (t *GorillaTransport) readLoop(conn *websocket.Conn, gen int, h Handlers) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			stale := gen != t.gen
			requested := t.closing
			if !stale {
				t.alive = false
			}
			t.mu.Unlock()

			conn.Close()
			if stale {
				return
			}

			switch {
			case requested || websocket.IsCloseError(err, websocket.CloseNormalClosure):
				if h.OnClose != nil {
					h.OnClose(true)
				}
			case isCloseError(err):
				t.logger.Warn("unclean close", logging.Error(err))
				if h.OnClose != nil {
					h.OnClose(false)
				}
			default:
				t.logger.Warn("read error", logging.Error(err))
				if h.OnError != nil {
					h.OnError(err)
				}
			}
			return
		}

		if h.OnMessage != nil {
			h.OnMessage(data)
		}
	}
}

// isCloseError reports whether err carries a peer close status.
func isCloseError(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce)
}

// Send implements Transport. A nil return means the frame was written to the
// connection, not that the peer received it.
func (t *GorillaTransport) Send(data []byte) error {
	t.mu.Lock()
	conn, alive := t.conn, t.alive
	t.mu.Unlock()
	if conn == nil || !alive {
		return ErrNotConnected
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close implements Transport. The closed event arrives through the read loop
// once the peer acknowledges, or after the grace period expires.
func (t *GorillaTransport) Close(code int) {
	t.mu.Lock()
	conn := t.conn
	already := t.closing
	t.closing = true
	t.mu.Unlock()
	if conn == nil || already {
		return
	}

	go func() {
		deadline := time.Now().Add(controlTimeout)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), deadline)
		time.Sleep(closeGrace)
		_ = conn.Close()
	}()
}

// Ping implements Transport. Probe failures surface through the read loop,
// not here.
func (t *GorillaTransport) Ping() {
	t.mu.Lock()
	conn, alive := t.conn, t.alive
	t.mu.Unlock()
	if conn == nil || !alive {
		return
	}
	_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlTimeout))
}

// Alive implements Transport.
func (t *GorillaTransport) Alive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alive
}
