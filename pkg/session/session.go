package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veiloq/ws-session/pkg/logging"
	"github.com/veiloq/ws-session/pkg/ratelimit"
)

// Default timer intervals. Recovery uses a fixed interval with no growth,
// no jitter and no retry ceiling.
const (
	DefaultReconnectInterval = 15 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
)

// Options configures a session manager.
type Options struct {
	// ReconnectInterval is the fixed delay between a transport failure and
	// the single reconnect attempt it schedules. Zero means the default.
	ReconnectInterval time.Duration

	// HeartbeatInterval is the period of the liveness probe while the
	// session is open. Zero means the default.
	HeartbeatInterval time.Duration

	// SendRate optionally caps outbound message issuance. The zero value
	// disables rate limiting.
	SendRate ratelimit.Rate

	// Transport produces the transport handle used by each Connect call.
	// Nil means a gorilla/websocket transport.
	Transport TransportFactory

	// Logger receives lifecycle and recovery events. Nil means the default
	// stdout logger.
	Logger logging.Logger
}

// Manager maintains a single logical connection over an unreliable transport:
// it recovers from drops on a fixed interval, keeps the link alive with
// periodic probes, and serializes outbound writes so concurrent callers never
// interleave frames.
type Manager interface {
	// Connect begins connecting to addr. It does not block for completion;
	// progress is observable through State and the inbound stream. Calling
	// it again replaces the transport handle.
	Connect(addr string)

	// Disconnect begins a clean close without blocking. Timers are stopped
	// by the ensuing closed event, and no reconnect is scheduled.
	Disconnect()

	// Close has the same effect as Disconnect and is safe to call multiple
	// times and after Disconnect.
	Close() error

	// SendMessage sends raw text. A nil return signals issuance to the
	// transport, not delivery to the peer.
	SendMessage(text string) error

	// SendJSONMessage serializes v and sends it. A serialization failure is
	// returned before any transport interaction.
	SendJSONMessage(v any) error

	// Subscribe registers a handler for the inbound stream. Handlers are
	// invoked synchronously with message receipt, for the lifetime of the
	// manager, across reconnects. With no subscribers messages are dropped.
	Subscribe(h ResponseHandler)

	// State returns the current lifecycle state.
	State() State
}

// manager implements the Manager interface.
type manager struct {
	opts    Options
	logger  logging.Logger
	limiter ratelimit.RateLimiter

	mu        sync.Mutex
	state     State
	transport Transport
	addr      string

	// sendMu is the send gate: it bounds issuance overlap, not on-wire
	// completion overlap, and is released right after each send is issued.
	sendMu sync.Mutex

	reconnect oneShotTimer
	heartbeat repeatingTimer

	handlersMu sync.RWMutex
	handlers   []ResponseHandler
}

// NewManager creates a session manager with the given options.
func NewManager(opts Options) Manager {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger()
	}
	logger := opts.Logger
	if opts.Transport == nil {
		opts.Transport = func() Transport { return NewGorillaTransport(logger) }
	}

	m := &manager{
		opts:   opts,
		logger: logger,
		state:  StateIdle,
	}
	if opts.SendRate.Limit > 0 {
		m.limiter = ratelimit.NewTokenBucketLimiter(opts.SendRate)
	}
	return m
}

// Connect implements Manager. The previous transport handle, if any, is
// abandoned without an explicit close; its remaining events are ignored.
func (m *manager) Connect(addr string) {
	t := m.opts.Transport()

	m.mu.Lock()
	m.addr = addr
	m.transport = t
	m.state = StateConnecting
	m.mu.Unlock()

	log := m.logger.WithFields(
		logging.String("attempt", uuid.NewString()),
		logging.String("addr", addr),
	)

	t.Bind(Handlers{
		OnOpen:    func() { m.onOpen(t, log) },
		OnMessage: func(data []byte) { m.onMessage(t, data) },
		OnError:   func(err error) { m.onError(t, log, err) },
		OnClose:   func(clean bool) { m.onClose(t, log, clean) },
	})

	log.Debug("connecting")
	t.Connect(addr)
}

// Disconnect implements Manager.
func (m *manager) Disconnect() {
	m.mu.Lock()
	t := m.transport
	m.mu.Unlock()
	if t == nil {
		return
	}

	m.logger.Debug("disconnect requested")
	t.Close(StatusNormal)
}

// Close implements Manager. Closing an already-closed transport is a benign
// no-op, so repeated calls are safe.
func (m *manager) Close() error {
	m.Disconnect()
	return nil
}

// SendMessage implements Manager.
func (m *manager) SendMessage(text string) error {
	return m.send([]byte(text))
}

// SendJSONMessage implements Manager.
func (m *manager) SendJSONMessage(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}
	return m.send(data)
}

func (m *manager) send(data []byte) error {
	if m.limiter != nil {
		if err := m.limiter.Wait(context.Background()); err != nil {
			return err
		}
	}

	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	t := m.transport
	m.mu.Unlock()
	if t == nil {
		return ErrNotConnected
	}
	return t.Send(data)
}

// Subscribe implements Manager.
func (m *manager) Subscribe(h ResponseHandler) {
	m.handlersMu.Lock()
	m.handlers = append(m.handlers, h)
	m.handlersMu.Unlock()
}

// State implements Manager.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// current reports whether t is still the active transport handle. Events
// from a replaced handle are discarded.
func (m *manager) current(t Transport) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport == t
}

func (m *manager) onOpen(t Transport, log logging.Logger) {
	m.mu.Lock()
	if m.transport != t {
		m.mu.Unlock()
		return
	}
	m.state = StateOpen
	m.mu.Unlock()

	m.heartbeat.Start(m.opts.HeartbeatInterval, func() {
		// Probe only while the transport reports itself alive; failures are
		// detected by the transport's own error/close events, and the cycle
		// keeps repeating either way.
		if t.Alive() {
			t.Ping()
		}
	})
	log.Info("session open")
}

func (m *manager) onMessage(t Transport, data []byte) {
	if !m.current(t) {
		return
	}

	resp, err := DecodeResponse(data)
	if err != nil {
		m.logger.Debug("dropping inbound message", logging.Error(err))
		return
	}
	m.emit(resp)
}

func (m *manager) emit(resp Response) {
	m.handlersMu.RLock()
	handlers := make([]ResponseHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.handlersMu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("subscriber panic recovered",
						logging.String("command", resp.Command),
						logging.String("panic", fmt.Sprintf("%v", r)),
					)
				}
			}()
			h(resp)
		}()
	}
}

func (m *manager) onError(t Transport, log logging.Logger, err error) {
	m.mu.Lock()
	if m.transport != t {
		m.mu.Unlock()
		return
	}
	m.state = StateReconnecting
	addr := m.addr
	m.mu.Unlock()

	m.heartbeat.Stop()
	log.Warn("transport error, reconnect scheduled",
		logging.Error(err),
		logging.Duration("in", m.opts.ReconnectInterval),
	)
	m.reconnect.Arm(m.opts.ReconnectInterval, func() { m.retry(t, addr) })
}

func (m *manager) onClose(t Transport, log logging.Logger, clean bool) {
	m.mu.Lock()
	if m.transport != t {
		m.mu.Unlock()
		return
	}
	if clean {
		m.state = StateDisconnected
		m.mu.Unlock()

		m.heartbeat.Stop()
		log.Info("session closed")
		return
	}
	m.state = StateReconnecting
	addr := m.addr
	m.mu.Unlock()

	m.heartbeat.Stop()
	log.Warn("unclean close, reconnect scheduled",
		logging.Duration("in", m.opts.ReconnectInterval),
	)
	m.reconnect.Arm(m.opts.ReconnectInterval, func() { m.retry(t, addr) })
}

// retry is the reconnect timer callback: a single connect attempt on the
// existing transport handle. The one-shot timer has already disarmed itself;
// a failed attempt re-enters the error path and re-arms it through the
// normal error event.
func (m *manager) retry(t Transport, addr string) {
	m.mu.Lock()
	if m.transport != t {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.mu.Unlock()

	m.logger.Info("reconnecting",
		logging.String("attempt", uuid.NewString()),
		logging.String("addr", addr),
	)
	t.Connect(addr)
}
