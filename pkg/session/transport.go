package session

// StatusNormal is the close status code used for a deliberate, clean shutdown
// (RFC 6455 normal closure).
const StatusNormal = 1000

// Handlers carries the four event callbacks a Transport delivers to its owner.
// A transport raises exactly one terminal event (error or close) per connection
// attempt; opened always precedes any message, and any message precedes the
// terminal event for that attempt.
type Handlers struct {
	// OnOpen fires once the connection is established.
	OnOpen func()

	// OnMessage fires for each received text frame with the raw payload.
	OnMessage func(data []byte)

	// OnError fires when the connection fails, either during the handshake
	// or mid-session.
	OnError func(err error)

	// OnClose fires when the connection ends with a close handshake.
	// clean is true when the closure was deliberate and non-erroneous.
	OnClose func(clean bool)
}

// Transport is the underlying bidirectional message-oriented connection.
// Implementations own the wire protocol (framing, TLS, handshake); the
// session manager owns lifecycle, recovery and send serialization on top.
//
// Connect and Close are asynchronous: they return immediately and report
// their outcome only through the bound Handlers. Connect may be invoked
// again on the same handle after a failure to retry.
type Transport interface {
	// Bind registers the event callbacks. It must be called before Connect.
	Bind(h Handlers)

	// Connect begins connecting to addr without blocking.
	Connect(addr string)

	// Send writes one text frame. A nil return means the write was issued,
	// not that the peer received it.
	Send(data []byte) error

	// Close begins a close handshake with the given status code without
	// blocking. Closing an unconnected handle is a no-op.
	Close(code int)

	// Ping issues a fire-and-forget liveness probe.
	Ping()

	// Alive reports whether the transport currently believes itself connected.
	Alive() bool
}

// TransportFactory produces a fresh Transport handle. The session manager
// calls it on every Connect, replacing the previous handle wholesale.
type TransportFactory func() Transport
