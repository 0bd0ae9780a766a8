// Package ws-session provides a resilient client-side WebSocket session
// manager: one logical connection over an unreliable transport, with
// automatic recovery from drops, periodic heartbeats, and serialized
// outbound writes.
//
// Core Features:
//
//   - Fixed-interval reconnect after transport errors and unclean closes,
//     with no retry ceiling
//   - Heartbeat probes while the session is open
//   - A capacity-one send gate so concurrent callers never interleave frames
//   - Normalization of inbound wire payloads into a single canonical
//     response shape
//   - Pluggable transports; a gorilla/websocket transport is included
//
// The library is built around the session.Manager interface. Manager owns
// the transport handle and two timers; recovery is driven purely by the
// transport's event stream, never by blocking calls, so Connect, Disconnect
// and Close all return immediately.
//
// # Standard Errors
//
//   - session.ErrNotConnected: a send was attempted with no connected
//     transport attached
//
//   - session.ErrMalformedMessage: wraps inbound payloads that are not
//     well-formed JSON objects; such payloads are dropped, never emitted
//
// # Example
//
//	logger := logging.NewZapLogger(logging.WithLogLevel(logging.INFO))
//	mgr := session.NewManager(session.Options{
//		HeartbeatInterval: 30 * time.Second,
//		ReconnectInterval: 15 * time.Second,
//		Logger:            logger,
//	})
//	mgr.Subscribe(func(resp session.Response) {
//		logger.Info("inbound", logging.String("cmd", resp.Command))
//	})
//	mgr.Connect("wss://example.com/socket")
//	defer mgr.Close()
//
//	if err := mgr.SendJSONMessage(map[string]string{"cmd": "hello"}); err != nil {
//		logger.Error("send failed", logging.Error(err))
//	}
//
// Lifecycle failures are recovered locally by the reconnect loop and never
// surface to callers as errors; callers observe recovery only as a gap in
// the inbound stream followed by its resumption. Only synchronous,
// pre-transport failures (outbound serialization, sending with no transport)
// propagate to the immediate caller.
package wssession
