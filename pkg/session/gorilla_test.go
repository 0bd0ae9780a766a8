package session

import (
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMockServer starts a mock server that is torn down with the test.
func setupMockServer(t *testing.T) (*MockServer, string) {
	t.Helper()
	m := NewMockServer()
	t.Cleanup(m.Close)
	return m, m.URL()
}

func gorillaManager(t *testing.T, opts Options) Manager {
	t.Helper()
	logger := quietLogger()
	if opts.ReconnectInterval == 0 {
		opts.ReconnectInterval = 50 * time.Millisecond
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 25 * time.Millisecond
	}
	opts.Logger = logger
	opts.Transport = func() Transport {
		return NewGorillaTransport(logger)
	}
	mgr := NewManager(opts)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func TestGorillaConnectAndEcho(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	mgr := gorillaManager(t, Options{})

	received := make(chan Response, 1)
	mgr.Subscribe(func(resp Response) {
		received <- resp
	})

	mgr.Connect(wsURL)
	require.Eventually(t, func() bool {
		return mgr.State() == StateOpen
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, mgr.SendMessage(`{"cmd":"ping","n":1}`))

	select {
	case resp := <-received:
		assert.Equal(t, "ping", resp.Command)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for echoed message")
	}

	messages := mock.Received()
	require.Len(t, messages, 1)
	assert.JSONEq(t, `{"cmd":"ping","n":1}`, string(messages[0]))
}

func TestGorillaReconnectAfterDrop(t *testing.T) {
	mock, wsURL := setupMockServer(t)

	var mu sync.Mutex
	connects := 0
	mock.OnConnect(func(*websocket.Conn) {
		mu.Lock()
		connects++
		mu.Unlock()
	})

	mgr := gorillaManager(t, Options{ReconnectInterval: 50 * time.Millisecond})
	mgr.Connect(wsURL)
	require.Eventually(t, func() bool {
		return mgr.State() == StateOpen
	}, 2*time.Second, 10*time.Millisecond)

	mock.DropAll()

	// Recovery is transparent: the same handle retries and the stream
	// resumes on the new connection.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return connects >= 2 && mgr.State() == StateOpen
	}, 3*time.Second, 10*time.Millisecond)
}

func TestGorillaCleanCloseStaysDown(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	mgr := gorillaManager(t, Options{ReconnectInterval: 30 * time.Millisecond})

	mgr.Connect(wsURL)
	require.Eventually(t, func() bool {
		return mgr.State() == StateOpen
	}, 2*time.Second, 10*time.Millisecond)

	mgr.Disconnect()
	require.Eventually(t, func() bool {
		return mgr.State() == StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)

	// A deliberate close is final: no reconnect is scheduled.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, StateDisconnected, mgr.State())
	assert.Equal(t, 0, mock.ConnectionCount())
}

func TestGorillaConnectFailureEntersRetryLoop(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	mock.SetReject(true)

	mgr := gorillaManager(t, Options{ReconnectInterval: 40 * time.Millisecond})
	mgr.Connect(wsURL)

	// Handshake failures surface only as scheduled reconnects, never to
	// the Connect caller.
	require.Eventually(t, func() bool {
		return mock.RejectCount() >= 2
	}, 3*time.Second, 10*time.Millisecond)

	// Once the endpoint recovers, the fixed-interval loop gets through.
	mock.SetReject(false)
	require.Eventually(t, func() bool {
		return mgr.State() == StateOpen
	}, 3*time.Second, 10*time.Millisecond)
}

func TestGorillaDialRetry(t *testing.T) {
	mock, wsURL := setupMockServer(t)
	mock.SetReject(true)

	transport := NewGorillaTransport(quietLogger(),
		WithDialRetry(3, 10*time.Millisecond),
	)

	errs := make(chan error, 1)
	transport.Bind(Handlers{
		OnError: func(err error) { errs <- err },
	})
	transport.Connect(wsURL)

	select {
	case err := <-errs:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for dial failure")
	}
	assert.Equal(t, 3, mock.RejectCount(), "handshake should be retried within a single attempt")
}

func TestGorillaSendWithoutConnection(t *testing.T) {
	transport := NewGorillaTransport(quietLogger())
	err := transport.Send([]byte("hello"))
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestGorillaHeartbeatReachesServer(t *testing.T) {
	mock, wsURL := setupMockServer(t)

	var mu sync.Mutex
	pings := 0
	mock.OnConnect(func(conn *websocket.Conn) {
		conn.SetPingHandler(func(string) error {
			mu.Lock()
			pings++
			mu.Unlock()
			return nil
		})
	})

	mgr := gorillaManager(t, Options{HeartbeatInterval: 20 * time.Millisecond})
	mgr.Connect(wsURL)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return pings >= 2
	}, 3*time.Second, 10*time.Millisecond)
}
