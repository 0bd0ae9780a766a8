package session

import (
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/veiloq/ws-session/pkg/logging"
	"github.com/veiloq/ws-session/pkg/ratelimit"
)

// quietLogger keeps expected lifecycle churn out of the test output.
func quietLogger() logging.Logger {
	l := logging.NewLogger()
	l.SetOutput(io.Discard)
	return l
}

// mockManager builds a manager around mock with short test intervals.
func mockManager(mock *MockTransport, opts Options) Manager {
	opts.Transport = func() Transport { return mock }
	if opts.ReconnectInterval == 0 {
		opts.ReconnectInterval = 40 * time.Millisecond
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 15 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return NewManager(opts)
}

func TestManagerLifecycleStates(t *testing.T) {
	mock := NewMockTransport()
	mgr := mockManager(mock, Options{})

	assert.Equal(t, StateIdle, mgr.State())

	mgr.Connect("ws://one.test/socket")
	assert.Equal(t, StateConnecting, mgr.State())
	require.Equal(t, []string{"ws://one.test/socket"}, mock.ConnectCalls())

	mock.SimulateOpen()
	assert.Equal(t, StateOpen, mgr.State())

	mock.SimulateError(errors.New("conn reset"))
	assert.Equal(t, StateReconnecting, mgr.State())

	// The reconnect timer fires once and retries on the same handle.
	require.Eventually(t, func() bool {
		return len(mock.ConnectCalls()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateConnecting, mgr.State())

	mock.SimulateOpen()
	assert.Equal(t, StateOpen, mgr.State())
}

func TestHeartbeatProbesWhileOpen(t *testing.T) {
	mock := NewMockTransport()
	mgr := mockManager(mock, Options{})

	mgr.Connect("ws://hb.test/socket")
	mock.SimulateOpen()

	require.Eventually(t, func() bool {
		return mock.PingCount() >= 2
	}, time.Second, 5*time.Millisecond)

	// After an error the heartbeat is disarmed.
	mock.SimulateError(errors.New("gone"))
	stopped := mock.PingCount()
	time.Sleep(80 * time.Millisecond)
	assert.LessOrEqual(t, mock.PingCount(), stopped+1)
	_ = mgr
}

func TestHeartbeatSkipsDeadTransport(t *testing.T) {
	mock := NewMockTransport()
	mgr := mockManager(mock, Options{})

	mgr.Connect("ws://hb.test/socket")
	mock.SimulateOpen()

	// Transport reports itself dead: the cycle keeps running but no probe
	// is issued.
	mock.SetAlive(false)
	base := mock.PingCount()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, base, mock.PingCount())
	_ = mgr
}

func TestReconnectFiresExactlyOncePerArming(t *testing.T) {
	mock := NewMockTransport()
	mgr := mockManager(mock, Options{ReconnectInterval: 30 * time.Millisecond})

	mgr.Connect("ws://retry.test/socket")
	mock.SimulateError(errors.New("dial refused"))

	require.Eventually(t, func() bool {
		return len(mock.ConnectCalls()) == 2
	}, time.Second, 5*time.Millisecond)

	// No second firing without an intervening error/unclean close.
	time.Sleep(120 * time.Millisecond)
	assert.Len(t, mock.ConnectCalls(), 2)

	// A new error re-arms the timer for one more attempt.
	mock.SimulateError(errors.New("dial refused again"))
	require.Eventually(t, func() bool {
		return len(mock.ConnectCalls()) == 3
	}, time.Second, 5*time.Millisecond)
	_ = mgr
}

func TestCleanCloseSuppressesReconnect(t *testing.T) {
	mock := NewMockTransport()
	mgr := mockManager(mock, Options{ReconnectInterval: 20 * time.Millisecond})

	mgr.Connect("ws://clean.test/socket")
	mock.SimulateOpen()
	mock.SimulateClose(true)

	assert.Equal(t, StateDisconnected, mgr.State())
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, mock.ConnectCalls(), 1)
}

func TestUncleanCloseSchedulesReconnect(t *testing.T) {
	mock := NewMockTransport()
	mgr := mockManager(mock, Options{ReconnectInterval: 20 * time.Millisecond})

	mgr.Connect("ws://drop.test/socket")
	mock.SimulateOpen()
	mock.SimulateClose(false)

	assert.Equal(t, StateReconnecting, mgr.State())
	require.Eventually(t, func() bool {
		return len(mock.ConnectCalls()) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestDisconnectIssuesNormalClose(t *testing.T) {
	mock := NewMockTransport()
	mgr := mockManager(mock, Options{})

	mgr.Connect("ws://bye.test/socket")
	mock.SimulateOpen()

	mgr.Disconnect()
	require.Equal(t, []int{StatusNormal}, mock.CloseCalls())

	// Close is the same operation and stays safe on repeat calls.
	require.NoError(t, mgr.Close())
	require.NoError(t, mgr.Close())

	mock.SimulateClose(true)
	assert.Equal(t, StateDisconnected, mgr.State())
}

func TestConnectReplacesTransportHandle(t *testing.T) {
	first := NewMockTransport()
	second := NewMockTransport()
	mocks := []*MockTransport{first, second}

	next := 0
	mgr := NewManager(Options{
		ReconnectInterval: 20 * time.Millisecond,
		HeartbeatInterval: 15 * time.Millisecond,
		Logger:            quietLogger(),
		Transport: func() Transport {
			m := mocks[next]
			next++
			return m
		},
	})

	mgr.Connect("ws://old.test/socket")
	first.SimulateOpen()

	// Disconnect immediately followed by Connect operates on the new
	// address; the old handle's events no longer reach the manager.
	mgr.Disconnect()
	mgr.Connect("ws://new.test/socket")
	require.Equal(t, []string{"ws://new.test/socket"}, second.ConnectCalls())

	first.SimulateError(errors.New("stale handle"))
	time.Sleep(80 * time.Millisecond)
	assert.Len(t, first.ConnectCalls(), 1, "stale handle must not be retried")
	assert.Equal(t, StateConnecting, mgr.State())

	second.SimulateOpen()
	assert.Equal(t, StateOpen, mgr.State())
}

func TestSendIssuanceNeverOverlaps(t *testing.T) {
	mock := NewMockTransport()
	mock.SetSendDelay(2 * time.Millisecond)
	mgr := mockManager(mock, Options{})

	mgr.Connect("ws://gate.test/socket")
	mock.SimulateOpen()

	const senders = 8
	const perSender = 5

	var g errgroup.Group
	for i := 0; i < senders; i++ {
		i := i
		g.Go(func() error {
			for j := 0; j < perSender; j++ {
				if err := mgr.SendMessage(fmt.Sprintf(`{"cmd":"seq","sender":%d,"n":%d}`, i, j)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.False(t, mock.Overlapped(), "transport must observe issuances in a total order")
	assert.Len(t, mock.Sent(), senders*perSender)
}

func TestSendWithoutTransport(t *testing.T) {
	mgr := NewManager(Options{Logger: quietLogger()})
	err := mgr.SendMessage("hello")
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestSendErrorReleasesGate(t *testing.T) {
	mock := NewMockTransport()
	mgr := mockManager(mock, Options{})

	mgr.Connect("ws://gate.test/socket")
	mock.SimulateOpen()

	mock.SetSendError(errors.New("broken pipe"))
	require.Error(t, mgr.SendMessage("first"))

	// A failed send must not starve subsequent senders.
	mock.SetSendError(nil)
	require.NoError(t, mgr.SendMessage("second"))
	require.Len(t, mock.Sent(), 1)
	assert.Equal(t, "second", string(mock.Sent()[0]))
}

func TestSendJSONMessage(t *testing.T) {
	mock := NewMockTransport()
	mgr := mockManager(mock, Options{})

	mgr.Connect("ws://json.test/socket")
	mock.SimulateOpen()

	require.NoError(t, mgr.SendJSONMessage(map[string]string{"cmd": "hello"}))
	require.Len(t, mock.Sent(), 1)
	assert.JSONEq(t, `{"cmd":"hello"}`, string(mock.Sent()[0]))
}

func TestSendJSONMessageMarshalFailure(t *testing.T) {
	mock := NewMockTransport()
	mgr := mockManager(mock, Options{})

	mgr.Connect("ws://json.test/socket")
	mock.SimulateOpen()

	// Channels cannot be marshaled; the failure surfaces before any
	// transport interaction.
	err := mgr.SendJSONMessage(make(chan int))
	require.Error(t, err)
	assert.Empty(t, mock.Sent())
}

func TestSendRateLimited(t *testing.T) {
	mock := NewMockTransport()
	mgr := mockManager(mock, Options{
		SendRate: ratelimit.Rate{Limit: 1000, Interval: time.Second},
	})

	mgr.Connect("ws://rate.test/socket")
	mock.SimulateOpen()

	for i := 0; i < 5; i++ {
		require.NoError(t, mgr.SendMessage("tick"))
	}
	assert.Len(t, mock.Sent(), 5)
}

func TestInboundEmission(t *testing.T) {
	mock := NewMockTransport()
	mgr := mockManager(mock, Options{})

	received := make(chan Response, 4)
	mgr.Subscribe(func(resp Response) {
		received <- resp
	})

	mgr.Connect("ws://in.test/socket")
	mock.SimulateOpen()

	t.Run("tagged passthrough", func(t *testing.T) {
		mock.SimulateMessage([]byte(`{"cmd":"update","data":{"v":1}}`))
		select {
		case resp := <-received:
			assert.Equal(t, "update", resp.Command)
			assert.JSONEq(t, `{"cmd":"update","data":{"v":1}}`, string(resp.Payload))
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for response")
		}
	})

	t.Run("legacy conversion", func(t *testing.T) {
		mock.SimulateMessage([]byte(`{"foo":1}`))
		select {
		case resp := <-received:
			assert.Equal(t, LegacyCommand, resp.Command)
			assert.JSONEq(t, `{"foo":1}`, string(resp.Payload))
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for response")
		}
	})

	t.Run("malformed dropped", func(t *testing.T) {
		mock.SimulateMessage([]byte(`not-json`))
		mock.SimulateMessage([]byte(`"not-an-object"`))
		mock.SimulateMessage([]byte(`[1,2,3]`))
		select {
		case resp := <-received:
			t.Fatalf("unexpected emission: %+v", resp)
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestInboundWithoutSubscribers(t *testing.T) {
	mock := NewMockTransport()
	mgr := mockManager(mock, Options{})

	mgr.Connect("ws://quiet.test/socket")
	mock.SimulateOpen()

	// Nothing is registered; the message is dropped silently.
	mock.SimulateMessage([]byte(`{"cmd":"noop"}`))
	assert.Equal(t, StateOpen, mgr.State())
}

func TestSubscriberPanicRecovered(t *testing.T) {
	mock := NewMockTransport()
	mgr := mockManager(mock, Options{})

	received := make(chan Response, 1)
	mgr.Subscribe(func(Response) { panic("bad handler") })
	mgr.Subscribe(func(resp Response) { received <- resp })

	mgr.Connect("ws://panic.test/socket")
	mock.SimulateOpen()
	mock.SimulateMessage([]byte(`{"cmd":"still-here"}`))

	select {
	case resp := <-received:
		assert.Equal(t, "still-here", resp.Command)
	case <-time.After(time.Second):
		t.Fatal("second subscriber never ran")
	}
	assert.Equal(t, StateOpen, mgr.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "unknown", State(99).String())
}
