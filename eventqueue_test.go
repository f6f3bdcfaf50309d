package gofhem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gofhem/errors"
	"github.com/c360/gofhem/event"
	"github.com/c360/gofhem/pkg/fhemtime"
	"github.com/c360/gofhem/testutil"
	"github.com/c360/gofhem/transport"
)

func queueTestConfig() Config {
	return Config{
		Server:      "fhem.local",
		LogLevel:    LogSilent,
		ReadTimeout: 2 * time.Millisecond,
	}
}

func newTestQueue(t *testing.T, mock *testutil.MockTransport, opts ...EventQueueOption) *EventQueue {
	t.Helper()
	opts = append([]EventQueueOption{WithEventTransport(mock)}, opts...)
	q, err := NewEventQueue(queueTestConfig(), opts...)
	require.NoError(t, err)
	return q
}

func waitDone(t *testing.T, q *EventQueue) {
	t.Helper()
	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not exit")
	}
}

func TestNewEventQueueRequiresTelnet(t *testing.T) {
	cfg := queueTestConfig()
	cfg.Protocol = transport.ProtocolHTTP

	_, err := NewEventQueue(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnsupportedProtocol)
	assert.True(t, errors.IsInvalid(err))
}

func TestEventQueueStartStop(t *testing.T) {
	mock := &testutil.MockTransport{}
	q := newTestQueue(t, mock)
	ctx := context.Background()

	assert.Equal(t, StateStopped, q.State())

	require.NoError(t, q.Start(ctx))
	assert.Equal(t, StateListening, q.State())
	assert.Equal(t, []string{"inform timer\n"}, mock.Sent())

	require.NoError(t, q.Stop(2*time.Second))
	assert.Equal(t, StateStopped, q.State())
	assert.NoError(t, q.Err())
	assert.False(t, mock.Connected())

	// Single use: a stopped queue does not restart.
	err := q.Start(ctx)
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)
}

func TestEventQueueServerRegex(t *testing.T) {
	mock := &testutil.MockTransport{}
	q := newTestQueue(t, mock, WithServerRegex("lamp.*"))

	require.NoError(t, q.Start(context.Background()))
	defer q.Close()

	assert.Equal(t, []string{"inform timer lamp.*\n"}, mock.Sent())
}

func TestEventQueueStartFailure(t *testing.T) {
	t.Run("connect refused", func(t *testing.T) {
		dialErr := errors.WrapFatal(errors.ErrConnectionFailed, "Telnet", "Connect", "dial")
		mock := &testutil.MockTransport{ConnectErrs: []error{dialErr}}
		q := newTestQueue(t, mock)

		err := q.Start(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrConnectionFailed)
		assert.Equal(t, StateStopped, q.State())
		assert.ErrorIs(t, q.Err(), errors.ErrConnectionFailed)
		waitDone(t, q)

		_, nerr := q.Next(context.Background())
		assert.ErrorIs(t, nerr, errors.ErrQueueClosed)
	})

	t.Run("inform rejected", func(t *testing.T) {
		sendErr := errors.Wrap(errors.ErrConnectionLost, "Telnet", "Send", "write")
		mock := &testutil.MockTransport{SendErrs: []error{sendErr}}
		q := newTestQueue(t, mock)

		err := q.Start(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrConnectionLost)
		assert.Equal(t, StateStopped, q.State())
		assert.False(t, mock.Connected())
	})
}

func TestEventQueueDeliversEvents(t *testing.T) {
	mock := &testutil.MockTransport{}
	mock.Feed("2023-01-15 12:30:45 dummy lamp1 on\n" +
		"2023-01-15 12:30:46 CUL_HM thermo1 temperature: 21.5 (Celsius)\n")

	q := newTestQueue(t, mock)
	ctx := context.Background()
	require.NoError(t, q.Start(ctx))
	defer q.Close()

	ev, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "lamp1", ev.Device)
	assert.Equal(t, "dummy", ev.DeviceType)
	assert.Equal(t, "state", ev.Reading)
	assert.Equal(t, "on", ev.Value)
	assert.Equal(t, fhemtime.MustParse("2023-01-15 12:30:45"), ev.Time)

	ev, err = q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "thermo1", ev.Device)
	assert.Equal(t, "temperature", ev.Reading)
	assert.Equal(t, 21.5, ev.Value)
	assert.Equal(t, "Celsius", ev.Unit)
}

func TestEventQueuePartialLineReassembly(t *testing.T) {
	mock := &testutil.MockTransport{}
	mock.Feed(
		"2023-01-15 12:30:45 CUL_HM thermo1 temperature: 2",
		"1.5 (Celsius)\n",
	)

	q := newTestQueue(t, mock)
	ctx := context.Background()
	require.NoError(t, q.Start(ctx))
	defer q.Close()

	ev, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "temperature", ev.Reading)
	assert.Equal(t, 21.5, ev.Value)
	assert.Equal(t, "Celsius", ev.Unit)
}

func TestEventQueueSkipsMalformedLines(t *testing.T) {
	mock := &testutil.MockTransport{}
	mock.Feed("garbage\n2023-01-15 12:30:45 dummy lamp1 on\n")

	q := newTestQueue(t, mock)
	ctx := context.Background()
	require.NoError(t, q.Start(ctx))
	defer q.Close()

	// The malformed line is dropped, the listener keeps going.
	ev, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "lamp1", ev.Device)
	assert.Equal(t, StateListening, q.State())
}

func TestEventQueueFilters(t *testing.T) {
	filters, err := event.NewFilterList(event.Filter{"device": "lamp1"})
	require.NoError(t, err)

	mock := &testutil.MockTransport{}
	mock.Feed("2023-01-15 12:30:45 dummy lamp1 on\n" +
		"2023-01-15 12:30:45 dummy lamp2 on\n" +
		"2023-01-15 12:30:46 dummy lamp1 off\n")

	q := newTestQueue(t, mock, WithFilters(filters))
	ctx := context.Background()
	require.NoError(t, q.Start(ctx))
	defer q.Close()

	ev, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "lamp1", ev.Device)
	assert.Equal(t, "on", ev.Value)

	ev, err = q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "lamp1", ev.Device)
	assert.Equal(t, "off", ev.Value)
}

func TestEventQueueRawValues(t *testing.T) {
	mock := &testutil.MockTransport{}
	mock.Feed("2023-01-15 12:30:45 CUL_HM thermo1 temperature: 21.5 (Celsius)\n")

	q := newTestQueue(t, mock, WithRawValues())
	ctx := context.Background()
	require.NoError(t, q.Start(ctx))
	defer q.Close()

	ev, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "temperature", ev.Reading)
	assert.Equal(t, "21.5 (Celsius)", ev.Value)
	assert.Empty(t, ev.Unit)
}

func TestEventQueueKeepAliveTimeout(t *testing.T) {
	cfg := queueTestConfig()
	cfg.EventTimeout = 30 * time.Millisecond

	mock := &testutil.MockTransport{}
	q, err := NewEventQueue(cfg, WithEventTransport(mock))
	require.NoError(t, err)

	require.NoError(t, q.Start(context.Background()))
	waitDone(t, q)

	assert.Equal(t, StateStopped, q.State())
	assert.ErrorIs(t, q.Err(), errors.ErrConnectionTimeout)
	assert.True(t, errors.IsTransient(q.Err()))
}

func TestEventQueueReceiveError(t *testing.T) {
	lost := errors.Wrap(errors.ErrConnectionLost, "Telnet", "Receive", "read")
	mock := &testutil.MockTransport{RecvErr: lost}
	q := newTestQueue(t, mock)

	require.NoError(t, q.Start(context.Background()))
	waitDone(t, q)

	assert.Equal(t, StateStopped, q.State())
	assert.ErrorIs(t, q.Err(), errors.ErrConnectionLost)
}

func TestEventQueueCloseDrains(t *testing.T) {
	mock := &testutil.MockTransport{}
	mock.Feed("2023-01-15 12:30:45 dummy lamp1 on\n" +
		"2023-01-15 12:30:46 dummy lamp1 off\n")

	q := newTestQueue(t, mock)
	ctx := context.Background()
	require.NoError(t, q.Start(ctx))

	require.Eventually(t, func() bool { return q.Len() == 2 },
		2*time.Second, 5*time.Millisecond)

	q.Close()
	waitDone(t, q)

	// Buffered events survive the shutdown.
	ev, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "on", ev.Value)

	ev, err = q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "off", ev.Value)

	_, err = q.Next(ctx)
	assert.ErrorIs(t, err, errors.ErrQueueClosed)

	_, ok := q.TryNext()
	assert.False(t, ok)
}

func TestEventQueueTryNext(t *testing.T) {
	mock := &testutil.MockTransport{}
	q := newTestQueue(t, mock)
	require.NoError(t, q.Start(context.Background()))
	defer q.Close()

	// Nothing arrived yet.
	_, ok := q.TryNext()
	assert.False(t, ok)

	mock.Feed("2023-01-15 12:30:45 dummy lamp1 on\n")
	require.Eventually(t, func() bool { return q.Len() == 1 },
		2*time.Second, 5*time.Millisecond)

	ev, ok := q.TryNext()
	require.True(t, ok)
	assert.Equal(t, "lamp1", ev.Device)
}

func TestEventQueueStopBeforeStart(t *testing.T) {
	q := newTestQueue(t, &testutil.MockTransport{})

	require.NoError(t, q.Stop(time.Second))
	assert.Equal(t, StateStopped, q.State())

	err := q.Start(context.Background())
	assert.ErrorIs(t, err, errors.ErrShuttingDown)
}

func TestEventQueueNextContextCanceled(t *testing.T) {
	mock := &testutil.MockTransport{}
	q := newTestQueue(t, mock)
	require.NoError(t, q.Start(context.Background()))
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "listening", StateListening.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "unknown", State(99).String())
}
