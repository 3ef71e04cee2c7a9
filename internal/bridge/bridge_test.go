package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/mqtt-notify/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-notify/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-notify/internal/notify"
	"github.com/nerrad567/mqtt-notify/internal/rules"
)

// sleeps records reconnect delays without waiting.
type sleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleeps) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delays)
}

func newTestBridge(t *testing.T, cfg *config.Config, conn *fakeConnector, n *fakeNotifier, rec *fakeRecorder) (*Bridge, *sleeps) {
	t.Helper()

	opts := Options{
		Config:   cfg,
		Connect:  conn.connect,
		Notifier: n,
	}
	if rec != nil {
		opts.Recorder = rec
	}

	b, err := New(opts)
	require.NoError(t, err)

	s := &sleeps{}
	b.sleep = s.sleep
	return b, s
}

// waitNotifications blocks until n notifications have been dispatched.
func waitNotifications(t *testing.T, n *fakeNotifier, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		select {
		case <-n.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for notification %d of %d", i+1, count)
		}
	}
}

// runUntil runs b in the background, waits for count notifications, then
// cancels and returns Run's result.
func runUntil(t *testing.T, b *Bridge, n *fakeNotifier, count int) error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	waitNotifications(t, n, count)
	cancel()

	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
		return nil
	}
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_RequiresOptions(t *testing.T) {
	conn := connector()
	n := newNotifier()

	_, err := New(Options{Connect: conn.connect, Notifier: n})
	assert.Error(t, err)

	_, err = New(Options{Config: testConfig(), Notifier: n})
	assert.Error(t, err)

	_, err = New(Options{Config: testConfig(), Connect: conn.connect})
	assert.Error(t, err)

	b, err := New(Options{Config: testConfig(), Connect: conn.connect, Notifier: n})
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, b.delay)
	assert.Equal(t, 3, b.maxAttempts)
}

// =============================================================================
// Message pipeline
// =============================================================================

func TestRun_EndToEnd(t *testing.T) {
	session := newSession(
		publish("sensor/door", "open"),
		publish("sensor/door", "closed"),
		fail(errFatal),
	)
	n := newNotifier()
	b, _ := newTestBridge(t, testConfig(), connector(connectResult{session: session}), n, nil)

	err := b.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, []string{"Door opened!", "Received message: closed"}, n.bodies())
	assert.Equal(t, notify.DefaultSummary, n.sent[0].Summary)
	assert.Equal(t, 5*time.Second, n.sent[0].Timeout)
}

func TestRun_SubscribesToEveryTopicInOrder(t *testing.T) {
	cfg := testConfig()
	cfg.Rules = []rules.Mapping{
		{Topic: "b/topic"},
		{Topic: "a/topic"},
		{Topic: "b/topic"},
	}
	session := newSession(fail(errFatal))
	b, _ := newTestBridge(t, cfg, connector(connectResult{session: session}), newNotifier(), nil)

	_ = b.Run(context.Background())

	assert.Equal(t, []string{"b/topic", "a/topic", "b/topic"}, session.subscribed)
}

func TestRun_RetainedMessages(t *testing.T) {
	tests := []struct {
		name           string
		ignoreRetained bool
		want           []string
	}{
		{name: "ignored", ignoreRetained: true, want: []string{"Received message: live"}},
		{name: "dispatched", ignoreRetained: false, want: []string{"Door opened!", "Received message: live"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.MQTT.IgnoreRetained = tt.ignoreRetained

			session := newSession(
				retained("sensor/door", "open"),
				publish("sensor/door", "live"),
				fail(errFatal),
			)
			n := newNotifier()
			b, _ := newTestBridge(t, cfg, connector(connectResult{session: session}), n, nil)

			_ = b.Run(context.Background())

			assert.Equal(t, tt.want, n.bodies())
		})
	}
}

func TestRun_InvalidUTF8IsDropped(t *testing.T) {
	session := newSession(
		raw("sensor/door", []byte{0xff, 0xfe, 0xfd}),
		publish("sensor/door", "open"),
		fail(errFatal),
	)
	n := newNotifier()
	b, _ := newTestBridge(t, testConfig(), connector(connectResult{session: session}), n, nil)

	require.NotPanics(t, func() { _ = b.Run(context.Background()) })

	assert.Equal(t, []string{"Door opened!"}, n.bodies())
}

func TestRun_EmptyPayload(t *testing.T) {
	session := newSession(publish("sensor/door", ""), fail(errFatal))
	n := newNotifier()
	b, _ := newTestBridge(t, testConfig(), connector(connectResult{session: session}), n, nil)

	_ = b.Run(context.Background())

	assert.Equal(t, []string{"Received message: "}, n.bodies())
}

func TestRun_IgnoresNonPublishEvents(t *testing.T) {
	session := newSession(
		step{ev: mqtt.Event{Kind: mqtt.EventConnected}},
		publish("other/topic", "hi"),
		fail(errFatal),
	)
	n := newNotifier()
	b, _ := newTestBridge(t, testConfig(), connector(connectResult{session: session}), n, nil)

	_ = b.Run(context.Background())

	assert.Equal(t, []string{"Received message: hi"}, n.bodies())
}

func TestRun_RecordsTelemetry(t *testing.T) {
	first := newSession(
		publish("sensor/door", "open"),
		publish("sensor/door", "ajar"),
		fail(errTransient),
	)
	second := newSession(fail(errFatal))
	rec := &fakeRecorder{}
	b, _ := newTestBridge(t, testConfig(),
		connector(connectResult{session: first}, connectResult{session: second}),
		newNotifier(), rec)

	_ = b.Run(context.Background())

	assert.Equal(t, []string{"sensor/door:matched", "sensor/door:fallback"}, rec.notifications)
	assert.Equal(t, []int{1}, rec.reconnects)
}

// =============================================================================
// Startup
// =============================================================================

func TestRun_InitialConnectFailureIsFatal(t *testing.T) {
	conn := connector(connectResult{err: &mqtt.Error{Kind: mqtt.Transient, Err: mqtt.ErrConnectionFailed}})
	b, s := newTestBridge(t, testConfig(), conn, newNotifier(), nil)

	err := b.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, mqtt.ErrConnectionFailed)
	assert.NotErrorIs(t, err, ErrRetryBudgetExceeded)
	assert.Equal(t, 1, conn.callCount())
	assert.Zero(t, s.count())
}

func TestRun_InitialSubscribeFailureIsFatal(t *testing.T) {
	session := newSession()
	session.subscribeErr = &mqtt.Error{Kind: mqtt.Transient, Err: mqtt.ErrSubscribeFailed}
	conn := connector(connectResult{session: session})
	b, _ := newTestBridge(t, testConfig(), conn, newNotifier(), nil)

	err := b.Run(context.Background())

	assert.ErrorIs(t, err, mqtt.ErrSubscribeFailed)
	assert.Equal(t, 1, conn.callCount())
	assert.True(t, session.isClosed())
}

func TestRun_SubscribeFailureLogsCloseError(t *testing.T) {
	closeErr := errors.New("broken pipe")
	session := newSession()
	session.subscribeErr = &mqtt.Error{Kind: mqtt.Fatal, Err: mqtt.ErrSubscribeFailed}
	session.closeErr = closeErr

	logger := &recordingLogger{}
	b, err := New(Options{
		Config:   testConfig(),
		Connect:  connector(connectResult{session: session}).connect,
		Notifier: newNotifier(),
		Logger:   logger,
	})
	require.NoError(t, err)

	err = b.Run(context.Background())

	assert.ErrorIs(t, err, mqtt.ErrSubscribeFailed)
	assert.True(t, session.isClosed())

	entry, ok := logger.find("debug", "error closing MQTT session")
	require.True(t, ok, "close error was not logged")
	assert.Equal(t, []any{"error", closeErr}, entry.args)
}

func TestRun_StartupNotificationOnce(t *testing.T) {
	cfg := testConfig()
	cfg.Notification.NotifyOnStartup = "mqtt-notify is running"

	conn := connector(
		connectResult{session: newSession(fail(errTransient))},
		connectResult{session: newSession(fail(errTransient))},
		connectResult{session: newSession(fail(errFatal))},
	)
	n := newNotifier()
	b, _ := newTestBridge(t, cfg, conn, n, nil)

	_ = b.Run(context.Background())

	assert.Equal(t, []string{"mqtt-notify is running"}, n.bodies())
	assert.Equal(t, 3, conn.callCount())
}

func TestRun_NoStartupNotificationWhenUnset(t *testing.T) {
	n := newNotifier()
	b, _ := newTestBridge(t, testConfig(), connector(connectResult{session: newSession(fail(errFatal))}), n, nil)

	_ = b.Run(context.Background())

	assert.Empty(t, n.bodies())
}

func TestRun_StartupNotificationFiresBeforeMessages(t *testing.T) {
	cfg := testConfig()
	cfg.Notification.NotifyOnStartup = "up"
	session := newSession(publish("sensor/door", "open"), fail(errFatal))
	n := newNotifier()
	b, _ := newTestBridge(t, cfg, connector(connectResult{session: session}), n, nil)

	_ = b.Run(context.Background())

	assert.Equal(t, []string{"up", "Door opened!"}, n.bodies())
}

// =============================================================================
// Reconnection
// =============================================================================

func TestRun_FatalPollErrorTerminates(t *testing.T) {
	session := newSession(fail(errFatal))
	conn := connector(connectResult{session: session})
	b, s := newTestBridge(t, testConfig(), conn, newNotifier(), nil)

	err := b.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, mqtt.ErrConnectionLost)
	assert.NotErrorIs(t, err, ErrRetryBudgetExceeded)
	assert.Equal(t, 1, conn.callCount())
	assert.Zero(t, s.count())
	assert.True(t, session.isClosed())
}

func TestRun_UnclassifiedPollErrorTerminates(t *testing.T) {
	conn := connector(connectResult{session: newSession(fail(errors.New("boom")))})
	b, _ := newTestBridge(t, testConfig(), conn, newNotifier(), nil)

	err := b.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, 1, conn.callCount())
}

func TestRun_ExceedingBudgetTerminates(t *testing.T) {
	// max_attempts = 3: the fourth transient error ends the run.
	sessions := make([]connectResult, 0, 4)
	for i := 0; i < 4; i++ {
		sessions = append(sessions, connectResult{session: newSession(
			publish("sensor/door", "open"),
			fail(errTransient),
		)})
	}
	conn := connector(sessions...)
	n := newNotifier()
	b, s := newTestBridge(t, testConfig(), conn, n, nil)

	err := b.Run(context.Background())

	require.ErrorIs(t, err, ErrRetryBudgetExceeded)
	assert.ErrorIs(t, err, mqtt.ErrConnectionLost)
	assert.Equal(t, 4, conn.callCount())
	assert.Equal(t, 3, s.count())
	assert.Len(t, n.bodies(), 4)
	for _, r := range sessions {
		assert.True(t, r.session.isClosed())
	}
}

func TestRun_WithinBudgetKeepsRunning(t *testing.T) {
	// Three transient errors with max_attempts = 3 leave the bridge running.
	conn := connector(
		connectResult{session: newSession(fail(errTransient))},
		connectResult{session: newSession(fail(errTransient))},
		connectResult{session: newSession(fail(errTransient))},
		connectResult{session: newSession(publish("sensor/door", "open"))},
	)
	n := newNotifier()
	b, s := newTestBridge(t, testConfig(), conn, n, nil)

	err := runUntil(t, b, n, 1)

	assert.NoError(t, err)
	assert.Equal(t, 4, conn.callCount())
	assert.Equal(t, 3, s.count())
	assert.Equal(t, []string{"Door opened!"}, n.bodies())
}

func TestRun_CounterIsCumulative(t *testing.T) {
	// Successful reconnects in between do not reset the counter.
	cfg := testConfig()
	cfg.MQTT.Reconnect.MaxAttempts = 1

	conn := connector(
		connectResult{session: newSession(fail(errTransient))},
		connectResult{session: newSession(publish("sensor/door", "open"), publish("sensor/door", "open"), fail(errTransient))},
	)
	b, _ := newTestBridge(t, cfg, conn, newNotifier(), nil)

	err := b.Run(context.Background())

	assert.ErrorIs(t, err, ErrRetryBudgetExceeded)
	assert.Equal(t, 2, conn.callCount())
}

func TestRun_ZeroAttemptsNeverReconnects(t *testing.T) {
	cfg := testConfig()
	cfg.MQTT.Reconnect.MaxAttempts = 0

	conn := connector(connectResult{session: newSession(fail(errTransient))})
	b, s := newTestBridge(t, cfg, conn, newNotifier(), nil)

	err := b.Run(context.Background())

	assert.ErrorIs(t, err, ErrRetryBudgetExceeded)
	assert.Equal(t, 1, conn.callCount())
	assert.Zero(t, s.count())
}

func TestRun_ReconnectWaitsConfiguredDelay(t *testing.T) {
	cfg := testConfig()
	cfg.MQTT.Reconnect.Delay = 7

	conn := connector(
		connectResult{session: newSession(fail(errTransient))},
		connectResult{session: newSession(fail(errFatal))},
	)
	b, s := newTestBridge(t, cfg, conn, newNotifier(), nil)

	_ = b.Run(context.Background())

	assert.Equal(t, []time.Duration{7 * time.Second}, s.delays)
}

func TestRun_TransientReconnectFailureCounts(t *testing.T) {
	cfg := testConfig()
	cfg.MQTT.Reconnect.MaxAttempts = 2

	transientConnect := &mqtt.Error{Kind: mqtt.Transient, Err: mqtt.ErrConnectionFailed}
	conn := connector(
		connectResult{session: newSession(fail(errTransient))},
		connectResult{err: transientConnect},
		connectResult{err: transientConnect},
		connectResult{session: newSession()},
	)
	b, s := newTestBridge(t, cfg, conn, newNotifier(), nil)

	err := b.Run(context.Background())

	require.ErrorIs(t, err, ErrRetryBudgetExceeded)
	assert.ErrorIs(t, err, mqtt.ErrConnectionFailed)
	assert.Equal(t, 3, conn.callCount())
	assert.Equal(t, 2, s.count())
}

func TestRun_TransientResubscribeFailureCounts(t *testing.T) {
	cfg := testConfig()
	cfg.MQTT.Reconnect.MaxAttempts = 1

	refused := newSession()
	refused.subscribeErr = &mqtt.Error{Kind: mqtt.Transient, Err: mqtt.ErrSubscribeFailed}
	conn := connector(
		connectResult{session: newSession(fail(errTransient))},
		connectResult{session: refused},
	)
	b, _ := newTestBridge(t, cfg, conn, newNotifier(), nil)

	err := b.Run(context.Background())

	assert.ErrorIs(t, err, ErrRetryBudgetExceeded)
	assert.True(t, refused.isClosed())
}

func TestRun_FatalReconnectFailureTerminates(t *testing.T) {
	fatalConnect := &mqtt.Error{Kind: mqtt.Fatal, Err: mqtt.ErrConnectionFailed}
	conn := connector(
		connectResult{session: newSession(fail(errTransient))},
		connectResult{err: fatalConnect},
	)
	b, s := newTestBridge(t, testConfig(), conn, newNotifier(), nil)

	err := b.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, mqtt.ErrConnectionFailed)
	assert.NotErrorIs(t, err, ErrRetryBudgetExceeded)
	assert.Equal(t, 2, conn.callCount())
	assert.Equal(t, 1, s.count())
}

// =============================================================================
// Cancellation
// =============================================================================

func TestRun_CancelStopsCleanly(t *testing.T) {
	session := newSession(publish("sensor/door", "open"))
	n := newNotifier()
	b, _ := newTestBridge(t, testConfig(), connector(connectResult{session: session}), n, nil)

	err := runUntil(t, b, n, 1)

	assert.NoError(t, err)
	assert.True(t, session.isClosed())
}

func TestRun_CancelDuringReconnectDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	conn := connector(connectResult{session: newSession(fail(errTransient))})
	b, _ := newTestBridge(t, testConfig(), conn, newNotifier(), nil)
	b.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	err := b.Run(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 1, conn.callCount())
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conn := connector(connectResult{err: context.Canceled})
	b, _ := newTestBridge(t, testConfig(), conn, newNotifier(), nil)

	assert.NoError(t, b.Run(ctx))
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
