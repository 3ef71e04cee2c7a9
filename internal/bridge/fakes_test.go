package bridge

import (
	"context"
	"sync"

	"github.com/nerrad567/mqtt-notify/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-notify/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-notify/internal/notify"
	"github.com/nerrad567/mqtt-notify/internal/rules"
)

var (
	errTransient = &mqtt.Error{Kind: mqtt.Transient, Err: mqtt.ErrConnectionLost}
	errFatal     = &mqtt.Error{Kind: mqtt.Fatal, Err: mqtt.ErrConnectionLost}
)

// step is one scripted NextEvent result.
type step struct {
	ev  mqtt.Event
	err error
}

func publish(topic, payload string) step {
	return step{ev: mqtt.Event{Kind: mqtt.EventPublish, Message: mqtt.Message{Topic: topic, Payload: []byte(payload)}}}
}

func retained(topic, payload string) step {
	s := publish(topic, payload)
	s.ev.Message.Retained = true
	return s
}

func raw(topic string, payload []byte) step {
	return step{ev: mqtt.Event{Kind: mqtt.EventPublish, Message: mqtt.Message{Topic: topic, Payload: payload}}}
}

func fail(err error) step {
	return step{err: err}
}

// fakeSession replays its steps, then blocks until ctx is done.
type fakeSession struct {
	mu           sync.Mutex
	steps        []step
	subscribeErr error
	subscribed   []string
	closeErr     error
	closed       bool
}

func newSession(steps ...step) *fakeSession {
	return &fakeSession{steps: steps}
}

func (s *fakeSession) Subscribe(_ context.Context, topics []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = append(s.subscribed, topics...)
	return s.subscribeErr
}

func (s *fakeSession) NextEvent(ctx context.Context) (mqtt.Event, error) {
	s.mu.Lock()
	if len(s.steps) > 0 {
		st := s.steps[0]
		s.steps = s.steps[1:]
		s.mu.Unlock()
		return st.ev, st.err
	}
	s.mu.Unlock()

	<-ctx.Done()
	return mqtt.Event{}, ctx.Err()
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// connectResult is one scripted ConnectFunc result.
type connectResult struct {
	session *fakeSession
	err     error
}

// fakeConnector hands out scripted sessions. Once the script runs out it
// returns idle sessions.
type fakeConnector struct {
	mu      sync.Mutex
	results []connectResult
	calls   int
}

func connector(results ...connectResult) *fakeConnector {
	return &fakeConnector{results: results}
}

func (c *fakeConnector) connect(context.Context) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++

	if len(c.results) == 0 {
		return newSession(), nil
	}
	r := c.results[0]
	c.results = c.results[1:]
	if r.err != nil {
		return nil, r.err
	}
	return r.session, nil
}

func (c *fakeConnector) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fakeNotifier records dispatched notifications and signals each one.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	ch   chan struct{}
}

func newNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan struct{}, 100)}
}

func (n *fakeNotifier) Dispatch(note notify.Notification) {
	n.mu.Lock()
	n.sent = append(n.sent, note)
	n.mu.Unlock()
	n.ch <- struct{}{}
}

func (n *fakeNotifier) bodies() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	bodies := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		bodies = append(bodies, s.Body)
	}
	return bodies
}

// fakeRecorder records telemetry calls.
type fakeRecorder struct {
	mu            sync.Mutex
	notifications []string
	reconnects    []int
}

func (r *fakeRecorder) RecordNotification(topic string, matched bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	label := "fallback"
	if matched {
		label = "matched"
	}
	r.notifications = append(r.notifications, topic+":"+label)
}

func (r *fakeRecorder) RecordReconnect(attempt int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconnects = append(r.reconnects, attempt)
}

// logEntry is one captured log call.
type logEntry struct {
	level string
	msg   string
	args  []any
}

// recordingLogger captures log calls for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Trace(msg string, args ...any) { l.record("trace", msg, args) }
func (l *recordingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

// find returns the first entry with the given level and message.
func (l *recordingLogger) find(level, msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

// testConfig returns a config with the door mapping and three reconnects.
func testConfig() *config.Config {
	return &config.Config{
		MQTT: config.MQTTConfig{
			IgnoreRetained: true,
			Reconnect: config.MQTTReconnectConfig{
				Delay:       60,
				MaxAttempts: 3,
			},
		},
		Notification: config.NotificationConfig{
			TimeoutMillis: 5000,
		},
		Rules: []rules.Mapping{
			{
				Topic:   "sensor/door",
				Actions: []rules.Action{rules.EqualsSay{Value: "open", Say: "Door opened!"}},
			},
		},
	}
}
