package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/mqtt-notify/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-notify/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-notify/internal/notify"
	"github.com/nerrad567/mqtt-notify/internal/rules"
)

// ErrRetryBudgetExceeded is returned by Run once the cumulative number of
// reconnects exceeds the configured maximum.
var ErrRetryBudgetExceeded = errors.New("bridge: reconnect attempts exhausted")

// Session is one broker connection. *mqtt.Client satisfies it.
type Session interface {
	Subscribe(ctx context.Context, topics []string) error
	NextEvent(ctx context.Context) (mqtt.Event, error)
	Close() error
}

// ConnectFunc opens a new Session.
type ConnectFunc func(ctx context.Context) (Session, error)

// Notifier accepts notifications without blocking. *notify.Dispatcher
// satisfies it.
type Notifier interface {
	Dispatch(n notify.Notification)
}

// Recorder receives telemetry. *influxdb.Client satisfies it.
type Recorder interface {
	RecordNotification(topic string, matched bool)
	RecordReconnect(attempt int)
}

// Logger interface for optional logging support.
// Compatible with logging.Logger.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Bridge.
type Options struct {
	// Config is read, never modified. Required.
	Config *config.Config

	// Connect opens broker sessions. Required.
	Connect ConnectFunc

	// Notifier raises the desktop notifications. Required.
	Notifier Notifier

	// Recorder is optional; nil disables telemetry.
	Recorder Recorder

	// Logger is optional; nil disables logging.
	Logger Logger
}

// Bridge consumes broker events and turns them into notifications.
//
// Run owns the reconnection state machine:
//
//	Connected ──transient──▶ Reconnecting(n+1) ──n > max──▶ Terminated
//	    ▲                          │
//	    └────────success───────────┘
//
// The restart counter is cumulative for the lifetime of the Bridge and is
// never reset by a successful reconnect.
//
// Thread Safety:
//   - Run must not be called concurrently.
type Bridge struct {
	cfg      *config.Config
	connect  ConnectFunc
	notifier Notifier
	recorder Recorder
	logger   Logger

	topics      []string
	maxAttempts int
	delay       time.Duration

	// restarts is the cumulative reconnect counter.
	restarts int

	// announced is set once the startup notification has been dispatched.
	announced bool

	// sleep waits between reconnect attempts. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Bridge.
//
// Returns:
//   - *Bridge: ready to Run
//   - error: if a required option is missing
func New(opts Options) (*Bridge, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("bridge: config is required")
	case opts.Connect == nil:
		return nil, errors.New("bridge: connect function is required")
	case opts.Notifier == nil:
		return nil, errors.New("bridge: notifier is required")
	}

	b := &Bridge{
		cfg:         opts.Config,
		connect:     opts.Connect,
		notifier:    opts.Notifier,
		recorder:    opts.Recorder,
		logger:      opts.Logger,
		topics:      rules.Topics(opts.Config.Rules),
		maxAttempts: opts.Config.MQTT.Reconnect.MaxAttempts,
		delay:       opts.Config.MQTT.ReconnectDelay(),
		sleep:       sleepContext,
	}
	if b.recorder == nil {
		b.recorder = noopRecorder{}
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	return b, nil
}

// Run connects, subscribes and processes events until ctx is cancelled or a
// fatal error occurs.
//
// The initial connect and subscribe are never retried. Afterwards a
// transient failure leads to a reconnect after the configured delay, up to
// the configured number of restarts.
//
// Returns:
//   - nil: ctx was cancelled
//   - error: a fatal mqtt error, or ErrRetryBudgetExceeded
func (b *Bridge) Run(ctx context.Context) error {
	session, err := b.start(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("initial connection: %w", err)
	}
	b.logger.Info("bridge running", "topics", len(b.topics))
	b.announce()

	for {
		err := b.serve(ctx, session)
		if closeErr := session.Close(); closeErr != nil {
			b.logger.Debug("error closing MQTT session", "error", closeErr)
		}

		if ctx.Err() != nil {
			b.logger.Info("bridge stopped")
			return nil
		}
		if !mqtt.IsTransient(err) {
			return fmt.Errorf("polling broker: %w", err)
		}

		session, err = b.reconnect(ctx, err)
		if err != nil {
			if ctx.Err() != nil {
				b.logger.Info("bridge stopped")
				return nil
			}
			return err
		}
	}
}

// start opens a session and subscribes to every configured topic.
// A session that fails to subscribe is closed.
func (b *Bridge) start(ctx context.Context) (Session, error) {
	session, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	if err := session.Subscribe(ctx, b.topics); err != nil {
		if closeErr := session.Close(); closeErr != nil {
			b.logger.Debug("error closing MQTT session", "error", closeErr)
		}
		return nil, err
	}

	return session, nil
}

// reconnect runs the Reconnecting state until a session is established or
// the machine terminates. cause is the transient error that triggered it.
func (b *Bridge) reconnect(ctx context.Context, cause error) (Session, error) {
	for {
		b.restarts++
		if b.restarts > b.maxAttempts {
			return nil, fmt.Errorf("%w (%d): %w", ErrRetryBudgetExceeded, b.maxAttempts, cause)
		}

		b.recorder.RecordReconnect(b.restarts)
		b.logger.Warn("MQTT connection lost, reconnecting",
			"attempt", b.restarts,
			"max_attempts", b.maxAttempts,
			"delay", b.delay,
			"error", cause,
		)

		if err := b.sleep(ctx, b.delay); err != nil {
			return nil, err
		}

		session, err := b.start(ctx)
		if err == nil {
			b.logger.Info("MQTT reconnected", "attempt", b.restarts)
			return session, nil
		}
		if ctx.Err() != nil || !mqtt.IsTransient(err) {
			return nil, fmt.Errorf("reconnecting: %w", err)
		}
		cause = err
	}
}

// announce dispatches the startup notification, once per Bridge.
func (b *Bridge) announce() {
	if b.announced {
		return
	}
	b.announced = true

	text := b.cfg.Notification.NotifyOnStartup
	if text == "" {
		return
	}
	b.notifier.Dispatch(notify.Notification{
		Summary: notify.DefaultSummary,
		Body:    text,
		Timeout: b.cfg.Notification.Timeout(),
	})
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type noopRecorder struct{}

func (noopRecorder) RecordNotification(string, bool) {}
func (noopRecorder) RecordReconnect(int)             {}

type noopLogger struct{}

func (noopLogger) Trace(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
