package notify

import (
	"context"
	"errors"
	"time"
)

// DefaultSummary is the title of every notification raised for a message.
const DefaultSummary = "MQTT Notification"

// ErrSendFailed wraps errors returned by a notification backend.
var ErrSendFailed = errors.New("notify: send failed")

// Notification is a single desktop alert.
type Notification struct {
	Summary string
	Body    string

	// Timeout is how long the alert stays visible. Zero keeps it on screen
	// until dismissed; a negative value lets the notification server decide.
	Timeout time.Duration
}

// Sender delivers a notification to the desktop.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, n Notification) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
