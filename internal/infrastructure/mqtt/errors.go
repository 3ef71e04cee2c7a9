package mqtt

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when polling a closed client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when a connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrConnectionLost is returned by NextEvent when the broker connection drops.
	ErrConnectionLost = errors.New("mqtt: connection lost")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("mqtt: operation timed out")
)

// ErrorKind separates failures a retry can fix from those it cannot.
type ErrorKind int

const (
	// Fatal errors are not worth retrying: refused credentials, rejected
	// subscriptions, protocol violations.
	Fatal ErrorKind = iota

	// Transient errors are network blips and keep-alive timeouts.
	Transient
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	if k == Transient {
		return "transient"
	}
	return "fatal"
}

// Error is a classified connection, subscription or polling failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

// Error implements error.
func (e *Error) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error so errors.Is sees the sentinels.
func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a classified transient MQTT failure.
func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == Transient
}

// classified wraps err with sentinel and the kind derived from cause.
func classified(sentinel, cause error) *Error {
	return &Error{
		Kind: classify(cause),
		Err:  fmt.Errorf("%w: %w", sentinel, cause),
	}
}

// pingTimeoutMessage is the text paho uses when the broker misses a PINGRESP.
const pingTimeoutMessage = "pingresp not received"

// classify decides whether cause is worth a reconnect.
func classify(cause error) ErrorKind {
	if cause == nil {
		return Fatal
	}

	switch {
	case errors.Is(cause, ErrTimeout),
		errors.Is(cause, packets.ErrorNetworkError),
		errors.Is(cause, io.EOF),
		errors.Is(cause, io.ErrUnexpectedEOF),
		errors.Is(cause, net.ErrClosed),
		errors.Is(cause, syscall.ECONNRESET),
		errors.Is(cause, syscall.ECONNREFUSED),
		errors.Is(cause, syscall.ECONNABORTED),
		errors.Is(cause, syscall.EPIPE),
		errors.Is(cause, syscall.ETIMEDOUT),
		errors.Is(cause, syscall.EHOSTUNREACH),
		errors.Is(cause, syscall.ENETUNREACH):
		return Transient
	}

	var netErr net.Error
	if errors.As(cause, &netErr) {
		return Transient
	}

	if strings.Contains(cause.Error(), pingTimeoutMessage) {
		return Transient
	}

	return Fatal
}
