package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mqtt-notify/internal/infrastructure/config"
)

// eventBufferSize bounds the number of undelivered events per session.
// When full, paho's delivery goroutine waits for the event loop.
const eventBufferSize = 25

// Client is a single broker session built on paho.mqtt.golang.
//
// paho is callback driven; Client turns those callbacks into a pull API so a
// single control loop can consume events in broker order with NextEvent.
// A Client is never reconnected: after a connection loss the caller closes it
// and connects a new one.
//
// Thread Safety:
//   - NextEvent must be called from one goroutine.
//   - Close may be called from any goroutine and more than once.
type Client struct {
	client pahomqtt.Client
	logger Logger

	// events carries publishes and connection notices to NextEvent.
	events chan Event

	// lost holds the first connection-lost error.
	lost chan error

	// done is closed by Close to release blocked paho callbacks.
	done      chan struct{}
	closeOnce sync.Once
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// newClient creates an unconnected Client with its event plumbing.
func newClient(logger Logger) *Client {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Client{
		logger: logger,
		events: make(chan Event, eventBufferSize),
		lost:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// Connect establishes a session with the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS, keep-alive)
//  2. Registers the connection-lost and on-connect callbacks
//  3. Connects and waits for the CONNACK, the connect timeout or ctx
//
// Parameters:
//   - ctx: Context for cancellation
//   - cfg: MQTT configuration
//   - logger: Optional logger (nil disables logging)
//
// Returns:
//   - *Client: Connected session ready for Subscribe
//   - error: *Error wrapping ErrConnectionFailed, classified transient or fatal
func Connect(ctx context.Context, cfg config.MQTTConfig, logger Logger) (*Client, error) {
	c := newClient(logger)

	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if err := waitToken(ctx, token, defaultConnectTimeout); err != nil {
		c.abandon(token)
		return nil, classified(ErrConnectionFailed, err)
	}

	c.logger.Debug("MQTT session established", "broker", brokerURL(cfg), "client_id", opts.ClientID)
	return c, nil
}

// abandon makes sure a connect that completes after we stopped waiting
// does not leave a live session behind.
func (c *Client) abandon(token pahomqtt.Token) {
	client := c.client
	go func() {
		<-token.Done()
		if token.Error() == nil {
			client.Disconnect(0)
		}
	}()
}

// NextEvent blocks until the next broker event is available.
//
// Messages already received before a connection loss are returned before
// the loss itself is reported.
//
// Returns:
//   - Event: the next publish or connection notice
//   - error: *Error wrapping ErrConnectionLost (transient or fatal),
//     *Error wrapping ErrNotConnected after Close, or ctx.Err()
func (c *Client) NextEvent(ctx context.Context) (Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	default:
	}

	select {
	case ev := <-c.events:
		return ev, nil

	case err := <-c.lost:
		// Drain anything that raced in ahead of the loss.
		select {
		case ev := <-c.events:
			select {
			case c.lost <- err:
			default:
			}
			return ev, nil
		default:
		}
		return Event{}, classified(ErrConnectionLost, err)

	case <-c.done:
		return Event{}, &Error{Kind: Fatal, Err: ErrNotConnected}

	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// handleMessage is the paho callback for every subscribed topic.
func (c *Client) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	ev := Event{
		Kind: EventPublish,
		Message: Message{
			Topic:    msg.Topic(),
			Payload:  msg.Payload(),
			Retained: msg.Retained(),
		},
	}

	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// handleConnect is called by paho when the session is established.
func (c *Client) handleConnect() {
	select {
	case c.events <- Event{Kind: EventConnected}:
	default:
		// A full buffer already tells the loop we are connected.
	}
}

// handleConnectionLost is called by paho when the connection drops.
// Only the first loss per session is kept.
func (c *Client) handleConnectionLost(err error) {
	if err == nil {
		err = errors.New("connection closed by broker")
	}
	c.logger.Warn("MQTT connection lost", "error", err)

	select {
	case c.lost <- err:
	default:
	}
}

// Close disconnects from the broker and releases any blocked callbacks.
//
// Returns:
//   - error: always nil; closing twice is not an error
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.client != nil && c.client.IsConnected() {
			c.client.Disconnect(defaultDisconnectQuiesce)
		}
	})
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// waitToken waits for a paho token, the timeout or ctx, whichever is first.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
