package mqtt

import (
	"context"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// subackFailure is the SUBACK return code for a rejected subscription.
const subackFailure = 0x80

// Subscribe subscribes to every topic at QoS 0 ("at most once"), in order.
//
// Topics are passed to the broker verbatim; no wildcard expansion happens
// here. The first failure aborts the call and the session should be closed:
// partial subscription is never reported as success.
//
// Parameters:
//   - ctx: Context for cancellation
//   - topics: Topic filters in configuration order
//
// Returns:
//   - error: nil on success, or *Error wrapping ErrSubscribeFailed
func (c *Client) Subscribe(ctx context.Context, topics []string) error {
	for _, topic := range topics {
		if topic == "" {
			return &Error{Kind: Fatal, Err: fmt.Errorf("%w: %w", ErrSubscribeFailed, ErrInvalidTopic)}
		}

		token := c.client.Subscribe(topic, QoSAtMostOnce, c.handleMessage)
		if err := waitToken(ctx, token, defaultSubscribeTimeout); err != nil {
			return classified(ErrSubscribeFailed, fmt.Errorf("topic %q: %w", topic, err))
		}

		if err := checkSuback(topic, token); err != nil {
			return err
		}

		c.logger.Debug("MQTT subscribed", "topic", topic, "qos", QoSAtMostOnce)
	}

	return nil
}

// checkSuback rejects subscriptions the broker refused with code 0x80.
func checkSuback(topic string, token pahomqtt.Token) error {
	st, ok := token.(*pahomqtt.SubscribeToken)
	if !ok {
		return nil
	}
	for _, code := range st.Result() {
		if code == subackFailure {
			return &Error{
				Kind: Fatal,
				Err:  fmt.Errorf("%w: topic %q rejected by broker", ErrSubscribeFailed, topic),
			}
		}
	}
	return nil
}
