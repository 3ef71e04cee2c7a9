package bridge

import (
	"context"
	"unicode/utf8"

	"github.com/nerrad567/mqtt-notify/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-notify/internal/notify"
	"github.com/nerrad567/mqtt-notify/internal/rules"
)

// serve polls session until it returns an error.
// Events are handled in the order the broker delivered them.
func (b *Bridge) serve(ctx context.Context, session Session) error {
	for {
		ev, err := session.NextEvent(ctx)
		if err != nil {
			return err
		}
		b.handle(ev)
	}
}

// handle runs one event through the message pipeline. It never blocks on
// notification delivery.
func (b *Bridge) handle(ev mqtt.Event) {
	if ev.Kind != mqtt.EventPublish {
		b.logger.Trace("ignoring MQTT event", "kind", ev.Kind)
		return
	}

	msg := ev.Message
	if msg.Retained && b.cfg.MQTT.IgnoreRetained {
		b.logger.Trace("skipping retained message", "topic", msg.Topic)
		return
	}

	if !utf8.Valid(msg.Payload) {
		b.logger.Error("discarding message with invalid UTF-8 payload",
			"topic", msg.Topic,
			"bytes", len(msg.Payload),
		)
		return
	}
	text := string(msg.Payload)

	say, matched := rules.Match(b.cfg.Rules, msg.Topic, text)
	b.logger.Debug("message received", "topic", msg.Topic, "payload", text, "matched", matched)

	b.notifier.Dispatch(notify.Notification{
		Summary: notify.DefaultSummary,
		Body:    say,
		Timeout: b.cfg.Notification.Timeout(),
	})
	b.recorder.RecordNotification(msg.Topic, matched)
}
