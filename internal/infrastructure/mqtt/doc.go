// Package mqtt provides the broker session used by mqtt-notify.
//
// This package manages:
//   - Connecting to the broker with optional credentials and TLS
//   - Subscribing to the configured topics at QoS 0
//   - Turning paho's callbacks into a blocking NextEvent call
//   - Classifying failures as transient (retry) or fatal (give up)
//
// # Architecture
//
// paho.mqtt.golang delivers messages on its own goroutine. Client forwards
// them into a bounded channel so the bridge's single control loop can pull
// events in the order the broker sent them:
//
//	paho router → Client.events → bridge.NextEvent loop
//
// paho's auto-reconnect is switched off. A Client lives for exactly one
// broker session; the bridge counts reconnects and dials a fresh Client.
//
// # Error Classification
//
// Connection losses, connect failures and subscribe failures are returned as
// *Error. Network errors, EOF, connection resets and keep-alive (PINGRESP)
// timeouts are Transient; refused credentials, rejected subscriptions and
// anything unrecognised are Fatal. Use IsTransient to test.
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if err := client.Subscribe(ctx, []string{"sensor/door"}); err != nil {
//	    return err
//	}
//	for {
//	    ev, err := client.NextEvent(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    // handle ev.Message
//	}
package mqtt
