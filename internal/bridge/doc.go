// Package bridge turns MQTT messages into desktop notifications.
//
// A Bridge owns a single control loop. It polls the current broker session,
// runs every publish through the message pipeline and hands the resulting
// notification to a non-blocking Notifier:
//
//  1. Retained messages are dropped when mqtt.ignore_retained is set.
//  2. Payloads that are not valid UTF-8 are logged and dropped.
//  3. The rules package decides the notification text.
//  4. The notification is dispatched fire-and-forget.
//
// Because dispatch is asynchronous, notifications may be displayed in a
// different order than their messages arrived. Messages themselves are
// always processed in broker order.
//
// # Reconnection
//
// The initial connect and subscribe are fatal on failure. Once running, a
// transient session error (network failure, keep-alive timeout) triggers a
// reconnect after mqtt.reconnect.delay. The number of reconnects is counted
// over the whole run and Run fails with ErrRetryBudgetExceeded when it goes
// past mqtt.reconnect.max_attempts. A transient failure while reconnecting
// counts as another reconnect; a fatal one ends Run.
//
// The startup notification (notification.notify_on_startup) is sent on the
// first successful connection only.
package bridge
