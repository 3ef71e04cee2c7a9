// Package notify raises desktop notifications.
//
// A Dispatcher decouples delivery from the caller: Dispatch starts a
// goroutine per notification, optionally throttled by a token bucket
// (notification.rate_limit), and returns at once. Delivery errors and
// panics in the Sender are logged and go no further.
//
// DBusSender is the production Sender. It calls
// org.freedesktop.Notifications.Notify on the session bus, which every
// mainstream Linux desktop implements.
//
// # Usage
//
//	sender, err := notify.NewDBusSender()
//	if err != nil {
//	    return err
//	}
//	d := notify.NewDispatcher(sender, logger, cfg.Notification.RateLimit)
//	d.Dispatch(notify.Notification{
//	    Summary: notify.DefaultSummary,
//	    Body:    "Door opened!",
//	    Timeout: cfg.Notification.Timeout(),
//	})
//	defer d.Wait()
package notify
