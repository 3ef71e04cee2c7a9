package notify

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultSendTimeout bounds a single delivery, including any rate limit wait.
const defaultSendTimeout = 10 * time.Second

// Dispatcher hands notifications to a Sender without blocking the caller.
//
// Every Dispatch runs on its own goroutine, so alerts may be displayed in a
// different order than they were dispatched. Failures are logged and never
// reported back.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Dispatcher struct {
	sender      Sender
	logger      Logger
	limiter     *rate.Limiter
	sendTimeout time.Duration

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher.
//
// Parameters:
//   - sender: Notification backend
//   - logger: Optional logger (nil disables logging)
//   - ratePerSec: Maximum notifications per second, 0 for unlimited
func NewDispatcher(sender Sender, logger Logger, ratePerSec int) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}

	d := &Dispatcher{
		sender:      sender,
		logger:      logger,
		sendTimeout: defaultSendTimeout,
	}
	if ratePerSec > 0 {
		// Burst equals the rate so short spikes are not delayed.
		d.limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return d
}

// Dispatch delivers n in the background and returns immediately.
func (d *Dispatcher) Dispatch(n Notification) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("panic in notification sender", "panic", r, "stack", string(debug.Stack()))
			}
		}()
		d.deliver(n)
	}()
}

// Wait blocks until every dispatched notification has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// deliver sends n, honouring the rate limit and the send timeout.
func (d *Dispatcher) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			d.logger.Warn("notification dropped by rate limit", "summary", n.Summary, "error", err)
			return
		}
	}

	if err := d.sender.Send(ctx, n); err != nil {
		d.logger.Error("failed to send notification", "summary", n.Summary, "error", fmt.Errorf("%w: %w", ErrSendFailed, err))
		return
	}

	d.logger.Debug("notification sent", "summary", n.Summary, "body", n.Body)
}
