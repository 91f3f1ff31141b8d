package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"lightingmap.app/internal/lighting"
	"lightingmap.app/internal/obs"
)

const defaultDeliveryTimeout = 30 * time.Second

// Async runs each delivery in its own goroutine with a private timeout.
type Async struct {
	next    Dispatcher
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsync(next Dispatcher, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	return &Async{next: next, timeout: timeout}
}

// Fire schedules msg and returns immediately. Failures are logged as
// upstream errors and counted.
func (a *Async) Fire(msg Message) {
	if a == nil || a.next == nil {
		return
	}
	msg.To = msg.Recipients()
	if len(msg.To) == 0 {
		obs.Logger().WithField("event", msg.Event).Debug("notification without recipients dropped")
		obs.Notifications.WithLabelValues(string(msg.Event), "skipped").Inc()
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.next.Dispatch(ctx, msg); err != nil {
			err = fmt.Errorf("%w: %w", lighting.ErrUpstream, err)
			obs.Logger().WithFields(logrus.Fields{
				"operation":  "notify.Fire",
				"event":      msg.Event,
				"recipients": len(msg.To),
			}).WithError(err).Warn("notification delivery failed")
			obs.Notifications.WithLabelValues(string(msg.Event), "failed").Inc()
			return
		}
		obs.Notifications.WithLabelValues(string(msg.Event), "sent").Inc()
	}()
}

// Wait blocks until every scheduled delivery has finished.
func (a *Async) Wait() {
	if a != nil {
		a.wg.Wait()
	}
}
