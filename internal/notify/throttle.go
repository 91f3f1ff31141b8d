package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"lightingmap.app/internal/obs"
	"lightingmap.app/internal/ratelimit"
)

// Throttle caps deliveries per event and recipient using a windowed counter
// store, so limits hold across restarts and replicas.
type Throttle struct {
	next    Dispatcher
	limiter *ratelimit.Limiter
}

func NewThrottle(next Dispatcher, limiter *ratelimit.Limiter) *Throttle {
	return &Throttle{next: next, limiter: limiter}
}

// Dispatch forwards msg to the recipients still within budget.
func (t *Throttle) Dispatch(ctx context.Context, msg Message) error {
	allowed := make([]string, 0, len(msg.To))
	for _, to := range msg.Recipients() {
		key := "notify:" + string(msg.Event) + ":" + strings.ToLower(to)
		err := t.limiter.Allow(ctx, key)
		switch {
		case err == nil:
			allowed = append(allowed, to)
		case errors.Is(err, ratelimit.ErrLimited):
			obs.Logger().WithFields(logrus.Fields{"event": msg.Event, "recipient": to}).Info("notification throttled")
			obs.Notifications.WithLabelValues(string(msg.Event), "throttled").Inc()
		default:
			return err
		}
	}
	if len(allowed) == 0 {
		return nil
	}
	msg.To = allowed
	return t.next.Dispatch(ctx, msg)
}
