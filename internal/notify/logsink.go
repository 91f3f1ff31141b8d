package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"lightingmap.app/internal/obs"
)

// LogSink writes messages to the service log instead of delivering them.
type LogSink struct{}

func (LogSink) Dispatch(_ context.Context, msg Message) error {
	obs.Logger().WithFields(logrus.Fields{
		"event":   msg.Event,
		"to":      msg.Recipients(),
		"subject": msg.Subject,
	}).Info("notification")
	return nil
}
