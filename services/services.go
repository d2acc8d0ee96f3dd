package services

import (
	"github.com/camden-git/labelsysbackend/apperr"
	"github.com/camden-git/labelsysbackend/realtime"
)

// Notifier publishes realtime events to connected clients.
type Notifier interface {
	Broadcast(event realtime.Event)
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(realtime.Event) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

// internal wraps err as an internal error unless it already carries a code.
func internal(err error, message string) error {
	if err == nil {
		return nil
	}
	if apperr.CodeOf(err) != apperr.CodeUnknown {
		return err
	}
	return apperr.Wrap(err, apperr.CodeInternal, message)
}
