// Package trigger starts update checks: on file system changes in a
// published update directory, on a cron schedule, or on messages pushed
// by a socket.io dev server.
package trigger

import (
	"context"
	"errors"
)

// CheckFunc runs one update check, usually Runtime.CheckTrigger.
type CheckFunc func(ctx context.Context) error

// Trigger is a started source of checks.
type Trigger interface {
	Start(ctx context.Context) error
	Stop() error
}

var (
	ErrNilCheck       = errors.New("trigger: check function is nil")
	ErrAlreadyStarted = errors.New("trigger: already started")
	ErrEmptySchedule  = errors.New("trigger: schedule is empty")
	ErrConnectTimeout = errors.New("trigger: timed out waiting for socket.io connection")
)

// StopAll stops triggers in reverse start order and joins their errors.
func StopAll(triggers []Trigger) error {
	var errs []error
	for i := len(triggers) - 1; i >= 0; i-- {
		if err := triggers[i].Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
