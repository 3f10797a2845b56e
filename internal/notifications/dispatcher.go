// Package notifications delivers one-way status messages to provisioned
// accounts. Every Dispatcher here is best-effort from the workflow's view.
package notifications

import (
	"context"
	"errors"

	"schoolreg/internal/models"
)

// Event is one notification addressed to a single account.
type Event struct {
	models.Notification
	ApplicationID string
}

// Dispatcher delivers an Event.
type Dispatcher interface {
	Notify(ctx context.Context, ev Event) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, ev Event) error

// Notify calls f.
func (f DispatcherFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Nop discards every event.
var Nop Dispatcher = DispatcherFunc(func(context.Context, Event) error { return nil })

// Multi fans an event out to several dispatchers. All are attempted and
// their errors joined.
type Multi []Dispatcher

// Notify delivers ev through every dispatcher.
func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, d := range m {
		if d == nil {
			continue
		}
		if err := d.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
