package notifications

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"schoolreg/internal/observability"
)

// BestEffort runs deliveries in the background with a bounded timeout.
// Notify never blocks on the wrapped dispatcher and never returns its error;
// failures are logged and counted.
type BestEffort struct {
	next    Dispatcher
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewBestEffort wraps next. A non-positive timeout defaults to five seconds.
func NewBestEffort(next Dispatcher, timeout time.Duration) *BestEffort {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BestEffort{next: next, timeout: timeout}
}

// Notify schedules delivery of ev and returns immediately.
func (b *BestEffort) Notify(ctx context.Context, ev Event) error {
	if b.next == nil {
		return nil
	}
	// The request context ends with the response; keep its values only.
	base := context.WithoutCancel(ctx)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in notification dispatch: %v\n%s", r, debug.Stack())
				observability.SideEffectFailures.WithLabelValues(observability.EffectNotification).Inc()
			}
		}()

		dctx, cancel := context.WithTimeout(base, b.timeout)
		defer cancel()

		fields := map[string]interface{}{
			"user_id":        ev.UserID,
			"type":           string(ev.Type),
			"application_id": ev.ApplicationID,
		}
		observability.LogAsyncOperationStart(dctx, "notification_dispatch", fields)
		if err := b.next.Notify(dctx, ev); err != nil {
			observability.SideEffectFailures.WithLabelValues(observability.EffectNotification).Inc()
			observability.LogAsyncOperationError(dctx, "notification_dispatch", fmt.Errorf("notify %s: %w", ev.Type, err), fields)
			return
		}
		observability.LogAsyncOperationEnd(dctx, "notification_dispatch", fields)
	}()
	return nil
}

// Wait blocks until every scheduled delivery finished.
func (b *BestEffort) Wait() {
	b.wg.Wait()
}
