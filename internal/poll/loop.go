package poll

import (
	"context"
	"log/slog"
	"time"
)

// Loop drives the poll list on its own goroutine: it sleeps
// interval/len(list) between each value it hands to onDue, so a full
// pass through the list takes approximately interval.
type Loop struct {
	list     *List
	interval time.Duration
	onDue    func(ValueID)
	logger   *slog.Logger
}

// NewLoop creates a poll loop. onDue is called (from the loop's own
// goroutine) with the next due value id; the caller is responsible for
// enqueuing the actual poll request onto the scheduler's Poll queue.
func NewLoop(list *List, interval time.Duration, onDue func(ValueID), logger *slog.Logger) *Loop {
	return &Loop{list: list, interval: interval, onDue: onDue, logger: logger.With("component", "poll")}
}

// Run blocks until ctx is cancelled. When the list is empty it just
// waits for ctx without busy-looping.
func (l *Loop) Run(ctx context.Context) {
	for {
		n := l.list.Len()
		if n == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.interval):
			}
			continue
		}
		sleep := l.interval / time.Duration(n)
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
		if id, ok := l.list.Next(); ok {
			l.onDue(id)
		}
	}
}
