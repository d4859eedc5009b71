package sqlstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// PollWatcher detects table changes by polling a cheap fingerprint query.
type PollWatcher struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger
	clock    clockwork.Clock
}

// NewPollWatcher creates a PollWatcher checking store every interval.
func NewPollWatcher(store *Store, interval time.Duration, logger *slog.Logger) *PollWatcher {
	return &PollWatcher{
		store:    store,
		interval: interval,
		logger:   logger,
		clock:    clockwork.NewRealClock(),
	}
}

// WithClock swaps the time source, for tests.
func (w *PollWatcher) WithClock(clock clockwork.Clock) *PollWatcher {
	w.clock = clock
	return w
}

// Watch polls until ctx is cancelled. Query failures are logged and retried
// on the next tick.
func (w *PollWatcher) Watch(ctx context.Context, onChange func()) error {
	last, err := w.store.fingerprint(ctx)
	if err != nil {
		w.logger.Warn("initial fingerprint failed", "error", err)
	}

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			fp, err := w.store.fingerprint(ctx)
			if err != nil {
				w.logger.Warn("fingerprint poll failed", "error", err)
				continue
			}
			if fp == last {
				continue
			}
			w.logger.Debug("snapshot table changed", "fingerprint", fp)
			last = fp
			onChange()
		}
	}
}
