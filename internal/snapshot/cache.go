package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/ltv-stats-service/internal/domain"
	"github.com/couchcryptid/ltv-stats-service/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrNotLoaded is returned when no snapshot has been published yet.
var ErrNotLoaded = errors.New("snapshot not loaded")

const notifyTimeout = 5 * time.Second

// Source reads the current snapshot document.
type Source interface {
	Load(ctx context.Context) (domain.Dataset, error)
}

// Watcher observes a Source for external changes.
type Watcher interface {
	// Watch blocks until ctx is cancelled, calling onChange after each
	// observed change. onChange calls are never concurrent.
	Watch(ctx context.Context, onChange func()) error
}

// Notifier announces newly published snapshots.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, event domain.SnapshotEvent) error
}

// Snapshot is an immutable (records, stats) pair. Readers must not modify it.
type Snapshot struct {
	ID         uuid.UUID
	LoadedAt   time.Time
	LatestSeen string
	Records    []domain.FlatRecord
	Stats      domain.Stats
}

// Event summarizes the snapshot for notifications.
func (s *Snapshot) Event() domain.SnapshotEvent {
	return domain.SnapshotEvent{
		SnapshotID:  s.ID.String(),
		LoadedAt:    s.LoadedAt,
		LatestSeen:  s.LatestSeen,
		Records:     s.Stats.Total,
		ActiveCount: s.Stats.ActiveCount,
		Lines:       s.Stats.Lines,
	}
}

// Cache holds the most recent snapshot. The first Load reads the source and
// starts watching it; each change notification rebuilds the snapshot and
// swaps it in atomically. A failed reload keeps the previous snapshot.
type Cache struct {
	source    Source
	watcher   Watcher
	notifiers []Notifier
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock

	mu       sync.Mutex // serializes builds
	notifyMu sync.Mutex // keeps events in publish order
	current  atomic.Pointer[Snapshot]

	watchOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Option configures a Cache.
type Option func(*Cache)

// WithWatcher sets the change watcher started by the first Load.
func WithWatcher(w Watcher) Option {
	return func(c *Cache) { c.watcher = w }
}

// WithNotifiers adds sinks told about every published snapshot.
func WithNotifiers(n ...Notifier) Option {
	return func(c *Cache) { c.notifiers = append(c.notifiers, n...) }
}

// WithClock swaps the time source, for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// New creates an empty Cache over source.
func New(source Source, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		source:  source,
		logger:  logger,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns the cached snapshot, building it on the first call. A failure
// of that first build is returned to the caller and nothing is cached.
func (c *Cache) Load(ctx context.Context) (*Snapshot, error) {
	if s := c.current.Load(); s != nil {
		return s, nil
	}

	c.mu.Lock()

	if s := c.current.Load(); s != nil {
		c.mu.Unlock()
		return s, nil
	}

	s, err := c.build(ctx)
	if err != nil {
		c.mu.Unlock()
		c.logger.Error("initial snapshot load failed", "error", err)
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	c.publish(s)
	c.startWatching()
	c.releaseAndNotify(ctx, s)
	return s, nil
}

// Reload rebuilds the snapshot from the source. On failure the error is
// logged and returned and the current snapshot stays in place.
func (c *Cache) Reload(ctx context.Context) error {
	c.mu.Lock()

	s, err := c.build(ctx)
	if err != nil {
		c.mu.Unlock()
		c.logger.Error("snapshot reload failed, keeping previous snapshot", "error", err)
		return fmt.Errorf("reload snapshot: %w", err)
	}
	c.publish(s)
	c.releaseAndNotify(ctx, s)
	return nil
}

// Current returns the published snapshot without loading.
func (c *Cache) Current() (*Snapshot, error) {
	if s := c.current.Load(); s != nil {
		return s, nil
	}
	return nil, ErrNotLoaded
}

// CheckReadiness returns nil once a snapshot has been published.
func (c *Cache) CheckReadiness(_ context.Context) error {
	if c.current.Load() == nil {
		return ErrNotLoaded
	}
	return nil
}

// Close stops the watcher and waits for an in-flight reload to finish.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Cache) startWatching() {
	if c.watcher == nil {
		return
	}
	c.watchOnce.Do(func() {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.logger.Info("watching snapshot source")
			err := c.watcher.Watch(c.ctx, func() {
				c.logger.Info("snapshot source changed, reloading")
				_ = c.Reload(c.ctx)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error("snapshot watcher stopped", "error", err)
			}
		}()
	})
}

// build runs read, flatten and aggregate to completion.
func (c *Cache) build(ctx context.Context) (*Snapshot, error) {
	start := c.clock.Now()

	ds, err := c.source.Load(ctx)
	if err != nil {
		c.metrics.Reloads.WithLabelValues("error").Inc()
		return nil, err
	}

	records := domain.Flatten(ds)
	stats := domain.ComputeStats(records)

	c.metrics.Reloads.WithLabelValues("success").Inc()
	c.metrics.ReloadDuration.Observe(c.clock.Since(start).Seconds())

	return &Snapshot{
		ID:         uuid.New(),
		LoadedAt:   c.clock.Now().UTC(),
		LatestSeen: latestSeen(records),
		Records:    records,
		Stats:      stats,
	}, nil
}

func (c *Cache) publish(s *Snapshot) {
	c.current.Store(s)

	c.metrics.Records.Set(float64(s.Stats.Total))
	c.metrics.ActiveRecords.Set(float64(s.Stats.ActiveCount))
	c.metrics.LastReload.Set(float64(s.LoadedAt.Unix()))
	c.logger.Info("snapshot published",
		"snapshot_id", s.ID.String(),
		"records", s.Stats.Total,
		"active", s.Stats.ActiveCount,
		"lines", s.Stats.Lines,
		"latest_seen", s.LatestSeen,
	)
}

// releaseAndNotify must be called with c.mu held. It takes the notification
// lock before releasing c.mu, so events leave in publish order while the
// next build runs alongside slow sinks.
func (c *Cache) releaseAndNotify(ctx context.Context, s *Snapshot) {
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()
	c.notify(ctx, s.Event())
}

func (c *Cache) notify(ctx context.Context, event domain.SnapshotEvent) {
	for _, n := range c.notifiers {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		err := n.Notify(nctx, event)
		cancel()
		if err != nil {
			c.logger.Warn("snapshot notification failed", "sink", n.Name(), "error", err)
			c.metrics.Notifications.WithLabelValues(n.Name(), "error").Inc()
			continue
		}
		c.metrics.Notifications.WithLabelValues(n.Name(), "success").Inc()
	}
}

// latestSeen returns the lastSeen shared by the active records.
func latestSeen(records []domain.FlatRecord) string {
	for _, r := range records {
		if r.Active {
			return r.LastSeen
		}
	}
	return ""
}
