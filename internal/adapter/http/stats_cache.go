package http

import (
	"github.com/bluele/gcache"
	"github.com/couchcryptid/ltv-stats-service/internal/domain"
	"github.com/couchcryptid/ltv-stats-service/internal/observability"
	"github.com/couchcryptid/ltv-stats-service/internal/snapshot"
)

// statsCache memoizes filtered aggregates. Keys include the snapshot ID, so
// entries for a replaced snapshot are never served and age out of the LRU.
type statsCache struct {
	lru     gcache.Cache
	metrics *observability.Metrics
}

func newStatsCache(size int, metrics *observability.Metrics) *statsCache {
	return &statsCache{
		lru:     gcache.New(size).LRU().Build(),
		metrics: metrics,
	}
}

func (c *statsCache) get(s *snapshot.Snapshot, f domain.Filter) domain.Stats {
	key := s.ID.String() + "|" + f.Key()
	if v, err := c.lru.Get(key); err == nil {
		if stats, ok := v.(domain.Stats); ok {
			c.metrics.StatsCache.WithLabelValues("hit").Inc()
			return stats
		}
	}
	c.metrics.StatsCache.WithLabelValues("miss").Inc()

	stats := domain.ComputeStats(domain.ApplyFilter(s.Records, f))
	_ = c.lru.Set(key, stats)
	return stats
}
