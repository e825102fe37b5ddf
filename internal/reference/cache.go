package reference

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/yegors/ogn-tracker/pkg/logger"
)

// Fetcher loads a complete dataset from its source
type Fetcher[T any] func(ctx context.Context) (T, error)

type snapshot[T any] struct {
	data      T
	fetchedAt time.Time
}

// Cache holds an immutable snapshot of a dataset that is swapped atomically
// on every successful refresh. Readers never block and never see a partial
// dataset; a failed refresh keeps the previous snapshot.
type Cache[T any] struct {
	name     string
	fetch    Fetcher[T]
	interval time.Duration
	current  atomic.Pointer[snapshot[T]]
	failures atomic.Int64
	logger   *logger.Logger
}

// NewCache creates an empty cache. Call Refresh or Run to populate it.
func NewCache[T any](name string, fetch Fetcher[T], interval time.Duration, log *logger.Logger) *Cache[T] {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Cache[T]{
		name:     name,
		fetch:    fetch,
		interval: interval,
		logger:   log.Named(name + "-cache"),
	}
}

// Load returns the latest snapshot and whether one has been loaded yet
func (c *Cache[T]) Load() (T, bool) {
	s := c.current.Load()
	if s == nil {
		var zero T
		return zero, false
	}
	return s.data, true
}

// LoadedAt returns when the current snapshot was fetched
func (c *Cache[T]) LoadedAt() time.Time {
	if s := c.current.Load(); s != nil {
		return s.fetchedAt
	}
	return time.Time{}
}

// Failures returns the number of failed refreshes since start
func (c *Cache[T]) Failures() int64 {
	return c.failures.Load()
}

// Store replaces the snapshot directly
func (c *Cache[T]) Store(data T) {
	c.current.Store(&snapshot[T]{data: data, fetchedAt: time.Now()})
}

// Refresh fetches the dataset and swaps it in. On error the previous
// snapshot stays in place.
func (c *Cache[T]) Refresh(ctx context.Context) error {
	data, err := c.fetch(ctx)
	if err != nil {
		c.failures.Add(1)
		c.logger.Warn("Refresh failed, keeping previous snapshot",
			logger.Error(err),
			logger.Time("snapshot_from", c.LoadedAt()))
		return fmt.Errorf("failed to refresh %s: %w", c.name, err)
	}
	c.Store(data)
	c.logger.Debug("Snapshot refreshed")
	return nil
}

// Run refreshes immediately and then on every interval until ctx is done
func (c *Cache[T]) Run(ctx context.Context) {
	_ = c.Refresh(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Refresh(ctx)
		}
	}
}
