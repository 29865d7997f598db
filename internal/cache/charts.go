package cache

import (
	"fmt"
	"time"

	"caixa/internal/core"
	"caixa/internal/store"
)

// chartEntry keeps the no-data outcome too, so an empty store is not
// re-derived on every request.
type chartEntry struct {
	data core.ChartData
	err  error
}

// ChartCache memoizes core.BuildCharts per pair of collection versions. A
// store replace bumps a version, so stale charts are never served.
type ChartCache struct {
	lru *LRUCache[chartEntry]
}

// NewChartCache keeps up to maxSize version pairs for ttl.
func NewChartCache(maxSize int, ttl time.Duration) *ChartCache {
	return &ChartCache{lru: NewLRUCache[chartEntry](maxSize, ttl)}
}

// Charts returns the chart data for snap, building it on a miss.
func (c *ChartCache) Charts(snap store.Snapshot) (core.ChartData, error) {
	key := chartKey(snap)
	if e, ok := c.lru.Get(key); ok {
		return e.data, e.err
	}
	data, err := core.BuildCharts(snap.Expenses, snap.Profits)
	c.lru.Set(key, chartEntry{data: data, err: err})
	return data, err
}

// Watch builds charts for every snapshot st publishes, so the first request
// after a replace is a hit. The returned func stops watching.
func (c *ChartCache) Watch(st *store.Store) (stop func()) {
	return st.Subscribe(func(_ core.Kind, snap store.Snapshot) {
		_, _ = c.Charts(snap)
	})
}

func (c *ChartCache) CleanExpired() int {
	return c.lru.CleanExpired()
}

func (c *ChartCache) Size() int {
	return c.lru.Size()
}

func chartKey(snap store.Snapshot) string {
	return fmt.Sprintf("charts:%d:%d", snap.ExpensesVersion, snap.ProfitsVersion)
}
