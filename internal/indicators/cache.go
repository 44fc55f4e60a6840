package indicators

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/DaviRain-Su/zigquant-core/internal/quant"
)

// Fingerprint is the cache key described by spec.md §4.1: a structural key
// derived from (series identity, indicator name, parameter tuple).
type Fingerprint struct {
	SeriesID uint64
	Name     string
	Params   string
}

func (f Fingerprint) key() string {
	return fmt.Sprintf("%d:%s:%s", f.SeriesID, f.Name, f.Params)
}

// computeFunc produces a column from scratch given a series's full close
// history. Registered per indicator kind so Get and Extend can share the
// same recompute path.
type computeFunc func(closes []quant.Decimal) quant.Column

// extendFunc appends the O(1) incremental update for one new candle, given
// the prior column and full close history including the new candle.
type extendFunc func(prevCol quant.Column, closes []quant.Decimal) quant.Column

// IndicatorManager memoizes indicator columns per Fingerprint with an
// at-most-one-concurrent-compute guarantee (golang.org/x/sync/singleflight)
// and bounds memory with an LRU eviction policy.
type IndicatorManager struct {
	mu    sync.Mutex
	cache *lru
	group singleflight.Group
}

// NewIndicatorManager constructs a manager with the given maximum entry
// count.
func NewIndicatorManager(maxEntries int) *IndicatorManager {
	return &IndicatorManager{cache: newLRU(maxEntries)}
}

// Get returns the cached column for fp, computing it via compute if absent.
// Concurrent Get calls for the same fingerprint share one compute
// (singleflight); the result is treated as shared-immutable by callers.
func (m *IndicatorManager) Get(fp Fingerprint, series *quant.Series, compute computeFunc) quant.Column {
	key := fp.key()

	m.mu.Lock()
	if col, ok := m.cache.get(key); ok {
		m.mu.Unlock()
		return col
	}
	m.mu.Unlock()

	v, _, _ := m.group.Do(key, func() (interface{}, error) {
		m.mu.Lock()
		if col, ok := m.cache.get(key); ok {
			m.mu.Unlock()
			return col, nil
		}
		m.mu.Unlock()

		closes := series.Closes(series.Len() - 1)
		col := compute(closes)

		m.mu.Lock()
		m.cache.put(key, col)
		m.mu.Unlock()
		return col, nil
	})
	return v.(quant.Column)
}

// Extend applies the O(1) incremental update formula for fp's indicator
// kind against series, which must already have been extended with the new
// candle. If fp is not cached, this falls back to a full recompute via
// compute — extending a column that was never computed is simply computing
// it, per spec.md §4.1's "new candles cause a keyed-append variant".
func (m *IndicatorManager) Extend(fp Fingerprint, series *quant.Series, compute computeFunc, extend extendFunc) quant.Column {
	key := fp.key()

	m.mu.Lock()
	defer m.mu.Unlock()

	closes := series.Closes(series.Len() - 1)
	prev, ok := m.cache.get(key)
	if !ok {
		col := compute(closes)
		m.cache.put(key, col)
		return col
	}
	col := extend(prev, closes)
	m.cache.put(key, col)
	return col
}

// Invalidate drops fp's cached column, forcing the next Get to recompute
// from scratch (used when a series is reset rather than incrementally
// extended).
func (m *IndicatorManager) Invalidate(fp Fingerprint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.delete(fp.key())
}

// Len reports the current number of cached entries, for tests and metrics.
func (m *IndicatorManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.len()
}
