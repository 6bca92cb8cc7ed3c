package rule

import (
	"sync"
	"sync/atomic"
	"time"

	"careops-alert-engine/internal/logger"
	"careops-alert-engine/internal/metrics"
)

// TriggerIndex provides fast lookup of active rules by trigger type, so
// an event is only evaluated against rules whose category it can match.
type TriggerIndex struct {
	byTrigger map[TriggerType][]*Rule
	stats     IndexStats
	logger    *logger.Logger
	metrics   *metrics.Metrics
	mu        sync.RWMutex
}

// IndexStats tracks rule index statistics
type IndexStats struct {
	RuleCount  uint64
	Lookups    uint64
	Matches    uint64
	LastUpdate time.Time
}

// NewTriggerIndex creates an empty index.
func NewTriggerIndex(log *logger.Logger, m *metrics.Metrics) *TriggerIndex {
	return &TriggerIndex{
		byTrigger: make(map[TriggerType][]*Rule),
		logger:    log,
		metrics:   m,
		stats: IndexStats{
			LastUpdate: time.Now(),
		},
	}
}

// Rebuild replaces the index contents with the active subset of the
// given rules. Called after every repository mutation.
func (idx *TriggerIndex) Rebuild(rules []*Rule) {
	byTrigger := make(map[TriggerType][]*Rule)
	var active uint64
	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		byTrigger[r.TriggerType] = append(byTrigger[r.TriggerType], r)
		active++
	}

	idx.mu.Lock()
	idx.byTrigger = byTrigger
	atomic.StoreUint64(&idx.stats.RuleCount, active)
	idx.stats.LastUpdate = time.Now()
	idx.mu.Unlock()

	if idx.metrics != nil {
		idx.metrics.SetRulesActive(float64(active))
	}

	idx.logger.Debug("trigger index rebuilt",
		"activeRules", active)
}

// Find returns the active rules registered for an event category.
func (idx *TriggerIndex) Find(category TriggerType) []*Rule {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	atomic.AddUint64(&idx.stats.Lookups, 1)

	matches := idx.byTrigger[category]
	if len(matches) > 0 {
		atomic.AddUint64(&idx.stats.Matches, 1)
	}
	return matches
}

// GetStats returns current index statistics
func (idx *TriggerIndex) GetStats() IndexStats {
	idx.mu.RLock()
	lastUpdate := idx.stats.LastUpdate
	idx.mu.RUnlock()

	return IndexStats{
		RuleCount:  atomic.LoadUint64(&idx.stats.RuleCount),
		Lookups:    atomic.LoadUint64(&idx.stats.Lookups),
		Matches:    atomic.LoadUint64(&idx.stats.Matches),
		LastUpdate: lastUpdate,
	}
}
