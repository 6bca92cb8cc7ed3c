package stats

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// Collector manages engine-wide counters. All fields are updated
// atomically from the evaluation pipeline.
type Collector struct {
	StartTime        time.Time
	EventsReceived   uint64
	RulesEvaluated   uint64
	RulesMatched     uint64
	Firings          uint64
	Suppressed       uint64
	ActionsSucceeded uint64
	ActionsFailed    uint64
	DigestsFlushed   uint64
	LedgerErrors     uint64
}

// Snapshot is a point-in-time copy of the collector's counters.
type Snapshot struct {
	Uptime           time.Duration
	EventsReceived   uint64
	RulesEvaluated   uint64
	RulesMatched     uint64
	Firings          uint64
	Suppressed       uint64
	ActionsSucceeded uint64
	ActionsFailed    uint64
	DigestsFlushed   uint64
	LedgerErrors     uint64
}

// NewCollector creates a new stats collector
func NewCollector() *Collector {
	return &Collector{
		StartTime: time.Now(),
	}
}

func (s *Collector) IncEventsReceived()   { atomic.AddUint64(&s.EventsReceived, 1) }
func (s *Collector) IncRulesEvaluated()   { atomic.AddUint64(&s.RulesEvaluated, 1) }
func (s *Collector) IncRulesMatched()     { atomic.AddUint64(&s.RulesMatched, 1) }
func (s *Collector) IncFirings()          { atomic.AddUint64(&s.Firings, 1) }
func (s *Collector) IncSuppressed()       { atomic.AddUint64(&s.Suppressed, 1) }
func (s *Collector) IncActionsSucceeded() { atomic.AddUint64(&s.ActionsSucceeded, 1) }
func (s *Collector) IncActionsFailed()    { atomic.AddUint64(&s.ActionsFailed, 1) }
func (s *Collector) IncDigestsFlushed()   { atomic.AddUint64(&s.DigestsFlushed, 1) }
func (s *Collector) IncLedgerErrors()     { atomic.AddUint64(&s.LedgerErrors, 1) }

// GetSnapshot returns a copy of the current counters.
func (s *Collector) GetSnapshot() Snapshot {
	return Snapshot{
		Uptime:           time.Since(s.StartTime),
		EventsReceived:   atomic.LoadUint64(&s.EventsReceived),
		RulesEvaluated:   atomic.LoadUint64(&s.RulesEvaluated),
		RulesMatched:     atomic.LoadUint64(&s.RulesMatched),
		Firings:          atomic.LoadUint64(&s.Firings),
		Suppressed:       atomic.LoadUint64(&s.Suppressed),
		ActionsSucceeded: atomic.LoadUint64(&s.ActionsSucceeded),
		ActionsFailed:    atomic.LoadUint64(&s.ActionsFailed),
		DigestsFlushed:   atomic.LoadUint64(&s.DigestsFlushed),
		LedgerErrors:     atomic.LoadUint64(&s.LedgerErrors),
	}
}

// GetSnapshotJSON returns the current counters as JSON.
func (s *Collector) GetSnapshotJSON() ([]byte, error) {
	snap := s.GetSnapshot()
	return json.Marshal(map[string]interface{}{
		"uptime":            snap.Uptime.String(),
		"events_received":   snap.EventsReceived,
		"rules_evaluated":   snap.RulesEvaluated,
		"rules_matched":     snap.RulesMatched,
		"firings":           snap.Firings,
		"suppressed":        snap.Suppressed,
		"actions_succeeded": snap.ActionsSucceeded,
		"actions_failed":    snap.ActionsFailed,
		"digests_flushed":   snap.DigestsFlushed,
		"ledger_errors":     snap.LedgerErrors,
	})
}

// EventRate calculates events processed per second since start.
func (s *Collector) EventRate() float64 {
	uptime := time.Since(s.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&s.EventsReceived)) / uptime
}
