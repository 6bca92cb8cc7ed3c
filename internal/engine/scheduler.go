package engine

import (
	"sync"
	"time"

	"careops-alert-engine/internal/rule"
)

// State is a rule's scheduling state.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateCooling
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateCooling:
		return "cooling"
	case StateDisabled:
		return "disabled"
	default:
		return "idle"
	}
}

// Decision is the scheduler's verdict on a matched rule.
type Decision int

const (
	// DecisionFire lets the match proceed to dispatch.
	DecisionFire Decision = iota
	// DecisionSuppressed drops the match inside the cooldown window.
	// Suppressions are still recorded on the ledger.
	DecisionSuppressed
	// DecisionDisabled drops the match with no ledger entry.
	DecisionDisabled
)

// Scheduler serializes per-rule firing decisions. Two events matching
// the same rule concurrently cannot both pass the cooldown gate: the
// firing time is reserved under the per-rule lock at gate time, and
// the lock is never held across dispatch I/O.
type Scheduler struct {
	mu     sync.Mutex
	states map[string]*ruleState
	clock  func() time.Time
}

type ruleState struct {
	mu        sync.Mutex
	state     State
	lastFired time.Time
	seeded    bool
}

// NewScheduler creates a scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		states: make(map[string]*ruleState),
		clock:  time.Now,
	}
}

func (s *Scheduler) get(ruleID string) *ruleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[ruleID]
	if !ok {
		st = &ruleState{}
		s.states[ruleID] = st
	}
	return st
}

// Gate decides whether a matched rule may fire now. On DecisionFire the
// firing time is reserved immediately, so a concurrent second event
// observes the rule as cooling.
func (s *Scheduler) Gate(r *rule.Rule, now time.Time) Decision {
	st := s.get(r.ID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !r.IsActive {
		st.state = StateDisabled
		return DecisionDisabled
	}

	// Seed the cooldown window from the rule's persisted lastExecutedAt
	// the first time the scheduler sees it (engine restart).
	if !st.seeded {
		st.seeded = true
		if r.LastExecutedAt != nil {
			st.lastFired = *r.LastExecutedAt
		}
	}

	if !st.lastFired.IsZero() && now.Sub(st.lastFired) < r.Cooldown() {
		st.state = StateCooling
		return DecisionSuppressed
	}

	st.state = StateArmed
	st.lastFired = now
	return DecisionFire
}

// Complete transitions a rule to cooling after its dispatch resolved,
// regardless of dispatch outcome.
func (s *Scheduler) Complete(ruleID string) {
	st := s.get(ruleID)
	st.mu.Lock()
	st.state = StateCooling
	st.mu.Unlock()
}

// Forget drops a rule's scheduling state after deletion.
func (s *Scheduler) Forget(ruleID string) {
	s.mu.Lock()
	delete(s.states, ruleID)
	s.mu.Unlock()
}

// StateOf reports a rule's current scheduling state.
func (s *Scheduler) StateOf(ruleID string) State {
	s.mu.Lock()
	st, ok := s.states[ruleID]
	s.mu.Unlock()
	if !ok {
		return StateIdle
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}
