package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"careops-alert-engine/internal/rule"
)

// InMemoryLedger is the default Ledger. Rows are held newest-last in
// append order; queries return copies so callers never see a row
// mutate underneath them.
type InMemoryLedger struct {
	mu     sync.RWMutex
	rows   []*Execution
	byID   map[string]*Execution
	byRule map[string][]*Execution
	clock  func() time.Time
}

// NewInMemoryLedger creates an empty ledger.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		byID:   make(map[string]*Execution),
		byRule: make(map[string][]*Execution),
		clock:  time.Now,
	}
}

// Open appends a pending row and returns its id.
func (l *InMemoryLedger) Open(exec *Execution) (string, error) {
	row := cloneExecution(exec)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = l.clock()
	}
	row.Status = StatusPending

	l.mu.Lock()
	l.append(row)
	l.mu.Unlock()
	return row.ID, nil
}

// Close writes the terminal status of a pending row. Closing an
// already-terminal row is rejected to keep the ledger append-only.
func (l *InMemoryLedger) Close(id string, status Status, actionsExecuted []string, errorMessage string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	row, ok := l.byID[id]
	if !ok {
		return ErrNotFound
	}
	if row.Status != StatusPending {
		return &ClosedRowError{ID: id, Status: row.Status}
	}

	row.Status = status
	row.ActionsExecuted = append([]string(nil), actionsExecuted...)
	row.ErrorMessage = errorMessage
	now := l.clock()
	row.ClosedAt = &now
	return nil
}

// Record appends a row that is terminal at creation.
func (l *InMemoryLedger) Record(exec *Execution) (string, error) {
	row := cloneExecution(exec)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = l.clock()
	}
	now := l.clock()
	row.ClosedAt = &now

	l.mu.Lock()
	l.append(row)
	l.mu.Unlock()
	return row.ID, nil
}

func (l *InMemoryLedger) append(row *Execution) {
	l.rows = append(l.rows, row)
	l.byID[row.ID] = row
	l.byRule[row.RuleID] = append(l.byRule[row.RuleID], row)
}

// Query returns matching executions newest first, ordered by priority
// rank within the same timestamp.
func (l *InMemoryLedger) Query(f Filter, p Page) ([]*Execution, error) {
	l.mu.RLock()

	source := l.rows
	if f.RuleID != "" {
		source = l.byRule[f.RuleID]
	}

	matched := make([]*Execution, 0, len(source))
	for _, row := range source {
		if f.Status != "" && row.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && row.Timestamp.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && row.Timestamp.After(f.To) {
			continue
		}
		matched = append(matched, cloneExecution(row))
	}
	l.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Priority.Rank() > matched[j].Priority.Rank()
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	return paginate(matched, p), nil
}

// Stats derives a rule's execution statistics from the ledger. Only
// non-suppressed firings count.
func (l *InMemoryLedger) Stats(ruleID string) (RuleStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var st RuleStats
	for _, row := range l.byRule[ruleID] {
		if row.Status == StatusSuppressed {
			continue
		}
		st.ExecutionCount++
		if st.LastExecutedAt == nil || row.Timestamp.After(*st.LastExecutedAt) {
			t := row.Timestamp
			st.LastExecutedAt = &t
		}
	}
	return st, nil
}

// FailureStreak counts consecutive trailing failed executions for a
// rule, newest backwards, stopping at the first success. Pending and
// suppressed rows are skipped.
func (l *InMemoryLedger) FailureStreak(ruleID string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rows := l.byRule[ruleID]
	streak := 0
	for i := len(rows) - 1; i >= 0; i-- {
		switch rows[i].Status {
		case StatusFailed:
			streak++
		case StatusSuccess:
			return streak, nil
		}
	}
	return streak, nil
}

func paginate(rows []*Execution, p Page) []*Execution {
	if p.Offset >= len(rows) {
		return []*Execution{}
	}
	rows = rows[p.Offset:]
	if p.Limit > 0 && p.Limit < len(rows) {
		rows = rows[:p.Limit]
	}
	return rows
}

func cloneExecution(e *Execution) *Execution {
	cp := *e
	if e.TriggerEvent != nil {
		cp.TriggerEvent = make(map[string]rule.Value, len(e.TriggerEvent))
		for k, v := range e.TriggerEvent {
			cp.TriggerEvent[k] = v
		}
	}
	cp.ActionsExecuted = append([]string(nil), e.ActionsExecuted...)
	cp.Notes = append([]string(nil), e.Notes...)
	if e.ClosedAt != nil {
		t := *e.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}
