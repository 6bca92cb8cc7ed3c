package ledger

import (
	"errors"
	"fmt"
	"time"

	"careops-alert-engine/internal/rule"
)

// Status is the lifecycle state of an execution row.
type Status string

const (
	StatusPending    Status = "pending"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusSuppressed Status = "suppressed"
)

// ErrNotFound is returned when an execution id does not resolve.
var ErrNotFound = errors.New("execution not found")

// ClosedRowError is returned when a terminal row is closed again.
type ClosedRowError struct {
	ID     string
	Status Status
}

func (e *ClosedRowError) Error() string {
	return fmt.Sprintf("execution %s already closed with status %s", e.ID, e.Status)
}

// ActionOutcome is the result of one action dispatch attempt.
type ActionOutcome struct {
	ActionType rule.ActionType `json:"actionType"`
	Succeeded  bool            `json:"succeeded"`
	Detail     string          `json:"detail"`
}

// String renders the outcome the way the executions history displays
// it, e.g. "email_alert: success".
func (o ActionOutcome) String() string {
	return fmt.Sprintf("%s: %s", o.ActionType, o.Detail)
}

// RenderOutcomes converts outcomes to their ledger text form, in
// configured action order.
func RenderOutcomes(outcomes []ActionOutcome) []string {
	lines := make([]string, len(outcomes))
	for i, o := range outcomes {
		lines[i] = o.String()
	}
	return lines
}

// Execution is one audited record of a rule-evaluation-and-dispatch
// attempt. Rows are immutable once written except for the transition
// from pending to a terminal status.
type Execution struct {
	ID              string                `json:"id"`
	RuleID          string                `json:"ruleId"`
	RuleName        string                `json:"ruleName"`
	Priority        rule.Priority         `json:"priority"`
	Timestamp       time.Time             `json:"timestamp"`
	Status          Status                `json:"status"`
	TriggerEvent    map[string]rule.Value `json:"triggerEvent"`
	ActionsExecuted []string              `json:"actionsExecuted,omitempty"`
	ErrorMessage    string                `json:"errorMessage,omitempty"`
	Notes           []string              `json:"notes,omitempty"`
	ClosedAt        *time.Time            `json:"closedAt,omitempty"`
}

// Filter narrows a ledger query. Zero values mean "any".
type Filter struct {
	RuleID string
	Status Status
	From   time.Time
	To     time.Time
}

// Page bounds a ledger query. A zero Limit returns everything from
// Offset on.
type Page struct {
	Offset int
	Limit  int
}

// RuleStats are the ledger-derived statistics cached onto a rule.
type RuleStats struct {
	ExecutionCount uint64
	LastExecutedAt *time.Time
}

// Ledger is the append-only execution store. Open starts a pending row
// before dispatch begins; Close writes the terminal status after
// dispatch completes, making in-flight executions observable and a
// crash mid-dispatch leave a pending row rather than lose the event.
// Record writes rows that are terminal at creation (cooldown
// suppressions).
type Ledger interface {
	Open(exec *Execution) (string, error)
	Close(id string, status Status, actionsExecuted []string, errorMessage string) error
	Record(exec *Execution) (string, error)
	Query(f Filter, p Page) ([]*Execution, error)
	Stats(ruleID string) (RuleStats, error)
	FailureStreak(ruleID string) (int, error)
}
