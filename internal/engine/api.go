package engine

import (
	"careops-alert-engine/internal/ledger"
	"careops-alert-engine/internal/rule"
)

// The methods below are the engine's configuration and query surface,
// consumed by the dashboard/admin layer. Validation happens at this
// boundary, so a malformed rule never becomes eligible for evaluation.

// CreateRule stores a new rule as an inactive draft.
func (e *Engine) CreateRule(r *rule.Rule) (*rule.Rule, error) {
	return e.repo.Create(r)
}

// GetRule returns a rule by id.
func (e *Engine) GetRule(id string) (*rule.Rule, error) {
	return e.repo.Get(id)
}

// UpdateRule replaces a rule's definition.
func (e *Engine) UpdateRule(r *rule.Rule) (*rule.Rule, error) {
	return e.repo.Update(r)
}

// DeleteRule removes a rule. Its ledger entries are retained for audit
// and never cascade-deleted.
func (e *Engine) DeleteRule(id string) error {
	if err := e.repo.Delete(id); err != nil {
		return err
	}
	e.sched.Forget(id)
	return nil
}

// ToggleRule flips a rule's active state. Deactivation takes effect at
// the scheduler gate immediately; in-flight dispatches already past
// the gate complete.
func (e *Engine) ToggleRule(id string, active bool) (*rule.Rule, error) {
	return e.repo.ToggleActive(id, active)
}

// ListRules returns all rules.
func (e *Engine) ListRules() []*rule.Rule {
	return e.repo.List()
}

// QueryExecutions returns execution history for audit views.
func (e *Engine) QueryExecutions(f ledger.Filter, p ledger.Page) ([]*ledger.Execution, error) {
	return e.ledger.Query(f, p)
}

// QueryRuleStats returns execution count, last firing time and the
// current consecutive-failure streak for a rule.
func (e *Engine) QueryRuleStats(ruleID string) (ledger.RuleStats, int, error) {
	st, err := e.ledger.Stats(ruleID)
	if err != nil {
		return ledger.RuleStats{}, 0, err
	}
	streak, err := e.ledger.FailureStreak(ruleID)
	if err != nil {
		return st, 0, err
	}
	return st, streak, nil
}
