package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"careops-alert-engine/internal/ledger"
	"careops-alert-engine/internal/logger"
	"careops-alert-engine/internal/metrics"
	"careops-alert-engine/internal/rule"
	"careops-alert-engine/internal/stats"
)

// Router consumes closed executions for subscription fan-out. It is
// read-only over execution data and never affects evaluation or
// dispatch outcomes.
type Router interface {
	Route(exec *ledger.Execution, r *rule.Rule)
}

// Config holds engine pipeline configuration.
type Config struct {
	Workers   int
	QueueSize int
	Dispatch  DispatcherConfig
}

// Engine wires the evaluation pipeline: trigger index lookup, condition
// evaluation, cooldown gating, action dispatch, ledger writes and
// subscription routing.
type Engine struct {
	repo    rule.Repository
	index   *rule.TriggerIndex
	sched   *Scheduler
	disp    *Dispatcher
	ledger  ledger.Ledger
	router  Router
	logger  *logger.Logger
	metrics *metrics.Metrics
	stats   *stats.Collector

	jobs      chan *rule.Event
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    atomic.Bool
	submitMu  sync.RWMutex
	clock     func() time.Time

	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New creates and starts an engine. The router may be nil.
func New(cfg Config, repo rule.Repository, disp *Dispatcher, led ledger.Ledger, router Router, log *logger.Logger, m *metrics.Metrics, st *stats.Collector) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if st == nil {
		st = stats.NewCollector()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		repo:       repo,
		index:      rule.NewTriggerIndex(log, m),
		sched:      NewScheduler(),
		disp:       disp,
		ledger:     led,
		router:     router,
		logger:     log,
		metrics:    m,
		stats:      st,
		jobs:       make(chan *rule.Event, cfg.QueueSize),
		clock:      time.Now,
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}

	repo.OnChange(e.reindex)
	e.reindex()

	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	return e
}

func (e *Engine) reindex() {
	e.index.Rebuild(e.repo.List())
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for event := range e.jobs {
		e.Process(event)
	}
}

// Submit enqueues an event for evaluation against all active rules.
func (e *Engine) Submit(event *rule.Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.clock()
	}

	e.submitMu.RLock()
	defer e.submitMu.RUnlock()
	if e.closed.Load() {
		return fmt.Errorf("engine is shut down")
	}
	e.jobs <- event
	return nil
}

// Process evaluates an event synchronously. Submit feeds workers into
// this; tests and embedded callers may invoke it directly.
func (e *Engine) Process(event *rule.Event) {
	e.stats.IncEventsReceived()

	candidates := e.index.Find(event.Category)
	for _, indexed := range candidates {
		// Refetch so a deactivation or edit that landed after the last
		// reindex is honored immediately.
		r, err := e.repo.Get(indexed.ID)
		if err != nil {
			continue
		}
		if !r.IsActive {
			continue
		}
		e.processRule(r, event)
	}
}

func (e *Engine) processRule(r *rule.Rule, event *rule.Event) {
	e.stats.IncRulesEvaluated()
	e.metrics.IncEvaluations()

	matched, outcome := rule.Evaluate(r, event)
	if !matched {
		// No match, no execution row at all.
		return
	}

	e.stats.IncRulesMatched()
	e.metrics.IncRuleMatches()

	now := e.clock()
	switch e.sched.Gate(r, now) {
	case DecisionDisabled:
		return
	case DecisionSuppressed:
		e.recordSuppressed(r, event, outcome, now)
		return
	}

	e.fire(r, event, outcome, now)
}

func (e *Engine) recordSuppressed(r *rule.Rule, event *rule.Event, outcome rule.Outcome, now time.Time) {
	e.stats.IncSuppressed()
	e.metrics.IncSuppressed()

	exec := &ledger.Execution{
		RuleID:       r.ID,
		RuleName:     r.Name,
		Priority:     r.Priority,
		Timestamp:    now,
		Status:       ledger.StatusSuppressed,
		TriggerEvent: event.Facts,
		Notes:        append(outcome.Notes, "suppressed by cooldown"),
	}
	e.persist(func() error {
		_, err := e.ledger.Record(exec)
		return err
	})

	e.logger.Debug("rule match suppressed by cooldown",
		"ruleId", r.ID,
		"rule", r.Name)
}

func (e *Engine) fire(r *rule.Rule, event *rule.Event, outcome rule.Outcome, now time.Time) {
	// Two-phase ledger write: open pending before dispatch so an
	// in-flight firing is observable and a crash leaves a pending row.
	exec := &ledger.Execution{
		RuleID:       r.ID,
		RuleName:     r.Name,
		Priority:     r.Priority,
		Timestamp:    now,
		TriggerEvent: event.Facts,
		Notes:        outcome.Notes,
	}
	var execID string
	e.persist(func() error {
		id, err := e.ledger.Open(exec)
		if err == nil {
			execID = id
		}
		return err
	})

	outcomes := e.disp.Dispatch(e.baseCtx, r, event)
	e.sched.Complete(r.ID)

	status := ledger.StatusSuccess
	var failures []string
	for _, o := range outcomes {
		if o.Succeeded {
			e.stats.IncActionsSucceeded()
		} else {
			e.stats.IncActionsFailed()
			status = ledger.StatusFailed
			failures = append(failures, o.String())
		}
	}
	errorMessage := strings.Join(failures, "; ")

	rendered := ledger.RenderOutcomes(outcomes)
	if execID != "" {
		e.persist(func() error {
			return e.ledger.Close(execID, status, rendered, errorMessage)
		})
	}

	e.stats.IncFirings()
	e.metrics.IncFirings(string(status))
	e.refreshRuleStats(r.ID)

	e.logger.Info("rule fired",
		"ruleId", r.ID,
		"rule", r.Name,
		"status", status,
		"actions", len(outcomes))

	if e.router != nil {
		exec.ID = execID
		exec.Status = status
		exec.ActionsExecuted = rendered
		exec.ErrorMessage = errorMessage
		closedAt := e.clock()
		exec.ClosedAt = &closedAt
		e.router.Route(exec, r)
	}
}

// refreshRuleStats re-derives the rule's cached statistics from the
// ledger so counters never drift from the audit trail.
func (e *Engine) refreshRuleStats(ruleID string) {
	st, err := e.ledger.Stats(ruleID)
	if err != nil {
		e.logger.Error("failed to derive rule stats", "ruleId", ruleID, "error", err)
		return
	}
	if err := e.repo.RefreshStats(ruleID, st.ExecutionCount, st.LastExecutedAt); err != nil && err != rule.ErrNotFound {
		e.logger.Error("failed to cache rule stats", "ruleId", ruleID, "error", err)
	}
}

// persist runs a ledger write with bounded retries. Losing audit data
// is tolerable-but-undesirable, so failures are logged and counted but
// never block dispatch.
func (e *Engine) persist(write func() error) {
	backoff := 100 * time.Millisecond
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = write(); err == nil {
			return
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	e.stats.IncLedgerErrors()
	e.metrics.IncLedgerErrors()
	e.logger.Error("ledger write failed after retries", "error", err)
}

// Close drains queued events and stops the workers. In-flight
// dispatches complete; no mid-dispatch abort.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.submitMu.Lock()
		e.closed.Store(true)
		close(e.jobs)
		e.submitMu.Unlock()
	})
	e.wg.Wait()
	e.cancelBase()
}

// GetStats returns the engine's counter snapshot.
func (e *Engine) GetStats() stats.Snapshot {
	return e.stats.GetSnapshot()
}

// IndexStats returns trigger index statistics.
func (e *Engine) IndexStats() rule.IndexStats {
	return e.index.GetStats()
}
