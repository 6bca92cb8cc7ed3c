package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"careops-alert-engine/internal/channel"
	"careops-alert-engine/internal/ledger"
	"careops-alert-engine/internal/logger"
	"careops-alert-engine/internal/metrics"
	"careops-alert-engine/internal/rule"
)

// DispatcherConfig holds dispatch fan-out and retry configuration.
type DispatcherConfig struct {
	MaxParallel    int
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	BackoffFactor  float64
}

// Dispatcher fans a firing rule's actions out to channel adapters.
// Actions run independently: one action failing never prevents the
// others from being attempted.
type Dispatcher struct {
	registry *channel.Registry
	logger   *logger.Logger
	metrics  *metrics.Metrics

	timeout        time.Duration
	maxRetries     int
	initialBackoff time.Duration
	backoffFactor  float64
	sem            chan struct{}

	sleep func(context.Context, time.Duration) error
}

// NewDispatcher creates a dispatcher with bounded parallelism across
// all in-flight firings.
func NewDispatcher(cfg DispatcherConfig, registry *channel.Registry, log *logger.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 3.0
	}

	return &Dispatcher{
		registry:       registry,
		logger:         log,
		metrics:        m,
		timeout:        cfg.Timeout,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		backoffFactor:  cfg.BackoffFactor,
		sem:            make(chan struct{}, cfg.MaxParallel),
		sleep:          sleepCtx,
	}
}

// Dispatch executes the rule's actions concurrently and returns one
// outcome per configured action, in configured order. It completes
// only when every action attempt, including retries, has resolved.
func (d *Dispatcher) Dispatch(ctx context.Context, r *rule.Rule, e *rule.Event) []ledger.ActionOutcome {
	outcomes := make([]ledger.ActionOutcome, len(r.Actions))

	start := time.Now()
	var wg sync.WaitGroup
	for i := range r.Actions {
		wg.Add(1)
		d.sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-d.sem }()
			outcomes[i] = d.attempt(ctx, &r.Actions[i], e)
		}(i)
	}
	wg.Wait()
	d.metrics.ObserveDispatchDuration(time.Since(start))

	return outcomes
}

// attempt runs one action with the retry policy: a single attempt plus
// up to maxRetries additional attempts on transient failure, with
// exponential backoff between them.
func (d *Dispatcher) attempt(ctx context.Context, action *rule.Action, e *rule.Event) ledger.ActionOutcome {
	outcome := ledger.ActionOutcome{ActionType: action.Type}

	adapter, ok := d.registry.Get(action.Type)
	if !ok {
		outcome.Detail = "no adapter registered"
		d.metrics.IncActions(string(action.Type), "failed")
		return outcome
	}

	message := rule.Render(action.MessageTemplate(), e)

	var lastErr error
	backoff := d.initialBackoff
	attempts := 0
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := adapter.Send(attemptCtx, action, message)
		cancel()

		if err == nil {
			outcome.Succeeded = true
			outcome.Detail = "success"
			d.metrics.IncActions(string(action.Type), "success")
			return outcome
		}
		lastErr = err

		if !channel.IsTransient(err) || ctx.Err() != nil {
			break
		}
		if attempt < d.maxRetries {
			d.logger.Debug("transient channel failure, retrying",
				"actionType", action.Type,
				"attempt", attempts,
				"backoff", backoff,
				"error", err)
			if sleepErr := d.sleep(ctx, backoff); sleepErr != nil {
				break
			}
			backoff = time.Duration(float64(backoff) * d.backoffFactor)
		}
	}

	outcome.Detail = fmt.Sprintf("failed after %d attempts: %v", attempts, lastErr)
	d.logger.Error("action dispatch failed",
		"actionType", action.Type,
		"attempts", attempts,
		"error", lastErr)
	d.metrics.IncActions(string(action.Type), "failed")
	return outcome
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
