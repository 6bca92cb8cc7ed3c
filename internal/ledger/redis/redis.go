// Package redis provides a Redis-backed execution ledger for
// deployments where the audit trail must survive an engine restart.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"careops-alert-engine/internal/ledger"
)

// Options contains Redis connection and keyspace configuration.
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Timeout   time.Duration
}

// DefaultOptions returns default Redis ledger options.
func DefaultOptions() *Options {
	return &Options{
		Addr:      "localhost:6379",
		KeyPrefix: "careops",
		Timeout:   5 * time.Second,
	}
}

// Ledger implements ledger.Ledger on Redis. Each execution is a JSON
// blob under its own key; two sorted sets (global and per-rule) index
// rows by timestamp for range queries.
type Ledger struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// New connects to Redis and verifies the connection.
func New(opts *Options) (*Ledger, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Ledger{
		client:  client,
		prefix:  opts.KeyPrefix,
		timeout: opts.Timeout,
	}, nil
}

// Disconnect releases the underlying connection pool.
func (l *Ledger) Disconnect() error {
	return l.client.Close()
}

func (l *Ledger) execKey(id string) string {
	return fmt.Sprintf("%s:execution:%s", l.prefix, id)
}

func (l *Ledger) indexKey() string {
	return fmt.Sprintf("%s:executions", l.prefix)
}

func (l *Ledger) ruleKey(ruleID string) string {
	return fmt.Sprintf("%s:rule:%s:executions", l.prefix, ruleID)
}

func (l *Ledger) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), l.timeout)
}

func (l *Ledger) write(row *ledger.Execution) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}

	ctx, cancel := l.ctx()
	defer cancel()

	score := float64(row.Timestamp.UnixNano())
	pipe := l.client.TxPipeline()
	pipe.Set(ctx, l.execKey(row.ID), data, 0)
	pipe.ZAdd(ctx, l.indexKey(), redis.Z{Score: score, Member: row.ID})
	pipe.ZAdd(ctx, l.ruleKey(row.RuleID), redis.Z{Score: score, Member: row.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write execution: %w", err)
	}
	return nil
}

func (l *Ledger) fetch(ctx context.Context, id string) (*ledger.Execution, error) {
	data, err := l.client.Get(ctx, l.execKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch execution: %w", err)
	}
	var row ledger.Execution
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("unmarshal execution: %w", err)
	}
	return &row, nil
}

// Open appends a pending row and returns its id.
func (l *Ledger) Open(exec *ledger.Execution) (string, error) {
	row := *exec
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now()
	}
	row.Status = ledger.StatusPending
	if err := l.write(&row); err != nil {
		return "", err
	}
	return row.ID, nil
}

// Close writes the terminal status of a pending row.
func (l *Ledger) Close(id string, status ledger.Status, actionsExecuted []string, errorMessage string) error {
	ctx, cancel := l.ctx()
	defer cancel()

	row, err := l.fetch(ctx, id)
	if err != nil {
		return err
	}
	if row.Status != ledger.StatusPending {
		return &ledger.ClosedRowError{ID: id, Status: row.Status}
	}

	row.Status = status
	row.ActionsExecuted = actionsExecuted
	row.ErrorMessage = errorMessage
	now := time.Now()
	row.ClosedAt = &now

	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}
	if err := l.client.Set(ctx, l.execKey(id), data, 0).Err(); err != nil {
		return fmt.Errorf("close execution: %w", err)
	}
	return nil
}

// Record appends a row that is terminal at creation.
func (l *Ledger) Record(exec *ledger.Execution) (string, error) {
	row := *exec
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now()
	}
	now := time.Now()
	row.ClosedAt = &now
	if err := l.write(&row); err != nil {
		return "", err
	}
	return row.ID, nil
}

// Query returns matching executions newest first.
func (l *Ledger) Query(f ledger.Filter, p ledger.Page) ([]*ledger.Execution, error) {
	ctx, cancel := l.ctx()
	defer cancel()

	key := l.indexKey()
	if f.RuleID != "" {
		key = l.ruleKey(f.RuleID)
	}

	min, max := "-inf", "+inf"
	if !f.From.IsZero() {
		min = fmt.Sprintf("%d", f.From.UnixNano())
	}
	if !f.To.IsZero() {
		max = fmt.Sprintf("%d", f.To.UnixNano())
	}

	ids, err := l.client.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{Min: min, Max: max}).Result()
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}

	matched := make([]*ledger.Execution, 0, len(ids))
	for _, id := range ids {
		row, err := l.fetch(ctx, id)
		if err == ledger.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if f.Status != "" && row.Status != f.Status {
			continue
		}
		matched = append(matched, row)
	}

	if p.Offset >= len(matched) {
		return []*ledger.Execution{}, nil
	}
	matched = matched[p.Offset:]
	if p.Limit > 0 && p.Limit < len(matched) {
		matched = matched[:p.Limit]
	}
	return matched, nil
}

// Stats derives a rule's execution statistics from the ledger.
func (l *Ledger) Stats(ruleID string) (ledger.RuleStats, error) {
	rows, err := l.Query(ledger.Filter{RuleID: ruleID}, ledger.Page{})
	if err != nil {
		return ledger.RuleStats{}, err
	}

	var st ledger.RuleStats
	for _, row := range rows {
		if row.Status == ledger.StatusSuppressed {
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

// FailureStreak counts consecutive trailing failed executions.
func (l *Ledger) FailureStreak(ruleID string) (int, error) {
	rows, err := l.Query(ledger.Filter{RuleID: ruleID}, ledger.Page{})
	if err != nil {
		return 0, err
	}

	streak := 0
	for _, row := range rows {
		switch row.Status {
		case ledger.StatusFailed:
			streak++
		case ledger.StatusSuccess:
			return streak, nil
		}
	}
	return streak, nil
}

var _ ledger.Ledger = (*Ledger)(nil)
