package subscription

import (
	"context"
	"sync"
	"time"

	"careops-alert-engine/internal/ledger"
	"careops-alert-engine/internal/logger"
	"careops-alert-engine/internal/metrics"
	"careops-alert-engine/internal/rule"
	"careops-alert-engine/internal/stats"
)

// Notification is one routed alert bound for a subscriber.
type Notification struct {
	UserID      string
	RuleID      string
	RuleName    string
	ExecutionID string
	Status      ledger.Status
	Timestamp   time.Time
}

// Deliverer receives routed notifications. Implementations push to a
// user-facing transport (in-app inbox, email digest, push service).
type Deliverer interface {
	DeliverImmediate(n Notification) error
	DeliverDigest(userID string, bucketStart time.Time, notifications []Notification) error
}

// LogDeliverer writes routed notifications to the log. It is the
// default deliverer when no user-facing transport is wired.
type LogDeliverer struct {
	Logger *logger.Logger
}

func (d *LogDeliverer) DeliverImmediate(n Notification) error {
	d.Logger.Info("alert notification",
		"userId", n.UserID,
		"rule", n.RuleName,
		"status", n.Status)
	return nil
}

func (d *LogDeliverer) DeliverDigest(userID string, bucketStart time.Time, notifications []Notification) error {
	d.Logger.Info("alert digest",
		"userId", userID,
		"bucketStart", bucketStart,
		"count", len(notifications))
	return nil
}

type bucketKey struct {
	userID string
	start  int64 // unix seconds of bucket start
}

type bucket struct {
	start         time.Time
	interval      time.Duration
	notifications []Notification
	delivered     bool
}

// Router fans closed executions out to matching subscriptions:
// immediate subscriptions are delivered as soon as the execution
// closes, digest subscriptions accumulate into per-user buckets that a
// timer flushes once per boundary. A delivered bucket is never
// delivered twice.
type Router struct {
	repo      *Repository
	deliverer Deliverer
	logger    *logger.Logger
	metrics   *metrics.Metrics
	stats     *stats.Collector

	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	clock   func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	started  bool
}

// NewRouter creates a subscription router.
func NewRouter(repo *Repository, deliverer Deliverer, log *logger.Logger, m *metrics.Metrics, st *stats.Collector) *Router {
	return &Router{
		repo:      repo,
		deliverer: deliverer,
		logger:    log,
		metrics:   m,
		stats:     st,
		buckets:   make(map[bucketKey]*bucket),
		clock:     time.Now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Route consumes one closed execution. Suppressed and pending rows are
// not routed.
func (rt *Router) Route(exec *ledger.Execution, r *rule.Rule) {
	if exec.Status != ledger.StatusSuccess && exec.Status != ledger.StatusFailed {
		return
	}

	actionTypes := r.ActionTypes()
	for _, sub := range rt.repo.List() {
		if !sub.Matches(r.ID, actionTypes) {
			continue
		}

		n := Notification{
			UserID:      sub.UserID,
			RuleID:      r.ID,
			RuleName:    r.Name,
			ExecutionID: exec.ID,
			Status:      exec.Status,
			Timestamp:   exec.Timestamp,
		}

		if sub.Frequency == FrequencyImmediate {
			if err := rt.deliverer.DeliverImmediate(n); err != nil {
				rt.logger.Error("immediate delivery failed",
					"userId", sub.UserID,
					"error", err)
			}
			continue
		}

		rt.buffer(sub.UserID, sub.Frequency, n)
	}
}

// buffer appends a notification to the user's current digest bucket. A
// notification arriving after its bucket was delivered rolls forward
// into the next bucket rather than reopening a delivered one.
func (rt *Router) buffer(userID string, freq Frequency, n Notification) {
	interval := freq.Interval()
	start := rt.clock().Truncate(interval)

	rt.mu.Lock()
	defer rt.mu.Unlock()

	for {
		key := bucketKey{userID: userID, start: start.Unix()}
		b, ok := rt.buckets[key]
		if !ok {
			b = &bucket{start: start, interval: interval}
			rt.buckets[key] = b
		}
		if b.delivered {
			start = start.Add(interval)
			continue
		}
		b.notifications = append(b.notifications, n)
		return
	}
}

// Flush delivers every digest bucket whose boundary has passed. The
// delivered flag is flipped under the lock before delivery, so a flush
// racing a late-arriving execution delivers each bucket exactly once.
func (rt *Router) Flush(now time.Time) {
	type delivery struct {
		userID        string
		start         time.Time
		notifications []Notification
	}

	var due []delivery
	rt.mu.Lock()
	for key, b := range rt.buckets {
		if b.delivered {
			// Retain delivered markers for two intervals so stragglers
			// roll forward instead of reopening the bucket.
			if now.Sub(b.start) > 2*b.interval {
				delete(rt.buckets, key)
			}
			continue
		}
		if now.Before(b.start.Add(b.interval)) {
			continue
		}
		b.delivered = true
		due = append(due, delivery{
			userID:        key.userID,
			start:         b.start,
			notifications: append([]Notification(nil), b.notifications...),
		})
		b.notifications = nil
	}
	rt.mu.Unlock()

	for _, d := range due {
		if len(d.notifications) == 0 {
			continue
		}
		if err := rt.deliverer.DeliverDigest(d.userID, d.start, d.notifications); err != nil {
			rt.logger.Error("digest delivery failed",
				"userId", d.userID,
				"error", err)
			continue
		}
		rt.metrics.IncDigestFlushes()
		if rt.stats != nil {
			rt.stats.IncDigestsFlushed()
		}
		rt.logger.Debug("digest delivered",
			"userId", d.userID,
			"count", len(d.notifications))
	}
}

// Start launches the periodic digest flush loop.
func (rt *Router) Start(ctx context.Context, interval time.Duration) {
	rt.started = true
	go func() {
		defer close(rt.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rt.Flush(rt.clock())
			case <-ctx.Done():
				return
			case <-rt.stop:
				return
			}
		}
	}()
}

// Stop terminates the flush loop.
func (rt *Router) Stop() {
	rt.stopOnce.Do(func() {
		close(rt.stop)
	})
	if rt.started {
		<-rt.done
	}
}
