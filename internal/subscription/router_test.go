package subscription

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careops-alert-engine/internal/ledger"
	"careops-alert-engine/internal/logger"
	"careops-alert-engine/internal/rule"
)

// captureDeliverer records deliveries for assertions.
type captureDeliverer struct {
	mu        sync.Mutex
	immediate []Notification
	digests   map[string][][]Notification
	fail      error
}

func newCaptureDeliverer() *captureDeliverer {
	return &captureDeliverer{digests: make(map[string][][]Notification)}
}

func (d *captureDeliverer) DeliverImmediate(n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.immediate = append(d.immediate, n)
	return nil
}

func (d *captureDeliverer) DeliverDigest(userID string, bucketStart time.Time, notifications []Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.digests[userID] = append(d.digests[userID], notifications)
	return nil
}

func (d *captureDeliverer) immediateCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.immediate)
}

func (d *captureDeliverer) digestBatches(userID string) [][]Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.digests[userID]
}

func subscribedRule() *rule.Rule {
	return &rule.Rule{
		ID:       "rule-1",
		Name:     "er wait breach",
		IsActive: true,
		Actions: []rule.Action{
			{Type: rule.ActionSlackNotification, Slack: &rule.SlackConfig{WebhookURL: "https://hooks.example.com/T000"}},
		},
	}
}

func closedExecution(status ledger.Status) *ledger.Execution {
	now := time.Now()
	return &ledger.Execution{
		ID:        "exec-1",
		RuleID:    "rule-1",
		RuleName:  "er wait breach",
		Priority:  rule.PriorityHigh,
		Timestamp: now,
		Status:    status,
		ClosedAt:  &now,
	}
}

func routerFixture(t *testing.T, freq Frequency) (*Router, *captureDeliverer) {
	t.Helper()

	repo := NewRepository()
	_, err := repo.Create(&AlertSubscription{
		UserID:    "user-1",
		RuleIDs:   []string{"rule-1"},
		Channels:  []rule.ActionType{rule.ActionSlackNotification},
		Frequency: freq,
		IsActive:  true,
	})
	require.NoError(t, err)

	deliverer := newCaptureDeliverer()
	return NewRouter(repo, deliverer, logger.NewNop(), nil, nil), deliverer
}

func TestRouterImmediateDelivery(t *testing.T) {
	rt, deliverer := routerFixture(t, FrequencyImmediate)

	rt.Route(closedExecution(ledger.StatusSuccess), subscribedRule())

	require.Equal(t, 1, deliverer.immediateCount())
	n := deliverer.immediate[0]
	assert.Equal(t, "user-1", n.UserID)
	assert.Equal(t, "rule-1", n.RuleID)
	assert.Equal(t, "exec-1", n.ExecutionID)
	assert.Equal(t, ledger.StatusSuccess, n.Status)
}

func TestRouterRoutesFailedExecutions(t *testing.T) {
	rt, deliverer := routerFixture(t, FrequencyImmediate)
	rt.Route(closedExecution(ledger.StatusFailed), subscribedRule())
	assert.Equal(t, 1, deliverer.immediateCount())
}

func TestRouterSkipsNonTerminalAndSuppressed(t *testing.T) {
	rt, deliverer := routerFixture(t, FrequencyImmediate)

	rt.Route(closedExecution(ledger.StatusPending), subscribedRule())
	rt.Route(closedExecution(ledger.StatusSuppressed), subscribedRule())

	assert.Zero(t, deliverer.immediateCount())
}

func TestRouterSkipsNonMatchingSubscriptions(t *testing.T) {
	rt, deliverer := routerFixture(t, FrequencyImmediate)

	other := subscribedRule()
	other.ID = "rule-9"
	rt.Route(closedExecution(ledger.StatusSuccess), other)

	noChannels := subscribedRule()
	noChannels.Actions = nil
	rt.Route(closedExecution(ledger.StatusSuccess), noChannels)

	assert.Zero(t, deliverer.immediateCount())
}

func TestRouterDigestBuffering(t *testing.T) {
	rt, deliverer := routerFixture(t, FrequencyHourly)
	base := time.Date(2026, 3, 10, 9, 20, 0, 0, time.UTC)
	rt.clock = func() time.Time { return base }

	rt.Route(closedExecution(ledger.StatusSuccess), subscribedRule())
	rt.Route(closedExecution(ledger.StatusFailed), subscribedRule())

	// Nothing flushes before the bucket boundary passes.
	rt.Flush(base.Add(10 * time.Minute))
	assert.Empty(t, deliverer.digestBatches("user-1"))

	// Past the boundary the whole bucket goes out at once.
	rt.Flush(base.Add(time.Hour))
	batches := deliverer.digestBatches("user-1")
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
}

func TestRouterDigestFlushIsIdempotent(t *testing.T) {
	rt, deliverer := routerFixture(t, FrequencyHourly)
	base := time.Date(2026, 3, 10, 9, 20, 0, 0, time.UTC)
	rt.clock = func() time.Time { return base }

	rt.Route(closedExecution(ledger.StatusSuccess), subscribedRule())

	rt.Flush(base.Add(time.Hour))
	rt.Flush(base.Add(time.Hour))
	rt.Flush(base.Add(2 * time.Hour))

	require.Len(t, deliverer.digestBatches("user-1"), 1)
}

func TestRouterLateArrivalRollsToNextBucket(t *testing.T) {
	rt, deliverer := routerFixture(t, FrequencyHourly)
	base := time.Date(2026, 3, 10, 9, 20, 0, 0, time.UTC)
	now := base
	rt.clock = func() time.Time { return now }

	rt.Route(closedExecution(ledger.StatusSuccess), subscribedRule())
	rt.Flush(base.Add(time.Hour))
	require.Len(t, deliverer.digestBatches("user-1"), 1)

	// A notification arriving for an already-delivered bucket lands in
	// the next one instead of reopening it.
	rt.Route(closedExecution(ledger.StatusSuccess), subscribedRule())
	rt.Flush(base.Add(time.Hour))
	require.Len(t, deliverer.digestBatches("user-1"), 1)

	rt.Flush(base.Add(2 * time.Hour))
	batches := deliverer.digestBatches("user-1")
	require.Len(t, batches, 2)
	assert.Len(t, batches[1], 1)
}

func TestRouterEmptyBucketsNotDelivered(t *testing.T) {
	rt, deliverer := routerFixture(t, FrequencyHourly)
	rt.Flush(time.Now().Add(48 * time.Hour))
	assert.Empty(t, deliverer.digestBatches("user-1"))
}

func TestRouterFailedDigestDeliveryDoesNotPanic(t *testing.T) {
	rt, deliverer := routerFixture(t, FrequencyHourly)
	base := time.Date(2026, 3, 10, 9, 20, 0, 0, time.UTC)
	rt.clock = func() time.Time { return base }
	deliverer.fail = assert.AnError

	rt.Route(closedExecution(ledger.StatusSuccess), subscribedRule())
	rt.Flush(base.Add(time.Hour))

	assert.Empty(t, deliverer.digestBatches("user-1"))
}

func TestRouterStartStop(t *testing.T) {
	rt, _ := routerFixture(t, FrequencyHourly)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	rt.Stop()
}

func TestRouterStopWithoutStart(t *testing.T) {
	rt, _ := routerFixture(t, FrequencyHourly)
	rt.Stop()
}
