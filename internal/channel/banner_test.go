package channel

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careops-alert-engine/internal/rule"
)

func bannerAction(message string, ttlMinutes int) *rule.Action {
	return &rule.Action{
		Type: rule.ActionDashboardBanner,
		Banner: &rule.BannerConfig{
			Message:    message,
			Severity:   "warning",
			TTLMinutes: ttlMinutes,
		},
	}
}

func TestBannerAdapterSend(t *testing.T) {
	adapter := NewBannerAdapter(10)

	err := adapter.Send(context.Background(), bannerAction("surge expected", 0), "surge expected in ER")
	require.NoError(t, err)

	active := adapter.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "surge expected in ER", active[0].Message)
	assert.Equal(t, "warning", active[0].Severity)
	assert.Equal(t, defaultBannerTTL, active[0].ExpiresAt.Sub(active[0].PostedAt))
}

func TestBannerAdapterExpiry(t *testing.T) {
	adapter := NewBannerAdapter(10)
	now := time.Now()
	adapter.clock = func() time.Time { return now }

	require.NoError(t, adapter.Send(context.Background(), bannerAction("short", 5), "short"))
	require.NoError(t, adapter.Send(context.Background(), bannerAction("long", 60), "long"))

	now = now.Add(10 * time.Minute)
	active := adapter.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "long", active[0].Message)
}

func TestBannerAdapterNewestFirst(t *testing.T) {
	adapter := NewBannerAdapter(10)
	now := time.Now()
	adapter.clock = func() time.Time { now = now.Add(time.Second); return now }

	require.NoError(t, adapter.Send(context.Background(), bannerAction("first", 30), "first"))
	require.NoError(t, adapter.Send(context.Background(), bannerAction("second", 30), "second"))

	active := adapter.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "second", active[0].Message)
	assert.Equal(t, "first", active[1].Message)
}

func TestBannerAdapterCapacity(t *testing.T) {
	adapter := NewBannerAdapter(3)

	for i := 0; i < 5; i++ {
		msg := fmt.Sprintf("banner %d", i)
		require.NoError(t, adapter.Send(context.Background(), bannerAction(msg, 30), msg))
	}

	active := adapter.Active()
	require.Len(t, active, 3)
	assert.Equal(t, "banner 4", active[0].Message)
	assert.Equal(t, "banner 2", active[2].Message)
}

func TestBannerAdapterMissingConfig(t *testing.T) {
	adapter := NewBannerAdapter(10)
	err := adapter.Send(context.Background(), &rule.Action{Type: rule.ActionDashboardBanner}, "msg")
	assert.Error(t, err)
}
