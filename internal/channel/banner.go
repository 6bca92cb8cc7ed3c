package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"careops-alert-engine/internal/rule"
)

// Banner is one dashboard banner held on the board until it expires.
type Banner struct {
	Message   string
	Severity  string
	PostedAt  time.Time
	ExpiresAt time.Time
}

// BannerAdapter retains dashboard_banner actions on a bounded in-memory
// board the UI polls. Oldest banners are evicted when the board fills.
type BannerAdapter struct {
	mu       sync.Mutex
	banners  []Banner
	capacity int
	clock    func() time.Time
}

const defaultBannerTTL = 30 * time.Minute

// NewBannerAdapter creates a banner board with the given capacity.
func NewBannerAdapter(capacity int) *BannerAdapter {
	if capacity <= 0 {
		capacity = 100
	}
	return &BannerAdapter{
		capacity: capacity,
		clock:    time.Now,
	}
}

func (a *BannerAdapter) Type() rule.ActionType {
	return rule.ActionDashboardBanner
}

func (a *BannerAdapter) Send(ctx context.Context, action *rule.Action, message string) error {
	cfg := action.Banner
	if cfg == nil {
		return fmt.Errorf("banner action has no config")
	}

	ttl := defaultBannerTTL
	if cfg.TTLMinutes > 0 {
		ttl = time.Duration(cfg.TTLMinutes) * time.Minute
	}

	now := a.clock()
	a.mu.Lock()
	defer a.mu.Unlock()

	a.banners = append(a.banners, Banner{
		Message:   message,
		Severity:  cfg.Severity,
		PostedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if len(a.banners) > a.capacity {
		a.banners = a.banners[len(a.banners)-a.capacity:]
	}
	return nil
}

// Active returns the banners that have not yet expired, newest first.
func (a *BannerAdapter) Active() []Banner {
	now := a.clock()
	a.mu.Lock()
	defer a.mu.Unlock()

	active := make([]Banner, 0, len(a.banners))
	for i := len(a.banners) - 1; i >= 0; i-- {
		if a.banners[i].ExpiresAt.After(now) {
			active = append(active, a.banners[i])
		}
	}
	return active
}
