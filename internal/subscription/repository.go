package subscription

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a subscription id does not resolve.
var ErrNotFound = errors.New("subscription not found")

// Repository is the CRUD store for alert subscriptions.
type Repository struct {
	mu    sync.RWMutex
	subs  map[string]*AlertSubscription
	clock func() time.Time
}

// NewRepository creates an empty subscription repository.
func NewRepository() *Repository {
	return &Repository{
		subs:  make(map[string]*AlertSubscription),
		clock: time.Now,
	}
}

// Create validates and stores a new subscription.
func (r *Repository) Create(s *AlertSubscription) (*AlertSubscription, error) {
	if err := validate(s); err != nil {
		return nil, err
	}

	stored := s.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := r.clock()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.subs[stored.ID]; exists {
		return nil, errors.New("subscription id already exists")
	}
	r.subs[stored.ID] = stored
	return stored.Clone(), nil
}

// Get returns a subscription by id.
func (r *Repository) Get(id string) (*AlertSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// Update replaces a subscription.
func (r *Repository) Update(s *AlertSubscription) (*AlertSubscription, error) {
	if err := validate(s); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.subs[s.ID]
	if !ok {
		return nil, ErrNotFound
	}

	stored := s.Clone()
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = r.clock()
	r.subs[s.ID] = stored
	return stored.Clone(), nil
}

// Delete removes a subscription.
func (r *Repository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[id]; !ok {
		return ErrNotFound
	}
	delete(r.subs, id)
	return nil
}

// List returns all subscriptions ordered by creation time.
func (r *Repository) List() []*AlertSubscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]*AlertSubscription, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s.Clone())
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].ID < subs[j].ID
		}
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs
}
