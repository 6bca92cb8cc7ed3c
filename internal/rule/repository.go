package rule

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a rule id does not resolve.
var ErrNotFound = errors.New("rule not found")

// Repository owns the authoritative rule set. The editing surface
// operates on copies and submits whole-rule updates; clones cross the
// boundary in both directions.
type Repository interface {
	Create(r *Rule) (*Rule, error)
	Get(id string) (*Rule, error)
	Update(r *Rule) (*Rule, error)
	Delete(id string) error
	ToggleActive(id string, active bool) (*Rule, error)
	List() []*Rule

	// RefreshStats caches ledger-derived statistics onto the rule.
	// Statistics are never mutated independently of the ledger.
	RefreshStats(id string, executionCount uint64, lastExecutedAt *time.Time) error

	// OnChange registers a callback invoked after every mutation.
	OnChange(fn func())
}

// InMemoryRepository is the default Repository backed by a map.
type InMemoryRepository struct {
	mu        sync.RWMutex
	rules     map[string]*Rule
	listeners []func()
	clock     func() time.Time
}

// NewInMemoryRepository creates an empty rule repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		rules: make(map[string]*Rule),
		clock: time.Now,
	}
}

// Create validates and stores a new rule. Rules start as drafts:
// inactive until explicitly toggled, regardless of the submitted flag.
func (repo *InMemoryRepository) Create(r *Rule) (*Rule, error) {
	if err := Validate(r); err != nil {
		return nil, err
	}

	stored := r.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.Priority == "" {
		stored.Priority = PriorityMedium
	}
	if stored.ConditionLogic == "" {
		stored.ConditionLogic = LogicAnd
	}
	stored.IsActive = false
	stored.ExecutionCount = 0
	stored.LastExecutedAt = nil
	now := repo.clock()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	repo.mu.Lock()
	if _, exists := repo.rules[stored.ID]; exists {
		repo.mu.Unlock()
		return nil, &ValidationError{Field: "id", Message: "rule id already exists"}
	}
	repo.rules[stored.ID] = stored
	repo.mu.Unlock()

	repo.notify()
	return stored.Clone(), nil
}

func (repo *InMemoryRepository) Get(id string) (*Rule, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	r, ok := repo.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

// Update replaces a rule's definition. Execution statistics, creation
// time and active state are preserved from the stored rule; activation
// goes through ToggleActive.
func (repo *InMemoryRepository) Update(r *Rule) (*Rule, error) {
	if err := Validate(r); err != nil {
		return nil, err
	}

	repo.mu.Lock()
	current, ok := repo.rules[r.ID]
	if !ok {
		repo.mu.Unlock()
		return nil, ErrNotFound
	}

	stored := r.Clone()
	stored.IsActive = current.IsActive
	stored.ExecutionCount = current.ExecutionCount
	stored.LastExecutedAt = current.LastExecutedAt
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = repo.clock()
	repo.rules[r.ID] = stored
	repo.mu.Unlock()

	repo.notify()
	return stored.Clone(), nil
}

func (repo *InMemoryRepository) Delete(id string) error {
	repo.mu.Lock()
	if _, ok := repo.rules[id]; !ok {
		repo.mu.Unlock()
		return ErrNotFound
	}
	delete(repo.rules, id)
	repo.mu.Unlock()

	repo.notify()
	return nil
}

// ToggleActive flips a rule's active state. Activation requires at
// least one condition so an empty rule can never fire.
func (repo *InMemoryRepository) ToggleActive(id string, active bool) (*Rule, error) {
	repo.mu.Lock()
	r, ok := repo.rules[id]
	if !ok {
		repo.mu.Unlock()
		return nil, ErrNotFound
	}

	if active {
		if err := ValidateForActivation(r); err != nil {
			repo.mu.Unlock()
			return nil, err
		}
	}

	r.IsActive = active
	r.UpdatedAt = repo.clock()
	result := r.Clone()
	repo.mu.Unlock()

	repo.notify()
	return result, nil
}

// List returns all rules ordered by creation time.
func (repo *InMemoryRepository) List() []*Rule {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	rules := make([]*Rule, 0, len(repo.rules))
	for _, r := range repo.rules {
		rules = append(rules, r.Clone())
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return rules
}

func (repo *InMemoryRepository) RefreshStats(id string, executionCount uint64, lastExecutedAt *time.Time) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	r, ok := repo.rules[id]
	if !ok {
		return ErrNotFound
	}
	r.ExecutionCount = executionCount
	if lastExecutedAt != nil {
		t := *lastExecutedAt
		r.LastExecutedAt = &t
	}
	return nil
}

func (repo *InMemoryRepository) OnChange(fn func()) {
	repo.mu.Lock()
	repo.listeners = append(repo.listeners, fn)
	repo.mu.Unlock()
}

func (repo *InMemoryRepository) notify() {
	repo.mu.RLock()
	listeners := append([]func(){}, repo.listeners...)
	repo.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}
