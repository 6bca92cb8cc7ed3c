package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"careops-alert-engine/internal/rule"
)

// Adapter is the capability every notification channel implements. New
// channel types plug in through the registry without touching the
// dispatcher's control flow.
type Adapter interface {
	Type() rule.ActionType
	Send(ctx context.Context, action *rule.Action, message string) error
}

// Registry maps action types to their channel adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[rule.ActionType]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[rule.ActionType]Adapter),
	}
}

// Register installs an adapter, replacing any previous adapter for the
// same action type.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	r.adapters[a.Type()] = a
	r.mu.Unlock()
}

// Get returns the adapter for an action type.
func (r *Registry) Get(t rule.ActionType) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[t]
	return a, ok
}

// Types returns the registered action types.
func (r *Registry) Types() []rule.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]rule.ActionType, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	return types
}

// transientError marks a failure that is worth retrying: the channel
// was unavailable rather than the request being malformed.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps an error as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether a send failure should be retried.
// Timeouts count as transient per the dispatch retry policy.
func IsTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// postJSON issues an HTTP request and classifies the response: network
// errors, 429 and 5xx are transient, other non-2xx are permanent.
func postJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Transient(err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Transient(fmt.Errorf("%s returned status %d", url, resp.StatusCode))
	default:
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
}
