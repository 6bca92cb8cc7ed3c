package channel

import (
	"context"
	"fmt"
	"net/http"

	"careops-alert-engine/internal/rule"
)

// APICallAdapter performs api_call actions: the rendered message is the
// request body and method, URL and headers come from the action config.
type APICallAdapter struct {
	client *http.Client
}

// NewAPICallAdapter creates a generic API call adapter.
func NewAPICallAdapter(client *http.Client) *APICallAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &APICallAdapter{client: client}
}

func (a *APICallAdapter) Type() rule.ActionType {
	return rule.ActionAPICall
}

func (a *APICallAdapter) Send(ctx context.Context, action *rule.Action, message string) error {
	cfg := action.APICall
	if cfg == nil {
		return fmt.Errorf("api call action has no config")
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	var body []byte
	if method != http.MethodGet {
		body = []byte(message)
	}

	return postJSON(ctx, a.client, method, cfg.URL, cfg.Headers, body)
}
