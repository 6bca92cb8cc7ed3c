package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"careops-alert-engine/internal/rule"
)

// WebhookAdapter delivers webhook actions as a JSON envelope POSTed to
// the configured URL.
type WebhookAdapter struct {
	client *http.Client
}

// NewWebhookAdapter creates a webhook adapter.
func NewWebhookAdapter(client *http.Client) *WebhookAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookAdapter{client: client}
}

func (a *WebhookAdapter) Type() rule.ActionType {
	return rule.ActionWebhook
}

func (a *WebhookAdapter) Send(ctx context.Context, action *rule.Action, message string) error {
	cfg := action.Webhook
	if cfg == nil {
		return fmt.Errorf("webhook action has no config")
	}

	body, err := json.Marshal(map[string]string{
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	return postJSON(ctx, a.client, http.MethodPost, cfg.URL, cfg.Headers, body)
}
