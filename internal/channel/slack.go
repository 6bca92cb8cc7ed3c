package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"careops-alert-engine/internal/rule"
)

// SlackAdapter posts slack_notification actions to an incoming webhook.
type SlackAdapter struct {
	client *http.Client
}

// NewSlackAdapter creates a Slack webhook adapter.
func NewSlackAdapter(client *http.Client) *SlackAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &SlackAdapter{client: client}
}

func (a *SlackAdapter) Type() rule.ActionType {
	return rule.ActionSlackNotification
}

func (a *SlackAdapter) Send(ctx context.Context, action *rule.Action, message string) error {
	cfg := action.Slack
	if cfg == nil {
		return fmt.Errorf("slack action has no config")
	}

	payload := map[string]string{"text": message}
	if cfg.Channel != "" {
		payload["channel"] = cfg.Channel
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	return postJSON(ctx, a.client, http.MethodPost, cfg.WebhookURL, nil, body)
}
