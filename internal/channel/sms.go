package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"careops-alert-engine/internal/rule"
)

// SMSAdapter delivers sms_alert actions through a generic HTTP SMS
// gateway.
type SMSAdapter struct {
	gatewayURL string
	apiKey     string
	client     *http.Client
}

// NewSMSAdapter creates an SMS gateway adapter.
func NewSMSAdapter(gatewayURL, apiKey string, client *http.Client) *SMSAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &SMSAdapter{
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		client:     client,
	}
}

func (a *SMSAdapter) Type() rule.ActionType {
	return rule.ActionSMSAlert
}

func (a *SMSAdapter) Send(ctx context.Context, action *rule.Action, message string) error {
	cfg := action.SMS
	if cfg == nil {
		return fmt.Errorf("sms action has no config")
	}

	body, err := json.Marshal(map[string]interface{}{
		"to":   cfg.Recipients,
		"body": message,
	})
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	var headers map[string]string
	if a.apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + a.apiKey}
	}

	return postJSON(ctx, a.client, http.MethodPost, a.gatewayURL, headers, body)
}
