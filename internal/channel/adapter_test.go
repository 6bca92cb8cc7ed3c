package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careops-alert-engine/internal/rule"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.Get(rule.ActionSlackNotification)
	assert.False(t, ok)

	reg.Register(NewSlackAdapter(nil))
	reg.Register(NewWebhookAdapter(nil))

	a, ok := reg.Get(rule.ActionSlackNotification)
	require.True(t, ok)
	assert.Equal(t, rule.ActionSlackNotification, a.Type())

	assert.Len(t, reg.Types(), 2)

	// Registering again replaces the previous adapter.
	replacement := NewSlackAdapter(&http.Client{})
	reg.Register(replacement)
	a, ok = reg.Get(rule.ActionSlackNotification)
	require.True(t, ok)
	assert.Same(t, replacement, a)
}

func TestTransientClassification(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("permanent")))
	assert.True(t, IsTransient(Transient(errors.New("connection refused"))))
	assert.True(t, IsTransient(fmt.Errorf("send: %w", Transient(errors.New("503")))))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.Nil(t, Transient(nil))
}

func TestPostJSONStatusClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantErr       bool
		wantTransient bool
	}{
		{"200 ok", http.StatusOK, false, false},
		{"204 no content", http.StatusNoContent, false, false},
		{"400 permanent", http.StatusBadRequest, true, false},
		{"404 permanent", http.StatusNotFound, true, false},
		{"429 transient", http.StatusTooManyRequests, true, true},
		{"500 transient", http.StatusInternalServerError, true, true},
		{"503 transient", http.StatusServiceUnavailable, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := postJSON(context.Background(), srv.Client(), http.MethodPost, srv.URL, nil, []byte(`{}`))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, IsTransient(err))
		})
	}
}

func TestPostJSONNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	err := postJSON(context.Background(), http.DefaultClient, http.MethodPost, srv.URL, nil, nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestSlackAdapterSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	}))
	defer srv.Close()

	adapter := NewSlackAdapter(srv.Client())
	action := &rule.Action{
		Type:  rule.ActionSlackNotification,
		Slack: &rule.SlackConfig{WebhookURL: srv.URL, Channel: "#ops"},
	}

	err := adapter.Send(context.Background(), action, "ER wait at 45 minutes")
	require.NoError(t, err)
	assert.Equal(t, "ER wait at 45 minutes", got["text"])
	assert.Equal(t, "#ops", got["channel"])
}

func TestSlackAdapterMissingConfig(t *testing.T) {
	adapter := NewSlackAdapter(nil)
	err := adapter.Send(context.Background(), &rule.Action{Type: rule.ActionSlackNotification}, "msg")
	assert.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestWebhookAdapterSend(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
	}))
	defer srv.Close()

	adapter := NewWebhookAdapter(srv.Client())
	action := &rule.Action{
		Type: rule.ActionWebhook,
		Webhook: &rule.WebhookConfig{
			URL:     srv.URL,
			Headers: map[string]string{"X-Token": "secret"},
		},
	}

	err := adapter.Send(context.Background(), action, "surge expected")
	require.NoError(t, err)
	assert.Equal(t, "surge expected", got["message"])
	assert.NotEmpty(t, got["timestamp"])
}

func TestAPICallAdapterSend(t *testing.T) {
	var gotMethod, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		var buf [256]byte
		n, _ := r.Body.Read(buf[:])
		gotBody = string(buf[:n])
	}))
	defer srv.Close()

	adapter := NewAPICallAdapter(srv.Client())
	action := &rule.Action{
		Type: rule.ActionAPICall,
		APICall: &rule.APICallConfig{
			URL:    srv.URL,
			Method: "PUT",
		},
	}

	err := adapter.Send(context.Background(), action, `{"shift":"night"}`)
	require.NoError(t, err)
	assert.Equal(t, "PUT", gotMethod)
	assert.Contains(t, gotBody, "night")
}

func TestSMSAdapterSend(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	adapter := NewSMSAdapter(srv.URL, "key-123", srv.Client())
	action := &rule.Action{
		Type: rule.ActionSMSAlert,
		SMS:  &rule.SMSConfig{Recipients: []string{"+15550100", "+15550101"}},
	}

	err := adapter.Send(context.Background(), action, "staffing gap on night shift")
	require.NoError(t, err)
	assert.Equal(t, "staffing gap on night shift", got["body"])
	assert.Len(t, got["to"], 2)
}
