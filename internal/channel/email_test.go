package channel

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careops-alert-engine/internal/rule"
)

func emailAction() *rule.Action {
	return &rule.Action{
		Type: rule.ActionEmailAlert,
		Email: &rule.EmailConfig{
			Recipients: []string{"oncall@example.com", "charge-nurse@example.com"},
			Subject:    "SLA breach",
			Severity:   "high",
		},
	}
}

func TestEmailAdapterSend(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	adapter := NewEmailAdapter("smtp.example.com", 587, "alerts@example.com", "user", "pass")
	adapter.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := adapter.Send(context.Background(), emailAction(), "ER wait at 45 minutes")
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "alerts@example.com", gotFrom)
	assert.Equal(t, []string{"oncall@example.com", "charge-nurse@example.com"}, gotTo)

	body := string(gotMsg)
	assert.Contains(t, body, "Subject: SLA breach")
	assert.Contains(t, body, "X-CareOps-Severity: high")
	assert.Contains(t, body, "ER wait at 45 minutes")
}

func TestEmailAdapterDefaultSubject(t *testing.T) {
	var gotMsg []byte
	adapter := NewEmailAdapter("smtp.example.com", 25, "alerts@example.com", "", "")
	adapter.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotMsg = msg
		return nil
	}

	action := emailAction()
	action.Email.Subject = ""
	require.NoError(t, adapter.Send(context.Background(), action, "msg"))
	assert.Contains(t, string(gotMsg), "Subject: CareOps alert")
}

func TestEmailAdapterSendFailureIsTransient(t *testing.T) {
	adapter := NewEmailAdapter("smtp.example.com", 587, "alerts@example.com", "", "")
	adapter.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		return errors.New("connection refused")
	}

	err := adapter.Send(context.Background(), emailAction(), "msg")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestEmailAdapterHonorsContextCancellation(t *testing.T) {
	adapter := NewEmailAdapter("smtp.example.com", 587, "alerts@example.com", "", "")
	adapter.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		time.Sleep(5 * time.Second)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := adapter.Send(ctx, emailAction(), "msg")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEmailAdapterMissingConfig(t *testing.T) {
	adapter := NewEmailAdapter("smtp.example.com", 587, "alerts@example.com", "", "")
	err := adapter.Send(context.Background(), &rule.Action{Type: rule.ActionEmailAlert}, "msg")
	assert.Error(t, err)
}
