package rule

import (
	"fmt"
	"time"
)

// TriggerType classifies which event categories a rule may match. It is
// used for routing before full condition evaluation.
type TriggerType string

const (
	TriggerSLABreach         TriggerType = "sla_breach"
	TriggerSurgePrediction   TriggerType = "surge_prediction"
	TriggerDataAnomaly       TriggerType = "data_anomaly"
	TriggerThresholdExceeded TriggerType = "threshold_exceeded"
	TriggerTimeBased         TriggerType = "time_based"
)

// ValidTriggerTypes contains all recognized trigger types
var ValidTriggerTypes = map[TriggerType]bool{
	TriggerSLABreach:         true,
	TriggerSurgePrediction:   true,
	TriggerDataAnomaly:       true,
	TriggerThresholdExceeded: true,
	TriggerTimeBased:         true,
}

// Priority is used for ledger ordering and display, never preemption.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var ValidPriorities = map[Priority]bool{
	PriorityLow:      true,
	PriorityMedium:   true,
	PriorityHigh:     true,
	PriorityCritical: true,
}

// Rank returns a sortable weight, highest priority first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Logic combines the results of a rule's individual conditions.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// Operator is a single comparison applied to one event fact.
type Operator string

const (
	OperatorEquals       Operator = "equals"
	OperatorNotEquals    Operator = "not_equals"
	OperatorGreaterThan  Operator = "greater_than"
	OperatorLessThan     Operator = "less_than"
	OperatorGreaterEqual Operator = "greater_equal"
	OperatorLessEqual    Operator = "less_equal"
	OperatorContains     Operator = "contains"
	OperatorNotContains  Operator = "not_contains"
)

// ValidOperators contains all valid comparison operators
var ValidOperators = map[Operator]bool{
	OperatorEquals:       true,
	OperatorNotEquals:    true,
	OperatorGreaterThan:  true,
	OperatorLessThan:     true,
	OperatorGreaterEqual: true,
	OperatorLessEqual:    true,
	OperatorContains:     true,
	OperatorNotContains:  true,
}

// Condition represents a single comparison against an event's fact map
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    Value    `json:"value" yaml:"value"`
}

// ActionType identifies a notification channel.
type ActionType string

const (
	ActionEmailAlert        ActionType = "email_alert"
	ActionSlackNotification ActionType = "slack_notification"
	ActionDashboardBanner   ActionType = "dashboard_banner"
	ActionAPICall           ActionType = "api_call"
	ActionSMSAlert          ActionType = "sms_alert"
	ActionWebhook           ActionType = "webhook"
)

var ValidActionTypes = map[ActionType]bool{
	ActionEmailAlert:        true,
	ActionSlackNotification: true,
	ActionDashboardBanner:   true,
	ActionAPICall:           true,
	ActionSMSAlert:          true,
	ActionWebhook:           true,
}

// Action is a tagged variant over the six channel payloads. Exactly one
// config pointer, matching Type, is set.
type Action struct {
	Type    ActionType     `json:"type" yaml:"type"`
	Email   *EmailConfig   `json:"email,omitempty" yaml:"email,omitempty"`
	Slack   *SlackConfig   `json:"slack,omitempty" yaml:"slack,omitempty"`
	Banner  *BannerConfig  `json:"banner,omitempty" yaml:"banner,omitempty"`
	APICall *APICallConfig `json:"apiCall,omitempty" yaml:"apiCall,omitempty"`
	SMS     *SMSConfig     `json:"sms,omitempty" yaml:"sms,omitempty"`
	Webhook *WebhookConfig `json:"webhook,omitempty" yaml:"webhook,omitempty"`
}

type EmailConfig struct {
	Recipients []string `json:"recipients" yaml:"recipients"`
	Subject    string   `json:"subject" yaml:"subject"`
	Message    string   `json:"message" yaml:"message"`
	Severity   string   `json:"severity,omitempty" yaml:"severity,omitempty"`
}

type SlackConfig struct {
	WebhookURL string `json:"webhookUrl" yaml:"webhookUrl"`
	Channel    string `json:"channel" yaml:"channel"`
	Message    string `json:"message" yaml:"message"`
}

type BannerConfig struct {
	Message    string `json:"message" yaml:"message"`
	Severity   string `json:"severity,omitempty" yaml:"severity,omitempty"`
	TTLMinutes int    `json:"ttlMinutes,omitempty" yaml:"ttlMinutes,omitempty"`
}

type APICallConfig struct {
	URL     string            `json:"url" yaml:"url"`
	Method  string            `json:"method" yaml:"method"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Message string            `json:"message" yaml:"message"`
}

type SMSConfig struct {
	Recipients []string `json:"recipients" yaml:"recipients"`
	Message    string   `json:"message" yaml:"message"`
}

type WebhookConfig struct {
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Message string            `json:"message" yaml:"message"`
}

// MessageTemplate returns the channel message template for the action's
// active variant, or empty when none is configured.
func (a *Action) MessageTemplate() string {
	switch a.Type {
	case ActionEmailAlert:
		if a.Email != nil {
			return a.Email.Message
		}
	case ActionSlackNotification:
		if a.Slack != nil {
			return a.Slack.Message
		}
	case ActionDashboardBanner:
		if a.Banner != nil {
			return a.Banner.Message
		}
	case ActionAPICall:
		if a.APICall != nil {
			return a.APICall.Message
		}
	case ActionSMSAlert:
		if a.SMS != nil {
			return a.SMS.Message
		}
	case ActionWebhook:
		if a.Webhook != nil {
			return a.Webhook.Message
		}
	}
	return ""
}

// Rule defines a trigger+action automation unit
type Rule struct {
	ID              string      `json:"id" yaml:"id"`
	Name            string      `json:"name" yaml:"name"`
	Description     string      `json:"description,omitempty" yaml:"description,omitempty"`
	TriggerType     TriggerType `json:"triggerType" yaml:"triggerType"`
	Conditions      []Condition `json:"conditions" yaml:"conditions"`
	ConditionLogic  Logic       `json:"conditionLogic" yaml:"conditionLogic"`
	Actions         []Action    `json:"actions" yaml:"actions"`
	Priority        Priority    `json:"priority" yaml:"priority"`
	IsActive        bool        `json:"isActive" yaml:"isActive"`
	CooldownMinutes int         `json:"cooldownMinutes" yaml:"cooldownMinutes"`
	ExecutionCount  uint64      `json:"executionCount" yaml:"-"`
	LastExecutedAt  *time.Time  `json:"lastExecutedAt,omitempty" yaml:"-"`
	CreatedAt       time.Time   `json:"createdAt" yaml:"-"`
	UpdatedAt       time.Time   `json:"updatedAt" yaml:"-"`
}

// Cooldown returns the minimum spacing between two firings.
func (r *Rule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// ActionTypes returns the set of channel types the rule dispatches to.
func (r *Rule) ActionTypes() []ActionType {
	types := make([]ActionType, 0, len(r.Actions))
	seen := make(map[ActionType]bool, len(r.Actions))
	for _, a := range r.Actions {
		if !seen[a.Type] {
			seen[a.Type] = true
			types = append(types, a.Type)
		}
	}
	return types
}

// Clone returns a deep copy. The repository hands out clones so callers
// never share mutable state with the authoritative rule.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Conditions = append([]Condition(nil), r.Conditions...)
	cp.Actions = make([]Action, len(r.Actions))
	for i, a := range r.Actions {
		cp.Actions[i] = *cloneAction(&a)
	}
	if r.LastExecutedAt != nil {
		t := *r.LastExecutedAt
		cp.LastExecutedAt = &t
	}
	return &cp
}

func cloneAction(a *Action) *Action {
	cp := *a
	if a.Email != nil {
		e := *a.Email
		e.Recipients = append([]string(nil), a.Email.Recipients...)
		cp.Email = &e
	}
	if a.Slack != nil {
		s := *a.Slack
		cp.Slack = &s
	}
	if a.Banner != nil {
		b := *a.Banner
		cp.Banner = &b
	}
	if a.APICall != nil {
		c := *a.APICall
		c.Headers = cloneHeaders(a.APICall.Headers)
		cp.APICall = &c
	}
	if a.SMS != nil {
		s := *a.SMS
		s.Recipients = append([]string(nil), a.SMS.Recipients...)
		cp.SMS = &s
	}
	if a.Webhook != nil {
		w := *a.Webhook
		w.Headers = cloneHeaders(a.Webhook.Headers)
		cp.Webhook = &w
	}
	return &cp
}

func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	cp := make(map[string]string, len(h))
	for k, v := range h {
		cp[k] = v
	}
	return cp
}

// Event is a timestamped fact snapshot emitted by an upstream producer.
type Event struct {
	ID        string           `json:"id"`
	Category  TriggerType      `json:"category"`
	Timestamp time.Time        `json:"timestamp"`
	Facts     map[string]Value `json:"facts"`
}

// ValidationError represents a rule or subscription validation error
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
