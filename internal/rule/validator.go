package rule

import (
	"fmt"
	"net/url"
	"regexp"
)

// validFieldPattern matches valid fact field names: start with a letter
// or underscore, then letters, numbers, underscores.
var validFieldPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate performs comprehensive validation of a rule. It is applied
// at the configuration boundary, so a malformed rule never reaches
// evaluation.
func Validate(r *Rule) error {
	if r == nil {
		return &ValidationError{Field: "rule", Message: "rule cannot be nil"}
	}

	if r.Name == "" {
		return &ValidationError{Field: "name", Message: "name cannot be empty"}
	}

	if !ValidTriggerTypes[r.TriggerType] {
		return &ValidationError{
			Field:   "triggerType",
			Message: fmt.Sprintf("invalid trigger type: %s", r.TriggerType),
		}
	}

	switch r.ConditionLogic {
	case LogicAnd, LogicOr:
	default:
		return &ValidationError{
			Field:   "conditionLogic",
			Message: fmt.Sprintf("invalid condition logic: %s", r.ConditionLogic),
		}
	}

	if r.Priority != "" && !ValidPriorities[r.Priority] {
		return &ValidationError{
			Field:   "priority",
			Message: fmt.Sprintf("invalid priority: %s", r.Priority),
		}
	}

	if r.CooldownMinutes < 0 {
		return &ValidationError{Field: "cooldownMinutes", Message: "cooldown cannot be negative"}
	}

	for i := range r.Conditions {
		if err := validateCondition(&r.Conditions[i]); err != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("conditions[%d]", i),
				Message: err.Error(),
			}
		}
	}

	for i := range r.Actions {
		if err := validateAction(&r.Actions[i]); err != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("actions[%d]", i),
				Message: err.Error(),
			}
		}
	}

	return nil
}

// ValidateForActivation applies the extra constraints a rule must meet
// before it becomes eligible for evaluation.
func ValidateForActivation(r *Rule) error {
	if err := Validate(r); err != nil {
		return err
	}
	if len(r.Conditions) == 0 {
		return &ValidationError{
			Field:   "conditions",
			Message: "at least one condition is required to activate a rule",
		}
	}
	return nil
}

// validateCondition validates a single condition
func validateCondition(c *Condition) error {
	if c.Field == "" {
		return fmt.Errorf("field cannot be empty")
	}
	if !validFieldPattern.MatchString(c.Field) {
		return fmt.Errorf("invalid field name: %s", c.Field)
	}
	if !ValidOperators[c.Operator] {
		return fmt.Errorf("invalid operator: %s", c.Operator)
	}
	if c.Value.Kind() == KindAbsent {
		return fmt.Errorf("value is required")
	}
	if c.Value.Kind() == KindList {
		return fmt.Errorf("condition values must be scalar")
	}
	return nil
}

// validateAction checks that an action carries exactly the config its
// type requires.
func validateAction(a *Action) error {
	if !ValidActionTypes[a.Type] {
		return fmt.Errorf("invalid action type: %s", a.Type)
	}

	switch a.Type {
	case ActionEmailAlert:
		if a.Email == nil {
			return fmt.Errorf("email config is required")
		}
		if len(a.Email.Recipients) == 0 {
			return fmt.Errorf("email recipients cannot be empty")
		}
	case ActionSlackNotification:
		if a.Slack == nil {
			return fmt.Errorf("slack config is required")
		}
		if err := validateURL(a.Slack.WebhookURL); err != nil {
			return fmt.Errorf("slack webhook url: %w", err)
		}
	case ActionDashboardBanner:
		if a.Banner == nil {
			return fmt.Errorf("banner config is required")
		}
		if a.Banner.Message == "" {
			return fmt.Errorf("banner message cannot be empty")
		}
	case ActionAPICall:
		if a.APICall == nil {
			return fmt.Errorf("api call config is required")
		}
		if err := validateURL(a.APICall.URL); err != nil {
			return fmt.Errorf("api call url: %w", err)
		}
		switch a.APICall.Method {
		case "", "GET", "POST", "PUT", "PATCH", "DELETE":
		default:
			return fmt.Errorf("invalid api call method: %s", a.APICall.Method)
		}
	case ActionSMSAlert:
		if a.SMS == nil {
			return fmt.Errorf("sms config is required")
		}
		if len(a.SMS.Recipients) == 0 {
			return fmt.Errorf("sms recipients cannot be empty")
		}
	case ActionWebhook:
		if a.Webhook == nil {
			return fmt.Errorf("webhook config is required")
		}
		if err := validateURL(a.Webhook.URL); err != nil {
			return fmt.Errorf("webhook url: %w", err)
		}
	}

	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https")
	}
	return nil
}
