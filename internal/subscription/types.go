package subscription

import (
	"fmt"
	"time"

	"careops-alert-engine/internal/rule"
)

// Frequency is a subscriber's chosen delivery cadence.
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyHourly    Frequency = "hourly"
	FrequencyDaily     Frequency = "daily"
)

var ValidFrequencies = map[Frequency]bool{
	FrequencyImmediate: true,
	FrequencyHourly:    true,
	FrequencyDaily:     true,
}

// Interval returns the digest bucket width, or zero for immediate.
func (f Frequency) Interval() time.Duration {
	switch f {
	case FrequencyHourly:
		return time.Hour
	case FrequencyDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}

// AlertSubscription maps a user to the rules they want notified about.
// Many-to-many between users and rules.
type AlertSubscription struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Role      string            `json:"roleAtSubscriptionTime"`
	RuleIDs   []string          `json:"ruleIds"`
	Channels  []rule.ActionType `json:"channels"`
	Frequency Frequency         `json:"frequency"`
	IsActive  bool              `json:"isActive"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Matches reports whether a firing of the given rule, with the given
// action types, is routed to this subscription.
func (s *AlertSubscription) Matches(ruleID string, actionTypes []rule.ActionType) bool {
	if !s.IsActive {
		return false
	}

	found := false
	for _, id := range s.RuleIDs {
		if id == ruleID {
			found = true
			break
		}
	}
	if !found {
		return false
	}

	for _, ch := range s.Channels {
		for _, at := range actionTypes {
			if ch == at {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy.
func (s *AlertSubscription) Clone() *AlertSubscription {
	cp := *s
	cp.RuleIDs = append([]string(nil), s.RuleIDs...)
	cp.Channels = append([]rule.ActionType(nil), s.Channels...)
	return &cp
}

// validate checks a subscription at the configuration boundary.
func validate(s *AlertSubscription) error {
	if s == nil {
		return &rule.ValidationError{Field: "subscription", Message: "subscription cannot be nil"}
	}
	if s.UserID == "" {
		return &rule.ValidationError{Field: "userId", Message: "user id cannot be empty"}
	}
	if !ValidFrequencies[s.Frequency] {
		return &rule.ValidationError{
			Field:   "frequency",
			Message: fmt.Sprintf("invalid frequency: %s", s.Frequency),
		}
	}
	if len(s.RuleIDs) == 0 {
		return &rule.ValidationError{Field: "ruleIds", Message: "at least one rule is required"}
	}
	if len(s.Channels) == 0 {
		return &rule.ValidationError{Field: "channels", Message: "at least one channel is required"}
	}
	for _, ch := range s.Channels {
		if !rule.ValidActionTypes[ch] {
			return &rule.ValidationError{
				Field:   "channels",
				Message: fmt.Sprintf("invalid channel: %s", ch),
			}
		}
	}
	return nil
}
