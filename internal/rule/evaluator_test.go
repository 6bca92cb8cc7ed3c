package rule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testEvent(facts map[string]Value) *Event {
	return &Event{
		ID:        "evt-1",
		Category:  TriggerSLABreach,
		Timestamp: time.Now(),
		Facts:     facts,
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name  string
		rule  Rule
		facts map[string]Value
		want  bool
	}{
		{
			name: "simple equals condition",
			rule: Rule{
				ConditionLogic: LogicAnd,
				Conditions: []Condition{
					{Field: "wait_minutes", Operator: OperatorEquals, Value: Number(45)},
				},
			},
			facts: map[string]Value{"wait_minutes": Number(45)},
			want:  true,
		},
		{
			name: "multiple AND conditions",
			rule: Rule{
				ConditionLogic: LogicAnd,
				Conditions: []Condition{
					{Field: "wait_minutes", Operator: OperatorGreaterThan, Value: Number(30)},
					{Field: "department", Operator: OperatorEquals, Value: String("emergency")},
				},
			},
			facts: map[string]Value{
				"wait_minutes": Number(45),
				"department":   String("emergency"),
			},
			want: true,
		},
		{
			name: "AND fails when one condition fails",
			rule: Rule{
				ConditionLogic: LogicAnd,
				Conditions: []Condition{
					{Field: "wait_minutes", Operator: OperatorGreaterThan, Value: Number(30)},
					{Field: "department", Operator: OperatorEquals, Value: String("radiology")},
				},
			},
			facts: map[string]Value{
				"wait_minutes": Number(45),
				"department":   String("emergency"),
			},
			want: false,
		},
		{
			name: "OR matches on second condition",
			rule: Rule{
				ConditionLogic: LogicOr,
				Conditions: []Condition{
					{Field: "wait_minutes", Operator: OperatorGreaterThan, Value: Number(60)},
					{Field: "department", Operator: OperatorEquals, Value: String("emergency")},
				},
			},
			facts: map[string]Value{
				"wait_minutes": Number(45),
				"department":   String("emergency"),
			},
			want: true,
		},
		{
			name: "OR fails when all conditions fail",
			rule: Rule{
				ConditionLogic: LogicOr,
				Conditions: []Condition{
					{Field: "wait_minutes", Operator: OperatorGreaterThan, Value: Number(60)},
					{Field: "department", Operator: OperatorEquals, Value: String("radiology")},
				},
			},
			facts: map[string]Value{
				"wait_minutes": Number(45),
				"department":   String("emergency"),
			},
			want: false,
		},
		{
			name: "missing field evaluates false",
			rule: Rule{
				ConditionLogic: LogicAnd,
				Conditions: []Condition{
					{Field: "wait_minutes", Operator: OperatorGreaterThan, Value: Number(30)},
				},
			},
			facts: map[string]Value{"department": String("emergency")},
			want:  false,
		},
		{
			name: "missing field under OR does not block other conditions",
			rule: Rule{
				ConditionLogic: LogicOr,
				Conditions: []Condition{
					{Field: "not_present", Operator: OperatorGreaterThan, Value: Number(30)},
					{Field: "department", Operator: OperatorEquals, Value: String("emergency")},
				},
			},
			facts: map[string]Value{"department": String("emergency")},
			want:  true,
		},
		{
			name: "numeric string compares numerically",
			rule: Rule{
				ConditionLogic: LogicAnd,
				Conditions: []Condition{
					{Field: "wait_minutes", Operator: OperatorGreaterThan, Value: Number(30)},
				},
			},
			facts: map[string]Value{"wait_minutes": String("45")},
			want:  true,
		},
		{
			name: "not_equals",
			rule: Rule{
				ConditionLogic: LogicAnd,
				Conditions: []Condition{
					{Field: "status", Operator: OperatorNotEquals, Value: String("resolved")},
				},
			},
			facts: map[string]Value{"status": String("open")},
			want:  true,
		},
		{
			name: "greater_equal at boundary",
			rule: Rule{
				ConditionLogic: LogicAnd,
				Conditions: []Condition{
					{Field: "occupancy", Operator: OperatorGreaterEqual, Value: Number(0.9)},
				},
			},
			facts: map[string]Value{"occupancy": Number(0.9)},
			want:  true,
		},
		{
			name: "less_equal at boundary",
			rule: Rule{
				ConditionLogic: LogicAnd,
				Conditions: []Condition{
					{Field: "staff_count", Operator: OperatorLessEqual, Value: Number(3)},
				},
			},
			facts: map[string]Value{"staff_count": Number(3)},
			want:  true,
		},
		{
			name: "contains substring",
			rule: Rule{
				ConditionLogic: LogicAnd,
				Conditions: []Condition{
					{Field: "unit", Operator: OperatorContains, Value: String("icu")},
				},
			},
			facts: map[string]Value{"unit": String("cardiac-icu-2")},
			want:  true,
		},
		{
			name: "contains list membership",
			rule: Rule{
				ConditionLogic: LogicAnd,
				Conditions: []Condition{
					{Field: "flags", Operator: OperatorContains, Value: String("critical")},
				},
			},
			facts: map[string]Value{
				"flags": List([]Value{String("overdue"), String("critical")}),
			},
			want: true,
		},
		{
			name: "not_contains",
			rule: Rule{
				ConditionLogic: LogicAnd,
				Conditions: []Condition{
					{Field: "unit", Operator: OperatorNotContains, Value: String("icu")},
				},
			},
			facts: map[string]Value{"unit": String("pediatrics")},
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Evaluate(&tt.rule, testEvent(tt.facts))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateZeroConditionsNeverMatches(t *testing.T) {
	r := Rule{ConditionLogic: LogicAnd}
	matched, out := Evaluate(&r, testEvent(map[string]Value{"wait_minutes": Number(45)}))

	assert.False(t, matched)
	assert.Contains(t, out.Notes, "rule has no conditions")

	r.ConditionLogic = LogicOr
	matched, _ = Evaluate(&r, testEvent(nil))
	assert.False(t, matched)
}

func TestEvaluateTypeMismatchNotes(t *testing.T) {
	r := Rule{
		ConditionLogic: LogicAnd,
		Conditions: []Condition{
			{Field: "department", Operator: OperatorGreaterThan, Value: Number(10)},
		},
	}
	matched, out := Evaluate(&r, testEvent(map[string]Value{"department": String("emergency")}))

	assert.False(t, matched)
	assert.Len(t, out.Notes, 1)
	assert.Contains(t, out.Notes[0], "type mismatch")
}

func TestEvaluateBooleanFacts(t *testing.T) {
	r := Rule{
		ConditionLogic: LogicAnd,
		Conditions: []Condition{
			{Field: "on_call", Operator: OperatorEquals, Value: Bool(true)},
		},
	}

	matched, _ := Evaluate(&r, testEvent(map[string]Value{"on_call": Bool(true)}))
	assert.True(t, matched)

	// Booleans never coerce to numbers.
	r.Conditions[0].Operator = OperatorGreaterThan
	r.Conditions[0].Value = Number(0)
	matched, out := Evaluate(&r, testEvent(map[string]Value{"on_call": Bool(true)}))
	assert.False(t, matched)
	assert.NotEmpty(t, out.Notes)
}
