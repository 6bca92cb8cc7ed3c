package rule

import "fmt"

// Outcome carries the match decision plus any non-fatal notes collected
// during evaluation (type mismatches, fail-closed defaults).
type Outcome struct {
	Matched bool
	Notes   []string
}

// Evaluate applies a rule's condition set to an event. It is a pure
// function of the rule snapshot and the event, which is what allows
// evaluation of distinct rules to run concurrently.
//
// A rule with zero conditions never matches. A condition whose field is
// absent from the event evaluates false rather than erroring, so one
// malformed event cannot abort evaluation of other rules.
func Evaluate(r *Rule, e *Event) (bool, Outcome) {
	if len(r.Conditions) == 0 {
		return false, Outcome{Notes: []string{"rule has no conditions"}}
	}

	out := Outcome{}
	switch r.ConditionLogic {
	case LogicOr:
		for i := range r.Conditions {
			matched, note := evaluateCondition(&r.Conditions[i], e.Facts)
			if note != "" {
				out.Notes = append(out.Notes, note)
			}
			if matched {
				out.Matched = true
				return true, out
			}
		}
		return false, out
	default:
		// AND is the default combine; an unknown logic value behaves as
		// AND rather than silently matching.
		for i := range r.Conditions {
			matched, note := evaluateCondition(&r.Conditions[i], e.Facts)
			if note != "" {
				out.Notes = append(out.Notes, note)
			}
			if !matched {
				return false, out
			}
		}
		out.Matched = true
		return true, out
	}
}

// evaluateCondition evaluates a single condition against the fact map.
// The returned note is non-empty only for non-fatal type mismatches.
func evaluateCondition(c *Condition, facts map[string]Value) (bool, string) {
	value, exists := facts[c.Field]
	if !exists {
		return false, ""
	}

	switch c.Operator {
	case OperatorEquals:
		return value.Equal(c.Value), ""
	case OperatorNotEquals:
		return !value.Equal(c.Value), ""
	case OperatorGreaterThan:
		return compareOrdered(value, c, func(cmp int) bool { return cmp > 0 })
	case OperatorLessThan:
		return compareOrdered(value, c, func(cmp int) bool { return cmp < 0 })
	case OperatorGreaterEqual:
		return compareOrdered(value, c, func(cmp int) bool { return cmp >= 0 })
	case OperatorLessEqual:
		return compareOrdered(value, c, func(cmp int) bool { return cmp <= 0 })
	case OperatorContains:
		return value.Contains(c.Value), ""
	case OperatorNotContains:
		return !value.Contains(c.Value), ""
	default:
		return false, fmt.Sprintf("unknown operator %q on field %q", c.Operator, c.Field)
	}
}

// compareOrdered applies an ordered operator. A coercion failure on
// either side evaluates false with a TypeMismatch note.
func compareOrdered(value Value, c *Condition, pass func(int) bool) (bool, string) {
	cmp, ok := value.Compare(c.Value)
	if !ok {
		return false, fmt.Sprintf("type mismatch: field %q is not comparable with %s", c.Field, c.Operator)
	}
	return pass(cmp), ""
}
