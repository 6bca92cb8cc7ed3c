package rule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueKind discriminates the variants of a fact or condition value.
type ValueKind int

const (
	KindAbsent ValueKind = iota
	KindNumber
	KindString
	KindBool
	KindList
)

// Value is a tagged scalar (or list of scalars) carried by events and
// condition definitions. Keeping the tag explicit lets operator
// application be checked exhaustively instead of reflecting over
// interface{} payloads.
type Value struct {
	kind ValueKind
	num  float64
	str  string
	b    bool
	list []Value
}

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func String(s string) Value  { return Value{kind: KindString, str: s} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func List(vs []Value) Value  { return Value{kind: KindList, list: vs} }

func (v Value) Kind() ValueKind { return v.kind }

// Float returns the numeric rendering of the value. Strings are parsed,
// booleans are rejected rather than silently coerced to 0/1.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// Text returns the display rendering of the value.
func (v Value) Text() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.Text()
		}
		return strings.Join(parts, ",")
	}
	return ""
}

// Equal reports type-aware equality: numbers compare numerically,
// strings as strings, booleans as booleans. Mismatched kinds are never
// equal, except that a numeric string compares numerically against a
// number.
func (v Value) Equal(other Value) bool {
	switch v.kind {
	case KindNumber:
		if f, ok := other.Float(); ok {
			return v.num == f
		}
	case KindString:
		if other.kind == KindString {
			return v.str == other.str
		}
		if f, ok := v.Float(); ok {
			if of, ook := other.Float(); ook {
				return f == of
			}
		}
	case KindBool:
		if other.kind == KindBool {
			return v.b == other.b
		}
	}
	return false
}

// Compare orders two values numerically. The second return is false
// when either side cannot be coerced to a number.
func (v Value) Compare(other Value) (int, bool) {
	a, ok := v.Float()
	if !ok {
		return 0, false
	}
	b, ok := other.Float()
	if !ok {
		return 0, false
	}
	switch {
	case a < b:
		return -1, true
	case a > b:
		return 1, true
	default:
		return 0, true
	}
}

// Contains reports substring containment for string values and set
// membership for list values.
func (v Value) Contains(needle Value) bool {
	switch v.kind {
	case KindString:
		return strings.Contains(v.str, needle.Text())
	case KindList:
		for _, item := range v.list {
			if item.Equal(needle) {
				return true
			}
		}
	}
	return false
}

// FromAny converts a decoded JSON scalar (or flat array of scalars)
// into a Value. Nested objects and other types are rejected.
func FromAny(raw interface{}) (Value, bool) {
	switch t := raw.(type) {
	case float64:
		return Number(t), true
	case int:
		return Number(float64(t)), true
	case int64:
		return Number(float64(t)), true
	case string:
		return String(t), true
	case bool:
		return Bool(t), true
	case []interface{}:
		items := make([]Value, 0, len(t))
		for _, el := range t {
			item, ok := FromAny(el)
			if !ok || item.kind == KindList {
				return Value{}, false
			}
			items = append(items, item)
		}
		return List(items), true
	}
	return Value{}, false
}

// MarshalJSON renders the native scalar, not the tagged wrapper, so fact
// snapshots serialize the way the original event payload looked.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		items := make([]interface{}, len(v.list))
		for i, item := range v.list {
			items[i] = item
		}
		return json.Marshal(items)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*v = Value{}
		return nil
	}
	parsed, ok := FromAny(raw)
	if !ok {
		return fmt.Errorf("unsupported value type %T", raw)
	}
	*v = parsed
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON for YAML-loaded rule files.
func (v *Value) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if raw == nil {
		*v = Value{}
		return nil
	}
	parsed, ok := FromAny(raw)
	if !ok {
		return fmt.Errorf("unsupported value type %T", raw)
	}
	*v = parsed
	return nil
}
