// Package filter compiles field restrictions into parameterized SQL predicates.
//
// A Spec maps field names to one of four variants: Equals, Pattern, Range or
// OneOf. Every value is bound as a positional parameter; field names are either
// bound too (JSONB metadata keys) or resolved through an allow-list (columns).
// Fields combine with AND only.
package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Kind tags a filter Value.
type Kind int

const (
	KindEquals Kind = iota + 1
	KindPattern
	KindRange
	KindOneOf
)

func (k Kind) String() string {
	switch k {
	case KindEquals:
		return "equals"
	case KindPattern:
		return "pattern"
	case KindRange:
		return "range"
	case KindOneOf:
		return "one_of"
	default:
		return "unknown"
	}
}

var (
	ErrUnknownField     = errors.New("unknown filter field")
	ErrUnsupportedValue = errors.New("unsupported filter value")
	ErrKindMismatch     = errors.New("filter kind not supported for field")
	ErrEmptyRange       = errors.New("range needs at least one bound")
	ErrEmptySet         = errors.New("set membership needs at least one value")
)

// Value is one field restriction. Build it with Equals, Pattern, Range or OneOf.
type Value struct {
	kind    Kind
	scalar  any
	pattern string
	lo      any
	hi      any
	set     []any
}

// Equals matches a scalar exactly. Accepted scalars are strings, numbers and bools.
func Equals(v any) Value {
	return Value{kind: KindEquals, scalar: v}
}

// Pattern matches a case-insensitive substring.
func Pattern(s string) Value {
	return Value{kind: KindPattern, pattern: s}
}

// Range matches an inclusive numeric interval. A nil bound is open.
func Range(lo, hi any) Value {
	return Value{kind: KindRange, lo: lo, hi: hi}
}

// OneOf matches membership in a homogeneous set of scalars.
func OneOf(values ...any) Value {
	return Value{kind: KindOneOf, set: values}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// Scalar returns the Equals operand.
func (v Value) Scalar() any { return v.scalar }

// Bounds returns the Range operands.
func (v Value) Bounds() (lo, hi any) { return v.lo, v.hi }

// PatternText returns the Pattern operand.
func (v Value) PatternText() string { return v.pattern }

// Spec maps field names to restrictions. A nil or empty Spec means no restriction.
type Spec map[string]Value

// Fields returns field names in a stable order.
func (s Spec) Fields() []string {
	fields := make([]string, 0, len(s))
	for f := range s {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// AsEquality returns spec with every restriction as an exact match. Pattern
// text is taken as the literal value; Range and OneOf have no exact form and
// fail with ErrKindMismatch.
func (s Spec) AsEquality() (Spec, error) {
	if len(s) == 0 {
		return nil, nil
	}
	out := make(Spec, len(s))
	for _, field := range s.Fields() {
		v := s[field]
		switch v.kind {
		case KindEquals:
			out[field] = v
		case KindPattern:
			out[field] = Equals(v.pattern)
		default:
			return nil, fmt.Errorf("field %q: %w: %s has no exact-match form", field, ErrKindMismatch, v.kind)
		}
	}
	return out, nil
}

// FromMap converts untyped input (typically decoded JSON) into a Spec:
// numbers and bools become Equals, strings become Pattern, lists become
// OneOf, and objects with "min"/"max" keys become Range.
func FromMap(m map[string]any) (Spec, error) {
	if len(m) == 0 {
		return nil, nil
	}
	spec := make(Spec, len(m))
	for field, raw := range m {
		v, err := fromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		spec[field] = v
	}
	return spec, nil
}

func fromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case string:
		return Pattern(t), nil
	case bool:
		return Equals(t), nil
	case []any:
		return OneOf(t...), nil
	case []string:
		vals := make([]any, len(t))
		for i, s := range t {
			vals[i] = s
		}
		return OneOf(vals...), nil
	case map[string]any:
		lo, hasMin := t["min"]
		hi, hasMax := t["max"]
		if !hasMin && !hasMax {
			return Value{}, fmt.Errorf("%w: object without min or max", ErrUnsupportedValue)
		}
		return Range(lo, hi), nil
	}
	if _, ok := toFloat(raw); ok {
		return Equals(raw), nil
	}
	return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, raw)
}

// toFloat reports whether v is numeric and returns it as float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// normalizeSet turns a heterogeneous []any into a typed slice suitable for pq.Array.
func normalizeSet(values []any) (any, error) {
	if len(values) == 0 {
		return nil, ErrEmptySet
	}
	switch values[0].(type) {
	case string:
		out := make([]string, len(values))
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: mixed set element %T", ErrUnsupportedValue, v)
			}
			out[i] = s
		}
		return out, nil
	case bool:
		out := make([]bool, len(values))
		for i, v := range values {
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: mixed set element %T", ErrUnsupportedValue, v)
			}
			out[i] = b
		}
		return out, nil
	}
	out := make([]float64, len(values))
	for i, v := range values {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: set element %T", ErrUnsupportedValue, v)
		}
		out[i] = f
	}
	return out, nil
}
