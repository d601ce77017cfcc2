package filter

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/lib/pq"
)

// ColumnType drives which variants a column accepts and how operands are bound.
type ColumnType int

const (
	Text ColumnType = iota + 1
	Integer
	Numeric
	Boolean
	Date
)

// Columns is an allow-list of table columns. Field names outside it are rejected.
type Columns map[string]ColumnType

// Has reports whether name is an allowed column.
func (c Columns) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// Clause implements Target.
func (c Columns) Clause(b *Builder, field string, v Value) (string, error) {
	typ, ok := c[field]
	if !ok {
		return "", ErrUnknownField
	}
	ident := pq.QuoteIdentifier(field)

	switch v.kind {
	case KindEquals:
		arg, err := columnScalar(typ, v.scalar)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", ident, b.Bind(arg)), nil

	case KindPattern:
		if typ != Text {
			return "", ErrKindMismatch
		}
		return fmt.Sprintf("%s ILIKE %s", ident, b.Bind(substring(v.pattern))), nil

	case KindRange:
		if typ != Integer && typ != Numeric {
			return "", ErrKindMismatch
		}
		return rangeClause(b, ident, "", v)

	case KindOneOf:
		set, err := normalizeSet(v.set)
		if err != nil {
			return "", err
		}
		switch set.(type) {
		case []string:
			if typ != Text && typ != Date {
				return "", ErrKindMismatch
			}
		case []float64:
			if typ != Integer && typ != Numeric {
				return "", ErrKindMismatch
			}
		case []bool:
			if typ != Boolean {
				return "", ErrKindMismatch
			}
		}
		return fmt.Sprintf("%s = ANY(%s)", ident, b.Bind(pq.Array(set))), nil
	}
	return "", fmt.Errorf("%w: kind %s", ErrUnsupportedValue, v.kind)
}

// columnScalar checks an Equals operand against the column type.
func columnScalar(typ ColumnType, v any) (any, error) {
	switch typ {
	case Text, Date:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Boolean:
		if bv, ok := v.(bool); ok {
			return bv, nil
		}
	case Integer:
		if n, ok := toInt64(v); ok {
			return n, nil
		}
	case Numeric:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %T for column type %d", ErrUnsupportedValue, v, typ)
}

// toInt64 accepts integral values that fit in int64.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	f, ok := toFloat(v)
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold
	if !ok || f != math.Trunc(f) || f >= 0x1p63 || f < -0x1p63 {
		return 0, false
	}
	return int64(f), true
}
