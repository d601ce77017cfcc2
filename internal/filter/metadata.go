package filter

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/lib/pq"
)

// Metadata targets keys of a JSONB column. Keys are bound as parameters.
type Metadata struct {
	Column string // defaults to cmetadata
}

func (m Metadata) column() string {
	if m.Column == "" {
		return "cmetadata"
	}
	return pq.QuoteIdentifier(m.Column)
}

// Clause implements Target.
func (m Metadata) Clause(b *Builder, field string, v Value) (string, error) {
	col := m.column()
	switch v.kind {
	case KindEquals:
		if !isScalar(v.scalar) {
			return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v.scalar)
		}
		// Containment compares by JSON type, so 2022 and "2022" stay distinct.
		doc, err := json.Marshal(map[string]any{field: v.scalar})
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
		}
		return fmt.Sprintf("%s @> %s::jsonb", col, b.Bind(string(doc))), nil

	case KindPattern:
		key := b.Bind(field)
		return fmt.Sprintf("(%s ->> %s::text) ILIKE %s", col, key, b.Bind(substring(v.pattern))), nil

	case KindRange:
		return rangeClause(b, numericKey(col, b.Bind(field)), "::numeric", v)

	case KindOneOf:
		set, err := normalizeSet(v.set)
		if err != nil {
			return "", err
		}
		key := b.Bind(field)
		switch s := set.(type) {
		case []float64:
			return fmt.Sprintf("%s = ANY(%s::numeric[])", numericKey(col, key), b.Bind(pq.Array(s))), nil
		case []bool:
			texts := make([]string, len(s))
			for i, x := range s {
				texts[i] = strconv.FormatBool(x)
			}
			return fmt.Sprintf("(%s ->> %s::text) = ANY(%s::text[])", col, key, b.Bind(pq.Array(texts))), nil
		default:
			return fmt.Sprintf("(%s ->> %s::text) = ANY(%s::text[])", col, key, b.Bind(pq.Array(set))), nil
		}
	}
	return "", fmt.Errorf("%w: kind %s", ErrUnsupportedValue, v.kind)
}

// numericKey yields the key's value as numeric, or NULL when it is not a JSON number.
func numericKey(col, key string) string {
	return fmt.Sprintf("(CASE WHEN jsonb_typeof(%s -> %s::text) = 'number' THEN (%s ->> %s::text)::numeric END)",
		col, key, col, key)
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	_, ok := toFloat(v)
	return ok
}
