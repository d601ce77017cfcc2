package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// Builder hands out positional placeholders and collects their arguments, so a
// query can bind its own parameters first and append filter clauses after them.
type Builder struct {
	args []any
}

// NewBuilder returns a Builder whose first placeholder is $1.
func NewBuilder() *Builder {
	return &Builder{}
}

// Bind records v and returns its placeholder.
func (b *Builder) Bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// Args returns all bound arguments in placeholder order.
func (b *Builder) Args() []any {
	return b.args
}

// Fragment is a compiled predicate. An empty Fragment means no restriction.
type Fragment struct {
	Clauses []string
	Args    []any
}

// Empty reports whether the fragment restricts nothing.
func (f Fragment) Empty() bool {
	return len(f.Clauses) == 0
}

// SQL joins the clauses with AND.
func (f Fragment) SQL() string {
	return strings.Join(f.Clauses, " AND ")
}

// Where renders " WHERE ..." or "" for an empty fragment.
func (f Fragment) Where() string {
	if f.Empty() {
		return ""
	}
	return " WHERE " + f.SQL()
}

// And renders " AND ..." or "" for an empty fragment.
func (f Fragment) And() string {
	if f.Empty() {
		return ""
	}
	return " AND " + f.SQL()
}

// Target renders one field restriction as a predicate.
type Target interface {
	Clause(b *Builder, field string, v Value) (string, error)
}

// Compile renders spec against target using b for placeholders. Each field
// yields exactly one clause; fields are visited in sorted order.
func Compile(b *Builder, spec Spec, target Target) (Fragment, error) {
	start := len(b.args)
	frag := Fragment{}
	for _, field := range spec.Fields() {
		clause, err := target.Clause(b, field, spec[field])
		if err != nil {
			b.args = b.args[:start]
			return Fragment{}, fmt.Errorf("field %q: %w", field, err)
		}
		frag.Clauses = append(frag.Clauses, clause)
	}
	frag.Args = b.args[start:]
	return frag, nil
}

// escapeLike makes s a literal for LIKE/ILIKE with the default backslash escape.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// substring returns the bound ILIKE operand for a case-insensitive substring match.
func substring(s string) string {
	return "%" + escapeLike(s) + "%"
}

// rangeClause renders expr >= lo AND expr <= hi, skipping open bounds.
func rangeClause(b *Builder, expr, cast string, v Value) (string, error) {
	var parts []string
	if v.lo != nil {
		lo, ok := toFloat(v.lo)
		if !ok {
			return "", fmt.Errorf("%w: range bound %T", ErrUnsupportedValue, v.lo)
		}
		parts = append(parts, fmt.Sprintf("%s >= %s%s", expr, b.Bind(lo), cast))
	}
	if v.hi != nil {
		hi, ok := toFloat(v.hi)
		if !ok {
			return "", fmt.Errorf("%w: range bound %T", ErrUnsupportedValue, v.hi)
		}
		parts = append(parts, fmt.Sprintf("%s <= %s%s", expr, b.Bind(hi), cast))
	}
	switch len(parts) {
	case 0:
		return "", ErrEmptyRange
	case 1:
		return parts[0], nil
	default:
		return "(" + parts[0] + " AND " + parts[1] + ")", nil
	}
}
