// Package budget estimates record cost in tokens and truncates ordered
// sequences to a token ceiling.
//
// The estimate is a heuristic: total characters across the costed text fields,
// integer-divided by a characters-per-token constant (5 by default). It is not
// a tokenizer and should be calibrated against the downstream model before it
// is trusted for hard context limits.
package budget

// DefaultCharsPerToken approximates one token per five characters.
const DefaultCharsPerToken = 5

// Estimator converts character counts to estimated tokens.
type Estimator struct {
	CharsPerToken int
}

// NewEstimator returns an Estimator, falling back to DefaultCharsPerToken for
// non-positive divisors.
func NewEstimator(charsPerToken int) Estimator {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return Estimator{CharsPerToken: charsPerToken}
}

// Estimate returns floor(sum(len(field)) / CharsPerToken). Lengths are counted in
// characters, matching SQL LENGTH on text.
func (e Estimator) Estimate(fields ...string) int {
	div := e.CharsPerToken
	if div <= 0 {
		div = DefaultCharsPerToken
	}
	total := 0
	for _, f := range fields {
		total += len([]rune(f))
	}
	return total / div
}

// Prefix returns the length m of the maximal prefix with c_1+...+c_m <= limit.
// A non-positive limit yields 0. Costs are taken as given; a record is never
// skipped to make room for a later one.
func Prefix(costs []int, limit int) int {
	if limit <= 0 {
		return 0
	}
	sum := 0
	for i, c := range costs {
		sum += c
		if sum > limit {
			return i
		}
	}
	return len(costs)
}

// Truncate returns the maximal prefix of items whose cumulative cost fits limit.
func Truncate[T any](items []T, limit int, cost func(T) int) []T {
	costs := make([]int, len(items))
	for i, it := range items {
		costs[i] = cost(it)
	}
	return items[:Prefix(costs, limit)]
}
