package budget

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimator_Estimate(t *testing.T) {
	tests := []struct {
		name   string
		div    int
		fields []string
		want   int
	}{
		{"integer division floors", 5, []string{"abcd", "ef"}, 1},
		{"exact multiple", 5, []string{strings.Repeat("x", 50)}, 10},
		{"empty fields", 5, []string{"", ""}, 0},
		{"no fields", 5, nil, 0},
		{"custom divisor", 4, []string{"abcdefgh"}, 2},
		{"characters not bytes", 5, []string{"ñandú"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewEstimator(tt.div).Estimate(tt.fields...))
		})
	}
}

func TestNewEstimator_DefaultsDivisor(t *testing.T) {
	assert.Equal(t, DefaultCharsPerToken, NewEstimator(0).CharsPerToken)
	assert.Equal(t, DefaultCharsPerToken, NewEstimator(-3).CharsPerToken)
	assert.Equal(t, 0, Estimator{}.Estimate("abcd"))
}

func TestPrefix(t *testing.T) {
	tests := []struct {
		name  string
		costs []int
		limit int
		want  int
	}{
		{"scenario stops before fourth record", []int{10, 15, 5, 30, 8}, 50, 3},
		{"whole sequence fits", []int{10, 15, 5}, 30, 3},
		{"exact boundary is included", []int{10, 20}, 30, 2},
		{"first record too large", []int{60, 1}, 50, 0},
		{"zero limit", []int{1, 2}, 0, 0},
		{"negative limit", []int{1, 2}, -10, 0},
		{"later small record is not pulled forward", []int{40, 20, 1}, 50, 1},
		{"zero-cost records are free", []int{0, 0, 50, 0}, 50, 4},
		{"empty sequence", nil, 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Prefix(tt.costs, tt.limit))
		})
	}
}

func TestPrefix_MaximalProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		costs := make([]int, rng.Intn(12))
		for j := range costs {
			costs[j] = rng.Intn(40)
		}
		limit := rng.Intn(200) - 20

		m := Prefix(costs, limit)

		sum := 0
		for _, c := range costs[:m] {
			sum += c
		}
		if limit <= 0 {
			assert.Equal(t, 0, m)
			continue
		}
		assert.LessOrEqual(t, sum, limit)
		if m < len(costs) {
			assert.Greater(t, sum+costs[m], limit, "prefix must be maximal")
		}
	}
}

func TestTruncate(t *testing.T) {
	type rec struct {
		id   string
		cost int
	}
	records := []rec{{"1", 10}, {"2", 15}, {"3", 5}, {"4", 30}, {"5", 8}}
	cost := func(r rec) int { return r.cost }

	got := Truncate(records, 50, cost)
	assert.Equal(t, []rec{{"1", 10}, {"2", 15}, {"3", 5}}, got)

	assert.Empty(t, Truncate(records, 0, cost))
	assert.Empty(t, Truncate(records, -1, cost))
	assert.Len(t, Truncate(records, 1000, cost), 5)
}
