// Package entities extracts labelled named entities from query text. The
// resulting label to text mapping is used to widen the lexical half of a
// hybrid search.
package entities

import (
	"context"
	"errors"
	"sort"
	"strings"
)

var (
	// ErrExtraction is wrapped by every extractor failure
	ErrExtraction = errors.New("entity extraction failed")

	// ErrModelUnavailable is returned when the recognition model cannot be acquired
	ErrModelUnavailable = errors.New("recognition model unavailable")
)

// Span is a single recognized entity.
type Span struct {
	Text  string
	Label string
	Score float64
}

// Extractor maps text to entity label -> entity text.
type Extractor interface {
	Extract(ctx context.Context, text string) (map[string]string, error)
}

// Noop never finds anything. Used when ENTITY_PROVIDER=none.
type Noop struct{}

// Extract implements Extractor
func (Noop) Extract(context.Context, string) (map[string]string, error) {
	return map[string]string{}, nil
}

// Collapse reduces spans to one text per label, keeping the highest scoring
// span at or above threshold. Earlier spans win ties.
func Collapse(spans []Span, threshold float64) map[string]string {
	best := make(map[string]Span, len(spans))
	for _, s := range spans {
		text := strings.TrimSpace(s.Text)
		if text == "" || s.Label == "" || s.Score < threshold {
			continue
		}
		if cur, ok := best[s.Label]; ok && cur.Score >= s.Score {
			continue
		}
		s.Text = text
		best[s.Label] = s
	}

	out := make(map[string]string, len(best))
	for label, s := range best {
		out[label] = s.Text
	}
	return out
}

// Expand appends entity texts to query in label order. Texts already present
// in the query (case-insensitive) are skipped.
func Expand(query string, found map[string]string) string {
	if len(found) == 0 {
		return query
	}

	labels := make([]string, 0, len(found))
	for label := range found {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var b strings.Builder
	b.WriteString(query)
	seen := strings.ToLower(query)
	for _, label := range labels {
		text := found[label]
		lower := strings.ToLower(text)
		if text == "" || strings.Contains(seen, lower) {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(text)
		seen += " " + lower
	}
	return b.String()
}
