package retrieval

import (
	"context"
	"strings"

	"github.com/upb/inventory-retrieval/models"
)

const (
	contextHeader = "Information from knowledge base:"
	noContext     = "No relevant information found in the knowledge base."
)

// FormatContext renders result contents as a prompt-ready context block.
func FormatContext(results []*models.ScoredResult) string {
	texts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Content != "" {
			texts = append(texts, r.Content)
		}
	}
	if len(texts) == 0 {
		return noContext
	}
	return contextHeader + "\n" + strings.Join(texts, "\n")
}

// Context runs a similarity search and formats the hits.
func (s *Service) Context(ctx context.Context, req SimilarityRequest) (string, error) {
	resp, err := s.SimilaritySearch(ctx, req)
	if err != nil {
		return "", err
	}
	return FormatContext(resp.Results), nil
}
