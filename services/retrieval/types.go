package retrieval

import (
	"github.com/upb/inventory-retrieval/internal/filter"
	"github.com/upb/inventory-retrieval/models"
)

// SimilarityRequest is a pure vector search.
type SimilarityRequest struct {
	Query  string
	Filter filter.Spec
	K      int  // 0 selects the configured default
	Native bool // route through the generic vector store client
}

// HybridRequest is a lexical+vector fused search.
type HybridRequest struct {
	Query       string
	Filter      filter.Spec
	K           int
	Alpha       *float64 // nil selects the configured default
	UseEntities bool
}

// SearchResponse carries ranked results and how they were produced.
type SearchResponse struct {
	Results      []*models.ScoredResult `json:"results"`
	Count        int                    `json:"count"`
	Path         string                 `json:"path"`
	K            int                    `json:"k"`
	Alpha        *float64               `json:"alpha,omitempty"`
	LexicalQuery string                 `json:"lexical_query,omitempty"`

	// Entity expansion outcome; only set when UseEntities was requested.
	Expanded       bool              `json:"expanded"`
	Entities       map[string]string `json:"entities,omitempty"`
	ExpansionError string            `json:"expansion_error,omitempty"`
}

// Options configures the Service.
type Options struct {
	CollectionName    string
	CollectionID      string
	DefaultK          int
	DefaultAlpha      float64
	NativeEnabled     bool
	ExpansionFallback bool
}
