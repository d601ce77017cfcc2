package handlers

import (
	"net/http"

	"github.com/upb/inventory-retrieval/internal/observability"
	"github.com/upb/inventory-retrieval/services/retrieval"
	"github.com/upb/inventory-retrieval/utils"
	"go.uber.org/zap"
)

// SimilarityRequest is the body of POST /api/v1/search/similarity
type SimilarityRequest struct {
	Query  string                 `json:"query" validate:"required"`
	Filter map[string]interface{} `json:"filter,omitempty"`
	K      int                    `json:"k,omitempty" validate:"gte=0"`
	Native bool                   `json:"native,omitempty"`
}

// HybridRequest is the body of POST /api/v1/search/hybrid
type HybridRequest struct {
	Query       string                 `json:"query" validate:"required"`
	Filter      map[string]interface{} `json:"filter,omitempty"`
	K           int                    `json:"k,omitempty" validate:"gte=0"`
	Alpha       *float64               `json:"alpha,omitempty"`
	UseEntities bool                   `json:"use_entities,omitempty"`
}

// ContextRequest is the body of POST /api/v1/context
type ContextRequest struct {
	Query  string                 `json:"query" validate:"required"`
	Filter map[string]interface{} `json:"filter,omitempty"`
	K      int                    `json:"k,omitempty" validate:"gte=0"`
}

// ContextResponse carries a prompt-ready knowledge base excerpt
type ContextResponse struct {
	Context string `json:"context"`
}

// SearchHandler handles document search requests
type SearchHandler struct {
	service RetrievalService
	logger  *zap.Logger
}

// NewSearchHandler creates a new SearchHandler
func NewSearchHandler(service RetrievalService, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		service: service,
		logger:  logger,
	}
}

// HandleSimilarity handles POST /api/v1/search/similarity
func (h *SearchHandler) HandleSimilarity(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithContext(r.Context(), h.logger)

	var req SimilarityRequest
	if !decodeRequest(w, r, &req, logger) {
		return
	}
	spec, err := parseFilter(req.Filter)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	resp, err := h.service.SimilaritySearch(r.Context(), retrieval.SimilarityRequest{
		Query:  req.Query,
		Filter: spec,
		K:      req.K,
		Native: req.Native,
	})
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	logger.Debug("similarity search served",
		zap.String("path", resp.Path),
		zap.Int("count", resp.Count))
	_ = utils.WriteOK(w, resp)
}

// HandleHybrid handles POST /api/v1/search/hybrid
func (h *SearchHandler) HandleHybrid(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithContext(r.Context(), h.logger)

	var req HybridRequest
	if !decodeRequest(w, r, &req, logger) {
		return
	}
	spec, err := parseFilter(req.Filter)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	resp, err := h.service.HybridSearch(r.Context(), retrieval.HybridRequest{
		Query:       req.Query,
		Filter:      spec,
		K:           req.K,
		Alpha:       req.Alpha,
		UseEntities: req.UseEntities,
	})
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	logger.Debug("hybrid search served",
		zap.Int("count", resp.Count),
		zap.Bool("expanded", resp.Expanded))
	_ = utils.WriteOK(w, resp)
}

// HandleContext handles POST /api/v1/context
func (h *SearchHandler) HandleContext(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithContext(r.Context(), h.logger)

	var req ContextRequest
	if !decodeRequest(w, r, &req, logger) {
		return
	}
	spec, err := parseFilter(req.Filter)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	text, err := h.service.Context(r.Context(), retrieval.SimilarityRequest{
		Query:  req.Query,
		Filter: spec,
		K:      req.K,
	})
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	_ = utils.WriteOK(w, ContextResponse{Context: text})
}
