// Package handlers exposes the retrieval, inventory and document services over HTTP.
package handlers

import (
	"context"
	"net/http"

	"github.com/upb/inventory-retrieval/internal/filter"
	"github.com/upb/inventory-retrieval/models"
	"github.com/upb/inventory-retrieval/services"
	"github.com/upb/inventory-retrieval/services/documents"
	"github.com/upb/inventory-retrieval/services/inventory"
	"github.com/upb/inventory-retrieval/services/retrieval"
	"github.com/upb/inventory-retrieval/utils"
	"go.uber.org/zap"
)

// RetrievalService defines the search operations over the document collection
type RetrievalService interface {
	SimilaritySearch(ctx context.Context, req retrieval.SimilarityRequest) (*retrieval.SearchResponse, error)
	HybridSearch(ctx context.Context, req retrieval.HybridRequest) (*retrieval.SearchResponse, error)
	Context(ctx context.Context, req retrieval.SimilarityRequest) (string, error)
}

// InventoryService defines the structured inventory operations
type InventoryService interface {
	Search(ctx context.Context, q inventory.Query) (*inventory.Response, error)
	InsertVehicles(ctx context.Context, records []*models.InventoryRecord) error
}

// DocumentService defines document loading
type DocumentService interface {
	AddDocuments(ctx context.Context, inputs []documents.Input) (*documents.Result, error)
}

// decodeRequest decodes and validates the body into dst, writing a 400 on failure
func decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) bool {
	if err := utils.DecodeJSON(w, r, dst); err != nil {
		HandleValidationError(w, err, logger)
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		HandleValidationError(w, err, logger)
		return false
	}
	return true
}

// parseFilter converts a decoded JSON filter object into a filter.Spec
func parseFilter(raw map[string]interface{}) (filter.Spec, error) {
	spec, err := filter.FromMap(raw)
	if err == nil {
		return spec, nil
	}
	if ferr := services.FromFilterError(err); ferr != nil {
		return nil, ferr
	}
	return nil, services.Wrap(services.ErrUnsupportedFilter, err)
}
