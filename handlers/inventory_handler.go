package handlers

import (
	"net/http"

	"github.com/upb/inventory-retrieval/internal/observability"
	"github.com/upb/inventory-retrieval/models"
	"github.com/upb/inventory-retrieval/services/inventory"
	"github.com/upb/inventory-retrieval/utils"
	"go.uber.org/zap"
)

// InventorySearchRequest is the body of POST /api/v1/inventory/search.
// Filter restricts columns the typed fields do not cover.
type InventorySearchRequest struct {
	inventory.Query
	Filter map[string]interface{} `json:"filter,omitempty"`
}

// InventoryLoadRequest is the body of POST /api/v1/inventory
type InventoryLoadRequest struct {
	Vehicles []*models.InventoryRecord `json:"vehicles" validate:"required,min=1"`
}

// InventoryLoadResponse reports how many vehicles were stored
type InventoryLoadResponse struct {
	Stored int `json:"stored"`
}

// InventoryHandler handles inventory requests
type InventoryHandler struct {
	service InventoryService
	logger  *zap.Logger
}

// NewInventoryHandler creates a new InventoryHandler
func NewInventoryHandler(service InventoryService, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{
		service: service,
		logger:  logger,
	}
}

// HandleSearch handles POST /api/v1/inventory/search
func (h *InventoryHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithContext(r.Context(), h.logger)

	var req InventorySearchRequest
	if !decodeRequest(w, r, &req, logger) {
		return
	}
	extra, err := parseFilter(req.Filter)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}
	q := req.Query
	q.Extra = extra

	resp, err := h.service.Search(r.Context(), q)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	logger.Debug("inventory search served",
		zap.Int("count", resp.Count),
		zap.Int("estimated_tokens", resp.TotalTokens))
	_ = utils.WriteOK(w, resp)
}

// HandleLoad handles POST /api/v1/inventory
func (h *InventoryHandler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithContext(r.Context(), h.logger)

	var req InventoryLoadRequest
	if !decodeRequest(w, r, &req, logger) {
		return
	}

	if err := h.service.InsertVehicles(r.Context(), req.Vehicles); err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	logger.Info("inventory loaded", zap.Int("vehicles", len(req.Vehicles)))
	_ = utils.WriteCreated(w, InventoryLoadResponse{Stored: len(req.Vehicles)})
}
