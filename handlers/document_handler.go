package handlers

import (
	"net/http"

	"github.com/upb/inventory-retrieval/internal/observability"
	"github.com/upb/inventory-retrieval/services/documents"
	"github.com/upb/inventory-retrieval/utils"
	"go.uber.org/zap"
)

// AddDocumentsRequest is the body of POST /api/v1/documents
type AddDocumentsRequest struct {
	Documents []documents.Input `json:"documents" validate:"required,min=1,dive"`
}

// DocumentHandler handles document loading
type DocumentHandler struct {
	service DocumentService
	logger  *zap.Logger
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(service DocumentService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		logger:  logger,
	}
}

// HandleAdd handles POST /api/v1/documents
func (h *DocumentHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithContext(r.Context(), h.logger)

	var req AddDocumentsRequest
	if !decodeRequest(w, r, &req, logger) {
		return
	}

	result, err := h.service.AddDocuments(r.Context(), req.Documents)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if len(result.Failed) > 0 {
		logger.Warn("some documents were not embedded",
			zap.Int("stored", result.Stored),
			zap.Int("failed", len(result.Failed)))
	}
	_ = utils.WriteCreated(w, result)
}
