// Package inventory answers wide, multi-field inventory queries capped by an
// estimated token budget.
package inventory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/inventory-retrieval/internal/filter"
	"github.com/upb/inventory-retrieval/internal/observability"
	"github.com/upb/inventory-retrieval/models"
	"github.com/upb/inventory-retrieval/repositories"
	"github.com/upb/inventory-retrieval/services"
)

// Service runs budgeted inventory searches
type Service struct {
	repo         repositories.InventoryRepository
	txManager    repositories.TransactionManager
	defaultLimit int
	logger       *zap.Logger
}

// NewService creates an inventory service. defaultLimit applies when a query
// carries no context limit.
func NewService(repo repositories.InventoryRepository, txManager repositories.TransactionManager, defaultLimit int, logger *zap.Logger) *Service {
	return &Service{
		repo:         repo,
		txManager:    txManager,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

// Spec compiles the typed query fields into a filter.Spec. A field set both
// as a typed field and in Extra is rejected so each column gets one clause.
func (q *Query) Spec() (filter.Spec, error) {
	spec := filter.Spec{}
	pattern := func(column, v string) {
		if v != "" {
			spec[column] = filter.Pattern(v)
		}
	}

	if q.VIN != "" {
		spec["vin"] = filter.Equals(q.VIN)
	}
	pattern("stock_number", q.StockNumber)
	pattern("type", q.VehicleType)
	if q.Year != nil {
		spec["year"] = filter.Equals(*q.Year)
	}
	pattern("make", q.Make)
	pattern("model", q.Model)
	pattern("trim", q.Trim)
	pattern("style", q.Style)
	pattern("exterior_color", q.ExteriorColor)
	pattern("interior_color", q.InteriorColor)
	if q.Certified != nil {
		spec["certified"] = filter.Equals(*q.Certified)
	}
	if q.MinPrice != nil || q.MaxPrice != nil {
		var lo, hi any
		if q.MinPrice != nil {
			lo = *q.MinPrice
		}
		if q.MaxPrice != nil {
			hi = *q.MaxPrice
		}
		spec["selling_price"] = filter.Range(lo, hi)
	}
	pattern("fuel_type", q.FuelType)
	pattern("transmission", q.Transmission)
	pattern("drive_type", q.DriveType)
	if q.Doors != nil {
		spec["doors"] = filter.Equals(*q.Doors)
	}
	pattern("engine_type", q.EngineType)
	pattern("features", q.Features)
	pattern("packages", q.Packages)
	pattern("description", q.Description)
	pattern("options", q.Options)

	for field, v := range q.Extra {
		if _, dup := spec[field]; dup {
			return nil, services.Validation("field %q is restricted twice", field)
		}
		spec[field] = v
	}
	return spec, nil
}

// Search returns the longest date_in_stock ordered prefix of matching records
// whose estimated token total fits the context limit. A zero or negative limit
// yields no records.
func (s *Service) Search(ctx context.Context, q Query) (resp *Response, err error) {
	start := time.Now()
	defer func() {
		n := 0
		if resp != nil {
			n = resp.Count
			observability.InventoryTokensReturned.Observe(float64(resp.TotalTokens))
		}
		observability.ObserveSearch(observability.PathInventory, start, n, err)
	}()

	if unknown := models.UnknownColumns(q.Fields); len(unknown) > 0 {
		return nil, services.Wrap(services.ErrUnknownColumn, nil).WithDetail("fields", unknown)
	}

	limit := s.defaultLimit
	if q.ContextLimit != nil {
		limit = *q.ContextLimit
	}

	spec, err := q.Spec()
	if err != nil {
		return nil, err
	}

	s.logger.Debug("inventory search",
		zap.Int("context_limit", limit),
		zap.Strings("filter_fields", spec.Fields()),
		zap.Strings("projection", q.Fields))

	records, err := s.repo.SearchWithinBudget(ctx, spec, limit)
	if err != nil {
		if derr := services.FromFilterError(err); derr != nil {
			return nil, derr
		}
		s.logger.Error("inventory search failed", zap.Error(err))
		return nil, services.WrapStorage("inventory search failed", err)
	}

	resp = &Response{
		Data:         make([]map[string]interface{}, 0, len(records)),
		ContextLimit: limit,
	}
	for _, r := range records {
		resp.Data = append(resp.Data, r.Record.Project(q.Fields))
		resp.TotalTokens += r.EstimatedTokens
	}
	resp.Count = len(resp.Data)
	return resp, nil
}

// InsertVehicles stores records in one transaction, replacing rows with the same VIN.
func (s *Service) InsertVehicles(ctx context.Context, records []*models.InventoryRecord) error {
	for i, r := range records {
		if r == nil || r.VIN == nil || *r.VIN == "" {
			return services.Validation("record %d has no vin", i)
		}
	}

	return services.WithTransaction(ctx, s.txManager, func(ctx context.Context, tx repositories.Transaction) error {
		repo := s.repo.WithTx(tx)
		for _, r := range records {
			if err := repo.Insert(ctx, r); err != nil {
				return services.WrapStorage(fmt.Sprintf("failed to insert vehicle %s", *r.VIN), err)
			}
		}
		s.logger.Info("vehicles inserted", zap.Int("count", len(records)))
		return nil
	})
}
