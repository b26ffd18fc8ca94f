package service

import (
	"context"
	"strings"
	"time"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/store"
	"warungpos/backend/internal/xid"
)

func (s *Service) ApplyStockMovement(ctx context.Context, req domain.StockMovementRequest) (*domain.StockMovement, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if req.ProductID == "" {
		return nil, store.ErrValidation
	}
	product, err := s.repo.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeStore(actor, product.StoreID); err != nil {
		return nil, err
	}
	return s.applyMovement(ctx, actor, product.StoreID, req)
}

// applyMovement is shared by the online endpoint and the offline reconciler;
// the store scope has already been authorized by the caller.
func (s *Service) applyMovement(ctx context.Context, actor domain.Actor, storeID string, req domain.StockMovementRequest) (*domain.StockMovement, error) {
	if req.ID != "" && !xid.Valid(req.ID) {
		return nil, store.ErrValidation
	}

	var signedDelta int
	switch req.Type {
	case domain.MovementIn:
		if req.Quantity <= 0 {
			return nil, store.ErrValidation
		}
		signedDelta = req.Quantity
	case domain.MovementOut, domain.MovementTransfer:
		if req.Quantity <= 0 {
			return nil, store.ErrValidation
		}
		signedDelta = -req.Quantity
	case domain.MovementAdjustment:
		if req.SignedDelta == 0 {
			return nil, store.ErrValidation
		}
		signedDelta = req.SignedDelta
	default:
		return nil, store.ErrValidation
	}

	movement := domain.StockMovement{
		ID:          req.ID,
		ProductID:   req.ProductID,
		UserID:      actor.Username,
		StoreID:     storeID,
		Type:        req.Type,
		SignedDelta: signedDelta,
		Reason:      strings.TrimSpace(req.Reason),
		Reference:   strings.TrimSpace(req.Reference),
	}
	if req.UnitPrice != nil {
		if req.UnitPrice.IsNegative() {
			return nil, store.ErrValidation
		}
		movement.UnitPrice = *req.UnitPrice
	}

	applied, err := s.repo.ApplyMovement(ctx, movement, req.Force)
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, storeID)
	s.logger.Infow("stock movement applied",
		"movement_id", applied.ID,
		"store_id", storeID,
		"product_id", applied.ProductID,
		"type", applied.Type,
		"signed_delta", applied.SignedDelta,
		"new_stock", applied.NewStock,
	)
	return applied, nil
}

// BulkAdjustStock reconciles a physical count: every listed product is set to
// its counted level, recording an ADJUSTMENT movement per changed product.
func (s *Service) BulkAdjustStock(ctx context.Context, req domain.BulkAdjustRequest) (*domain.BulkAdjustResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	storeID, err := authorizeStore(actor, req.StoreID)
	if err != nil {
		return nil, err
	}
	if storeID == "" || len(req.Adjustments) == 0 {
		return nil, store.ErrValidation
	}
	for _, adj := range req.Adjustments {
		if adj.ProductID == "" || adj.NewStock < 0 {
			return nil, store.ErrValidation
		}
	}

	movements, err := s.repo.BulkAdjust(ctx, storeID, actor.Username, req.Adjustments, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, storeID)
	s.logger.Infow("bulk stock adjustment",
		"store_id", storeID,
		"requested", len(req.Adjustments),
		"changed", len(movements),
	)

	changed := make(map[string]bool, len(movements))
	for _, m := range movements {
		changed[m.ProductID] = true
	}
	skipped := make([]string, 0)
	for _, adj := range req.Adjustments {
		if !changed[adj.ProductID] {
			skipped = append(skipped, adj.ProductID)
		}
	}

	return &domain.BulkAdjustResponse{Movements: movements, Skipped: skipped}, nil
}

func (s *Service) ListStockMovements(ctx context.Context, storeID string, productID string, limit int) ([]domain.StockMovement, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	storeID, err = authorizeStore(actor, storeID)
	if err != nil {
		return nil, err
	}
	if productID != "" {
		product, err := s.repo.GetProductByID(ctx, productID)
		if err != nil {
			return nil, err
		}
		if _, err := authorizeStore(actor, product.StoreID); err != nil {
			return nil, err
		}
	}
	return s.repo.ListMovements(ctx, storeID, productID, limit)
}
