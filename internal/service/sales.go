package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/store"
	"warungpos/backend/internal/xid"
)

const dueDateLayout = "2006-01-02"

func isSupportedPaymentType(paymentType string) bool {
	switch paymentType {
	case "cash", "transfer", "qris":
		return true
	default:
		return false
	}
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (*domain.SaleResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	storeID, err := authorizeStore(actor, req.StoreID)
	if err != nil {
		return nil, err
	}
	if storeID == "" {
		return nil, store.ErrValidation
	}
	return s.createSale(ctx, actor, storeID, req)
}

// createSale is shared by the online endpoint and the offline reconciler; the
// store scope has already been authorized by the caller.
func (s *Service) createSale(ctx context.Context, actor domain.Actor, storeID string, req domain.SaleCreateRequest) (*domain.SaleResponse, error) {
	if req.ProductID == "" || req.Quantity <= 0 {
		return nil, store.ErrValidation
	}
	if req.SaleType != domain.SaleTypeUnit && req.SaleType != domain.SaleTypePackage {
		return nil, store.ErrValidation
	}
	if req.ID != "" && !xid.Valid(req.ID) {
		return nil, store.ErrValidation
	}

	paymentType := req.PaymentType
	if paymentType == "" {
		paymentType = "cash"
	}
	if !isSupportedPaymentType(paymentType) {
		return nil, store.ErrValidation
	}

	sale := domain.Sale{
		ID:          req.ID,
		ProductID:   req.ProductID,
		SellerID:    actor.Username,
		StoreID:     storeID,
		Quantity:    req.Quantity,
		SaleType:    req.SaleType,
		PaymentType: paymentType,
		IsDebt:      req.IsDebt,
		ClientName:  strings.TrimSpace(req.ClientName),
		ClientPhone: strings.TrimSpace(req.ClientPhone),
		Notes:       strings.TrimSpace(req.Notes),
	}

	var debt *domain.Debt
	if req.IsDebt {
		debt = &domain.Debt{
			StoreID:     storeID,
			ClientName:  sale.ClientName,
			ClientPhone: sale.ClientPhone,
			Notes:       sale.Notes,
		}
		if req.DueDate != "" {
			dueDate, err := time.ParseInLocation(dueDateLayout, req.DueDate, time.UTC)
			if err != nil {
				return nil, store.ErrValidation
			}
			debt.DueDate = dueDate
		}
	}

	createdSale, createdDebt, err := s.repo.CreateSale(ctx, sale, debt)
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, storeID)
	s.logger.Infow("sale recorded",
		"sale_id", createdSale.ID,
		"store_id", storeID,
		"product_id", createdSale.ProductID,
		"quantity", createdSale.Quantity,
		"sale_type", createdSale.SaleType,
		"is_debt", createdSale.IsDebt,
	)

	return &domain.SaleResponse{Sale: *createdSale, Debt: createdDebt}, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (*domain.SaleResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeStore(actor, sale.StoreID); err != nil {
		return nil, err
	}

	debt, err := s.repo.GetDebtBySaleID(ctx, saleID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return &domain.SaleResponse{Sale: *sale, Debt: debt}, nil
}

func (s *Service) ListSales(ctx context.Context, storeID string, limit int) ([]domain.Sale, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	storeID, err = authorizeStore(actor, storeID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, storeID, limit)
}

func (s *Service) UpdateSale(ctx context.Context, saleID string, req domain.SaleUpdateRequest) (*domain.Sale, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeStore(actor, sale.StoreID); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateSaleMetadata(ctx, saleID, req, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CancelSale voids a sale, restores the consumed stock and removes an unpaid
// attached debt. A debt that already received payments blocks the cancel.
func (s *Service) CancelSale(ctx context.Context, saleID string, reason string) (*domain.Sale, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeStore(actor, sale.StoreID); err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Sale cancelled"
	}

	cancelled, restore, err := s.repo.CancelSale(ctx, saleID, actor.Username, reason, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, sale.StoreID)
	s.logger.Infow("sale cancelled",
		"sale_id", saleID,
		"store_id", sale.StoreID,
		"restored_units", restore.Quantity,
	)
	return cancelled, nil
}
