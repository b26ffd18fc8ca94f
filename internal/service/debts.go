package service

import (
	"context"
	"strings"
	"time"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/store"
)

// ListDebts returns debts with the derived OVERDUE status materialized on the
// returned copies. The optional status filter matches the effective status,
// so filtering by OVERDUE works even though it is never stored.
func (s *Service) ListDebts(ctx context.Context, storeID string, status domain.DebtStatus, limit int) ([]domain.Debt, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	storeID, err = authorizeStore(actor, storeID)
	if err != nil {
		return nil, err
	}

	debts, err := s.repo.ListDebts(ctx, storeID, limit)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	filtered := make([]domain.Debt, 0, len(debts))
	for _, debt := range debts {
		debt.Status = debt.EffectiveStatus(now)
		if status != "" && debt.Status != status {
			continue
		}
		filtered = append(filtered, debt)
	}
	return filtered, nil
}

func (s *Service) GetDebt(ctx context.Context, debtID string) (*domain.DebtDetailResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	debt, err := s.repo.GetDebtByID(ctx, debtID)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeStore(actor, debt.StoreID); err != nil {
		return nil, err
	}

	payments, err := s.repo.ListDebtPayments(ctx, debtID)
	if err != nil {
		return nil, err
	}

	detail := *debt
	detail.Status = detail.EffectiveStatus(time.Now().UTC())
	return &domain.DebtDetailResponse{Debt: detail, Payments: payments}, nil
}

func (s *Service) AddDebtPayment(ctx context.Context, debtID string, req domain.DebtPaymentRequest) (*domain.DebtPaymentResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	debt, err := s.repo.GetDebtByID(ctx, debtID)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeStore(actor, debt.StoreID); err != nil {
		return nil, err
	}

	if !req.Amount.IsPositive() {
		return nil, store.ErrValidation
	}
	paymentType := req.PaymentType
	if paymentType == "" {
		paymentType = "cash"
	}
	if !isSupportedPaymentType(paymentType) {
		return nil, store.ErrValidation
	}

	payment, updated, err := s.repo.AddDebtPayment(ctx, domain.DebtPayment{
		DebtID:      debtID,
		Amount:      req.Amount,
		PaymentType: paymentType,
		Notes:       strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, debt.StoreID)
	s.logger.Infow("debt payment recorded",
		"debt_id", debtID,
		"store_id", debt.StoreID,
		"amount", payment.Amount,
		"status", updated.Status,
	)

	result := *updated
	result.Status = result.EffectiveStatus(time.Now().UTC())
	return &domain.DebtPaymentResponse{Payment: *payment, Debt: result}, nil
}

func (s *Service) UpdateDebt(ctx context.Context, debtID string, req domain.DebtUpdateRequest) (*domain.Debt, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	debt, err := s.repo.GetDebtByID(ctx, debtID)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeStore(actor, debt.StoreID); err != nil {
		return nil, err
	}
	return s.updateDebt(ctx, debtID, req)
}

func (s *Service) updateDebt(ctx context.Context, debtID string, req domain.DebtUpdateRequest) (*domain.Debt, error) {
	var dueDate *time.Time
	if req.DueDate != nil {
		parsed, err := time.ParseInLocation(dueDateLayout, *req.DueDate, time.UTC)
		if err != nil {
			return nil, store.ErrValidation
		}
		dueDate = &parsed
	}

	updated, err := s.repo.UpdateDebtMetadata(ctx, debtID, req.ClientName, req.ClientPhone, req.Notes, dueDate, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	result := *updated
	result.Status = result.EffectiveStatus(time.Now().UTC())
	return &result, nil
}
