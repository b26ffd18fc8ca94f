package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/store"
	"warungpos/backend/internal/xid"
)

type debtSyncPayload struct {
	SaleID      string `json:"sale_id"`
	ClientName  string `json:"client_name,omitempty"`
	ClientPhone string `json:"client_phone,omitempty"`
	Notes       string `json:"notes,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

// PushSync replays a batch of offline changes. Every item is journaled in the
// sync queue and applied independently: one bad item fails on its own and the
// rest of the batch still lands.
func (s *Service) PushSync(ctx context.Context, req domain.SyncPushRequest) (*domain.SyncPushResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if len(req.Items) == 0 || len(req.Items) > s.syncPushLimit {
		return nil, store.ErrValidation
	}

	results := make([]domain.SyncResult, 0, len(req.Items))
	for _, item := range req.Items {
		results = append(results, s.processSyncItem(ctx, actor, item))
	}

	s.logger.Infow("sync push processed", "user", actor.Username, "items", len(req.Items))
	return &domain.SyncPushResponse{Results: results}, nil
}

func (s *Service) processSyncItem(ctx context.Context, actor domain.Actor, item domain.SyncItem) domain.SyncResult {
	result := domain.SyncResult{ItemID: item.ID, RecordID: item.RecordID, Status: domain.SyncStatusFailed}

	if err := validateSyncItem(item); err != nil {
		result.Error = err.Error()
		return result
	}

	queued, err := s.repo.EnqueueSyncItem(ctx, domain.SyncQueueItem{
		ID:              item.ID,
		UserID:          actor.Username,
		StoreID:         actor.StoreID,
		Action:          item.Action,
		TableName:       item.TableName,
		RecordID:        item.RecordID,
		Data:            item.Data,
		ClientTimestamp: item.ClientTimestamp,
		Status:          domain.SyncStatusPending,
		MaxAttempts:     domain.SyncMaxAttempts,
	})
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.ItemID = queued.ID

	// A replayed item that already completed is acknowledged without
	// re-applying; one that exhausted its attempts stays failed.
	if queued.Status == domain.SyncStatusCompleted {
		result.Status = domain.SyncStatusCompleted
		return result
	}
	if queued.Status == domain.SyncStatusFailed && queued.Attempts >= queued.MaxAttempts {
		result.Error = "max sync attempts exceeded"
		return result
	}

	return s.runSyncItem(ctx, *queued)
}

// runSyncItem drives one queued item through processing -> completed | failed.
func (s *Service) runSyncItem(ctx context.Context, item domain.SyncQueueItem) domain.SyncResult {
	result := domain.SyncResult{ItemID: item.ID, RecordID: item.RecordID, Status: domain.SyncStatusFailed}

	if err := s.repo.MarkSyncItem(ctx, item.ID, domain.SyncStatusProcessing, "", time.Now().UTC()); err != nil {
		result.Error = err.Error()
		return result
	}

	applied, err := s.applySyncItem(ctx, item)
	if err != nil {
		// A lost failed-mark skips the attempt increment, so surface it.
		if markErr := s.repo.MarkSyncItem(ctx, item.ID, domain.SyncStatusFailed, err.Error(), time.Now().UTC()); markErr != nil {
			s.logger.Errorw("mark sync item failed", "item_id", item.ID, "status", domain.SyncStatusFailed, "error", markErr)
		}
		s.logger.Warnw("sync item failed",
			"item_id", item.ID,
			"table", item.TableName,
			"action", item.Action,
			"error", err,
		)
		result.Error = err.Error()
		return result
	}

	// The domain write already landed; a lost completed-mark leaves the item
	// in processing, where a replay of the same item re-marks it.
	if markErr := s.repo.MarkSyncItem(ctx, item.ID, domain.SyncStatusCompleted, "", time.Now().UTC()); markErr != nil {
		s.logger.Errorw("mark sync item failed", "item_id", item.ID, "status", domain.SyncStatusCompleted, "error", markErr)
	}
	result.Status = domain.SyncStatusCompleted
	result.Applied = applied
	return result
}

func validateSyncItem(item domain.SyncItem) error {
	if item.RecordID == "" {
		return fmt.Errorf("record id required")
	}
	if !xid.Valid(item.RecordID) {
		return fmt.Errorf("malformed record id %q", item.RecordID)
	}

	supported := false
	switch item.TableName {
	case domain.SyncTableProducts:
		supported = item.Action == domain.SyncActionCreate ||
			item.Action == domain.SyncActionUpdate ||
			item.Action == domain.SyncActionDelete
	case domain.SyncTableSales:
		supported = item.Action == domain.SyncActionCreate || item.Action == domain.SyncActionUpdate
	case domain.SyncTableStockMovements:
		supported = item.Action == domain.SyncActionCreate
	case domain.SyncTableDebts:
		supported = item.Action == domain.SyncActionCreate || item.Action == domain.SyncActionUpdate
	}
	if !supported {
		return fmt.Errorf("unsupported sync operation %s/%s", item.TableName, item.Action)
	}
	return nil
}

// applySyncItem dispatches one queued change to the regular service paths, so
// offline writes obey the same validation, scoping and ledger rules as online
// ones.
func (s *Service) applySyncItem(ctx context.Context, item domain.SyncQueueItem) (json.RawMessage, error) {
	switch item.TableName {
	case domain.SyncTableProducts:
		switch item.Action {
		case domain.SyncActionCreate:
			var req domain.ProductCreateRequest
			if err := json.Unmarshal(item.Data, &req); err != nil {
				return nil, fmt.Errorf("decode product payload: %w", err)
			}
			req.ID = item.RecordID
			product, err := s.CreateProduct(ctx, req)
			if err != nil {
				return nil, err
			}
			return json.Marshal(product)
		case domain.SyncActionUpdate:
			var req domain.ProductUpdateRequest
			if err := json.Unmarshal(item.Data, &req); err != nil {
				return nil, fmt.Errorf("decode product payload: %w", err)
			}
			product, err := s.UpdateProduct(ctx, item.RecordID, req)
			if err != nil {
				return nil, err
			}
			return json.Marshal(product)
		default:
			if err := s.DeleteProduct(ctx, item.RecordID); err != nil {
				return nil, err
			}
			return nil, nil
		}

	case domain.SyncTableSales:
		if item.Action == domain.SyncActionCreate {
			var req domain.SaleCreateRequest
			if err := json.Unmarshal(item.Data, &req); err != nil {
				return nil, fmt.Errorf("decode sale payload: %w", err)
			}
			req.ID = item.RecordID
			resp, err := s.CreateSale(ctx, req)
			if err != nil {
				return nil, err
			}
			return json.Marshal(resp)
		}
		var req domain.SaleUpdateRequest
		if err := json.Unmarshal(item.Data, &req); err != nil {
			return nil, fmt.Errorf("decode sale payload: %w", err)
		}
		sale, err := s.UpdateSale(ctx, item.RecordID, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(sale)

	case domain.SyncTableStockMovements:
		var req domain.StockMovementRequest
		if err := json.Unmarshal(item.Data, &req); err != nil {
			return nil, fmt.Errorf("decode movement payload: %w", err)
		}
		req.ID = item.RecordID
		movement, err := s.ApplyStockMovement(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(movement)

	case domain.SyncTableDebts:
		if item.Action == domain.SyncActionCreate {
			return s.applyDebtCreate(ctx, item)
		}
		var req domain.DebtUpdateRequest
		if err := json.Unmarshal(item.Data, &req); err != nil {
			return nil, fmt.Errorf("decode debt payload: %w", err)
		}
		debt, err := s.UpdateDebt(ctx, item.RecordID, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(debt)
	}

	return nil, fmt.Errorf("unsupported sync table %s", item.TableName)
}

func (s *Service) applyDebtCreate(ctx context.Context, item domain.SyncQueueItem) (json.RawMessage, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}

	var payload debtSyncPayload
	if err := json.Unmarshal(item.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode debt payload: %w", err)
	}
	if payload.SaleID == "" {
		return nil, store.ErrValidation
	}

	sale, err := s.repo.GetSaleByID(ctx, payload.SaleID)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeStore(actor, sale.StoreID); err != nil {
		return nil, err
	}

	debt := domain.Debt{
		ID:          item.RecordID,
		SaleID:      payload.SaleID,
		ClientName:  payload.ClientName,
		ClientPhone: payload.ClientPhone,
		Notes:       payload.Notes,
	}
	if payload.DueDate != "" {
		dueDate, err := time.ParseInLocation(dueDateLayout, payload.DueDate, time.UTC)
		if err != nil {
			return nil, store.ErrValidation
		}
		debt.DueDate = dueDate
	}

	created, err := s.repo.CreateDebt(ctx, debt)
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, sale.StoreID)
	return json.Marshal(created)
}

// PullSync returns server-side changes for the caller's store since the given
// checkpoint, capped at the pull batch limit. The returned timestamp and last
// record id form the compound cursor for the next pull; rows sharing one
// updated_at past the page cut are reached through the record id tiebreak.
func (s *Service) PullSync(ctx context.Context, storeID string, since time.Time, sinceID string) (*domain.SyncPullResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	storeID, err = authorizeStore(actor, storeID)
	if err != nil {
		return nil, err
	}

	changes, err := s.repo.PullChanges(ctx, storeID, since, sinceID, s.syncPullLimit+1)
	if err != nil {
		return nil, err
	}

	hasMore := false
	if len(changes) > s.syncPullLimit {
		changes = changes[:s.syncPullLimit]
		hasMore = true
	}

	timestamp := time.Now().UTC()
	lastID := ""
	if len(changes) > 0 {
		last := changes[len(changes)-1]
		timestamp = last.UpdatedAt
		lastID = last.RecordID
	}

	return &domain.SyncPullResponse{
		Changes:   changes,
		Timestamp: timestamp,
		LastID:    lastID,
		HasMore:   hasMore,
	}, nil
}

// RetryFailedSync requeues the caller's failed items that still have attempts
// left and runs them again.
func (s *Service) RetryFailedSync(ctx context.Context) (*domain.SyncPushResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.RequeueFailedSyncItems(ctx, actor.Username, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	results := make([]domain.SyncResult, 0, len(items))
	for _, item := range items {
		results = append(results, s.runSyncItem(ctx, item))
	}

	s.logger.Infow("sync retry processed", "user", actor.Username, "items", len(items))
	return &domain.SyncPushResponse{Results: results}, nil
}

func (s *Service) ListSyncQueue(ctx context.Context, status domain.SyncStatus, limit int) ([]domain.SyncQueueItem, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	userID := actor.Username
	if actor.IsAdmin() {
		userID = ""
	}
	return s.repo.ListSyncItems(ctx, userID, status, limit)
}
