package store

import (
	"context"
	"errors"
	"time"

	"warungpos/backend/internal/domain"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrValidation              = errors.New("validation failed")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrPaymentExceedsRemaining = errors.New("payment exceeds remaining debt")
	ErrConflict                = errors.New("conflict")
)

type Repository interface {
	CreateStore(ctx context.Context, s domain.Store) (*domain.Store, error)
	GetStoreByID(ctx context.Context, storeID string) (*domain.Store, error)
	ListStores(ctx context.Context) ([]domain.Store, error)
	DeactivateStore(ctx context.Context, storeID string, at time.Time) (*domain.Store, error)

	// CreateProduct persists the product and, when initialMovement is set,
	// the opening IN movement in the same transaction.
	CreateProduct(ctx context.Context, product domain.Product, initialMovement *domain.StockMovement) (*domain.Product, error)
	GetProductByID(ctx context.Context, productID string) (*domain.Product, error)
	ListProducts(ctx context.Context, storeID string, activeOnly bool) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	// ApplyMovement locks the product row, fills PreviousStock/NewStock,
	// appends the movement and updates the stored stock level atomically.
	// A movement that would drive stock negative fails with
	// ErrInsufficientStock unless force is set, in which case the recorded
	// delta is clamped so the ledger still sums to the stored level.
	ApplyMovement(ctx context.Context, movement domain.StockMovement, force bool) (*domain.StockMovement, error)
	// BulkAdjust sets each product to its target stock in one transaction,
	// recording an ADJUSTMENT movement per non-zero delta. The whole batch
	// fails if any product is missing or belongs to another store.
	BulkAdjust(ctx context.Context, storeID string, userID string, adjustments []domain.StockAdjustment, at time.Time) ([]domain.StockMovement, error)
	ListMovements(ctx context.Context, storeID string, productID string, limit int) ([]domain.StockMovement, error)

	// CreateSale prices the sale against the locked product row, verifies
	// stock, and inserts the sale, its OUT movement and the optional debt
	// in one transaction. A duplicate sale id returns the existing rows.
	CreateSale(ctx context.Context, sale domain.Sale, debt *domain.Debt) (*domain.Sale, *domain.Debt, error)
	GetSaleByID(ctx context.Context, saleID string) (*domain.Sale, error)
	ListSales(ctx context.Context, storeID string, limit int) ([]domain.Sale, error)
	UpdateSaleMetadata(ctx context.Context, saleID string, update domain.SaleUpdateRequest, at time.Time) (*domain.Sale, error)
	// CancelSale deactivates the sale and restores its stock with an IN
	// movement. Sales whose debt already has payments cannot be cancelled.
	CancelSale(ctx context.Context, saleID string, userID string, reason string, at time.Time) (*domain.Sale, *domain.StockMovement, error)

	// CreateDebt attaches a debt to an existing sale. A sale can carry at
	// most one debt; a second attempt fails with ErrConflict.
	CreateDebt(ctx context.Context, debt domain.Debt) (*domain.Debt, error)
	GetDebtByID(ctx context.Context, debtID string) (*domain.Debt, error)
	GetDebtBySaleID(ctx context.Context, saleID string) (*domain.Debt, error)
	ListDebts(ctx context.Context, storeID string, limit int) ([]domain.Debt, error)
	// AddDebtPayment locks the debt row, rejects amounts over the remaining
	// balance, and appends the payment while recomputing paid/remaining and
	// status in the same transaction.
	AddDebtPayment(ctx context.Context, payment domain.DebtPayment) (*domain.DebtPayment, *domain.Debt, error)
	ListDebtPayments(ctx context.Context, debtID string) ([]domain.DebtPayment, error)
	UpdateDebtMetadata(ctx context.Context, debtID string, clientName, clientPhone, notes *string, dueDate *time.Time, at time.Time) (*domain.Debt, error)

	EnqueueSyncItem(ctx context.Context, item domain.SyncQueueItem) (*domain.SyncQueueItem, error)
	MarkSyncItem(ctx context.Context, itemID string, status domain.SyncStatus, lastError string, at time.Time) error
	ListSyncItems(ctx context.Context, userID string, status domain.SyncStatus, limit int) ([]domain.SyncQueueItem, error)
	// RequeueFailedSyncItems transitions failed items with remaining
	// attempts back to pending in a single atomic statement and returns
	// the requeued items.
	RequeueFailedSyncItems(ctx context.Context, userID string, at time.Time) ([]domain.SyncQueueItem, error)
	// PullChanges pages changed rows ordered by (updated_at, record_id).
	// The (since, sinceID) pair is a compound cursor: rows strictly after
	// it are returned, so ties on updated_at never skip rows across pages.
	PullChanges(ctx context.Context, storeID string, since time.Time, sinceID string, limit int) ([]domain.SyncChange, error)

	GetSaleFacts(ctx context.Context, storeID string, from, to time.Time) ([]domain.SaleFact, error)
	GetDebtSummary(ctx context.Context, storeID string) (domain.DebtSummary, error)
	CountLowStock(ctx context.Context, storeID string) (int, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
