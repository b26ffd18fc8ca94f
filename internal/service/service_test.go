package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"warungpos/backend/internal/cache"
	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/report"
	"warungpos/backend/internal/store"
	"warungpos/backend/internal/store/memory"
	"warungpos/backend/internal/xid"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	reports := report.NewEngine(cache.NoopStatsCache{}, 5*time.Second)
	return New(repo, reports, nil)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func sellerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "seller", Role: domain.RoleSeller, StoreID: "store-main"})
}

func TestCreateSaleUnitDecrementsStock(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	before, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)

	resp, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		ProductID: "prod-telur",
		Quantity:  3,
		SaleType:  domain.SaleTypeUnit,
	})
	require.NoError(t, err)
	require.Nil(t, resp.Debt)
	require.Equal(t, "cash", resp.Sale.PaymentType)
	require.True(t, resp.Sale.UnitPrice.Equal(before.UnitSalePrice))
	require.True(t, resp.Sale.TotalAmount.Equal(before.UnitSalePrice.Mul(decimal.NewFromInt(3))))

	after, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)
	require.Equal(t, before.CurrentStock-3, after.CurrentStock)
}

func TestCreateSalePackageConsumesPackageUnits(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	before, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)

	resp, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		ProductID: "prod-telur",
		Quantity:  2,
		SaleType:  domain.SaleTypePackage,
	})
	require.NoError(t, err)
	require.True(t, resp.Sale.UnitPrice.Equal(before.PackageSalePrice))
	require.True(t, resp.Sale.TotalAmount.Equal(before.PackageSalePrice.Mul(decimal.NewFromInt(2))))

	after, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)
	require.Equal(t, before.CurrentStock-2*before.UnitsPerPackage, after.CurrentStock)
}

func TestCreateSaleRecordsOutMovement(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	resp, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		ProductID: "prod-telur",
		Quantity:  4,
		SaleType:  domain.SaleTypeUnit,
	})
	require.NoError(t, err)

	movements, err := svc.ListStockMovements(ctx, "store-main", "prod-telur", 50)
	require.NoError(t, err)

	var out *domain.StockMovement
	for i := range movements {
		if movements[i].Reference == resp.Sale.ID {
			out = &movements[i]
			break
		}
	}
	require.NotNil(t, out, "expected an OUT movement referencing the sale")
	require.Equal(t, domain.MovementOut, out.Type)
	require.Equal(t, 4, out.Quantity)
	require.Equal(t, -4, out.SignedDelta)
	require.Equal(t, out.PreviousStock-4, out.NewStock)
}

func TestCreateSaleInsufficientStockIsAtomic(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	before, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)
	movementsBefore, err := svc.ListStockMovements(ctx, "store-main", "prod-telur", 100)
	require.NoError(t, err)

	_, err = svc.CreateSale(ctx, domain.SaleCreateRequest{
		ProductID: "prod-telur",
		Quantity:  before.CurrentStock + 1,
		SaleType:  domain.SaleTypeUnit,
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	after, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)
	require.Equal(t, before.CurrentStock, after.CurrentStock)

	movementsAfter, err := svc.ListStockMovements(ctx, "store-main", "prod-telur", 100)
	require.NoError(t, err)
	require.Len(t, movementsAfter, len(movementsBefore))

	sales, err := svc.ListSales(ctx, "store-main", 100)
	require.NoError(t, err)
	require.Empty(t, sales)
}

func TestCreateSaleIdempotentOnClientID(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	before, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)

	req := domain.SaleCreateRequest{
		ID:        xid.New("sale"),
		ProductID: "prod-telur",
		Quantity:  5,
		SaleType:  domain.SaleTypeUnit,
	}
	first, err := svc.CreateSale(ctx, req)
	require.NoError(t, err)

	second, err := svc.CreateSale(ctx, req)
	require.NoError(t, err)
	require.Equal(t, first.Sale.ID, second.Sale.ID)

	after, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)
	require.Equal(t, before.CurrentStock-5, after.CurrentStock, "replay must not consume stock twice")
}

func TestDebtSaleLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	resp, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		ProductID:  "prod-telur",
		Quantity:   10,
		SaleType:   domain.SaleTypeUnit,
		IsDebt:     true,
		ClientName: "Bu Sari",
		DueDate:    time.Now().UTC().AddDate(0, 0, 14).Format(dueDateLayout),
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Debt)

	debt := resp.Debt
	require.Equal(t, domain.DebtStatusPending, debt.Status)
	require.True(t, debt.Amount.Equal(resp.Sale.TotalAmount))
	require.True(t, debt.RemainingAmount.Equal(debt.Amount))
	require.True(t, debt.PaidAmount.IsZero())

	half := debt.Amount.Div(decimal.NewFromInt(2))
	payResp, err := svc.AddDebtPayment(ctx, debt.ID, domain.DebtPaymentRequest{Amount: half})
	require.NoError(t, err)
	require.Equal(t, domain.DebtStatusPartial, payResp.Debt.Status)
	require.True(t, payResp.Debt.RemainingAmount.Equal(debt.Amount.Sub(half)))

	_, err = svc.AddDebtPayment(ctx, debt.ID, domain.DebtPaymentRequest{Amount: debt.Amount})
	require.ErrorIs(t, err, store.ErrPaymentExceedsRemaining)

	payResp, err = svc.AddDebtPayment(ctx, debt.ID, domain.DebtPaymentRequest{Amount: payResp.Debt.RemainingAmount})
	require.NoError(t, err)
	require.Equal(t, domain.DebtStatusPaid, payResp.Debt.Status)
	require.True(t, payResp.Debt.RemainingAmount.IsZero())

	detail, err := svc.GetDebt(ctx, debt.ID)
	require.NoError(t, err)
	require.Len(t, detail.Payments, 2)
}

func TestListDebtsDerivesOverdue(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	resp, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		ProductID:  "prod-telur",
		Quantity:   2,
		SaleType:   domain.SaleTypeUnit,
		IsDebt:     true,
		ClientName: "Pak Budi",
	})
	require.NoError(t, err)

	past := time.Now().UTC().AddDate(0, 0, -5).Format(dueDateLayout)
	_, err = svc.UpdateDebt(ctx, resp.Debt.ID, domain.DebtUpdateRequest{DueDate: &past})
	require.NoError(t, err)

	overdue, err := svc.ListDebts(ctx, "store-main", domain.DebtStatusOverdue, 50)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	require.Equal(t, domain.DebtStatusOverdue, overdue[0].Status)

	// OVERDUE is derived at read time; the stored status stays PENDING.
	stored, err := svc.GetDebt(ctx, resp.Debt.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DebtStatusOverdue, stored.Debt.Status)
}

func TestCancelSaleRestoresStock(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	before, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)

	resp, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		ProductID: "prod-telur",
		Quantity:  6,
		SaleType:  domain.SaleTypeUnit,
	})
	require.NoError(t, err)

	cancelled, err := svc.CancelSale(ctx, resp.Sale.ID, "wrong item")
	require.NoError(t, err)
	require.False(t, cancelled.Active)

	after, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)
	require.Equal(t, before.CurrentStock, after.CurrentStock)

	movements, err := svc.ListStockMovements(ctx, "store-main", "prod-telur", 50)
	require.NoError(t, err)
	var restores int
	for _, m := range movements {
		if m.Reference == resp.Sale.ID && m.Type == domain.MovementIn {
			restores++
		}
	}
	require.Equal(t, 1, restores)
}

func TestCancelSaleBlockedByPaidDebt(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	resp, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		ProductID:  "prod-telur",
		Quantity:   2,
		SaleType:   domain.SaleTypeUnit,
		IsDebt:     true,
		ClientName: "Bu Rina",
	})
	require.NoError(t, err)

	_, err = svc.AddDebtPayment(ctx, resp.Debt.ID, domain.DebtPaymentRequest{Amount: decimal.NewFromInt(1000)})
	require.NoError(t, err)

	_, err = svc.CancelSale(ctx, resp.Sale.ID, "change of mind")
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestSellerConfinedToOwnStore(t *testing.T) {
	svc := newTestService()

	other, err := svc.CreateStore(adminCtx(), domain.StoreCreateRequest{Name: "Warung Cabang"})
	require.NoError(t, err)

	otherSeller := WithActor(context.Background(), domain.Actor{
		Username: "seller-2", Role: domain.RoleSeller, StoreID: other.ID,
	})

	_, err = svc.CreateSale(otherSeller, domain.SaleCreateRequest{
		ProductID: "prod-telur",
		Quantity:  1,
		SaleType:  domain.SaleTypeUnit,
	})
	require.ErrorIs(t, err, store.ErrValidation)

	_, err = svc.ListProducts(otherSeller, "store-main")
	require.ErrorIs(t, err, store.ErrUnauthorized)

	_, err = svc.GetProduct(otherSeller, "prod-telur")
	require.ErrorIs(t, err, store.ErrUnauthorized)
}

func TestApplyStockMovementForceClampsAtZero(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	product, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)

	_, err = svc.ApplyStockMovement(ctx, domain.StockMovementRequest{
		ProductID: "prod-telur",
		Type:      domain.MovementOut,
		Quantity:  product.CurrentStock + 50,
		Reason:    "Spoilage",
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	applied, err := svc.ApplyStockMovement(ctx, domain.StockMovementRequest{
		ProductID: "prod-telur",
		Type:      domain.MovementOut,
		Quantity:  product.CurrentStock + 50,
		Reason:    "Spoilage",
		Force:     true,
	})
	require.NoError(t, err)
	require.Equal(t, 0, applied.NewStock)
	require.Equal(t, -product.CurrentStock, applied.SignedDelta)

	after, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)
	require.Equal(t, 0, after.CurrentStock)
}

func TestBulkAdjustStock(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	telur, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)

	resp, err := svc.BulkAdjustStock(ctx, domain.BulkAdjustRequest{
		StoreID: "store-main",
		Adjustments: []domain.StockAdjustment{
			{ProductID: "prod-telur", NewStock: telur.CurrentStock - 7, Reason: "Stock opname"},
			{ProductID: "prod-gula", NewStock: 72, Reason: "Stock opname"},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Movements, 1, "unchanged products record no movement")
	require.Equal(t, []string{"prod-gula"}, resp.Skipped)
	require.Equal(t, domain.MovementAdjustment, resp.Movements[0].Type)
	require.Equal(t, -7, resp.Movements[0].SignedDelta)

	after, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)
	require.Equal(t, telur.CurrentStock-7, after.CurrentStock)
}

func TestBulkAdjustRejectsUnknownProduct(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	telur, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)

	_, err = svc.BulkAdjustStock(ctx, domain.BulkAdjustRequest{
		StoreID: "store-main",
		Adjustments: []domain.StockAdjustment{
			{ProductID: "prod-telur", NewStock: 1},
			{ProductID: "prod-missing", NewStock: 5},
		},
	})
	require.ErrorIs(t, err, store.ErrNotFound)

	after, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)
	require.Equal(t, telur.CurrentStock, after.CurrentStock, "failed batch must not partially apply")
}

func TestDashboardAggregates(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		ProductID: "prod-telur",
		Quantity:  5,
		SaleType:  domain.SaleTypeUnit,
	})
	require.NoError(t, err)
	_, err = svc.CreateSale(ctx, domain.SaleCreateRequest{
		ProductID:  "prod-mie-goreng",
		Quantity:   1,
		SaleType:   domain.SaleTypePackage,
		IsDebt:     true,
		ClientName: "Bu Sari",
	})
	require.NoError(t, err)

	stats, err := svc.Dashboard(ctx, "store-main", domain.PeriodToday)
	require.NoError(t, err)
	require.Equal(t, 2, stats.SalesCount)
	require.Equal(t, 45, stats.UnitsSold)
	require.True(t, stats.Revenue.IsPositive())
	require.Equal(t, 1, stats.DebtSummary.OpenDebts)
	require.NotEmpty(t, stats.TopProducts)
	require.Equal(t, "prod-mie-goreng", stats.TopProducts[0].ProductID)
}

func TestCreateSellerRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSeller(sellerCtx(), domain.SellerCreateRequest{
		Username: "newseller", Password: "supersecret", StoreID: "store-main",
	})
	require.ErrorIs(t, err, store.ErrUnauthorized)

	created, err := svc.CreateSeller(adminCtx(), domain.SellerCreateRequest{
		Username: "NewSeller", Password: "supersecret", StoreID: "store-main",
	})
	require.NoError(t, err)
	require.Equal(t, "newseller", created.Username)
	require.Equal(t, domain.RoleSeller, created.Role)
}

func TestPushSyncPerItemIsolation(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	goodID := xid.New("sale")
	goodData, err := json.Marshal(domain.SaleCreateRequest{
		ProductID: "prod-telur", Quantity: 2, SaleType: domain.SaleTypeUnit,
	})
	require.NoError(t, err)
	badData, err := json.Marshal(domain.SaleCreateRequest{
		ProductID: "prod-telur", Quantity: 100000, SaleType: domain.SaleTypeUnit,
	})
	require.NoError(t, err)

	resp, err := svc.PushSync(ctx, domain.SyncPushRequest{Items: []domain.SyncItem{
		{ID: xid.New("sync"), Action: domain.SyncActionCreate, TableName: domain.SyncTableSales, RecordID: goodID, Data: goodData, ClientTimestamp: time.Now().UTC()},
		{ID: xid.New("sync"), Action: domain.SyncActionCreate, TableName: domain.SyncTableSales, RecordID: xid.New("sale"), Data: badData, ClientTimestamp: time.Now().UTC()},
		{ID: xid.New("sync"), Action: domain.SyncActionUpdate, TableName: "users", RecordID: xid.New("user"), ClientTimestamp: time.Now().UTC()},
	}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)

	require.Equal(t, domain.SyncStatusCompleted, resp.Results[0].Status)
	require.Equal(t, domain.SyncStatusFailed, resp.Results[1].Status)
	require.Contains(t, resp.Results[1].Error, "insufficient stock")
	require.Equal(t, domain.SyncStatusFailed, resp.Results[2].Status)
	require.Contains(t, resp.Results[2].Error, "unsupported")

	sale, err := svc.GetSale(ctx, goodID)
	require.NoError(t, err)
	require.Equal(t, 2, sale.Sale.Quantity)
}

func TestPushSyncReplayIsIdempotent(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	before, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)

	data, err := json.Marshal(domain.SaleCreateRequest{
		ProductID: "prod-telur", Quantity: 3, SaleType: domain.SaleTypeUnit,
	})
	require.NoError(t, err)
	item := domain.SyncItem{
		ID:              xid.New("sync"),
		Action:          domain.SyncActionCreate,
		TableName:       domain.SyncTableSales,
		RecordID:        xid.New("sale"),
		Data:            data,
		ClientTimestamp: time.Now().UTC(),
	}

	first, err := svc.PushSync(ctx, domain.SyncPushRequest{Items: []domain.SyncItem{item}})
	require.NoError(t, err)
	require.Equal(t, domain.SyncStatusCompleted, first.Results[0].Status)

	second, err := svc.PushSync(ctx, domain.SyncPushRequest{Items: []domain.SyncItem{item}})
	require.NoError(t, err)
	require.Equal(t, domain.SyncStatusCompleted, second.Results[0].Status)

	after, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)
	require.Equal(t, before.CurrentStock-3, after.CurrentStock)
}

func TestRetryFailedSyncCapsAttempts(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	data, err := json.Marshal(domain.SaleCreateRequest{
		ProductID: "prod-telur", Quantity: 100000, SaleType: domain.SaleTypeUnit,
	})
	require.NoError(t, err)

	resp, err := svc.PushSync(ctx, domain.SyncPushRequest{Items: []domain.SyncItem{{
		ID:              xid.New("sync"),
		Action:          domain.SyncActionCreate,
		TableName:       domain.SyncTableSales,
		RecordID:        xid.New("sale"),
		Data:            data,
		ClientTimestamp: time.Now().UTC(),
	}}})
	require.NoError(t, err)
	require.Equal(t, domain.SyncStatusFailed, resp.Results[0].Status)

	// Two retries exhaust the three allowed attempts.
	for i := 0; i < 2; i++ {
		retry, err := svc.RetryFailedSync(ctx)
		require.NoError(t, err)
		require.Len(t, retry.Results, 1)
		require.Equal(t, domain.SyncStatusFailed, retry.Results[0].Status)
	}

	exhausted, err := svc.RetryFailedSync(ctx)
	require.NoError(t, err)
	require.Empty(t, exhausted.Results)
}

func TestPushSyncDebtCreateAttachesToSale(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		ProductID: "prod-telur", Quantity: 2, SaleType: domain.SaleTypeUnit,
	})
	require.NoError(t, err)

	data, err := json.Marshal(debtSyncPayload{
		SaleID:     sale.Sale.ID,
		ClientName: "Bu Sari",
		DueDate:    time.Now().UTC().AddDate(0, 0, 7).Format(dueDateLayout),
	})
	require.NoError(t, err)

	resp, err := svc.PushSync(ctx, domain.SyncPushRequest{Items: []domain.SyncItem{{
		ID:              xid.New("sync"),
		Action:          domain.SyncActionCreate,
		TableName:       domain.SyncTableDebts,
		RecordID:        xid.New("debt"),
		Data:            data,
		ClientTimestamp: time.Now().UTC(),
	}}})
	require.NoError(t, err)
	require.Equal(t, domain.SyncStatusCompleted, resp.Results[0].Status)

	debt, err := svc.repo.GetDebtBySaleID(context.Background(), sale.Sale.ID)
	require.NoError(t, err)
	require.True(t, debt.Amount.Equal(sale.Sale.TotalAmount))
	require.Equal(t, "Bu Sari", debt.ClientName)
}

func TestPullSyncPagination(t *testing.T) {
	svc := newTestService()
	svc.SetSyncLimits(0, 2)
	ctx := sellerCtx()
	since := time.Now().UTC().Add(-time.Minute)

	for i := 0; i < 3; i++ {
		_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
			ProductID: "prod-telur", Quantity: 1, SaleType: domain.SaleTypeUnit,
		})
		require.NoError(t, err)
	}

	page, err := svc.PullSync(ctx, "store-main", since, "")
	require.NoError(t, err)
	require.Len(t, page.Changes, 2)
	require.True(t, page.HasMore)
	require.Equal(t, page.Changes[1].RecordID, page.LastID)

	next, err := svc.PullSync(ctx, "store-main", page.Timestamp, page.LastID)
	require.NoError(t, err)
	require.NotEmpty(t, next.Changes)
	seen := map[string]bool{}
	for _, change := range page.Changes {
		seen[change.RecordID] = true
	}
	for _, change := range next.Changes {
		require.False(t, seen[change.RecordID], "record %s returned twice", change.RecordID)
	}
}

func TestPullSyncPaginatesTiedTimestamps(t *testing.T) {
	svc := newTestService()
	svc.SetSyncLimits(0, 2)
	ctx := sellerCtx()
	since := time.Now().UTC().Add(-time.Minute)

	// One bulk adjustment stamps every touched product with the same
	// updated_at, so the page cut lands inside a timestamp tie.
	_, err := svc.BulkAdjustStock(ctx, domain.BulkAdjustRequest{
		StoreID: "store-main",
		Adjustments: []domain.StockAdjustment{
			{ProductID: "prod-telur", NewStock: 11, Reason: "Stock opname"},
			{ProductID: "prod-mie-goreng", NewStock: 12, Reason: "Stock opname"},
			{ProductID: "prod-gula", NewStock: 13, Reason: "Stock opname"},
		},
	})
	require.NoError(t, err)

	pulled := map[string]bool{}
	cursor, cursorID := since, ""
	for i := 0; i < 10; i++ {
		page, err := svc.PullSync(ctx, "store-main", cursor, cursorID)
		require.NoError(t, err)
		if len(page.Changes) == 0 {
			break
		}
		for _, change := range page.Changes {
			require.False(t, pulled[change.RecordID], "record %s returned twice", change.RecordID)
			pulled[change.RecordID] = true
		}
		cursor, cursorID = page.Timestamp, page.LastID
		if !page.HasMore {
			break
		}
	}

	for _, productID := range []string{"prod-telur", "prod-mie-goreng", "prod-gula"} {
		require.True(t, pulled[productID], "product %s never pulled", productID)
	}
}

func TestPushSyncCrossTenantItemRejected(t *testing.T) {
	svc := newTestService()

	other, err := svc.CreateStore(adminCtx(), domain.StoreCreateRequest{Name: "Warung Cabang"})
	require.NoError(t, err)
	otherProduct, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		StoreID:          other.ID,
		Name:             "Kopi Sachet",
		Category:         "grocery",
		UnitsPerPackage:  10,
		InitialStock:     50,
		UnitSalePrice:    decimal.NewFromInt(1500),
		PackageSalePrice: decimal.NewFromInt(14000),
	})
	require.NoError(t, err)

	ctx := sellerCtx()
	before, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)

	crossData, err := json.Marshal(domain.SaleCreateRequest{
		ProductID: otherProduct.ID, StoreID: other.ID, Quantity: 1, SaleType: domain.SaleTypeUnit,
	})
	require.NoError(t, err)
	movementData, err := json.Marshal(domain.StockMovementRequest{
		ProductID: "prod-telur", Type: domain.MovementIn, Quantity: 5, Reason: "Restock",
	})
	require.NoError(t, err)

	resp, err := svc.PushSync(ctx, domain.SyncPushRequest{Items: []domain.SyncItem{
		{ID: xid.New("sync"), Action: domain.SyncActionCreate, TableName: domain.SyncTableSales, RecordID: xid.New("sale"), Data: crossData, ClientTimestamp: time.Now().UTC()},
		{ID: xid.New("sync"), Action: domain.SyncActionCreate, TableName: domain.SyncTableStockMovements, RecordID: xid.New("mov"), Data: movementData, ClientTimestamp: time.Now().UTC()},
	}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	require.Equal(t, domain.SyncStatusFailed, resp.Results[0].Status)
	require.Contains(t, resp.Results[0].Error, "unauthorized")
	require.Equal(t, domain.SyncStatusCompleted, resp.Results[1].Status)

	after, err := svc.GetProduct(ctx, "prod-telur")
	require.NoError(t, err)
	require.Equal(t, before.CurrentStock+5, after.CurrentStock)

	sales, err := svc.ListSales(adminCtx(), other.ID, 10)
	require.NoError(t, err)
	require.Empty(t, sales)
}

type completedMarkFailRepo struct {
	store.Repository
}

func (r *completedMarkFailRepo) MarkSyncItem(ctx context.Context, itemID string, status domain.SyncStatus, lastError string, at time.Time) error {
	if status == domain.SyncStatusCompleted {
		return errors.New("queue storage unavailable")
	}
	return r.Repository.MarkSyncItem(ctx, itemID, status, lastError, at)
}

func TestPushSyncLogsLostCompletedMark(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	repo := &completedMarkFailRepo{Repository: memory.NewSeeded()}
	svc := New(repo, report.NewEngine(cache.NoopStatsCache{}, 5*time.Second), zap.New(core).Sugar())
	ctx := sellerCtx()

	data, err := json.Marshal(domain.SaleCreateRequest{
		ProductID: "prod-telur", Quantity: 1, SaleType: domain.SaleTypeUnit,
	})
	require.NoError(t, err)

	resp, err := svc.PushSync(ctx, domain.SyncPushRequest{Items: []domain.SyncItem{{
		ID:              xid.New("sync"),
		Action:          domain.SyncActionCreate,
		TableName:       domain.SyncTableSales,
		RecordID:        xid.New("sale"),
		Data:            data,
		ClientTimestamp: time.Now().UTC(),
	}}})
	require.NoError(t, err)
	// The sale itself landed, so the item is still acknowledged.
	require.Equal(t, domain.SyncStatusCompleted, resp.Results[0].Status)
	require.Equal(t, 1, logs.FilterMessageSnippet("mark sync item failed").Len())
}
