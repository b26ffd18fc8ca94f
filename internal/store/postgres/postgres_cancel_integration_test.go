package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"warungpos/backend/internal/domain"
)

func TestCancelSaleRestocksProduct(t *testing.T) {
	databaseURL := os.Getenv("WARUNGPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set WARUNGPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	storeID := fmt.Sprintf("store-cancel-it-%d", stamp)
	productID := fmt.Sprintf("prod-cancel-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_movements WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, storeID)
	})

	if _, err := s.CreateStore(ctx, domain.Store{ID: storeID, Name: "Integration Warung"}); err != nil {
		t.Fatalf("create store: %v", err)
	}

	product := domain.Product{
		ID:                   productID,
		StoreID:              storeID,
		Name:                 "Produk Cancel IT",
		Category:             "grocery",
		UnitsPerPackage:      10,
		CurrentStock:         20,
		PackagePurchasePrice: decimal.NewFromInt(20000),
		UnitSalePrice:        decimal.NewFromInt(2500),
		PackageSalePrice:     decimal.NewFromInt(24000),
		MinStockAlert:        5,
	}
	if _, err := s.CreateProduct(ctx, product, &domain.StockMovement{UserID: "it-user", Reason: "Initial stock"}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	sale := domain.Sale{
		ProductID: productID,
		SellerID:  "it-user",
		StoreID:   storeID,
		Quantity:  4,
		SaleType:  domain.SaleTypeUnit,
	}
	created, _, err := s.CreateSale(ctx, sale, nil)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	after, err := s.GetProductByID(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.CurrentStock != 16 {
		t.Fatalf("expected stock 16 after sale, got %d", after.CurrentStock)
	}

	at := time.Now().UTC()
	cancelled, restore, err := s.CancelSale(ctx, created.ID, "it-user", "integration test cancel", at)
	if err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	if cancelled.Active {
		t.Fatalf("expected sale inactive after cancel")
	}
	if restore.Type != domain.MovementIn || restore.SignedDelta != 4 {
		t.Fatalf("unexpected restore movement: %+v", restore)
	}

	restored, err := s.GetProductByID(ctx, productID)
	if err != nil {
		t.Fatalf("get product after cancel: %v", err)
	}
	if restored.CurrentStock != 20 {
		t.Fatalf("expected stock 20 after cancel restock, got %d", restored.CurrentStock)
	}
}
