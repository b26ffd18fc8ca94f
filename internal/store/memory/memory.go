package memory

import (
	"context"
	"encoding/json"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/store"
	"warungpos/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	stores          map[string]domain.Store
	products        map[string]domain.Product
	sales           map[string]domain.Sale
	movements       []domain.StockMovement
	movementIndex   map[string]int
	debts           map[string]domain.Debt
	debtBySale      map[string]string
	paymentsByDebt  map[string][]domain.DebtPayment
	syncItems       map[string]domain.SyncQueueItem
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		stores:          make(map[string]domain.Store),
		products:        make(map[string]domain.Product),
		sales:           make(map[string]domain.Sale),
		movements:       make([]domain.StockMovement, 0, 128),
		movementIndex:   make(map[string]int),
		debts:           make(map[string]domain.Debt),
		debtBySale:      make(map[string]string),
		paymentsByDebt:  make(map[string][]domain.DebtPayment),
		syncItems:       make(map[string]domain.SyncQueueItem),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These credentials
// are never used in production (the backend uses PostgreSQL when
// DATABASE_URL is set).
func seedUsers(storeID string) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "seller123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		zap.S().Named("memory-store").Warnw("using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		storeID  string
	}{
		{"admin", adminPwd, domain.RoleAdmin, ""},
		{"seller", sellerPwd, domain.RoleSeller, storeID},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			zap.S().Named("memory-store").Fatalw("hash seed password", "user", u.username, "error", err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			StoreID:   u.storeID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	mainStore := domain.Store{
		ID:        "store-main",
		Name:      "Warung Utama",
		Address:   "Jl. Melati No. 3",
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.stores[mainStore.ID] = mainStore

	seedProducts := []struct {
		id              string
		name            string
		category        string
		unitsPerPackage int
		stock           int
		purchase        int64
		unit            int64
		pkg             int64
		alert           int
	}{
		{"prod-mie-goreng", "Mie Goreng Instan", "grocery", 40, 200, 98000, 3500, 118000, 40},
		{"prod-telur", "Telur Ayam", "grocery", 10, 80, 22000, 2650, 25500, 20},
		{"prod-susu-uht", "Susu UHT 1L", "dairy", 12, 48, 190000, 18900, 215000, 12},
		{"prod-kopi-sachet", "Kopi Sachet", "beverage", 30, 300, 62000, 2600, 72000, 30},
		{"prod-gula", "Gula Pasir 1kg", "grocery", 24, 72, 380000, 17400, 405000, 24},
		{"prod-air-mineral", "Air Mineral 600ml", "beverage", 24, 240, 72000, 3900, 86000, 48},
		{"prod-sabun-mandi", "Sabun Mandi", "household", 36, 108, 220000, 7400, 252000, 36},
	}
	for _, p := range seedProducts {
		product := domain.Product{
			ID:                   p.id,
			StoreID:              mainStore.ID,
			Name:                 p.name,
			Category:             p.category,
			UnitsPerPackage:      p.unitsPerPackage,
			CurrentStock:         p.stock,
			PackagePurchasePrice: decimal.NewFromInt(p.purchase),
			UnitSalePrice:        decimal.NewFromInt(p.unit),
			PackageSalePrice:     decimal.NewFromInt(p.pkg),
			MinStockAlert:        p.alert,
			Active:               true,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		s.products[product.ID] = product

		// Opening IN movement so the ledger sums to the seeded level.
		movement := domain.StockMovement{
			ID:            xid.New("mov"),
			ProductID:     product.ID,
			UserID:        "admin",
			StoreID:       mainStore.ID,
			Type:          domain.MovementIn,
			Quantity:      p.stock,
			SignedDelta:   p.stock,
			UnitPrice:     product.UnitSalePrice,
			TotalValue:    product.UnitSalePrice.Mul(decimal.NewFromInt(int64(p.stock))),
			Reason:        "Initial stock",
			PreviousStock: 0,
			NewStock:      p.stock,
			CreatedAt:     now,
		}
		s.movementIndex[movement.ID] = len(s.movements)
		s.movements = append(s.movements, movement)
	}

	s.usersByUsername = seedUsers(mainStore.ID)
	return s
}

func (s *Store) CreateStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" {
		return nil, store.ErrValidation
	}
	if st.ID == "" {
		st.ID = xid.New("store")
	}
	if _, exists := s.stores[st.ID]; exists {
		return nil, store.ErrConflict
	}
	now := time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = st.CreatedAt
	st.Active = true

	s.stores[st.ID] = st
	created := st
	return &created, nil
}

func (s *Store) GetStoreByID(_ context.Context, storeID string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.stores[storeID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySt := st
	return &copySt, nil
}

func (s *Store) ListStores(_ context.Context) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stores := make([]domain.Store, 0, len(s.stores))
	for _, st := range s.stores {
		stores = append(stores, st)
	}
	slices.SortFunc(stores, func(a, b domain.Store) int {
		return cmpString(a.Name, b.Name)
	})
	return stores, nil
}

func (s *Store) DeactivateStore(_ context.Context, storeID string, at time.Time) (*domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.stores[storeID]
	if !exists {
		return nil, store.ErrNotFound
	}
	st.Active = false
	st.UpdatedAt = at
	s.stores[storeID] = st
	copySt := st
	return &copySt, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product, initialMovement *domain.StockMovement) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.StoreID == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrValidation
	}
	if product.UnitsPerPackage < 1 || product.CurrentStock < 0 || product.MinStockAlert < 0 {
		return nil, store.ErrValidation
	}
	if _, exists := s.stores[product.StoreID]; !exists {
		return nil, store.ErrNotFound
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if existing, exists := s.products[product.ID]; exists {
		copyExisting := existing
		return &copyExisting, nil
	}

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = product.CreatedAt
	product.Active = true
	s.products[product.ID] = product

	if initialMovement != nil {
		m := *initialMovement
		if m.ID == "" {
			m.ID = xid.New("mov")
		}
		m.ProductID = product.ID
		m.StoreID = product.StoreID
		m.Type = domain.MovementIn
		m.Quantity = product.CurrentStock
		m.SignedDelta = product.CurrentStock
		m.PreviousStock = 0
		m.NewStock = product.CurrentStock
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		s.movementIndex[m.ID] = len(s.movements)
		s.movements = append(s.movements, m)
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) ListProducts(_ context.Context, storeID string, activeOnly bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if storeID != "" && p.StoreID != storeID {
			continue
		}
		if activeOnly && !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(product.Name) == "" || product.UnitsPerPackage < 1 || product.MinStockAlert < 0 {
		return nil, store.ErrValidation
	}

	// Stock is only mutated through the ledger.
	product.CurrentStock = existing.CurrentStock
	product.StoreID = existing.StoreID
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) ApplyMovement(_ context.Context, movement domain.StockMovement, force bool) (*domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if movement.ID != "" {
		if idx, exists := s.movementIndex[movement.ID]; exists {
			existing := s.movements[idx]
			return &existing, nil
		}
	}
	return s.applyMovementLocked(movement, force)
}

// applyMovementLocked assumes s.mu is held for writing.
func (s *Store) applyMovementLocked(movement domain.StockMovement, force bool) (*domain.StockMovement, error) {
	product, exists := s.products[movement.ProductID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if movement.StoreID != "" && product.StoreID != movement.StoreID {
		return nil, store.ErrValidation
	}

	prev := product.CurrentStock
	delta := movement.SignedDelta
	next := prev + delta
	if next < 0 {
		if !force {
			return nil, store.ErrInsufficientStock
		}
		delta = -prev
		next = 0
	}

	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	if movement.UnitPrice.IsZero() {
		movement.UnitPrice = product.UnitSalePrice
	}
	movement.StoreID = product.StoreID
	movement.SignedDelta = delta
	movement.Quantity = absInt(delta)
	movement.TotalValue = movement.UnitPrice.Mul(decimal.NewFromInt(int64(movement.Quantity)))
	movement.PreviousStock = prev
	movement.NewStock = next

	product.CurrentStock = next
	product.UpdatedAt = movement.CreatedAt
	s.products[product.ID] = product

	s.movementIndex[movement.ID] = len(s.movements)
	s.movements = append(s.movements, movement)
	applied := movement
	return &applied, nil
}

func (s *Store) BulkAdjust(_ context.Context, storeID string, userID string, adjustments []domain.StockAdjustment, at time.Time) ([]domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if storeID == "" || len(adjustments) == 0 {
		return nil, store.ErrValidation
	}
	for _, adj := range adjustments {
		if adj.NewStock < 0 {
			return nil, store.ErrValidation
		}
		product, exists := s.products[adj.ProductID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if product.StoreID != storeID {
			return nil, store.ErrValidation
		}
	}

	applied := make([]domain.StockMovement, 0, len(adjustments))
	for _, adj := range adjustments {
		product := s.products[adj.ProductID]
		delta := adj.NewStock - product.CurrentStock
		if delta == 0 {
			continue
		}
		movement := domain.StockMovement{
			ProductID:   adj.ProductID,
			UserID:      userID,
			StoreID:     storeID,
			Type:        domain.MovementAdjustment,
			SignedDelta: delta,
			Reason:      adj.Reason,
			CreatedAt:   at,
		}
		result, err := s.applyMovementLocked(movement, false)
		if err != nil {
			return nil, err
		}
		applied = append(applied, *result)
	}
	return applied, nil
}

func (s *Store) ListMovements(_ context.Context, storeID string, productID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockMovement, 0, 64)
	for _, m := range s.movements {
		if storeID != "" && m.StoreID != storeID {
			continue
		}
		if productID != "" && m.ProductID != productID {
			continue
		}
		result = append(result, m)
	}
	slices.SortFunc(result, func(a, b domain.StockMovement) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, debt *domain.Debt) (*domain.Sale, *domain.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID != "" {
		if existing, exists := s.sales[sale.ID]; exists {
			copySale := existing
			var copyDebt *domain.Debt
			if debtID, ok := s.debtBySale[sale.ID]; ok {
				d := s.debts[debtID]
				copyDebt = &d
			}
			return &copySale, copyDebt, nil
		}
	}

	if sale.Quantity < 1 {
		return nil, nil, store.ErrValidation
	}
	if sale.SaleType != domain.SaleTypeUnit && sale.SaleType != domain.SaleTypePackage {
		return nil, nil, store.ErrValidation
	}
	product, exists := s.products[sale.ProductID]
	if !exists || !product.Active {
		return nil, nil, store.ErrNotFound
	}
	if sale.StoreID != "" && product.StoreID != sale.StoreID {
		return nil, nil, store.ErrValidation
	}

	required := sale.RequiredStock(product.UnitsPerPackage)
	if product.CurrentStock < required {
		return nil, nil, store.ErrInsufficientStock
	}

	if sale.SaleType == domain.SaleTypePackage {
		sale.UnitPrice = product.PackageSalePrice
	} else {
		sale.UnitPrice = product.UnitSalePrice
	}
	sale.TotalAmount = sale.UnitPrice.Mul(decimal.NewFromInt(int64(sale.Quantity)))

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	now := time.Now().UTC()
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	sale.UpdatedAt = sale.CreatedAt
	sale.StoreID = product.StoreID
	sale.Active = true

	movement := domain.StockMovement{
		ProductID:   sale.ProductID,
		UserID:      sale.SellerID,
		StoreID:     sale.StoreID,
		Type:        domain.MovementOut,
		SignedDelta: -required,
		UnitPrice:   product.UnitSalePrice,
		Reason:      "Sale",
		Reference:   sale.ID,
		CreatedAt:   sale.CreatedAt,
	}
	if _, err := s.applyMovementLocked(movement, false); err != nil {
		return nil, nil, err
	}

	s.sales[sale.ID] = sale

	var createdDebt *domain.Debt
	if sale.IsDebt && debt != nil {
		d := *debt
		if d.ID == "" {
			d.ID = xid.New("debt")
		}
		d.SaleID = sale.ID
		d.StoreID = sale.StoreID
		d.Amount = sale.TotalAmount
		d.PaidAmount = decimal.Zero
		d.RemainingAmount = sale.TotalAmount
		d.Status = domain.DebtStatusPending
		if strings.TrimSpace(d.ClientName) == "" {
			d.ClientName = "Unknown"
		}
		if d.DueDate.IsZero() {
			d.DueDate = sale.CreatedAt.AddDate(0, 0, 30)
		}
		d.CreatedAt = sale.CreatedAt
		d.UpdatedAt = sale.CreatedAt
		s.debts[d.ID] = d
		s.debtBySale[sale.ID] = d.ID
		copyDebt := d
		createdDebt = &copyDebt
	}

	created := sale
	return &created, createdDebt, nil
}

func (s *Store) GetSaleByID(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.sales[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySale := sale
	return &copySale, nil
}

func (s *Store) ListSales(_ context.Context, storeID string, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if storeID != "" && sale.StoreID != storeID {
			continue
		}
		result = append(result, sale)
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) UpdateSaleMetadata(_ context.Context, saleID string, update domain.SaleUpdateRequest, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.sales[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if update.ClientName != nil {
		sale.ClientName = *update.ClientName
	}
	if update.ClientPhone != nil {
		sale.ClientPhone = *update.ClientPhone
	}
	if update.Notes != nil {
		sale.Notes = *update.Notes
	}
	sale.UpdatedAt = at
	s.sales[saleID] = sale
	copySale := sale
	return &copySale, nil
}

func (s *Store) CancelSale(_ context.Context, saleID string, userID string, reason string, at time.Time) (*domain.Sale, *domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.sales[saleID]
	if !exists {
		return nil, nil, store.ErrNotFound
	}
	if !sale.Active {
		return nil, nil, store.ErrConflict
	}
	if debtID, ok := s.debtBySale[saleID]; ok {
		debt := s.debts[debtID]
		if debt.PaidAmount.IsPositive() {
			return nil, nil, store.ErrConflict
		}
		delete(s.debts, debtID)
		delete(s.debtBySale, saleID)
		delete(s.paymentsByDebt, debtID)
	}

	product, exists := s.products[sale.ProductID]
	if !exists {
		return nil, nil, store.ErrNotFound
	}
	required := sale.RequiredStock(product.UnitsPerPackage)
	movement := domain.StockMovement{
		ProductID:   sale.ProductID,
		UserID:      userID,
		StoreID:     sale.StoreID,
		Type:        domain.MovementIn,
		SignedDelta: required,
		UnitPrice:   product.UnitSalePrice,
		Reason:      reason,
		Reference:   sale.ID,
		CreatedAt:   at,
	}
	applied, err := s.applyMovementLocked(movement, false)
	if err != nil {
		return nil, nil, err
	}

	sale.Active = false
	sale.UpdatedAt = at
	s.sales[saleID] = sale
	copySale := sale
	return &copySale, applied, nil
}

func (s *Store) CreateDebt(_ context.Context, debt domain.Debt) (*domain.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.sales[debt.SaleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if _, taken := s.debtBySale[debt.SaleID]; taken {
		return nil, store.ErrConflict
	}
	if debt.ID == "" {
		debt.ID = xid.New("debt")
	}
	if _, exists := s.debts[debt.ID]; exists {
		return nil, store.ErrConflict
	}

	now := time.Now().UTC()
	debt.StoreID = sale.StoreID
	debt.Amount = sale.TotalAmount
	debt.PaidAmount = decimal.Zero
	debt.RemainingAmount = sale.TotalAmount
	debt.Status = domain.DebtStatusPending
	if strings.TrimSpace(debt.ClientName) == "" {
		debt.ClientName = "Unknown"
	}
	if debt.DueDate.IsZero() {
		debt.DueDate = now.AddDate(0, 0, 30)
	}
	if debt.CreatedAt.IsZero() {
		debt.CreatedAt = now
	}
	debt.UpdatedAt = debt.CreatedAt

	s.debts[debt.ID] = debt
	s.debtBySale[debt.SaleID] = debt.ID
	created := debt
	return &created, nil
}

func (s *Store) GetDebtByID(_ context.Context, debtID string) (*domain.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	debt, exists := s.debts[debtID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyDebt := debt
	return &copyDebt, nil
}

func (s *Store) GetDebtBySaleID(_ context.Context, saleID string) (*domain.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	debtID, exists := s.debtBySale[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	debt := s.debts[debtID]
	return &debt, nil
}

func (s *Store) ListDebts(_ context.Context, storeID string, limit int) ([]domain.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Debt, 0, len(s.debts))
	for _, debt := range s.debts {
		if storeID != "" && debt.StoreID != storeID {
			continue
		}
		result = append(result, debt)
	}
	slices.SortFunc(result, func(a, b domain.Debt) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) AddDebtPayment(_ context.Context, payment domain.DebtPayment) (*domain.DebtPayment, *domain.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	debt, exists := s.debts[payment.DebtID]
	if !exists {
		return nil, nil, store.ErrNotFound
	}
	if !payment.Amount.IsPositive() {
		return nil, nil, store.ErrValidation
	}
	if payment.Amount.GreaterThan(debt.RemainingAmount) {
		return nil, nil, store.ErrPaymentExceedsRemaining
	}

	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	debt.PaidAmount = debt.PaidAmount.Add(payment.Amount)
	debt.RemainingAmount = debt.Amount.Sub(debt.PaidAmount)
	if debt.RemainingAmount.IsZero() {
		debt.Status = domain.DebtStatusPaid
	} else {
		debt.Status = domain.DebtStatusPartial
	}
	debt.UpdatedAt = payment.CreatedAt

	s.debts[debt.ID] = debt
	s.paymentsByDebt[debt.ID] = append(s.paymentsByDebt[debt.ID], payment)

	copyPayment := payment
	copyDebt := debt
	return &copyPayment, &copyDebt, nil
}

func (s *Store) ListDebtPayments(_ context.Context, debtID string) ([]domain.DebtPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.debts[debtID]; !exists {
		return nil, store.ErrNotFound
	}
	payments := s.paymentsByDebt[debtID]
	result := make([]domain.DebtPayment, len(payments))
	copy(result, payments)
	slices.SortFunc(result, func(a, b domain.DebtPayment) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) UpdateDebtMetadata(_ context.Context, debtID string, clientName, clientPhone, notes *string, dueDate *time.Time, at time.Time) (*domain.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	debt, exists := s.debts[debtID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if clientName != nil {
		name := strings.TrimSpace(*clientName)
		if name == "" {
			name = "Unknown"
		}
		debt.ClientName = name
	}
	if clientPhone != nil {
		debt.ClientPhone = *clientPhone
	}
	if notes != nil {
		debt.Notes = *notes
	}
	if dueDate != nil {
		debt.DueDate = dueDate.UTC()
	}
	debt.UpdatedAt = at
	s.debts[debtID] = debt
	copyDebt := debt
	return &copyDebt, nil
}

func (s *Store) EnqueueSyncItem(_ context.Context, item domain.SyncQueueItem) (*domain.SyncQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = xid.New("sync")
	}
	if existing, exists := s.syncItems[item.ID]; exists {
		copyExisting := cloneSyncItem(existing)
		return &copyExisting, nil
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = item.CreatedAt
	if item.Status == "" {
		item.Status = domain.SyncStatusPending
	}
	if item.MaxAttempts < 1 {
		item.MaxAttempts = domain.SyncMaxAttempts
	}
	s.syncItems[item.ID] = cloneSyncItem(item)
	created := cloneSyncItem(item)
	return &created, nil
}

func (s *Store) MarkSyncItem(_ context.Context, itemID string, status domain.SyncStatus, lastError string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.syncItems[itemID]
	if !exists {
		return store.ErrNotFound
	}
	item.Status = status
	item.LastError = lastError
	if status == domain.SyncStatusFailed {
		item.Attempts++
	}
	item.UpdatedAt = at
	s.syncItems[itemID] = item
	return nil
}

func (s *Store) ListSyncItems(_ context.Context, userID string, status domain.SyncStatus, limit int) ([]domain.SyncQueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SyncQueueItem, 0, 32)
	for _, item := range s.syncItems {
		if userID != "" && item.UserID != userID {
			continue
		}
		if status != "" && item.Status != status {
			continue
		}
		result = append(result, cloneSyncItem(item))
	}
	slices.SortFunc(result, func(a, b domain.SyncQueueItem) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) RequeueFailedSyncItems(_ context.Context, userID string, at time.Time) ([]domain.SyncQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requeued := make([]domain.SyncQueueItem, 0, 8)
	for id, item := range s.syncItems {
		if userID != "" && item.UserID != userID {
			continue
		}
		if item.Status != domain.SyncStatusFailed || item.Attempts >= item.MaxAttempts {
			continue
		}
		item.Status = domain.SyncStatusPending
		item.UpdatedAt = at
		s.syncItems[id] = item
		requeued = append(requeued, cloneSyncItem(item))
	}
	slices.SortFunc(requeued, func(a, b domain.SyncQueueItem) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return requeued, nil
}

// afterCursor reports whether a row at (updatedAt, recordID) sits strictly
// after the (since, sinceID) compound cursor. Ties on updated_at are broken
// by record id so paging never drops rows sharing a timestamp.
func afterCursor(updatedAt time.Time, recordID string, since time.Time, sinceID string) bool {
	if updatedAt.After(since) {
		return true
	}
	return updatedAt.Equal(since) && sinceID != "" && recordID > sinceID
}

func (s *Store) PullChanges(_ context.Context, storeID string, since time.Time, sinceID string, limit int) ([]domain.SyncChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	changes := make([]domain.SyncChange, 0, 64)
	for _, p := range s.products {
		if storeID != "" && p.StoreID != storeID {
			continue
		}
		if !afterCursor(p.UpdatedAt, p.ID, since, sinceID) {
			continue
		}
		changes = append(changes, makeChange(domain.SyncTableProducts, p.ID, p.UpdatedAt, p))
	}
	for _, sale := range s.sales {
		if storeID != "" && sale.StoreID != storeID {
			continue
		}
		if !afterCursor(sale.UpdatedAt, sale.ID, since, sinceID) {
			continue
		}
		changes = append(changes, makeChange(domain.SyncTableSales, sale.ID, sale.UpdatedAt, sale))
	}
	for _, debt := range s.debts {
		if storeID != "" && debt.StoreID != storeID {
			continue
		}
		if !afterCursor(debt.UpdatedAt, debt.ID, since, sinceID) {
			continue
		}
		changes = append(changes, makeChange(domain.SyncTableDebts, debt.ID, debt.UpdatedAt, debt))
	}

	slices.SortFunc(changes, func(a, b domain.SyncChange) int {
		if a.UpdatedAt.Equal(b.UpdatedAt) {
			return cmpString(a.RecordID, b.RecordID)
		}
		if a.UpdatedAt.Before(b.UpdatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(changes) > limit {
		changes = changes[:limit]
	}
	return changes, nil
}

func (s *Store) GetSaleFacts(_ context.Context, storeID string, from, to time.Time) ([]domain.SaleFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	facts := make([]domain.SaleFact, 0, len(s.sales))
	for _, sale := range s.sales {
		if !sale.Active {
			continue
		}
		if storeID != "" && sale.StoreID != storeID {
			continue
		}
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		product := s.products[sale.ProductID]
		facts = append(facts, domain.SaleFact{
			ProductID:   sale.ProductID,
			ProductName: product.Name,
			SaleType:    sale.SaleType,
			Quantity:    sale.Quantity,
			UnitsSold:   sale.RequiredStock(product.UnitsPerPackage),
			Revenue:     sale.TotalAmount,
			UnitCost:    product.UnitPurchasePrice(),
			CreatedAt:   sale.CreatedAt,
		})
	}
	slices.SortFunc(facts, func(a, b domain.SaleFact) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ProductID, b.ProductID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return facts, nil
}

func (s *Store) GetDebtSummary(_ context.Context, storeID string) (domain.DebtSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.DebtSummary{Outstanding: decimal.Zero}
	for _, debt := range s.debts {
		if storeID != "" && debt.StoreID != storeID {
			continue
		}
		if debt.Status == domain.DebtStatusPaid {
			continue
		}
		summary.OpenDebts++
		summary.Outstanding = summary.Outstanding.Add(debt.RemainingAmount)
	}
	return summary, nil
}

func (s *Store) CountLowStock(_ context.Context, storeID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if storeID != "" && p.StoreID != storeID {
			continue
		}
		if p.LowStock() {
			count++
		}
	}
	return count, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleSeller
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func makeChange(tableName string, recordID string, updatedAt time.Time, payload any) domain.SyncChange {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	return domain.SyncChange{
		TableName: tableName,
		Action:    domain.SyncActionUpdate,
		RecordID:  recordID,
		Data:      data,
		UpdatedAt: updatedAt,
	}
}

func cloneSyncItem(src domain.SyncQueueItem) domain.SyncQueueItem {
	dup := src
	if src.Data != nil {
		data := make([]byte, len(src.Data))
		copy(data, src.Data)
		dup.Data = data
	}
	return dup
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
