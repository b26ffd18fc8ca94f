package postgres

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/store"
	"warungpos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" {
		return nil, store.ErrValidation
	}
	if st.ID == "" {
		st.ID = xid.New("store")
	}
	now := time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = st.CreatedAt
	st.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (id, name, address, phone, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, st.ID, st.Name, nullIfEmpty(st.Address), nullIfEmpty(st.Phone), st.Active, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := st
	return &created, nil
}

func (s *Store) GetStoreByID(ctx context.Context, storeID string) (*domain.Store, error) {
	var st domain.Store
	var address, phone sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, address, phone, active, created_at, updated_at
		FROM stores
		WHERE id = $1
	`, storeID).Scan(&st.ID, &st.Name, &address, &phone, &st.Active, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	st.Address = address.String
	st.Phone = phone.String
	return &st, nil
}

func (s *Store) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, address, phone, active, created_at, updated_at
		FROM stores
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]domain.Store, 0, 16)
	for rows.Next() {
		var st domain.Store
		var address, phone sql.NullString
		if err := rows.Scan(&st.ID, &st.Name, &address, &phone, &st.Active, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		st.Address = address.String
		st.Phone = phone.String
		stores = append(stores, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stores, nil
}

func (s *Store) DeactivateStore(ctx context.Context, storeID string, at time.Time) (*domain.Store, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stores
		SET active = false, updated_at = $2
		WHERE id = $1
	`, storeID, at)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetStoreByID(ctx, storeID)
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, initialMovement *domain.StockMovement) (*domain.Product, error) {
	if product.StoreID == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrValidation
	}
	if product.UnitsPerPackage < 1 || product.CurrentStock < 0 || product.MinStockAlert < 0 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = product.CreatedAt
	product.Active = true

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO products (
			id, store_id, name, category, units_per_package, current_stock,
			package_purchase_price, unit_sale_price, package_sale_price,
			min_stock_alert, active, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, product.ID, product.StoreID, product.Name, product.Category, product.UnitsPerPackage,
		product.CurrentStock, product.PackagePurchasePrice, product.UnitSalePrice,
		product.PackageSalePrice, product.MinStockAlert, product.Active,
		product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return s.GetProductByID(ctx, product.ID)
		}
		return nil, err
	}

	if initialMovement != nil {
		m := *initialMovement
		if m.ID == "" {
			m.ID = xid.New("mov")
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = product.CreatedAt
		}
		m.ProductID = product.ID
		m.StoreID = product.StoreID
		m.Type = domain.MovementIn
		m.Quantity = product.CurrentStock
		m.SignedDelta = product.CurrentStock
		if m.UnitPrice.IsZero() {
			m.UnitPrice = product.UnitSalePrice
		}
		m.TotalValue = m.UnitPrice.Mul(decimal.NewFromInt(int64(m.Quantity)))
		m.PreviousStock = 0
		m.NewStock = product.CurrentStock
		if err := insertMovement(ctx, pgTx, m); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	var category sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, name, category, units_per_package, current_stock,
		       package_purchase_price, unit_sale_price, package_sale_price,
		       min_stock_alert, active, created_at, updated_at
		FROM products
		WHERE id = $1
	`, productID).Scan(&p.ID, &p.StoreID, &p.Name, &category, &p.UnitsPerPackage, &p.CurrentStock,
		&p.PackagePurchasePrice, &p.UnitSalePrice, &p.PackageSalePrice,
		&p.MinStockAlert, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.Category = category.String
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, storeID string, activeOnly bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, category, units_per_package, current_stock,
		       package_purchase_price, unit_sale_price, package_sale_price,
		       min_stock_alert, active, created_at, updated_at
		FROM products
		WHERE ($1 = '' OR store_id = $1) AND ($2 = false OR active = true)
		ORDER BY category, name
	`, storeID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		var category sql.NullString
		if err := rows.Scan(&p.ID, &p.StoreID, &p.Name, &category, &p.UnitsPerPackage, &p.CurrentStock,
			&p.PackagePurchasePrice, &p.UnitSalePrice, &p.PackageSalePrice,
			&p.MinStockAlert, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Category = category.String
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.UnitsPerPackage < 1 || product.MinStockAlert < 0 {
		return nil, store.ErrValidation
	}

	// current_stock is deliberately absent: stock only moves through the ledger.
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, units_per_package = $4,
		    package_purchase_price = $5, unit_sale_price = $6, package_sale_price = $7,
		    min_stock_alert = $8, active = $9, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.UnitsPerPackage,
		product.PackagePurchasePrice, product.UnitSalePrice, product.PackageSalePrice,
		product.MinStockAlert, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) ApplyMovement(ctx context.Context, movement domain.StockMovement, force bool) (*domain.StockMovement, error) {
	if movement.ID != "" {
		existing, err := s.getMovementByID(ctx, movement.ID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	applied, err := applyMovementTx(ctx, pgTx, movement, force)
	if err != nil {
		if isUniqueViolation(err) && movement.ID != "" {
			return s.getMovementByID(ctx, movement.ID)
		}
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return applied, nil
}

func (s *Store) BulkAdjust(ctx context.Context, storeID string, userID string, adjustments []domain.StockAdjustment, at time.Time) ([]domain.StockMovement, error) {
	if storeID == "" || len(adjustments) == 0 {
		return nil, store.ErrValidation
	}
	for _, adj := range adjustments {
		if adj.NewStock < 0 {
			return nil, store.ErrValidation
		}
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	applied := make([]domain.StockMovement, 0, len(adjustments))
	for _, adj := range adjustments {
		var productStoreID string
		var currentStock int
		err := pgTx.QueryRowContext(ctx, `
			SELECT store_id, current_stock
			FROM products
			WHERE id = $1
			FOR UPDATE
		`, adj.ProductID).Scan(&productStoreID, &currentStock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if productStoreID != storeID {
			return nil, store.ErrValidation
		}

		delta := adj.NewStock - currentStock
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
		result, err := applyMovementTx(ctx, pgTx, movement, false)
		if err != nil {
			return nil, err
		}
		applied = append(applied, *result)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return applied, nil
}

// applyMovementTx locks the product row, derives the clamped delta and the
// before/after levels, appends the ledger row and writes the new stock level.
func applyMovementTx(ctx context.Context, pgTx *sql.Tx, movement domain.StockMovement, force bool) (*domain.StockMovement, error) {
	var productStoreID string
	var currentStock int
	var unitSalePrice decimal.Decimal
	err := pgTx.QueryRowContext(ctx, `
		SELECT store_id, current_stock, unit_sale_price
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, movement.ProductID).Scan(&productStoreID, &currentStock, &unitSalePrice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if movement.StoreID != "" && productStoreID != movement.StoreID {
		return nil, store.ErrValidation
	}

	prev := currentStock
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
		movement.UnitPrice = unitSalePrice
	}
	movement.StoreID = productStoreID
	movement.SignedDelta = delta
	movement.Quantity = absInt(delta)
	movement.TotalValue = movement.UnitPrice.Mul(decimal.NewFromInt(int64(movement.Quantity)))
	movement.PreviousStock = prev
	movement.NewStock = next

	if err := insertMovement(ctx, pgTx, movement); err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE products
		SET current_stock = $2, updated_at = $3
		WHERE id = $1
	`, movement.ProductID, next, movement.CreatedAt)
	if err != nil {
		return nil, err
	}

	applied := movement
	return &applied, nil
}

func insertMovement(ctx context.Context, pgTx *sql.Tx, m domain.StockMovement) error {
	_, err := pgTx.ExecContext(ctx, `
		INSERT INTO stock_movements (
			id, product_id, user_id, store_id, type, quantity, signed_delta,
			unit_price, total_value, reason, reference, previous_stock, new_stock, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, m.ID, m.ProductID, m.UserID, m.StoreID, m.Type, m.Quantity, m.SignedDelta,
		m.UnitPrice, m.TotalValue, nullIfEmpty(m.Reason), nullIfEmpty(m.Reference),
		m.PreviousStock, m.NewStock, m.CreatedAt)
	return err
}

func (s *Store) getMovementByID(ctx context.Context, movementID string) (*domain.StockMovement, error) {
	var m domain.StockMovement
	var reason, reference sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, user_id, store_id, type, quantity, signed_delta,
		       unit_price, total_value, reason, reference, previous_stock, new_stock, created_at
		FROM stock_movements
		WHERE id = $1
	`, movementID).Scan(&m.ID, &m.ProductID, &m.UserID, &m.StoreID, &m.Type, &m.Quantity,
		&m.SignedDelta, &m.UnitPrice, &m.TotalValue, &reason, &reference,
		&m.PreviousStock, &m.NewStock, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	m.Reason = reason.String
	m.Reference = reference.String
	return &m, nil
}

func (s *Store) ListMovements(ctx context.Context, storeID string, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, user_id, store_id, type, quantity, signed_delta,
		       unit_price, total_value, reason, reference, previous_stock, new_stock, created_at
		FROM stock_movements
		WHERE ($1 = '' OR store_id = $1) AND ($2 = '' OR product_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, storeID, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		var reason, reference sql.NullString
		if err := rows.Scan(&m.ID, &m.ProductID, &m.UserID, &m.StoreID, &m.Type, &m.Quantity,
			&m.SignedDelta, &m.UnitPrice, &m.TotalValue, &reason, &reference,
			&m.PreviousStock, &m.NewStock, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Reason = reason.String
		m.Reference = reference.String
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, debt *domain.Debt) (*domain.Sale, *domain.Debt, error) {
	if sale.Quantity < 1 {
		return nil, nil, store.ErrValidation
	}
	if sale.SaleType != domain.SaleTypeUnit && sale.SaleType != domain.SaleTypePackage {
		return nil, nil, store.ErrValidation
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var productStoreID string
	var unitsPerPackage, currentStock int
	var unitSalePrice, packageSalePrice decimal.Decimal
	var active bool
	err = pgTx.QueryRowContext(ctx, `
		SELECT store_id, units_per_package, current_stock, unit_sale_price, package_sale_price, active
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, sale.ProductID).Scan(&productStoreID, &unitsPerPackage, &currentStock, &unitSalePrice, &packageSalePrice, &active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}
	if !active {
		return nil, nil, store.ErrNotFound
	}
	if sale.StoreID != "" && productStoreID != sale.StoreID {
		return nil, nil, store.ErrValidation
	}

	required := sale.RequiredStock(unitsPerPackage)
	if currentStock < required {
		return nil, nil, store.ErrInsufficientStock
	}

	if sale.SaleType == domain.SaleTypePackage {
		sale.UnitPrice = packageSalePrice
	} else {
		sale.UnitPrice = unitSalePrice
	}
	sale.TotalAmount = sale.UnitPrice.Mul(decimal.NewFromInt(int64(sale.Quantity)))

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.UpdatedAt = sale.CreatedAt
	sale.StoreID = productStoreID
	sale.Active = true

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, product_id, seller_id, store_id, quantity, sale_type,
			unit_price, total_amount, payment_type, is_debt,
			client_name, client_phone, notes, active, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, sale.ID, sale.ProductID, sale.SellerID, sale.StoreID, sale.Quantity, sale.SaleType,
		sale.UnitPrice, sale.TotalAmount, sale.PaymentType, sale.IsDebt,
		nullIfEmpty(sale.ClientName), nullIfEmpty(sale.ClientPhone), nullIfEmpty(sale.Notes),
		sale.Active, sale.CreatedAt, sale.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			existing, lookupErr := s.GetSaleByID(ctx, sale.ID)
			if lookupErr != nil {
				return nil, nil, lookupErr
			}
			existingDebt, debtErr := s.GetDebtBySaleID(ctx, sale.ID)
			if debtErr != nil && !errors.Is(debtErr, store.ErrNotFound) {
				return nil, nil, debtErr
			}
			return existing, existingDebt, nil
		}
		return nil, nil, err
	}

	movement := domain.StockMovement{
		ProductID:   sale.ProductID,
		UserID:      sale.SellerID,
		StoreID:     sale.StoreID,
		Type:        domain.MovementOut,
		SignedDelta: -required,
		UnitPrice:   unitSalePrice,
		Reason:      "Sale",
		Reference:   sale.ID,
		CreatedAt:   sale.CreatedAt,
	}
	if _, err := applyMovementTx(ctx, pgTx, movement, false); err != nil {
		return nil, nil, err
	}

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
		if err := insertDebt(ctx, pgTx, d); err != nil {
			return nil, nil, err
		}
		copyDebt := d
		createdDebt = &copyDebt
	}

	if err := pgTx.Commit(); err != nil {
		return nil, nil, err
	}

	created := sale
	return &created, createdDebt, nil
}

func insertDebt(ctx context.Context, pgTx *sql.Tx, d domain.Debt) error {
	_, err := pgTx.ExecContext(ctx, `
		INSERT INTO debts (
			id, sale_id, store_id, amount, paid_amount, remaining_amount, status,
			client_name, client_phone, due_date, notes, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, d.ID, d.SaleID, d.StoreID, d.Amount, d.PaidAmount, d.RemainingAmount, d.Status,
		d.ClientName, nullIfEmpty(d.ClientPhone), d.DueDate, nullIfEmpty(d.Notes),
		d.CreatedAt, d.UpdatedAt)
	return err
}

func (s *Store) GetSaleByID(ctx context.Context, saleID string) (*domain.Sale, error) {
	return s.findSale(ctx, "id", saleID)
}

func (s *Store) findSale(ctx context.Context, column string, value string) (*domain.Sale, error) {
	var sale domain.Sale
	var clientName, clientPhone, notes sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, seller_id, store_id, quantity, sale_type,
		       unit_price, total_amount, payment_type, is_debt,
		       client_name, client_phone, notes, active, created_at, updated_at
		FROM sales
		WHERE `+column+` = $1
	`, value).Scan(&sale.ID, &sale.ProductID, &sale.SellerID, &sale.StoreID, &sale.Quantity,
		&sale.SaleType, &sale.UnitPrice, &sale.TotalAmount, &sale.PaymentType, &sale.IsDebt,
		&clientName, &clientPhone, &notes, &sale.Active, &sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.ClientName = clientName.String
	sale.ClientPhone = clientPhone.String
	sale.Notes = notes.String
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, storeID string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, seller_id, store_id, quantity, sale_type,
		       unit_price, total_amount, payment_type, is_debt,
		       client_name, client_phone, notes, active, created_at, updated_at
		FROM sales
		WHERE ($1 = '' OR store_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		var clientName, clientPhone, notes sql.NullString
		if err := rows.Scan(&sale.ID, &sale.ProductID, &sale.SellerID, &sale.StoreID, &sale.Quantity,
			&sale.SaleType, &sale.UnitPrice, &sale.TotalAmount, &sale.PaymentType, &sale.IsDebt,
			&clientName, &clientPhone, &notes, &sale.Active, &sale.CreatedAt, &sale.UpdatedAt); err != nil {
			return nil, err
		}
		sale.ClientName = clientName.String
		sale.ClientPhone = clientPhone.String
		sale.Notes = notes.String
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) UpdateSaleMetadata(ctx context.Context, saleID string, update domain.SaleUpdateRequest, at time.Time) (*domain.Sale, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales
		SET client_name = COALESCE($2, client_name),
		    client_phone = COALESCE($3, client_phone),
		    notes = COALESCE($4, notes),
		    updated_at = $5
		WHERE id = $1
	`, saleID, update.ClientName, update.ClientPhone, update.Notes, at)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetSaleByID(ctx, saleID)
}

func (s *Store) CancelSale(ctx context.Context, saleID string, userID string, reason string, at time.Time) (*domain.Sale, *domain.StockMovement, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var sale domain.Sale
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, product_id, store_id, quantity, sale_type, active
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, saleID).Scan(&sale.ID, &sale.ProductID, &sale.StoreID, &sale.Quantity, &sale.SaleType, &sale.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}
	if !sale.Active {
		return nil, nil, store.ErrConflict
	}

	var debtID string
	var paidAmount decimal.Decimal
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, paid_amount
		FROM debts
		WHERE sale_id = $1
		FOR UPDATE
	`, saleID).Scan(&debtID, &paidAmount)
	switch {
	case err == nil:
		if paidAmount.IsPositive() {
			return nil, nil, store.ErrConflict
		}
		if _, err := pgTx.ExecContext(ctx, `DELETE FROM debt_payments WHERE debt_id = $1`, debtID); err != nil {
			return nil, nil, err
		}
		if _, err := pgTx.ExecContext(ctx, `DELETE FROM debts WHERE id = $1`, debtID); err != nil {
			return nil, nil, err
		}
	case errors.Is(err, sql.ErrNoRows):
		// no debt attached
	default:
		return nil, nil, err
	}

	var unitsPerPackage int
	if err := pgTx.QueryRowContext(ctx, `
		SELECT units_per_package FROM products WHERE id = $1
	`, sale.ProductID).Scan(&unitsPerPackage); err != nil {
		return nil, nil, err
	}
	required := sale.RequiredStock(unitsPerPackage)

	movement := domain.StockMovement{
		ProductID:   sale.ProductID,
		UserID:      userID,
		StoreID:     sale.StoreID,
		Type:        domain.MovementIn,
		SignedDelta: required,
		Reason:      reason,
		Reference:   sale.ID,
		CreatedAt:   at,
	}
	applied, err := applyMovementTx(ctx, pgTx, movement, false)
	if err != nil {
		return nil, nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET active = false, updated_at = $2
		WHERE id = $1
	`, saleID, at)
	if err != nil {
		return nil, nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, nil, err
	}

	cancelled, err := s.GetSaleByID(ctx, saleID)
	if err != nil {
		return nil, nil, err
	}
	return cancelled, applied, nil
}

func (s *Store) CreateDebt(ctx context.Context, debt domain.Debt) (*domain.Debt, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var sale domain.Sale
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, store_id, total_amount, created_at
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, debt.SaleID).Scan(&sale.ID, &sale.StoreID, &sale.TotalAmount, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if debt.ID == "" {
		debt.ID = xid.New("debt")
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

	if err := insertDebt(ctx, pgTx, debt); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := debt
	return &created, nil
}

func (s *Store) GetDebtByID(ctx context.Context, debtID string) (*domain.Debt, error) {
	return s.findDebt(ctx, "id", debtID)
}

func (s *Store) GetDebtBySaleID(ctx context.Context, saleID string) (*domain.Debt, error) {
	return s.findDebt(ctx, "sale_id", saleID)
}

func (s *Store) findDebt(ctx context.Context, column string, value string) (*domain.Debt, error) {
	var d domain.Debt
	var clientPhone, notes sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sale_id, store_id, amount, paid_amount, remaining_amount, status,
		       client_name, client_phone, due_date, notes, created_at, updated_at
		FROM debts
		WHERE `+column+` = $1
	`, value).Scan(&d.ID, &d.SaleID, &d.StoreID, &d.Amount, &d.PaidAmount, &d.RemainingAmount,
		&d.Status, &d.ClientName, &clientPhone, &d.DueDate, &notes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	d.ClientPhone = clientPhone.String
	d.Notes = notes.String
	return &d, nil
}

func (s *Store) ListDebts(ctx context.Context, storeID string, limit int) ([]domain.Debt, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, store_id, amount, paid_amount, remaining_amount, status,
		       client_name, client_phone, due_date, notes, created_at, updated_at
		FROM debts
		WHERE ($1 = '' OR store_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	debts := make([]domain.Debt, 0, limit)
	for rows.Next() {
		var d domain.Debt
		var clientPhone, notes sql.NullString
		if err := rows.Scan(&d.ID, &d.SaleID, &d.StoreID, &d.Amount, &d.PaidAmount, &d.RemainingAmount,
			&d.Status, &d.ClientName, &clientPhone, &d.DueDate, &notes, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.ClientPhone = clientPhone.String
		d.Notes = notes.String
		debts = append(debts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return debts, nil
}

func (s *Store) AddDebtPayment(ctx context.Context, payment domain.DebtPayment) (*domain.DebtPayment, *domain.Debt, error) {
	if !payment.Amount.IsPositive() {
		return nil, nil, store.ErrValidation
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var d domain.Debt
	var clientPhone, notes sql.NullString
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, sale_id, store_id, amount, paid_amount, remaining_amount, status,
		       client_name, client_phone, due_date, notes, created_at, updated_at
		FROM debts
		WHERE id = $1
		FOR UPDATE
	`, payment.DebtID).Scan(&d.ID, &d.SaleID, &d.StoreID, &d.Amount, &d.PaidAmount, &d.RemainingAmount,
		&d.Status, &d.ClientName, &clientPhone, &d.DueDate, &notes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}
	d.ClientPhone = clientPhone.String
	d.Notes = notes.String

	if payment.Amount.GreaterThan(d.RemainingAmount) {
		return nil, nil, store.ErrPaymentExceedsRemaining
	}

	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO debt_payments (id, debt_id, amount, payment_type, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, payment.ID, payment.DebtID, payment.Amount, payment.PaymentType, nullIfEmpty(payment.Notes), payment.CreatedAt)
	if err != nil {
		return nil, nil, err
	}

	d.PaidAmount = d.PaidAmount.Add(payment.Amount)
	d.RemainingAmount = d.Amount.Sub(d.PaidAmount)
	if d.RemainingAmount.IsZero() {
		d.Status = domain.DebtStatusPaid
	} else {
		d.Status = domain.DebtStatusPartial
	}
	d.UpdatedAt = payment.CreatedAt

	_, err = pgTx.ExecContext(ctx, `
		UPDATE debts
		SET paid_amount = $2, remaining_amount = $3, status = $4, updated_at = $5
		WHERE id = $1
	`, d.ID, d.PaidAmount, d.RemainingAmount, d.Status, d.UpdatedAt)
	if err != nil {
		return nil, nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, nil, err
	}

	copyPayment := payment
	copyDebt := d
	return &copyPayment, &copyDebt, nil
}

func (s *Store) ListDebtPayments(ctx context.Context, debtID string) ([]domain.DebtPayment, error) {
	if _, err := s.GetDebtByID(ctx, debtID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, debt_id, amount, payment_type, notes, created_at
		FROM debt_payments
		WHERE debt_id = $1
		ORDER BY created_at ASC, id ASC
	`, debtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.DebtPayment, 0, 8)
	for rows.Next() {
		var p domain.DebtPayment
		var notes sql.NullString
		if err := rows.Scan(&p.ID, &p.DebtID, &p.Amount, &p.PaymentType, &notes, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Notes = notes.String
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) UpdateDebtMetadata(ctx context.Context, debtID string, clientName, clientPhone, notes *string, dueDate *time.Time, at time.Time) (*domain.Debt, error) {
	if clientName != nil {
		name := strings.TrimSpace(*clientName)
		if name == "" {
			name = "Unknown"
		}
		clientName = &name
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE debts
		SET client_name = COALESCE($2, client_name),
		    client_phone = COALESCE($3, client_phone),
		    notes = COALESCE($4, notes),
		    due_date = COALESCE($5, due_date),
		    updated_at = $6
		WHERE id = $1
	`, debtID, clientName, clientPhone, notes, nullTime(dueDate), at)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetDebtByID(ctx, debtID)
}

func (s *Store) EnqueueSyncItem(ctx context.Context, item domain.SyncQueueItem) (*domain.SyncQueueItem, error) {
	if item.ID == "" {
		item.ID = xid.New("sync")
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_queue (
			id, user_id, store_id, action, table_name, record_id, data,
			client_timestamp, status, attempts, max_attempts, last_error, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, item.ID, item.UserID, item.StoreID, item.Action, item.TableName, item.RecordID,
		[]byte(item.Data), item.ClientTimestamp, item.Status, item.Attempts, item.MaxAttempts,
		nullIfEmpty(item.LastError), item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return s.getSyncItemByID(ctx, item.ID)
		}
		return nil, err
	}

	created := item
	return &created, nil
}

func (s *Store) getSyncItemByID(ctx context.Context, itemID string) (*domain.SyncQueueItem, error) {
	var item domain.SyncQueueItem
	var lastError sql.NullString
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, store_id, action, table_name, record_id, data,
		       client_timestamp, status, attempts, max_attempts, last_error, created_at, updated_at
		FROM sync_queue
		WHERE id = $1
	`, itemID).Scan(&item.ID, &item.UserID, &item.StoreID, &item.Action, &item.TableName,
		&item.RecordID, &data, &item.ClientTimestamp, &item.Status, &item.Attempts,
		&item.MaxAttempts, &lastError, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	item.Data = data
	item.LastError = lastError.String
	return &item, nil
}

func (s *Store) MarkSyncItem(ctx context.Context, itemID string, status domain.SyncStatus, lastError string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue
		SET status = $2,
		    last_error = $3,
		    attempts = attempts + CASE WHEN $2 = 'failed' THEN 1 ELSE 0 END,
		    updated_at = $4
		WHERE id = $1
	`, itemID, status, nullIfEmpty(lastError), at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListSyncItems(ctx context.Context, userID string, status domain.SyncStatus, limit int) ([]domain.SyncQueueItem, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, store_id, action, table_name, record_id, data,
		       client_timestamp, status, attempts, max_attempts, last_error, created_at, updated_at
		FROM sync_queue
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`, userID, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSyncItems(rows)
}

func (s *Store) RequeueFailedSyncItems(ctx context.Context, userID string, at time.Time) ([]domain.SyncQueueItem, error) {
	// Single statement so the attempt-cap check and the transition cannot
	// race with a concurrent retry.
	rows, err := s.db.QueryContext(ctx, `
		UPDATE sync_queue
		SET status = 'pending', updated_at = $2
		WHERE ($1 = '' OR user_id = $1) AND status = 'failed' AND attempts < max_attempts
		RETURNING id, user_id, store_id, action, table_name, record_id, data,
		          client_timestamp, status, attempts, max_attempts, last_error, created_at, updated_at
	`, userID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanSyncItems(rows)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(items, func(a, b domain.SyncQueueItem) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return items, nil
}

func scanSyncItems(rows *sql.Rows) ([]domain.SyncQueueItem, error) {
	items := make([]domain.SyncQueueItem, 0, 32)
	for rows.Next() {
		var item domain.SyncQueueItem
		var lastError sql.NullString
		var data []byte
		if err := rows.Scan(&item.ID, &item.UserID, &item.StoreID, &item.Action, &item.TableName,
			&item.RecordID, &data, &item.ClientTimestamp, &item.Status, &item.Attempts,
			&item.MaxAttempts, &lastError, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		item.Data = data
		item.LastError = lastError.String
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) PullChanges(ctx context.Context, storeID string, since time.Time, sinceID string, limit int) ([]domain.SyncChange, error) {
	if limit < 1 {
		limit = 500
	}
	// (updated_at, record_id) is a compound cursor: rows tied on updated_at
	// past a page cut are picked up by the record id comparison on the next
	// pull instead of being skipped forever.
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, record_id, data, updated_at
		FROM (
			SELECT 'products' AS table_name, id AS record_id, to_jsonb(p) AS data, updated_at
			FROM products p
			WHERE ($1 = '' OR store_id = $1)
			  AND (updated_at > $2 OR (updated_at = $2 AND $3 <> '' AND id > $3))
			UNION ALL
			SELECT 'sales', id, to_jsonb(s), updated_at
			FROM sales s
			WHERE ($1 = '' OR store_id = $1)
			  AND (updated_at > $2 OR (updated_at = $2 AND $3 <> '' AND id > $3))
			UNION ALL
			SELECT 'debts', id, to_jsonb(d), updated_at
			FROM debts d
			WHERE ($1 = '' OR store_id = $1)
			  AND (updated_at > $2 OR (updated_at = $2 AND $3 <> '' AND id > $3))
		) changes
		ORDER BY updated_at ASC, record_id ASC
		LIMIT $4
	`, storeID, since, sinceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := make([]domain.SyncChange, 0, limit)
	for rows.Next() {
		var c domain.SyncChange
		var data []byte
		if err := rows.Scan(&c.TableName, &c.RecordID, &data, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Action = domain.SyncActionUpdate
		c.Data = data
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return changes, nil
}

func (s *Store) GetSaleFacts(ctx context.Context, storeID string, from, to time.Time) ([]domain.SaleFact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.product_id, p.name, s.sale_type, s.quantity,
		       CASE WHEN s.sale_type = 'PACKAGE' THEN s.quantity * p.units_per_package ELSE s.quantity END,
		       s.total_amount,
		       CASE WHEN p.units_per_package > 0 THEN p.package_purchase_price / p.units_per_package ELSE p.package_purchase_price END,
		       s.created_at
		FROM sales s
		JOIN products p ON p.id = s.product_id
		WHERE s.active = true
		  AND ($1 = '' OR s.store_id = $1)
		  AND s.created_at >= $2 AND s.created_at < $3
		ORDER BY s.created_at ASC
	`, storeID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	facts := make([]domain.SaleFact, 0, 256)
	for rows.Next() {
		var f domain.SaleFact
		if err := rows.Scan(&f.ProductID, &f.ProductName, &f.SaleType, &f.Quantity,
			&f.UnitsSold, &f.Revenue, &f.UnitCost, &f.CreatedAt); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return facts, nil
}

func (s *Store) GetDebtSummary(ctx context.Context, storeID string) (domain.DebtSummary, error) {
	var summary domain.DebtSummary
	var outstanding decimal.NullDecimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(remaining_amount), 0)
		FROM debts
		WHERE ($1 = '' OR store_id = $1) AND status <> 'PAID'
	`, storeID).Scan(&summary.OpenDebts, &outstanding)
	if err != nil {
		return domain.DebtSummary{}, err
	}
	summary.Outstanding = outstanding.Decimal
	return summary, nil
}

func (s *Store) CountLowStock(ctx context.Context, storeID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM products
		WHERE active = true AND ($1 = '' OR store_id = $1) AND current_stock <= min_stock_alert
	`, storeID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = domain.RoleSeller
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, store_id, active, created_at)
		VALUES ($1,$2,$3,$4,true,$5)
	`, username, user.Password, user.Role, nullIfEmpty(user.StoreID), user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, store_id, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		var storeID sql.NullString
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &storeID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.StoreID = storeID.String
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
