package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Store struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StoreCreateRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type Product struct {
	ID                   string          `json:"id"`
	StoreID              string          `json:"store_id"`
	Name                 string          `json:"name"`
	Category             string          `json:"category"`
	UnitsPerPackage      int             `json:"units_per_package"`
	CurrentStock         int             `json:"current_stock"`
	PackagePurchasePrice decimal.Decimal `json:"package_purchase_price"`
	UnitSalePrice        decimal.Decimal `json:"unit_sale_price"`
	PackageSalePrice     decimal.Decimal `json:"package_sale_price"`
	MinStockAlert        int             `json:"min_stock_alert"`
	Active               bool            `json:"active"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// LowStock reports whether the product is at or below its alert level.
func (p Product) LowStock() bool {
	return p.CurrentStock <= p.MinStockAlert
}

// UnitPurchasePrice spreads the package purchase price over the units in a
// package, for margin estimates.
func (p Product) UnitPurchasePrice() decimal.Decimal {
	if p.UnitsPerPackage <= 0 {
		return p.PackagePurchasePrice
	}
	return p.PackagePurchasePrice.Div(decimal.NewFromInt(int64(p.UnitsPerPackage)))
}

type ProductCreateRequest struct {
	ID                   string          `json:"id,omitempty"`
	StoreID              string          `json:"store_id"`
	Name                 string          `json:"name"`
	Category             string          `json:"category"`
	UnitsPerPackage      int             `json:"units_per_package"`
	InitialStock         int             `json:"initial_stock"`
	PackagePurchasePrice decimal.Decimal `json:"package_purchase_price"`
	UnitSalePrice        decimal.Decimal `json:"unit_sale_price"`
	PackageSalePrice     decimal.Decimal `json:"package_sale_price"`
	MinStockAlert        int             `json:"min_stock_alert"`
}

type ProductUpdateRequest struct {
	Name                 *string          `json:"name,omitempty"`
	Category             *string          `json:"category,omitempty"`
	UnitsPerPackage      *int             `json:"units_per_package,omitempty"`
	PackagePurchasePrice *decimal.Decimal `json:"package_purchase_price,omitempty"`
	UnitSalePrice        *decimal.Decimal `json:"unit_sale_price,omitempty"`
	PackageSalePrice     *decimal.Decimal `json:"package_sale_price,omitempty"`
	MinStockAlert        *int             `json:"min_stock_alert,omitempty"`
	Active               *bool            `json:"active,omitempty"`
}

type SaleType string

const (
	SaleTypeUnit    SaleType = "UNIT"
	SaleTypePackage SaleType = "PACKAGE"
)

type Sale struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	SellerID    string          `json:"seller_id"`
	StoreID     string          `json:"store_id"`
	Quantity    int             `json:"quantity"`
	SaleType    SaleType        `json:"sale_type"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaymentType string          `json:"payment_type"`
	IsDebt      bool            `json:"is_debt"`
	ClientName  string          `json:"client_name,omitempty"`
	ClientPhone string          `json:"client_phone,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RequiredStock returns the base units this sale consumes given the product's
// package size.
func (s Sale) RequiredStock(unitsPerPackage int) int {
	if s.SaleType == SaleTypePackage {
		return s.Quantity * unitsPerPackage
	}
	return s.Quantity
}

type SaleCreateRequest struct {
	ID          string   `json:"id,omitempty"`
	ProductID   string   `json:"product_id"`
	StoreID     string   `json:"store_id"`
	Quantity    int      `json:"quantity"`
	SaleType    SaleType `json:"sale_type"`
	PaymentType string   `json:"payment_type"`
	IsDebt      bool     `json:"is_debt"`
	ClientName  string   `json:"client_name,omitempty"`
	ClientPhone string   `json:"client_phone,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
}

type SaleUpdateRequest struct {
	ClientName  *string `json:"client_name,omitempty"`
	ClientPhone *string `json:"client_phone,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

type SaleResponse struct {
	Sale Sale  `json:"sale"`
	Debt *Debt `json:"debt,omitempty"`
}

type SaleListResponse struct {
	Sales []Sale `json:"sales"`
}

type MovementType string

const (
	MovementIn         MovementType = "IN"
	MovementOut        MovementType = "OUT"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementTransfer   MovementType = "TRANSFER"
)

// StockMovement is an append-only ledger entry. Quantity is the non-negative
// magnitude; SignedDelta carries the direction so ADJUSTMENT entries never
// overload the magnitude with a sign.
type StockMovement struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	UserID        string          `json:"user_id"`
	StoreID       string          `json:"store_id"`
	Type          MovementType    `json:"type"`
	Quantity      int             `json:"quantity"`
	SignedDelta   int             `json:"signed_delta"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TotalValue    decimal.Decimal `json:"total_value"`
	Reason        string          `json:"reason,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	PreviousStock int             `json:"previous_stock"`
	NewStock      int             `json:"new_stock"`
	CreatedAt     time.Time       `json:"created_at"`
}

type StockMovementRequest struct {
	ID          string           `json:"id,omitempty"`
	ProductID   string           `json:"product_id"`
	StoreID     string           `json:"store_id"`
	Type        MovementType     `json:"type"`
	Quantity    int              `json:"quantity"`
	SignedDelta int              `json:"signed_delta,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	Reference   string           `json:"reference,omitempty"`
	// Force clamps the resulting stock at zero instead of rejecting a
	// movement that would drive it negative.
	Force bool `json:"force,omitempty"`
}

type StockMovementListResponse struct {
	Movements []StockMovement `json:"movements"`
}

type StockAdjustment struct {
	ProductID string `json:"product_id"`
	NewStock  int    `json:"new_stock"`
	Reason    string `json:"reason,omitempty"`
}

type BulkAdjustRequest struct {
	StoreID     string            `json:"store_id"`
	Adjustments []StockAdjustment `json:"adjustments"`
}

type BulkAdjustResponse struct {
	Movements []StockMovement `json:"movements"`
	Skipped   []string        `json:"skipped,omitempty"`
}

type DebtStatus string

const (
	DebtStatusPending DebtStatus = "PENDING"
	DebtStatusPartial DebtStatus = "PARTIAL"
	DebtStatusPaid    DebtStatus = "PAID"
	// DebtStatusOverdue is derived at read time and never stored.
	DebtStatusOverdue DebtStatus = "OVERDUE"
)

type Debt struct {
	ID              string          `json:"id"`
	SaleID          string          `json:"sale_id"`
	StoreID         string          `json:"store_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Status          DebtStatus      `json:"status"`
	ClientName      string          `json:"client_name"`
	ClientPhone     string          `json:"client_phone,omitempty"`
	DueDate         time.Time       `json:"due_date"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// EffectiveStatus folds the derived OVERDUE classification into the stored
// status without writing it back.
func (d Debt) EffectiveStatus(now time.Time) DebtStatus {
	if d.Status != DebtStatusPaid && !d.DueDate.IsZero() && d.DueDate.Before(now) {
		return DebtStatusOverdue
	}
	return d.Status
}

type DebtPayment struct {
	ID          string          `json:"id"`
	DebtID      string          `json:"debt_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentType string          `json:"payment_type"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type DebtPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentType string          `json:"payment_type"`
	Notes       string          `json:"notes,omitempty"`
}

type DebtUpdateRequest struct {
	ClientName  *string `json:"client_name,omitempty"`
	ClientPhone *string `json:"client_phone,omitempty"`
	Notes       *string `json:"notes,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
}

type DebtPaymentResponse struct {
	Payment DebtPayment `json:"payment"`
	Debt    Debt        `json:"debt"`
}

type DebtDetailResponse struct {
	Debt     Debt          `json:"debt"`
	Payments []DebtPayment `json:"payments"`
}

type DebtListResponse struct {
	Debts []Debt `json:"debts"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	StoreID     string `json:"store_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

type Actor struct {
	Username string
	Role     string
	StoreID  string
}

// IsAdmin reports whether the actor bypasses store scoping.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type SellerCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	StoreID  string `json:"store_id"`
}

type SellerUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	StoreID   string    `json:"store_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	StoreID   string
	Active    bool
	CreatedAt time.Time
}

type ReportPeriod string

const (
	PeriodToday ReportPeriod = "today"
	PeriodWeek  ReportPeriod = "week"
	PeriodMonth ReportPeriod = "month"
	PeriodYear  ReportPeriod = "year"
)

// SaleFact is the raw per-sale row the report engine aggregates over.
type SaleFact struct {
	ProductID   string
	ProductName string
	SaleType    SaleType
	Quantity    int
	UnitsSold   int
	Revenue     decimal.Decimal
	UnitCost    decimal.Decimal
	CreatedAt   time.Time
}

type TopProduct struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitsSold   int             `json:"units_sold"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type DebtSummary struct {
	OpenDebts   int             `json:"open_debts"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

type DashboardStats struct {
	StoreID         string          `json:"store_id"`
	Period          ReportPeriod    `json:"period"`
	From            time.Time       `json:"from"`
	To              time.Time       `json:"to"`
	SalesCount      int             `json:"sales_count"`
	UnitsSold       int             `json:"units_sold"`
	Revenue         decimal.Decimal `json:"revenue"`
	EstimatedMargin decimal.Decimal `json:"estimated_margin"`
	DebtSummary     DebtSummary     `json:"debt_summary"`
	LowStockCount   int             `json:"low_stock_count"`
	TopProducts     []TopProduct    `json:"top_products"`
	GeneratedAt     time.Time       `json:"generated_at"`
}
