package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/report"
	"warungpos/backend/internal/store"
	"warungpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo          store.Repository
	reports       *report.Engine
	logger        *zap.SugaredLogger
	syncPushLimit int
	syncPullLimit int
}

func New(repo store.Repository, reports *report.Engine, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Service{
		repo:          repo,
		reports:       reports,
		logger:        logger.Named("service"),
		syncPushLimit: 100,
		syncPullLimit: 500,
	}
}

// SetSyncLimits overrides the push/pull batch caps; values below 1 keep the
// defaults.
func (s *Service) SetSyncLimits(push int, pull int) {
	if push > 0 {
		s.syncPushLimit = push
	}
	if pull > 0 {
		s.syncPullLimit = pull
	}
}

func (s *Service) requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, store.ErrUnauthorized
	}
	return actor, nil
}

func (s *Service) requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if !actor.IsAdmin() {
		return domain.Actor{}, store.ErrUnauthorized
	}
	return actor, nil
}

// authorizeStore resolves the effective store for a request: admins may target
// any store (or all stores with an empty id), sellers are confined to their
// own.
func authorizeStore(actor domain.Actor, storeID string) (string, error) {
	if actor.IsAdmin() {
		return storeID, nil
	}
	if actor.StoreID == "" {
		return "", store.ErrUnauthorized
	}
	if storeID == "" || storeID == actor.StoreID {
		return actor.StoreID, nil
	}
	return "", store.ErrUnauthorized
}

func (s *Service) CreateStore(ctx context.Context, req domain.StoreCreateRequest) (domain.Store, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Store{}, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return domain.Store{}, store.ErrValidation
	}

	created, err := s.repo.CreateStore(ctx, domain.Store{
		Name:    strings.TrimSpace(req.Name),
		Address: strings.TrimSpace(req.Address),
		Phone:   strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return domain.Store{}, err
	}
	s.logger.Infow("store created", "store_id", created.ID, "name", created.Name)
	return *created, nil
}

func (s *Service) ListStores(ctx context.Context) ([]domain.Store, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return s.repo.ListStores(ctx)
	}
	st, err := s.repo.GetStoreByID(ctx, actor.StoreID)
	if err != nil {
		return nil, err
	}
	return []domain.Store{*st}, nil
}

func (s *Service) DeactivateStore(ctx context.Context, storeID string) (domain.Store, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Store{}, err
	}
	updated, err := s.repo.DeactivateStore(ctx, storeID, time.Now().UTC())
	if err != nil {
		return domain.Store{}, err
	}
	s.logger.Infow("store deactivated", "store_id", storeID)
	return *updated, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	storeID, err := authorizeStore(actor, req.StoreID)
	if err != nil {
		return domain.Product{}, err
	}
	if storeID == "" {
		return domain.Product{}, store.ErrValidation
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" {
		return domain.Product{}, store.ErrValidation
	}
	if req.UnitsPerPackage < 1 || req.InitialStock < 0 || req.MinStockAlert < 0 {
		return domain.Product{}, store.ErrValidation
	}
	if req.PackagePurchasePrice.IsNegative() || req.UnitSalePrice.IsNegative() || req.PackageSalePrice.IsNegative() {
		return domain.Product{}, store.ErrValidation
	}
	if req.ID != "" && !xid.Valid(req.ID) {
		return domain.Product{}, store.ErrValidation
	}

	product := domain.Product{
		ID:                   req.ID,
		StoreID:              storeID,
		Name:                 req.Name,
		Category:             req.Category,
		UnitsPerPackage:      req.UnitsPerPackage,
		CurrentStock:         req.InitialStock,
		PackagePurchasePrice: req.PackagePurchasePrice,
		UnitSalePrice:        req.UnitSalePrice,
		PackageSalePrice:     req.PackageSalePrice,
		MinStockAlert:        req.MinStockAlert,
	}

	var initialMovement *domain.StockMovement
	if req.InitialStock > 0 {
		initialMovement = &domain.StockMovement{
			UserID: actor.Username,
			Reason: "Initial stock",
		}
	}

	created, err := s.repo.CreateProduct(ctx, product, initialMovement)
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.Infow("product created", "product_id", created.ID, "store_id", storeID, "initial_stock", req.InitialStock)
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if _, err := authorizeStore(actor, product.StoreID); err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	storeID, err = authorizeStore(actor, storeID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, storeID, true)
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	existing, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if _, err := authorizeStore(actor, existing.StoreID); err != nil {
		return domain.Product{}, err
	}

	product := *existing
	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		product.Category = strings.TrimSpace(*req.Category)
	}
	if req.UnitsPerPackage != nil {
		product.UnitsPerPackage = *req.UnitsPerPackage
	}
	if req.PackagePurchasePrice != nil {
		product.PackagePurchasePrice = *req.PackagePurchasePrice
	}
	if req.UnitSalePrice != nil {
		product.UnitSalePrice = *req.UnitSalePrice
	}
	if req.PackageSalePrice != nil {
		product.PackageSalePrice = *req.PackageSalePrice
	}
	if req.MinStockAlert != nil {
		product.MinStockAlert = *req.MinStockAlert
	}
	if req.Active != nil {
		product.Active = *req.Active
	}

	if product.Name == "" || product.UnitsPerPackage < 1 || product.MinStockAlert < 0 {
		return domain.Product{}, store.ErrValidation
	}
	if product.PackagePurchasePrice.IsNegative() || product.UnitSalePrice.IsNegative() || product.PackageSalePrice.IsNegative() {
		return domain.Product{}, store.ErrValidation
	}

	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.Infow("product updated", "product_id", productID, "store_id", updated.StoreID)
	return *updated, nil
}

// DeleteProduct is a logical delete: the row stays for ledger references.
func (s *Service) DeleteProduct(ctx context.Context, productID string) error {
	inactive := false
	_, err := s.UpdateProduct(ctx, productID, domain.ProductUpdateRequest{Active: &inactive})
	return err
}

func (s *Service) Dashboard(ctx context.Context, storeID string, period domain.ReportPeriod) (*domain.DashboardStats, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	storeID, err = authorizeStore(actor, storeID)
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = domain.PeriodToday
	}

	return s.reports.Stats(ctx, storeID, period, time.Now().UTC(),
		func(ctx context.Context, from, to time.Time) ([]domain.SaleFact, domain.DebtSummary, int, error) {
			facts, err := s.repo.GetSaleFacts(ctx, storeID, from, to)
			if err != nil {
				return nil, domain.DebtSummary{}, 0, err
			}
			debtSummary, err := s.repo.GetDebtSummary(ctx, storeID)
			if err != nil {
				return nil, domain.DebtSummary{}, 0, err
			}
			lowStock, err := s.repo.CountLowStock(ctx, storeID)
			if err != nil {
				return nil, domain.DebtSummary{}, 0, err
			}
			return facts, debtSummary, lowStock, nil
		})
}

func (s *Service) CreateSeller(ctx context.Context, req domain.SellerCreateRequest) (domain.SellerUser, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.SellerUser{}, err
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || len(req.Password) < 8 || req.StoreID == "" {
		return domain.SellerUser{}, store.ErrValidation
	}
	if _, err := s.repo.GetStoreByID(ctx, req.StoreID); err != nil {
		return domain.SellerUser{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.SellerUser{}, err
	}

	account := domain.UserAccount{
		Username:  username,
		Password:  string(hash),
		Role:      domain.RoleSeller,
		StoreID:   req.StoreID,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, account); err != nil {
		return domain.SellerUser{}, err
	}
	s.logger.Infow("seller created", "username", username, "store_id", req.StoreID)

	return domain.SellerUser{
		Username:  account.Username,
		Role:      account.Role,
		StoreID:   account.StoreID,
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
	}, nil
}

func (s *Service) ListSellers(ctx context.Context) ([]domain.SellerUser, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	sellers := make([]domain.SellerUser, 0, len(accounts))
	for _, account := range accounts {
		sellers = append(sellers, domain.SellerUser{
			Username:  account.Username,
			Role:      account.Role,
			StoreID:   account.StoreID,
			Active:    account.Active,
			CreatedAt: account.CreatedAt,
		})
	}
	return sellers, nil
}

// invalidateStats drops cached dashboard aggregates after a ledger write.
func (s *Service) invalidateStats(ctx context.Context, storeID string) {
	if s.reports == nil {
		return
	}
	s.reports.Invalidate(ctx, storeID)
}
