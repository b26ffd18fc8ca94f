package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"warungpos/backend/internal/cache"
	"warungpos/backend/internal/domain"
)

const topProductLimit = 5

// Loader fetches the raw rows for one aggregation window.
type Loader func(ctx context.Context, from, to time.Time) ([]domain.SaleFact, domain.DebtSummary, int, error)

type Engine struct {
	cache    cache.StatsCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.StatsCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopStatsCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

// Stats returns the dashboard aggregate for one store and period, consulting
// the cache before touching storage.
func (e *Engine) Stats(ctx context.Context, storeID string, period domain.ReportPeriod, now time.Time, load Loader) (*domain.DashboardStats, error) {
	from, to, err := PeriodWindow(period, now)
	if err != nil {
		return nil, err
	}

	cacheKey := CacheKey(storeID, period)
	if cached, ok, cacheErr := e.cache.Get(ctx, cacheKey); cacheErr == nil && ok {
		return cached, nil
	}

	facts, debtSummary, lowStock, err := load(ctx, from, to)
	if err != nil {
		return nil, err
	}

	stats := aggregate(storeID, period, from, to, facts, debtSummary, lowStock, now)
	_ = e.cache.Set(ctx, cacheKey, stats, e.cacheTTL)
	return stats, nil
}

// Invalidate drops all cached periods for a store after a write.
func (e *Engine) Invalidate(ctx context.Context, storeID string) {
	_ = e.cache.Invalidate(ctx, "pos:stats:"+storeID+":*")
}

func CacheKey(storeID string, period domain.ReportPeriod) string {
	return fmt.Sprintf("pos:stats:%s:%s", storeID, period)
}

// PeriodWindow maps a report period to a half-open [from, to) UTC window
// ending now.
func PeriodWindow(period domain.ReportPeriod, now time.Time) (time.Time, time.Time, error) {
	now = now.UTC()
	to := now
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch period {
	case domain.PeriodToday:
		return startOfDay, to, nil
	case domain.PeriodWeek:
		return startOfDay.AddDate(0, 0, -6), to, nil
	case domain.PeriodMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), to, nil
	case domain.PeriodYear:
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC), to, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q", period)
	}
}

func aggregate(storeID string, period domain.ReportPeriod, from, to time.Time, facts []domain.SaleFact, debtSummary domain.DebtSummary, lowStock int, now time.Time) *domain.DashboardStats {
	stats := &domain.DashboardStats{
		StoreID:         storeID,
		Period:          period,
		From:            from,
		To:              to,
		Revenue:         decimal.Zero,
		EstimatedMargin: decimal.Zero,
		DebtSummary:     debtSummary,
		LowStockCount:   lowStock,
		TopProducts:     make([]domain.TopProduct, 0, topProductLimit),
		GeneratedAt:     now.UTC(),
	}

	type productAgg struct {
		name      string
		unitsSold int
		revenue   decimal.Decimal
	}
	byProduct := map[string]*productAgg{}

	for _, fact := range facts {
		stats.SalesCount++
		stats.UnitsSold += fact.UnitsSold
		stats.Revenue = stats.Revenue.Add(fact.Revenue)

		cost := fact.UnitCost.Mul(decimal.NewFromInt(int64(fact.UnitsSold)))
		stats.EstimatedMargin = stats.EstimatedMargin.Add(fact.Revenue.Sub(cost))

		agg := byProduct[fact.ProductID]
		if agg == nil {
			agg = &productAgg{name: fact.ProductName, revenue: decimal.Zero}
			byProduct[fact.ProductID] = agg
		}
		agg.unitsSold += fact.UnitsSold
		agg.revenue = agg.revenue.Add(fact.Revenue)
	}

	top := make([]domain.TopProduct, 0, len(byProduct))
	for productID, agg := range byProduct {
		top = append(top, domain.TopProduct{
			ProductID:   productID,
			ProductName: agg.name,
			UnitsSold:   agg.unitsSold,
			Revenue:     agg.revenue,
		})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].UnitsSold != top[j].UnitsSold {
			return top[i].UnitsSold > top[j].UnitsSold
		}
		if !top[i].Revenue.Equal(top[j].Revenue) {
			return top[i].Revenue.GreaterThan(top[j].Revenue)
		}
		return top[i].ProductID < top[j].ProductID
	})
	if len(top) > topProductLimit {
		top = top[:topProductLimit]
	}
	stats.TopProducts = top

	return stats
}
