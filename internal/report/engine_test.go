package report

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"warungpos/backend/internal/domain"
)

func TestPeriodWindow(t *testing.T) {
	now := time.Date(2025, time.March, 15, 14, 30, 0, 0, time.UTC)

	from, to, err := PeriodWindow(domain.PeriodToday, now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC), from)
	require.Equal(t, now, to)

	from, _, err = PeriodWindow(domain.PeriodWeek, now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, time.March, 9, 0, 0, 0, 0, time.UTC), from)

	from, _, err = PeriodWindow(domain.PeriodMonth, now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), from)

	from, _, err = PeriodWindow(domain.PeriodYear, now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), from)

	_, _, err = PeriodWindow("quarter", now)
	require.Error(t, err)
}

func TestStatsAggregation(t *testing.T) {
	engine := NewEngine(nil, time.Second)
	now := time.Now().UTC()

	facts := []domain.SaleFact{
		{ProductID: "p1", ProductName: "Telur", SaleType: domain.SaleTypeUnit, Quantity: 5, UnitsSold: 5, Revenue: decimal.NewFromInt(13250), UnitCost: decimal.NewFromInt(2200), CreatedAt: now},
		{ProductID: "p1", ProductName: "Telur", SaleType: domain.SaleTypeUnit, Quantity: 2, UnitsSold: 2, Revenue: decimal.NewFromInt(5300), UnitCost: decimal.NewFromInt(2200), CreatedAt: now},
		{ProductID: "p2", ProductName: "Mie", SaleType: domain.SaleTypePackage, Quantity: 1, UnitsSold: 40, Revenue: decimal.NewFromInt(118000), UnitCost: decimal.NewFromInt(2450), CreatedAt: now},
	}
	summary := domain.DebtSummary{OpenDebts: 2, Outstanding: decimal.NewFromInt(40000)}

	stats, err := engine.Stats(context.Background(), "store-main", domain.PeriodToday, now,
		func(_ context.Context, _, _ time.Time) ([]domain.SaleFact, domain.DebtSummary, int, error) {
			return facts, summary, 3, nil
		})
	require.NoError(t, err)

	require.Equal(t, 3, stats.SalesCount)
	require.Equal(t, 47, stats.UnitsSold)
	require.True(t, stats.Revenue.Equal(decimal.NewFromInt(136550)))
	// margin = revenue - unit cost * units sold per fact
	expectedMargin := decimal.NewFromInt(136550).
		Sub(decimal.NewFromInt(2200 * 7)).
		Sub(decimal.NewFromInt(2450 * 40))
	require.True(t, stats.EstimatedMargin.Equal(expectedMargin))
	require.Equal(t, 2, stats.DebtSummary.OpenDebts)
	require.Equal(t, 3, stats.LowStockCount)

	require.Len(t, stats.TopProducts, 2)
	require.Equal(t, "p2", stats.TopProducts[0].ProductID)
	require.Equal(t, 40, stats.TopProducts[0].UnitsSold)
	require.Equal(t, "p1", stats.TopProducts[1].ProductID)
	require.Equal(t, 7, stats.TopProducts[1].UnitsSold)
}

func TestTopProductsCappedAtFive(t *testing.T) {
	engine := NewEngine(nil, time.Second)
	now := time.Now().UTC()

	facts := make([]domain.SaleFact, 0, 8)
	for i := 0; i < 8; i++ {
		facts = append(facts, domain.SaleFact{
			ProductID:   string(rune('a' + i)),
			ProductName: "P",
			SaleType:    domain.SaleTypeUnit,
			Quantity:    i + 1,
			UnitsSold:   i + 1,
			Revenue:     decimal.NewFromInt(int64(1000 * (i + 1))),
			UnitCost:    decimal.NewFromInt(100),
			CreatedAt:   now,
		})
	}

	stats, err := engine.Stats(context.Background(), "store-main", domain.PeriodToday, now,
		func(_ context.Context, _, _ time.Time) ([]domain.SaleFact, domain.DebtSummary, int, error) {
			return facts, domain.DebtSummary{Outstanding: decimal.Zero}, 0, nil
		})
	require.NoError(t, err)
	require.Len(t, stats.TopProducts, 5)
	require.Equal(t, 8, stats.TopProducts[0].UnitsSold)
	require.Equal(t, 4, stats.TopProducts[4].UnitsSold)
}

type countingCache struct {
	stats *domain.DashboardStats
	gets  int
	sets  int
}

func (c *countingCache) Get(_ context.Context, _ string) (*domain.DashboardStats, bool, error) {
	c.gets++
	return c.stats, c.stats != nil, nil
}

func (c *countingCache) Set(_ context.Context, _ string, value *domain.DashboardStats, _ time.Duration) error {
	c.sets++
	c.stats = value
	return nil
}

func (c *countingCache) Invalidate(_ context.Context, _ string) error {
	c.stats = nil
	return nil
}

func TestStatsUsesCache(t *testing.T) {
	cacheStore := &countingCache{}
	engine := NewEngine(cacheStore, time.Second)
	now := time.Now().UTC()

	loads := 0
	load := func(_ context.Context, _, _ time.Time) ([]domain.SaleFact, domain.DebtSummary, int, error) {
		loads++
		return nil, domain.DebtSummary{Outstanding: decimal.Zero}, 0, nil
	}

	_, err := engine.Stats(context.Background(), "store-main", domain.PeriodToday, now, load)
	require.NoError(t, err)
	_, err = engine.Stats(context.Background(), "store-main", domain.PeriodToday, now, load)
	require.NoError(t, err)
	require.Equal(t, 1, loads)
	require.Equal(t, 1, cacheStore.sets)

	engine.Invalidate(context.Background(), "store-main")
	_, err = engine.Stats(context.Background(), "store-main", domain.PeriodToday, now, load)
	require.NoError(t, err)
	require.Equal(t, 2, loads)
}
