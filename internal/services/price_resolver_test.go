package services

import (
	"testing"
	"time"

	"langschool_backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptrTime(t time.Time) *time.Time { return &t }

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func ptrDec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func TestIsPriceValid(t *testing.T) {
	now := day(2024, 6, 15)
	tests := []struct {
		name string
		item models.PriceLineItem
		want bool
	}{
		{"started, open ended", models.PriceLineItem{StartDate: day(2024, 1, 1)}, true},
		{"starts exactly now", models.PriceLineItem{StartDate: now}, true},
		{"starts in the future", models.PriceLineItem{StartDate: day(2024, 7, 1)}, false},
		{"ends later", models.PriceLineItem{StartDate: day(2024, 1, 1), EndDate: ptrTime(day(2024, 6, 30))}, true},
		{"ends exactly now", models.PriceLineItem{StartDate: day(2024, 1, 1), EndDate: ptrTime(now)}, false},
		{"already ended", models.PriceLineItem{StartDate: day(2024, 1, 1), EndDate: ptrTime(day(2024, 3, 1))}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPriceValid(tt.item, now))
		})
	}
}

func TestPostTaxAmount(t *testing.T) {
	tests := []struct {
		pretax, rate string
		want         string
	}{
		{"1000", "10", "1100"},
		{"999", "8", "1079"},
		{"3000", "10", "3300"},
		{"0", "10", "0"},
		{"105", "10", "116"}, // 115.5 rounds up
		{"1", "50", "2"},     // 1.5 rounds up
		{"1234", "0", "1234"},
	}
	for _, tt := range tests {
		t.Run(tt.pretax+"@"+tt.rate, func(t *testing.T) {
			got := PostTaxAmount(decimal.RequireFromString(tt.pretax), decimal.RequireFromString(tt.rate))
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestResolveCurrentPrice_SinglePrice(t *testing.T) {
	items := []models.PriceLineItem{
		{ID: 1, Name: "standard", DisplayName: "Standard", PretaxAmount: dec(3000), StartDate: day(2020, 1, 1)},
	}

	got := ResolveCurrentPrice(items, dec(10), day(2024, 6, 15))

	require.NotNil(t, got)
	assert.Equal(t, "3000", got.PretaxPrice.String())
	assert.Equal(t, "3300", got.PosttaxPrice.String())
	assert.False(t, got.IsSale)
	assert.Nil(t, got.BeforeSalePretaxPrice)
	assert.Nil(t, got.BeforeSalePosttaxPrice)
	assert.Equal(t, "standard", got.Name)
}

func TestResolveCurrentPrice_NothingValid(t *testing.T) {
	now := day(2024, 6, 15)
	items := []models.PriceLineItem{
		{ID: 1, PretaxAmount: dec(1000), StartDate: day(2024, 7, 1)},
		{ID: 2, PretaxAmount: dec(1000), StartDate: day(2024, 1, 1), EndDate: ptrTime(day(2024, 2, 1))},
	}
	assert.Nil(t, ResolveCurrentPrice(items, dec(10), now))
	assert.Nil(t, ResolveCurrentPrice(nil, dec(10), now))
}

func TestResolveCurrentPrice_LatestStartWinsRegardlessOfOrder(t *testing.T) {
	now := day(2024, 6, 15)
	older := models.PriceLineItem{ID: 1, Name: "base", PretaxAmount: dec(5000), StartDate: day(2024, 1, 1)}
	newer := models.PriceLineItem{ID: 2, Name: "sale", PretaxAmount: dec(4000), StartDate: day(2024, 6, 1), EndDate: ptrTime(day(2024, 6, 30)), IsLimitedSale: true, BeforeSalePrice: ptrDec(5000)}
	future := models.PriceLineItem{ID: 3, Name: "future", PretaxAmount: dec(6000), StartDate: day(2024, 9, 1)}

	orders := [][]models.PriceLineItem{
		{older, newer, future},
		{newer, older, future},
		{future, newer, older},
	}
	for _, items := range orders {
		got := ResolveCurrentPrice(items, dec(10), now)
		require.NotNil(t, got)
		assert.Equal(t, "sale", got.Name)
		assert.True(t, got.IsSale)
		assert.Equal(t, "4400", got.PosttaxPrice.String())
		require.NotNil(t, got.BeforeSalePretaxPrice)
		assert.Equal(t, "5000", got.BeforeSalePretaxPrice.String())
		assert.Equal(t, "5500", got.BeforeSalePosttaxPrice.String())
	}
}

func TestResolveCurrentPrice_EqualStartsPreferHigherID(t *testing.T) {
	start := day(2024, 1, 1)
	a := models.PriceLineItem{ID: 7, Name: "a", PretaxAmount: dec(1000), StartDate: start}
	b := models.PriceLineItem{ID: 9, Name: "b", PretaxAmount: dec(2000), StartDate: start}

	for _, items := range [][]models.PriceLineItem{{a, b}, {b, a}} {
		got := ResolveCurrentPrice(items, dec(10), day(2024, 6, 1))
		require.NotNil(t, got)
		assert.Equal(t, "b", got.Name)
	}
}

func TestResolveLineItem_BeforePriceOnlyForSales(t *testing.T) {
	item := models.PriceLineItem{PretaxAmount: dec(1000), BeforeSalePrice: ptrDec(2000), StartDate: day(2024, 1, 1)}
	got := ResolveLineItem(item, dec(10))
	assert.Nil(t, got.BeforeSalePretaxPrice)

	item.IsLimitedSale = true
	item.BeforeSalePrice = nil
	got = ResolveLineItem(item, dec(10))
	assert.True(t, got.IsSale)
	assert.Nil(t, got.BeforeSalePosttaxPrice)
}

func TestResolvePriceRange(t *testing.T) {
	now := day(2024, 6, 15)
	items := []models.PriceLineItem{
		{ID: 1, Name: "adult", PretaxAmount: dec(8000), StartDate: day(2024, 1, 1)},
		{ID: 2, Name: "child", PretaxAmount: dec(4000), StartDate: day(2024, 2, 1)},
		{ID: 3, Name: "family", PretaxAmount: dec(15000), StartDate: day(2024, 3, 1)},
		{ID: 4, Name: "expired vip", PretaxAmount: dec(50000), StartDate: day(2023, 1, 1), EndDate: ptrTime(day(2023, 12, 31))},
	}

	got := ResolvePriceRange(items, dec(10), now)
	require.NotNil(t, got)
	assert.Equal(t, "child", got.Min.Name)
	assert.Equal(t, "4400", got.Min.PosttaxPrice.String())
	assert.Equal(t, "family", got.Max.Name)
	assert.Equal(t, "16500", got.Max.PosttaxPrice.String())

	single := ResolvePriceRange(items[:1], dec(10), now)
	require.NotNil(t, single)
	assert.Equal(t, single.Min, single.Max)

	assert.Nil(t, ResolvePriceRange(items[3:], dec(10), now))
}

func TestPriceSummary(t *testing.T) {
	now := day(2024, 6, 15)
	base := models.PriceLineItem{ID: 1, PretaxAmount: dec(5000), StartDate: day(2024, 1, 1)}
	sale := models.PriceLineItem{ID: 2, PretaxAmount: dec(4000), StartDate: day(2024, 6, 1), EndDate: ptrTime(day(2024, 6, 30)), IsLimitedSale: true, BeforeSalePrice: ptrDec(5000)}
	newerBase := models.PriceLineItem{ID: 3, PretaxAmount: dec(5500), StartDate: day(2024, 5, 1)}
	closedNonSale := models.PriceLineItem{ID: 4, PretaxAmount: dec(4800), StartDate: day(2024, 6, 10), EndDate: ptrTime(day(2024, 7, 1))}
	otherSale := models.PriceLineItem{ID: 5, PretaxAmount: dec(3500), StartDate: day(2024, 6, 5), EndDate: ptrTime(day(2024, 6, 20)), IsLimitedSale: true}
	expired := models.PriceLineItem{ID: 6, PretaxAmount: dec(9999), StartDate: day(2023, 1, 1), EndDate: ptrTime(day(2023, 2, 1))}

	tests := []struct {
		name  string
		ptype models.OfferingType
		items []models.PriceLineItem
		want  string
	}{
		{"no prices", models.OfferingTypeClass, nil, SummaryNoValidPrice},
		{"only expired", models.OfferingTypeBook, []models.PriceLineItem{expired}, SummaryNoValidPrice},
		{"single class price", models.OfferingTypeClass, []models.PriceLineItem{base, expired}, "5000"},
		{"sale over base", models.OfferingTypeClass, []models.PriceLineItem{base, sale}, "SALE: (5000) -> 4000"},
		{"sale over base, reversed", models.OfferingTypeJoiningFee, []models.PriceLineItem{sale, base}, "SALE: (5000) -> 4000"},
		{"latest base and latest sale win", models.OfferingTypeClass, []models.PriceLineItem{base, sale, newerBase, otherSale}, "SALE: (5500) -> 3500"},
		{"closed non-sale counts as open ended", models.OfferingTypeBook, []models.PriceLineItem{base, closedNonSale}, "4800"},
		{"only sales", models.OfferingTypeClass, []models.PriceLineItem{sale, otherSale}, SummaryMissingBasePrice},
		{"single experience price", models.OfferingTypeExperience, []models.PriceLineItem{sale}, "4000"},
		{"experience range", models.OfferingTypeExperience, []models.PriceLineItem{base, sale, otherSale, expired}, "3500 ~ 5000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PriceSummary(tt.ptype, tt.items, now))
		})
	}
}

func TestPriceSummary_ScenarioSaleWindow(t *testing.T) {
	items := []models.PriceLineItem{
		{ID: 1, PretaxAmount: dec(5000), StartDate: day(2024, 1, 1)},
		{ID: 2, PretaxAmount: dec(4000), StartDate: day(2024, 6, 1), EndDate: ptrTime(day(2024, 6, 30)), IsLimitedSale: true, BeforeSalePrice: ptrDec(5000)},
	}

	assert.Equal(t, "5000", PriceSummary(models.OfferingTypeClass, items, day(2024, 5, 31)))
	assert.Equal(t, "SALE: (5000) -> 4000", PriceSummary(models.OfferingTypeClass, items, day(2024, 6, 15)))
	assert.Equal(t, "5000", PriceSummary(models.OfferingTypeClass, items, day(2024, 7, 1)))
}

func TestPriceSummary_Idempotent(t *testing.T) {
	now := day(2024, 6, 15)
	items := []models.PriceLineItem{
		{ID: 1, PretaxAmount: dec(5000), StartDate: day(2024, 1, 1)},
		{ID: 2, PretaxAmount: dec(4000), StartDate: day(2024, 6, 1), EndDate: ptrTime(day(2024, 6, 30)), IsLimitedSale: true},
	}
	first := PriceSummary(models.OfferingTypeClass, items, now)
	second := PriceSummary(models.OfferingTypeClass, items, now)
	assert.Equal(t, first, second)
	// Inputs are not reordered in place.
	assert.Equal(t, int64(1), items[0].ID)
}

func TestLineItemWarnings(t *testing.T) {
	assert.Empty(t, LineItemWarnings(models.PriceLineItem{}))
	assert.Len(t, LineItemWarnings(models.PriceLineItem{IsLimitedSale: true}), 1)
	assert.Len(t, LineItemWarnings(models.PriceLineItem{BeforeSalePrice: ptrDec(100)}), 1)
	assert.Empty(t, LineItemWarnings(models.PriceLineItem{IsLimitedSale: true, EndDate: ptrTime(day(2024, 1, 1)), BeforeSalePrice: ptrDec(100)}))
}
