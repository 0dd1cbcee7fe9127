package services

import (
	"fmt"
	"sort"
	"time"

	"langschool_backend/internal/models"

	"github.com/shopspring/decimal"
)

// Price summary sentinels. They are stored in place of a price for operators to review.
const (
	SummaryNoValidPrice     = "** WARNING: No valid price **"
	SummaryMissingBasePrice = "** WARNING: No base price, please add one"
	SummaryPricingError     = "** WARNING: Error with pricing"
)

var hundred = decimal.NewFromInt(100)

// IsPriceValid reports whether item is in effect at now: started, and not yet ended.
func IsPriceValid(item models.PriceLineItem, now time.Time) bool {
	if item.StartDate.After(now) {
		return false
	}
	return item.EndDate == nil || item.EndDate.After(now)
}

// ValidLineItems returns the items in effect at now, in input order.
func ValidLineItems(items []models.PriceLineItem, now time.Time) []models.PriceLineItem {
	valid := make([]models.PriceLineItem, 0, len(items))
	for _, item := range items {
		if IsPriceValid(item, now) {
			valid = append(valid, item)
		}
	}
	return valid
}

// PostTaxAmount returns pretax plus tax, rounded half-up to whole yen.
func PostTaxAmount(pretax, ratePercent decimal.Decimal) decimal.Decimal {
	return pretax.Add(pretax.Mul(ratePercent.Div(hundred))).Round(0)
}

// sortByStartDesc orders items latest start first. Equal starts fall back to the
// higher id so the result does not depend on input order.
func sortByStartDesc(items []models.PriceLineItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].StartDate.Equal(items[j].StartDate) {
			return items[i].StartDate.After(items[j].StartDate)
		}
		return items[i].ID > items[j].ID
	})
}

// ResolveLineItem computes the tax-inclusive view of a single line item.
func ResolveLineItem(item models.PriceLineItem, ratePercent decimal.Decimal) models.ResolvedPrice {
	resolved := models.ResolvedPrice{
		Name:         item.Name,
		DisplayName:  item.DisplayName,
		PretaxPrice:  item.PretaxAmount,
		PosttaxPrice: PostTaxAmount(item.PretaxAmount, ratePercent),
		IsSale:       item.IsLimitedSale,
		StartDate:    item.StartDate,
		EndDate:      item.EndDate,
	}
	if item.IsLimitedSale && item.BeforeSalePrice != nil {
		before := *item.BeforeSalePrice
		beforeTaxed := PostTaxAmount(before, ratePercent)
		resolved.BeforeSalePretaxPrice = &before
		resolved.BeforeSalePosttaxPrice = &beforeTaxed
	}
	return resolved
}

// ResolveCurrentPrice picks the valid line item with the latest start date.
// It returns nil when nothing is valid at now.
func ResolveCurrentPrice(items []models.PriceLineItem, ratePercent decimal.Decimal, now time.Time) *models.ResolvedPrice {
	valid := ValidLineItems(items, now)
	if len(valid) == 0 {
		return nil
	}
	sortByStartDesc(valid)
	resolved := ResolveLineItem(valid[0], ratePercent)
	return &resolved
}

// ResolvePriceRange returns the cheapest and dearest valid prices, or nil when
// nothing is valid at now.
func ResolvePriceRange(items []models.PriceLineItem, ratePercent decimal.Decimal, now time.Time) *models.PriceRange {
	valid := ValidLineItems(items, now)
	if len(valid) == 0 {
		return nil
	}
	sortByStartDesc(valid)
	lo, hi := minMaxByAmount(valid)
	return &models.PriceRange{
		Min: ResolveLineItem(lo, ratePercent),
		Max: ResolveLineItem(hi, ratePercent),
	}
}

func minMaxByAmount(items []models.PriceLineItem) (models.PriceLineItem, models.PriceLineItem) {
	lo, hi := items[0], items[0]
	for _, item := range items[1:] {
		if item.PretaxAmount.LessThan(lo.PretaxAmount) {
			lo = item
		}
		if item.PretaxAmount.GreaterThan(hi.PretaxAmount) {
			hi = item
		}
	}
	return lo, hi
}

// PriceSummary builds the human readable price string for an offering.
// It never fails; inconsistent price sets produce one of the Summary* warnings.
func PriceSummary(offeringType models.OfferingType, items []models.PriceLineItem, now time.Time) string {
	valid := ValidLineItems(items, now)
	if len(valid) == 0 {
		return SummaryNoValidPrice
	}

	if offeringType == models.OfferingTypeExperience {
		if len(valid) == 1 {
			return valid[0].PretaxAmount.String()
		}
		lo, hi := minMaxByAmount(valid)
		return fmt.Sprintf("%s ~ %s", lo.PretaxAmount.String(), hi.PretaxAmount.String())
	}

	if len(valid) == 1 {
		return valid[0].PretaxAmount.String()
	}

	// More than one valid price usually means a sale is running over a base price.
	sortByStartDesc(valid)
	var openEnded, saleClosedEnded []models.PriceLineItem
	for _, item := range valid {
		if item.IsLimitedSale && item.EndDate != nil {
			saleClosedEnded = append(saleClosedEnded, item)
		} else {
			openEnded = append(openEnded, item)
		}
	}

	switch {
	case len(openEnded) > 0 && len(saleClosedEnded) > 0:
		return fmt.Sprintf("SALE: (%s) -> %s", openEnded[0].PretaxAmount.String(), saleClosedEnded[0].PretaxAmount.String())
	case len(openEnded) > 0:
		return openEnded[0].PretaxAmount.String()
	case len(saleClosedEnded) > 0:
		return SummaryMissingBasePrice
	default:
		return SummaryPricingError
	}
}

// LineItemWarnings lists soft rule violations for an item about to be saved.
func LineItemWarnings(item models.PriceLineItem) []string {
	var warnings []string
	if item.IsLimitedSale && item.EndDate == nil {
		warnings = append(warnings, "limited sale price has no end date")
	}
	if item.BeforeSalePrice != nil && !item.IsLimitedSale {
		warnings = append(warnings, "before sale price is only shown for limited sale prices")
	}
	return warnings
}
