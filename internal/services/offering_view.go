package services

import (
	"time"

	"langschool_backend/internal/models"

	"github.com/shopspring/decimal"
)

// PriceEntry is a resolved line item plus its id, as listed on an offering page.
type PriceEntry struct {
	ID    int64 `json:"id"`
	Valid bool  `json:"is_valid"`
	models.ResolvedPrice
}

// OfferingView is the public representation of an offering with prices
// resolved at a fixed instant. PriceInfo and PriceRange are null when no
// price is currently valid.
type OfferingView struct {
	models.Offering
	PriceInfo  *models.ResolvedPrice `json:"price_info"`
	PriceRange *models.PriceRange    `json:"price_range"`
	Prices     []PriceEntry          `json:"prices"`
}

// NewOfferingView resolves the offering's prices at now.
func NewOfferingView(o models.Offering, now time.Time) OfferingView {
	rate := decimal.Zero
	if o.TaxRate != nil {
		rate = o.TaxRate.RatePercent
	}
	view := OfferingView{
		Offering:   o,
		PriceInfo:  ResolveCurrentPrice(o.LineItems, rate, now),
		PriceRange: ResolvePriceRange(o.LineItems, rate, now),
		Prices:     make([]PriceEntry, 0, len(o.LineItems)),
	}
	for _, item := range o.LineItems {
		view.Prices = append(view.Prices, PriceEntry{
			ID:            item.ID,
			Valid:         IsPriceValid(item, now),
			ResolvedPrice: ResolveLineItem(item, rate),
		})
	}
	return view
}
