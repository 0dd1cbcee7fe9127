package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OfferingType tags what kind of product or service an offering is.
type OfferingType string

const (
	OfferingTypeClass      OfferingType = "class"
	OfferingTypeExperience OfferingType = "experience"
	OfferingTypeBook       OfferingType = "book"
	OfferingTypeJoiningFee OfferingType = "joiningfee"
)

// Valid reports whether t is one of the known offering types.
func (t OfferingType) Valid() bool {
	switch t {
	case OfferingTypeClass, OfferingTypeExperience, OfferingTypeBook, OfferingTypeJoiningFee:
		return true
	}
	return false
}

const (
	ServiceKindService = "service"
	ServiceKindProduct = "product"
)

// TaxRate is a versioned tax percentage, e.g. Japanese consumption tax.
type TaxRate struct {
	ID          int64           `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	TaxType     string          `json:"tax_type" db:"tax_type"`
	RatePercent decimal.Decimal `json:"rate" db:"rate"`
	StartDate   time.Time       `json:"start_date" db:"start_date"`
	EndDate     *time.Time      `json:"end_date,omitempty" db:"end_date"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// PriceLineItem is one priced entry of an offering with a validity window.
// Amounts are pretax yen.
type PriceLineItem struct {
	ID              int64            `json:"id" db:"id"`
	OfferingID      int64            `json:"offering_id" db:"offering_id"`
	Name            string           `json:"name" db:"name"`
	DisplayName     string           `json:"display_name" db:"display_name"`
	PretaxAmount    decimal.Decimal  `json:"price" db:"price"`
	IsLimitedSale   bool             `json:"is_limited_sale" db:"is_limited_sale"`
	BeforeSalePrice *decimal.Decimal `json:"before_sale_price" db:"before_sale_price"`
	StartDate       time.Time        `json:"start_date" db:"start_date"`
	EndDate         *time.Time       `json:"end_date" db:"end_date"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}

// Offering is a sellable product or service.
type Offering struct {
	ID               int64        `json:"id" db:"id"`
	Name             string       `json:"name" db:"name"`
	Slug             string       `json:"slug" db:"slug"`
	ServiceOrProduct string       `json:"service_or_product" db:"service_or_product"`
	Type             OfferingType `json:"type" db:"ptype"`
	TaxRateID        int64        `json:"tax_rate_id" db:"tax_rate_id"`
	PriceSummary     string       `json:"price_summary" db:"price_summary"`
	Description      string       `json:"description" db:"description"`
	ClassType        string       `json:"class_type" db:"class_type"`
	GroupOrOne       string       `json:"group_or_one" db:"group_or_one"`
	MinNum           *int         `json:"min_num,omitempty" db:"min_num"`
	MaxNum           *int         `json:"max_num,omitempty" db:"max_num"`
	Length           *int         `json:"length,omitempty" db:"length"`
	LengthUnit       string       `json:"length_unit" db:"length_unit"`
	Quantity         *int         `json:"quantity,omitempty" db:"quantity"`
	QuantityUnit     string       `json:"quantity_unit" db:"quantity_unit"`
	IsNative         *bool        `json:"is_native,omitempty" db:"is_native"`
	IsOnline         *bool        `json:"is_online,omitempty" db:"is_online"`
	IsInPerson       *bool        `json:"is_inperson,omitempty" db:"is_inperson"`
	HasOnlineNotes   *bool        `json:"has_onlinenotes,omitempty" db:"has_onlinenotes"`
	BookableOnline   *bool        `json:"bookable_online,omitempty" db:"bookable_online"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at" db:"updated_at"`

	// Populated by repository reads.
	TaxRate   *TaxRate        `json:"tax_rate,omitempty"`
	LineItems []PriceLineItem `json:"-"`
}

// ResolvedPrice is the computed, tax-inclusive view of one line item.
// Currency amounts marshal as decimal strings.
type ResolvedPrice struct {
	Name                   string           `json:"name"`
	DisplayName            string           `json:"display_name"`
	PretaxPrice            decimal.Decimal  `json:"pretax_price"`
	PosttaxPrice           decimal.Decimal  `json:"posttax_price"`
	IsSale                 bool             `json:"is_sale"`
	StartDate              time.Time        `json:"start_date"`
	EndDate                *time.Time       `json:"end_date"`
	BeforeSalePretaxPrice  *decimal.Decimal `json:"before_sale_pretax_price"`
	BeforeSalePosttaxPrice *decimal.Decimal `json:"before_sale_posttax_price"`
}

// PriceRange holds the cheapest and most expensive currently valid prices.
type PriceRange struct {
	Min ResolvedPrice `json:"min"`
	Max ResolvedPrice `json:"max"`
}
