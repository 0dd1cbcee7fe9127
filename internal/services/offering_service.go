package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"langschool_backend/internal/metrics"
	"langschool_backend/internal/models"
	"langschool_backend/internal/repositories"
	"langschool_backend/pkg/utils"

	"github.com/shopspring/decimal"
)

// --- Custom Service Errors for Offerings ---
var (
	ErrOfferingNotFound   = errors.New("offering not found")
	ErrOfferingSlugExists = errors.New("an offering with a similar name already exists")
	ErrLineItemNotFound   = errors.New("price not found")
	ErrTaxRateNotFound    = errors.New("tax rate not found")
	ErrTaxRateNameExists  = errors.New("tax rate name already exists")
	ErrOfferingValidation = errors.New("offering validation error")
)

// Clock returns the current time. Services take one so tests can fix "now".
type Clock func() time.Time

// --- Offering DTOs ---
type CreateTaxRateRequest struct {
	Name      string          `json:"name" binding:"required"`
	TaxType   string          `json:"tax_type"`
	Rate      decimal.Decimal `json:"rate"`
	StartDate time.Time       `json:"start_date" binding:"required"`
	EndDate   *time.Time      `json:"end_date"`
}

type CreateOfferingRequest struct {
	Name             string              `json:"name" binding:"required"`
	ServiceOrProduct string              `json:"service_or_product" binding:"required"`
	Type             models.OfferingType `json:"type" binding:"required"`
	TaxRateID        int64               `json:"tax_rate_id" binding:"required"`
	Description      string              `json:"description"`
	ClassType        string              `json:"class_type"`
	GroupOrOne       string              `json:"group_or_one"`
	MinNum           *int                `json:"min_num"`
	MaxNum           *int                `json:"max_num"`
	Length           *int                `json:"length"`
	LengthUnit       string              `json:"length_unit"`
	Quantity         *int                `json:"quantity"`
	QuantityUnit     string              `json:"quantity_unit"`
	IsNative         *bool               `json:"is_native"`
	IsOnline         *bool               `json:"is_online"`
	IsInPerson       *bool               `json:"is_inperson"`
	HasOnlineNotes   *bool               `json:"has_onlinenotes"`
	BookableOnline   *bool               `json:"bookable_online"`
}

type CreateLineItemRequest struct {
	Name            string           `json:"name" binding:"required"`
	DisplayName     string           `json:"display_name" binding:"required"`
	Price           decimal.Decimal  `json:"price"`
	IsLimitedSale   bool             `json:"is_limited_sale"`
	BeforeSalePrice *decimal.Decimal `json:"before_sale_price"`
	StartDate       time.Time        `json:"start_date" binding:"required"`
	EndDate         *time.Time       `json:"end_date"`
}

// CreateLineItemResult carries the saved item, soft warnings and the new summary.
type CreateLineItemResult struct {
	LineItem     models.PriceLineItem `json:"price"`
	Warnings     []string             `json:"warnings,omitempty"`
	PriceSummary string               `json:"price_summary"`
}

// --- OfferingService Interface ---
type OfferingService interface {
	CreateTaxRate(ctx context.Context, req CreateTaxRateRequest) (*models.TaxRate, error)
	CreateOffering(ctx context.Context, req CreateOfferingRequest) (*models.Offering, error)
	GetOfferingBySlug(ctx context.Context, slug string) (*OfferingView, error)
	ListOfferings(ctx context.Context, offeringType *models.OfferingType, page, pageSize int) ([]OfferingView, int, error)
	AddLineItem(ctx context.Context, offeringID int64, req CreateLineItemRequest) (*CreateLineItemResult, error)
	DeleteLineItem(ctx context.Context, offeringID, itemID int64) (string, error)
	RecomputePriceSummary(ctx context.Context, offeringID int64) (string, error)
	RecomputeAllPriceSummaries(ctx context.Context) (int, error)
}

// --- offeringService Implementation ---
type offeringService struct {
	repo    repositories.OfferingRepository
	now     Clock
	metrics *metrics.Metrics
}

// NewOfferingService creates a new instance of OfferingService. A nil clock means time.Now.
func NewOfferingService(repo repositories.OfferingRepository, clock Clock, m *metrics.Metrics) OfferingService {
	if clock == nil {
		clock = time.Now
	}
	return &offeringService{repo: repo, now: clock, metrics: m}
}

var slugInvalidChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases name and joins its alphanumeric runs with hyphens.
func Slugify(name string) string {
	return strings.Trim(slugInvalidChars.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

func (s *offeringService) CreateTaxRate(ctx context.Context, req CreateTaxRateRequest) (*models.TaxRate, error) {
	if utils.IsEmpty(req.Name) {
		return nil, fmt.Errorf("%w: tax rate name cannot be empty", ErrOfferingValidation)
	}
	if req.Rate.IsNegative() {
		return nil, fmt.Errorf("%w: tax rate cannot be negative", ErrOfferingValidation)
	}
	if req.EndDate != nil && !req.EndDate.After(req.StartDate) {
		return nil, fmt.Errorf("%w: end date must be after start date", ErrOfferingValidation)
	}
	taxType := req.TaxType
	if taxType == "" {
		taxType = "CN"
	}
	rate := &models.TaxRate{
		Name:        strings.TrimSpace(req.Name),
		TaxType:     taxType,
		RatePercent: req.Rate,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	}
	if _, err := s.repo.CreateTaxRate(ctx, rate); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, ErrTaxRateNameExists
		}
		return nil, fmt.Errorf("failed to create tax rate: %w", err)
	}
	return rate, nil
}

func (s *offeringService) CreateOffering(ctx context.Context, req CreateOfferingRequest) (*models.Offering, error) {
	if utils.IsEmpty(req.Name) {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrOfferingValidation)
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown offering type '%s'", ErrOfferingValidation, req.Type)
	}
	if req.ServiceOrProduct != models.ServiceKindService && req.ServiceOrProduct != models.ServiceKindProduct {
		return nil, fmt.Errorf("%w: service_or_product must be 'service' or 'product'", ErrOfferingValidation)
	}
	slug := Slugify(req.Name)
	if slug == "" {
		return nil, fmt.Errorf("%w: name must contain letters or digits", ErrOfferingValidation)
	}
	if _, err := s.repo.GetTaxRateByID(ctx, req.TaxRateID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrTaxRateNotFound
		}
		return nil, fmt.Errorf("failed to load tax rate: %w", err)
	}

	offering := &models.Offering{
		Name:             strings.TrimSpace(req.Name),
		Slug:             slug,
		ServiceOrProduct: req.ServiceOrProduct,
		Type:             req.Type,
		TaxRateID:        req.TaxRateID,
		PriceSummary:     SummaryNoValidPrice,
		Description:      req.Description,
		ClassType:        defaultString(req.ClassType, "na"),
		GroupOrOne:       defaultString(req.GroupOrOne, "na"),
		MinNum:           req.MinNum,
		MaxNum:           req.MaxNum,
		Length:           req.Length,
		LengthUnit:       defaultString(req.LengthUnit, "na"),
		Quantity:         req.Quantity,
		QuantityUnit:     defaultString(req.QuantityUnit, "na"),
		IsNative:         req.IsNative,
		IsOnline:         req.IsOnline,
		IsInPerson:       req.IsInPerson,
		HasOnlineNotes:   req.HasOnlineNotes,
		BookableOnline:   req.BookableOnline,
	}
	id, err := s.repo.CreateOffering(ctx, offering)
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: slug '%s'", ErrOfferingSlugExists, slug)
		}
		return nil, fmt.Errorf("failed to create offering: %w", err)
	}
	return s.repo.GetOfferingByID(ctx, id)
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func (s *offeringService) GetOfferingBySlug(ctx context.Context, slug string) (*OfferingView, error) {
	offering, err := s.repo.GetOfferingBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrOfferingNotFound
		}
		return nil, fmt.Errorf("failed to get offering by slug: %w", err)
	}
	view := NewOfferingView(*offering, s.now())
	return &view, nil
}

func (s *offeringService) ListOfferings(ctx context.Context, offeringType *models.OfferingType, page, pageSize int) ([]OfferingView, int, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if offeringType != nil && !offeringType.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown offering type '%s'", ErrOfferingValidation, *offeringType)
	}
	offerings, total, err := s.repo.ListOfferings(ctx, offeringType, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list offerings: %w", err)
	}
	now := s.now()
	views := make([]OfferingView, 0, len(offerings))
	for _, o := range offerings {
		views = append(views, NewOfferingView(o, now))
	}
	return views, total, nil
}

func validateLineItem(req CreateLineItemRequest) error {
	if utils.IsEmpty(req.Name) || utils.IsEmpty(req.DisplayName) {
		return fmt.Errorf("%w: name and display name are required", ErrOfferingValidation)
	}
	if req.Price.IsNegative() {
		return fmt.Errorf("%w: price cannot be negative", ErrOfferingValidation)
	}
	if !req.Price.Equal(req.Price.Truncate(0)) {
		return fmt.Errorf("%w: price must be a whole yen amount", ErrOfferingValidation)
	}
	if req.BeforeSalePrice != nil {
		if req.BeforeSalePrice.IsNegative() {
			return fmt.Errorf("%w: before sale price cannot be negative", ErrOfferingValidation)
		}
		if !req.BeforeSalePrice.Equal(req.BeforeSalePrice.Truncate(0)) {
			return fmt.Errorf("%w: before sale price must be a whole yen amount", ErrOfferingValidation)
		}
	}
	if req.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrOfferingValidation)
	}
	if req.EndDate != nil && !req.EndDate.After(req.StartDate) {
		return fmt.Errorf("%w: end date must be after start date", ErrOfferingValidation)
	}
	return nil
}

func (s *offeringService) AddLineItem(ctx context.Context, offeringID int64, req CreateLineItemRequest) (*CreateLineItemResult, error) {
	if err := validateLineItem(req); err != nil {
		return nil, err
	}
	item := models.PriceLineItem{
		OfferingID:      offeringID,
		Name:            strings.TrimSpace(req.Name),
		DisplayName:     strings.TrimSpace(req.DisplayName),
		PretaxAmount:    req.Price,
		IsLimitedSale:   req.IsLimitedSale,
		BeforeSalePrice: req.BeforeSalePrice,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
	}
	warnings := LineItemWarnings(item)
	if len(warnings) > 0 {
		utils.LogWarn("Price saved with warnings", map[string]interface{}{
			"offering_id": offeringID,
			"price_name":  item.Name,
			"warnings":    strings.Join(warnings, "; "),
		})
	}

	var summary string
	err := s.repo.InTx(ctx, func(tx repositories.OfferingRepository) error {
		if err := s.lockOffering(ctx, tx, offeringID); err != nil {
			return err
		}
		if _, err := tx.CreateLineItem(ctx, &item); err != nil {
			return fmt.Errorf("failed to create price: %w", err)
		}
		var err error
		summary, err = s.recompute(ctx, tx, offeringID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &CreateLineItemResult{LineItem: item, Warnings: warnings, PriceSummary: summary}, nil
}

func (s *offeringService) DeleteLineItem(ctx context.Context, offeringID, itemID int64) (string, error) {
	var summary string
	err := s.repo.InTx(ctx, func(tx repositories.OfferingRepository) error {
		if err := s.lockOffering(ctx, tx, offeringID); err != nil {
			return err
		}
		if err := tx.DeleteLineItem(ctx, offeringID, itemID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrLineItemNotFound
			}
			return fmt.Errorf("failed to delete price: %w", err)
		}
		var err error
		summary, err = s.recompute(ctx, tx, offeringID)
		return err
	})
	return summary, err
}

func (s *offeringService) RecomputePriceSummary(ctx context.Context, offeringID int64) (string, error) {
	var summary string
	err := s.repo.InTx(ctx, func(tx repositories.OfferingRepository) error {
		if err := s.lockOffering(ctx, tx, offeringID); err != nil {
			return err
		}
		var err error
		summary, err = s.recompute(ctx, tx, offeringID)
		return err
	})
	return summary, err
}

func (s *offeringService) RecomputeAllPriceSummaries(ctx context.Context) (int, error) {
	ids, err := s.repo.ListOfferingIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list offerings: %w", err)
	}
	updated := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		if _, err := s.RecomputePriceSummary(ctx, id); err != nil {
			if errors.Is(err, ErrOfferingNotFound) {
				continue
			}
			return updated, fmt.Errorf("recomputing offering ID %d: %w", id, err)
		}
		updated++
	}
	return updated, nil
}

func (s *offeringService) lockOffering(ctx context.Context, tx repositories.OfferingRepository, offeringID int64) error {
	if err := tx.LockOffering(ctx, offeringID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrOfferingNotFound
		}
		return fmt.Errorf("failed to lock offering: %w", err)
	}
	return nil
}

// recompute must run inside a transaction holding the offering lock.
func (s *offeringService) recompute(ctx context.Context, tx repositories.OfferingRepository, offeringID int64) (string, error) {
	offering, err := tx.GetOfferingByID(ctx, offeringID)
	if err != nil {
		s.metrics.PriceSummary(metrics.OutcomeError)
		if errors.Is(err, repositories.ErrNotFound) {
			return "", ErrOfferingNotFound
		}
		return "", fmt.Errorf("failed to load offering: %w", err)
	}

	summary := PriceSummary(offering.Type, offering.LineItems, s.now())
	if summary == offering.PriceSummary {
		s.metrics.PriceSummary(summaryOutcome(summary))
		return summary, nil
	}
	if err := tx.UpdatePriceSummary(ctx, offeringID, summary); err != nil {
		s.metrics.PriceSummary(metrics.OutcomeError)
		return "", fmt.Errorf("failed to save price summary: %w", err)
	}
	if summaryOutcome(summary) == metrics.OutcomeWarning {
		utils.LogWarn("Price summary needs attention", map[string]interface{}{
			"offering_id": offeringID,
			"slug":        offering.Slug,
			"summary":     summary,
		})
	}
	s.metrics.PriceSummary(summaryOutcome(summary))
	return summary, nil
}

func summaryOutcome(summary string) string {
	if strings.HasPrefix(summary, "** WARNING") {
		return metrics.OutcomeWarning
	}
	return metrics.OutcomeOK
}
