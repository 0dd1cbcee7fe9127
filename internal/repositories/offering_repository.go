package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"langschool_backend/internal/models"

	"github.com/shopspring/decimal"
)

// OfferingRepository defines the persistence operations for offerings, their
// price line items and tax rates.
type OfferingRepository interface {
	// Tax rates
	CreateTaxRate(ctx context.Context, rate *models.TaxRate) (int64, error)
	GetTaxRateByID(ctx context.Context, id int64) (*models.TaxRate, error)

	// Offerings. Reads populate TaxRate and LineItems.
	CreateOffering(ctx context.Context, offering *models.Offering) (int64, error)
	GetOfferingByID(ctx context.Context, id int64) (*models.Offering, error)
	GetOfferingBySlug(ctx context.Context, slug string) (*models.Offering, error)
	ListOfferings(ctx context.Context, offeringType *models.OfferingType, page, pageSize int) ([]models.Offering, int, error)
	ListOfferingIDs(ctx context.Context) ([]int64, error)
	UpdatePriceSummary(ctx context.Context, offeringID int64, summary string) error
	// LockOffering takes a row lock held until the surrounding transaction ends.
	LockOffering(ctx context.Context, offeringID int64) error

	// Line items
	CreateLineItem(ctx context.Context, item *models.PriceLineItem) (int64, error)
	GetLineItems(ctx context.Context, offeringID int64) ([]models.PriceLineItem, error)
	DeleteLineItem(ctx context.Context, offeringID, itemID int64) error

	// InTx runs fn against a repository bound to a single transaction.
	InTx(ctx context.Context, fn func(repo OfferingRepository) error) error
}

type offeringRepository struct {
	db   *sql.DB
	exec SQLExecutor
}

// NewOfferingRepository creates a Postgres backed OfferingRepository.
func NewOfferingRepository(db *sql.DB) OfferingRepository {
	return &offeringRepository{db: db, exec: db}
}

func (r *offeringRepository) InTx(ctx context.Context, fn func(repo OfferingRepository) error) error {
	if _, inTx := r.exec.(*sql.Tx); inTx {
		return fn(r)
	}
	return runInTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&offeringRepository{db: r.db, exec: tx})
	})
}

// --- Tax rates ---

func (r *offeringRepository) CreateTaxRate(ctx context.Context, rate *models.TaxRate) (int64, error) {
	query := `INSERT INTO tax_rates (name, tax_type, rate, start_date, end_date, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING id`
	now := time.Now()
	rate.CreatedAt, rate.UpdatedAt = now, now
	err := r.exec.QueryRowContext(ctx, query,
		rate.Name, rate.TaxType, rate.RatePercent, rate.StartDate, nullTime(rate.EndDate), now, now,
	).Scan(&rate.ID)
	if err != nil {
		return 0, mapPQError(err, fmt.Sprintf("creating tax rate '%s'", rate.Name))
	}
	return rate.ID, nil
}

func (r *offeringRepository) GetTaxRateByID(ctx context.Context, id int64) (*models.TaxRate, error) {
	query := `SELECT id, name, tax_type, rate, start_date, end_date, created_at, updated_at
	          FROM tax_rates WHERE id = $1`
	rate, err := scanTaxRate(r.exec.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting tax rate by ID %d: %v", ErrDatabaseError, id, err)
	}
	return rate, nil
}

func scanTaxRate(row scanner) (*models.TaxRate, error) {
	rate := &models.TaxRate{}
	var end sql.NullTime
	if err := row.Scan(&rate.ID, &rate.Name, &rate.TaxType, &rate.RatePercent, &rate.StartDate, &end, &rate.CreatedAt, &rate.UpdatedAt); err != nil {
		return nil, err
	}
	rate.EndDate = timePtr(end)
	return rate, nil
}

// --- Offerings ---

const offeringColumns = `id, name, slug, service_or_product, ptype, tax_rate_id, price_summary, description,
	class_type, group_or_one, min_num, max_num, length, length_unit, quantity, quantity_unit,
	is_native, is_online, is_inperson, has_onlinenotes, bookable_online, created_at, updated_at`

func (r *offeringRepository) CreateOffering(ctx context.Context, o *models.Offering) (int64, error) {
	query := `INSERT INTO offerings (name, slug, service_or_product, ptype, tax_rate_id, price_summary, description,
	            class_type, group_or_one, min_num, max_num, length, length_unit, quantity, quantity_unit,
	            is_native, is_online, is_inperson, has_onlinenotes, bookable_online, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	          RETURNING id`
	now := time.Now()
	o.CreatedAt, o.UpdatedAt = now, now
	err := r.exec.QueryRowContext(ctx, query,
		o.Name, o.Slug, o.ServiceOrProduct, string(o.Type), o.TaxRateID, o.PriceSummary, o.Description,
		o.ClassType, o.GroupOrOne, o.MinNum, o.MaxNum, o.Length, o.LengthUnit, o.Quantity, o.QuantityUnit,
		o.IsNative, o.IsOnline, o.IsInPerson, o.HasOnlineNotes, o.BookableOnline, now, now,
	).Scan(&o.ID)
	if err != nil {
		return 0, mapPQError(err, fmt.Sprintf("creating offering '%s'", o.Name))
	}
	return o.ID, nil
}

func scanOffering(row scanner, extra ...interface{}) (*models.Offering, error) {
	o := &models.Offering{}
	var (
		ptype                                           string
		minNum, maxNum, length, quantity                sql.NullInt64
		native, online, inPerson, onlineNotes, bookable sql.NullBool
	)
	dest := []interface{}{
		&o.ID, &o.Name, &o.Slug, &o.ServiceOrProduct, &ptype, &o.TaxRateID, &o.PriceSummary, &o.Description,
		&o.ClassType, &o.GroupOrOne, &minNum, &maxNum, &length, &o.LengthUnit, &quantity, &o.QuantityUnit,
		&native, &online, &inPerson, &onlineNotes, &bookable, &o.CreatedAt, &o.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	o.Type = models.OfferingType(ptype)
	o.MinNum, o.MaxNum, o.Length, o.Quantity = intPtr(minNum), intPtr(maxNum), intPtr(length), intPtr(quantity)
	o.IsNative, o.IsOnline, o.IsInPerson, o.HasOnlineNotes, o.BookableOnline =
		boolPtr(native), boolPtr(online), boolPtr(inPerson), boolPtr(onlineNotes), boolPtr(bookable)
	return o, nil
}

// hydrate loads the tax rate and line items of an offering.
func (r *offeringRepository) hydrate(ctx context.Context, o *models.Offering) error {
	rate, err := r.GetTaxRateByID(ctx, o.TaxRateID)
	if err != nil {
		return fmt.Errorf("loading tax rate for offering ID %d: %w", o.ID, err)
	}
	o.TaxRate = rate
	items, err := r.GetLineItems(ctx, o.ID)
	if err != nil {
		return err
	}
	o.LineItems = items
	return nil
}

func (r *offeringRepository) getOffering(ctx context.Context, where string, arg interface{}) (*models.Offering, error) {
	query := `SELECT ` + offeringColumns + ` FROM offerings WHERE ` + where
	o, err := scanOffering(r.exec.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting offering (%s %v): %v", ErrDatabaseError, where, arg, err)
	}
	if err := r.hydrate(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *offeringRepository) GetOfferingByID(ctx context.Context, id int64) (*models.Offering, error) {
	return r.getOffering(ctx, "id = $1", id)
}

func (r *offeringRepository) GetOfferingBySlug(ctx context.Context, slug string) (*models.Offering, error) {
	return r.getOffering(ctx, "slug = $1", slug)
}

func (r *offeringRepository) ListOfferings(ctx context.Context, offeringType *models.OfferingType, page, pageSize int) ([]models.Offering, int, error) {
	offerings := []models.Offering{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + offeringColumns + `, COUNT(*) OVER() AS total_count FROM offerings`)

	var args []interface{}
	argCount := 1
	if offeringType != nil {
		queryBuilder.WriteString(fmt.Sprintf(" WHERE ptype = $%d", argCount))
		args = append(args, string(*offeringType))
		argCount++
	}
	queryBuilder.WriteString(" ORDER BY name ASC")
	if pageSize > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1))
		args = append(args, pageSize, (page-1)*pageSize)
	}

	rows, err := r.exec.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying offerings: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanOffering(rows, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: scanning offering: %v", ErrDatabaseError, err)
		}
		offerings = append(offerings, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating offering rows: %v", ErrDatabaseError, err)
	}

	for i := range offerings {
		if err := r.hydrate(ctx, &offerings[i]); err != nil {
			return nil, 0, err
		}
	}
	return offerings, totalCount, nil
}

func (r *offeringRepository) ListOfferingIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.exec.QueryContext(ctx, `SELECT id FROM offerings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing offering ids: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scanning offering id: %v", ErrDatabaseError, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating offering ids: %v", ErrDatabaseError, err)
	}
	return ids, nil
}

func (r *offeringRepository) UpdatePriceSummary(ctx context.Context, offeringID int64, summary string) error {
	result, err := r.exec.ExecContext(ctx,
		`UPDATE offerings SET price_summary = $1, updated_at = $2 WHERE id = $3`,
		summary, time.Now(), offeringID)
	if err != nil {
		return mapPQError(err, fmt.Sprintf("updating price summary for offering ID %d", offeringID))
	}
	return expectAffected(result, fmt.Sprintf("updating price summary for offering ID %d", offeringID))
}

func (r *offeringRepository) LockOffering(ctx context.Context, offeringID int64) error {
	var id int64
	err := r.exec.QueryRowContext(ctx, `SELECT id FROM offerings WHERE id = $1 FOR UPDATE`, offeringID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: locking offering ID %d: %v", ErrDatabaseError, offeringID, err)
	}
	return nil
}

// --- Line items ---

func (r *offeringRepository) CreateLineItem(ctx context.Context, item *models.PriceLineItem) (int64, error) {
	query := `INSERT INTO offering_prices (offering_id, name, display_name, price, is_limited_sale, before_sale_price,
	            start_date, end_date, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          RETURNING id`
	now := time.Now()
	item.CreatedAt, item.UpdatedAt = now, now
	before := decimal.NullDecimal{}
	if item.BeforeSalePrice != nil {
		before = decimal.NewNullDecimal(*item.BeforeSalePrice)
	}
	err := r.exec.QueryRowContext(ctx, query,
		item.OfferingID, item.Name, item.DisplayName, item.PretaxAmount, item.IsLimitedSale, before,
		item.StartDate, nullTime(item.EndDate), now, now,
	).Scan(&item.ID)
	if err != nil {
		return 0, mapPQError(err, fmt.Sprintf("creating price '%s' for offering ID %d", item.Name, item.OfferingID))
	}
	return item.ID, nil
}

func (r *offeringRepository) GetLineItems(ctx context.Context, offeringID int64) ([]models.PriceLineItem, error) {
	query := `SELECT id, offering_id, name, display_name, price, is_limited_sale, before_sale_price,
	            start_date, end_date, created_at, updated_at
	          FROM offering_prices WHERE offering_id = $1 ORDER BY start_date DESC, id DESC`
	rows, err := r.exec.QueryContext(ctx, query, offeringID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying prices for offering ID %d: %v", ErrDatabaseError, offeringID, err)
	}
	defer rows.Close()

	items := []models.PriceLineItem{}
	for rows.Next() {
		var (
			item   models.PriceLineItem
			before decimal.NullDecimal
			end    sql.NullTime
		)
		if err := rows.Scan(&item.ID, &item.OfferingID, &item.Name, &item.DisplayName, &item.PretaxAmount,
			&item.IsLimitedSale, &before, &item.StartDate, &end, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning price: %v", ErrDatabaseError, err)
		}
		if before.Valid {
			v := before.Decimal
			item.BeforeSalePrice = &v
		}
		item.EndDate = timePtr(end)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating prices: %v", ErrDatabaseError, err)
	}
	return items, nil
}

func (r *offeringRepository) DeleteLineItem(ctx context.Context, offeringID, itemID int64) error {
	result, err := r.exec.ExecContext(ctx, `DELETE FROM offering_prices WHERE id = $1 AND offering_id = $2`, itemID, offeringID)
	if err != nil {
		return mapPQError(err, fmt.Sprintf("deleting price ID %d", itemID))
	}
	return expectAffected(result, fmt.Sprintf("deleting price ID %d", itemID))
}

// --- null helpers ---

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func boolPtr(b sql.NullBool) *bool {
	if !b.Valid {
		return nil
	}
	v := b.Bool
	return &v
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
