package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"langschool_backend/internal/models"
)

// memoryLock serialises access to an in-memory store. Inside InTx the lock is
// already held, so the bound repository skips locking.
type memoryLock struct {
	mu   *sync.Mutex
	inTx bool
}

func (l memoryLock) lock() func() {
	if l.inTx {
		return func() {}
	}
	l.mu.Lock()
	return l.mu.Unlock
}

type memoryOfferingState struct {
	nextID    int64
	taxRates  map[int64]models.TaxRate
	offerings map[int64]models.Offering
	items     map[int64]models.PriceLineItem
}

func (s *memoryOfferingState) clone() memoryOfferingState {
	c := memoryOfferingState{
		nextID:    s.nextID,
		taxRates:  make(map[int64]models.TaxRate, len(s.taxRates)),
		offerings: make(map[int64]models.Offering, len(s.offerings)),
		items:     make(map[int64]models.PriceLineItem, len(s.items)),
	}
	for k, v := range s.taxRates {
		c.taxRates[k] = v
	}
	for k, v := range s.offerings {
		c.offerings[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	return c
}

// MemoryOfferingRepository is an OfferingRepository kept in process memory.
// Transactions are serialised and rolled back by restoring a snapshot.
type MemoryOfferingRepository struct {
	memoryLock
	state *memoryOfferingState
}

// NewMemoryOfferingRepository creates an empty in-memory OfferingRepository.
func NewMemoryOfferingRepository() *MemoryOfferingRepository {
	return &MemoryOfferingRepository{
		memoryLock: memoryLock{mu: &sync.Mutex{}},
		state: &memoryOfferingState{
			taxRates:  map[int64]models.TaxRate{},
			offerings: map[int64]models.Offering{},
			items:     map[int64]models.PriceLineItem{},
		},
	}
}

func (r *MemoryOfferingRepository) InTx(ctx context.Context, fn func(repo OfferingRepository) error) error {
	if r.inTx {
		return fn(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.state.clone()
	bound := &MemoryOfferingRepository{memoryLock: memoryLock{mu: r.mu, inTx: true}, state: r.state}
	if err := fn(bound); err != nil {
		*r.state = snapshot
		return err
	}
	return nil
}

func (r *MemoryOfferingRepository) newID() int64 {
	r.state.nextID++
	return r.state.nextID
}

func (r *MemoryOfferingRepository) CreateTaxRate(ctx context.Context, rate *models.TaxRate) (int64, error) {
	defer r.lock()()
	for _, existing := range r.state.taxRates {
		if existing.Name == rate.Name {
			return 0, fmt.Errorf("%w: tax rate name '%s' already exists", ErrDuplicateKey, rate.Name)
		}
	}
	now := time.Now()
	rate.ID = r.newID()
	rate.CreatedAt, rate.UpdatedAt = now, now
	r.state.taxRates[rate.ID] = *rate
	return rate.ID, nil
}

func (r *MemoryOfferingRepository) GetTaxRateByID(ctx context.Context, id int64) (*models.TaxRate, error) {
	defer r.lock()()
	rate, ok := r.state.taxRates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rate, nil
}

func (r *MemoryOfferingRepository) CreateOffering(ctx context.Context, o *models.Offering) (int64, error) {
	defer r.lock()()
	if _, ok := r.state.taxRates[o.TaxRateID]; !ok {
		return 0, fmt.Errorf("%w: tax rate ID %d does not exist", ErrDatabaseError, o.TaxRateID)
	}
	for _, existing := range r.state.offerings {
		if existing.Slug == o.Slug {
			return 0, fmt.Errorf("%w: offering slug '%s' already exists", ErrDuplicateKey, o.Slug)
		}
	}
	now := time.Now()
	o.ID = r.newID()
	o.CreatedAt, o.UpdatedAt = now, now
	stored := *o
	stored.TaxRate, stored.LineItems = nil, nil
	r.state.offerings[o.ID] = stored
	return o.ID, nil
}

// hydrated returns a copy of the stored offering with its tax rate and line items.
func (r *MemoryOfferingRepository) hydrated(o models.Offering) models.Offering {
	if rate, ok := r.state.taxRates[o.TaxRateID]; ok {
		o.TaxRate = &rate
	}
	o.LineItems = r.lineItems(o.ID)
	return o
}

func (r *MemoryOfferingRepository) GetOfferingByID(ctx context.Context, id int64) (*models.Offering, error) {
	defer r.lock()()
	o, ok := r.state.offerings[id]
	if !ok {
		return nil, ErrNotFound
	}
	h := r.hydrated(o)
	return &h, nil
}

func (r *MemoryOfferingRepository) GetOfferingBySlug(ctx context.Context, slug string) (*models.Offering, error) {
	defer r.lock()()
	for _, o := range r.state.offerings {
		if o.Slug == slug {
			h := r.hydrated(o)
			return &h, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryOfferingRepository) ListOfferings(ctx context.Context, offeringType *models.OfferingType, page, pageSize int) ([]models.Offering, int, error) {
	defer r.lock()()
	matched := []models.Offering{}
	for _, o := range r.state.offerings {
		if offeringType != nil && o.Type != *offeringType {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Name != matched[j].Name {
			return strings.Compare(matched[i].Name, matched[j].Name) < 0
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if pageSize > 0 {
		if page < 1 {
			page = 1
		}
		start := (page - 1) * pageSize
		if start > total {
			start = total
		}
		end := start + pageSize
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}

	out := make([]models.Offering, 0, len(matched))
	for _, o := range matched {
		out = append(out, r.hydrated(o))
	}
	return out, total, nil
}

func (r *MemoryOfferingRepository) ListOfferingIDs(ctx context.Context) ([]int64, error) {
	defer r.lock()()
	ids := make([]int64, 0, len(r.state.offerings))
	for id := range r.state.offerings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *MemoryOfferingRepository) UpdatePriceSummary(ctx context.Context, offeringID int64, summary string) error {
	defer r.lock()()
	o, ok := r.state.offerings[offeringID]
	if !ok {
		return ErrNotFound
	}
	o.PriceSummary = summary
	o.UpdatedAt = time.Now()
	r.state.offerings[offeringID] = o
	return nil
}

func (r *MemoryOfferingRepository) LockOffering(ctx context.Context, offeringID int64) error {
	defer r.lock()()
	if _, ok := r.state.offerings[offeringID]; !ok {
		return ErrNotFound
	}
	return nil
}

func (r *MemoryOfferingRepository) CreateLineItem(ctx context.Context, item *models.PriceLineItem) (int64, error) {
	defer r.lock()()
	if _, ok := r.state.offerings[item.OfferingID]; !ok {
		return 0, fmt.Errorf("%w: offering ID %d does not exist", ErrDatabaseError, item.OfferingID)
	}
	now := time.Now()
	item.ID = r.newID()
	item.CreatedAt, item.UpdatedAt = now, now
	r.state.items[item.ID] = *item
	return item.ID, nil
}

func (r *MemoryOfferingRepository) lineItems(offeringID int64) []models.PriceLineItem {
	items := []models.PriceLineItem{}
	for _, item := range r.state.items {
		if item.OfferingID == offeringID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].StartDate.Equal(items[j].StartDate) {
			return items[i].StartDate.After(items[j].StartDate)
		}
		return items[i].ID > items[j].ID
	})
	return items
}

func (r *MemoryOfferingRepository) GetLineItems(ctx context.Context, offeringID int64) ([]models.PriceLineItem, error) {
	defer r.lock()()
	return r.lineItems(offeringID), nil
}

func (r *MemoryOfferingRepository) DeleteLineItem(ctx context.Context, offeringID, itemID int64) error {
	defer r.lock()()
	item, ok := r.state.items[itemID]
	if !ok || item.OfferingID != offeringID {
		return ErrNotFound
	}
	delete(r.state.items, itemID)
	return nil
}

var _ OfferingRepository = (*MemoryOfferingRepository)(nil)
