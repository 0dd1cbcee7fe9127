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

type memoryContactState struct {
	nextID   int64
	contacts map[int64]models.Contact
	emails   map[int64]models.ContactEmail
	notes    map[int64]models.Note
	banned   map[int64]models.BannedEmail
}

func (s *memoryContactState) clone() memoryContactState {
	c := memoryContactState{
		nextID:   s.nextID,
		contacts: make(map[int64]models.Contact, len(s.contacts)),
		emails:   make(map[int64]models.ContactEmail, len(s.emails)),
		notes:    make(map[int64]models.Note, len(s.notes)),
		banned:   make(map[int64]models.BannedEmail, len(s.banned)),
	}
	for k, v := range s.contacts {
		c.contacts[k] = v
	}
	for k, v := range s.emails {
		c.emails[k] = v
	}
	for k, v := range s.notes {
		c.notes[k] = v
	}
	for k, v := range s.banned {
		c.banned[k] = v
	}
	return c
}

// MemoryContactRepository is a ContactRepository kept in process memory with
// the same uniqueness rules as the Postgres schema.
type MemoryContactRepository struct {
	memoryLock
	state *memoryContactState
}

// NewMemoryContactRepository creates an empty in-memory ContactRepository.
func NewMemoryContactRepository() *MemoryContactRepository {
	return &MemoryContactRepository{
		memoryLock: memoryLock{mu: &sync.Mutex{}},
		state: &memoryContactState{
			contacts: map[int64]models.Contact{},
			emails:   map[int64]models.ContactEmail{},
			notes:    map[int64]models.Note{},
			banned:   map[int64]models.BannedEmail{},
		},
	}
}

func (r *MemoryContactRepository) InTx(ctx context.Context, fn func(repo ContactRepository) error) error {
	if r.inTx {
		return fn(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.state.clone()
	bound := &MemoryContactRepository{memoryLock: memoryLock{mu: r.mu, inTx: true}, state: r.state}
	if err := fn(bound); err != nil {
		*r.state = snapshot
		return err
	}
	return nil
}

func (r *MemoryContactRepository) newID() int64 {
	r.state.nextID++
	return r.state.nextID
}

func (r *MemoryContactRepository) CreateContact(ctx context.Context, contact *models.Contact) (int64, error) {
	defer r.lock()()
	if contact.UserID != nil {
		for _, existing := range r.state.contacts {
			if existing.UserID != nil && *existing.UserID == *contact.UserID {
				return 0, fmt.Errorf("%w: user ID %d already linked to contact ID %d", ErrDuplicateKey, *contact.UserID, existing.ID)
			}
		}
	}
	now := time.Now()
	contact.ID = r.newID()
	contact.CreatedAt, contact.UpdatedAt = now, now
	stored := *contact
	stored.Emails, stored.Notes = nil, nil
	r.state.contacts[contact.ID] = stored
	return contact.ID, nil
}

func (r *MemoryContactRepository) hydrated(c models.Contact) models.Contact {
	c.Emails = r.contactEmails(c.ID)
	c.Notes = []models.Note{}
	for _, n := range r.state.notes {
		if n.ContactID == c.ID {
			c.Notes = append(c.Notes, n)
		}
	}
	sort.Slice(c.Notes, func(i, j int) bool { return c.Notes[i].ID < c.Notes[j].ID })
	if c.GuardianOf != nil {
		c.GuardianOf = append([]int64(nil), c.GuardianOf...)
	}
	return c
}

func (r *MemoryContactRepository) GetContactByID(ctx context.Context, id int64) (*models.Contact, error) {
	defer r.lock()()
	c, ok := r.state.contacts[id]
	if !ok {
		return nil, ErrNotFound
	}
	h := r.hydrated(c)
	return &h, nil
}

func (r *MemoryContactRepository) GetContactByUserID(ctx context.Context, userID int64) (*models.Contact, error) {
	defer r.lock()()
	for _, c := range r.state.contacts {
		if c.UserID != nil && *c.UserID == userID {
			h := r.hydrated(c)
			return &h, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryContactRepository) LinkUser(ctx context.Context, contactID, userID int64) error {
	defer r.lock()()
	target, ok := r.state.contacts[contactID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	for id, c := range r.state.contacts {
		if id != contactID && c.UserID != nil && *c.UserID == userID {
			c.UserID = nil
			c.UpdatedAt = now
			r.state.contacts[id] = c
		}
	}
	uid := userID
	target.UserID = &uid
	target.UpdatedAt = now
	r.state.contacts[contactID] = target
	return nil
}

func (r *MemoryContactRepository) UpdateContactNames(ctx context.Context, contactID int64, name, nameEn string) error {
	defer r.lock()()
	c, ok := r.state.contacts[contactID]
	if !ok {
		return ErrNotFound
	}
	c.Name, c.NameEn = name, nameEn
	c.UpdatedAt = time.Now()
	r.state.contacts[contactID] = c
	return nil
}

func (r *MemoryContactRepository) LockContact(ctx context.Context, contactID int64) error {
	defer r.lock()()
	if _, ok := r.state.contacts[contactID]; !ok {
		return ErrNotFound
	}
	return nil
}

func (r *MemoryContactRepository) FindContactEmailByEmail(ctx context.Context, email string) (*models.ContactEmail, error) {
	defer r.lock()()
	for _, e := range r.state.emails {
		if strings.EqualFold(e.Email, email) {
			found := e
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryContactRepository) CreateContactEmail(ctx context.Context, email *models.ContactEmail) (int64, error) {
	defer r.lock()()
	if _, ok := r.state.contacts[email.ContactID]; !ok {
		return 0, fmt.Errorf("%w: contact ID %d does not exist", ErrDatabaseError, email.ContactID)
	}
	for _, e := range r.state.emails {
		if strings.EqualFold(e.Email, email.Email) {
			return 0, fmt.Errorf("%w: contact email %s already exists", ErrDuplicateKey, email.Email)
		}
	}
	now := time.Now()
	email.ID = r.newID()
	email.CreatedAt, email.UpdatedAt = now, now
	r.state.emails[email.ID] = *email
	return email.ID, nil
}

func (r *MemoryContactRepository) contactEmails(contactID int64) []models.ContactEmail {
	emails := []models.ContactEmail{}
	for _, e := range r.state.emails {
		if e.ContactID == contactID {
			emails = append(emails, e)
		}
	}
	sort.Slice(emails, func(i, j int) bool { return emails[i].ID < emails[j].ID })
	return emails
}

func (r *MemoryContactRepository) GetContactEmails(ctx context.Context, contactID int64) ([]models.ContactEmail, error) {
	defer r.lock()()
	return r.contactEmails(contactID), nil
}

func (r *MemoryContactRepository) MoveContactEmail(ctx context.Context, emailID, contactID int64) error {
	defer r.lock()()
	e, ok := r.state.emails[emailID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := r.state.contacts[contactID]; !ok {
		return fmt.Errorf("%w: contact ID %d does not exist", ErrDatabaseError, contactID)
	}
	e.ContactID = contactID
	e.UpdatedAt = time.Now()
	r.state.emails[emailID] = e
	return nil
}

func (r *MemoryContactRepository) ClearPrimaryEmails(ctx context.Context, contactID int64) error {
	defer r.lock()()
	now := time.Now()
	for id, e := range r.state.emails {
		if e.ContactID == contactID && e.IsPrimary {
			e.IsPrimary = false
			e.UpdatedAt = now
			r.state.emails[id] = e
		}
	}
	return nil
}

func (r *MemoryContactRepository) SetPrimaryEmail(ctx context.Context, emailID int64) error {
	defer r.lock()()
	e, ok := r.state.emails[emailID]
	if !ok {
		return ErrNotFound
	}
	e.IsPrimary = true
	e.UpdatedAt = time.Now()
	r.state.emails[emailID] = e
	return nil
}

func (r *MemoryContactRepository) CreateNote(ctx context.Context, note *models.Note) (int64, error) {
	defer r.lock()()
	if _, ok := r.state.contacts[note.ContactID]; !ok {
		return 0, fmt.Errorf("%w: contact ID %d does not exist", ErrDatabaseError, note.ContactID)
	}
	note.ID = r.newID()
	note.CreatedAt = time.Now()
	r.state.notes[note.ID] = *note
	return note.ID, nil
}

func (r *MemoryContactRepository) IsBanned(ctx context.Context, email string) (bool, error) {
	defer r.lock()()
	for _, b := range r.state.banned {
		if strings.EqualFold(b.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryContactRepository) RecordBanned(ctx context.Context, banned *models.BannedEmail) (int64, error) {
	defer r.lock()()
	for _, b := range r.state.banned {
		if strings.EqualFold(b.Email, banned.Email) {
			return 0, fmt.Errorf("%w: banned email %s already exists", ErrDuplicateKey, banned.Email)
		}
	}
	banned.ID = r.newID()
	banned.CreatedAt = time.Now()
	r.state.banned[banned.ID] = *banned
	return banned.ID, nil
}

// BannedEmails returns every recorded ban, oldest first.
func (r *MemoryContactRepository) BannedEmails() []models.BannedEmail {
	defer r.lock()()
	out := make([]models.BannedEmail, 0, len(r.state.banned))
	for _, b := range r.state.banned {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ContactCount returns the number of stored contacts.
func (r *MemoryContactRepository) ContactCount() int {
	defer r.lock()()
	return len(r.state.contacts)
}

var _ ContactRepository = (*MemoryContactRepository)(nil)
