package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"langschool_backend/internal/metrics"
	"langschool_backend/internal/models"
	"langschool_backend/internal/notifier"
	"langschool_backend/internal/repositories"
	"langschool_backend/pkg/utils"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// --- Custom Service Errors for Contacts ---
var (
	ErrContactValidation     = errors.New("contact validation error")
	ErrContactBanned         = errors.New("submission rejected")
	ErrNotificationFailed    = errors.New("contact alert could not be sent")
	ErrContactNotFound       = errors.New("contact not found")
	ErrAccountContactMissing = errors.New("no contact linked to this account")
)

const (
	maxNameLength      = 100
	maxConflictRetries = 3

	accountEventCreated      = "account_created"
	accountEventEmailChanged = "email_changed"
)

// FieldError is a validation failure tied to one request field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error { return ErrContactValidation }

// RejectionReason says why a submission was refused as junk.
type RejectionReason string

const (
	RejectedBanned    RejectionReason = "banned"
	RejectedEmptyNote RejectionReason = "empty_note"
	RejectedSpam      RejectionReason = "spam"
)

// RejectionError is returned for banned senders and spam. It unwraps to ErrContactBanned.
type RejectionError struct {
	Reason RejectionReason
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrContactBanned.Error(), e.Reason)
}

func (e *RejectionError) Unwrap() error { return ErrContactBanned }

// --- Contact DTOs ---
type ContactFormEmail struct {
	Email string `json:"email"`
}

type ContactFormNote struct {
	Note string `json:"note"`
}

// ContactFormRequest mirrors the public contact form payload.
type ContactFormRequest struct {
	Name          string             `json:"name"`
	NameEn        string             `json:"name_en"`
	ContactEmails []ContactFormEmail `json:"contact_emails"`
	ContactNotes  []ContactFormNote  `json:"contact_notes"`
}

// Email returns the first submitted email, trimmed.
func (r ContactFormRequest) Email() string {
	if len(r.ContactEmails) == 0 {
		return ""
	}
	return strings.TrimSpace(r.ContactEmails[0].Email)
}

// Note returns the first submitted note.
func (r ContactFormRequest) Note() string {
	if len(r.ContactNotes) == 0 {
		return ""
	}
	return r.ContactNotes[0].Note
}

type ContactFormResult struct {
	Created bool
	Contact *models.Contact
}

// AccountEvent is sent by the account service when a site user signs up or
// changes their email. Names are used only when a contact has to be created.
type AccountEvent struct {
	Email  string `json:"email" binding:"required"`
	Name   string `json:"name"`
	NameEn string `json:"name_en"`
}

type UpdateContactNamesRequest struct {
	Name   string `json:"name" binding:"required"`
	NameEn string `json:"name_en"`
}

// --- ContactService Interface ---
type ContactService interface {
	OnAccountCreated(ctx context.Context, accountID int64, event AccountEvent) (*models.Contact, error)
	OnAccountEmailChanged(ctx context.Context, accountID int64, event AccountEvent) (*models.Contact, error)
	SubmitContactForm(ctx context.Context, req ContactFormRequest) (*ContactFormResult, error)
	GetContactByID(ctx context.Context, id int64) (*models.Contact, error)
	GetContactForUser(ctx context.Context, userID int64) (*models.Contact, error)
	UpdateContactNamesForUser(ctx context.Context, userID int64, req UpdateContactNamesRequest) (*models.Contact, error)
}

// ContactServiceConfig tunes the spam gate and the banned-email cache.
type ContactServiceConfig struct {
	ASCIIThreshold  float64
	RequireLink     bool
	BannedCacheSize int
	BannedCacheTTL  time.Duration
}

// DefaultContactServiceConfig returns the production defaults.
func DefaultContactServiceConfig() ContactServiceConfig {
	return ContactServiceConfig{
		ASCIIThreshold:  DefaultASCIIThreshold,
		RequireLink:     true,
		BannedCacheSize: 1024,
		BannedCacheTTL:  10 * time.Minute,
	}
}

// --- contactService Implementation ---
type contactService struct {
	repo     repositories.ContactRepository
	notifier notifier.Notifier
	metrics  *metrics.Metrics
	cfg      ContactServiceConfig
	banned   *expirable.LRU[string, struct{}]
}

// NewContactService creates a new instance of ContactService. A nil notifier
// disables contact alerts. A non-positive threshold, cache size or TTL falls
// back to the DefaultContactServiceConfig value.
func NewContactService(repo repositories.ContactRepository, n notifier.Notifier, m *metrics.Metrics, cfg ContactServiceConfig) ContactService {
	if cfg.ASCIIThreshold <= 0 {
		cfg.ASCIIThreshold = DefaultASCIIThreshold
	}
	if cfg.BannedCacheSize <= 0 {
		cfg.BannedCacheSize = 1024
	}
	if cfg.BannedCacheTTL <= 0 {
		cfg.BannedCacheTTL = 10 * time.Minute
	}
	return &contactService{
		repo:     repo,
		notifier: n,
		metrics:  m,
		cfg:      cfg,
		banned:   expirable.NewLRU[string, struct{}](cfg.BannedCacheSize, nil, cfg.BannedCacheTTL),
	}
}

func validateEmail(field, email string) error {
	if utils.IsEmpty(email) {
		return &FieldError{Field: field, Message: "email is required"}
	}
	if !utils.IsValidEmail(email) {
		return &FieldError{Field: field, Message: "invalid email format"}
	}
	return nil
}

func cleanName(field, name string, required bool) (string, error) {
	name = strings.TrimSpace(name)
	if required && name == "" {
		return "", &FieldError{Field: field, Message: "name is required"}
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", &FieldError{Field: field, Message: fmt.Sprintf("must be at most %d characters", maxNameLength)}
	}
	return html.EscapeString(name), nil
}

// withConflictRetry reruns fn while it fails on a uniqueness conflict. A
// concurrent writer that won the race is seen by the next lookup.
func withConflictRetry(ctx context.Context, action string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		err = fn()
		if !errors.Is(err, repositories.ErrDuplicateKey) {
			return err
		}
		utils.LogDebug("Uniqueness conflict, retrying", map[string]interface{}{
			"action":  action,
			"attempt": attempt,
		})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return fmt.Errorf("%s: gave up after %d conflicts: %w", action, maxConflictRetries, err)
}

// --- Account events ---

func (s *contactService) OnAccountCreated(ctx context.Context, accountID int64, event AccountEvent) (*models.Contact, error) {
	email := strings.TrimSpace(event.Email)
	if err := validateEmail("email", email); err != nil {
		s.metrics.AccountEvent(accountEventCreated, metrics.OutcomeInvalid)
		return nil, err
	}
	name, err := cleanName("name", event.Name, false)
	if err != nil {
		return nil, err
	}
	nameEn, err := cleanName("name_en", event.NameEn, false)
	if err != nil {
		return nil, err
	}

	var contactID int64
	var linked bool
	err = withConflictRetry(ctx, "account created", func() error {
		return s.repo.InTx(ctx, func(tx repositories.ContactRepository) error {
			var txErr error
			contactID, linked, txErr = linkOrCreateForAccount(ctx, tx, accountID, email, name, nameEn)
			return txErr
		})
	})
	if err != nil {
		s.metrics.AccountEvent(accountEventCreated, metrics.OutcomeError)
		return nil, err
	}

	outcome := metrics.OutcomeCreated
	if linked {
		outcome = metrics.OutcomeLinked
	}
	s.metrics.AccountEvent(accountEventCreated, outcome)
	utils.LogInfo("Account reconciled to contact", map[string]interface{}{
		"account_id": accountID,
		"contact_id": contactID,
		"outcome":    outcome,
	})
	return s.GetContactByID(ctx, contactID)
}

// linkOrCreateForAccount links accountID to the contact owning email, or creates
// a contact with email as its primary. linked is true when a contact already existed.
func linkOrCreateForAccount(ctx context.Context, tx repositories.ContactRepository, accountID int64, email, name, nameEn string) (contactID int64, linked bool, err error) {
	found, err := tx.FindContactEmailByEmail(ctx, email)
	switch {
	case err == nil:
		if err := tx.LinkUser(ctx, found.ContactID, accountID); err != nil {
			return 0, false, fmt.Errorf("failed to link account: %w", err)
		}
		return found.ContactID, true, nil
	case !errors.Is(err, repositories.ErrNotFound):
		return 0, false, fmt.Errorf("failed to look up contact email: %w", err)
	}

	contact := &models.Contact{Name: name, NameEn: nameEn}
	if _, err := tx.CreateContact(ctx, contact); err != nil {
		return 0, false, fmt.Errorf("failed to create contact: %w", err)
	}
	if err := tx.LinkUser(ctx, contact.ID, accountID); err != nil {
		return 0, false, fmt.Errorf("failed to link account: %w", err)
	}
	if _, err := tx.CreateContactEmail(ctx, &models.ContactEmail{ContactID: contact.ID, Email: email, IsPrimary: true}); err != nil {
		return 0, false, fmt.Errorf("failed to create contact email: %w", err)
	}
	return contact.ID, false, nil
}

func (s *contactService) OnAccountEmailChanged(ctx context.Context, accountID int64, event AccountEvent) (*models.Contact, error) {
	email := strings.TrimSpace(event.Email)
	if err := validateEmail("email", email); err != nil {
		s.metrics.AccountEvent(accountEventEmailChanged, metrics.OutcomeInvalid)
		return nil, err
	}
	name, err := cleanName("name", event.Name, false)
	if err != nil {
		return nil, err
	}
	nameEn, err := cleanName("name_en", event.NameEn, false)
	if err != nil {
		return nil, err
	}

	var contactID int64
	outcome := metrics.OutcomeUpdated
	err = withConflictRetry(ctx, "account email changed", func() error {
		return s.repo.InTx(ctx, func(tx repositories.ContactRepository) error {
			contact, err := tx.GetContactByUserID(ctx, accountID)
			if errors.Is(err, repositories.ErrNotFound) {
				// The signup event was missed; reconcile as a new account.
				utils.LogWarn("Email change for account without contact", map[string]interface{}{
					"account_id": accountID,
				})
				outcome = metrics.OutcomeCreated
				contactID, _, err = linkOrCreateForAccount(ctx, tx, accountID, email, name, nameEn)
				return err
			}
			if err != nil {
				return fmt.Errorf("failed to load account contact: %w", err)
			}
			contactID = contact.ID
			return switchPrimaryEmail(ctx, tx, contact.ID, email)
		})
	})
	if err != nil {
		s.metrics.AccountEvent(accountEventEmailChanged, metrics.OutcomeError)
		return nil, err
	}
	s.metrics.AccountEvent(accountEventEmailChanged, outcome)
	return s.GetContactByID(ctx, contactID)
}

// switchPrimaryEmail makes email the sole primary of contactID. An email owned
// by another contact is moved over, and that contact keeps a primary if it has
// any email left. Both contacts are locked in ascending id order.
func switchPrimaryEmail(ctx context.Context, tx repositories.ContactRepository, contactID int64, email string) error {
	found, err := tx.FindContactEmailByEmail(ctx, email)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("failed to look up contact email: %w", err)
	}

	lockIDs := []int64{contactID}
	if found != nil && found.ContactID != contactID {
		lockIDs = append(lockIDs, found.ContactID)
	}
	sort.Slice(lockIDs, func(i, j int) bool { return lockIDs[i] < lockIDs[j] })
	for _, id := range lockIDs {
		if err := tx.LockContact(ctx, id); err != nil {
			return fmt.Errorf("failed to lock contact ID %d: %w", id, err)
		}
	}

	if found == nil {
		if err := tx.ClearPrimaryEmails(ctx, contactID); err != nil {
			return fmt.Errorf("failed to clear primary emails: %w", err)
		}
		if _, err := tx.CreateContactEmail(ctx, &models.ContactEmail{ContactID: contactID, Email: email, IsPrimary: true}); err != nil {
			return fmt.Errorf("failed to create contact email: %w", err)
		}
		return nil
	}

	donorID := found.ContactID
	if donorID != contactID {
		if err := tx.MoveContactEmail(ctx, found.ID, contactID); err != nil {
			return fmt.Errorf("failed to move contact email: %w", err)
		}
	}
	if err := tx.ClearPrimaryEmails(ctx, contactID); err != nil {
		return fmt.Errorf("failed to clear primary emails: %w", err)
	}
	if err := tx.SetPrimaryEmail(ctx, found.ID); err != nil {
		return fmt.Errorf("failed to set primary email: %w", err)
	}

	if donorID != contactID && found.IsPrimary {
		remaining, err := tx.GetContactEmails(ctx, donorID)
		if err != nil {
			return fmt.Errorf("failed to load contact emails: %w", err)
		}
		if len(remaining) > 0 {
			if err := tx.SetPrimaryEmail(ctx, remaining[0].ID); err != nil {
				return fmt.Errorf("failed to promote primary email: %w", err)
			}
		}
	}
	return nil
}

// --- Contact form ---

func (s *contactService) SubmitContactForm(ctx context.Context, req ContactFormRequest) (*ContactFormResult, error) {
	email := req.Email()
	if err := validateEmail("contact_emails", email); err != nil {
		s.metrics.ContactForm(metrics.OutcomeInvalid)
		return nil, err
	}
	name, err := cleanName("name", req.Name, true)
	if err != nil {
		s.metrics.ContactForm(metrics.OutcomeInvalid)
		return nil, err
	}
	nameEn, err := cleanName("name_en", req.NameEn, false)
	if err != nil {
		s.metrics.ContactForm(metrics.OutcomeInvalid)
		return nil, err
	}

	banned, err := s.isBanned(ctx, email)
	if err != nil {
		s.metrics.ContactForm(metrics.OutcomeError)
		return nil, err
	}
	if banned {
		s.metrics.ContactForm(metrics.OutcomeBanned)
		utils.LogInfo("Contact form from banned email", map[string]interface{}{"email": email})
		return nil, &RejectionError{Reason: RejectedBanned}
	}

	note := req.Note()
	if utils.IsEmpty(note) {
		s.metrics.ContactForm(metrics.OutcomeBanned)
		return nil, &RejectionError{Reason: RejectedEmptyNote}
	}

	if s.looksLikeSpam(note) {
		s.recordBanned(ctx, name, email, note)
		s.metrics.ContactForm(metrics.OutcomeSpam)
		return nil, &RejectionError{Reason: RejectedSpam}
	}

	var result ContactFormResult
	err = withConflictRetry(ctx, "contact form", func() error {
		return s.repo.InTx(ctx, func(tx repositories.ContactRepository) error {
			contactID, created, err := admitSubmission(ctx, tx, name, nameEn, email, note)
			if err != nil {
				return err
			}
			result.Created = created
			result.Contact, err = tx.GetContactByID(ctx, contactID)
			return err
		})
	})
	if err != nil {
		s.metrics.ContactForm(metrics.OutcomeError)
		return nil, err
	}

	if err := s.sendAlert(ctx, name, nameEn, email, note); err != nil {
		s.metrics.ContactForm(metrics.OutcomeNotificationFailed)
		utils.LogError(err, "Contact alert failed after submission was saved", map[string]interface{}{
			"contact_id": result.Contact.ID,
			"email":      email,
		})
		return &result, fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}

	if result.Created {
		s.metrics.ContactForm(metrics.OutcomeCreated)
	} else {
		s.metrics.ContactForm(metrics.OutcomeUpdated)
	}
	return &result, nil
}

// admitSubmission files the note under the contact owning email, creating the
// contact first when the email is new.
func admitSubmission(ctx context.Context, tx repositories.ContactRepository, name, nameEn, email, note string) (int64, bool, error) {
	contactNote := &models.Note{
		Title:    fmt.Sprintf("Email from %s", email),
		Body:     note,
		NoteType: models.NoteTypeEmail,
	}

	found, err := tx.FindContactEmailByEmail(ctx, email)
	if err == nil {
		contactNote.ContactID = found.ContactID
		if _, err := tx.CreateNote(ctx, contactNote); err != nil {
			return 0, false, fmt.Errorf("failed to create note: %w", err)
		}
		return found.ContactID, false, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return 0, false, fmt.Errorf("failed to look up contact email: %w", err)
	}

	contact := &models.Contact{Name: name, NameEn: nameEn}
	if _, err := tx.CreateContact(ctx, contact); err != nil {
		return 0, false, fmt.Errorf("failed to create contact: %w", err)
	}
	if _, err := tx.CreateContactEmail(ctx, &models.ContactEmail{ContactID: contact.ID, Email: email, IsPrimary: true}); err != nil {
		return 0, false, fmt.Errorf("failed to create contact email: %w", err)
	}
	contactNote.ContactID = contact.ID
	if _, err := tx.CreateNote(ctx, contactNote); err != nil {
		return 0, false, fmt.Errorf("failed to create note: %w", err)
	}
	return contact.ID, true, nil
}

func (s *contactService) looksLikeSpam(note string) bool {
	if !ASCIIPercentageAnalysis(note, s.cfg.ASCIIThreshold) {
		return false
	}
	return !s.cfg.RequireLink || ContainsLink(note)
}

func (s *contactService) isBanned(ctx context.Context, email string) (bool, error) {
	key := strings.ToLower(email)
	if _, ok := s.banned.Get(key); ok {
		return true, nil
	}
	banned, err := s.repo.IsBanned(ctx, email)
	if err != nil {
		return false, fmt.Errorf("failed to check banned emails: %w", err)
	}
	if banned {
		s.banned.Add(key, struct{}{})
	}
	return banned, nil
}

// recordBanned stores the offending submission. Failures are logged only; the
// submission is rejected either way.
func (s *contactService) recordBanned(ctx context.Context, name, email, note string) {
	s.banned.Add(strings.ToLower(email), struct{}{})
	_, err := s.repo.RecordBanned(ctx, &models.BannedEmail{Name: name, Email: email, Message: note})
	fields := map[string]interface{}{"email": email, "name": name}
	switch {
	case err == nil:
		utils.LogWarn("Contact form rejected as spam, email banned", fields)
	case errors.Is(err, repositories.ErrDuplicateKey):
		utils.LogInfo("Contact form rejected as spam, email already banned", fields)
	default:
		utils.LogError(err, "Failed to record banned email", fields)
	}
}

func (s *contactService) sendAlert(ctx context.Context, name, nameEn, email, note string) error {
	if s.notifier == nil {
		return nil
	}
	return s.notifier.SendContactAlert(ctx, notifier.ContactAlert{
		Name:   name,
		NameEn: nameEn,
		Email:  email,
		Note:   SanitizeAlertNote(note),
	})
}

// --- Contact reads ---

func (s *contactService) GetContactByID(ctx context.Context, id int64) (*models.Contact, error) {
	contact, err := s.repo.GetContactByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return contact, nil
}

func (s *contactService) GetContactForUser(ctx context.Context, userID int64) (*models.Contact, error) {
	contact, err := s.repo.GetContactByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrAccountContactMissing
		}
		return nil, fmt.Errorf("failed to get contact for user: %w", err)
	}
	return contact, nil
}

func (s *contactService) UpdateContactNamesForUser(ctx context.Context, userID int64, req UpdateContactNamesRequest) (*models.Contact, error) {
	name, err := cleanName("name", req.Name, true)
	if err != nil {
		return nil, err
	}
	nameEn, err := cleanName("name_en", req.NameEn, false)
	if err != nil {
		return nil, err
	}

	var contactID int64
	err = s.repo.InTx(ctx, func(tx repositories.ContactRepository) error {
		contact, err := tx.GetContactByUserID(ctx, userID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrAccountContactMissing
			}
			return fmt.Errorf("failed to get contact for user: %w", err)
		}
		contactID = contact.ID
		if err := tx.UpdateContactNames(ctx, contact.ID, name, nameEn); err != nil {
			return fmt.Errorf("failed to update contact names: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetContactByID(ctx, contactID)
}
