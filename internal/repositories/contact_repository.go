package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"langschool_backend/internal/models"
)

// ContactRepository defines the CRM persistence operations used by contact
// reconciliation. Email lookups are case-insensitive and email addresses are
// unique across all contacts.
type ContactRepository interface {
	CreateContact(ctx context.Context, contact *models.Contact) (int64, error)
	// GetContactByID returns the contact with its emails and notes.
	GetContactByID(ctx context.Context, id int64) (*models.Contact, error)
	GetContactByUserID(ctx context.Context, userID int64) (*models.Contact, error)
	// LinkUser links userID to contactID, unlinking it from any other contact.
	LinkUser(ctx context.Context, contactID, userID int64) error
	UpdateContactNames(ctx context.Context, contactID int64, name, nameEn string) error
	LockContact(ctx context.Context, contactID int64) error

	FindContactEmailByEmail(ctx context.Context, email string) (*models.ContactEmail, error)
	CreateContactEmail(ctx context.Context, email *models.ContactEmail) (int64, error)
	GetContactEmails(ctx context.Context, contactID int64) ([]models.ContactEmail, error)
	MoveContactEmail(ctx context.Context, emailID, contactID int64) error
	ClearPrimaryEmails(ctx context.Context, contactID int64) error
	SetPrimaryEmail(ctx context.Context, emailID int64) error

	CreateNote(ctx context.Context, note *models.Note) (int64, error)

	IsBanned(ctx context.Context, email string) (bool, error)
	RecordBanned(ctx context.Context, banned *models.BannedEmail) (int64, error)

	// InTx runs fn against a repository bound to a single transaction.
	InTx(ctx context.Context, fn func(repo ContactRepository) error) error
}

type contactRepository struct {
	db   *sql.DB
	exec SQLExecutor
}

// NewContactRepository creates a Postgres backed ContactRepository.
func NewContactRepository(db *sql.DB) ContactRepository {
	return &contactRepository{db: db, exec: db}
}

func (r *contactRepository) InTx(ctx context.Context, fn func(repo ContactRepository) error) error {
	if _, inTx := r.exec.(*sql.Tx); inTx {
		return fn(r)
	}
	return runInTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&contactRepository{db: r.db, exec: tx})
	})
}

// --- Contacts ---

func (r *contactRepository) CreateContact(ctx context.Context, contact *models.Contact) (int64, error) {
	query := `INSERT INTO contacts (name, name_en, user_id, organization_id, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id`
	now := time.Now()
	contact.CreatedAt, contact.UpdatedAt = now, now
	err := r.exec.QueryRowContext(ctx, query,
		contact.Name, contact.NameEn, contact.UserID, contact.OrganizationID, now, now,
	).Scan(&contact.ID)
	if err != nil {
		return 0, mapPQError(err, "creating contact")
	}
	return contact.ID, nil
}

func (r *contactRepository) getContact(ctx context.Context, where string, arg interface{}) (*models.Contact, error) {
	query := `SELECT id, name, name_en, user_id, organization_id, created_at, updated_at FROM contacts WHERE ` + where
	contact := &models.Contact{}
	var userID, orgID sql.NullInt64
	err := r.exec.QueryRowContext(ctx, query, arg).Scan(
		&contact.ID, &contact.Name, &contact.NameEn, &userID, &orgID, &contact.CreatedAt, &contact.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting contact (%s %v): %v", ErrDatabaseError, where, arg, err)
	}
	contact.UserID, contact.OrganizationID = int64Ptr(userID), int64Ptr(orgID)

	if contact.Emails, err = r.GetContactEmails(ctx, contact.ID); err != nil {
		return nil, err
	}
	if contact.Notes, err = r.getNotes(ctx, contact.ID); err != nil {
		return nil, err
	}
	if contact.GuardianOf, err = r.getGuardianOf(ctx, contact.ID); err != nil {
		return nil, err
	}
	return contact, nil
}

func (r *contactRepository) GetContactByID(ctx context.Context, id int64) (*models.Contact, error) {
	return r.getContact(ctx, "id = $1", id)
}

func (r *contactRepository) GetContactByUserID(ctx context.Context, userID int64) (*models.Contact, error) {
	return r.getContact(ctx, "user_id = $1", userID)
}

func (r *contactRepository) LinkUser(ctx context.Context, contactID, userID int64) error {
	now := time.Now()
	if _, err := r.exec.ExecContext(ctx,
		`UPDATE contacts SET user_id = NULL, updated_at = $1 WHERE user_id = $2 AND id <> $3`,
		now, userID, contactID); err != nil {
		return mapPQError(err, fmt.Sprintf("unlinking user ID %d", userID))
	}
	result, err := r.exec.ExecContext(ctx,
		`UPDATE contacts SET user_id = $1, updated_at = $2 WHERE id = $3`, userID, now, contactID)
	if err != nil {
		return mapPQError(err, fmt.Sprintf("linking user ID %d to contact ID %d", userID, contactID))
	}
	return expectAffected(result, fmt.Sprintf("linking contact ID %d", contactID))
}

func (r *contactRepository) UpdateContactNames(ctx context.Context, contactID int64, name, nameEn string) error {
	result, err := r.exec.ExecContext(ctx,
		`UPDATE contacts SET name = $1, name_en = $2, updated_at = $3 WHERE id = $4`,
		name, nameEn, time.Now(), contactID)
	if err != nil {
		return mapPQError(err, fmt.Sprintf("updating names of contact ID %d", contactID))
	}
	return expectAffected(result, fmt.Sprintf("updating contact ID %d", contactID))
}

func (r *contactRepository) LockContact(ctx context.Context, contactID int64) error {
	var id int64
	err := r.exec.QueryRowContext(ctx, `SELECT id FROM contacts WHERE id = $1 FOR UPDATE`, contactID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: locking contact ID %d: %v", ErrDatabaseError, contactID, err)
	}
	return nil
}

func (r *contactRepository) getGuardianOf(ctx context.Context, contactID int64) ([]int64, error) {
	rows, err := r.exec.QueryContext(ctx,
		`SELECT ward_id FROM contact_guardians WHERE guardian_id = $1 ORDER BY ward_id`, contactID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying guardian links of contact ID %d: %v", ErrDatabaseError, contactID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scanning guardian link: %v", ErrDatabaseError, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Emails ---

func scanContactEmail(row scanner) (*models.ContactEmail, error) {
	e := &models.ContactEmail{}
	if err := row.Scan(&e.ID, &e.ContactID, &e.Email, &e.IsPrimary, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *contactRepository) FindContactEmailByEmail(ctx context.Context, email string) (*models.ContactEmail, error) {
	query := `SELECT id, contact_id, email, is_primary, created_at, updated_at
	          FROM contact_emails WHERE LOWER(email) = LOWER($1)`
	e, err := scanContactEmail(r.exec.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: finding contact email %s: %v", ErrDatabaseError, email, err)
	}
	return e, nil
}

func (r *contactRepository) CreateContactEmail(ctx context.Context, email *models.ContactEmail) (int64, error) {
	query := `INSERT INTO contact_emails (contact_id, email, is_primary, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id`
	now := time.Now()
	email.CreatedAt, email.UpdatedAt = now, now
	err := r.exec.QueryRowContext(ctx, query, email.ContactID, email.Email, email.IsPrimary, now, now).Scan(&email.ID)
	if err != nil {
		return 0, mapPQError(err, fmt.Sprintf("creating contact email %s", email.Email))
	}
	return email.ID, nil
}

func (r *contactRepository) GetContactEmails(ctx context.Context, contactID int64) ([]models.ContactEmail, error) {
	query := `SELECT id, contact_id, email, is_primary, created_at, updated_at
	          FROM contact_emails WHERE contact_id = $1 ORDER BY id`
	rows, err := r.exec.QueryContext(ctx, query, contactID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying emails of contact ID %d: %v", ErrDatabaseError, contactID, err)
	}
	defer rows.Close()

	emails := []models.ContactEmail{}
	for rows.Next() {
		e, err := scanContactEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning contact email: %v", ErrDatabaseError, err)
		}
		emails = append(emails, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating contact emails: %v", ErrDatabaseError, err)
	}
	return emails, nil
}

func (r *contactRepository) MoveContactEmail(ctx context.Context, emailID, contactID int64) error {
	result, err := r.exec.ExecContext(ctx,
		`UPDATE contact_emails SET contact_id = $1, updated_at = $2 WHERE id = $3`, contactID, time.Now(), emailID)
	if err != nil {
		return mapPQError(err, fmt.Sprintf("moving contact email ID %d", emailID))
	}
	return expectAffected(result, fmt.Sprintf("moving contact email ID %d", emailID))
}

func (r *contactRepository) ClearPrimaryEmails(ctx context.Context, contactID int64) error {
	_, err := r.exec.ExecContext(ctx,
		`UPDATE contact_emails SET is_primary = FALSE, updated_at = $1 WHERE contact_id = $2 AND is_primary`,
		time.Now(), contactID)
	if err != nil {
		return mapPQError(err, fmt.Sprintf("clearing primary emails of contact ID %d", contactID))
	}
	return nil
}

func (r *contactRepository) SetPrimaryEmail(ctx context.Context, emailID int64) error {
	result, err := r.exec.ExecContext(ctx,
		`UPDATE contact_emails SET is_primary = TRUE, updated_at = $1 WHERE id = $2`, time.Now(), emailID)
	if err != nil {
		return mapPQError(err, fmt.Sprintf("setting primary email ID %d", emailID))
	}
	return expectAffected(result, fmt.Sprintf("setting primary email ID %d", emailID))
}

// --- Notes ---

func (r *contactRepository) CreateNote(ctx context.Context, note *models.Note) (int64, error) {
	query := `INSERT INTO contact_notes (contact_id, title, note, note_type, created_at)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id`
	note.CreatedAt = time.Now()
	err := r.exec.QueryRowContext(ctx, query,
		note.ContactID, note.Title, note.Body, string(note.NoteType), note.CreatedAt,
	).Scan(&note.ID)
	if err != nil {
		return 0, mapPQError(err, fmt.Sprintf("creating note for contact ID %d", note.ContactID))
	}
	return note.ID, nil
}

func (r *contactRepository) getNotes(ctx context.Context, contactID int64) ([]models.Note, error) {
	rows, err := r.exec.QueryContext(ctx,
		`SELECT id, contact_id, title, note, note_type, created_at FROM contact_notes WHERE contact_id = $1 ORDER BY id`,
		contactID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying notes of contact ID %d: %v", ErrDatabaseError, contactID, err)
	}
	defer rows.Close()

	notes := []models.Note{}
	for rows.Next() {
		var n models.Note
		var noteType string
		if err := rows.Scan(&n.ID, &n.ContactID, &n.Title, &n.Body, &noteType, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning note: %v", ErrDatabaseError, err)
		}
		n.NoteType = models.NoteType(noteType)
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating notes: %v", ErrDatabaseError, err)
	}
	return notes, nil
}

// --- Banned emails ---

func (r *contactRepository) IsBanned(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.exec.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM banned_emails WHERE LOWER(email) = LOWER($1))`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: checking banned email %s: %v", ErrDatabaseError, email, err)
	}
	return exists, nil
}

func (r *contactRepository) RecordBanned(ctx context.Context, banned *models.BannedEmail) (int64, error) {
	query := `INSERT INTO banned_emails (name, email, message, created_at)
	          VALUES ($1, $2, $3, $4)
	          RETURNING id`
	banned.CreatedAt = time.Now()
	err := r.exec.QueryRowContext(ctx, query, banned.Name, banned.Email, banned.Message, banned.CreatedAt).Scan(&banned.ID)
	if err != nil {
		return 0, mapPQError(err, fmt.Sprintf("recording banned email %s", banned.Email))
	}
	return banned.ID, nil
}
