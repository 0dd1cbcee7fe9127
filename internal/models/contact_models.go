package models

import "time"

// NoteType distinguishes manual CRM notes from notes created out of inbound email.
type NoteType string

const (
	NoteTypeRegular NoteType = "regular"
	NoteTypeEmail   NoteType = "email"
)

// Contact is a CRM person or organization. It outlives any linked site account.
type Contact struct {
	ID             int64          `json:"id" db:"id"`
	Name           string         `json:"name" db:"name"`
	NameEn         string         `json:"name_en" db:"name_en"`
	UserID         *int64         `json:"user_id,omitempty" db:"user_id"`
	OrganizationID *int64         `json:"organization_id,omitempty" db:"organization_id"`
	GuardianOf     []int64        `json:"guardian_of,omitempty"`
	Emails         []ContactEmail `json:"contact_emails"`
	Notes          []Note         `json:"contact_notes"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// PrimaryEmail returns the contact's primary email, if any.
func (c *Contact) PrimaryEmail() (ContactEmail, bool) {
	for _, e := range c.Emails {
		if e.IsPrimary {
			return e, true
		}
	}
	return ContactEmail{}, false
}

// ContactEmail is globally unique (case-insensitive) across all contacts.
type ContactEmail struct {
	ID        int64     `json:"id" db:"id"`
	ContactID int64     `json:"contact_id" db:"contact_id"`
	Email     string    `json:"email" db:"email"`
	IsPrimary bool      `json:"is_primary" db:"is_primary"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Note is an append-only log entry on a contact.
type Note struct {
	ID        int64     `json:"id" db:"id"`
	ContactID int64     `json:"contact_id" db:"contact_id"`
	Title     string    `json:"title" db:"title"`
	Body      string    `json:"note" db:"note"`
	NoteType  NoteType  `json:"note_type" db:"note_type"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// BannedEmail records a rejected sender together with the offending message.
type BannedEmail struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
