package repositories

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestMapPQError(t *testing.T) {
	unique := &pq.Error{Code: "23505", Message: "duplicate key", Constraint: "uq_contact_emails_email"}
	err := mapPQError(fmt.Errorf("insert: %w", unique), "creating contact email")
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.Contains(t, err.Error(), "uq_contact_emails_email")

	fk := &pq.Error{Code: "23503", Message: "violates foreign key"}
	err = mapPQError(fk, "creating offering")
	assert.ErrorIs(t, err, ErrDatabaseError)
	assert.NotErrorIs(t, err, ErrDuplicateKey)

	err = mapPQError(errors.New("connection reset"), "listing offerings")
	assert.ErrorIs(t, err, ErrDatabaseError)
}
