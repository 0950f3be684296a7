// Package lead persists the contact records a form submission creates.
// Records are written speculatively before verification settles, which is
// why the cleanup coordinator needs to be able to find and delete them
// again by identifier alone.
package lead

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uvensys/formshield/internal"
	"github.com/uvensys/formshield/lib/store"
)

// NoExpiry keeps a record until it is deleted explicitly.
const NoExpiry time.Duration = 0

// Lead is one contact record.
type Lead struct {
	ID        string            `json:"id"`
	Email     string            `json:"email"`
	Fields    map[string]string `json:"fields,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Model stores leads by ID with a secondary email index so that repeat
// submissions from the same address update the existing record instead of
// creating a duplicate.
type Model struct {
	leads  *store.JSON[Lead]
	emails *store.JSON[string]
}

func NewModel(backend store.Interface) *Model {
	return &Model{
		leads:  &store.JSON[Lead]{Underlying: backend, Prefix: "lead:"},
		emails: &store.JSON[string]{Underlying: backend, Prefix: "lead-email:"},
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// indexKey hashes the address so raw emails never appear as store keys.
func indexKey(email string) string {
	return internal.SHA256sum(email)
}

// Save persists ld and reports whether a new record was created. A lead
// whose email already maps to a stored record updates that record in place
// and keeps its identifier and creation time.
func (m *Model) Save(ctx context.Context, ld *Lead) (id string, isNew bool, err error) {
	email := normalizeEmail(ld.Email)
	if email == "" {
		return "", false, errors.New("lead: email is required")
	}
	ld.Email = email

	existingID, err := m.emails.Get(ctx, indexKey(email))
	switch {
	case err == nil:
		existing, err := m.leads.Get(ctx, existingID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return "", false, fmt.Errorf("lead: can't load existing record %s: %w", existingID, err)
		}

		if err == nil {
			ld.ID = existing.ID
			ld.CreatedAt = existing.CreatedAt
			isNew = false
			break
		}

		// Index points at a record that is already gone, fall through
		// and create a fresh one.
		fallthrough
	case errors.Is(err, store.ErrNotFound):
		ld.ID = uuid.NewString()
		ld.CreatedAt = time.Now()
		isNew = true
	default:
		return "", false, fmt.Errorf("lead: can't look up email index: %w", err)
	}

	if err := m.leads.Set(ctx, ld.ID, *ld, NoExpiry); err != nil {
		return "", false, fmt.Errorf("lead: can't store record %s: %w", ld.ID, err)
	}

	if err := m.emails.Set(ctx, indexKey(email), ld.ID, NoExpiry); err != nil {
		return "", false, fmt.Errorf("lead: can't store email index for %s: %w", ld.ID, err)
	}

	return ld.ID, isNew, nil
}

// Get fetches one record by identifier. Returns store.ErrNotFound when the
// record does not exist or was already deleted.
func (m *Model) Get(ctx context.Context, id string) (Lead, error) {
	return m.leads.Get(ctx, id)
}

// Delete removes a record and its email index entry. Deleting a record
// that is already gone returns store.ErrNotFound.
func (m *Model) Delete(ctx context.Context, id string) error {
	ld, err := m.leads.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := m.leads.Delete(ctx, id); err != nil {
		return fmt.Errorf("lead: can't delete record %s: %w", id, err)
	}

	if err := m.emails.Delete(ctx, indexKey(ld.Email)); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("lead: can't delete email index for %s: %w", id, err)
	}

	return nil
}
