package configentry

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Domain is the integration domain every entry belongs to.
const Domain = "syncsign"

// Entry is one configured SyncSign account.
type Entry struct {
	ID           string    `json:"id"`
	Domain       string    `json:"domain"`
	Title        string    `json:"title"`
	APIKey       string    `json:"-"`
	AccountEmail string    `json:"account_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// New returns an entry with a fresh ID.
func New(title, apiKey, accountEmail string) *Entry {
	return &Entry{
		ID:           uuid.NewString(),
		Domain:       Domain,
		Title:        title,
		APIKey:       apiKey,
		AccountEmail: accountEmail,
	}
}

// Validate checks the fields Create requires.
func (e *Entry) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidEntry)
	case e.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidEntry)
	case e.APIKey == "":
		return fmt.Errorf("%w: api key is required", ErrInvalidEntry)
	}
	return nil
}
