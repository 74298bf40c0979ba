package fleet

import (
	"context"
	"errors"
	"fmt"
)

// Identity is the account behind a validated key.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Title  string `json:"title"`
}

// EntryTitle is the config entry title for an account email.
func EntryTitle(email string) string {
	return "SyncSign Account " + email
}

// Validate makes one account call through s and classifies the outcome as
// ErrCannotConnect, ErrInvalidAuth or ErrUnknownSetup.
func Validate(ctx context.Context, s *Session) (Identity, error) {
	rec, err := s.AccountInfo(ctx)
	if err != nil {
		return Identity{}, classifySetup(err)
	}
	if rec == nil {
		return Identity{}, fmt.Errorf("%w: empty account record", ErrUnknownSetup)
	}
	return Identity{
		UserID: rec.UserID,
		Email:  rec.Email,
		Title:  EntryTitle(rec.Email),
	}, nil
}

// ValidateKey is the one-shot form used by the setup flow. The session it
// opens is released before returning.
func ValidateKey(ctx context.Context, apiKey string, factory Factory, exec Runner) (Identity, error) {
	api, err := factory(apiKey)
	if err != nil {
		return Identity{}, classifySetup(err)
	}
	s := OpenSession(api, exec)
	defer s.Release()
	return Validate(ctx, s)
}

func classifySetup(err error) error {
	switch {
	case errors.Is(err, ErrTransport), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrCannotConnect, err)
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrMissingAPIKey):
		return fmt.Errorf("%w: %w", ErrInvalidAuth, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnknownSetup, err)
	}
}
