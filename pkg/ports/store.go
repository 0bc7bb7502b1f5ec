package ports

import (
	"context"

	"github.com/aretw0/chatflow/pkg/domain"
)

// SessionStore defines the interface for persisting conversation sessions.
//
// Save uses optimistic concurrency: the stored version must equal
// session.Version, otherwise domain.ErrVersionConflict is returned. On success
// the store increments session.Version and stamps UpdatedAt.
type SessionStore interface {
	// Save persists the session.
	Save(ctx context.Context, session *domain.Session) error

	// Load retrieves a session by ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Session, error)

	// Delete removes a session. Deleting an unknown session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of all stored sessions.
	List(ctx context.Context) ([]string, error)
}

// BotSessionLister is implemented by stores that index sessions by bot.
type BotSessionLister interface {
	// ListByBot returns the IDs of a bot's sessions, newest first.
	ListByBot(ctx context.Context, botID string) ([]string, error)
}
