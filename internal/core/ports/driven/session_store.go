package driven

import (
	"context"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
)

// SessionStore persists login sessions, keyed by ID and indexed by both tokens.
// Redis backs it when configured (entries expire at ExpiresAt); otherwise Postgres.
// Lookups of unknown or expired sessions return domain.ErrNotFound.
type SessionStore interface {
	Save(ctx context.Context, session *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	GetByToken(ctx context.Context, token string) (*domain.Session, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (*domain.Session, error)

	// Delete and DeleteByToken are idempotent
	Delete(ctx context.Context, id string) error
	DeleteByToken(ctx context.Context, token string) error

	// DeleteByUser ends every session of a user
	DeleteByUser(ctx context.Context, userID string) error
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)
}
