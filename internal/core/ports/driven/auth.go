package driven

import "github.com/custodia-labs/sercha-ask/internal/core/domain"

// AuthAdapter holds the credential primitives behind AuthService: bcrypt
// password hashes and signed bearer tokens. Sessions live in SessionStore.
type AuthAdapter interface {
	HashPassword(password string) (string, error)
	// VerifyPassword is constant-time with respect to the stored hash
	VerifyPassword(password, hash string) bool

	// GenerateToken signs claims; ExpiresAt must already be set
	GenerateToken(claims *domain.TokenClaims) (string, error)
	// ParseToken returns domain.ErrTokenExpired or domain.ErrTokenInvalid on failure
	ParseToken(token string) (*domain.TokenClaims, error)
}
