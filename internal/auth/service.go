// Package auth issues and validates session tokens. There are no passwords:
// a token only binds a connection back to the user it chose a name as, so a
// reconnecting client keeps its identity and channel memberships.
package auth

import (
	"github.com/lbessard/canal/internal/store"
)

// Service provides session token operations.
type Service struct {
	cfg *JWTConfig
}

// NewService creates a new token service.
func NewService(cfg *JWTConfig) *Service {
	return &Service{cfg: cfg}
}

// TokenFor issues a session token for a user.
func (s *Service) TokenFor(user *store.User) (string, error) {
	return GenerateToken(s.cfg, user.ID, user.Name)
}

// Validate checks a session token and returns its claims.
func (s *Service) Validate(token string) (*Claims, error) {
	return ValidateToken(s.cfg, token)
}
