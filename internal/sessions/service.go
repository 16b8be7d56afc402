package sessions

import (
	"fmt"
	"time"

	"seatly/internal/shared/clock"
	"seatly/internal/shared/config"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// SessionClaims is the token payload the engine's middleware verifies.
// Identity proper lives in an external service; this issuer is the
// development stand-in so checkout flows can run without it.
type SessionClaims struct {
	SessionID  string `json:"session_id"`
	CustomerID string `json:"customer_id,omitempty"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// Session is an issued token plus its identifiers
type Session struct {
	Token      string    `json:"token"`
	SessionID  string    `json:"session_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	Role       string    `json:"role"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Service mints signed session tokens
type Service interface {
	Issue(customerID, role string) (*Session, error)
}

type service struct {
	config *config.Config
	clock  clock.Clock
}

func NewService(cfg *config.Config, clk clock.Clock) Service {
	return &service{config: cfg, clock: clk}
}

func (s *service) Issue(customerID, role string) (*Session, error) {
	if role == "" {
		role = "customer"
	}

	now := s.clock.Now()
	sessionID := uuid.NewString()
	expiresAt := now.Add(s.config.Session.TokenTTL)

	claims := SessionClaims{
		SessionID:  sessionID,
		CustomerID: customerID,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   customerID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Session.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &Session{
		Token:      signed,
		SessionID:  sessionID,
		CustomerID: customerID,
		Role:       role,
		ExpiresAt:  expiresAt,
	}, nil
}
