// Package auth turns bearer tokens into principals. Account storage and
// login live elsewhere; this package only signs and checks HS256 tokens
// carrying a subject and a role.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kirinyoku/bustix/internal/domain"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role")
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for p valid from now for the manager TTL.
func (m *Manager) Issue(p domain.Principal, now time.Time) (string, error) {
	const op = "auth.Manager.Issue"

	if p.ID == "" {
		return "", fmt.Errorf("%s: empty subject", op)
	}
	if !validRole(p.Role) {
		return "", fmt.Errorf("%s:%w", op, ErrInvalidRole)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})

	s, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	return s, nil
}

// Parse verifies the token signature and expiry and returns its principal.
func (m *Manager) Parse(tokenString string) (domain.Principal, error) {
	const op = "auth.Manager.Parse"

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%s:%w: %v", op, ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return domain.Principal{}, fmt.Errorf("%s:%w: missing subject", op, ErrInvalidToken)
	}

	role := domain.Role(claims.Role)
	if !validRole(role) {
		return domain.Principal{}, fmt.Errorf("%s:%w", op, ErrInvalidRole)
	}

	return domain.Principal{ID: claims.Subject, Role: role}, nil
}

func validRole(r domain.Role) bool {
	switch r {
	case domain.RoleUser, domain.RoleStaff, domain.RoleAdmin:
		return true
	}
	return false
}
