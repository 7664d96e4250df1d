package gateway

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long issued session tokens stay valid.
const DefaultTokenTTL = 2 * time.Hour

// SessionClaims is the identity a verified token asserts.
type SessionClaims struct {
	TenantID string
	UserID   string
}

// TokenAuthority issues and verifies the HS256 session tokens carried on
// WebSocket connects and REST calls.
type TokenAuthority struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenAuthority creates a TokenAuthority. A non-positive ttl falls
// back to DefaultTokenTTL.
func NewTokenAuthority(secret []byte, ttl time.Duration) *TokenAuthority {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenAuthority{secret: secret, ttl: ttl}
}

// Issue signs a token for the given tenant/user pair.
func (a *TokenAuthority) Issue(tenantID, userID string) (string, error) {
	now := time.Now()
	claims := jwtlib.MapClaims{
		"sub": userID,
		"tid": tenantID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(a.ttl).Unix(),
	}
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := tok.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning the identity it
// asserts. Only the HMAC family is accepted.
func (a *TokenAuthority) Verify(token string) (SessionClaims, error) {
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return SessionClaims{}, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return SessionClaims{}, errors.New("invalid token")
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return SessionClaims{}, errors.New("claims type mismatch")
	}

	sub, _ := claims["sub"].(string)
	tid, _ := claims["tid"].(string)
	if sub == "" || tid == "" {
		return SessionClaims{}, errors.New("token missing identity claims")
	}
	return SessionClaims{TenantID: tid, UserID: sub}, nil
}
