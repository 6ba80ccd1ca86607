package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenMalformed indicates the token is not a parseable JWT.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenSignatureInvalid indicates the signature does not verify against the signing key.
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	// ErrTokenExpired indicates the token's expiry has elapsed.
	ErrTokenExpired = errors.New("token expired")
)

// DefaultTokenTTL is used when no TTL is configured.
const DefaultTokenTTL = time.Hour

// TokenManager issues and verifies HS256-signed bearer tokens binding a
// subject (user id) to an issued-at and expiry timestamp. Tokens are
// self-contained; nothing is persisted server-side and there is no
// revocation, so an issued token stays valid until its expiry.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}, nil
}

// TTL reports the configured token lifetime.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue creates a signed token for the given user id, valid from now until
// now + TTL.
func (m *TokenManager) Issue(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of a token and returns the subject
// user id. Failures are distinguished as malformed, bad signature, or
// expired; callers decide how much of that to expose.
func (m *TokenManager) Verify(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return "", fmt.Errorf("%w: %s", ErrTokenMalformed, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", fmt.Errorf("%w: %s", ErrTokenSignatureInvalid, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", fmt.Errorf("%w: %s", ErrTokenExpired, err)
		default:
			return "", fmt.Errorf("%w: %s", ErrTokenMalformed, err)
		}
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrTokenMalformed
	}
	return claims.Subject, nil
}
