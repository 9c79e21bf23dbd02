package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken covers every verification failure: bad signature, wrong
// algorithm, expired, or a subject that isn't there.
var ErrInvalidToken = errors.New("invalid token")

// TokenIssuer signs and verifies bearer tokens. The signing secret comes
// from configuration; Now is overridable for tests.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	Now    func() time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
}

// NewTokenIssuer creates an issuer with the given HS256 secret and token
// lifetime.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		Now:    time.Now,
	}
}

// Issue signs a token carrying userID as its subject, expiring after the
// configured lifetime. The jti keeps tokens issued within the same second
// distinct, so revoking one session never touches another.
func (i *TokenIssuer) Issue(userID string) (string, error) {
	now := i.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry and returns the subject user ID.
func (i *TokenIssuer) Verify(tokenString string) (string, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(func() time.Time { return i.Now() }),
	)
	if err != nil {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
