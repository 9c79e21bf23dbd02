package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/umakantv/go-utils/cache"
	"github.com/umakantv/go-utils/httpserver"

	"task-service/models"
)

const (
	tokenCacheKeyPrefix = "auth:"
	tokenCacheTTL       = 5 * time.Minute
)

// ErrNotAuthenticated is returned when a request carries no usable identity.
var ErrNotAuthenticated = errors.New("not authenticated")

// TokenCacheKey is the cache key under which a verified token is remembered.
// Logout and user deletion delete these keys so a revoked token is never
// replayable within the cache TTL.
func TokenCacheKey(token string) string {
	return tokenCacheKeyPrefix + token
}

// Authenticator resolves bearer tokens to users. It backs both the server's
// auth gate and per-handler identity resolution.
type Authenticator struct {
	db     *sqlx.DB
	cache  cache.Cache
	issuer *TokenIssuer
}

// NewAuthenticator creates an authenticator over the given store and cache.
func NewAuthenticator(db *sqlx.DB, cacheClient cache.Cache, issuer *TokenIssuer) *Authenticator {
	return &Authenticator{
		db:     db,
		cache:  cacheClient,
		issuer: issuer,
	}
}

// Identify reads the Authorization header, verifies the JWT, and confirms
// the exact token string is still on the user's persisted token list.
func (a *Authenticator) Identify(r *http.Request) (models.User, string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return models.User{}, "", ErrNotAuthenticated
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return models.User{}, "", ErrNotAuthenticated
	}
	token := parts[1]

	userID, err := a.issuer.Verify(token)
	if err != nil {
		return models.User{}, "", ErrNotAuthenticated
	}

	// The signature alone isn't enough; logout removes the row and the
	// token must stop working.
	if !a.tokenOnRecord(userID, token) {
		return models.User{}, "", ErrNotAuthenticated
	}

	var user models.User
	if err := a.db.Get(&user, "SELECT * FROM users WHERE id = ?", userID); err != nil {
		return models.User{}, "", ErrNotAuthenticated
	}

	return user, token, nil
}

// CheckAuth adapts Identify to the httpserver auth callback. Routes with
// AuthType "bearer" reject with 401 before the handler runs.
func (a *Authenticator) CheckAuth(r *http.Request) (bool, httpserver.RequestAuth) {
	user, token, err := a.Identify(r)
	if err != nil {
		return false, httpserver.RequestAuth{}
	}
	return true, httpserver.RequestAuth{
		Type:   "bearer",
		Client: user.Email,
		Claims: map[string]interface{}{
			"user_id": user.ID,
			"token":   token,
		},
	}
}

func (a *Authenticator) tokenOnRecord(userID, token string) bool {
	if cached, err := a.cache.Get(TokenCacheKey(token)); err == nil {
		if cachedID, ok := cached.(string); ok && cachedID == userID {
			return true
		}
	}

	var count int
	err := a.db.Get(&count, "SELECT COUNT(1) FROM user_tokens WHERE user_id = ? AND token = ?", userID, token)
	if err != nil || count == 0 {
		return false
	}

	a.cache.Set(TokenCacheKey(token), userID, tokenCacheTTL)
	return true
}
