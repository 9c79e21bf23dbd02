package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/umakantv/go-utils/cache"
	"github.com/umakantv/go-utils/errs"
	"go.uber.org/zap"

	"task-service/auth"
	"task-service/models"
)

const usersListCacheKey = "users:list"

// UserHandler handles account and profile operations
type UserHandler struct {
	db     *sqlx.DB
	cache  cache.Cache
	tokens *auth.TokenIssuer
	auth   *auth.Authenticator
}

// NewUserHandler creates a new user handler
func NewUserHandler(db *sqlx.DB, cache cache.Cache, tokens *auth.TokenIssuer, authn *auth.Authenticator) *UserHandler {
	return &UserHandler{
		db:     db,
		cache:  cache,
		tokens: tokens,
		auth:   authn,
	}
}

func validEmail(address string) bool {
	if address == "" {
		return false
	}
	_, err := mail.ParseAddress(address)
	return err == nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// issueToken signs a token for the user and appends it to the persisted
// token list.
func (h *UserHandler) issueToken(userID string) (string, error) {
	token, err := h.tokens.Issue(userID)
	if err != nil {
		return "", err
	}
	_, err = h.db.Exec("INSERT INTO user_tokens (user_id, token, created_at) VALUES (?, ?, ?)",
		userID, token, time.Now().UTC())
	if err != nil {
		return "", err
	}
	return token, nil
}

// Register handles POST /users - self-registration, open to anyone
func (h *UserHandler) Register(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logRequest(ctx, "error", "Invalid request body", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Invalid JSON"))
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)

	if req.Name == "" {
		logRequest(ctx, "error", "Missing name")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Name is required"))
		return
	}
	if !validEmail(req.Email) {
		logRequest(ctx, "error", "Invalid email", zap.String("email", req.Email))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Invalid email"))
		return
	}
	if len(req.Password) < models.MinPasswordLength {
		logRequest(ctx, "error", "Password too short")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Password must be at least 6 characters"))
		return
	}

	logRequest(ctx, "info", "Registering user", zap.String("email", req.Email))

	now := time.Now().UTC()
	user := models.User{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     req.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := user.SetPassword(req.Password); err != nil {
		logRequest(ctx, "error", "Password hashing failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Failed to process password"))
		return
	}

	_, err := h.db.Exec("INSERT INTO users (id, name, email, password, admin, created_at, updated_at) VALUES (?, ?, ?, ?, 0, ?, ?)",
		user.ID, user.Name, user.Email, user.Password, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		logRequest(ctx, "error", "Email already registered", zap.String("email", req.Email))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Email already registered"))
		return
	}
	if err != nil {
		logRequest(ctx, "error", "Failed to create user", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Failed to create user"))
		return
	}

	token, err := h.issueToken(user.ID)
	if err != nil {
		logRequest(ctx, "error", "Failed to issue token", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Failed to issue token"))
		return
	}

	h.cache.Delete(usersListCacheKey)

	logRequest(ctx, "info", "User registered", zap.String("user_id", user.ID))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.AuthResponse{Token: token, User: user})
}

// Login handles POST /users/login. Missing account and wrong password get
// the same response so account existence doesn't leak.
func (h *UserHandler) Login(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logRequest(ctx, "error", "Invalid login body", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Invalid JSON"))
		return
	}

	var user models.User
	err := h.db.Get(&user, "SELECT * FROM users WHERE email = ?", req.Email)
	if err == sql.ErrNoRows {
		logRequest(ctx, "error", "Login failed", zap.String("email", req.Email))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Unable to login"))
		return
	}
	if err != nil {
		logRequest(ctx, "error", "DB error", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Server error"))
		return
	}

	if !user.CheckPassword(req.Password) {
		logRequest(ctx, "error", "Login failed", zap.String("email", req.Email))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Unable to login"))
		return
	}

	token, err := h.issueToken(user.ID)
	if err != nil {
		logRequest(ctx, "error", "Failed to issue token", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Failed to issue token"))
		return
	}

	logRequest(ctx, "info", "Login successful", zap.String("user_id", user.ID))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.AuthResponse{Token: token, User: user})
}

// Logout handles POST /users/logout - invalidates exactly the presented token
func (h *UserHandler) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, token, ok := authedUser(w, r, h.auth)
	if !ok {
		return
	}

	_, err := h.db.Exec("DELETE FROM user_tokens WHERE user_id = ? AND token = ?", user.ID, token)
	if err != nil {
		logRequest(ctx, "error", "Failed to remove token", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Failed to logout"))
		return
	}

	h.cache.Delete(auth.TokenCacheKey(token))

	logRequest(ctx, "info", "Logged out", zap.String("user_id", user.ID))

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Logged out"})
}

// LogoutAll handles POST /users/logoutAll - clears the whole token list
func (h *UserHandler) LogoutAll(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, _, ok := authedUser(w, r, h.auth)
	if !ok {
		return
	}

	var tokens []string
	if err := h.db.Select(&tokens, "SELECT token FROM user_tokens WHERE user_id = ?", user.ID); err != nil {
		logRequest(ctx, "error", "Failed to list tokens", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Failed to logout"))
		return
	}

	if _, err := h.db.Exec("DELETE FROM user_tokens WHERE user_id = ?", user.ID); err != nil {
		logRequest(ctx, "error", "Failed to clear tokens", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Failed to logout"))
		return
	}

	for _, t := range tokens {
		h.cache.Delete(auth.TokenCacheKey(t))
	}

	logRequest(ctx, "info", "Logged out everywhere", zap.String("user_id", user.ID), zap.Int("tokens", len(tokens)))

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Logged out everywhere"})
}

// GetUsers handles GET /users - list all users with a count
func (h *UserHandler) GetUsers(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	logRequest(ctx, "info", "Listing users")

	// cached values come back as strings after the redis JSON round trip
	if cached, err := h.cache.Get(usersListCacheKey); err == nil {
		if body, ok := cached.(string); ok && body != "" {
			logRequest(ctx, "debug", "Serving from cache")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
			return
		}
	}

	users := []models.User{}
	err := h.db.Select(&users, "SELECT * FROM users ORDER BY created_at DESC")
	if err != nil {
		logRequest(ctx, "error", "Failed to query users", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Database error"))
		return
	}

	response, _ := json.Marshal(models.UserListResponse{UserCount: len(users), Users: users})
	h.cache.Set(usersListCacheKey, string(response), 5*time.Minute)

	logRequest(ctx, "info", "Users retrieved successfully", zap.Int("count", len(users)))

	w.Header().Set("Content-Type", "application/json")
	w.Write(response)
}

// GetMe handles GET /users/me
func (h *UserHandler) GetMe(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, _, ok := authedUser(w, r, h.auth)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// parseUserUpdates decodes a PATCH body and builds the SET clause. Any key
// outside the allow-list rejects the whole request before store access.
// Returns a validation message on failure.
func parseUserUpdates(r *http.Request) ([]string, []interface{}, string) {
	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		return nil, nil, "Invalid JSON"
	}
	if len(updates) == 0 {
		return nil, nil, "No fields to update"
	}

	setParts := []string{}
	args := []interface{}{}
	for field, raw := range updates {
		if !models.UserUpdateFields[field] {
			return nil, nil, "Invalid updates"
		}
		value, ok := raw.(string)
		if !ok {
			return nil, nil, "Invalid updates"
		}
		switch field {
		case "name":
			if strings.TrimSpace(value) == "" {
				return nil, nil, "Name is required"
			}
			setParts = append(setParts, "name = ?")
			args = append(args, strings.TrimSpace(value))
		case "email":
			value = strings.TrimSpace(value)
			if !validEmail(value) {
				return nil, nil, "Invalid email"
			}
			setParts = append(setParts, "email = ?")
			args = append(args, value)
		case "password":
			if len(value) < models.MinPasswordLength {
				return nil, nil, "Password must be at least 6 characters"
			}
			var u models.User
			if err := u.SetPassword(value); err != nil {
				return nil, nil, "Invalid updates"
			}
			setParts = append(setParts, "password = ?")
			args = append(args, u.Password)
		}
	}
	return setParts, args, ""
}

func (h *UserHandler) updateUserRecord(ctx context.Context, w http.ResponseWriter, r *http.Request, userID string) (models.User, bool) {
	setParts, args, msg := parseUserUpdates(r)
	if msg != "" {
		logRequest(ctx, "error", "Invalid user update", zap.String("reason", msg))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError(msg))
		return models.User{}, false
	}

	setParts = append(setParts, "updated_at = ?")
	args = append(args, time.Now().UTC())
	args = append(args, userID)

	query := "UPDATE users SET " + strings.Join(setParts, ", ") + " WHERE id = ?"
	result, err := h.db.Exec(query, args...)
	if isUniqueViolation(err) {
		logRequest(ctx, "error", "Email already registered", zap.String("user_id", userID))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Email already registered"))
		return models.User{}, false
	}
	if err != nil {
		logRequest(ctx, "error", "Failed to update user", zap.Error(err), zap.String("user_id", userID))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Failed to update user"))
		return models.User{}, false
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		logRequest(ctx, "info", "User not found for update", zap.String("user_id", userID))
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(errs.NewNotFoundError("User not found"))
		return models.User{}, false
	}

	h.cache.Delete(usersListCacheKey)

	var updated models.User
	if err := h.db.Get(&updated, "SELECT * FROM users WHERE id = ?", userID); err != nil {
		logRequest(ctx, "error", "Failed to reload user", zap.Error(err), zap.String("user_id", userID))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Failed to update user"))
		return models.User{}, false
	}
	return updated, true
}

// UpdateMe handles PATCH /users/me - allowed fields: name, email, password
func (h *UserHandler) UpdateMe(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user, _, ok := authedUser(w, r, h.auth)
	if !ok {
		return
	}

	updated, ok := h.updateUserRecord(ctx, w, r, user.ID)
	if !ok {
		return
	}

	logRequest(ctx, "info", "User updated", zap.String("user_id", user.ID))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

// GetUser handles GET /users/{id} - self or admin only
func (h *UserHandler) GetUser(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	if _, err := uuid.Parse(idStr); err != nil {
		logRequest(ctx, "error", "Invalid user ID", zap.String("id", idStr))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Invalid user ID"))
		return
	}

	requester, _, ok := authedUser(w, r, h.auth)
	if !ok {
		return
	}
	if !canActOn(requester, idStr) {
		logRequest(ctx, "info", "Not authorized", zap.String("id", idStr))
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(errs.NewValidationError("Not authorized"))
		return
	}

	var user models.User
	err := h.db.Get(&user, "SELECT * FROM users WHERE id = ?", idStr)
	if err == sql.ErrNoRows {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(errs.NewNotFoundError("User not found"))
		return
	}
	if err != nil {
		logRequest(ctx, "error", "Failed to query user", zap.Error(err), zap.String("id", idStr))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Database error"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// UpdateUser handles PATCH /users/{id} - self or admin only
func (h *UserHandler) UpdateUser(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	if _, err := uuid.Parse(idStr); err != nil {
		logRequest(ctx, "error", "Invalid user ID", zap.String("id", idStr))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Invalid user ID"))
		return
	}

	requester, _, ok := authedUser(w, r, h.auth)
	if !ok {
		return
	}
	if !canActOn(requester, idStr) {
		logRequest(ctx, "info", "Not authorized", zap.String("id", idStr))
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(errs.NewValidationError("Not authorized"))
		return
	}

	updated, ok := h.updateUserRecord(ctx, w, r, idStr)
	if !ok {
		return
	}

	logRequest(ctx, "info", "User updated", zap.String("user_id", idStr))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

// DeleteUser handles DELETE /users/{id} - self or admin only. The user row
// and every task the user owns go in one transaction.
func (h *UserHandler) DeleteUser(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	if _, err := uuid.Parse(idStr); err != nil {
		logRequest(ctx, "error", "Invalid user ID", zap.String("id", idStr))
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errs.NewValidationError("Invalid user ID"))
		return
	}

	requester, _, ok := authedUser(w, r, h.auth)
	if !ok {
		return
	}
	if !canActOn(requester, idStr) {
		logRequest(ctx, "info", "Not authorized", zap.String("id", idStr))
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(errs.NewValidationError("Not authorized"))
		return
	}

	logRequest(ctx, "info", "Deleting user", zap.String("user_id", idStr))

	var target models.User
	err := h.db.Get(&target, "SELECT * FROM users WHERE id = ?", idStr)
	if err == sql.ErrNoRows {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(errs.NewNotFoundError("User not found"))
		return
	}
	if err != nil {
		logRequest(ctx, "error", "Failed to query user", zap.Error(err), zap.String("id", idStr))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Database error"))
		return
	}

	var tokens []string
	if err := h.db.Select(&tokens, "SELECT token FROM user_tokens WHERE user_id = ?", idStr); err != nil {
		logRequest(ctx, "error", "Failed to list tokens", zap.Error(err), zap.String("id", idStr))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Database error"))
		return
	}

	tx, err := h.db.Beginx()
	if err != nil {
		logRequest(ctx, "error", "Failed to begin transaction", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Database error"))
		return
	}

	if _, err := tx.Exec("DELETE FROM tasks WHERE owner = ?", idStr); err != nil {
		tx.Rollback()
		logRequest(ctx, "error", "Failed to delete tasks", zap.Error(err), zap.String("id", idStr))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Failed to delete user"))
		return
	}

	// token rows go with the user via FK cascade
	if _, err := tx.Exec("DELETE FROM users WHERE id = ?", idStr); err != nil {
		tx.Rollback()
		logRequest(ctx, "error", "Failed to delete user", zap.Error(err), zap.String("id", idStr))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Failed to delete user"))
		return
	}

	if err := tx.Commit(); err != nil {
		logRequest(ctx, "error", "Failed to commit delete", zap.Error(err), zap.String("id", idStr))
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errs.NewInternalServerError("Failed to delete user"))
		return
	}

	for _, t := range tokens {
		h.cache.Delete(auth.TokenCacheKey(t))
	}
	h.cache.Delete(usersListCacheKey)
	h.cache.Delete(avatarCacheKey(idStr))

	logRequest(ctx, "info", "User deleted", zap.String("user_id", idStr))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(target)
}
