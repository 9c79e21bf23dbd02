package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost matches what we use everywhere a password is hashed.
const bcryptCost = 12

// MinPasswordLength is enforced at registration and on password updates.
const MinPasswordLength = 6

// User represents a user in the system.
// Password holds a bcrypt hash; avatar, admin and the hash are all
// excluded from JSON so the public view is safe to return as-is.
type User struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Password  string    `json:"-" db:"password"`
	Avatar    []byte    `json:"-" db:"avatar"`
	Admin     bool      `json:"-" db:"admin"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SetPassword hashes plain and stores the hash on the user. Hashing is an
// explicit step here rather than a save-time side effect, so it runs exactly
// once per plaintext change.
func (u *User) SetPassword(plain string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return err
	}
	u.Password = string(hashed)
	return nil
}

// CheckPassword compares plain against the stored hash.
func (u *User) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(plain)) == nil
}

// CreateUserRequest represents the request to register a user.
type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"` // Plaintext; hashed before persisting
}

// LoginRequest for POST /users/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// UserListResponse is returned by GET /users. An object rather than a bare
// array so it can grow additional properties later.
type UserListResponse struct {
	UserCount int    `json:"userCount"`
	Users     []User `json:"users"`
}

// UserUpdateFields is the allow-list for user PATCH bodies. Requests are
// decoded into a generic map first so that any key outside this set can be
// rejected before touching the store.
var UserUpdateFields = map[string]bool{
	"name":     true,
	"email":    true,
	"password": true,
}
