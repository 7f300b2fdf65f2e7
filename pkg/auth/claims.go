package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims identifies the operator behind a request.
type Claims struct {
	jwt.RegisteredClaims
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	Name     string    `json:"name"`
}

// Role constants
const (
	RoleAdmin = "ADMIN"
	RoleStaff = "STAFF"
)

// HasRole reports whether the operator has role. Admins have every role.
func (c Claims) HasRole(role string) bool {
	return c.Role == role || c.Role == RoleAdmin
}
