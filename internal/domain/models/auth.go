package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// SupabaseClaims are the JWT claims issued by Supabase Auth.
// The Subject claim carries the user id.
type SupabaseClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// UserID returns the authenticated user's id.
func (c *SupabaseClaims) UserID() string {
	return c.Subject
}
