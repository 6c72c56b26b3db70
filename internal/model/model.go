// Package model defines domain entities shared by the session core, the cache and the API client.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// AuthTokens is the persisted access/refresh pair. ExpiresAt is epoch milliseconds.
type AuthTokens struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// UsableAt reports whether the access token may be sent at now. No skew margin is applied.
func (t AuthTokens) UsableAt(now time.Time) bool {
	return t.Token != "" && now.UnixMilli() < t.ExpiresAt
}

// Role of a gym account.
type Role string

const (
	RoleStudent    Role = "STUDENT"
	RoleInstructor Role = "INSTRUCTOR"
	RoleAdmin      Role = "ADMIN"
)

// User is the authenticated account.
type User struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Role     Role      `json:"role"`
	UnitID   string    `json:"unitId,omitempty"`
	UnitName string    `json:"unitName,omitempty"`
	Status   string    `json:"status"`
	Phone    string    `json:"phone,omitempty"`
}

// Session is what a successful login or sign-up returns.
type Session struct {
	User   User
	Tokens AuthTokens
}

// Credentials for a login attempt. Domain selects the gym tenant.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Domain   string `json:"domain"`
}

// SignUp describes a new student account.
type SignUp struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Domain   string `json:"domain"`
	Phone    string `json:"phone,omitempty"`
	UnitID   string `json:"unitId,omitempty"`
}

// UnitSelection is the gym unit the user currently works with.
type UnitSelection struct {
	ID   string `json:"selected_unit_id"`
	Name string `json:"selected_unit_name"`
}
