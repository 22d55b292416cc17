package models

import (
	"time"
)

// User represents an account in the identity store together with its role assignments
type User struct {
	Login       string    `json:"login" db:"login"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Active      bool      `json:"active" db:"active"`
	Roles       []string  `json:"roles" db:"-"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new active User instance
func NewUser(login, displayName string) *User {
	now := time.Now().UTC()
	return &User{
		Login:       login,
		DisplayName: displayName,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ToPrincipal converts the stored user into an authenticated principal
func (u *User) ToPrincipal() *Principal {
	return NewPrincipal(u.Login, u.Roles)
}
