package domain

import (
	"errors"
	"time"
)

// User is the core user entity. Users are never hard-deleted; IsActive false
// disables login.
type User struct {
	ID             string
	Username       string
	Email          string
	HashedPassword string
	IsActive       bool
	IsAdmin        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Username == "" {
		return errors.New("username is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.HashedPassword == "" {
		return errors.New("hashed password is required")
	}
	return nil
}
