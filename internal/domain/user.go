package domain

import "time"

// User represents a registered account.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser builds a User from exactly the fields registration is allowed to
// set: name, email and the already-hashed password. Anything else is
// assigned here, never taken from request input.
func NewUser(id, name, email, passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Public returns a copy safe to hand outward, with the password hash dropped.
func (u *User) Public() *User {
	if u == nil {
		return nil
	}
	return &User{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
