package domain

import "time"

// Role is the partition an account lives in. The store an account is found in
// decides its role; there is no role column to trust.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Account is a stored credential holder in either the admin or the user store.
type Account struct {
	ID                string
	Name              string
	Email             string
	EncryptedPassword string
	Role              Role
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Identity returns the claim set issued for this account.
func (a *Account) Identity() Identity {
	return Identity{ID: a.ID, Email: a.Email, Name: a.Name, Role: a.Role}
}
