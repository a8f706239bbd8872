package domain

import "time"

// Identity is the authenticated caller carried by a session.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// IsAdmin reports whether the identity was issued from the admin store.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Session is a signed, unpersisted identity assertion.
type Session struct {
	Identity  Identity
	Token     string
	ExpiresAt time.Time
}
