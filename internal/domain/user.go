package domain

import (
	"time"
)

// User represents a platform user. The user ID is the stable identity
// resolved from the credential (the account email); it keys sessions,
// connections, and the history watermark.
type User struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Department   string    `json:"department"`
	ManagerEmail string    `json:"manager_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DisplayName returns the name to address the user by in assistant messages.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
