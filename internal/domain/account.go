package domain

import "time"

// Account is the persisted login record for customers and staff alike.
type Account struct {
	ID               string
	Email            string
	Name             string
	PasswordHash     string
	Role             Role
	TwoFactorEnabled bool
	TokenVersion     int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Identity projects the account onto the fields a credential carries.
func (a *Account) Identity() Identity {
	return Identity{
		SubjectID:    a.ID,
		Email:        a.Email,
		Name:         a.Name,
		Role:         a.Role,
		TokenVersion: a.TokenVersion,
	}
}
