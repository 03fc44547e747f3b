package domain

import "time"

// Role is the closed set of account roles.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleStaff      Role = "staff"
	RoleAssistant  Role = "assistant"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

// Roles lists every valid role.
var Roles = []Role{RoleCustomer, RoleStaff, RoleAssistant, RoleSupervisor, RoleAdmin}

// ParseRole returns the role named by s.
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// Valid reports whether r is one of Roles.
func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// Identity is the subject a credential is issued for.
type Identity struct {
	SubjectID    string
	Email        string
	Name         string
	Role         Role
	TokenVersion int
}

// Complete reports whether all four identity fields are populated.
func (i Identity) Complete() bool {
	return i.SubjectID != "" && i.Email != "" && i.Name != "" && i.Role.Valid()
}

// IdentityClaim is the decoded content of a verified credential.
type IdentityClaim struct {
	Identity
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
