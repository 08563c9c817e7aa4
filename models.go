package identity

import (
	"time"

	"github.com/uptrace/bun"
)

// Role is the identity role
type Role = string

const (
	// RoleGuest is a guest role (ie. view)
	RoleGuest Role = "guest"
	// RoleMember is a registered member
	RoleMember Role = "member"
	// RoleAdmin is an admin role
	RoleAdmin Role = "admin"
)

// Column and field names understood by the store
const (
	FieldID       = "id"
	FieldLogin    = "login"
	FieldHash     = "hash"
	FieldPassword = "password"
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldRole     = "role"
	FieldActive   = "active"
	FieldAdded    = "added"
)

// Fields holds column values for inserts and updates. The raw
// password is accepted under FieldPassword and never persisted.
type Fields map[string]any

// Clone returns a shallow copy
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Identity is the identity record
type Identity struct {
	bun.BaseModel `bun:"table:identity,alias:i"`
	ID            int64          `bun:"id,pk,autoincrement" json:"id"`
	Login         string         `bun:"login,notnull,unique" json:"login"`
	Hash          string         `bun:"hash" json:"-"`
	Username      string         `bun:"username" json:"username,omitempty"`
	Email         string         `bun:"email" json:"email,omitempty"`
	Role          Role           `bun:"role" json:"role,omitempty"`
	Active        bool           `bun:"active,notnull" json:"active"`
	Added         time.Time      `bun:"added,nullzero" json:"added"`
	Extra         map[string]any `bun:"-" json:"extra,omitempty"`
}

// Pending reports whether the identity still waits for approval
func (i *Identity) Pending() bool {
	return i != nil && !i.Active
}

// ToFields flattens the record, including extra columns
func (i *Identity) ToFields() Fields {
	out := Fields{
		FieldID:       i.ID,
		FieldLogin:    i.Login,
		FieldUsername: i.Username,
		FieldEmail:    i.Email,
		FieldRole:     i.Role,
		FieldActive:   i.Active,
		FieldAdded:    i.Added,
	}
	for k, v := range i.Extra {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}
