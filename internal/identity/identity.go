// Package identity holds the shared data model of the identity core: the
// resolved user identity, its role grants, and the pluggable directory the
// core reads identities from. The directory is external; this core never
// persists user records.
package identity

import (
	"context"
	"time"
)

// Account lifecycle states. An empty Status is treated as active so that
// directories which never suspend accounts need not populate the field.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusDisabled  = "disabled"
)

// Identity is a resolved platform user. It is read from the Directory (or
// handed in already resolved by an identity-provider adapter) and treated as
// immutable by the core.
type Identity struct {
	ID           string           `json:"id"`
	Email        string           `json:"email"`
	DisplayName  string           `json:"display_name,omitempty"`
	PasswordHash string           `json:"-"`
	Roles        []Role           `json:"roles"`
	Orgs         []OrgMembership  `json:"organizations,omitempty"`
	MFAEnabled   bool             `json:"mfa_enabled"`
	MFASecret    string           `json:"-"`
	BackupHashes []string         `json:"-"`
	Status       string           `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
}

// OrgMembership ties an identity to a tenant organization.
type OrgMembership struct {
	OrganizationID string    `json:"organization_id"`
	JoinedAt       time.Time `json:"joined_at"`
}

// Role groups permissions. Hierarchy orders roles by privilege (higher wins);
// a role with an empty OrganizationID is global and applies in every tenant.
type Role struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Hierarchy      int          `json:"hierarchy"`
	OrganizationID string       `json:"organization_id,omitempty"`
	Permissions    []Permission `json:"permissions"`
}

// Permission is a resource/action capability. Resource and Action support
// the wildcard token "*", either alone or embedded in a pattern; matching is
// always against the entire string.
type Permission struct {
	ID         string            `json:"id"`
	Resource   string            `json:"resource"`
	Action     string            `json:"action"`
	Conditions map[string]any    `json:"conditions,omitempty"`
}

// OrgIDs returns the organization ids the identity belongs to.
func (i Identity) OrgIDs() []string {
	out := make([]string, 0, len(i.Orgs))
	for _, m := range i.Orgs {
		out = append(out, m.OrganizationID)
	}
	return out
}

// RoleNames returns the names of all assigned roles.
func (i Identity) RoleNames() []string {
	out := make([]string, 0, len(i.Roles))
	for _, r := range i.Roles {
		out = append(out, r.Name)
	}
	return out
}

// Directory is the external user-lookup collaborator. Implementations make
// no promise about backing storage; absence is reported via ErrNotFound.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	FindByID(ctx context.Context, id string) (*Identity, error)
}
