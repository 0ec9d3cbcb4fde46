// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package org manages organizations, the tenant boundary of the platform.

Every authorization decision is scoped to an organization: a principal with no
membership in the org has no permissions there, full stop. This package owns
the organization lifecycle and the membership role ladder.

# Core Responsibility

  - Tenancy: Defines the [Organization] entity with its unique slug.
  - Membership: Manages [Member] associations and the member → admin → owner
    role ladder.
  - Safety: Enforces the last-owner invariant on every role mutation.

Role mutations notify the authorization cache so stale permission snapshots
never outlive a membership change.
*/
package org

import "time"

// # Enums

// Role defines the authority level of a member within an organization.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// rank orders the role ladder for comparisons. Unknown roles rank lowest.
func (role Role) rank() int {
	switch role {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether the role sits at or above the required rung.
func (role Role) AtLeast(required Role) bool {
	return role.rank() >= required.rank()
}

// IsValid reports whether the string names a known role.
func (role Role) IsValid() bool {
	return role.rank() > 0
}

// OrgStatus models the organization lifecycle.
type OrgStatus string

const (
	OrgStatusActive    OrgStatus = "active"
	OrgStatusSuspended OrgStatus = "suspended"
)

// # Core Entities

// Organization represents a tenant: the boundary inside which memberships,
// groups, and permission grants live.
type Organization struct {
	ID        string     `json:"id"` // UUIDv7
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	Status    OrgStatus  `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

// Member represents a user's affiliation and role within an organization.
type Member struct {
	OrgID    string    `json:"organization_id"`
	UserID   string    `json:"user_id"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Membership pairs an organization with the caller's role in it, for the
// "list my organizations" view.
type Membership struct {
	Organization *Organization `json:"organization"`
	Role         Role          `json:"role"`
}

// # Field Identifiers

const (
	FieldName   = "name"
	FieldSlug   = "slug"
	FieldUserID = "user_id"
	FieldRole   = "role"
	FieldItems  = "items"
	FieldMessage = "message"
)
