// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package authz implements the RBAC model and the Policy Decision Point.

Every protected operation in the platform funnels through [PDP.Authorize]:
given a principal, an organization, and a permission in resource:action form,
it answers granted or denied, with the reason and the groups that carried the
grant. Permissions attach to groups, never directly to users; users acquire
them through group membership inside an organization.

# Architecture

  - PDP: The decision pipeline — validate, membership gate, resolve, decide,
    audit. Fails closed on resolution errors.
  - Cache: Two read tiers in front of the relational store: a per-instance
    LRU (L1) and a shared Redis snapshot (L2), with pub/sub invalidation.
  - Service: Group and grant management; every mutation invalidates the
    affected permission snapshots.

Decisions are recorded to the tamper-evident audit chain asynchronously so
reads never block on audit I/O.
*/
package authz

import "time"

// # Core Entities

// Permission is a system-wide verb in resource:action form, for example
// activity:create or report:read. Globally unique by name.
type Permission struct {
	ID          string    `json:"id"` // UUIDv7
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Group is a named permission bundle scoped to one organization. Group names
// are unique within their organization.
type Group struct {
	ID          string    `json:"id"` // UUIDv7
	OrgID       string    `json:"organization_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GroupMember links a user into a group.
type GroupMember struct {
	GroupID string    `json:"group_id"`
	UserID  string    `json:"user_id"`
	AddedAt time.Time `json:"added_at"`
}

// Grant links a permission to a group, with provenance.
type Grant struct {
	GroupID      string    `json:"group_id"`
	PermissionID string    `json:"permission_id"`
	Permission   string    `json:"permission"` // Denormalized name for listings
	GrantedBy    string    `json:"granted_by"`
	GrantedAt    time.Time `json:"granted_at"`
}

// # Decisions

// Source identifies which tier answered a decision.
type Source string

const (
	SourceL1 Source = "l1"
	SourceL2 Source = "l2"
	SourceDB Source = "db"
)

// Decision reasons. Stable identifiers, part of the wire contract.
const (
	ReasonGranted           = "granted"
	ReasonNotAMember        = "not_a_member"
	ReasonPermissionMissing = "permission_not_granted"
	ReasonScopeDenied       = "resource_scope_denied"
)

// CheckInput is a single authorization question.
type CheckInput struct {
	UserID     string `json:"user_id"`
	OrgID      string `json:"organization_id"`
	Permission string `json:"permission"`
	ResourceID string `json:"resource_id,omitempty"`

	// CallerIP is transport metadata for the audit trail, never part of the
	// decision itself.
	CallerIP string `json:"-"`
}

// Decision is the PDP's answer. MatchedGroups carries the display names of
// the granting groups; the audit record keeps their IDs.
type Decision struct {
	Granted       bool     `json:"granted"`
	Reason        string   `json:"reason"`
	MatchedGroups []string `json:"matched_groups"`
	Source        Source   `json:"source"`
}

// Snapshot is the resolved permission set of one (user, org) pair: permission
// name → IDs of the groups granting it, plus the ID → name directory for
// reporting. This is the unit both cache tiers store, so a decision never
// mixes tiers.
type Snapshot struct {
	Permissions map[string][]string `json:"permissions"`
	GroupNames  map[string]string   `json:"group_names,omitempty"`
}

// Groups returns the group IDs granting the permission, nil if ungranted.
func (snapshot *Snapshot) Groups(permission string) []string {
	if snapshot == nil || snapshot.Permissions == nil {
		return nil
	}
	return snapshot.Permissions[permission]
}

// NamesFor maps group IDs onto display names, falling back to the ID when the
// directory has no entry for it.
func (snapshot *Snapshot) NamesFor(groupIDs []string) []string {
	names := make([]string, 0, len(groupIDs))
	for _, groupID := range groupIDs {
		if snapshot != nil {
			if name, ok := snapshot.GroupNames[groupID]; ok {
				names = append(names, name)
				continue
			}
		}
		names = append(names, groupID)
	}
	return names
}

// # Field Identifiers

const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldPermission  = "permission"
	FieldUserID      = "user_id"
	FieldOrgID       = "organization_id"
	FieldResourceID  = "resource_id"
	FieldItems       = "items"
	FieldMessage     = "message"
)
