// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz

import "context"

// # Data Access Contract

// Repository defines the persistence contract for the RBAC model.
type Repository interface {

	// # Groups

	/*
		CreateGroup persists a new permission group.

		Parameters:
		  - context: context.Context
		  - group: *Group

		Returns:
		  - error: conflict_group_name on duplicates within the org
	*/
	CreateGroup(context context.Context, group *Group) error

	/*
		FindGroupByID returns a group by UUID.

		Parameters:
		  - context: context.Context
		  - groupID: string

		Returns:
		  - *Group: Hydrated entity
		  - error: apperr.NotFound if missing
	*/
	FindGroupByID(context context.Context, groupID string) (*Group, error)

	/*
		ListGroups returns every group of an organization.

		Parameters:
		  - context: context.Context
		  - orgID: string

		Returns:
		  - []*Group: Groups ordered by creation
		  - error: Retrieval failures
	*/
	ListGroups(context context.Context, orgID string) ([]*Group, error)

	/*
		UpdateGroup modifies a group's name and description.

		Parameters:
		  - context: context.Context
		  - group: *Group

		Returns:
		  - error: conflict_group_name, apperr.NotFound
	*/
	UpdateGroup(context context.Context, group *Group) error

	/*
		DeleteGroup removes a group. Memberships and grants cascade.

		Parameters:
		  - context: context.Context
		  - groupID: string

		Returns:
		  - error: apperr.NotFound if missing
	*/
	DeleteGroup(context context.Context, groupID string) error

	// # Group Membership

	/*
		AddGroupMember links a user into a group.

		Parameters:
		  - context: context.Context
		  - member: *GroupMember

		Returns:
		  - error: validation_failed when the pair already exists
	*/
	AddGroupMember(context context.Context, member *GroupMember) error

	/*
		RemoveGroupMember unlinks a user from a group.

		Parameters:
		  - context: context.Context
		  - groupID: string
		  - userID: string

		Returns:
		  - error: apperr.NotFound if no such link
	*/
	RemoveGroupMember(context context.Context, groupID, userID string) error

	/*
		ListGroupMembers returns the roster of a group.

		Parameters:
		  - context: context.Context
		  - groupID: string

		Returns:
		  - []*GroupMember: Membership rows
		  - error: Retrieval failures
	*/
	ListGroupMembers(context context.Context, groupID string) ([]*GroupMember, error)

	// # Permissions & Grants

	/*
		CreatePermission registers a new system-wide permission.

		Parameters:
		  - context: context.Context
		  - permission: *Permission

		Returns:
		  - error: validation_failed on duplicate names
	*/
	CreatePermission(context context.Context, permission *Permission) error

	/*
		ListPermissions returns the full system permission registry.

		Parameters:
		  - context: context.Context

		Returns:
		  - []*Permission: Ordered by name
		  - error: Retrieval failures
	*/
	ListPermissions(context context.Context) ([]*Permission, error)

	/*
		FindPermissionByName returns the registry entry for a name.

		Parameters:
		  - context: context.Context
		  - name: string

		Returns:
		  - *Permission: Hydrated entity
		  - error: apperr.NotFound if unregistered
	*/
	FindPermissionByName(context context.Context, name string) (*Permission, error)

	/*
		GrantPermission links a permission to a group.

		Parameters:
		  - context: context.Context
		  - grant: *Grant

		Returns:
		  - error: permission_already_granted on duplicates
	*/
	GrantPermission(context context.Context, grant *Grant) error

	/*
		RevokePermission unlinks a permission from a group.

		Parameters:
		  - context: context.Context
		  - groupID: string
		  - permissionID: string

		Returns:
		  - error: apperr.NotFound if no such grant
	*/
	RevokePermission(context context.Context, groupID, permissionID string) error

	/*
		ListGroupGrants returns the grants of a group with permission names.

		Parameters:
		  - context: context.Context
		  - groupID: string

		Returns:
		  - []*Grant: Grants ordered by grant time
		  - error: Retrieval failures
	*/
	ListGroupGrants(context context.Context, groupID string) ([]*Grant, error)

	/*
		RecordGrantChange appends a permission-audit row describing a grant or
		revoke mutation. Provenance only; not part of the decision chain.

		Parameters:
		  - context: context.Context
		  - change: *GrantChange

		Returns:
		  - error: Persistence failures
	*/
	RecordGrantChange(context context.Context, change *GrantChange) error

	// # Resolution

	/*
		ResolveSnapshot computes the full permission set of a (user, org) pair
		with a single join across group membership and grants.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - orgID: string

		Returns:
		  - *Snapshot: permission name → granting group IDs (never nil)
		  - error: Retrieval failures
	*/
	ResolveSnapshot(context context.Context, userID, orgID string) (*Snapshot, error)
}

// GrantChange is a provenance record of a grant or revoke mutation.
type GrantChange struct {
	GroupID      string
	PermissionID string
	Action       string // "grant" | "revoke"
	ActorID      string
}
