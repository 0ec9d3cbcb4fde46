// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// PostgreSQL implementation of the RBAC repository.
//
// # Error Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped to domain-friendly
// [apperr.AppError] types to avoid leaking storage implementation details.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/gatekeep/internal/platform/apperr"
	"github.com/taibuivan/gatekeep/internal/platform/dberr"
)

// # Postgres Implementation

// PostgresRepository implements [Repository] backed by pgx.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new Postgres-backed RBAC repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// # Groups

/*
CreateGroup persists a new permission group.

Parameters:
  - context: context.Context
  - group: *Group

Returns:
  - error: conflict_group_name on duplicates within the org
*/
func (repository *PostgresRepository) CreateGroup(context context.Context, group *Group) error {
	query := `
		INSERT INTO authz.permission_group (id, orgid, name, description)
		VALUES ($1, $2, $3, $4)
		RETURNING createdat, updatedat`

	err := repository.db.QueryRow(context, query,
		group.ID,
		group.OrgID,
		group.Name,
		group.Description,
	).Scan(&group.CreatedAt, &group.UpdatedAt)

	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return apperr.Conflict(apperr.KindConflictGroupName, "A group with this name already exists in the organization")
		}
		return fmt.Errorf("authz_store_create_group_failed: %w", err)
	}

	return nil
}

/*
FindGroupByID returns a group by UUID.

Parameters:
  - context: context.Context
  - groupID: string

Returns:
  - *Group: Hydrated entity
  - error: apperr.NotFound if missing
*/
func (repository *PostgresRepository) FindGroupByID(context context.Context, groupID string) (*Group, error) {
	query := `
		SELECT id, orgid, name, description, createdat, updatedat
		FROM authz.permission_group
		WHERE id = $1`

	var group Group
	err := repository.db.QueryRow(context, query, groupID).Scan(
		&group.ID,
		&group.OrgID,
		&group.Name,
		&group.Description,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Group")
		}
		return nil, fmt.Errorf("authz_store_find_group_failed: %w", err)
	}

	return &group, nil
}

/*
ListGroups returns every group of an organization.

Parameters:
  - context: context.Context
  - orgID: string

Returns:
  - []*Group: Groups ordered by creation
  - error: Retrieval failures
*/
func (repository *PostgresRepository) ListGroups(context context.Context, orgID string) ([]*Group, error) {
	query := `
		SELECT id, orgid, name, description, createdat, updatedat
		FROM authz.permission_group
		WHERE orgid = $1
		ORDER BY createdat`

	rows, err := repository.db.Query(context, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("authz_store_list_groups_failed: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		var group Group
		err := rows.Scan(&group.ID, &group.OrgID, &group.Name, &group.Description, &group.CreatedAt, &group.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("authz_store_list_groups_scan_failed: %w", err)
		}
		groups = append(groups, &group)
	}

	return groups, rows.Err()
}

/*
UpdateGroup modifies a group's name and description.

Parameters:
  - context: context.Context
  - group: *Group

Returns:
  - error: conflict_group_name, apperr.NotFound
*/
func (repository *PostgresRepository) UpdateGroup(context context.Context, group *Group) error {
	query := `
		UPDATE authz.permission_group
		SET name = $2, description = $3, updatedat = NOW()
		WHERE id = $1`

	tag, err := repository.db.Exec(context, query, group.ID, group.Name, group.Description)
	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return apperr.Conflict(apperr.KindConflictGroupName, "A group with this name already exists in the organization")
		}
		return fmt.Errorf("authz_store_update_group_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Group")
	}

	return nil
}

/*
DeleteGroup removes a group. Membership and grant rows cascade via FKs.

Parameters:
  - context: context.Context
  - groupID: string

Returns:
  - error: apperr.NotFound if missing
*/
func (repository *PostgresRepository) DeleteGroup(context context.Context, groupID string) error {
	tag, err := repository.db.Exec(context, `DELETE FROM authz.permission_group WHERE id = $1`, groupID)
	if err != nil {
		return fmt.Errorf("authz_store_delete_group_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Group")
	}

	return nil
}

// # Group Membership

/*
AddGroupMember links a user into a group.

Parameters:
  - context: context.Context
  - member: *GroupMember

Returns:
  - error: validation_failed when the pair already exists
*/
func (repository *PostgresRepository) AddGroupMember(context context.Context, member *GroupMember) error {
	query := `
		INSERT INTO authz.user_group (groupid, userid)
		VALUES ($1, $2)
		RETURNING addedat`

	err := repository.db.QueryRow(context, query, member.GroupID, member.UserID).Scan(&member.AddedAt)
	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return apperr.ValidationError("User is already a member of this group")
		}
		return fmt.Errorf("authz_store_add_group_member_failed: %w", err)
	}

	return nil
}

/*
RemoveGroupMember unlinks a user from a group.

Parameters:
  - context: context.Context
  - groupID: string
  - userID: string

Returns:
  - error: apperr.NotFound if no such link
*/
func (repository *PostgresRepository) RemoveGroupMember(context context.Context, groupID, userID string) error {
	tag, err := repository.db.Exec(context,
		`DELETE FROM authz.user_group WHERE groupid = $1 AND userid = $2`, groupID, userID)
	if err != nil {
		return fmt.Errorf("authz_store_remove_group_member_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Group membership")
	}

	return nil
}

/*
ListGroupMembers returns the roster of a group.

Parameters:
  - context: context.Context
  - groupID: string

Returns:
  - []*GroupMember: Membership rows
  - error: Retrieval failures
*/
func (repository *PostgresRepository) ListGroupMembers(context context.Context, groupID string) ([]*GroupMember, error) {
	query := `
		SELECT groupid, userid, addedat
		FROM authz.user_group
		WHERE groupid = $1
		ORDER BY addedat`

	rows, err := repository.db.Query(context, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("authz_store_list_group_members_failed: %w", err)
	}
	defer rows.Close()

	var members []*GroupMember
	for rows.Next() {
		var member GroupMember
		if err := rows.Scan(&member.GroupID, &member.UserID, &member.AddedAt); err != nil {
			return nil, fmt.Errorf("authz_store_list_group_members_scan_failed: %w", err)
		}
		members = append(members, &member)
	}

	return members, rows.Err()
}

// # Permissions & Grants

/*
CreatePermission registers a new system-wide permission.

Parameters:
  - context: context.Context
  - permission: *Permission

Returns:
  - error: validation_failed on duplicate names
*/
func (repository *PostgresRepository) CreatePermission(context context.Context, permission *Permission) error {
	query := `
		INSERT INTO authz.permission (id, name, description)
		VALUES ($1, $2, $3)
		RETURNING createdat`

	err := repository.db.QueryRow(context, query,
		permission.ID,
		permission.Name,
		permission.Description,
	).Scan(&permission.CreatedAt)

	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return apperr.ValidationError("Permission is already registered")
		}
		return fmt.Errorf("authz_store_create_permission_failed: %w", err)
	}

	return nil
}

/*
ListPermissions returns the full system permission registry.

Parameters:
  - context: context.Context

Returns:
  - []*Permission: Ordered by name
  - error: Retrieval failures
*/
func (repository *PostgresRepository) ListPermissions(context context.Context) ([]*Permission, error) {
	query := `
		SELECT id, name, description, createdat
		FROM authz.permission
		ORDER BY name`

	rows, err := repository.db.Query(context, query)
	if err != nil {
		return nil, fmt.Errorf("authz_store_list_permissions_failed: %w", err)
	}
	defer rows.Close()

	var permissions []*Permission
	for rows.Next() {
		var permission Permission
		if err := rows.Scan(&permission.ID, &permission.Name, &permission.Description, &permission.CreatedAt); err != nil {
			return nil, fmt.Errorf("authz_store_list_permissions_scan_failed: %w", err)
		}
		permissions = append(permissions, &permission)
	}

	return permissions, rows.Err()
}

/*
FindPermissionByName returns the registry entry for a name.

Parameters:
  - context: context.Context
  - name: string

Returns:
  - *Permission: Hydrated entity
  - error: apperr.NotFound if unregistered
*/
func (repository *PostgresRepository) FindPermissionByName(context context.Context, name string) (*Permission, error) {
	query := `
		SELECT id, name, description, createdat
		FROM authz.permission
		WHERE name = $1`

	var permission Permission
	err := repository.db.QueryRow(context, query, name).Scan(
		&permission.ID,
		&permission.Name,
		&permission.Description,
		&permission.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Permission")
		}
		return nil, fmt.Errorf("authz_store_find_permission_failed: %w", err)
	}

	return &permission, nil
}

/*
GrantPermission links a permission to a group.

Parameters:
  - context: context.Context
  - grant: *Grant

Returns:
  - error: permission_already_granted on duplicates
*/
func (repository *PostgresRepository) GrantPermission(context context.Context, grant *Grant) error {
	query := `
		INSERT INTO authz.group_permission (groupid, permissionid, grantedby)
		VALUES ($1, $2, $3)
		RETURNING grantedat`

	err := repository.db.QueryRow(context, query,
		grant.GroupID,
		grant.PermissionID,
		grant.GrantedBy,
	).Scan(&grant.GrantedAt)

	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return apperr.Conflict(apperr.KindAlreadyGranted, "Permission is already granted to this group")
		}
		return fmt.Errorf("authz_store_grant_failed: %w", err)
	}

	return nil
}

/*
RevokePermission unlinks a permission from a group.

Parameters:
  - context: context.Context
  - groupID: string
  - permissionID: string

Returns:
  - error: apperr.NotFound if no such grant
*/
func (repository *PostgresRepository) RevokePermission(context context.Context, groupID, permissionID string) error {
	tag, err := repository.db.Exec(context,
		`DELETE FROM authz.group_permission WHERE groupid = $1 AND permissionid = $2`, groupID, permissionID)
	if err != nil {
		return fmt.Errorf("authz_store_revoke_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Grant")
	}

	return nil
}

/*
ListGroupGrants returns the grants of a group with permission names.

Parameters:
  - context: context.Context
  - groupID: string

Returns:
  - []*Grant: Grants ordered by grant time
  - error: Retrieval failures
*/
func (repository *PostgresRepository) ListGroupGrants(context context.Context, groupID string) ([]*Grant, error) {
	query := `
		SELECT gp.groupid, gp.permissionid, p.name, gp.grantedby, gp.grantedat
		FROM authz.group_permission gp
		JOIN authz.permission p ON p.id = gp.permissionid
		WHERE gp.groupid = $1
		ORDER BY gp.grantedat`

	rows, err := repository.db.Query(context, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("authz_store_list_grants_failed: %w", err)
	}
	defer rows.Close()

	var grants []*Grant
	for rows.Next() {
		var grant Grant
		err := rows.Scan(&grant.GroupID, &grant.PermissionID, &grant.Permission, &grant.GrantedBy, &grant.GrantedAt)
		if err != nil {
			return nil, fmt.Errorf("authz_store_list_grants_scan_failed: %w", err)
		}
		grants = append(grants, &grant)
	}

	return grants, rows.Err()
}

/*
RecordGrantChange appends a permission-audit row.

Parameters:
  - context: context.Context
  - change: *GrantChange

Returns:
  - error: Persistence failures
*/
func (repository *PostgresRepository) RecordGrantChange(context context.Context, change *GrantChange) error {
	query := `
		INSERT INTO authz.permission_audit (groupid, permissionid, action, actorid)
		VALUES ($1, $2, $3, $4)`

	_, err := repository.db.Exec(context, query,
		change.GroupID,
		change.PermissionID,
		change.Action,
		change.ActorID,
	)
	if err != nil {
		return fmt.Errorf("authz_store_record_grant_change_failed: %w", err)
	}

	return nil
}

// # Resolution

/*
ResolveSnapshot computes the full permission set of a (user, org) pair.

Description: One join across user_group → permission_group → group_permission
→ permission, filtered to the organization. The PDP hot path hits this only
on a double cache miss.

Parameters:
  - context: context.Context
  - userID: string
  - orgID: string

Returns:
  - *Snapshot: permission name → granting group IDs, with the group name
    directory (never nil)
  - error: Retrieval failures
*/
func (repository *PostgresRepository) ResolveSnapshot(context context.Context, userID, orgID string) (*Snapshot, error) {
	query := `
		SELECT p.name, g.id, g.name
		FROM authz.user_group ug
		JOIN authz.permission_group g ON g.id = ug.groupid
		JOIN authz.group_permission gp ON gp.groupid = g.id
		JOIN authz.permission p ON p.id = gp.permissionid
		WHERE ug.userid = $1 AND g.orgid = $2`

	rows, err := repository.db.Query(context, query, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("authz_store_resolve_failed: %w", err)
	}
	defer rows.Close()

	snapshot := &Snapshot{Permissions: map[string][]string{}, GroupNames: map[string]string{}}
	for rows.Next() {
		var permissionName, groupID, groupName string
		if err := rows.Scan(&permissionName, &groupID, &groupName); err != nil {
			return nil, fmt.Errorf("authz_store_resolve_scan_failed: %w", err)
		}
		snapshot.Permissions[permissionName] = append(snapshot.Permissions[permissionName], groupID)
		snapshot.GroupNames[groupID] = groupName
	}

	return snapshot, rows.Err()
}
