// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz

import (
	"context"
	"log/slog"

	"github.com/taibuivan/gatekeep/internal/core/org"
	"github.com/taibuivan/gatekeep/internal/platform/apperr"
	"github.com/taibuivan/gatekeep/internal/platform/validate"
	"github.com/taibuivan/gatekeep/pkg/uuid"
)

// # Service Layer

// Service manages groups, group membership, and permission grants.
//
// Authority follows the organization role ladder: owners grant/revoke
// permissions and create/delete groups, admins manage group membership,
// members read. Every mutation invalidates the permission snapshots of the
// affected (user, org) pairs, so the PDP never serves a stale grant after an
// explicit change.
type Service struct {
	repo    Repository
	members MembershipChecker
	cache   SnapshotCache
	logger  *slog.Logger
}

// NewService constructs the RBAC management [Service].
func NewService(repo Repository, members MembershipChecker, cache SnapshotCache, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		members: members,
		cache:   cache,
		logger:  logger,
	}
}

// # Group Lifecycle

/*
CreateGroup provisions a new permission group. Owner only.

Parameters:
  - context: context.Context
  - orgID: string
  - callerID: string
  - name: string
  - description: *string

Returns:
  - *Group: Created group
  - error: conflict_group_name, not_a_member, insufficient_role
*/
func (service *Service) CreateGroup(context context.Context, orgID, callerID, name string, description *string) (*Group, error) {
	validator := &validate.Validator{}
	validator.Required(FieldName, name).MinLen(FieldName, name, 2).MaxLen(FieldName, name, 120)

	if err := validator.Err(); err != nil {
		return nil, err
	}

	if err := service.requireRole(context, orgID, callerID, org.RoleOwner); err != nil {
		return nil, err
	}

	group := &Group{
		ID:          uuid.New(),
		OrgID:       orgID,
		Name:        name,
		Description: description,
	}
	if err := service.repo.CreateGroup(context, group); err != nil {
		return nil, err
	}

	service.logger.Info("authz_group_created",
		slog.String("group_id", group.ID),
		slog.String("organization_id", orgID),
		slog.String("caller_id", callerID),
	)

	return group, nil
}

/*
GetGroup returns a group. Members of its organization only.

Parameters:
  - context: context.Context
  - groupID: string
  - callerID: string

Returns:
  - *Group: Hydrated group
  - error: not_found, not_a_member
*/
func (service *Service) GetGroup(context context.Context, groupID, callerID string) (*Group, error) {
	group, err := service.repo.FindGroupByID(context, groupID)
	if err != nil {
		return nil, err
	}

	if err := service.requireRole(context, group.OrgID, callerID, org.RoleMember); err != nil {
		return nil, err
	}

	return group, nil
}

/*
ListGroups returns every group of an organization. Members only.

Parameters:
  - context: context.Context
  - orgID: string
  - callerID: string

Returns:
  - []*Group: Groups ordered by creation
  - error: not_a_member
*/
func (service *Service) ListGroups(context context.Context, orgID, callerID string) ([]*Group, error) {
	if err := service.requireRole(context, orgID, callerID, org.RoleMember); err != nil {
		return nil, err
	}
	return service.repo.ListGroups(context, orgID)
}

/*
UpdateGroup renames a group or changes its description. Owner or admin.

Parameters:
  - context: context.Context
  - groupID: string
  - callerID: string
  - name: string
  - description: *string

Returns:
  - *Group: Updated group
  - error: conflict_group_name, not_a_member, insufficient_role
*/
func (service *Service) UpdateGroup(context context.Context, groupID, callerID, name string, description *string) (*Group, error) {
	validator := &validate.Validator{}
	validator.Required(FieldName, name).MinLen(FieldName, name, 2).MaxLen(FieldName, name, 120)

	if err := validator.Err(); err != nil {
		return nil, err
	}

	group, err := service.repo.FindGroupByID(context, groupID)
	if err != nil {
		return nil, err
	}

	if err := service.requireRole(context, group.OrgID, callerID, org.RoleAdmin); err != nil {
		return nil, err
	}

	group.Name = name
	group.Description = description
	if err := service.repo.UpdateGroup(context, group); err != nil {
		return nil, err
	}

	return group, nil
}

/*
DeleteGroup removes a group, cascading memberships and grants. Owner only.

Description: Every member of the deleted group loses its grants, so each of
their permission snapshots is invalidated.

Parameters:
  - context: context.Context
  - groupID: string
  - callerID: string

Returns:
  - error: not_found, not_a_member, insufficient_role
*/
func (service *Service) DeleteGroup(context context.Context, groupID, callerID string) error {
	group, err := service.repo.FindGroupByID(context, groupID)
	if err != nil {
		return err
	}

	if err := service.requireRole(context, group.OrgID, callerID, org.RoleOwner); err != nil {
		return err
	}

	members, err := service.repo.ListGroupMembers(context, groupID)
	if err != nil {
		return err
	}

	if err := service.repo.DeleteGroup(context, groupID); err != nil {
		return err
	}

	for _, member := range members {
		service.cache.InvalidateUser(context, member.UserID, group.OrgID)
	}

	service.logger.Info("authz_group_deleted",
		slog.String("group_id", groupID),
		slog.String("organization_id", group.OrgID),
		slog.String("caller_id", callerID),
	)

	return nil
}

// # Group Membership

/*
AddGroupMember links a user into a group. Admin or owner.

Description: The target must already be a member of the group's organization;
groups never smuggle outsiders past the membership gate.

Parameters:
  - context: context.Context
  - groupID: string
  - callerID: string
  - targetUserID: string

Returns:
  - *GroupMember: Created link
  - error: validation_failed, not_a_member, insufficient_role
*/
func (service *Service) AddGroupMember(context context.Context, groupID, callerID, targetUserID string) (*GroupMember, error) {
	group, err := service.repo.FindGroupByID(context, groupID)
	if err != nil {
		return nil, err
	}

	if err := service.requireRole(context, group.OrgID, callerID, org.RoleAdmin); err != nil {
		return nil, err
	}

	if _, err := service.members.GetMember(context, group.OrgID, targetUserID); err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.ValidationError("User is not a member of the group's organization")
		}
		return nil, err
	}

	member := &GroupMember{GroupID: groupID, UserID: targetUserID}
	if err := service.repo.AddGroupMember(context, member); err != nil {
		return nil, err
	}

	service.cache.InvalidateUser(context, targetUserID, group.OrgID)

	return member, nil
}

/*
RemoveGroupMember unlinks a user from a group. Admin or owner.

Parameters:
  - context: context.Context
  - groupID: string
  - callerID: string
  - targetUserID: string

Returns:
  - error: not_found, not_a_member, insufficient_role
*/
func (service *Service) RemoveGroupMember(context context.Context, groupID, callerID, targetUserID string) error {
	group, err := service.repo.FindGroupByID(context, groupID)
	if err != nil {
		return err
	}

	if err := service.requireRole(context, group.OrgID, callerID, org.RoleAdmin); err != nil {
		return err
	}

	if err := service.repo.RemoveGroupMember(context, groupID, targetUserID); err != nil {
		return err
	}

	service.cache.InvalidateUser(context, targetUserID, group.OrgID)

	return nil
}

/*
ListGroupMembers returns the roster of a group. Members of its org only.

Parameters:
  - context: context.Context
  - groupID: string
  - callerID: string

Returns:
  - []*GroupMember: Membership rows
  - error: not_found, not_a_member
*/
func (service *Service) ListGroupMembers(context context.Context, groupID, callerID string) ([]*GroupMember, error) {
	group, err := service.repo.FindGroupByID(context, groupID)
	if err != nil {
		return nil, err
	}

	if err := service.requireRole(context, group.OrgID, callerID, org.RoleMember); err != nil {
		return nil, err
	}

	return service.repo.ListGroupMembers(context, groupID)
}

// # Grants

/*
GrantPermission attaches a registered permission to a group. Owner only.

Description: Writes a provenance row to the permission audit and invalidates
the snapshot of every current group member.

Parameters:
  - context: context.Context
  - groupID: string
  - callerID: string
  - permissionName: string

Returns:
  - *Grant: Created grant
  - error: permission_already_granted, not_found, insufficient_role
*/
func (service *Service) GrantPermission(context context.Context, groupID, callerID, permissionName string) (*Grant, error) {
	validator := &validate.Validator{}
	validator.Required(FieldPermission, permissionName).Permission(FieldPermission, permissionName)

	if err := validator.Err(); err != nil {
		return nil, err
	}

	group, err := service.repo.FindGroupByID(context, groupID)
	if err != nil {
		return nil, err
	}

	if err := service.requireRole(context, group.OrgID, callerID, org.RoleOwner); err != nil {
		return nil, err
	}

	permission, err := service.repo.FindPermissionByName(context, permissionName)
	if err != nil {
		return nil, err
	}

	grant := &Grant{
		GroupID:      groupID,
		PermissionID: permission.ID,
		Permission:   permission.Name,
		GrantedBy:    callerID,
	}
	if err := service.repo.GrantPermission(context, grant); err != nil {
		return nil, err
	}

	if err := service.repo.RecordGrantChange(context, &GrantChange{
		GroupID:      groupID,
		PermissionID: permission.ID,
		Action:       "grant",
		ActorID:      callerID,
	}); err != nil {
		service.logger.Warn("authz_grant_audit_failed", slog.Any("error", err))
	}

	service.invalidateGroup(context, group)

	service.logger.Info("authz_permission_granted",
		slog.String("group_id", groupID),
		slog.String("permission", permissionName),
		slog.String("caller_id", callerID),
	)

	return grant, nil
}

/*
RevokePermission detaches a permission from a group. Owner only.

Parameters:
  - context: context.Context
  - groupID: string
  - callerID: string
  - permissionName: string

Returns:
  - error: not_found, not_a_member, insufficient_role
*/
func (service *Service) RevokePermission(context context.Context, groupID, callerID, permissionName string) error {
	group, err := service.repo.FindGroupByID(context, groupID)
	if err != nil {
		return err
	}

	if err := service.requireRole(context, group.OrgID, callerID, org.RoleOwner); err != nil {
		return err
	}

	permission, err := service.repo.FindPermissionByName(context, permissionName)
	if err != nil {
		return err
	}

	if err := service.repo.RevokePermission(context, groupID, permission.ID); err != nil {
		return err
	}

	if err := service.repo.RecordGrantChange(context, &GrantChange{
		GroupID:      groupID,
		PermissionID: permission.ID,
		Action:       "revoke",
		ActorID:      callerID,
	}); err != nil {
		service.logger.Warn("authz_revoke_audit_failed", slog.Any("error", err))
	}

	service.invalidateGroup(context, group)

	service.logger.Info("authz_permission_revoked",
		slog.String("group_id", groupID),
		slog.String("permission", permissionName),
		slog.String("caller_id", callerID),
	)

	return nil
}

/*
ListGroupGrants returns the grants of a group. Members of its org only.

Parameters:
  - context: context.Context
  - groupID: string
  - callerID: string

Returns:
  - []*Grant: Grants with permission names
  - error: not_found, not_a_member
*/
func (service *Service) ListGroupGrants(context context.Context, groupID, callerID string) ([]*Grant, error) {
	group, err := service.repo.FindGroupByID(context, groupID)
	if err != nil {
		return nil, err
	}

	if err := service.requireRole(context, group.OrgID, callerID, org.RoleMember); err != nil {
		return nil, err
	}

	return service.repo.ListGroupGrants(context, groupID)
}

// # System Permission Registry

/*
CreatePermission registers a new system-wide permission name.

Parameters:
  - context: context.Context
  - name: string
  - description: *string

Returns:
  - *Permission: Created registry entry
  - error: validation_failed on bad format or duplicates
*/
func (service *Service) CreatePermission(context context.Context, name string, description *string) (*Permission, error) {
	validator := &validate.Validator{}
	validator.Required(FieldPermission, name).Permission(FieldPermission, name)

	if err := validator.Err(); err != nil {
		return nil, err
	}

	permission := &Permission{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
	}
	if err := service.repo.CreatePermission(context, permission); err != nil {
		return nil, err
	}

	return permission, nil
}

/*
ListPermissions returns the full system permission registry.

Parameters:
  - context: context.Context

Returns:
  - []*Permission: Ordered by name
  - error: Retrieval failures
*/
func (service *Service) ListPermissions(context context.Context) ([]*Permission, error) {
	return service.repo.ListPermissions(context)
}

// # Guards

// requireRole enforces the organization role ladder; non-members receive a
// uniform not_a_member.
func (service *Service) requireRole(ctx context.Context, orgID, callerID string, required org.Role) error {
	member, err := service.members.GetMember(ctx, orgID, callerID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return apperr.NotAMember()
		}
		return err
	}

	if !member.Role.AtLeast(required) {
		return apperr.InsufficientRole()
	}

	return nil
}

// invalidateGroup busts the snapshot of every current member of the group.
func (service *Service) invalidateGroup(ctx context.Context, group *Group) {
	members, err := service.repo.ListGroupMembers(ctx, group.ID)
	if err != nil {
		service.logger.Warn("authz_invalidate_list_failed",
			slog.String("group_id", group.ID),
			slog.Any("error", err),
		)
		return
	}

	for _, member := range members {
		service.cache.InvalidateUser(ctx, member.UserID, group.OrgID)
	}
}
