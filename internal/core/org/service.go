// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package org

import (
	"context"
	"log/slog"
	"time"

	"github.com/taibuivan/gatekeep/internal/platform/apperr"
	"github.com/taibuivan/gatekeep/internal/platform/validate"
	"github.com/taibuivan/gatekeep/pkg/slug"
	"github.com/taibuivan/gatekeep/pkg/uuid"
)

// # Service Layer

// Service orchestrates business rules for organizations and memberships.
type Service struct {
	repo        Repository
	invalidator Invalidator
	logger      *slog.Logger
}

// NewService constructs a new organization [Service].
func NewService(repo Repository, invalidator Invalidator, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		invalidator: invalidator,
		logger:      logger,
	}
}

// # Organization Lifecycle

/*
CreateOrganization provisions a new tenant and makes the creator its owner.

Parameters:
  - context: context.Context
  - name: string
  - creatorID: string

Returns:
  - *Organization: Created tenant
  - error: conflict_slug, validation or persistence failures
*/
func (service *Service) CreateOrganization(context context.Context, name, creatorID string) (*Organization, error) {
	validator := &validate.Validator{}
	validator.Required(FieldName, name).MinLen(FieldName, name, 2).MaxLen(FieldName, name, 120)

	if err := validator.Err(); err != nil {
		return nil, err
	}

	organization := &Organization{
		ID:     uuid.New(),
		Name:   name,
		Slug:   slug.From(name),
		Status: OrgStatusActive,
	}

	if err := service.repo.Create(context, organization); err != nil {
		return nil, err
	}

	if err := service.repo.AddMember(context, &Member{
		OrgID:  organization.ID,
		UserID: creatorID,
		Role:   RoleOwner,
	}); err != nil {
		return nil, err
	}

	service.logger.Info("organization_created",
		slog.String("organization_id", organization.ID),
		slog.String("creator_id", creatorID),
	)

	return organization, nil
}

/*
GetOrganization retrieves an organization by its UUID or slug identifier.

Parameters:
  - context: context.Context
  - identifier: string

Returns:
  - *Organization: Hydrated entity
  - error: apperr.NotFound if missing
*/
func (service *Service) GetOrganization(context context.Context, identifier string) (*Organization, error) {

	// Discriminator: ID vs Slug
	// UUIDs have a fixed length of 36 characters in standard hyphenated format.
	if len(identifier) == 36 {
		return service.repo.FindByID(context, identifier)
	}

	return service.repo.FindBySlug(context, identifier)
}

/*
ListUserOrganizations returns every organization the user belongs to, with
the user's role in each.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - []*Membership: Organizations plus roles
  - error: Retrieval failures
*/
func (service *Service) ListUserOrganizations(context context.Context, userID string) ([]*Membership, error) {
	return service.repo.ListByUser(context, userID)
}

/*
DeleteOrganization soft-deletes a tenant. Owner only.

Description: The membership rows stay in place; the organization simply stops
resolving. Permission snapshots of every member are invalidated.

Parameters:
  - context: context.Context
  - orgID: string
  - callerID: string

Returns:
  - error: not_a_member, insufficient_role, persistence failures
*/
func (service *Service) DeleteOrganization(context context.Context, orgID, callerID string) error {
	if _, err := service.requireRole(context, orgID, callerID, RoleOwner); err != nil {
		return err
	}

	members, err := service.repo.ListMembers(context, orgID)
	if err != nil {
		return err
	}

	if err := service.repo.SoftDelete(context, orgID); err != nil {
		return err
	}

	for _, member := range members {
		service.invalidator.InvalidateUser(context, member.UserID, orgID)
	}

	service.logger.Info("organization_deleted",
		slog.String("organization_id", orgID),
		slog.String("caller_id", callerID),
	)

	return nil
}

// # Membership Controls

/*
AddMember enrolls a user into the organization.

Description: Admins may add plain members; assigning the admin or owner role
requires an owner caller.

Parameters:
  - context: context.Context
  - orgID: string
  - callerID: string
  - targetUserID: string
  - role: Role

Returns:
  - *Member: Created membership
  - error: not_a_member, insufficient_role, validation or storage failures
*/
func (service *Service) AddMember(context context.Context, orgID, callerID, targetUserID string, role Role) (*Member, error) {
	if !role.IsValid() {
		return nil, apperr.ValidationError("Unknown role", apperr.FieldError{Field: FieldRole, Message: "must be one of owner, admin, member"})
	}

	requiredRole := RoleAdmin
	if role.AtLeast(RoleAdmin) {
		requiredRole = RoleOwner
	}
	if _, err := service.requireRole(context, orgID, callerID, requiredRole); err != nil {
		return nil, err
	}

	member := &Member{
		OrgID:    orgID,
		UserID:   targetUserID,
		Role:     role,
		JoinedAt: time.Now(),
	}
	if err := service.repo.AddMember(context, member); err != nil {
		return nil, err
	}

	service.invalidator.InvalidateUser(context, targetUserID, orgID)

	service.logger.Info("org_member_added",
		slog.String("organization_id", orgID),
		slog.String("user_id", targetUserID),
		slog.String("role", string(role)),
	)

	return member, nil
}

/*
UpdateMemberRole moves a member along the role ladder. Owner only.

Description: Demoting the last remaining owner is rejected, so the
organization can never end up ownerless.

Parameters:
  - context: context.Context
  - orgID: string
  - callerID: string
  - targetUserID: string
  - newRole: Role

Returns:
  - error: not_a_member, insufficient_role, validation or storage failures
*/
func (service *Service) UpdateMemberRole(context context.Context, orgID, callerID, targetUserID string, newRole Role) error {
	if !newRole.IsValid() {
		return apperr.ValidationError("Unknown role", apperr.FieldError{Field: FieldRole, Message: "must be one of owner, admin, member"})
	}

	if _, err := service.requireRole(context, orgID, callerID, RoleOwner); err != nil {
		return err
	}

	target, err := service.repo.GetMember(context, orgID, targetUserID)
	if err != nil {
		return err
	}

	if target.Role == RoleOwner && newRole != RoleOwner {
		if err := service.guardLastOwner(context, orgID); err != nil {
			return err
		}
	}

	if err := service.repo.UpdateMemberRole(context, orgID, targetUserID, newRole); err != nil {
		return err
	}

	service.invalidator.InvalidateUser(context, targetUserID, orgID)

	service.logger.Info("org_member_role_updated",
		slog.String("organization_id", orgID),
		slog.String("user_id", targetUserID),
		slog.String("role", string(newRole)),
	)

	return nil
}

/*
RemoveMember drops a user from the organization.

Description: Owners may remove anyone; admins may remove plain members; any
member may remove themselves (leave). The last owner can never be removed
while the organization is alive.

Parameters:
  - context: context.Context
  - orgID: string
  - callerID: string
  - targetUserID: string

Returns:
  - error: not_a_member, insufficient_role, validation or storage failures
*/
func (service *Service) RemoveMember(context context.Context, orgID, callerID, targetUserID string) error {
	caller, err := service.repo.GetMember(context, orgID, callerID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return apperr.NotAMember()
		}
		return err
	}

	target, err := service.repo.GetMember(context, orgID, targetUserID)
	if err != nil {
		return err
	}

	switch {
	case callerID == targetUserID:
		// Leaving is always allowed, last-owner guard aside.
	case caller.Role == RoleOwner:
	case caller.Role == RoleAdmin && target.Role == RoleMember:
	default:
		return apperr.InsufficientRole()
	}

	if target.Role == RoleOwner {
		if err := service.guardLastOwner(context, orgID); err != nil {
			return err
		}
	}

	if err := service.repo.RemoveMember(context, orgID, targetUserID); err != nil {
		return err
	}

	service.invalidator.InvalidateUser(context, targetUserID, orgID)

	service.logger.Info("org_member_removed",
		slog.String("organization_id", orgID),
		slog.String("user_id", targetUserID),
	)

	return nil
}

/*
GetRole returns the caller-visible role of a user within the organization.

Parameters:
  - context: context.Context
  - orgID: string
  - userID: string

Returns:
  - Role: The user's role
  - error: not_a_member if no membership exists
*/
func (service *Service) GetRole(context context.Context, orgID, userID string) (Role, error) {
	member, err := service.repo.GetMember(context, orgID, userID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return "", apperr.NotAMember()
		}
		return "", err
	}
	return member.Role, nil
}

/*
ListMembers returns the roster of an organization. Members only.

Parameters:
  - context: context.Context
  - orgID: string
  - callerID: string

Returns:
  - []*Member: Membership rows
  - error: not_a_member, retrieval failures
*/
func (service *Service) ListMembers(context context.Context, orgID, callerID string) ([]*Member, error) {
	if _, err := service.requireRole(context, orgID, callerID, RoleMember); err != nil {
		return nil, err
	}
	return service.repo.ListMembers(context, orgID)
}

// # Guards

// requireRole loads the caller's membership and enforces a minimum rung.
// Non-members receive not_a_member regardless of whether the org exists,
// so tenancy cannot be probed.
func (service *Service) requireRole(ctx context.Context, orgID, callerID string, required Role) (*Member, error) {
	member, err := service.repo.GetMember(ctx, orgID, callerID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.NotAMember()
		}
		return nil, err
	}

	if !member.Role.AtLeast(required) {
		return nil, apperr.InsufficientRole()
	}

	return member, nil
}

// guardLastOwner rejects mutations that would leave the org ownerless.
func (service *Service) guardLastOwner(ctx context.Context, orgID string) error {
	owners, err := service.repo.CountOwners(ctx, orgID)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return apperr.ValidationError("Cannot remove the last owner of an organization")
	}
	return nil
}
