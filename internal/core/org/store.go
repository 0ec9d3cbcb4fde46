// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package org

import "context"

// # Data Access Contract

// Repository defines the persistence contract for organizations and their
// memberships.
type Repository interface {

	/*
		Create persists a new organization.

		Parameters:
		  - context: context.Context
		  - organization: *Organization

		Returns:
		  - error: conflict_slug on duplicate slugs, persistence failures
	*/
	Create(context context.Context, organization *Organization) error

	/*
		FindByID returns the organization with the given UUID, excluding
		soft-deleted rows.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Organization: Hydrated entity
		  - error: apperr.NotFound if missing
	*/
	FindByID(context context.Context, id string) (*Organization, error)

	/*
		FindBySlug returns the organization with the given slug, excluding
		soft-deleted rows.

		Parameters:
		  - context: context.Context
		  - slug: string

		Returns:
		  - *Organization: Hydrated entity
		  - error: apperr.NotFound if missing
	*/
	FindBySlug(context context.Context, slug string) (*Organization, error)

	/*
		ListByUser returns every live organization the user belongs to, with
		the user's role in each.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - []*Membership: Organizations plus roles
		  - error: Retrieval failures
	*/
	ListByUser(context context.Context, userID string) ([]*Membership, error)

	/*
		SoftDelete marks the organization deleted without removing rows.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: Persistence failures
	*/
	SoftDelete(context context.Context, id string) error

	/*
		AddMember persists a new membership row.

		Parameters:
		  - context: context.Context
		  - member: *Member

		Returns:
		  - error: Persistence failures (unique pair violation included)
	*/
	AddMember(context context.Context, member *Member) error

	/*
		GetMember returns the membership row for (orgID, userID).

		Parameters:
		  - context: context.Context
		  - orgID: string
		  - userID: string

		Returns:
		  - *Member: Hydrated membership
		  - error: apperr.NotFound if the user is not a member
	*/
	GetMember(context context.Context, orgID, userID string) (*Member, error)

	/*
		ListMembers returns the full roster of an organization.

		Parameters:
		  - context: context.Context
		  - orgID: string

		Returns:
		  - []*Member: Membership rows
		  - error: Retrieval failures
	*/
	ListMembers(context context.Context, orgID string) ([]*Member, error)

	/*
		UpdateMemberRole changes the role on an existing membership row.

		Parameters:
		  - context: context.Context
		  - orgID: string
		  - userID: string
		  - role: Role

		Returns:
		  - error: apperr.NotFound if no such membership
	*/
	UpdateMemberRole(context context.Context, orgID, userID string, role Role) error

	/*
		RemoveMember deletes the membership row for (orgID, userID).

		Parameters:
		  - context: context.Context
		  - orgID: string
		  - userID: string

		Returns:
		  - error: apperr.NotFound if no such membership
	*/
	RemoveMember(context context.Context, orgID, userID string) error

	/*
		CountOwners returns the number of owner-role members of the org.
		Used by the last-owner guard.

		Parameters:
		  - context: context.Context
		  - orgID: string

		Returns:
		  - int: Owner count
		  - error: Retrieval failures
	*/
	CountOwners(context context.Context, orgID string) (int, error)
}

// # Cache Coupling

// Invalidator is notified whenever a membership mutation may change the
// permission set of a (user, org) pair. The authorization cache implements it.
type Invalidator interface {
	InvalidateUser(context context.Context, userID, orgID string)
}

// NopInvalidator satisfies [Invalidator] with no side effects, for tests and
// cache-disabled deployments.
type NopInvalidator struct{}

func (NopInvalidator) InvalidateUser(context.Context, string, string) {}
