// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package org

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

// NewPostgresRepository creates a new Postgres-backed organization repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const organizationColumns = `id, name, slug, status, createdat, updatedat, deletedat`

// scanOrganization hydrates an [Organization] from a pgx row.
func scanOrganization(row pgx.Row) (*Organization, error) {
	var organization Organization
	err := row.Scan(
		&organization.ID,
		&organization.Name,
		&organization.Slug,
		&organization.Status,
		&organization.CreatedAt,
		&organization.UpdatedAt,
		&organization.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &organization, nil
}

/*
Create persists a new organization row.

Parameters:
  - context: context.Context
  - organization: *Organization

Returns:
  - error: conflict_slug on duplicate slugs
*/
func (repository *PostgresRepository) Create(context context.Context, organization *Organization) error {
	query := `
		INSERT INTO authz.organization (id, name, slug, status)
		VALUES ($1, $2, $3, $4)
		RETURNING createdat, updatedat`

	err := repository.db.QueryRow(context, query,
		organization.ID,
		organization.Name,
		organization.Slug,
		organization.Status,
	).Scan(&organization.CreatedAt, &organization.UpdatedAt)

	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return apperr.Conflict(apperr.KindConflictSlug, "An organization with this slug already exists")
		}
		return fmt.Errorf("org_store_create_failed: %w", err)
	}

	return nil
}

/*
FindByID returns a live organization by UUID.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Organization: Hydrated entity
  - error: apperr.NotFound if missing or soft-deleted
*/
func (repository *PostgresRepository) FindByID(context context.Context, id string) (*Organization, error) {
	query := `
		SELECT ` + organizationColumns + `
		FROM authz.organization
		WHERE id = $1 AND deletedat IS NULL`

	organization, err := scanOrganization(repository.db.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Organization")
		}
		return nil, fmt.Errorf("org_store_find_by_id_failed: %w", err)
	}

	return organization, nil
}

/*
FindBySlug returns a live organization by slug.

Parameters:
  - context: context.Context
  - slug: string

Returns:
  - *Organization: Hydrated entity
  - error: apperr.NotFound if missing or soft-deleted
*/
func (repository *PostgresRepository) FindBySlug(context context.Context, slug string) (*Organization, error) {
	query := `
		SELECT ` + organizationColumns + `
		FROM authz.organization
		WHERE slug = $1 AND deletedat IS NULL`

	organization, err := scanOrganization(repository.db.QueryRow(context, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Organization")
		}
		return nil, fmt.Errorf("org_store_find_by_slug_failed: %w", err)
	}

	return organization, nil
}

/*
ListByUser returns the live organizations the user belongs to, with roles.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - []*Membership: Organizations plus the user's role in each
  - error: Retrieval failures
*/
func (repository *PostgresRepository) ListByUser(context context.Context, userID string) ([]*Membership, error) {
	query := `
		SELECT o.id, o.name, o.slug, o.status, o.createdat, o.updatedat, o.deletedat, m.role
		FROM authz.organization o
		JOIN authz.org_member m ON m.orgid = o.id
		WHERE m.userid = $1 AND o.deletedat IS NULL
		ORDER BY o.createdat`

	rows, err := repository.db.Query(context, query, userID)
	if err != nil {
		return nil, fmt.Errorf("org_store_list_by_user_failed: %w", err)
	}
	defer rows.Close()

	var memberships []*Membership
	for rows.Next() {
		var organization Organization
		var role Role
		err := rows.Scan(
			&organization.ID,
			&organization.Name,
			&organization.Slug,
			&organization.Status,
			&organization.CreatedAt,
			&organization.UpdatedAt,
			&organization.DeletedAt,
			&role,
		)
		if err != nil {
			return nil, fmt.Errorf("org_store_list_by_user_scan_failed: %w", err)
		}
		memberships = append(memberships, &Membership{Organization: &organization, Role: role})
	}

	return memberships, rows.Err()
}

/*
SoftDelete marks the organization deleted.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: apperr.NotFound if already gone
*/
func (repository *PostgresRepository) SoftDelete(context context.Context, id string) error {
	query := `
		UPDATE authz.organization
		SET deletedat = NOW(), updatedat = NOW()
		WHERE id = $1 AND deletedat IS NULL`

	tag, err := repository.db.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("org_store_soft_delete_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Organization")
	}

	return nil
}

// # Membership Rows

/*
AddMember persists a membership row.

Parameters:
  - context: context.Context
  - member: *Member

Returns:
  - error: validation_failed when the pair already exists
*/
func (repository *PostgresRepository) AddMember(context context.Context, member *Member) error {
	query := `
		INSERT INTO authz.org_member (orgid, userid, role)
		VALUES ($1, $2, $3)
		RETURNING joinedat`

	err := repository.db.QueryRow(context, query,
		member.OrgID,
		member.UserID,
		member.Role,
	).Scan(&member.JoinedAt)

	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return apperr.ValidationError("User is already a member of this organization")
		}
		return fmt.Errorf("org_store_add_member_failed: %w", err)
	}

	return nil
}

/*
GetMember returns the membership row for (orgID, userID).

Parameters:
  - context: context.Context
  - orgID: string
  - userID: string

Returns:
  - *Member: Hydrated membership
  - error: apperr.NotFound if absent
*/
func (repository *PostgresRepository) GetMember(context context.Context, orgID, userID string) (*Member, error) {
	query := `
		SELECT orgid, userid, role, joinedat
		FROM authz.org_member
		WHERE orgid = $1 AND userid = $2`

	var member Member
	err := repository.db.QueryRow(context, query, orgID, userID).Scan(
		&member.OrgID,
		&member.UserID,
		&member.Role,
		&member.JoinedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Membership")
		}
		return nil, fmt.Errorf("org_store_get_member_failed: %w", err)
	}

	return &member, nil
}

/*
ListMembers returns the roster of an organization ordered by seniority.

Parameters:
  - context: context.Context
  - orgID: string

Returns:
  - []*Member: Membership rows
  - error: Retrieval failures
*/
func (repository *PostgresRepository) ListMembers(context context.Context, orgID string) ([]*Member, error) {
	query := `
		SELECT orgid, userid, role, joinedat
		FROM authz.org_member
		WHERE orgid = $1
		ORDER BY joinedat`

	rows, err := repository.db.Query(context, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("org_store_list_members_failed: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		var member Member
		if err := rows.Scan(&member.OrgID, &member.UserID, &member.Role, &member.JoinedAt); err != nil {
			return nil, fmt.Errorf("org_store_list_members_scan_failed: %w", err)
		}
		members = append(members, &member)
	}

	return members, rows.Err()
}

/*
UpdateMemberRole changes the role on an existing membership.

Parameters:
  - context: context.Context
  - orgID: string
  - userID: string
  - role: Role

Returns:
  - error: apperr.NotFound if no such membership
*/
func (repository *PostgresRepository) UpdateMemberRole(context context.Context, orgID, userID string, role Role) error {
	query := `
		UPDATE authz.org_member
		SET role = $3
		WHERE orgid = $1 AND userid = $2`

	tag, err := repository.db.Exec(context, query, orgID, userID, role)
	if err != nil {
		return fmt.Errorf("org_store_update_role_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Membership")
	}

	return nil
}

/*
RemoveMember deletes the membership row.

Parameters:
  - context: context.Context
  - orgID: string
  - userID: string

Returns:
  - error: apperr.NotFound if no such membership
*/
func (repository *PostgresRepository) RemoveMember(context context.Context, orgID, userID string) error {
	query := `DELETE FROM authz.org_member WHERE orgid = $1 AND userid = $2`

	tag, err := repository.db.Exec(context, query, orgID, userID)
	if err != nil {
		return fmt.Errorf("org_store_remove_member_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Membership")
	}

	return nil
}

/*
CountOwners returns the number of owner-role members.

Parameters:
  - context: context.Context
  - orgID: string

Returns:
  - int: Owner count
  - error: Retrieval failures
*/
func (repository *PostgresRepository) CountOwners(context context.Context, orgID string) (int, error) {
	query := `SELECT COUNT(*) FROM authz.org_member WHERE orgid = $1 AND role = 'owner'`

	var count int
	if err := repository.db.QueryRow(context, query, orgID).Scan(&count); err != nil {
		return 0, fmt.Errorf("org_store_count_owners_failed: %w", err)
	}

	return count, nil
}
