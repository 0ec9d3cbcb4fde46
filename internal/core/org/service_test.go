// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package org_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeep/internal/core/org"
	"github.com/taibuivan/gatekeep/internal/platform/apperr"
)

// # In-Memory Repository

type memberKey struct {
	orgID  string
	userID string
}

type orgRepoFake struct {
	orgs    map[string]*org.Organization
	members map[memberKey]*org.Member
}

func newOrgRepoFake() *orgRepoFake {
	return &orgRepoFake{
		orgs:    map[string]*org.Organization{},
		members: map[memberKey]*org.Member{},
	}
}

func (repo *orgRepoFake) Create(_ context.Context, organization *org.Organization) error {
	for _, existing := range repo.orgs {
		if existing.Slug == organization.Slug && existing.DeletedAt == nil {
			return apperr.Conflict(apperr.KindConflictSlug, "An organization with this slug already exists")
		}
	}
	organization.CreatedAt = time.Now()
	organization.UpdatedAt = organization.CreatedAt
	copied := *organization
	repo.orgs[organization.ID] = &copied
	return nil
}

func (repo *orgRepoFake) FindByID(_ context.Context, id string) (*org.Organization, error) {
	organization, ok := repo.orgs[id]
	if !ok || organization.DeletedAt != nil {
		return nil, apperr.NotFound("Organization")
	}
	copied := *organization
	return &copied, nil
}

func (repo *orgRepoFake) FindBySlug(_ context.Context, slug string) (*org.Organization, error) {
	for _, organization := range repo.orgs {
		if organization.Slug == slug && organization.DeletedAt == nil {
			copied := *organization
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("Organization")
}

func (repo *orgRepoFake) ListByUser(_ context.Context, userID string) ([]*org.Membership, error) {
	var memberships []*org.Membership
	for key, member := range repo.members {
		if key.userID != userID {
			continue
		}
		organization, ok := repo.orgs[key.orgID]
		if !ok || organization.DeletedAt != nil {
			continue
		}
		copied := *organization
		memberships = append(memberships, &org.Membership{Organization: &copied, Role: member.Role})
	}
	return memberships, nil
}

func (repo *orgRepoFake) SoftDelete(_ context.Context, id string) error {
	organization, ok := repo.orgs[id]
	if !ok || organization.DeletedAt != nil {
		return apperr.NotFound("Organization")
	}
	now := time.Now()
	organization.DeletedAt = &now
	return nil
}

func (repo *orgRepoFake) AddMember(_ context.Context, member *org.Member) error {
	key := memberKey{member.OrgID, member.UserID}
	if _, exists := repo.members[key]; exists {
		return apperr.ValidationError("User is already a member of this organization")
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now()
	}
	copied := *member
	repo.members[key] = &copied
	return nil
}

func (repo *orgRepoFake) GetMember(_ context.Context, orgID, userID string) (*org.Member, error) {
	member, ok := repo.members[memberKey{orgID, userID}]
	if !ok {
		return nil, apperr.NotFound("Membership")
	}
	copied := *member
	return &copied, nil
}

func (repo *orgRepoFake) ListMembers(_ context.Context, orgID string) ([]*org.Member, error) {
	var members []*org.Member
	for key, member := range repo.members {
		if key.orgID == orgID {
			copied := *member
			members = append(members, &copied)
		}
	}
	return members, nil
}

func (repo *orgRepoFake) UpdateMemberRole(_ context.Context, orgID, userID string, role org.Role) error {
	member, ok := repo.members[memberKey{orgID, userID}]
	if !ok {
		return apperr.NotFound("Membership")
	}
	member.Role = role
	return nil
}

func (repo *orgRepoFake) RemoveMember(_ context.Context, orgID, userID string) error {
	key := memberKey{orgID, userID}
	if _, ok := repo.members[key]; !ok {
		return apperr.NotFound("Membership")
	}
	delete(repo.members, key)
	return nil
}

func (repo *orgRepoFake) CountOwners(_ context.Context, orgID string) (int, error) {
	count := 0
	for key, member := range repo.members {
		if key.orgID == orgID && member.Role == org.RoleOwner {
			count++
		}
	}
	return count, nil
}

// invalidatorSpy records which (user, org) pairs were busted.
type invalidatorSpy struct {
	calls []memberKey
}

func (spy *invalidatorSpy) InvalidateUser(_ context.Context, userID, orgID string) {
	spy.calls = append(spy.calls, memberKey{orgID, userID})
}

func (spy *invalidatorSpy) contains(orgID, userID string) bool {
	for _, call := range spy.calls {
		if call == (memberKey{orgID, userID}) {
			return true
		}
	}
	return false
}

func newOrgFixture() (*org.Service, *orgRepoFake, *invalidatorSpy) {
	repo := newOrgRepoFake()
	spy := &invalidatorSpy{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return org.NewService(repo, spy, logger), repo, spy
}

// # Tests

/*
TestService_CreateOrganization verifies slug generation, creator ownership,
and the slug uniqueness conflict.
*/
func TestService_CreateOrganization(t *testing.T) {
	service, repo, _ := newOrgFixture()

	organization, err := service.CreateOrganization(context.Background(), "Acme Corp", "user-owner")
	require.NoError(t, err)
	assert.Equal(t, "acme-corp", organization.Slug)
	assert.Equal(t, org.OrgStatusActive, organization.Status)

	// Creator becomes owner
	member, err := repo.GetMember(context.Background(), organization.ID, "user-owner")
	require.NoError(t, err)
	assert.Equal(t, org.RoleOwner, member.Role)

	// Slug collision
	_, err = service.CreateOrganization(context.Background(), "Acme Corp", "user-other")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflictSlug))
}

/*
TestService_GetOrganization resolves both UUID and slug identifiers.
*/
func TestService_GetOrganization(t *testing.T) {
	service, _, _ := newOrgFixture()

	created, err := service.CreateOrganization(context.Background(), "Acme Corp", "user-owner")
	require.NoError(t, err)

	byID, err := service.GetOrganization(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byID.ID)

	bySlug, err := service.GetOrganization(context.Background(), "acme-corp")
	require.NoError(t, err)
	assert.Equal(t, created.ID, bySlug.ID)

	_, err = service.GetOrganization(context.Background(), "no-such-org")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

/*
TestService_AddMember exercises the role gates on enrollment.
*/
func TestService_AddMember(t *testing.T) {
	tests := []struct {
		name         string
		callerRole   org.Role
		newRole      org.Role
		expectedKind apperr.Kind
	}{
		{"admin_adds_member", org.RoleAdmin, org.RoleMember, ""},
		{"owner_adds_admin", org.RoleOwner, org.RoleAdmin, ""},
		{"owner_adds_owner", org.RoleOwner, org.RoleOwner, ""},
		{"admin_cannot_add_admin", org.RoleAdmin, org.RoleAdmin, apperr.KindInsufficientRole},
		{"member_cannot_add", org.RoleMember, org.RoleMember, apperr.KindInsufficientRole},
		{"unknown_role_rejected", org.RoleOwner, org.Role("root"), apperr.KindValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, _, spy := newOrgFixture()
			created, err := service.CreateOrganization(context.Background(), "Acme Corp", "user-owner")
			require.NoError(t, err)

			callerID := "user-owner"
			if tt.callerRole != org.RoleOwner {
				callerID = "user-caller"
				_, err = service.AddMember(context.Background(), created.ID, "user-owner", callerID, tt.callerRole)
				require.NoError(t, err)
			}

			_, err = service.AddMember(context.Background(), created.ID, callerID, "user-new", tt.newRole)

			if tt.expectedKind != "" {
				require.Error(t, err)
				assert.True(t, apperr.IsKind(err, tt.expectedKind))
				return
			}

			require.NoError(t, err)
			assert.True(t, spy.contains(created.ID, "user-new"))
		})
	}
}

/*
TestService_AddMember_NonMemberCaller verifies the membership gate returns a
uniform not_a_member.
*/
func TestService_AddMember_NonMemberCaller(t *testing.T) {
	service, _, _ := newOrgFixture()
	created, err := service.CreateOrganization(context.Background(), "Acme Corp", "user-owner")
	require.NoError(t, err)

	_, err = service.AddMember(context.Background(), created.ID, "user-stranger", "user-new", org.RoleMember)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotAMember))
}

/*
TestService_LastOwnerGuard covers demotion and removal of the final owner.
*/
func TestService_LastOwnerGuard(t *testing.T) {
	service, _, _ := newOrgFixture()
	created, err := service.CreateOrganization(context.Background(), "Acme Corp", "user-owner")
	require.NoError(t, err)

	// Demoting the only owner is rejected
	err = service.UpdateMemberRole(context.Background(), created.ID, "user-owner", "user-owner", org.RoleMember)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidationFailed))

	// Removing the only owner (even self-leave) is rejected
	err = service.RemoveMember(context.Background(), created.ID, "user-owner", "user-owner")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidationFailed))

	// With a second owner both operations go through
	_, err = service.AddMember(context.Background(), created.ID, "user-owner", "user-second", org.RoleOwner)
	require.NoError(t, err)

	require.NoError(t, service.UpdateMemberRole(context.Background(), created.ID, "user-owner", "user-second", org.RoleAdmin))
	require.NoError(t, service.RemoveMember(context.Background(), created.ID, "user-owner", "user-second"))
}

/*
TestService_RemoveMember covers the removal authority matrix.
*/
func TestService_RemoveMember(t *testing.T) {
	service, _, spy := newOrgFixture()
	created, err := service.CreateOrganization(context.Background(), "Acme Corp", "user-owner")
	require.NoError(t, err)

	_, err = service.AddMember(context.Background(), created.ID, "user-owner", "user-admin", org.RoleAdmin)
	require.NoError(t, err)
	_, err = service.AddMember(context.Background(), created.ID, "user-owner", "user-member", org.RoleMember)
	require.NoError(t, err)

	// Admin cannot remove another admin's superior
	err = service.RemoveMember(context.Background(), created.ID, "user-admin", "user-owner")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficientRole))

	// Admin removes a plain member
	require.NoError(t, service.RemoveMember(context.Background(), created.ID, "user-admin", "user-member"))
	assert.True(t, spy.contains(created.ID, "user-member"))

	// Self-leave
	require.NoError(t, service.RemoveMember(context.Background(), created.ID, "user-admin", "user-admin"))

	// The departed admin is now gated out entirely
	err = service.RemoveMember(context.Background(), created.ID, "user-admin", "user-owner")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotAMember))
}

/*
TestService_GetRole maps a missing membership to not_a_member.
*/
func TestService_GetRole(t *testing.T) {
	service, _, _ := newOrgFixture()
	created, err := service.CreateOrganization(context.Background(), "Acme Corp", "user-owner")
	require.NoError(t, err)

	role, err := service.GetRole(context.Background(), created.ID, "user-owner")
	require.NoError(t, err)
	assert.Equal(t, org.RoleOwner, role)

	_, err = service.GetRole(context.Background(), created.ID, "user-stranger")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotAMember))
}

/*
TestService_DeleteOrganization verifies the owner gate and that every member's
permission snapshot is busted.
*/
func TestService_DeleteOrganization(t *testing.T) {
	service, _, spy := newOrgFixture()
	created, err := service.CreateOrganization(context.Background(), "Acme Corp", "user-owner")
	require.NoError(t, err)
	_, err = service.AddMember(context.Background(), created.ID, "user-owner", "user-member", org.RoleMember)
	require.NoError(t, err)

	// Non-owner rejected
	err = service.DeleteOrganization(context.Background(), created.ID, "user-member")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficientRole))

	require.NoError(t, service.DeleteOrganization(context.Background(), created.ID, "user-owner"))

	_, err = service.GetOrganization(context.Background(), created.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	assert.True(t, spy.contains(created.ID, "user-owner"))
	assert.True(t, spy.contains(created.ID, "user-member"))
}
