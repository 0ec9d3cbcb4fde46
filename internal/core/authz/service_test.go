// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeep/internal/core/org"
	"github.com/taibuivan/gatekeep/internal/platform/apperr"
)

/*
TestService_CreateGroup verifies group creation is owner-only and that group
names are unique within an organization.
*/
func TestService_CreateGroup(t *testing.T) {
	fixture := newAuthzFixture()
	fixture.members.enroll(orgAcme, userAlice, org.RoleOwner)
	fixture.members.enroll(orgAcme, userBob, org.RoleAdmin)

	group, err := fixture.service.CreateGroup(context.Background(), orgAcme, userAlice, "Editors", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, group.ID)
	assert.Equal(t, orgAcme, group.OrgID)

	// Duplicate name within the same org.
	_, err = fixture.service.CreateGroup(context.Background(), orgAcme, userAlice, "Editors", nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflictGroupName))

	// Admins and non-members cannot create groups.
	_, err = fixture.service.CreateGroup(context.Background(), orgAcme, userBob, "Reviewers", nil)
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficientRole))

	_, err = fixture.service.CreateGroup(context.Background(), orgAcme, userEve, "Reviewers", nil)
	assert.True(t, apperr.IsKind(err, apperr.KindNotAMember))
}

/*
TestService_GroupMembership verifies admins manage rosters, targets must be
organization members first, and every roster change invalidates the target's
snapshot.
*/
func TestService_GroupMembership(t *testing.T) {
	fixture := newAuthzFixture()
	fixture.members.enroll(orgAcme, userAlice, org.RoleOwner)
	fixture.members.enroll(orgAcme, userBob, org.RoleAdmin)
	fixture.seedGroup("grp-editors", orgAcme, "Editors", nil)

	// Admin adds an org member.
	member, err := fixture.service.AddGroupMember(context.Background(), "grp-editors", userBob, userAlice)
	require.NoError(t, err)
	assert.Equal(t, userAlice, member.UserID)
	assert.True(t, fixture.cache.invalidated(userAlice, orgAcme))

	// Outsiders cannot be smuggled in through a group.
	_, err = fixture.service.AddGroupMember(context.Background(), "grp-editors", userBob, userEve)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidationFailed))

	// Members lack the authority to mutate rosters.
	fixture.members.enroll(orgAcme, userEve, org.RoleMember)
	_, err = fixture.service.AddGroupMember(context.Background(), "grp-editors", userEve, userEve)
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficientRole))

	// Removal invalidates too.
	fixture.cache.invalidations = nil
	err = fixture.service.RemoveGroupMember(context.Background(), "grp-editors", userBob, userAlice)
	require.NoError(t, err)
	assert.True(t, fixture.cache.invalidated(userAlice, orgAcme))
}

/*
TestService_GrantRevoke verifies grants are owner-only, require a registered
permission, leave a provenance trail, and invalidate every group member.
*/
func TestService_GrantRevoke(t *testing.T) {
	fixture := newAuthzFixture()
	fixture.members.enroll(orgAcme, userAlice, org.RoleOwner)
	fixture.members.enroll(orgAcme, userBob, org.RoleAdmin)
	fixture.seedGroup("grp-editors", orgAcme, "Editors", []string{userBob})
	fixture.repo.permissions["activity:create"] = seedPermission("perm-1", "activity:create")

	// Admins cannot grant.
	_, err := fixture.service.GrantPermission(context.Background(), "grp-editors", userBob, "activity:create")
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficientRole))

	// Unregistered permissions are rejected.
	_, err = fixture.service.GrantPermission(context.Background(), "grp-editors", userAlice, "no:such_thing")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	// Owner grants: provenance row written, group members invalidated.
	grant, err := fixture.service.GrantPermission(context.Background(), "grp-editors", userAlice, "activity:create")
	require.NoError(t, err)
	assert.Equal(t, userAlice, grant.GrantedBy)
	assert.True(t, fixture.cache.invalidated(userBob, orgAcme))

	require.Len(t, fixture.repo.grantChanges, 1)
	assert.Equal(t, "grant", fixture.repo.grantChanges[0].Action)
	assert.Equal(t, userAlice, fixture.repo.grantChanges[0].ActorID)

	// Double grant conflicts.
	_, err = fixture.service.GrantPermission(context.Background(), "grp-editors", userAlice, "activity:create")
	assert.True(t, apperr.IsKind(err, apperr.KindAlreadyGranted))

	// Revoke mirrors the grant: provenance plus invalidation.
	fixture.cache.invalidations = nil
	err = fixture.service.RevokePermission(context.Background(), "grp-editors", userAlice, "activity:create")
	require.NoError(t, err)
	assert.True(t, fixture.cache.invalidated(userBob, orgAcme))

	require.Len(t, fixture.repo.grantChanges, 2)
	assert.Equal(t, "revoke", fixture.repo.grantChanges[1].Action)
}

/*
TestService_DeleteGroup verifies deletion is owner-only and busts the
snapshot of every member the group had.
*/
func TestService_DeleteGroup(t *testing.T) {
	fixture := newAuthzFixture()
	fixture.members.enroll(orgAcme, userAlice, org.RoleOwner)
	fixture.members.enroll(orgAcme, userBob, org.RoleAdmin)
	fixture.members.enroll(orgAcme, userEve, org.RoleMember)
	fixture.seedGroup("grp-editors", orgAcme, "Editors", []string{userBob, userEve})

	err := fixture.service.DeleteGroup(context.Background(), "grp-editors", userBob)
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficientRole))

	err = fixture.service.DeleteGroup(context.Background(), "grp-editors", userAlice)
	require.NoError(t, err)
	assert.True(t, fixture.cache.invalidated(userBob, orgAcme))
	assert.True(t, fixture.cache.invalidated(userEve, orgAcme))

	_, err = fixture.service.GetGroup(context.Background(), "grp-editors", userAlice)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

/*
TestService_UpdateGroup verifies renames are admin-or-above.
*/
func TestService_UpdateGroup(t *testing.T) {
	fixture := newAuthzFixture()
	fixture.members.enroll(orgAcme, userAlice, org.RoleAdmin)
	fixture.members.enroll(orgAcme, userEve, org.RoleMember)
	fixture.seedGroup("grp-editors", orgAcme, "Editors", nil)

	_, err := fixture.service.UpdateGroup(context.Background(), "grp-editors", userEve, "Writers", nil)
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficientRole))

	group, err := fixture.service.UpdateGroup(context.Background(), "grp-editors", userAlice, "Writers", nil)
	require.NoError(t, err)
	assert.Equal(t, "Writers", group.Name)
}

/*
TestService_CreatePermission verifies the registry enforces the
resource:action naming convention.
*/
func TestService_CreatePermission(t *testing.T) {
	fixture := newAuthzFixture()

	testCases := []struct {
		name      string
		input     string
		expectErr bool
	}{
		{name: "valid", input: "activity:create", expectErr: false},
		{name: "valid_underscores", input: "audit_log:verify", expectErr: false},
		{name: "missing_action", input: "activity", expectErr: true},
		{name: "uppercase", input: "Activity:Create", expectErr: true},
		{name: "spaces", input: "activity :create", expectErr: true},
		{name: "empty", input: "", expectErr: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			permission, err := fixture.service.CreatePermission(context.Background(), testCase.input, nil)
			if testCase.expectErr {
				require.Error(t, err)
				assert.True(t, apperr.IsKind(err, apperr.KindValidationFailed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.input, permission.Name)
			assert.NotEmpty(t, permission.ID)
		})
	}
}

/*
TestService_ListGroups verifies reads require membership.
*/
func TestService_ListGroups(t *testing.T) {
	fixture := newAuthzFixture()
	fixture.members.enroll(orgAcme, userEve, org.RoleMember)
	fixture.seedGroup("grp-editors", orgAcme, "Editors", nil)
	fixture.seedGroup("grp-admins", orgAcme, "Admins", nil)

	groups, err := fixture.service.ListGroups(context.Background(), orgAcme, userEve)
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	_, err = fixture.service.ListGroups(context.Background(), orgAcme, userAlice)
	assert.True(t, apperr.IsKind(err, apperr.KindNotAMember))
}
