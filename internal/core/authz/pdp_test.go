// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeep/internal/core/authz"
	"github.com/taibuivan/gatekeep/internal/core/org"
	"github.com/taibuivan/gatekeep/internal/platform/apperr"
)

/*
TestPDP_Authorize_Granted verifies the happy path: an organization member
whose group carries the permission is granted, with the granting group
reported by display name on the wire and by ID in the audit record.
*/
func TestPDP_Authorize_Granted(t *testing.T) {
	fixture := newAuthzFixture()
	fixture.members.enroll(orgAcme, userAlice, org.RoleMember)
	fixture.seedGroup("grp-creators", orgAcme, "Content Creators", []string{userAlice}, "image:upload")

	decision, err := fixture.pdp.Authorize(context.Background(), authz.CheckInput{
		UserID:     userAlice,
		OrgID:      orgAcme,
		Permission: "image:upload",
	})

	require.NoError(t, err)
	assert.True(t, decision.Granted)
	assert.Equal(t, authz.ReasonGranted, decision.Reason)
	assert.Equal(t, []string{"Content Creators"}, decision.MatchedGroups)
	assert.Equal(t, authz.SourceDB, decision.Source)

	require.Len(t, fixture.recorder.records, 1)
	record := fixture.recorder.records[0]
	assert.True(t, record.Granted)
	assert.Equal(t, "image:upload", record.Permission)
	assert.Equal(t, []string{"grp-creators"}, record.MatchedGroups)

	// The resolved snapshot was written back into the cache.
	assert.Equal(t, 1, fixture.cache.sets)
}

/*
TestPDP_Authorize_PermissionMissing verifies that a member without the
permission is denied with permission_not_granted and no matched groups.
*/
func TestPDP_Authorize_PermissionMissing(t *testing.T) {
	fixture := newAuthzFixture()
	fixture.members.enroll(orgAcme, userAlice, org.RoleMember)
	fixture.seedGroup("grp-editors", orgAcme, "Editors", []string{userAlice}, "activity:create")

	decision, err := fixture.pdp.Authorize(context.Background(), authz.CheckInput{
		UserID:     userAlice,
		OrgID:      orgAcme,
		Permission: "report:read",
	})

	require.NoError(t, err)
	assert.False(t, decision.Granted)
	assert.Equal(t, authz.ReasonPermissionMissing, decision.Reason)
	assert.Empty(t, decision.MatchedGroups)
}

/*
TestPDP_Authorize_MembershipGate verifies that non-members receive a uniform
not_a_member denial regardless of whether the permission exists, so the
response does not leak the permission registry.
*/
func TestPDP_Authorize_MembershipGate(t *testing.T) {
	fixture := newAuthzFixture()
	fixture.seedGroup("grp-editors", orgAcme, "Editors", []string{userAlice}, "activity:create")

	for _, permission := range []string{"activity:create", "no:such_permission"} {
		decision, err := fixture.pdp.Authorize(context.Background(), authz.CheckInput{
			UserID:     userEve,
			OrgID:      orgAcme,
			Permission: permission,
		})

		require.NoError(t, err)
		assert.False(t, decision.Granted)
		assert.Equal(t, authz.ReasonNotAMember, decision.Reason)
		assert.Empty(t, decision.MatchedGroups)
	}

	// Denials are audited too.
	assert.Len(t, fixture.recorder.records, 2)
}

/*
TestPDP_Authorize_ValidationFailed verifies malformed input is rejected
before any lookup happens.
*/
func TestPDP_Authorize_ValidationFailed(t *testing.T) {
	fixture := newAuthzFixture()

	testCases := []struct {
		name  string
		input authz.CheckInput
	}{
		{
			name:  "bad_user_uuid",
			input: authz.CheckInput{UserID: "not-a-uuid", OrgID: orgAcme, Permission: "activity:create"},
		},
		{
			name:  "bad_permission_format",
			input: authz.CheckInput{UserID: userAlice, OrgID: orgAcme, Permission: "Activity Create!"},
		},
		{
			name:  "missing_org",
			input: authz.CheckInput{UserID: userAlice, Permission: "activity:create"},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := fixture.pdp.Authorize(context.Background(), testCase.input)
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, apperr.KindValidationFailed))
		})
	}

	assert.Empty(t, fixture.recorder.records)
	assert.Zero(t, fixture.repo.resolveCalls)
}

/*
TestPDP_Authorize_CacheTiers verifies that a cached snapshot answers the
decision without touching the store, and that the serving tier is reported.
*/
func TestPDP_Authorize_CacheTiers(t *testing.T) {
	fixture := newAuthzFixture()
	fixture.members.enroll(orgAcme, userAlice, org.RoleMember)

	snapshot := &authz.Snapshot{Permissions: map[string][]string{"activity:create": {"grp-editors"}}}

	for _, source := range []authz.Source{authz.SourceL1, authz.SourceL2} {
		fixture.cache.seed(userAlice, orgAcme, snapshot, source)

		decision, err := fixture.pdp.Authorize(context.Background(), authz.CheckInput{
			UserID:     userAlice,
			OrgID:      orgAcme,
			Permission: "activity:create",
		})

		require.NoError(t, err)
		assert.True(t, decision.Granted)
		assert.Equal(t, source, decision.Source)
		// A snapshot without a name directory reports the raw group IDs.
		assert.Equal(t, []string{"grp-editors"}, decision.MatchedGroups)
	}

	assert.Zero(t, fixture.repo.resolveCalls, "cached decisions must not hit the store")
}

/*
TestPDP_Authorize_StoreRetry verifies one transient store failure is retried
transparently, while a second consecutive failure fails the whole decision
closed with service_unavailable.
*/
func TestPDP_Authorize_StoreRetry(t *testing.T) {
	fixture := newAuthzFixture()
	fixture.members.enroll(orgAcme, userAlice, org.RoleMember)
	fixture.seedGroup("grp-editors", orgAcme, "Editors", []string{userAlice}, "activity:create")

	fixture.repo.resolveFailures = 1
	decision, err := fixture.pdp.Authorize(context.Background(), authz.CheckInput{
		UserID:     userAlice,
		OrgID:      orgAcme,
		Permission: "activity:create",
	})
	require.NoError(t, err)
	assert.True(t, decision.Granted)
	assert.Equal(t, 2, fixture.repo.resolveCalls)

	// Empty the cache so the next decision resolves again.
	fixture.cache.InvalidateUser(context.Background(), userAlice, orgAcme)

	fixture.repo.resolveFailures = 2
	_, err = fixture.pdp.Authorize(context.Background(), authz.CheckInput{
		UserID:     userAlice,
		OrgID:      orgAcme,
		Permission: "activity:create",
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindServiceUnavailable))
}

/*
TestPDP_Authorize_MembershipRetry verifies the membership gate retries one
transient failure and fails closed on a persistent one.
*/
func TestPDP_Authorize_MembershipRetry(t *testing.T) {
	fixture := newAuthzFixture()
	fixture.members.enroll(orgAcme, userAlice, org.RoleMember)
	fixture.seedGroup("grp-editors", orgAcme, "Editors", []string{userAlice}, "activity:create")

	fixture.members.transientFailures = 1
	decision, err := fixture.pdp.Authorize(context.Background(), authz.CheckInput{
		UserID:     userAlice,
		OrgID:      orgAcme,
		Permission: "activity:create",
	})
	require.NoError(t, err)
	assert.True(t, decision.Granted)

	fixture.members.transientFailures = 2
	_, err = fixture.pdp.Authorize(context.Background(), authz.CheckInput{
		UserID:     userAlice,
		OrgID:      orgAcme,
		Permission: "activity:create",
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindServiceUnavailable))
}

/*
TestPDP_Authorize_ResourceScope verifies scope narrowing: a registered scope
can veto a granted permission for a specific resource, a scope error fails
the decision closed, and permissions without a scope ignore resource_id.
*/
func TestPDP_Authorize_ResourceScope(t *testing.T) {
	fixture := newAuthzFixture()
	fixture.members.enroll(orgAcme, userAlice, org.RoleMember)
	fixture.seedGroup("grp-editors", orgAcme, "Editors", []string{userAlice}, "activity:update")

	input := authz.CheckInput{
		UserID:     userAlice,
		OrgID:      orgAcme,
		Permission: "activity:update",
		ResourceID: "activity-42",
	}

	// No scope registered: resource_id is accepted as in scope.
	decision, err := fixture.pdp.Authorize(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, decision.Granted)

	// Denying scope flips the decision.
	fixture.scopes.Register("activity:update", scopeStub{allow: false})
	decision, err = fixture.pdp.Authorize(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, decision.Granted)
	assert.Equal(t, authz.ReasonScopeDenied, decision.Reason)
	assert.Empty(t, decision.MatchedGroups)

	// A scope that cannot answer fails the request closed.
	fixture.scopes.Register("activity:update", scopeStub{err: errTransient})
	_, err = fixture.pdp.Authorize(context.Background(), input)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindServiceUnavailable))
}

/*
TestPDP_Authorize_CacheCoherence verifies the read-your-writes flow: a grant
mutation invalidates the cached snapshot, so the next decision resolves
fresh and sees the new permission.
*/
func TestPDP_Authorize_CacheCoherence(t *testing.T) {
	fixture := newAuthzFixture()
	fixture.members.enroll(orgAcme, userAlice, org.RoleOwner)
	fixture.seedGroup("grp-editors", orgAcme, "Editors", []string{userAlice}, "activity:create")
	fixture.repo.permissions["report:read"] = &authz.Permission{ID: "perm-report-read", Name: "report:read"}

	input := authz.CheckInput{UserID: userAlice, OrgID: orgAcme, Permission: "report:read"}

	// First decision caches the snapshot without the permission.
	decision, err := fixture.pdp.Authorize(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, decision.Granted)

	// Granting through the service invalidates every group member.
	_, err = fixture.service.GrantPermission(context.Background(), "grp-editors", userAlice, "report:read")
	require.NoError(t, err)
	assert.True(t, fixture.cache.invalidated(userAlice, orgAcme))

	// The next decision resolves fresh and sees the grant.
	decision, err = fixture.pdp.Authorize(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, decision.Granted)
	assert.Equal(t, []string{"Editors"}, decision.MatchedGroups)
}

/*
TestPDP_ResolvePermissions verifies the listing path returns the full
snapshot through the same cache pipeline.
*/
func TestPDP_ResolvePermissions(t *testing.T) {
	fixture := newAuthzFixture()
	fixture.members.enroll(orgAcme, userAlice, org.RoleMember)
	fixture.seedGroup("grp-editors", orgAcme, "Editors", []string{userAlice}, "activity:create", "activity:update")

	snapshot, err := fixture.pdp.ResolvePermissions(context.Background(), userAlice, orgAcme)

	require.NoError(t, err)
	assert.Len(t, snapshot.Permissions, 2)
	assert.Equal(t, []string{"grp-editors"}, snapshot.Groups("activity:create"))
	assert.Nil(t, snapshot.Groups("report:read"))
}
