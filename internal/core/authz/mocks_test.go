// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/taibuivan/gatekeep/internal/core/authz"
	"github.com/taibuivan/gatekeep/internal/core/org"
	"github.com/taibuivan/gatekeep/internal/platform/apperr"
)

// Fixed identifiers so Authorize's UUID validation passes.
const (
	orgAcme   = "018f4d2e-0000-7000-8000-00000000aaaa"
	userAlice = "018f4d2e-0000-7000-8000-000000000001"
	userBob   = "018f4d2e-0000-7000-8000-000000000002"
	userEve   = "018f4d2e-0000-7000-8000-000000000003"
)

var errTransient = errors.New("connection reset by peer")

// # Repository Fake

type grantKey struct {
	groupID      string
	permissionID string
}

type groupMemberKey struct {
	groupID string
	userID  string
}

type authzRepoFake struct {
	groups       map[string]*authz.Group
	groupMembers map[groupMemberKey]*authz.GroupMember
	permissions  map[string]*authz.Permission // keyed by name
	grants       map[grantKey]*authz.Grant
	grantChanges []*authz.GrantChange

	// resolveFailures makes the next N ResolveSnapshot calls fail, for
	// exercising the retry and fail-closed paths.
	resolveFailures int
	resolveCalls    int
}

func newAuthzRepoFake() *authzRepoFake {
	return &authzRepoFake{
		groups:       map[string]*authz.Group{},
		groupMembers: map[groupMemberKey]*authz.GroupMember{},
		permissions:  map[string]*authz.Permission{},
		grants:       map[grantKey]*authz.Grant{},
	}
}

func (repo *authzRepoFake) CreateGroup(_ context.Context, group *authz.Group) error {
	for _, existing := range repo.groups {
		if existing.OrgID == group.OrgID && existing.Name == group.Name {
			return apperr.Conflict(apperr.KindConflictGroupName, "A group with this name already exists in the organization")
		}
	}
	group.CreatedAt = time.Now()
	group.UpdatedAt = group.CreatedAt
	copied := *group
	repo.groups[group.ID] = &copied
	return nil
}

func (repo *authzRepoFake) FindGroupByID(_ context.Context, groupID string) (*authz.Group, error) {
	group, ok := repo.groups[groupID]
	if !ok {
		return nil, apperr.NotFound("Group")
	}
	copied := *group
	return &copied, nil
}

func (repo *authzRepoFake) ListGroups(_ context.Context, orgID string) ([]*authz.Group, error) {
	var groups []*authz.Group
	for _, group := range repo.groups {
		if group.OrgID == orgID {
			copied := *group
			groups = append(groups, &copied)
		}
	}
	return groups, nil
}

func (repo *authzRepoFake) UpdateGroup(_ context.Context, group *authz.Group) error {
	existing, ok := repo.groups[group.ID]
	if !ok {
		return apperr.NotFound("Group")
	}
	existing.Name = group.Name
	existing.Description = group.Description
	return nil
}

func (repo *authzRepoFake) DeleteGroup(_ context.Context, groupID string) error {
	if _, ok := repo.groups[groupID]; !ok {
		return apperr.NotFound("Group")
	}
	delete(repo.groups, groupID)
	for key := range repo.groupMembers {
		if key.groupID == groupID {
			delete(repo.groupMembers, key)
		}
	}
	for key := range repo.grants {
		if key.groupID == groupID {
			delete(repo.grants, key)
		}
	}
	return nil
}

func (repo *authzRepoFake) AddGroupMember(_ context.Context, member *authz.GroupMember) error {
	key := groupMemberKey{member.GroupID, member.UserID}
	if _, exists := repo.groupMembers[key]; exists {
		return apperr.ValidationError("User is already a member of this group")
	}
	member.AddedAt = time.Now()
	copied := *member
	repo.groupMembers[key] = &copied
	return nil
}

func (repo *authzRepoFake) RemoveGroupMember(_ context.Context, groupID, userID string) error {
	key := groupMemberKey{groupID, userID}
	if _, ok := repo.groupMembers[key]; !ok {
		return apperr.NotFound("Group membership")
	}
	delete(repo.groupMembers, key)
	return nil
}

func (repo *authzRepoFake) ListGroupMembers(_ context.Context, groupID string) ([]*authz.GroupMember, error) {
	var members []*authz.GroupMember
	for key, member := range repo.groupMembers {
		if key.groupID == groupID {
			copied := *member
			members = append(members, &copied)
		}
	}
	return members, nil
}

func (repo *authzRepoFake) CreatePermission(_ context.Context, permission *authz.Permission) error {
	if _, exists := repo.permissions[permission.Name]; exists {
		return apperr.ValidationError("A permission with this name already exists")
	}
	permission.CreatedAt = time.Now()
	copied := *permission
	repo.permissions[permission.Name] = &copied
	return nil
}

func (repo *authzRepoFake) ListPermissions(_ context.Context) ([]*authz.Permission, error) {
	var permissions []*authz.Permission
	for _, permission := range repo.permissions {
		copied := *permission
		permissions = append(permissions, &copied)
	}
	return permissions, nil
}

func (repo *authzRepoFake) FindPermissionByName(_ context.Context, name string) (*authz.Permission, error) {
	permission, ok := repo.permissions[name]
	if !ok {
		return nil, apperr.NotFound("Permission")
	}
	copied := *permission
	return &copied, nil
}

func (repo *authzRepoFake) GrantPermission(_ context.Context, grant *authz.Grant) error {
	key := grantKey{grant.GroupID, grant.PermissionID}
	if _, exists := repo.grants[key]; exists {
		return apperr.Conflict(apperr.KindAlreadyGranted, "Permission is already granted to this group")
	}
	grant.GrantedAt = time.Now()
	copied := *grant
	repo.grants[key] = &copied
	return nil
}

func (repo *authzRepoFake) RevokePermission(_ context.Context, groupID, permissionID string) error {
	key := grantKey{groupID, permissionID}
	if _, ok := repo.grants[key]; !ok {
		return apperr.NotFound("Grant")
	}
	delete(repo.grants, key)
	return nil
}

func (repo *authzRepoFake) ListGroupGrants(_ context.Context, groupID string) ([]*authz.Grant, error) {
	var grants []*authz.Grant
	for key, grant := range repo.grants {
		if key.groupID == groupID {
			copied := *grant
			grants = append(grants, &copied)
		}
	}
	return grants, nil
}

func (repo *authzRepoFake) RecordGrantChange(_ context.Context, change *authz.GrantChange) error {
	copied := *change
	repo.grantChanges = append(repo.grantChanges, &copied)
	return nil
}

func (repo *authzRepoFake) ResolveSnapshot(_ context.Context, userID, orgID string) (*authz.Snapshot, error) {
	repo.resolveCalls++
	if repo.resolveFailures > 0 {
		repo.resolveFailures--
		return nil, errTransient
	}

	snapshot := &authz.Snapshot{Permissions: map[string][]string{}, GroupNames: map[string]string{}}
	for memberKey := range repo.groupMembers {
		if memberKey.userID != userID {
			continue
		}
		group, ok := repo.groups[memberKey.groupID]
		if !ok || group.OrgID != orgID {
			continue
		}
		for key, grant := range repo.grants {
			if key.groupID == group.ID {
				snapshot.Permissions[grant.Permission] = append(snapshot.Permissions[grant.Permission], group.ID)
				snapshot.GroupNames[group.ID] = group.Name
			}
		}
	}
	return snapshot, nil
}

// # Membership Fake

type membershipFake struct {
	members map[string]org.Role // keyed by orgID+"|"+userID

	// transientFailures makes the next N GetMember calls fail with a
	// non-NotFound error.
	transientFailures int
}

func newMembershipFake() *membershipFake {
	return &membershipFake{members: map[string]org.Role{}}
}

func (fake *membershipFake) enroll(orgID, userID string, role org.Role) {
	fake.members[orgID+"|"+userID] = role
}

func (fake *membershipFake) GetMember(_ context.Context, orgID, userID string) (*org.Member, error) {
	if fake.transientFailures > 0 {
		fake.transientFailures--
		return nil, errTransient
	}
	role, ok := fake.members[orgID+"|"+userID]
	if !ok {
		return nil, apperr.NotFound("Membership")
	}
	return &org.Member{OrgID: orgID, UserID: userID, Role: role}, nil
}

// # Cache Fake

type cacheEntry struct {
	snapshot *authz.Snapshot
	source   authz.Source
}

type cacheFake struct {
	entries       map[string]cacheEntry
	sets          int
	invalidations []string // "userID:orgID"
}

func newCacheFake() *cacheFake {
	return &cacheFake{entries: map[string]cacheEntry{}}
}

func cacheFakeKey(userID, orgID string) string {
	return userID + "|" + orgID
}

func (cache *cacheFake) seed(userID, orgID string, snapshot *authz.Snapshot, source authz.Source) {
	cache.entries[cacheFakeKey(userID, orgID)] = cacheEntry{snapshot: snapshot, source: source}
}

func (cache *cacheFake) Get(_ context.Context, userID, orgID string) (*authz.Snapshot, authz.Source, bool) {
	entry, ok := cache.entries[cacheFakeKey(userID, orgID)]
	if !ok {
		return nil, "", false
	}
	return entry.snapshot, entry.source, true
}

func (cache *cacheFake) Set(_ context.Context, userID, orgID string, snapshot *authz.Snapshot) {
	cache.sets++
	cache.entries[cacheFakeKey(userID, orgID)] = cacheEntry{snapshot: snapshot, source: authz.SourceL1}
}

func (cache *cacheFake) InvalidateUser(_ context.Context, userID, orgID string) {
	delete(cache.entries, cacheFakeKey(userID, orgID))
	cache.invalidations = append(cache.invalidations, userID+":"+orgID)
}

func (cache *cacheFake) invalidated(userID, orgID string) bool {
	for _, pair := range cache.invalidations {
		if pair == userID+":"+orgID {
			return true
		}
	}
	return false
}

// # Recorder Spy

type recorderSpy struct {
	records []*authz.DecisionRecord
}

func (spy *recorderSpy) Record(_ context.Context, record *authz.DecisionRecord) {
	spy.records = append(spy.records, record)
}

// # Scope Stub

type scopeStub struct {
	allow bool
	err   error
}

func (stub scopeStub) Allows(context.Context, string, string, string) (bool, error) {
	return stub.allow, stub.err
}

// # Fixture

type authzFixture struct {
	pdp      *authz.PDP
	service  *authz.Service
	repo     *authzRepoFake
	members  *membershipFake
	cache    *cacheFake
	scopes   *authz.ScopeRegistry
	recorder *recorderSpy
}

func newAuthzFixture() *authzFixture {
	repo := newAuthzRepoFake()
	members := newMembershipFake()
	cache := newCacheFake()
	scopes := authz.NewScopeRegistry()
	recorder := &recorderSpy{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &authzFixture{
		pdp:      authz.NewPDP(repo, members, cache, scopes, recorder, logger),
		service:  authz.NewService(repo, members, cache, logger),
		repo:     repo,
		members:  members,
		cache:    cache,
		scopes:   scopes,
		recorder: recorder,
	}
}

// seedPermission builds a registry entry for direct repository seeding.
func seedPermission(id, name string) *authz.Permission {
	return &authz.Permission{ID: id, Name: name}
}

// seedGroup creates a group with members and granted permissions directly in
// the repository, bypassing the service's role checks.
func (fixture *authzFixture) seedGroup(groupID, orgID, name string, memberIDs []string, permissions ...string) {
	fixture.repo.groups[groupID] = &authz.Group{ID: groupID, OrgID: orgID, Name: name}
	for _, userID := range memberIDs {
		fixture.repo.groupMembers[groupMemberKey{groupID, userID}] = &authz.GroupMember{GroupID: groupID, UserID: userID}
	}
	for index, name := range permissions {
		permissionID := groupID + "-perm-" + string(rune('a'+index))
		fixture.repo.permissions[name] = &authz.Permission{ID: permissionID, Name: name}
		fixture.repo.grants[grantKey{groupID, permissionID}] = &authz.Grant{
			GroupID:      groupID,
			PermissionID: permissionID,
			Permission:   name,
		}
	}
}
