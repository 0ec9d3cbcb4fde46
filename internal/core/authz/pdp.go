// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz

import (
	"context"
	"log/slog"
	"time"

	"github.com/taibuivan/gatekeep/internal/core/org"
	"github.com/taibuivan/gatekeep/internal/platform/apperr"
	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeep/internal/platform/metrics"
	"github.com/taibuivan/gatekeep/internal/platform/validate"
)

// # Collaborator Contracts

// MembershipChecker is the slice of the organization repository the PDP
// needs: the membership gate.
type MembershipChecker interface {
	GetMember(context context.Context, orgID, userID string) (*org.Member, error)
}

// SnapshotCache abstracts the two-tier cache so the PDP can be exercised
// against fakes.
type SnapshotCache interface {
	Get(context context.Context, userID, orgID string) (*Snapshot, Source, bool)
	Set(context context.Context, userID, orgID string, snapshot *Snapshot)
	InvalidateUser(context context.Context, userID, orgID string)
}

// DecisionRecord is the audit-bound projection of one decision.
type DecisionRecord struct {
	UserID        string
	OrgID         string
	Permission    string
	ResourceID    string
	Granted       bool
	Reason        string
	MatchedGroups []string
	Source        Source
	TraceID       string
	IPAddress     string
}

// DecisionRecorder receives every PDP decision for the audit chain. The
// implementation buffers and writes asynchronously; Record never blocks the
// decision path.
type DecisionRecorder interface {
	Record(context context.Context, record *DecisionRecord)
}

// NopRecorder satisfies [DecisionRecorder] with no side effects.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *DecisionRecord) {}

// # Policy Decision Point

// PDP answers authorization questions. It fails closed: any error on the
// resolution path denies the request rather than guessing.
type PDP struct {
	repo     Repository
	members  MembershipChecker
	cache    SnapshotCache
	scopes   *ScopeRegistry
	recorder DecisionRecorder
	logger   *slog.Logger
}

// NewPDP constructs the decision point.
func NewPDP(
	repo Repository,
	members MembershipChecker,
	cache SnapshotCache,
	scopes *ScopeRegistry,
	recorder DecisionRecorder,
	logger *slog.Logger,
) *PDP {
	return &PDP{
		repo:     repo,
		members:  members,
		cache:    cache,
		scopes:   scopes,
		recorder: recorder,
		logger:   logger,
	}
}

/*
Authorize answers one authorization question.

Description: The pipeline is validate → membership gate → resolve → decide →
audit. A denial is a normal Decision, not an error; errors are reserved for
malformed input and infrastructure failures. Non-members receive a uniform
not_a_member denial that does not reveal whether the permission even exists.

Resolution reads L1, then L2, then the store; the store path retries once on
transient failure and then the whole decision fails closed with
service_unavailable. The decision is appended to the audit chain without
blocking the response.

Parameters:
  - context: context.Context
  - input: CheckInput

Returns:
  - *Decision: Granted flag, reason, matched groups, serving tier
  - error: validation_failed, service_unavailable
*/
func (pdp *PDP) Authorize(context context.Context, input CheckInput) (*Decision, error) {
	started := time.Now()

	validator := &validate.Validator{}
	validator.Required(FieldUserID, input.UserID).
		UUID(FieldUserID, input.UserID).
		Required(FieldOrgID, input.OrgID).
		UUID(FieldOrgID, input.OrgID).
		Required(FieldPermission, input.Permission).
		Permission(FieldPermission, input.Permission)

	if err := validator.Err(); err != nil {
		return nil, err
	}

	// 1. Membership gate: no membership, no permissions, uniformly.
	isMember, err := pdp.checkMembership(context, input)
	if err != nil {
		return nil, err
	}
	if !isMember {
		decision := &Decision{Granted: false, Reason: ReasonNotAMember, MatchedGroups: []string{}, Source: SourceDB}
		pdp.finish(context, input, decision, nil, started)
		return decision, nil
	}

	// 2. Resolve the permission set: L1 → L2 → store, single tier per decision.
	snapshot, source, err := pdp.resolve(context, input.UserID, input.OrgID)
	if err != nil {
		return nil, err
	}

	// 3. Decide. The wire answer names the granting groups; the audit record
	// keeps their IDs.
	matchedIDs := snapshot.Groups(input.Permission)
	decision := &Decision{
		Granted:       len(matchedIDs) > 0,
		Reason:        ReasonGranted,
		MatchedGroups: snapshot.NamesFor(matchedIDs),
		Source:        source,
	}
	if !decision.Granted {
		decision.Reason = ReasonPermissionMissing
		decision.MatchedGroups = []string{}
	}

	// 4. Resource-instance narrowing, only when a scope is registered.
	if decision.Granted && input.ResourceID != "" {
		if scope := pdp.scopes.Lookup(input.Permission); scope != nil {
			inScope, err := scope.Allows(context, input.UserID, input.OrgID, input.ResourceID)
			if err != nil {
				// Fail closed: an unanswerable scope question is a denial of
				// the whole request, not a guess.
				return nil, apperr.ServiceUnavailable(err)
			}
			if !inScope {
				decision.Granted = false
				decision.Reason = ReasonScopeDenied
				decision.MatchedGroups = []string{}
				matchedIDs = nil
			}
		}
	}

	pdp.finish(context, input, decision, matchedIDs, started)
	return decision, nil
}

/*
ResolvePermissions returns the full permission snapshot of a (user, org)
pair, for the listing endpoints. Same cache path as Authorize.

Parameters:
  - context: context.Context
  - userID: string
  - orgID: string

Returns:
  - *Snapshot: permission name → granting group IDs
  - error: service_unavailable on resolution failure
*/
func (pdp *PDP) ResolvePermissions(context context.Context, userID, orgID string) (*Snapshot, error) {
	snapshot, _, err := pdp.resolve(context, userID, orgID)
	return snapshot, err
}

// checkMembership runs the gate with one retry on transient failure.
func (pdp *PDP) checkMembership(ctx context.Context, input CheckInput) (bool, error) {
	_, err := pdp.members.GetMember(ctx, input.OrgID, input.UserID)
	if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		_, err = pdp.members.GetMember(ctx, input.OrgID, input.UserID)
	}
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return false, nil
		}
		return false, apperr.ServiceUnavailable(err)
	}
	return true, nil
}

// resolve reads the snapshot through the cache tiers, hitting the store on a
// full miss (with one retry) and repopulating both tiers.
func (pdp *PDP) resolve(ctx context.Context, userID, orgID string) (*Snapshot, Source, error) {
	if snapshot, source, ok := pdp.cache.Get(ctx, userID, orgID); ok {
		return snapshot, source, nil
	}

	metrics.RecordCacheMiss(metrics.TierStore)
	snapshot, err := pdp.repo.ResolveSnapshot(ctx, userID, orgID)
	if err != nil {
		pdp.logger.Warn("authz_resolve_retrying", slog.Any("error", err))
		snapshot, err = pdp.repo.ResolveSnapshot(ctx, userID, orgID)
	}
	if err != nil {
		return nil, "", apperr.ServiceUnavailable(err)
	}

	pdp.cache.Set(ctx, userID, orgID, snapshot)
	return snapshot, SourceDB, nil
}

// finish records metrics and hands the decision to the audit recorder. The
// record carries the matched group IDs, which stay stable across renames.
func (pdp *PDP) finish(ctx context.Context, input CheckInput, decision *Decision, matchedGroupIDs []string, started time.Time) {
	outcome := metrics.DecisionDeny
	if decision.Granted {
		outcome = metrics.DecisionAllow
	}
	metrics.ObservePDPDecision(outcome, tierLabel(decision.Source), time.Since(started))

	pdp.recorder.Record(ctx, &DecisionRecord{
		UserID:        input.UserID,
		OrgID:         input.OrgID,
		Permission:    input.Permission,
		ResourceID:    input.ResourceID,
		Granted:       decision.Granted,
		Reason:        decision.Reason,
		MatchedGroups: matchedGroupIDs,
		Source:        decision.Source,
		TraceID:       ctxutil.GetTraceID(ctx),
		IPAddress:     input.CallerIP,
	})
}

// tierLabel maps a decision source onto the metrics label set.
func tierLabel(source Source) string {
	switch source {
	case SourceL1:
		return metrics.TierL1
	case SourceL2:
		return metrics.TierL2
	default:
		return metrics.TierStore
	}
}
