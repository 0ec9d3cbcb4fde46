// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package janitor runs the periodic maintenance jobs: expired session purges,
unverified account purges, audit retention, and an optional audit chain
verification sweep.

Jobs run on independent tickers with a random start jitter so multiple API
instances sharing a database do not stampede. Every job is idempotent; when
two instances race, one simply finds nothing left to clean.
*/
package janitor

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Job intervals. Relational cleanups are daily; the verification sweep is
// more frequent so a break is noticed before the next retention window.
const (
	sessionSweepInterval    = 24 * time.Hour
	unverifiedSweepInterval = 24 * time.Hour
	retentionSweepInterval  = 24 * time.Hour
	verifySweepInterval     = 6 * time.Hour

	jobTimeout = 5 * time.Minute
)

// SessionCleaner purges expired refresh sessions past the grace window.
type SessionCleaner interface {
	CleanupExpiredSessions(context context.Context) (int64, error)
}

// AccountCleaner purges accounts that never completed email verification.
type AccountCleaner interface {
	CleanupUnverifiedUsers(context context.Context) (int64, error)
}

// ChainKeeper applies audit retention and verifies chain integrity.
type ChainKeeper interface {
	Verify(context context.Context, fromSeq, toSeq int64) (int64, error)
	Prune(context context.Context, retention time.Duration) (int64, error)
}

// Options configures the janitor's audit duties.
type Options struct {
	AuditRetention time.Duration
	VerifySweep    bool
}

// Janitor owns the background maintenance loops.
type Janitor struct {
	sessions SessionCleaner
	accounts AccountCleaner
	chain    ChainKeeper
	options  Options
	logger   *slog.Logger

	wg sync.WaitGroup
}

// New constructs a [Janitor]. A nil chain disables the audit jobs.
func New(sessions SessionCleaner, accounts AccountCleaner, chain ChainKeeper, options Options, logger *slog.Logger) *Janitor {
	return &Janitor{
		sessions: sessions,
		accounts: accounts,
		chain:    chain,
		options:  options,
		logger:   logger,
	}
}

// Start launches every enabled job loop. Loops stop when the context is
// canceled; Wait blocks until they have all returned.
func (janitor *Janitor) Start(ctx context.Context) {
	janitor.launch(ctx, "session_sweep", sessionSweepInterval, janitor.sweepSessions)
	janitor.launch(ctx, "unverified_sweep", unverifiedSweepInterval, janitor.sweepUnverified)

	if janitor.chain != nil {
		if janitor.options.AuditRetention > 0 {
			janitor.launch(ctx, "audit_retention", retentionSweepInterval, janitor.sweepRetention)
		}
		if janitor.options.VerifySweep {
			janitor.launch(ctx, "audit_verify", verifySweepInterval, janitor.sweepVerify)
		}
	}
}

// Wait blocks until every job loop has exited.
func (janitor *Janitor) Wait() {
	janitor.wg.Wait()
}

// launch runs one job loop: jittered initial delay, then a fixed ticker.
func (janitor *Janitor) launch(ctx context.Context, name string, interval time.Duration, job func(context.Context)) {
	janitor.wg.Add(1)
	go func() {
		defer janitor.wg.Done()

		// Jitter up to 10% of the interval spreads instances apart.
		jitter := time.Duration(rand.Int63n(int64(interval / 10)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(jitter):
		}

		janitor.run(ctx, name, job)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				janitor.run(ctx, name, job)
			}
		}
	}()
}

// run executes one job invocation under the job timeout.
func (janitor *Janitor) run(ctx context.Context, name string, job func(context.Context)) {
	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	janitor.logger.Debug("janitor_job_started", slog.String("job", name))
	job(jobCtx)
}

func (janitor *Janitor) sweepSessions(ctx context.Context) {
	deleted, err := janitor.sessions.CleanupExpiredSessions(ctx)
	if err != nil {
		janitor.logger.Error("janitor_session_sweep_failed", slog.Any("error", err))
		return
	}
	if deleted > 0 {
		janitor.logger.Info("janitor_sessions_purged", slog.Int64("count", deleted))
	}
}

func (janitor *Janitor) sweepUnverified(ctx context.Context) {
	deleted, err := janitor.accounts.CleanupUnverifiedUsers(ctx)
	if err != nil {
		janitor.logger.Error("janitor_unverified_sweep_failed", slog.Any("error", err))
		return
	}
	if deleted > 0 {
		janitor.logger.Info("janitor_unverified_purged", slog.Int64("count", deleted))
	}
}

func (janitor *Janitor) sweepRetention(ctx context.Context) {
	pruned, err := janitor.chain.Prune(ctx, janitor.options.AuditRetention)
	if err != nil {
		janitor.logger.Error("janitor_audit_retention_failed", slog.Any("error", err))
		return
	}
	if pruned > 0 {
		janitor.logger.Info("janitor_audit_pruned", slog.Int64("count", pruned))
	}
}

// sweepVerify recomputes the whole retained chain. Broken sequences are
// logged and counted inside the chain service; the janitor only drives the
// sweep. Retention keeps the walk bounded.
func (janitor *Janitor) sweepVerify(ctx context.Context) {
	brokenSeq, err := janitor.chain.Verify(ctx, 1, 0)
	if err != nil {
		janitor.logger.Error("janitor_audit_verify_failed", slog.Any("error", err))
		return
	}
	if brokenSeq != 0 {
		janitor.logger.Error("janitor_audit_chain_broken", slog.Int64("broken_seq", brokenSeq))
	}
}
