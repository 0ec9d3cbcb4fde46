// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package audit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// # Postgres Chain Store

// chainLockKey is the advisory-lock key serializing chain appends across all
// API instances sharing the database.
const chainLockKey = 0x6761746b

// defaultQueryLimit caps unbounded chain queries.
const defaultQueryLimit = 100

// PostgresStore implements the [Store] interface on the audit.decision_chain
// table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates the Postgres-backed chain store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const eventColumns = `
	seq, type, occurredat, userid, orgid, permission, resourceid,
	granted, reason, matchedgroups, source, traceid, ipaddress,
	priorhash, rowhash`

// scanEvent hydrates an Event from a pgx row.
func scanEvent(row pgx.Row) (*Event, error) {
	event := &Event{}
	err := row.Scan(
		&event.Seq,
		&event.Type,
		&event.OccurredAt,
		&event.UserID,
		&event.OrgID,
		&event.Permission,
		&event.ResourceID,
		&event.Granted,
		&event.Reason,
		&event.MatchedGroups,
		&event.Source,
		&event.TraceID,
		&event.IPAddress,
		&event.PriorHash,
		&event.RowHash,
	)
	if err != nil {
		return nil, err
	}
	return event, nil
}

/*
Append seals the event against the current chain head and persists it.

Description: Runs inside a transaction holding the chain advisory lock, so
the head read and the insert are atomic across instances. Sequence numbers
stay dense and every row's prior hash is the actual head at insert time.

Parameters:
  - context: context.Context
  - event: *Event

Returns:
  - error: Persistence failures
*/
func (store *PostgresStore) Append(context context.Context, event *Event) error {
	transaction, err := store.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("audit_append_begin_failed: %w", err)
	}
	defer transaction.Rollback(context)

	if err := store.appendInTx(context, transaction, event); err != nil {
		return err
	}

	if err := transaction.Commit(context); err != nil {
		return fmt.Errorf("audit_append_commit_failed: %w", err)
	}
	return nil
}

// appendInTx seals and inserts one event inside an open transaction.
func (store *PostgresStore) appendInTx(ctx context.Context, transaction pgx.Tx, event *Event) error {
	if _, err := transaction.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, chainLockKey); err != nil {
		return fmt.Errorf("audit_append_lock_failed: %w", err)
	}

	head, err := scanEvent(transaction.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM audit.decision_chain ORDER BY seq DESC LIMIT 1`))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("audit_append_head_failed: %w", err)
		}
		head = nil
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if event.MatchedGroups == nil {
		event.MatchedGroups = []string{}
	}
	event.Seal(head)

	const query = `
		INSERT INTO audit.decision_chain (
			seq, type, occurredat, userid, orgid, permission, resourceid,
			granted, reason, matchedgroups, source, traceid, ipaddress,
			priorhash, rowhash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = transaction.Exec(ctx, query,
		event.Seq,
		event.Type,
		event.OccurredAt,
		event.UserID,
		event.OrgID,
		event.Permission,
		event.ResourceID,
		event.Granted,
		event.Reason,
		event.MatchedGroups,
		event.Source,
		event.TraceID,
		event.IPAddress,
		event.PriorHash,
		event.RowHash,
	)
	if err != nil {
		return fmt.Errorf("audit_append_insert_failed: %w", err)
	}
	return nil
}

/*
VerifyRange recomputes the chain over [fromSeq, toSeq].

Description: Checks three properties per row: the sequence is dense, the
prior hash matches the predecessor's row hash, and the row hash matches the
recomputed digest. For the first row of the range the predecessor is fetched
when it still exists; after a prune the stored prior hash of the anchor is
the trusted witness.

Parameters:
  - context: context.Context
  - fromSeq: int64
  - toSeq: int64 (0 means through the current head)

Returns:
  - int64: Sequence of the first broken row, 0 when intact
  - error: Retrieval failures
*/
func (store *PostgresStore) VerifyRange(context context.Context, fromSeq, toSeq int64) (int64, error) {
	priorHash := ""
	predecessor, err := scanEvent(store.pool.QueryRow(context,
		`SELECT `+eventColumns+` FROM audit.decision_chain WHERE seq = $1`, fromSeq-1))
	if err == nil {
		priorHash = predecessor.RowHash
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("audit_verify_predecessor_failed: %w", err)
	}

	query := `SELECT ` + eventColumns + ` FROM audit.decision_chain WHERE seq >= $1`
	args := []any{fromSeq}
	if toSeq > 0 {
		query += ` AND seq <= $2`
		args = append(args, toSeq)
	}
	query += ` ORDER BY seq ASC`

	rows, err := store.pool.Query(context, query, args...)
	if err != nil {
		return 0, fmt.Errorf("audit_verify_query_failed: %w", err)
	}
	defer rows.Close()

	expectedSeq := int64(0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return 0, fmt.Errorf("audit_verify_scan_failed: %w", err)
		}

		if expectedSeq != 0 && event.Seq != expectedSeq {
			return expectedSeq, nil
		}
		if priorHash == "" {
			// First row with no surviving predecessor: its stored prior hash
			// is the witness, only the row digest is recomputable.
			priorHash = event.PriorHash
		}
		if !event.Verify(priorHash) {
			return event.Seq, nil
		}

		priorHash = event.RowHash
		expectedSeq = event.Seq + 1
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("audit_verify_rows_failed: %w", err)
	}

	return 0, nil
}

/*
Query returns chain rows matching the filter, newest first.

Parameters:
  - context: context.Context
  - filter: Filter

Returns:
  - []*Event: Matching rows, at most filter.Limit (default 100)
  - error: Retrieval failures
*/
func (store *PostgresStore) Query(context context.Context, filter Filter) ([]*Event, error) {
	var conditions []string
	var args []any

	addCondition := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, column+" = $"+strconv.Itoa(len(args)))
	}

	if filter.UserID != "" {
		addCondition("userid", filter.UserID)
	}
	if filter.OrgID != "" {
		addCondition("orgid", filter.OrgID)
	}
	if filter.Permission != "" {
		addCondition("permission", filter.Permission)
	}
	if filter.Granted != nil {
		addCondition("granted", *filter.Granted)
	}
	if filter.TraceID != "" {
		addCondition("traceid", filter.TraceID)
	}
	if filter.ResourceID != "" {
		addCondition("resourceid", filter.ResourceID)
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conditions = append(conditions, "occurredat >= $"+strconv.Itoa(len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conditions = append(conditions, "occurredat < $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + eventColumns + ` FROM audit.decision_chain`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	args = append(args, limit)
	query += ` ORDER BY seq DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := store.pool.Query(context, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit_query_failed: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("audit_query_scan_failed: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

/*
Prune deletes rows older than the cutoff and appends a chain-anchor row.

Description: The anchor's reason carries the last pruned sequence and its row
hash, so the truncated chain keeps a verifiable witness of the removed
prefix. Runs under the chain advisory lock: nothing can append between the
anchor and the delete.

Parameters:
  - context: context.Context
  - before: time.Time

Returns:
  - int64: Number of rows pruned
  - error: Persistence failures
*/
func (store *PostgresStore) Prune(context context.Context, before time.Time) (int64, error) {
	transaction, err := store.pool.Begin(context)
	if err != nil {
		return 0, fmt.Errorf("audit_prune_begin_failed: %w", err)
	}
	defer transaction.Rollback(context)

	if _, err := transaction.Exec(context, `SELECT pg_advisory_xact_lock($1)`, chainLockKey); err != nil {
		return 0, fmt.Errorf("audit_prune_lock_failed: %w", err)
	}

	var lastSeq int64
	var witness string
	err = transaction.QueryRow(context,
		`SELECT seq, rowhash FROM audit.decision_chain
		 WHERE occurredat < $1 AND type <> $2
		 ORDER BY seq DESC LIMIT 1`,
		before, EventChainAnchor,
	).Scan(&lastSeq, &witness)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("audit_prune_witness_failed: %w", err)
	}

	head, err := scanEvent(transaction.QueryRow(context,
		`SELECT `+eventColumns+` FROM audit.decision_chain ORDER BY seq DESC LIMIT 1`))
	if err != nil {
		return 0, fmt.Errorf("audit_prune_head_failed: %w", err)
	}

	anchor := &Event{
		Type:          EventChainAnchor,
		OccurredAt:    time.Now(),
		Reason:        fmt.Sprintf("pruned_through_seq=%d;witness=%s", lastSeq, witness),
		MatchedGroups: []string{},
	}
	anchor.Seal(head)

	const insert = `
		INSERT INTO audit.decision_chain (
			seq, type, occurredat, userid, orgid, permission, resourceid,
			granted, reason, matchedgroups, source, traceid, ipaddress,
			priorhash, rowhash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = transaction.Exec(context, insert,
		anchor.Seq, anchor.Type, anchor.OccurredAt, anchor.UserID, anchor.OrgID,
		anchor.Permission, anchor.ResourceID, anchor.Granted, anchor.Reason,
		anchor.MatchedGroups, anchor.Source, anchor.TraceID, anchor.IPAddress,
		anchor.PriorHash, anchor.RowHash,
	)
	if err != nil {
		return 0, fmt.Errorf("audit_prune_anchor_failed: %w", err)
	}

	tag, err := transaction.Exec(context,
		`DELETE FROM audit.decision_chain WHERE seq <= $1`, lastSeq)
	if err != nil {
		return 0, fmt.Errorf("audit_prune_delete_failed: %w", err)
	}

	if err := transaction.Commit(context); err != nil {
		return 0, fmt.Errorf("audit_prune_commit_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}
