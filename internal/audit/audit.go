// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package audit implements the tamper-evident decision log.

Every authorization decision is appended to a single global hash chain: each
row carries the hash of its predecessor and a hash over its own canonical
serialization, so any later edit or deletion inside a retained range is
detectable by recomputation. Appends are serialized with a Postgres advisory
lock; decisions reach the chain through a buffered asynchronous writer and
never block on audit I/O.
*/
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Event types appended to the chain.
const (
	EventDecision    = "decision"
	EventChainAnchor = "chain_anchor"
)

// genesisHash seeds the chain before the first row exists.
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Event is one row of the decision chain.
type Event struct {
	Seq        int64     `json:"seq"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`

	UserID        string   `json:"user_id"`
	OrgID         string   `json:"organization_id"`
	Permission    string   `json:"permission"`
	ResourceID    string   `json:"resource_id,omitempty"`
	Granted       bool     `json:"granted"`
	Reason        string   `json:"reason"`
	MatchedGroups []string `json:"matched_groups"`
	Source        string   `json:"source"` // l1 | l2 | db
	TraceID       string   `json:"trace_id,omitempty"`
	IPAddress     string   `json:"ip_address,omitempty"`

	PriorHash string `json:"prior_hash"`
	RowHash   string `json:"row_hash"`
}

// Filter narrows a chain query. Zero values mean "any".
type Filter struct {
	UserID     string
	OrgID      string
	Permission string
	Granted    *bool
	TraceID    string
	ResourceID string
	From       time.Time
	To         time.Time
	Limit      int
}

// canonical produces the deterministic serialization the row hash covers.
// Field order and formatting are part of the chain contract and must never
// change for already-written rows.
func (event *Event) canonical() string {
	fields := []string{
		strconv.FormatInt(event.Seq, 10),
		event.Type,
		event.OccurredAt.UTC().Format(time.RFC3339Nano),
		event.UserID,
		event.OrgID,
		event.Permission,
		event.ResourceID,
		strconv.FormatBool(event.Granted),
		event.Reason,
		strings.Join(event.MatchedGroups, ","),
		event.Source,
		event.TraceID,
		event.IPAddress,
	}
	return strings.Join(fields, "|")
}

// ComputeHash derives the row hash: SHA-256 over the prior hash concatenated
// with the canonical serialization.
func ComputeHash(priorHash string, event *Event) string {
	digest := sha256.Sum256([]byte(priorHash + event.canonical()))
	return hex.EncodeToString(digest[:])
}

// Seal assigns the chain linkage of an event that follows prior. A nil prior
// starts the chain at seq 1 from the genesis hash.
func (event *Event) Seal(prior *Event) {
	if prior == nil {
		event.Seq = 1
		event.PriorHash = genesisHash
	} else {
		event.Seq = prior.Seq + 1
		event.PriorHash = prior.RowHash
	}
	event.RowHash = ComputeHash(event.PriorHash, event)
}

// Verify recomputes the row hash against the given prior hash.
func (event *Event) Verify(priorHash string) bool {
	return event.PriorHash == priorHash && event.RowHash == ComputeHash(priorHash, event)
}
