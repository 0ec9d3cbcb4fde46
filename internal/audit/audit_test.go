// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package audit_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeep/internal/audit"
	"github.com/taibuivan/gatekeep/internal/core/authz"
)

// # In-Memory Chain Store

type chainStoreFake struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (store *chainStoreFake) Append(_ context.Context, event *audit.Event) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	var head *audit.Event
	if len(store.events) > 0 {
		head = store.events[len(store.events)-1]
	}
	if event.MatchedGroups == nil {
		event.MatchedGroups = []string{}
	}
	event.Seal(head)
	store.events = append(store.events, event)
	return nil
}

func (store *chainStoreFake) VerifyRange(_ context.Context, fromSeq, toSeq int64) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	priorHash := ""
	expectedSeq := int64(0)
	for _, event := range store.events {
		if event.Seq < fromSeq || (toSeq > 0 && event.Seq > toSeq) {
			continue
		}
		if expectedSeq != 0 && event.Seq != expectedSeq {
			return expectedSeq, nil
		}
		if priorHash == "" {
			priorHash = event.PriorHash
		}
		if !event.Verify(priorHash) {
			return event.Seq, nil
		}
		priorHash = event.RowHash
		expectedSeq = event.Seq + 1
	}
	return 0, nil
}

func (store *chainStoreFake) Query(_ context.Context, filter audit.Filter) ([]*audit.Event, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var matched []*audit.Event
	for index := len(store.events) - 1; index >= 0; index-- {
		event := store.events[index]
		if filter.UserID != "" && event.UserID != filter.UserID {
			continue
		}
		if filter.Granted != nil && event.Granted != *filter.Granted {
			continue
		}
		if filter.TraceID != "" && event.TraceID != filter.TraceID {
			continue
		}
		matched = append(matched, event)
		if filter.Limit > 0 && len(matched) == filter.Limit {
			break
		}
	}
	return matched, nil
}

func (store *chainStoreFake) Prune(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// # Chain Primitives

/*
TestEvent_Seal verifies the chain linkage: the first row starts from the
genesis hash, each successor carries its predecessor's row hash, and
sequences stay dense.
*/
func TestEvent_Seal(t *testing.T) {
	first := &audit.Event{
		Type:          audit.EventDecision,
		OccurredAt:    time.Now(),
		UserID:        "user-1",
		Granted:       true,
		Reason:        "granted",
		MatchedGroups: []string{"grp-a"},
	}
	first.Seal(nil)

	assert.Equal(t, int64(1), first.Seq)
	assert.NotEmpty(t, first.RowHash)
	assert.True(t, first.Verify(first.PriorHash))

	second := &audit.Event{
		Type:          audit.EventDecision,
		OccurredAt:    time.Now(),
		UserID:        "user-2",
		Reason:        "not_a_member",
		MatchedGroups: []string{},
	}
	second.Seal(first)

	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, first.RowHash, second.PriorHash)
	assert.True(t, second.Verify(first.RowHash))
}

/*
TestChain_TamperDetection verifies any mutation of a stored row breaks
verification at exactly that row.
*/
func TestChain_TamperDetection(t *testing.T) {
	store := &chainStoreFake{}

	for index := 0; index < 5; index++ {
		err := store.Append(context.Background(), &audit.Event{
			Type:          audit.EventDecision,
			OccurredAt:    time.Now(),
			UserID:        "user-1",
			Permission:    "activity:create",
			Granted:       index%2 == 0,
			Reason:        "granted",
			MatchedGroups: []string{"grp-a"},
		})
		require.NoError(t, err)
	}

	brokenSeq, err := store.VerifyRange(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Zero(t, brokenSeq, "untouched chain must verify clean")

	// Flip one decision after the fact.
	store.events[2].Granted = !store.events[2].Granted

	brokenSeq, err = store.VerifyRange(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), brokenSeq)

	// Recomputing the row hash alone is not enough: the successor's prior
	// hash no longer matches.
	store.events[2].RowHash = audit.ComputeHash(store.events[2].PriorHash, store.events[2])

	brokenSeq, err = store.VerifyRange(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), brokenSeq)
}

/*
TestChain_GapDetection verifies a deleted row inside the retained range is
reported as a break.
*/
func TestChain_GapDetection(t *testing.T) {
	store := &chainStoreFake{}
	for index := 0; index < 4; index++ {
		require.NoError(t, store.Append(context.Background(), &audit.Event{
			Type:       audit.EventDecision,
			OccurredAt: time.Now(),
			UserID:     "user-1",
			Reason:     "granted",
		}))
	}

	store.events = append(store.events[:1], store.events[2:]...)

	brokenSeq, err := store.VerifyRange(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), brokenSeq)
}

// # Async Writer

/*
TestWriter_AppendsDecisions verifies decisions flow through the queue onto
the chain in order, with the authz record fields carried over.
*/
func TestWriter_AppendsDecisions(t *testing.T) {
	store := &chainStoreFake{}
	writer := audit.NewWriter(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	writer.Start()

	for index := 0; index < 10; index++ {
		writer.Record(context.Background(), &authz.DecisionRecord{
			UserID:        "user-1",
			OrgID:         "org-1",
			Permission:    "activity:create",
			Granted:       true,
			Reason:        "granted",
			MatchedGroups: []string{"grp-a"},
			Source:        authz.SourceL1,
			TraceID:       "trace-1",
			IPAddress:     "203.0.113.7",
		})
	}

	writer.Close()

	store.mu.Lock()
	require.Len(t, store.events, 10)
	for index, event := range store.events {
		assert.Equal(t, int64(index+1), event.Seq)
		assert.Equal(t, audit.EventDecision, event.Type)
		assert.Equal(t, "activity:create", event.Permission)
		assert.Equal(t, "l1", event.Source)
		assert.Equal(t, "203.0.113.7", event.IPAddress)
	}
	store.mu.Unlock()

	brokenSeq, err := store.VerifyRange(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Zero(t, brokenSeq)
}

/*
TestService_Query verifies the filter narrows results and newest rows come
first.
*/
func TestService_Query(t *testing.T) {
	store := &chainStoreFake{}
	service := audit.NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	granted := []bool{true, false, true}
	for index, outcome := range granted {
		require.NoError(t, store.Append(context.Background(), &audit.Event{
			Type:       audit.EventDecision,
			OccurredAt: time.Now(),
			UserID:     "user-1",
			Granted:    outcome,
			TraceID:    "trace-" + string(rune('a'+index)),
		}))
	}

	denied := false
	events, err := service.Query(context.Background(), audit.Filter{UserID: "user-1", Granted: &denied})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "trace-b", events[0].TraceID)
}
