// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taibuivan/gatekeep/internal/core/authz"
	"github.com/taibuivan/gatekeep/internal/platform/metrics"
)

// # Async Decision Writer

const (
	// writerQueueSize bounds the in-flight decision backlog. When the queue
	// is full, events are dropped and counted rather than blocking the
	// decision path.
	writerQueueSize = 1024

	// writerRetryDelay spaces the single retry of a failed append.
	writerRetryDelay = 100 * time.Millisecond

	// writerShutdownTimeout caps the drain on Close.
	writerShutdownTimeout = 5 * time.Second
)

// Writer consumes authorization decisions and appends them to the chain from
// a background goroutine. It implements [authz.DecisionRecorder].
type Writer struct {
	store  Store
	queue  chan *Event
	logger *slog.Logger

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// NewWriter constructs the async writer. Call [Writer.Start] before routing
// decisions through it.
func NewWriter(store Store, logger *slog.Logger) *Writer {
	return &Writer{
		store:  store,
		queue:  make(chan *Event, writerQueueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start launches the background drain goroutine. Safe to call once.
func (writer *Writer) Start() {
	writer.startOnce.Do(func() {
		go writer.drain()
	})
}

/*
Record enqueues an authorization decision for appending. Never blocks: when
the queue is full the event is dropped and the drop counter incremented.

Parameters:
  - context.Context: Unused; the append happens on the writer's own context
  - record: *authz.DecisionRecord
*/
func (writer *Writer) Record(_ context.Context, record *authz.DecisionRecord) {
	event := &Event{
		Type:          EventDecision,
		OccurredAt:    time.Now(),
		UserID:        record.UserID,
		OrgID:         record.OrgID,
		Permission:    record.Permission,
		ResourceID:    record.ResourceID,
		Granted:       record.Granted,
		Reason:        record.Reason,
		MatchedGroups: record.MatchedGroups,
		Source:        string(record.Source),
		TraceID:       record.TraceID,
		IPAddress:     record.IPAddress,
	}

	select {
	case writer.queue <- event:
	default:
		metrics.RecordAuditDropped()
		writer.logger.Warn("audit_event_dropped",
			slog.String("trace_id", record.TraceID),
			slog.String("permission", record.Permission),
		)
	}
}

// Close stops accepting events and drains the backlog, bounded by the
// shutdown timeout.
func (writer *Writer) Close() {
	writer.closeOnce.Do(func() {
		close(writer.queue)
		select {
		case <-writer.done:
		case <-time.After(writerShutdownTimeout):
			writer.logger.Warn("audit_writer_drain_timeout")
		}
	})
}

// drain appends queued events until the queue is closed and empty.
func (writer *Writer) drain() {
	defer close(writer.done)

	for event := range writer.queue {
		writer.append(event)
	}
}

// append writes one event with a single spaced retry.
func (writer *Writer) append(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := writer.store.Append(ctx, event)
	if err != nil {
		time.Sleep(writerRetryDelay)
		err = writer.store.Append(ctx, event)
	}
	if err != nil {
		metrics.RecordAuditDropped()
		writer.logger.Error("audit_append_failed",
			slog.String("trace_id", event.TraceID),
			slog.Any("error", err),
		)
		return
	}

	metrics.RecordAuditAppend(event.Type)
}

// # Chain Service

// Service exposes verification, query, and retention over the chain store.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService constructs the chain [Service].
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

/*
Verify recomputes the chain over [fromSeq, toSeq] and reports the first
broken sequence.

Parameters:
  - context: context.Context
  - fromSeq: int64
  - toSeq: int64 (0 means through the current head)

Returns:
  - int64: First broken sequence, 0 when intact
  - error: Retrieval failures
*/
func (service *Service) Verify(context context.Context, fromSeq, toSeq int64) (int64, error) {
	brokenSeq, err := service.store.VerifyRange(context, fromSeq, toSeq)
	if err != nil {
		return 0, err
	}

	if brokenSeq != 0 {
		metrics.RecordAuditVerifyFailure()
		service.logger.Error("audit_chain_broken",
			slog.Int64("broken_seq", brokenSeq),
			slog.Int64("from_seq", fromSeq),
			slog.Int64("to_seq", toSeq),
		)
	}

	return brokenSeq, nil
}

/*
Query returns chain rows matching the filter, newest first.

Parameters:
  - context: context.Context
  - filter: Filter

Returns:
  - []*Event: Matching rows
  - error: Retrieval failures
*/
func (service *Service) Query(context context.Context, filter Filter) ([]*Event, error) {
	return service.store.Query(context, filter)
}

/*
Prune applies the retention policy, keeping a chain-anchor witness.

Parameters:
  - context: context.Context
  - retention: time.Duration

Returns:
  - int64: Number of rows pruned
  - error: Persistence failures
*/
func (service *Service) Prune(context context.Context, retention time.Duration) (int64, error) {
	pruned, err := service.store.Prune(context, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}

	if pruned > 0 {
		metrics.RecordAuditAppend(EventChainAnchor)
		service.logger.Info("audit_chain_pruned", slog.Int64("rows", pruned))
	}

	return pruned, nil
}
