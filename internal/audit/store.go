// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package audit

import (
	"context"
	"time"
)

// # Data Access Contract

// Store defines the persistence contract for the decision chain.
type Store interface {

	/*
		Append seals the event onto the end of the chain and persists it.
		Appends across all instances are serialized so sequence numbers stay
		dense and the linkage stays unbroken.

		Parameters:
		  - context: context.Context
		  - event: *Event (Seq, PriorHash, and RowHash are assigned here)

		Returns:
		  - error: Persistence failures
	*/
	Append(context context.Context, event *Event) error

	/*
		VerifyRange recomputes the chain over [fromSeq, toSeq].

		Parameters:
		  - context: context.Context
		  - fromSeq: int64
		  - toSeq: int64 (0 means "through the current head")

		Returns:
		  - int64: Sequence of the first broken row, 0 when the range is intact
		  - error: Retrieval failures
	*/
	VerifyRange(context context.Context, fromSeq, toSeq int64) (int64, error)

	/*
		Query returns chain rows matching the filter, newest first.

		Parameters:
		  - context: context.Context
		  - filter: Filter

		Returns:
		  - []*Event: Matching rows
		  - error: Retrieval failures
	*/
	Query(context context.Context, filter Filter) ([]*Event, error)

	/*
		Prune deletes rows older than the cutoff and appends a chain-anchor
		row carrying the hash witness of the last pruned row, so the remaining
		chain stays verifiable.

		Parameters:
		  - context: context.Context
		  - before: time.Time

		Returns:
		  - int64: Number of rows pruned
		  - error: Persistence failures
	*/
	Prune(context context.Context, before time.Time) (int64, error)
}
