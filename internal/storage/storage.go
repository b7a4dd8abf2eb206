package storage

import "github.com/darkace1998/FlowSentry/internal/model"

// Classifier re-evaluates an incoming batch before it is stored. The
// DoS detector in package analysis satisfies it.
type Classifier interface {
	Detect(batch []model.FlowRecord) []model.FlowRecord
}

// Reconciler merges fetched flow batches into an authoritative collection.
type Reconciler interface {
	// LoadInitial replaces the whole collection with batch.
	LoadInitial(batch []model.FlowRecord) int

	// Replace replaces the whole collection with batch (manual refresh).
	Replace(batch []model.FlowRecord) int

	// MergeIncremental appends the flows of batch whose FlowID is not yet
	// stored and returns how many were appended.
	MergeIncremental(batch []model.FlowRecord) int

	// Flows returns the stored flows in first-seen order.
	Flows() []model.FlowRecord
}
