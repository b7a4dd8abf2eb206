package storage

import (
	"sync"

	"github.com/darkace1998/FlowSentry/internal/model"
)

// FlowStore is the in-memory, order-preserving, FlowID-deduplicated flow
// collection of one session. Stored entries are never modified by incremental
// merges; they only disappear when the collection is replaced wholesale.
type FlowStore struct {
	mu       sync.RWMutex
	flows    []model.FlowRecord
	index    map[int64]int // FlowID -> position in flows
	version  uint64
	detector Classifier
}

var _ Reconciler = (*FlowStore)(nil)

// NewFlowStore creates an empty store. detector may be nil, in which case
// batches are stored as received.
func NewFlowStore(detector Classifier) *FlowStore {
	return &FlowStore{
		index:    make(map[int64]int),
		detector: detector,
	}
}

// LoadInitial runs the detector over the whole batch and replaces the
// collection with the result. It returns the number of stored flows.
func (s *FlowStore) LoadInitial(batch []model.FlowRecord) int {
	return s.replace(batch)
}

// Replace is LoadInitial for manual refreshes.
func (s *FlowStore) Replace(batch []model.FlowRecord) int {
	return s.replace(batch)
}

func (s *FlowStore) replace(batch []model.FlowRecord) int {
	fresh := s.classify(unique(batch, nil))

	index := make(map[int64]int, len(fresh))
	for i, f := range fresh {
		index[f.FlowID] = i
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows = fresh
	s.index = index
	s.version++
	return len(fresh)
}

// MergeIncremental appends the flows of batch whose FlowID has not been seen,
// in arrival order. The detector only sees the unseen subset. When nothing is
// new the store is left untouched (the version does not change) and 0 is
// returned.
func (s *FlowStore) MergeIncremental(batch []model.FlowRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	unseen := unique(batch, s.index)
	if len(unseen) == 0 {
		return 0
	}

	unseen = s.classify(unseen)
	for _, f := range unseen {
		s.index[f.FlowID] = len(s.flows)
		s.flows = append(s.flows, f)
	}
	s.version++
	return len(unseen)
}

// classify normalizes the batch and runs the detector over it.
func (s *FlowStore) classify(batch []model.FlowRecord) []model.FlowRecord {
	for i := range batch {
		batch[i] = batch[i].Normalize()
	}
	if s.detector == nil || len(batch) == 0 {
		return batch
	}
	return s.detector.Detect(batch)
}

// unique returns, in order, the flows of batch whose FlowID is neither in
// seen nor repeated earlier in batch. The result never aliases batch.
func unique(batch []model.FlowRecord, seen map[int64]int) []model.FlowRecord {
	out := make([]model.FlowRecord, 0, len(batch))
	inBatch := make(map[int64]struct{}, len(batch))
	for _, f := range batch {
		if _, ok := seen[f.FlowID]; ok {
			continue
		}
		if _, ok := inBatch[f.FlowID]; ok {
			continue
		}
		inBatch[f.FlowID] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Flows returns a copy of all stored flows in first-seen order.
func (s *FlowStore) Flows() []model.FlowRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.FlowRecord, len(s.flows))
	copy(result, s.flows)
	return result
}

// Get returns the stored flow with the given FlowID.
func (s *FlowStore) Get(id int64) (model.FlowRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return model.FlowRecord{}, false
	}
	return s.flows[i], true
}

// Len returns the number of stored flows.
func (s *FlowStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.flows)
}

// Version returns a counter that increases on every change to the collection.
func (s *FlowStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// FlaggedCount returns the number of stored flows marked as potential DoS.
func (s *FlowStore) FlaggedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, f := range s.flows {
		if f.IsPotentialDoS {
			n++
		}
	}
	return n
}
