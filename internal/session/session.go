// Package session owns the client-side view of the backend: the reconciled
// flow store, the latest backend status, capture state and the user-visible
// error, plus the scheduler that keeps them fresh.
package session

import (
	"sync"

	"github.com/darkace1998/FlowSentry/internal/analysis"
	"github.com/darkace1998/FlowSentry/internal/logging"
	"github.com/darkace1998/FlowSentry/internal/model"
	"github.com/darkace1998/FlowSentry/internal/storage"
)

// User-facing error messages, one per failing operation.
const (
	ErrInitialLoad  = "Failed to fetch network flows. Please check if the API server is running."
	ErrRefresh      = "Failed to refresh flows. Please check the API server."
	ErrStatus       = "Failed to connect to the API server. Please check if it is running."
	ErrStartCapture = "Failed to start packet sniffing. Please check the API server."
	ErrStopCapture  = "Failed to stop packet sniffing. Please check the API server."
)

// ChangeKind names what part of the session changed.
type ChangeKind string

const (
	ChangeFlows  ChangeKind = "flows"
	ChangeStatus ChangeKind = "status"
	ChangeAlert  ChangeKind = "alert"
)

// Change is sent to subscribers after every visible mutation.
type Change struct {
	Type    ChangeKind `json:"type"`
	Version uint64     `json:"version"`
}

// subscriberBuffer is the per-subscriber backlog. Slow subscribers miss
// intermediate changes but always see a later version.
const subscriberBuffer = 16

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	Status      *model.ApiStatus `json:"status"`
	IsSniffing  bool             `json:"isSniffing"`
	Error       string           `json:"error"`
	InitialLoad bool             `json:"initialLoad"`
	FlowCount   int              `json:"flowCount"`
	Flagged     int              `json:"flaggedCount"`
	Version     uint64           `json:"version"`
	Active      bool             `json:"-"`
}

// Session is the single writer of all client-side state. Every mutation
// happens under mu and is ignored once the session has been closed.
type Session struct {
	mu          sync.Mutex
	store       *storage.FlowStore
	status      *model.ApiStatus
	sniffing    bool
	errMsg      string
	initialLoad bool
	active      bool
	version     uint64

	subMu sync.Mutex
	subs  map[chan Change]struct{}

	log *logging.Logger
}

// New creates an active session around store.
func New(store *storage.FlowStore) *Session {
	return &Session{
		store:       store,
		initialLoad: true,
		active:      true,
		subs:        make(map[chan Change]struct{}),
		log:         logging.Default().Named("session"),
	}
}

// Store returns the flow store for reading.
func (s *Session) Store() *storage.FlowStore {
	return s.store
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		IsSniffing:  s.sniffing,
		Error:       s.errMsg,
		InitialLoad: s.initialLoad,
		FlowCount:   s.store.Len(),
		Flagged:     s.store.FlaggedCount(),
		Version:     s.version,
		Active:      s.active,
	}
	if s.status != nil {
		st := *s.status
		snap.Status = &st
	}
	return snap
}

// Active reports whether the session still accepts mutations.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ApplyInitialLoad records the outcome of the first full flow fetch. The
// initial-load flag is cleared whether or not the fetch succeeded. It
// returns false when the session is closed.
func (s *Session) ApplyInitialLoad(flows []model.FlowRecord, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}

	if err != nil {
		s.log.Error("initial flow load failed: %v", err)
		s.errMsg = ErrInitialLoad
	} else {
		n := s.store.LoadInitial(flows)
		s.log.Info("initial load: %d flows", n)
		s.errMsg = ""
	}
	s.initialLoad = false
	s.bumpLocked(ChangeFlows)
	return true
}

// ApplyIncremental merges a periodic flow fetch. Failures are logged and
// otherwise ignored. No change is published when nothing new arrived.
func (s *Session) ApplyIncremental(flows []model.FlowRecord, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}

	if err != nil {
		s.log.Warn("incremental flow fetch failed: %v", err)
		return true
	}

	n := s.store.MergeIncremental(flows)
	cleared := s.clearErrorLocked()
	if n > 0 {
		s.log.Debug("merged %d new flows (total %d)", n, s.store.Len())
	}
	if n > 0 || cleared {
		s.bumpLocked(ChangeFlows)
	}
	return true
}

// ApplyRefresh records the outcome of a manual refresh. On failure the
// stored flows are left untouched.
func (s *Session) ApplyRefresh(flows []model.FlowRecord, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}

	if err != nil {
		s.log.Error("refresh failed: %v", err)
		s.errMsg = ErrRefresh
	} else {
		n := s.store.Replace(flows)
		s.log.Info("refresh: %d flows", n)
		s.errMsg = ""
	}
	s.bumpLocked(ChangeFlows)
	return true
}

// ApplyStatus records a status fetch. On failure the previous status is kept.
func (s *Session) ApplyStatus(st model.ApiStatus, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}

	if err != nil {
		s.log.Warn("status fetch failed: %v", err)
		s.errMsg = ErrStatus
	} else {
		s.status = &st
		s.errMsg = ""
	}
	s.bumpLocked(ChangeStatus)
	return true
}

// ApplyCapture records the outcome of a start (sniffing=true) or stop
// request. On failure the capture flag is left unchanged.
func (s *Session) ApplyCapture(sniffing bool, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}

	if err != nil {
		s.log.Error("capture request (sniffing=%v) failed: %v", sniffing, err)
		if sniffing {
			s.errMsg = ErrStartCapture
		} else {
			s.errMsg = ErrStopCapture
		}
	} else {
		s.sniffing = sniffing
		s.errMsg = ""
	}
	s.bumpLocked(ChangeStatus)
	return true
}

// Close marks the session inactive and closes all subscriber channels.
// Later Apply calls are no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	s.subMu.Lock()
	for ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	s.subMu.Unlock()
}

// Subscribe returns a channel of changes and a function that cancels the
// subscription. The channel is closed on cancel or when the session closes.
func (s *Session) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)

	s.subMu.Lock()
	if s.subs == nil {
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
		})
	}
}

// Name implements analysis.Sink.
func (s *Session) Name() string { return "session" }

// Notify implements analysis.Sink by announcing the alert to subscribers.
func (s *Session) Notify(a analysis.Alert) error {
	s.mu.Lock()
	v := s.version
	s.mu.Unlock()
	s.log.Debug("alert %q changed (count %d)", a.ID, a.Count)
	s.publish(Change{Type: ChangeAlert, Version: v})
	return nil
}

func (s *Session) clearErrorLocked() bool {
	if s.errMsg == "" {
		return false
	}
	s.errMsg = ""
	return true
}

func (s *Session) bumpLocked(kind ChangeKind) {
	s.version++
	s.publish(Change{Type: kind, Version: s.version})
}

func (s *Session) publish(c Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
