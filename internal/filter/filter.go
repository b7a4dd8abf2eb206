package filter

import (
	"sort"

	"github.com/darkace1998/FlowSentry/internal/model"
)

// State holds at most one equality constraint per field. The zero value has
// no constraints.
type State struct {
	constraints map[Field]Value
}

// Set constrains field f to v, replacing any previous constraint on f.
func (s *State) Set(f Field, v Value) {
	if s.constraints == nil {
		s.constraints = make(map[Field]Value)
	}
	s.constraints[f] = v
}

// Clear removes the constraint on f. Other fields are unaffected.
func (s *State) Clear(f Field) {
	delete(s.constraints, f)
}

// Get returns the constraint on f, if any.
func (s State) Get(f Field) (Value, bool) {
	v, ok := s.constraints[f]
	return v, ok
}

// Active returns the constrained fields in display order.
func (s State) Active() []Field {
	var out []Field
	for _, f := range Fields {
		if _, ok := s.constraints[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Matches reports whether r satisfies every constraint.
func (s State) Matches(r model.FlowRecord) bool {
	for f, want := range s.constraints {
		if f.Get(r) != want {
			return false
		}
	}
	return true
}

// Apply returns the flows satisfying every constraint in s, in input order.
// With no constraints the input is returned as a new slice.
func Apply(s State, flows []model.FlowRecord) []model.FlowRecord {
	out := make([]model.FlowRecord, 0, len(flows))
	for _, r := range flows {
		if s.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// DistinctValues returns the sorted set of values field f takes across flows.
func DistinctValues(f Field, flows []model.FlowRecord) []Value {
	seen := make(map[Value]struct{})
	out := make([]Value, 0)
	for _, r := range flows {
		v := f.Get(r)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
