package analysis

import "github.com/darkace1998/FlowSentry/internal/model"

// GroupIndex is a two-level grouping of flows: source address, then
// "dest:port". Each leaf holds the flows sharing that (src, dest, port) triple
// in batch order.
type GroupIndex map[string]map[string][]model.FlowRecord

// BuildGroupIndex groups the given batch. Only the batch is considered.
func BuildGroupIndex(flows []model.FlowRecord) GroupIndex {
	idx := make(GroupIndex)
	for _, f := range flows {
		byDest, ok := idx[f.Src]
		if !ok {
			byDest = make(map[string][]model.FlowRecord)
			idx[f.Src] = byDest
		}
		key := f.DestKey()
		byDest[key] = append(byDest[key], f)
	}
	return idx
}

// Group returns the flows sharing f's source and destination endpoint.
func (g GroupIndex) Group(f model.FlowRecord) []model.FlowRecord {
	return g[f.Src][f.DestKey()]
}

// Size returns the number of flows in f's group.
func (g GroupIndex) Size(f model.FlowRecord) int {
	return len(g.Group(f))
}
