package analysis

import (
	"sort"

	"github.com/darkace1998/FlowSentry/internal/model"
)

// talkerEntry is an internal type for aggregation.
type talkerEntry struct {
	IP    string
	Flows int
}

// BuildIPStats counts flows per source address and returns the n busiest
// sources, highest count first (ties broken by address). n <= 0 returns all.
func BuildIPStats(flows []model.FlowRecord, n int) model.IPStats {
	srcMap := make(map[string]*talkerEntry)
	for _, f := range flows {
		if e, ok := srcMap[f.Src]; ok {
			e.Flows++
		} else {
			srcMap[f.Src] = &talkerEntry{IP: f.Src, Flows: 1}
		}
	}

	entries := make([]talkerEntry, 0, len(srcMap))
	for _, e := range srcMap {
		entries = append(entries, *e)
	}
	return rankTalkers(entries, n)
}

// TopIPStats orders a histogram received from elsewhere the same way
// BuildIPStats does and keeps the n busiest addresses. n <= 0 keeps all.
// Entries past the shorter of the two parallel slices are ignored.
func TopIPStats(st model.IPStats, n int) model.IPStats {
	size := min(len(st.IPAddresses), len(st.Counts))
	entries := make([]talkerEntry, size)
	for i := 0; i < size; i++ {
		entries[i] = talkerEntry{IP: st.IPAddresses[i], Flows: st.Counts[i]}
	}
	return rankTalkers(entries, n)
}

// rankTalkers sorts by count, highest first with ties broken by address, and
// keeps the first n (all when n <= 0).
func rankTalkers(entries []talkerEntry, n int) model.IPStats {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Flows != entries[j].Flows {
			return entries[i].Flows > entries[j].Flows
		}
		return entries[i].IP < entries[j].IP
	})
	if n > 0 && n < len(entries) {
		entries = entries[:n]
	}

	stats := model.IPStats{
		IPAddresses: make([]string, len(entries)),
		Counts:      make([]int, len(entries)),
	}
	for i, e := range entries {
		stats.IPAddresses[i] = e.IP
		stats.Counts[i] = e.Flows
	}
	return stats
}
