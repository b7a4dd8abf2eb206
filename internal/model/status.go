package model

// ApiStatus is a snapshot of the backend's health counters. Each fetch
// replaces the previous snapshot wholesale.
type ApiStatus struct {
	Status         string `json:"status"`
	FlowsProcessed int64  `json:"flows_processed"`
	ActiveFlows    int64  `json:"active_flows"`
}

// Online reports whether the backend described itself as online.
func (s ApiStatus) Online() bool {
	return s.Status == "online"
}

// FlowsResponse is the body of GET /flows.
type FlowsResponse struct {
	Flows []FlowRecord `json:"flows"`
}

// IPStats is a per-address flow histogram, as served by GET /ip-stats.
// IPAddresses and Counts are parallel slices.
type IPStats struct {
	IPAddresses []string `json:"ip_addresses"`
	Counts      []int    `json:"counts"`
}
