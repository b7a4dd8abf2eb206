// Package metrics exposes session state and backend call statistics to
// Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/darkace1998/FlowSentry/internal/analysis"
	"github.com/darkace1998/FlowSentry/internal/session"
)

const namespace = "flowsentry"

// StateSource provides the session snapshot.
type StateSource interface {
	Snapshot() session.Snapshot
}

// AlertSource provides the alert board contents.
type AlertSource interface {
	Active() []analysis.Alert
	Dropped() uint64
}

// Collector reports session state at scrape time.
type Collector struct {
	state  StateSource
	alerts AlertSource

	flowsStoredDesc    *prometheus.Desc
	flowsFlaggedDesc   *prometheus.Desc
	backendUpDesc      *prometheus.Desc
	backendProcessed   *prometheus.Desc
	backendActiveFlows *prometheus.Desc
	captureActiveDesc  *prometheus.Desc
	sessionErrorDesc   *prometheus.Desc
	stateVersionDesc   *prometheus.Desc
	alertsActiveDesc   *prometheus.Desc
	alertsDroppedDesc  *prometheus.Desc
}

// NewCollector creates a collector over state and alerts. alerts may be nil.
func NewCollector(state StateSource, alerts AlertSource) *Collector {
	return &Collector{
		state:              state,
		alerts:             alerts,
		flowsStoredDesc:    prometheus.NewDesc(namespace+"_flows_stored", "Flows held in the reconciled store", nil, nil),
		flowsFlaggedDesc:   prometheus.NewDesc(namespace+"_flows_flagged_dos", "Stored flows flagged as potential DoS", nil, nil),
		backendUpDesc:      prometheus.NewDesc(namespace+"_backend_up", "1 if the last status fetch reported the backend online", nil, nil),
		backendProcessed:   prometheus.NewDesc(namespace+"_backend_flows_processed", "flows_processed from the last backend status", nil, nil),
		backendActiveFlows: prometheus.NewDesc(namespace+"_backend_active_flows", "active_flows from the last backend status", nil, nil),
		captureActiveDesc:  prometheus.NewDesc(namespace+"_capture_active", "1 if packet sniffing was started from this session", nil, nil),
		sessionErrorDesc:   prometheus.NewDesc(namespace+"_session_error", "1 if an error message is currently shown", []string{"message"}, nil),
		stateVersionDesc:   prometheus.NewDesc(namespace+"_state_version", "Number of visible state changes so far", nil, nil),
		alertsActiveDesc:   prometheus.NewDesc(namespace+"_alerts_active", "Active alerts by severity", []string{"severity"}, nil),
		alertsDroppedDesc:  prometheus.NewDesc(namespace+"_alerts_dropped_total", "Alerts discarded because the delivery queue was full", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.flowsStoredDesc
	ch <- c.flowsFlaggedDesc
	ch <- c.backendUpDesc
	ch <- c.backendProcessed
	ch <- c.backendActiveFlows
	ch <- c.captureActiveDesc
	ch <- c.sessionErrorDesc
	ch <- c.stateVersionDesc
	ch <- c.alertsActiveDesc
	ch <- c.alertsDroppedDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.state.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.flowsStoredDesc, prometheus.GaugeValue, float64(snap.FlowCount))
	ch <- prometheus.MustNewConstMetric(c.flowsFlaggedDesc, prometheus.GaugeValue, float64(snap.Flagged))
	ch <- prometheus.MustNewConstMetric(c.stateVersionDesc, prometheus.GaugeValue, float64(snap.Version))
	ch <- prometheus.MustNewConstMetric(c.captureActiveDesc, prometheus.GaugeValue, boolValue(snap.IsSniffing))

	up := 0.0
	if snap.Status != nil {
		up = boolValue(snap.Status.Online())
		ch <- prometheus.MustNewConstMetric(c.backendProcessed, prometheus.GaugeValue, float64(snap.Status.FlowsProcessed))
		ch <- prometheus.MustNewConstMetric(c.backendActiveFlows, prometheus.GaugeValue, float64(snap.Status.ActiveFlows))
	}
	ch <- prometheus.MustNewConstMetric(c.backendUpDesc, prometheus.GaugeValue, up)

	if snap.Error != "" {
		ch <- prometheus.MustNewConstMetric(c.sessionErrorDesc, prometheus.GaugeValue, 1, snap.Error)
	}

	if c.alerts == nil {
		return
	}
	counts := map[analysis.Severity]int{analysis.INFO: 0, analysis.WARNING: 0, analysis.CRITICAL: 0}
	for _, a := range c.alerts.Active() {
		counts[a.Severity]++
	}
	for sev, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.alertsActiveDesc, prometheus.GaugeValue, float64(n), sev.String())
	}
	ch <- prometheus.MustNewConstMetric(c.alertsDroppedDesc, prometheus.CounterValue, float64(c.alerts.Dropped()))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
