package analysis

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/darkace1998/FlowSentry/internal/model"
)

const (
	// DefaultDoSThreshold is the group size at which flows are flagged.
	DefaultDoSThreshold = 10

	// DoSAlertID is the single notification slot used for DoS alerts, so that
	// repeated detections replace one another instead of stacking up.
	DoSAlertID = "alert"

	dosProbabilityFloor = 0.7
	dosProbabilitySpan  = 0.3
	dosProbabilityCap   = 0.99
)

// Alerter receives alerts raised during detection.
type Alerter interface {
	Raise(id string, sev Severity, title, message string) bool
}

// Detector applies the volumetric DoS heuristic to a batch of flows: a flow is
// flagged when at least threshold flows in the same batch share its source,
// destination address and destination port. Source-port patterns are not
// considered. The detector keeps no state between calls.
type Detector struct {
	threshold int
	rand      func() float64
	alerts    Alerter
}

// DetectorOption customises a Detector.
type DetectorOption func(*Detector)

// WithRand replaces the random source used for the confidence value of
// flagged flows. f must return values in [0,1).
func WithRand(f func() float64) DetectorOption {
	return func(d *Detector) { d.rand = f }
}

// WithAlerter routes DoS alerts to a.
func WithAlerter(a Alerter) DetectorOption {
	return func(d *Detector) { d.alerts = a }
}

// NewDetector creates a detector. A non-positive threshold falls back to
// DefaultDoSThreshold.
func NewDetector(threshold int, opts ...DetectorOption) *Detector {
	if threshold <= 0 {
		threshold = DefaultDoSThreshold
	}
	d := &Detector{threshold: threshold, rand: rand.Float64}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Threshold returns the configured group size threshold.
func (d *Detector) Threshold() int {
	return d.threshold
}

// Detect returns a copy of batch where every flow belonging to an oversized
// group is reclassified as DoS. Other flows are returned unchanged. The input
// slice is not modified. One alert is raised per flagged group, in the order
// the groups first appear in batch.
func (d *Detector) Detect(batch []model.FlowRecord) []model.FlowRecord {
	if len(batch) == 0 {
		return nil
	}

	idx := BuildGroupIndex(batch)
	out := make([]model.FlowRecord, len(batch))
	var flagged []model.FlowRecord
	seen := make(map[string]struct{})

	for i, f := range batch {
		if idx.Size(f) < d.threshold {
			out[i] = f
			continue
		}

		f.IsPotentialDoS = true
		f.Classification = model.ClassDoS
		f.Risk = model.RiskVeryHigh
		f.Probability = d.probability()
		out[i] = f

		key := f.Src + "|" + f.DestKey()
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			flagged = append(flagged, f)
		}
	}

	if d.alerts != nil {
		for _, f := range flagged {
			d.alerts.Raise(DoSAlertID, CRITICAL, "Potential DoS",
				fmt.Sprintf("Potential DoS detected from %s to %s", f.Src, f.DestKey()))
		}
	}

	return out
}

// probability returns min(0.7 + r*0.3, 0.99). The exact value carries no
// meaning beyond "high confidence".
func (d *Detector) probability() float64 {
	r := d.rand()
	if r < 0 || r >= 1 || r != r {
		r = 0
	}
	return math.Min(dosProbabilityFloor+r*dosProbabilitySpan, dosProbabilityCap)
}
