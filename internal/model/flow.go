package model

import (
	"fmt"
	"strconv"
)

// Classification labels the Detector assigns or the backend commonly reports.
const (
	ClassBenign = "Benign"
	ClassDoS    = "DoS"
)

// Risk levels reported by the backend, lowest to highest.
const (
	RiskMinimal  = "Minimal"
	RiskLow      = "Low"
	RiskMedium   = "Medium"
	RiskHigh     = "High"
	RiskVeryHigh = "Very High"
)

// FlowRecord is one flow as reported by the capture/classification backend.
// JSON names match the backend's wire format.
type FlowRecord struct {
	FlowID         int64   `json:"FlowID"`
	Src            string  `json:"Src"`
	SrcPort        int     `json:"SrcPort"`
	Dest           string  `json:"Dest"`
	DestPort       int     `json:"DestPort"`
	Protocol       string  `json:"Protocol"`
	FlowDuration   float64 `json:"FlowDuration"` // milliseconds
	Classification string  `json:"Classification"`
	Probability    float64 `json:"Probability"` // confidence in [0,1]
	Risk           string  `json:"Risk"`
	FlowStartTime  string  `json:"FlowStartTime"`
	FlowLastSeen   string  `json:"FlowLastSeen"`
	IsPotentialDoS bool    `json:"isPotentialDoS,omitempty"`
}

// DestKey returns the "dest:port" key used to group flows by destination endpoint.
func (f FlowRecord) DestKey() string {
	return f.Dest + ":" + strconv.Itoa(f.DestPort)
}

// String returns a brief summary of the flow record.
func (f FlowRecord) String() string {
	return fmt.Sprintf("#%d %s:%d → %s:%d %s %s (%s, p=%.2f)",
		f.FlowID,
		f.Src, f.SrcPort,
		f.Dest, f.DestPort,
		f.Protocol,
		f.Classification, f.Risk, f.Probability,
	)
}

// ClampProbability bounds p to [0,1].
func ClampProbability(p float64) float64 {
	switch {
	case p != p: // NaN
		return 0
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

// Normalize returns a copy of f with Probability clamped to [0,1].
func (f FlowRecord) Normalize() FlowRecord {
	f.Probability = ClampProbability(f.Probability)
	return f
}
