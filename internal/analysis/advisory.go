package analysis

import (
	"fmt"
	"time"
)

// Severity represents the severity level of an alert.
type Severity int

const (
	INFO     Severity = iota // Informational observation
	WARNING                  // Requires attention
	CRITICAL                 // Immediate action recommended
)

// String returns the human-readable severity name.
func (s Severity) String() string {
	switch s {
	case INFO:
		return "INFO"
	case WARNING:
		return "WARNING"
	case CRITICAL:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// MarshalText renders the severity by name in JSON payloads.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Alert is the content of one notification slot. Raising an alert with an
// ID that is already present replaces the slot instead of adding a new one.
type Alert struct {
	ID          string    `json:"id"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Count       int       `json:"count"` // number of raises collapsed into this slot
	FirstRaised time.Time `json:"first_raised"`
	LastRaised  time.Time `json:"last_raised"`
}

// sameContent reports whether two alerts would render identically.
func (a Alert) sameContent(b Alert) bool {
	return a.Severity == b.Severity && a.Title == b.Title && a.Message == b.Message
}
