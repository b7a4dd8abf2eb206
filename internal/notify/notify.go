// Package notify delivers alerts from the alert board to external systems.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/darkace1998/FlowSentry/internal/analysis"
	"github.com/darkace1998/FlowSentry/internal/logging"
)

// Payload is the JSON document published for every alert change.
type Payload struct {
	Source string         `json:"source"`
	Alert  analysis.Alert `json:"alert"`
}

// source identifies this process in published payloads.
const source = "flowsentry"

func encode(a analysis.Alert) ([]byte, error) {
	data, err := json.Marshal(Payload{Source: source, Alert: a})
	if err != nil {
		return nil, fmt.Errorf("encoding alert %q: %w", a.ID, err)
	}
	return data, nil
}

// LogSink writes alerts to the process log.
type LogSink struct {
	log *logging.Logger
}

// NewLogSink returns a sink logging through l, or through the default
// logger when l is nil.
func NewLogSink(l *logging.Logger) *LogSink {
	if l == nil {
		l = logging.Default()
	}
	return &LogSink{log: l.Named("alert")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Notify(a analysis.Alert) error {
	switch a.Severity {
	case analysis.CRITICAL:
		s.log.Error("%s: %s (x%d)", a.Title, a.Message, a.Count)
	case analysis.WARNING:
		s.log.Warn("%s: %s (x%d)", a.Title, a.Message, a.Count)
	default:
		s.log.Info("%s: %s (x%d)", a.Title, a.Message, a.Count)
	}
	return nil
}
