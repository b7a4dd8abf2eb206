package notify

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/darkace1998/FlowSentry/internal/analysis"
	"github.com/darkace1998/FlowSentry/internal/logging"
)

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSSink publishes alerts as JSON on a NATS subject.
type NATSSink struct {
	nc      natsConn
	subject string
}

// NewNATSSink connects to the NATS server at url.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("flowsentry"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	logging.Default().Named("notify").Info("connected to NATS at %s, subject %s", url, subject)
	return &NATSSink{nc: nc, subject: subject}, nil
}

func (s *NATSSink) Name() string { return "nats" }

// Notify publishes a to the configured subject.
func (s *NATSSink) Notify(a analysis.Alert) error {
	data, err := encode(a)
	if err != nil {
		return err
	}
	if err := s.nc.Publish(s.subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", s.subject, err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (s *NATSSink) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}
