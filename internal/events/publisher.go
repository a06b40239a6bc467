package events

import (
	"encoding/json"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Subjects published by this service
const (
	SubjectTicketAssigned   = "helpdesk.tickets.assigned"
	SubjectTicketEscalated  = "helpdesk.tickets.escalated"
	SubjectTicketClosed     = "helpdesk.tickets.closed"
	SubjectEmergencyGranted = "helpdesk.access.emergency_granted"
	SubjectPermissionsChanged = "helpdesk.access.permissions_changed"
	SubjectWorkflowExecuted = "helpdesk.workflows.executed"
)

// Event is the envelope published on every subject
type Event struct {
	Subject   string                 `json:"subject"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// Publisher publishes domain events to NATS. A nil connection (NATS
// unreachable at startup) degrades to no-op publishing so the service
// keeps working without the event bus.
type Publisher struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

func NewPublisher(logger *logrus.Logger) *Publisher {
	log := logger.WithField("component", "events")

	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Name("helpdesk-service"),
	)
	if err != nil {
		log.WithError(err).Warn("NATS unavailable, events disabled")
		return &Publisher{logger: log}
	}

	log.WithField("url", url).Info("Connected to NATS")
	return &Publisher{conn: conn, logger: log}
}

// Publish sends an event. Failures are logged, never returned: event
// delivery must not block or fail the operation that produced it.
func (p *Publisher) Publish(subject string, payload map[string]interface{}) {
	if p == nil || p.conn == nil {
		return
	}

	event := Event{
		Subject:   subject,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).WithField("subject", subject).Error("Failed to marshal event")
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.WithError(err).WithField("subject", subject).Error("Failed to publish event")
	}
}

// IsConnected reports whether the event bus is reachable
func (p *Publisher) IsConnected() bool {
	return p != nil && p.conn != nil && p.conn.IsConnected()
}

// Close drains the connection
func (p *Publisher) Close() {
	if p != nil && p.conn != nil {
		p.conn.Close()
	}
}
