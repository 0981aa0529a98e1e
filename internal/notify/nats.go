package notify

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
)

// NATSPublisher mirrors every event onto a NATS subject so external dashboards
// can subscribe without holding an SSE connection to this process.
type NATSPublisher struct {
	conn          *nats.Conn
	subjectPrefix string
	logger        *log.Logger
}

// NewNATSPublisher connects to the given NATS server.
func NewNATSPublisher(url, subjectPrefix string, logger *log.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = log.Default()
	}

	conn, err := nats.Connect(url, nats.Name("remote-lab-api"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSPublisher{
		conn:          conn,
		subjectPrefix: subjectPrefix,
		logger:        logger,
	}, nil
}

// Publish implements Bus. Errors are logged and swallowed; the event stream
// is advisory.
func (p *NATSPublisher) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Printf("failed to encode %s event: %v", event.Type, err)
		return
	}

	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, event.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Printf("failed to publish %s event to NATS: %v", event.Type, err)
	}
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Printf("failed to drain NATS connection: %v", err)
	}
}
