package adminlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lotuscatalog/curator/pkg/kafka"
	"github.com/lotuscatalog/curator/pkg/logging"
)

// PublisherConfig configures the audit event mirror.
type PublisherConfig struct {
	Brokers []string
	Topic   string
	Source  string
	Logger  logging.Logger
}

// Publisher records audit entries to Postgres and mirrors them to Kafka.
// Both sides are best effort: an audit failure must never fail the admin
// operation it describes.
type Publisher struct {
	store    *Store
	producer *kafka.Producer
	topic    string
	source   string
	logger   logging.Logger
}

// NewPublisher wires the audit recorder. A nil broker list disables the
// Kafka mirror; the Postgres log still runs.
func NewPublisher(store *Store, cfg PublisherConfig) (*Publisher, error) {
	p := &Publisher{
		store:  store,
		topic:  cfg.Topic,
		source: cfg.Source,
		logger: cfg.Logger,
	}
	if p.topic == "" {
		p.topic = "curator.admin_actions"
	}
	if p.source == "" {
		p.source = "curator"
	}
	if len(cfg.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Brokers, p.source, cfg.Logger)
		if err != nil {
			return nil, err
		}
		p.producer = producer
	}
	return p, nil
}

func (p *Publisher) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// Producer exposes the underlying client for health checks; nil when the
// mirror is disabled.
func (p *Publisher) Producer() *kafka.Producer {
	if p == nil {
		return nil
	}
	return p.producer
}

type auditEvent struct {
	Action     string                 `json:"action"`
	AdminEmail string                 `json:"admin_email"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Source     string                 `json:"source"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Record implements Recorder.
func (p *Publisher) Record(ctx context.Context, action, adminEmail string, metadata map[string]interface{}) {
	if p == nil {
		return
	}
	if p.store != nil {
		if err := p.store.Insert(ctx, action, adminEmail, metadata); err != nil {
			p.logger.WithError(err).WithFields(logging.Fields{
				"action":      action,
				"admin_email": adminEmail,
			}).Warn("Admin action log write failed")
		}
	}
	if p.producer == nil {
		return
	}

	payload, err := json.Marshal(auditEvent{
		Action:     action,
		AdminEmail: adminEmail,
		Metadata:   metadata,
		Source:     p.source,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		p.logger.WithError(err).Warn("Admin action event marshal failed")
		return
	}
	if err := p.producer.ProduceMessage(p.topic, []byte(adminEmail), payload, map[string]string{
		"source": p.source,
		"type":   action,
	}); err != nil {
		p.logger.WithError(err).WithField("topic", p.topic).Warn("Admin action event publish failed")
	}
}
