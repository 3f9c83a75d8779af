package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/models"
)

// streamPublisher is the slice of jetstream.JetStream the hook uses.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type Config struct {
	URL     string
	Stream  string
	Subject string
}

// Publisher writes remembered facts to a JetStream subject so other services
// can build user profiles from them.
type Publisher struct {
	nc      *nats.Conn
	js      streamPublisher
	subject string
	logger  logger.Logger
}

func Connect(ctx context.Context, cfg Config, log logger.Logger) (*Publisher, error) {
	if cfg.Stream == "" {
		cfg.Stream = "NLWEB_MEMORY"
	}
	if cfg.Subject == "" {
		cfg.Subject = "nlweb.memory"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	log = logger.ForComponent(log, "memory-nats")
	streamCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(streamCtx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.Subject},
		Storage:  jetstream.FileStorage,
	}); err != nil {
		// the stream may be managed elsewhere; publishing still works if it exists
		log.Warn("failed to ensure memory stream", map[string]interface{}{"stream": cfg.Stream, "error": err})
	}

	return &Publisher{nc: nc, js: js, subject: cfg.Subject, logger: log}, nil
}

func newWithStream(js streamPublisher, subject string, log logger.Logger) *Publisher {
	return &Publisher{js: js, subject: subject, logger: log}
}

func (p *Publisher) Persist(ctx context.Context, fact models.MemoryFact) error {
	data, err := json.Marshal(fact)
	if err != nil {
		return fmt.Errorf("failed to marshal memory fact: %w", err)
	}
	ack, err := p.js.Publish(ctx, p.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish memory fact to %s: %w", p.subject, err)
	}
	p.logger.Debug("memory fact published", map[string]interface{}{
		"query_id": fact.QueryID,
		"sequence": ack.Sequence,
	})
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
