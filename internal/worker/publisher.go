package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crosve/Csphere/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Publisher enqueues tasks on the JetStream stream.
type Publisher struct {
	js     jetstream.JetStream
	prefix string
}

// NewPublisher creates a publisher on nc.
func NewPublisher(nc *nats.Conn, cfg config.NATSConfig) (*Publisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}
	return &Publisher{js: js, prefix: cfg.SubjectPrefix}, nil
}

// Publish encodes payload as JSON and publishes it for taskType. A non-empty
// msgID deduplicates retried publishes within the stream's duplicate window.
// The trace context of ctx travels in the message headers.
func (p *Publisher) Publish(ctx context.Context, taskType string, payload interface{}, msgID string) (*jetstream.PubAck, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", taskType, err)
	}
	msg := nats.NewMsg(Subject(p.prefix, taskType))
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	var opts []jetstream.PublishOpt
	if msgID != "" {
		opts = append(opts, jetstream.WithMsgID(msgID))
	}
	ack, err := p.js.PublishMsg(ctx, msg, opts...)
	if err != nil {
		return nil, fmt.Errorf("publishing %s: %w", taskType, err)
	}
	return ack, nil
}

// EnsureStream creates the task stream when it does not exist yet, so tasks
// published before the first worker starts are kept.
func (p *Publisher) EnsureStream(ctx context.Context, cfg config.NATSConfig) error {
	_, err := EnsureStream(ctx, p.js, cfg)
	return err
}
