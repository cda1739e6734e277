package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the subset of *amqp.Channel the sink needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Config selects the broker and the queue audit events are routed to.
type Config struct {
	URL          string
	Queue        string
	QueueDurable bool
}

// Sink publishes each audit event as one JSON message. Publish failures
// are logged and counted; they never reach the engine.
type Sink struct {
	publisher Publisher
	queue     string
	logger    *slog.Logger
	conn      *amqp.Connection
	channel   *amqp.Channel
	failed    atomic.Uint64
}

var _ goIdentity.AuditSink = (*Sink)(nil)

// NewSink wraps an existing publisher. logger may be nil.
func NewSink(publisher Publisher, queue string, logger *slog.Logger) (*Sink, error) {
	if publisher == nil {
		return nil, errors.New("rabbitmq publisher is required")
	}
	if strings.TrimSpace(queue) == "" {
		return nil, errors.New("rabbitmq queue is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sink{publisher: publisher, queue: queue, logger: logger}, nil
}

// Dial opens a connection and channel and declares the queue.
func Dial(cfg Config, logger *slog.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(cfg.Queue, cfg.QueueDurable, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	s, err := NewSink(ch, cfg.Queue, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	s.conn = conn
	s.channel = ch
	return s, nil
}

func (s *Sink) Emit(ctx context.Context, event goIdentity.AuditEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		s.fail(event, err)
		return
	}

	err = s.publisher.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   uuid.NewString(),
		Timestamp:   event.Timestamp,
		Type:        event.Type,
		Body:        body,
	})
	if err != nil {
		s.fail(event, err)
	}
}

func (s *Sink) fail(event goIdentity.AuditEvent, err error) {
	s.failed.Add(1)
	s.logger.Warn("audit publish failed", "type", event.Type, "identity_id", event.IdentityID, "error", err)
}

// Failed returns the number of events that could not be published.
func (s *Sink) Failed() uint64 {
	return s.failed.Load()
}

// Close releases the connection opened by Dial. It is a no-op for sinks
// built with NewSink.
func (s *Sink) Close() error {
	if s.channel != nil {
		_ = s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
