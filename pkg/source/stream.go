package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// StreamConfig configures the JetStream event source.
type StreamConfig struct {
	StreamName   string
	Subject      string
	ConsumerName string
}

// DefaultStreamConfig returns the built-in stream source settings.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		StreamName:   "EVENTS",
		Subject:      "events.>",
		ConsumerName: "gateway-ingest",
	}
}

// streamEvent is the wire shape of one event on the stream.
type streamEvent struct {
	EventID    string         `json:"eventId"`
	TenantID   int64          `json:"tenantId"`
	OrgID      int64          `json:"orgId,omitempty"`
	EventType  string         `json:"eventType"`
	OccurredAt time.Time      `json:"occurredAt"`
	Payload    models.Payload `json:"payload"`
	TraceID    string         `json:"traceId,omitempty"`
}

// StreamConsumer pulls events off a JetStream durable consumer and acks each
// message only after the ledger has it. Stream sequences are monotonic but
// not contiguous (other subjects share the stream), so gaps are expected and
// not alerted here.
type StreamConsumer struct {
	conn     *nats.Conn
	cfg      StreamConfig
	ingestor Ingestor
	logger   *slog.Logger

	consumer jetstream.Consumer

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  atomic.Bool
}

// NewStreamConsumer creates a StreamConsumer.
func NewStreamConsumer(conn *nats.Conn, cfg StreamConfig, ingestor Ingestor, logger *slog.Logger) *StreamConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamConsumer{
		conn:     conn,
		cfg:      cfg,
		ingestor: ingestor,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start binds the durable consumer and launches the consume loop.
func (c *StreamConsumer) Start(ctx context.Context) error {
	js, err := jetstream.New(c.conn)
	if err != nil {
		return fmt.Errorf("initializing jetstream: %w", err)
	}

	stream, err := js.Stream(ctx, c.cfg.StreamName)
	if err != nil {
		return fmt.Errorf("binding stream %s: %w", c.cfg.StreamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       c.cfg.ConsumerName,
		FilterSubject: c.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       60 * time.Second,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("creating consumer %s: %w", c.cfg.ConsumerName, err)
	}
	c.consumer = consumer

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consume(ctx)
	}()

	c.logger.Info("stream source started",
		"stream", c.cfg.StreamName, "consumer", c.cfg.ConsumerName, "subject", c.cfg.Subject)
	return nil
}

// Stop signals the loop and waits for the in-flight message to finish.
func (c *StreamConsumer) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// Running reports whether the consume loop is alive.
func (c *StreamConsumer) Running() bool { return c.running.Load() }

func (c *StreamConsumer) consume(ctx context.Context) {
	c.running.Store(true)
	defer c.running.Store(false)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		msgs, err := c.consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		for msg := range msgs.Messages() {
			c.handle(ctx, msg)
		}
		if msgs.Error() != nil && ctx.Err() == nil {
			c.logger.Debug("stream fetch error", "error", msgs.Error())
		}
	}
}

// handle ingests one message. Duplicates are acked (the ledger already has
// the sequence); ingest failures are not, so JetStream redelivers.
func (c *StreamConsumer) handle(ctx context.Context, msg jetstream.Msg) {
	meta, err := msg.Metadata()
	if err != nil {
		c.logger.Error("message without metadata, terminating it", "error", err)
		_ = msg.Term()
		return
	}

	var decoded streamEvent
	if err := json.Unmarshal(msg.Data(), &decoded); err != nil {
		// Malformed payloads never become deliverable by redelivery.
		c.logger.Error("malformed stream event, terminating it",
			"sequence", meta.Sequence.Stream, "error", err)
		_ = msg.Term()
		return
	}

	event := &models.Event{
		EventID:      decoded.EventID,
		SourceOffset: int64(meta.Sequence.Stream),
		Source:       SourceStream,
		TenantID:     decoded.TenantID,
		OrgID:        decoded.OrgID,
		EventType:    decoded.EventType,
		OccurredAt:   decoded.OccurredAt,
		Payload:      decoded.Payload,
		TraceID:      decoded.TraceID,
	}
	if event.EventID == "" {
		event.EventID = fmt.Sprintf("%s-%d", SourceStream, event.SourceOffset)
	}

	if _, err := c.ingestor.Ingest(ctx, event); err != nil {
		c.logger.Error("ingesting stream event failed, leaving for redelivery",
			"sequence", meta.Sequence.Stream, "error", err)
		_ = msg.Nak()
		return
	}
	if err := msg.Ack(); err != nil {
		c.logger.Error("acking stream event failed", "sequence", meta.Sequence.Stream, "error", err)
	}
}
