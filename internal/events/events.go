// Package events carries sync requests and outcomes over Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type Type string

const (
	TypeSyncRequested   Type = "sync.requested"
	TypeIngestRequested Type = "ingest.requested"
	TypeExportRequested Type = "export.requested"
	TypeSyncCompleted   Type = "sync.completed"
)

type Event struct {
	ID         string              `json:"id"`
	Type       Type                `json:"type"`
	Mode       models.SyncMode     `json:"mode,omitempty"`
	SkipIngest bool                `json:"skip_ingest,omitempty"`
	Path       string              `json:"path,omitempty"`
	Outcome    *models.SyncOutcome `json:"outcome,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}

func NewEvent(t Type) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

func Decode(data []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("failed to parse event: %w", err)
	}
	if event.Type == "" {
		return Event{}, fmt.Errorf("event %s has no type", event.ID)
	}
	return event, nil
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	requests messageWriter
	outcomes messageWriter
	logger   *logger.Logger
}

func NewPublisher(brokers []string, requestTopic, outcomeTopic string, logger *logger.Logger) *Publisher {
	return &Publisher{
		requests: newWriter(brokers, requestTopic),
		outcomes: newWriter(brokers, outcomeTopic),
		logger:   logger,
	}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// PublishSyncRequest asks the worker for an on-demand run.
func (p *Publisher) PublishSyncRequest(ctx context.Context, mode models.SyncMode, skipIngest bool) (Event, error) {
	event := NewEvent(TypeSyncRequested)
	event.Mode = mode
	event.SkipIngest = skipIngest
	return event, p.publish(ctx, p.requests, event)
}

// PublishExportRequest asks the worker to write a CSV export to path.
func (p *Publisher) PublishExportRequest(ctx context.Context, path string) (Event, error) {
	event := NewEvent(TypeExportRequested)
	event.Path = path
	return event, p.publish(ctx, p.requests, event)
}

// PublishOutcome announces a recorded sync outcome.
func (p *Publisher) PublishOutcome(ctx context.Context, outcome *models.SyncOutcome) error {
	event := NewEvent(TypeSyncCompleted)
	event.Mode = outcome.Mode
	event.Outcome = outcome
	return p.publish(ctx, p.outcomes, event)
}

func (p *Publisher) publish(ctx context.Context, w messageWriter, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := w.WriteMessages(ctx, kafka.Message{Key: []byte(event.Type), Value: value}); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	p.logger.Debug("Published %s event %s", event.Type, event.ID)
	return nil
}

func (p *Publisher) Close() error {
	err := p.requests.Close()
	if cerr := p.outcomes.Close(); err == nil {
		err = cerr
	}
	return err
}
