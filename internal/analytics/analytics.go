package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/twelves/apiserver/internal/mq"
)

const (
	defaultPublishTimeout = 3 * time.Second
	defaultQueueSize      = 256

	attrEvent  = "event"
	attrEntity = "entity_id"
)

// Event is the wire form of an analytics event.
type Event struct {
	ID         string         `json:"id"`
	EntityID   string         `json:"entityId"`
	Name       string         `json:"event"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Publisher is the part of an mq.Backend the sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Sink publishes analytics events to a broker from a background goroutine.
// Track never waits on the broker: events are dropped and logged when the
// queue is full. Delivery failures are logged and never returned.
type Sink struct {
	publisher Publisher
	channel   string
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan outbound
	done   chan struct{}
}

type outbound struct {
	event    string
	entityID string
	data     []byte
}

// NewSink returns a sink publishing to channel. A nil publisher makes the sink
// log events instead of shipping them.
func NewSink(publisher Publisher, channel string, logger *slog.Logger) *Sink {
	return newSink(publisher, channel, logger, defaultQueueSize)
}

func newSink(publisher Publisher, channel string, logger *slog.Logger, size int) *Sink {
	s := &Sink{
		publisher: publisher,
		channel:   channel,
		logger:    logger,
		timeout:   defaultPublishTimeout,
		now:       time.Now,
	}
	if publisher != nil {
		s.queue = make(chan outbound, size)
		s.done = make(chan struct{})
		go s.run()
	}
	return s
}

// Track queues an event about entityID for publishing.
func (s *Sink) Track(ctx context.Context, entityID, event string, payload map[string]any) {
	evt := Event{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		Name:       event,
		Payload:    payload,
		OccurredAt: s.now().UTC(),
	}

	if s.publisher == nil {
		s.logger.InfoContext(ctx, "analytics event", "event", event, "entity_id", entityID, "payload", payload)
		return
	}

	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.WarnContext(ctx, "analytics: encode event", "event", event, "entity_id", entityID, "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.WarnContext(ctx, "analytics: sink closed, dropping event", "event", event, "entity_id", entityID)
		return
	}
	select {
	case s.queue <- outbound{event: event, entityID: entityID, data: data}:
	default:
		s.logger.WarnContext(ctx, "analytics: queue full, dropping event", "event", event, "entity_id", entityID)
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for msg := range s.queue {
		s.publish(msg)
	}
}

func (s *Sink) publish(msg outbound) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.publisher.Publish(ctx, s.channel, msg.data, map[string]string{
		attrEvent:  msg.event,
		attrEntity: msg.entityID,
	}); err != nil {
		s.logger.Warn("analytics: publish event", "event", msg.event, "entity_id", msg.entityID, "error", err)
	}
}

// Close stops accepting events and waits until queued ones are published or
// ctx is done. It is safe to call more than once.
func (s *Sink) Close(ctx context.Context) error {
	if s.queue == nil {
		return nil
	}

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("analytics: drain queue: %w", ctx.Err())
	}
}

// Handler adapts fn into an mq.Handler decoding Events. Undecodable messages
// are discarded.
func Handler(fn func(ctx context.Context, evt Event) error) mq.Handler {
	return func(ctx context.Context, msg mq.Message) error {
		var evt Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			return fmt.Errorf("%w: decode event %s: %v", mq.ErrDiscard, msg.ID, err)
		}
		if evt.Name == "" {
			evt.Name = msg.Attributes[attrEvent]
		}
		if evt.EntityID == "" {
			evt.EntityID = msg.Attributes[attrEntity]
		}
		return fn(ctx, evt)
	}
}
