package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twelves/apiserver/config"
)

// ErrDiscard marks a message that can never be processed. Handlers wrap it to
// drop the message instead of requeueing it.
var ErrDiscard = errors.New("mq: discard message")

// Message is a broker-agnostic delivery.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. A non-nil error requeues the message unless it
// wraps ErrDiscard.
type Handler func(ctx context.Context, msg Message) error

// Backend is implemented by each supported broker.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// NewFromConfig connects to the broker named by cfg.Backend. It returns a nil
// Backend when no broker is configured.
func NewFromConfig(ctx context.Context, cfg config.MQConfig) (Backend, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		return NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		return NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unsupported mq backend %q", cfg.Backend)
	}
}

func requireChannel(backend, channel string) error {
	if strings.TrimSpace(channel) == "" {
		return fmt.Errorf("%s channel is required", backend)
	}
	return nil
}
