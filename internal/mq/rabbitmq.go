package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/twelves/apiserver/config"
)

// RabbitMQClient publishes JSON messages to RabbitMQ. With an exchange
// configured, messages are routed through a topic exchange keyed by channel;
// otherwise they go straight to the queue named after the channel.
type RabbitMQClient struct {
	conn            *amqp.Connection
	channel         *amqp.Channel
	exchange        string
	queueDurable    bool
	queueAutoDelete bool
}

func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}

	closeAll := func(err error) (*RabbitMQClient, error) {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	if cfg.PrefetchCount > 0 {
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			return closeAll(fmt.Errorf("rabbitmq: qos: %w", err))
		}
	}

	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return closeAll(fmt.Errorf("rabbitmq: declare exchange %s: %w", cfg.Exchange, err))
		}
	}

	return &RabbitMQClient{
		conn:            conn,
		channel:         ch,
		exchange:        cfg.Exchange,
		queueDurable:    cfg.QueueDurable,
		queueAutoDelete: cfg.QueueAutoDelete,
	}, nil
}

func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if err := requireChannel("rabbitmq", channel); err != nil {
		return "", err
	}
	if r.exchange == "" {
		if _, err := r.declareQueue(channel); err != nil {
			return "", err
		}
	}

	headers := amqp.Table{}
	for key, value := range attrs {
		headers[key] = value
	}

	messageID := uuid.NewString()
	err := r.channel.PublishWithContext(ctx, r.exchange, channel, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Headers:      headers,
		Body:         data,
	})
	if err != nil {
		return "", fmt.Errorf("rabbitmq: publish to %s: %w", channel, err)
	}
	return messageID, nil
}

// Subscribe blocks consuming the channel's queue until ctx is done.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if err := requireChannel("rabbitmq", channel); err != nil {
		return err
	}

	queue, err := r.declareQueue(channel)
	if err != nil {
		return err
	}
	if r.exchange != "" {
		if err := r.channel.QueueBind(queue.Name, channel, r.exchange, false, nil); err != nil {
			return fmt.Errorf("rabbitmq: bind %s: %w", queue.Name, err)
		}
	}

	consumerTag := "consumer-" + uuid.NewString()
	deliveries, err := r.channel.Consume(queue.Name, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume %s: %w", queue.Name, err)
	}
	defer func() {
		_ = r.channel.Cancel(consumerTag, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			err := handler(ctx, Message{
				ID:         delivery.MessageId,
				Data:       delivery.Body,
				Attributes: headersToAttributes(delivery.Headers),
			})
			switch {
			case err == nil:
				_ = delivery.Ack(false)
			case errors.Is(err, ErrDiscard):
				_ = delivery.Nack(false, false)
			default:
				_ = delivery.Nack(false, true)
			}
		}
	}
}

func (r *RabbitMQClient) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *RabbitMQClient) declareQueue(name string) (amqp.Queue, error) {
	queue, err := r.channel.QueueDeclare(name, r.queueDurable, r.queueAutoDelete, false, false, nil)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("rabbitmq: declare queue %s: %w", name, err)
	}
	return queue, nil
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}
