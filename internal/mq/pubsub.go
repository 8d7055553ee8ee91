package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/twelves/apiserver/config"
	"google.golang.org/api/option"
)

// PubSubClient maps channels to Pub/Sub topics. Each channel gets one
// subscription named channel+suffix, shared by all consumers.
type PubSubClient struct {
	client             *pubsub.Client
	subscriptionSuffix string
}

func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*PubSubClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub: new client: %w", err)
	}

	suffix := cfg.SubscriptionSuffix
	if suffix == "" {
		suffix = "-sub"
	}

	return &PubSubClient{
		client:             client,
		subscriptionSuffix: suffix,
	}, nil
}

// Publish waits for the server to acknowledge the message.
func (p *PubSubClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if err := requireChannel("pubsub", channel); err != nil {
		return "", err
	}

	topic, err := p.ensureTopic(ctx, channel)
	if err != nil {
		return "", err
	}
	id, err := topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("pubsub: publish to %s: %w", channel, err)
	}
	return id, nil
}

// Subscribe blocks receiving from the channel's subscription until ctx is done.
// Discarded messages are acked so they are not redelivered.
func (p *PubSubClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if err := requireChannel("pubsub", channel); err != nil {
		return err
	}

	topic, err := p.ensureTopic(ctx, channel)
	if err != nil {
		return err
	}

	subscriptionName := p.subscriptionName(channel)
	sub, err := p.ensureSubscription(ctx, subscriptionName, topic)
	if err != nil {
		return err
	}

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		err := handler(ctx, Message{
			ID:         msg.ID,
			Data:       msg.Data,
			Attributes: msg.Attributes,
		})
		if err != nil && !errors.Is(err, ErrDiscard) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (p *PubSubClient) Close() error {
	return p.client.Close()
}

func (p *PubSubClient) ensureTopic(ctx context.Context, name string) (*pubsub.Topic, error) {
	topic := p.client.Topic(name)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return p.client.CreateTopic(ctx, name)
	}
	return topic, nil
}

func (p *PubSubClient) ensureSubscription(ctx context.Context, name string, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	sub := p.client.Subscription(name)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return p.client.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{Topic: topic})
	}
	return sub, nil
}

func (p *PubSubClient) subscriptionName(channel string) string {
	if p.subscriptionSuffix == "" {
		return channel
	}
	return channel + p.subscriptionSuffix
}
