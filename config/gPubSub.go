package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// PubSubMessage is the event envelope published for every committed inventory document.
type PubSubMessage struct {
	ID              int       `json:"id"`
	DocumentId      int       `json:"document_id"`
	DocumentNumber  string    `json:"document_number"`
	TransactionType string    `json:"transaction_type"`
	Action          string    `json:"action"`
	DocumentDate    time.Time `json:"document_date"`
	Payload         []byte    `json:"payload"`
	CorrelationId   string    `json:"correlation_id"`
	UserId          *int      `json:"user_id,omitempty"`
}

// PubSubPublisher publishes document events to a single topic.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubClient creates a client using PUBSUB_CREDENTIALS_JSON when set,
// Application Default Credentials otherwise.
func NewPubSubClient(ctx context.Context, projectID string) (*pubsub.Client, error) {
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}
	credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON")

	var attempt int
	for {
		attempt++
		var (
			c   *pubsub.Client
			err error
		)
		if credJSON != "" {
			c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
		} else {
			c, err = pubsub.NewClient(ctx, projectID)
		}
		if err == nil {
			log.Printf("pubsub client ready (project_id=%s attempt=%d)", projectID, attempt)
			return c, nil
		}

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to init pubsub client (project_id=%s attempt=%d): %v; retrying in %s", projectID, attempt, err, sleep)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("init pubsub client: %w", errors.Join(ctx.Err(), err))
		case <-time.After(sleep):
		}
	}
}

// NewPubSubPublisher opens the topic named in s, creating it when missing.
func NewPubSubPublisher(ctx context.Context, s Settings) (*PubSubPublisher, error) {
	if s.PubSubTopic == "" {
		return nil, errors.New("PUBSUB_TOPIC is required")
	}
	c, err := NewPubSubClient(ctx, s.PubSubProjectID)
	if err != nil {
		return nil, err
	}
	t, err := CreateTopicIfNotExists(ctx, c, s.PubSubTopic)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return &PubSubPublisher{client: c, topic: t}, nil
}

func CreateTopicIfNotExists(ctx context.Context, c *pubsub.Client, topic string) (*pubsub.Topic, error) {
	if c == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	t := c.Topic(topic)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return t, nil
	}
	t, err = c.CreateTopic(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", topic, err)
	}
	return t, nil
}

// Publish blocks until the server acknowledges msg and returns its message ID.
func (p *PubSubPublisher) Publish(ctx context.Context, msg PubSubMessage) (string, error) {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: msgJSON,
		Attributes: map[string]string{
			"transaction_type": msg.TransactionType,
			"action":           msg.Action,
			"correlation_id":   msg.CorrelationId,
		},
	})
	return result.Get(ctx)
}

func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
