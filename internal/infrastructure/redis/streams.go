package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/starkville/storefront/internal/domain/transaction"
)

// DefaultTransactionStream is the stream transaction events are relayed on.
const DefaultTransactionStream = "storefront:transactions"

// StreamProducer relays committed transaction changes to a Redis stream so
// that processes other than the API (the audit worker) can follow them.
type StreamProducer struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

func NewStreamProducer(client redis.Cmdable, stream string) *StreamProducer {
	if stream == "" {
		stream = DefaultTransactionStream
	}
	return &StreamProducer{client: client, stream: stream, maxLen: 100_000}
}

// Stream returns the stream name events are written to.
func (p *StreamProducer) Stream() string { return p.stream }

// PublishTransactionEvent implements service.EventPublisher.
func (p *StreamProducer) PublishTransactionEvent(ctx context.Context, event transaction.Event) error {
	args, err := encodeTransactionEvent(p.stream, event)
	if err != nil {
		return err
	}
	args.MaxLen = p.maxLen
	args.Approx = true

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish transaction event: %w", err)
	}
	return nil
}

func encodeTransactionEvent(stream string, event transaction.Event) (*redis.XAddArgs, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"checkout_id": event.CheckoutID,
			"status":      string(event.Status),
			"payload":     string(payload),
			"timestamp":   time.Now().Unix(),
		},
	}, nil
}

// DecodeTransactionEvent parses a stream message written by StreamProducer.
func DecodeTransactionEvent(msg redis.XMessage) (transaction.Event, error) {
	var event transaction.Event
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return event, fmt.Errorf("message %s has no payload", msg.ID)
	}
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return event, fmt.Errorf("decode message %s: %w", msg.ID, err)
	}
	if event.CheckoutID == "" {
		return event, fmt.Errorf("message %s has no checkout id", msg.ID)
	}
	return event, nil
}

type StreamConsumer struct {
	client        redis.Cmdable
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client redis.Cmdable,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) Stream() string { return c.stream }

func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	// Create stream if it doesn't exist
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// No new messages
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var messages []redis.XMessage
	for _, s := range streams {
		messages = append(messages, s.Messages...)
	}
	return messages, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	err := c.client.XAck(ctx, c.stream, c.group, messageID).Err()
	if err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// ClaimStale takes over messages another consumer read but never acked.
func (c *StreamConsumer) ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error) {
	messages, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Start:    "0",
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}
	return messages, nil
}
