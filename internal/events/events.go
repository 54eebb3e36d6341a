// Package events carries committed transfers from the request path to the
// notification worker over a Redis list.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/wallet-transfer/internal/domain"
	"github.com/ayo6706/wallet-transfer/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultQueue is the Redis list transfer events are pushed to.
const DefaultQueue = "transfer_events"

// TransferEvent is the wire form of a committed transfer.
type TransferEvent struct {
	TransferID        uuid.UUID `json:"transfer_id"`
	SenderAccountID   uuid.UUID `json:"sender_account_id"`
	ReceiverAccountID uuid.UUID `json:"receiver_account_id"`
	Amount            string    `json:"amount"`
	Currency          string    `json:"currency"`
	Status            string    `json:"status"`
	Strategy          string    `json:"strategy"`
	OccurredAt        time.Time `json:"occurred_at"`
	Attempts          int       `json:"attempts,omitempty"`
}

func NewTransferEvent(rec models.TransferRecord) TransferEvent {
	return TransferEvent{
		TransferID:        rec.ID,
		SenderAccountID:   rec.SenderAccountID,
		ReceiverAccountID: rec.ReceiverAccountID,
		Amount:            domain.FormatAmount(rec.Amount),
		Currency:          rec.Currency,
		Status:            rec.Status,
		Strategy:          rec.Strategy,
		OccurredAt:        rec.CreatedAt,
	}
}

// Publisher pushes events onto the head of the queue.
type Publisher struct {
	client redis.Cmdable
	queue  string
}

func NewPublisher(client redis.Cmdable, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Publisher{client: client, queue: queue}
}

// Publish enqueues rec. Call it only after the transfer has committed.
func (p *Publisher) Publish(ctx context.Context, rec models.TransferRecord) error {
	return p.push(ctx, NewTransferEvent(rec))
}

// Requeue puts ev back at the head of the queue with its attempt count bumped.
func (p *Publisher) Requeue(ctx context.Context, ev TransferEvent) error {
	ev.Attempts++
	return p.push(ctx, ev)
}

func (p *Publisher) push(ctx context.Context, ev TransferEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal transfer event: %w", err)
	}
	if err := p.client.LPush(ctx, p.queue, payload).Err(); err != nil {
		return fmt.Errorf("publish transfer event %s: %w", ev.TransferID, err)
	}
	return nil
}

// Consumer pops events from the tail of the queue, oldest first.
type Consumer struct {
	client redis.Cmdable
	queue  string
	logger *zap.Logger
}

func NewConsumer(client redis.Cmdable, queue string, logger *zap.Logger) *Consumer {
	if queue == "" {
		queue = DefaultQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{client: client, queue: queue, logger: logger}
}

// Pop removes up to n events. Payloads that do not decode are logged and
// dropped.
func (c *Consumer) Pop(ctx context.Context, n int) ([]TransferEvent, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := c.client.RPopCount(ctx, c.queue, n).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("pop transfer events: %w", err)
	}

	out := make([]TransferEvent, 0, len(raw))
	for _, payload := range raw {
		var ev TransferEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			c.logger.Warn("dropping malformed transfer event", zap.Error(err), zap.String("payload", payload))
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// Len reports the current queue depth.
func (c *Consumer) Len(ctx context.Context) (int64, error) {
	return c.client.LLen(ctx, c.queue).Result()
}
