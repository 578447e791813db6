package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pepsico-ecommerce/dawdle/internal/logger"
	"github.com/pepsico-ecommerce/dawdle/internal/metrics"
	"github.com/pepsico-ecommerce/dawdle/internal/queue"
)

const maxBatchSize = 10

// envelope is the stored form of a message. The id keeps sorted-set
// members unique and doubles as the message id on receive.
type envelope struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

// Backend implements queue.Backend on Redis: the message queue is a
// list (RPUSH/LPOP keeps FIFO order), the delay queue a sorted set
// scored by ready-at time and promoted on receive. Popping consumes
// the message, so Delete is a no-op.
type Backend struct {
	client       *redis.Client
	messageKey   string
	delayedKey   string
	pollInterval time.Duration
}

// Options configures the Redis backend.
type Options struct {
	Endpoint     string
	DB           int
	KeyPrefix    string
	PollInterval time.Duration
}

// New creates a Redis backend.
func New(opts Options) *Backend {
	client := redis.NewClient(&redis.Options{
		Addr: opts.Endpoint,
		DB:   opts.DB,
	})
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &Backend{
		client:       client,
		messageKey:   opts.KeyPrefix + "messages",
		delayedKey:   opts.KeyPrefix + "delayed",
		pollInterval: poll,
	}
}

// Init verifies connectivity. Keys need no provisioning.
func (b *Backend) Init(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed: %v", err)
		return err
	}
	return nil
}

// Queues returns the message queue first and the delay queue last.
func (b *Backend) Queues() []queue.QueueRef {
	return []queue.QueueRef{
		queue.QueueRef(b.messageKey),
		queue.QueueRef(b.delayedKey),
	}
}

// Send pushes messages onto the list in submission order. A single
// consumer popping from the head preserves FIFO; Redis has no enqueue
// retry, so no deduplication ids are needed here.
func (b *Backend) Send(ctx context.Context, messages [][]byte) error {
	values := make([]any, 0, len(messages))
	for _, message := range messages {
		data, err := json.Marshal(envelope{ID: uuid.NewString(), Body: string(message)})
		if err != nil {
			return err
		}
		values = append(values, data)
	}
	if len(values) == 0 {
		return nil
	}
	if err := b.client.RPush(ctx, b.messageKey, values...).Err(); err != nil {
		metrics.SendFailures.Inc()
		logger.ErrorCtx(ctx, "redis send to %s failed: %v (%d messages)", b.messageKey, err, len(messages))
		return err
	}
	metrics.SignalsSent.Add(float64(len(messages)))
	logger.DebugCtx(ctx, "redis send to %s ok: %d messages", b.messageKey, len(messages))
	return nil
}

// SendAfter schedules one message in the sorted set, scored by the
// time it becomes visible.
func (b *Backend) SendAfter(ctx context.Context, message []byte, delaySeconds int32) error {
	data, err := json.Marshal(envelope{ID: uuid.NewString(), Body: string(message)})
	if err != nil {
		return err
	}
	readyAt := time.Now().Add(time.Duration(delaySeconds) * time.Second)
	err = b.client.ZAdd(ctx, b.delayedKey, redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: data,
	}).Err()
	if err != nil {
		metrics.SendFailures.Inc()
		logger.ErrorCtx(ctx, "redis delayed send to %s failed: %v (delay=%ds)", b.delayedKey, err, delaySeconds)
		return err
	}
	metrics.SignalsSent.Inc()
	logger.DebugCtx(ctx, "redis delayed send to %s ok: delay=%ds body=%s", b.delayedKey, delaySeconds, message)
	return nil
}

// Receive blocks until the queue yields at least one message, polling
// at the configured interval.
func (b *Backend) Receive(ctx context.Context, q queue.QueueRef) ([]queue.Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var (
			messages []queue.Message
			err      error
		)
		if string(q) == b.delayedKey {
			messages, err = b.popDue(ctx)
		} else {
			messages, err = b.popList(ctx, string(q))
		}
		if err != nil {
			logger.ErrorCtx(ctx, "redis receive on %s failed: %v", q, err)
			return nil, err
		}
		if len(messages) > 0 {
			metrics.MessagesReceived.Add(float64(len(messages)))
			metrics.ReceiveBatchSize.Observe(float64(len(messages)))
			logger.DebugCtx(ctx, "redis receive on %s: %d messages", q, len(messages))
			return messages, nil
		}

		metrics.EmptyPolls.Inc()
		logger.DebugCtx(ctx, "redis receive on %s: no messages, polling again", q)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.pollInterval):
		}
	}
}

func (b *Backend) popList(ctx context.Context, key string) ([]queue.Message, error) {
	var messages []queue.Message
	for i := 0; i < maxBatchSize; i++ {
		res, err := b.client.LPop(ctx, key).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return nil, err
		}
		messages = append(messages, decode(res))
	}
	return messages, nil
}

// popDue claims delayed messages whose score has passed. ZRem is the
// claim: a member already removed by a competing consumer is skipped.
func (b *Backend) popDue(ctx context.Context) ([]queue.Message, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := b.client.ZRangeByScore(ctx, b.delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: maxBatchSize,
	}).Result()
	if err != nil {
		return nil, err
	}

	var messages []queue.Message
	for _, member := range members {
		removed, err := b.client.ZRem(ctx, b.delayedKey, member).Result()
		if err != nil {
			return nil, err
		}
		if removed == 0 {
			continue
		}
		messages = append(messages, decode(member))
	}
	return messages, nil
}

func decode(data string) queue.Message {
	var e envelope
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		// Pre-envelope payloads pass through as-is.
		return queue.Message{Body: data}
	}
	return queue.Message{MessageID: e.ID, Body: e.Body, ReceiptHandle: e.ID}
}

// Delete is a no-op: popping already removed the messages.
func (b *Backend) Delete(ctx context.Context, q queue.QueueRef, messages []queue.Message) error {
	metrics.MessagesDeleted.Add(float64(len(messages)))
	logger.DebugCtx(ctx, "redis delete on %s: %d messages (already consumed)", q, len(messages))
	return nil
}
