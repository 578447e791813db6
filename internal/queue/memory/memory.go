package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pepsico-ecommerce/dawdle/internal/queue"
)

const maxBatchSize = 10

// Queue references exposed by the memory backend.
const (
	MessageQueue = queue.QueueRef("memory-messages")
	DelayQueue   = queue.QueueRef("memory-delayed")
)

// Backend is a channel-backed queue.Backend for tests and local runs.
// Messages are consumed on receive, so Delete is a no-op.
type Backend struct {
	messages chan queue.Message
	delayed  chan queue.Message
}

// New creates a memory backend with the given per-queue capacity.
func New(capacity int) *Backend {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Backend{
		messages: make(chan queue.Message, capacity),
		delayed:  make(chan queue.Message, capacity),
	}
}

// Init is a no-op.
func (b *Backend) Init(ctx context.Context) error {
	return nil
}

// Queues returns the message queue first and the delay queue last.
func (b *Backend) Queues() []queue.QueueRef {
	return []queue.QueueRef{MessageQueue, DelayQueue}
}

// Send enqueues messages in submission order.
func (b *Backend) Send(ctx context.Context, messages [][]byte) error {
	for _, message := range messages {
		id := uuid.NewString()
		m := queue.Message{MessageID: id, Body: string(message), ReceiptHandle: id}
		select {
		case b.messages <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// SendAfter makes the message visible on the delay queue once the
// delay elapses. A full delay queue drops its oldest entry rather than
// blocking the timer goroutine forever.
func (b *Backend) SendAfter(ctx context.Context, message []byte, delaySeconds int32) error {
	id := uuid.NewString()
	m := queue.Message{MessageID: id, Body: string(message), ReceiptHandle: id}
	time.AfterFunc(time.Duration(delaySeconds)*time.Second, func() {
		for {
			select {
			case b.delayed <- m:
				return
			default:
				select {
				case <-b.delayed:
				default:
				}
			}
		}
	})
	return nil
}

// Receive blocks until at least one message is available, then drains
// up to a batch without blocking further.
func (b *Backend) Receive(ctx context.Context, q queue.QueueRef) ([]queue.Message, error) {
	ch, err := b.channel(q)
	if err != nil {
		return nil, err
	}

	var messages []queue.Message
	select {
	case m := <-ch:
		messages = append(messages, m)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for len(messages) < maxBatchSize {
		select {
		case m := <-ch:
			messages = append(messages, m)
		default:
			return messages, nil
		}
	}
	return messages, nil
}

// Delete is a no-op: receiving already consumed the messages.
func (b *Backend) Delete(ctx context.Context, q queue.QueueRef, messages []queue.Message) error {
	_, err := b.channel(q)
	return err
}

func (b *Backend) channel(q queue.QueueRef) (chan queue.Message, error) {
	switch q {
	case MessageQueue:
		return b.messages, nil
	case DelayQueue:
		return b.delayed, nil
	default:
		return nil, fmt.Errorf("unknown queue %q", q)
	}
}
