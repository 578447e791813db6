package queue

import (
	"context"
	"fmt"
	"strings"
)

// QueueRef identifies a queue managed by a backend. It is opaque to
// callers: for SQS it is a queue URL, for Redis a key name.
type QueueRef string

// Message is a delivered signal payload. ReceiptHandle is only set on
// received messages and is valid for that delivery attempt only.
type Message struct {
	MessageID     string // backend-assigned message id
	Body          string // serialized signal payload
	ReceiptHandle string // token required to acknowledge this delivery
}

// Backend defines the contract for a generic queue backend (SQS, Redis,
// memory). Callers obtain queue references from Queues: position 0 is
// the immediate message queue and the last entry is the delay queue.
type Backend interface {
	// Init performs idempotent setup (queue resolution, connectivity).
	// It must be called once before any other operation.
	Init(ctx context.Context) error
	// Queues returns all queues this backend manages, in stable order.
	Queues() []QueueRef
	// Send enqueues one or more messages onto the message queue with
	// FIFO, deduplicated semantics.
	Send(ctx context.Context, messages [][]byte) error
	// SendAfter enqueues a single message onto the delay queue, visible
	// no earlier than delaySeconds after a successful return.
	SendAfter(ctx context.Context, message []byte, delaySeconds int32) error
	// Receive blocks until at least one message is available on the
	// given queue or an error occurs. It never returns an empty slice
	// together with a nil error.
	Receive(ctx context.Context, queue QueueRef) ([]Message, error)
	// Delete acknowledges a batch of previously received messages so
	// they are not redelivered. Messages must be the exact values
	// returned by Receive.
	Delete(ctx context.Context, queue QueueRef, messages []Message) error
}

// BatchEntryError describes a single failed entry of a batch request.
// Index is the position of the entry in the submitted batch.
type BatchEntryError struct {
	Index       int
	Code        string
	Message     string
	SenderFault bool
}

// BatchError reports entries of a batch send or delete that the
// transport rejected while the request itself succeeded. Entries not
// listed were accepted.
type BatchError struct {
	Op      string // "send" or "delete"
	Entries []BatchEntryError
}

func (e *BatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s batch: %d failed entries:", e.Op, len(e.Entries))
	for _, entry := range e.Entries {
		fmt.Fprintf(&b, " [%d %s: %s]", entry.Index, entry.Code, entry.Message)
	}
	return b.String()
}
