package sqs

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"github.com/pepsico-ecommerce/dawdle/internal/logger"
	"github.com/pepsico-ecommerce/dawdle/internal/metrics"
	"github.com/pepsico-ecommerce/dawdle/internal/queue"
)

const (
	// SQS caps send and delete batches at 10 entries.
	maxBatchSize = 10
	// All message-queue producers share one group so SQS serializes
	// delivery in arrival order.
	messageGroupID = "dawdle"
)

// API is the subset of the SQS client used by the backend. Tests
// substitute a stub for it.
type API interface {
	GetQueueUrl(ctx context.Context, params *awssqs.GetQueueUrlInput, optFns ...func(*awssqs.Options)) (*awssqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *awssqs.SendMessageBatchInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageBatchOutput, error)
	ReceiveMessage(ctx context.Context, params *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, params *awssqs.DeleteMessageBatchInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageBatchOutput, error)
}

// Options configures the SQS backend. MessageQueue must be a FIFO
// queue with content-based deduplication disabled; DelayQueue is a
// standard queue.
type Options struct {
	Region          string
	Endpoint        string // optional override, e.g. for localstack
	MessageQueue    string
	DelayQueue      string
	WaitTimeSeconds int32
	// ConnEvents optionally carries asynchronous transport disconnect
	// notifications. They are drained and discarded before every poll
	// so they cannot accumulate.
	ConnEvents <-chan error
}

// Backend implements queue.Backend over AWS SQS. It is a stateless
// facade over the SQS client: safe for concurrent use, no retries of
// its own.
type Backend struct {
	client          API
	messageQueue    string
	delayQueue      string
	waitTimeSeconds int32
	connEvents      <-chan error

	messageQueueURL string
	delayQueueURL   string
}

// New creates an SQS backend from shared AWS configuration.
func New(ctx context.Context, opts Options) (*Backend, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := awssqs.NewFromConfig(cfg, func(o *awssqs.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return NewWithClient(client, opts), nil
}

// NewWithClient creates an SQS backend around an existing client.
func NewWithClient(client API, opts Options) *Backend {
	wait := opts.WaitTimeSeconds
	if wait <= 0 {
		wait = 20
	}
	return &Backend{
		client:          client,
		messageQueue:    opts.MessageQueue,
		delayQueue:      opts.DelayQueue,
		waitTimeSeconds: wait,
		connEvents:      opts.ConnEvents,
	}
}

// Init resolves both queue URLs. It is idempotent: once resolved the
// URLs are immutable for the backend's lifetime.
func (b *Backend) Init(ctx context.Context) error {
	if b.messageQueueURL != "" && b.delayQueueURL != "" {
		return nil
	}
	messageURL, err := b.resolveQueueURL(ctx, b.messageQueue)
	if err != nil {
		return err
	}
	delayURL, err := b.resolveQueueURL(ctx, b.delayQueue)
	if err != nil {
		return err
	}
	b.messageQueueURL = messageURL
	b.delayQueueURL = delayURL
	return nil
}

func (b *Backend) resolveQueueURL(ctx context.Context, name string) (string, error) {
	out, err := b.client.GetQueueUrl(ctx, &awssqs.GetQueueUrlInput{
		QueueName: aws.String(name),
	})
	if err != nil {
		logger.Error("sqs queue %s: url resolution failed: %v", name, err)
		return "", err
	}
	return aws.ToString(out.QueueUrl), nil
}

// Queues returns the message queue first and the delay queue last.
func (b *Backend) Queues() []queue.QueueRef {
	return []queue.QueueRef{
		queue.QueueRef(b.messageQueueURL),
		queue.QueueRef(b.delayQueueURL),
	}
}

// Send enqueues messages onto the FIFO message queue. Each message
// gets a fresh deduplication id and the shared group id, so a retried
// submission within the dedup window is not enqueued twice and
// delivery order matches submission order.
func (b *Backend) Send(ctx context.Context, messages [][]byte) error {
	switch len(messages) {
	case 0:
		return nil
	case 1:
		return b.sendOne(ctx, messages[0])
	default:
		return b.sendBatch(ctx, messages)
	}
}

func (b *Backend) sendOne(ctx context.Context, message []byte) error {
	out, err := b.client.SendMessage(ctx, &awssqs.SendMessageInput{
		QueueUrl:               aws.String(b.messageQueueURL),
		MessageBody:            aws.String(string(message)),
		MessageDeduplicationId: aws.String(uuid.NewString()),
		MessageGroupId:         aws.String(messageGroupID),
	})
	if err != nil {
		metrics.SendFailures.Inc()
		logger.ErrorCtx(ctx, "sqs send to %s failed: %v (body=%s)", b.messageQueueURL, err, message)
		return err
	}
	metrics.SignalsSent.Inc()
	logger.DebugCtx(ctx, "sqs send to %s ok: id=%s body=%s", b.messageQueueURL, aws.ToString(out.MessageId), message)
	return nil
}

func (b *Backend) sendBatch(ctx context.Context, messages [][]byte) error {
	for start := 0; start < len(messages); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(messages) {
			end = len(messages)
		}
		chunk := messages[start:end]

		entries := make([]types.SendMessageBatchRequestEntry, len(chunk))
		for i, message := range chunk {
			entries[i] = types.SendMessageBatchRequestEntry{
				Id:                     aws.String(strconv.Itoa(i)),
				MessageBody:            aws.String(string(message)),
				MessageDeduplicationId: aws.String(uuid.NewString()),
				MessageGroupId:         aws.String(messageGroupID),
			}
		}

		out, err := b.client.SendMessageBatch(ctx, &awssqs.SendMessageBatchInput{
			QueueUrl: aws.String(b.messageQueueURL),
			Entries:  entries,
		})
		if err != nil {
			metrics.SendFailures.Inc()
			logger.ErrorCtx(ctx, "sqs batch send to %s failed: %v (%d messages)", b.messageQueueURL, err, len(chunk))
			return err
		}
		if len(out.Failed) > 0 {
			metrics.SendFailures.Inc()
			batchErr := batchError("send", start, out.Failed)
			logger.ErrorCtx(ctx, "sqs batch send to %s partially failed: %v", b.messageQueueURL, batchErr)
			return batchErr
		}
		metrics.SignalsSent.Add(float64(len(chunk)))
		logger.DebugCtx(ctx, "sqs batch send to %s ok: %d messages", b.messageQueueURL, len(chunk))
	}
	return nil
}

// SendAfter enqueues one message onto the delay queue with server-side
// delayed visibility. The delay queue is a plain at-least-once queue,
// so no deduplication or group id is attached. Delays beyond the SQS
// maximum (900s) are rejected by the transport, not clamped here.
func (b *Backend) SendAfter(ctx context.Context, message []byte, delaySeconds int32) error {
	out, err := b.client.SendMessage(ctx, &awssqs.SendMessageInput{
		QueueUrl:     aws.String(b.delayQueueURL),
		MessageBody:  aws.String(string(message)),
		DelaySeconds: delaySeconds,
	})
	if err != nil {
		metrics.SendFailures.Inc()
		logger.ErrorCtx(ctx, "sqs delayed send to %s failed: %v (delay=%ds body=%s)", b.delayQueueURL, err, delaySeconds, message)
		return err
	}
	metrics.SignalsSent.Inc()
	logger.DebugCtx(ctx, "sqs delayed send to %s ok: id=%s delay=%ds body=%s", b.delayQueueURL, aws.ToString(out.MessageId), delaySeconds, message)
	return nil
}

// Receive blocks until the queue yields at least one message or the
// transport fails. Empty long-poll results are re-polled immediately;
// the SQS wait time keeps the loop from spinning.
func (b *Backend) Receive(ctx context.Context, q queue.QueueRef) ([]queue.Message, error) {
	for {
		b.drainConnEvents()

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := b.client.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
			QueueUrl:            aws.String(string(q)),
			MaxNumberOfMessages: maxBatchSize,
			WaitTimeSeconds:     b.waitTimeSeconds,
		})
		if err != nil {
			logger.ErrorCtx(ctx, "sqs receive on %s failed: %v", q, err)
			return nil, err
		}
		if len(out.Messages) == 0 {
			metrics.EmptyPolls.Inc()
			logger.DebugCtx(ctx, "sqs receive on %s: no messages, polling again", q)
			continue
		}

		messages := make([]queue.Message, len(out.Messages))
		for i, m := range out.Messages {
			messages[i] = queue.Message{
				MessageID:     aws.ToString(m.MessageId),
				Body:          aws.ToString(m.Body),
				ReceiptHandle: aws.ToString(m.ReceiptHandle),
			}
		}
		metrics.MessagesReceived.Add(float64(len(messages)))
		metrics.ReceiveBatchSize.Observe(float64(len(messages)))
		logger.DebugCtx(ctx, "sqs receive on %s: %d messages", q, len(messages))
		return messages, nil
	}
}

// drainConnEvents discards transport disconnect notifications queued
// since the previous poll. The TLS client emits them asynchronously
// for closed long-poll connections; left unread they pile up without
// bound. The drain never blocks and never mutates the backend, so
// concurrent receivers stay lock-free.
func (b *Backend) drainConnEvents() {
	if b.connEvents == nil {
		return
	}
	for {
		select {
		case ev, ok := <-b.connEvents:
			if !ok {
				// Closed channel: nothing more will ever arrive.
				return
			}
			metrics.ConnEventsDrained.Inc()
			logger.Debug("discarded stale connection event: %v", ev)
		default:
			return
		}
	}
}

// Delete acknowledges received messages with one batch-delete call.
// Entry ids are the positions of the messages in the given list, used
// only to correlate per-entry results.
func (b *Backend) Delete(ctx context.Context, q queue.QueueRef, messages []queue.Message) error {
	if len(messages) == 0 {
		return nil
	}

	entries := make([]types.DeleteMessageBatchRequestEntry, len(messages))
	for i, m := range messages {
		entries[i] = types.DeleteMessageBatchRequestEntry{
			Id:            aws.String(strconv.Itoa(i)),
			ReceiptHandle: aws.String(m.ReceiptHandle),
		}
	}

	out, err := b.client.DeleteMessageBatch(ctx, &awssqs.DeleteMessageBatchInput{
		QueueUrl: aws.String(string(q)),
		Entries:  entries,
	})
	if err != nil {
		logger.ErrorCtx(ctx, "sqs batch delete on %s failed: %v (%d messages)", q, err, len(messages))
		return err
	}
	if len(out.Failed) > 0 {
		batchErr := batchError("delete", 0, out.Failed)
		logger.ErrorCtx(ctx, "sqs batch delete on %s partially failed: %v", q, batchErr)
		return batchErr
	}
	metrics.MessagesDeleted.Add(float64(len(messages)))
	logger.DebugCtx(ctx, "sqs batch delete on %s ok: %d messages", q, len(messages))
	return nil
}

// batchError converts per-entry transport failures into a
// queue.BatchError, mapping entry ids back to list positions.
func batchError(op string, offset int, failed []types.BatchResultErrorEntry) *queue.BatchError {
	batchErr := &queue.BatchError{Op: op}
	for _, f := range failed {
		index := -1
		if id, err := strconv.Atoi(aws.ToString(f.Id)); err == nil {
			index = offset + id
		}
		batchErr.Entries = append(batchErr.Entries, queue.BatchEntryError{
			Index:       index,
			Code:        aws.ToString(f.Code),
			Message:     aws.ToString(f.Message),
			SenderFault: f.SenderFault,
		})
	}
	return batchErr
}
