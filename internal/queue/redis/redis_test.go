package redis

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepsico-ecommerce/dawdle/internal/queue"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	mr := miniredis.RunT(t)
	return New(Options{
		Endpoint:     mr.Addr(),
		KeyPrefix:    "dawdle-",
		PollInterval: 10 * time.Millisecond,
	})
}

func TestQueuesOrder(t *testing.T) {
	b := New(Options{Endpoint: "localhost:6379", KeyPrefix: "dawdle-"})
	queues := b.Queues()
	require.Len(t, queues, 2)
	assert.Equal(t, queue.QueueRef("dawdle-messages"), queues[0])
	assert.Equal(t, queue.QueueRef("dawdle-delayed"), queues[1])
}

func TestNewDefaultsPollInterval(t *testing.T) {
	b := New(Options{Endpoint: "localhost:6379"})
	assert.Equal(t, 500*time.Millisecond, b.pollInterval)
}

func TestInitPingsServer(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.Init(context.Background()))
}

func TestSendReceivePreservesOrder(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Send(ctx, [][]byte{[]byte("one"), []byte("two"), []byte("three")}))

	messages, err := b.Receive(ctx, b.Queues()[0])
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "one", messages[0].Body)
	assert.Equal(t, "two", messages[1].Body)
	assert.Equal(t, "three", messages[2].Body)
	for _, m := range messages {
		assert.NotEmpty(t, m.MessageID)
	}

	require.NoError(t, b.Delete(ctx, b.Queues()[0], messages))
}

func TestReceiveRepollsUntilMessage(t *testing.T) {
	b := newTestBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = b.Send(context.Background(), [][]byte{[]byte("late")})
	}()

	messages, err := b.Receive(ctx, b.Queues()[0])
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "late", messages[0].Body)
}

func TestReceiveStopsOnContextCancel(t *testing.T) {
	b := newTestBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Receive(ctx, b.Queues()[0])
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSendAfterVisibleOnlyWhenDue(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	delayQueue := b.Queues()[1]

	require.NoError(t, b.SendAfter(ctx, []byte("not yet"), 60))

	shortCtx, shortCancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer shortCancel()
	_, err := b.Receive(shortCtx, delayQueue)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, b.SendAfter(ctx, []byte("due now"), 0))

	recvCtx, recvCancel := context.WithTimeout(ctx, 2*time.Second)
	defer recvCancel()
	messages, err := b.Receive(recvCtx, delayQueue)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "due now", messages[0].Body)

	// The undue message is still scheduled, not lost.
	remaining, err := b.client.ZCard(ctx, b.delayedKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)
}

// Competing consumers must not deliver the same delayed message twice:
// ZRem is the claim, and a loser skips the member.
func TestDelayedClaimIsExclusive(t *testing.T) {
	b := newTestBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const total = 30
	for i := 0; i < total; i++ {
		require.NoError(t, b.SendAfter(ctx, []byte("job"), 0))
	}

	var mu sync.Mutex
	claimed := make(map[string]int)
	count := 0

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				messages, err := b.Receive(ctx, b.Queues()[1])
				if err != nil {
					return
				}
				mu.Lock()
				for _, m := range messages {
					claimed[m.MessageID]++
					count++
				}
				done := count >= total
				mu.Unlock()
				if done {
					cancel()
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, total)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "message %s delivered %d times", id, n)
	}
}

func TestDecodeEnvelope(t *testing.T) {
	data, err := json.Marshal(envelope{ID: "id-1", Body: `{"name":"ping"}`})
	require.NoError(t, err)

	m := decode(string(data))
	assert.Equal(t, "id-1", m.MessageID)
	assert.Equal(t, `{"name":"ping"}`, m.Body)
	assert.Equal(t, "id-1", m.ReceiptHandle)
}

func TestDecodeFallsBackToRawBody(t *testing.T) {
	m := decode("plain payload")
	assert.Equal(t, "plain payload", m.Body)
	assert.Empty(t, m.MessageID)
}
