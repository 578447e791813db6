package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSqsBackend(t *testing.T) {
	t.Setenv("BACKEND_TYPE", "sqs")
	t.Setenv("AWS_SQS_REGION", "eu-west-1")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "sqs", cfg.BackendType)
	assert.Equal(t, "dawdle-messages.fifo", cfg.MessageQueueName)
	assert.Equal(t, "dawdle-delay", cfg.DelayQueueName)
	assert.Equal(t, 20*time.Second, cfg.SqsWaitTimeDuration)
	assert.Equal(t, 5*time.Second, cfg.ReceiveRetryPauseDuration)
}

func TestParseSqsRequiresRegion(t *testing.T) {
	t.Setenv("BACKEND_TYPE", "sqs")
	t.Setenv("AWS_SQS_REGION", "")

	_, err := Parse()
	assert.Error(t, err)
}

func TestParseRejectsUnknownBackend(t *testing.T) {
	t.Setenv("BACKEND_TYPE", "kafka")

	_, err := Parse()
	assert.Error(t, err)
}

func TestParseRedisRequiresEndpoint(t *testing.T) {
	t.Setenv("BACKEND_TYPE", "redis")
	t.Setenv("REDIS_ENDPOINT", "")

	_, err := Parse()
	assert.Error(t, err)
}

func TestParseWorkerPoolBounds(t *testing.T) {
	t.Setenv("BACKEND_TYPE", "memory")
	t.Setenv("WORKER_POOL_SIZE", "11")

	_, err := Parse()
	assert.Error(t, err)
}

func TestParseLeaderElectionRequiresPodIdentity(t *testing.T) {
	t.Setenv("BACKEND_TYPE", "memory")
	t.Setenv("ENABLE_LEADER_ELECTION", "true")

	_, err := Parse()
	assert.Error(t, err)

	t.Setenv("POD_NAME", "dawdle-0")
	t.Setenv("POD_NAMESPACE", "queues")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.True(t, cfg.EnableLeaderElection)
}

func TestParseNormalizesDurations(t *testing.T) {
	t.Setenv("BACKEND_TYPE", "redis")
	t.Setenv("REDIS_ENDPOINT", "localhost:6379")
	t.Setenv("REDIS_POLL_INTERVAL_MS", "250")
	t.Setenv("RECEIVE_RETRY_PAUSE_SECONDS", "3")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.RedisPollDuration)
	assert.Equal(t, 3*time.Second, cfg.ReceiveRetryPauseDuration)
}
