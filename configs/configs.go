package configs

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config defines all environment variables and derived config for dawdle.
type Config struct {
	// Transformed time.Duration fields (not loaded from env directly)
	SqsWaitTimeDuration       time.Duration `env:"-"` // SQS long-poll wait (duration)
	RedisPollDuration         time.Duration `env:"-"` // Redis poll interval (duration)
	ReceiveRetryPauseDuration time.Duration `env:"-"` // Poller pause after receive errors (duration)

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	BackendType       string `env:"BACKEND_TYPE" envDefault:"sqs"`
	MessageQueueName  string `env:"MESSAGE_QUEUE_NAME" envDefault:"dawdle-messages.fifo"`
	DelayQueueName    string `env:"DELAY_QUEUE_NAME" envDefault:"dawdle-delay"`
	WorkerPoolSize    int    `env:"WORKER_POOL_SIZE" envDefault:"10"`
	MetricsListenAddr string `env:"METRICS_LISTEN_ADDR" envDefault:":8080"`

	AwsSqsRegion          string `env:"AWS_SQS_REGION"`
	AwsSqsEndpoint        string `env:"AWS_SQS_ENDPOINT"`
	AwsSqsWaitTimeSeconds int32  `env:"AWS_SQS_WAIT_TIME_SECONDS" envDefault:"20"`

	RedisEndpoint           string `env:"REDIS_ENDPOINT"`
	RedisDB                 int    `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix          string `env:"REDIS_KEY_PREFIX" envDefault:"dawdle-"`
	RedisPollIntervalMillis int    `env:"REDIS_POLL_INTERVAL_MS" envDefault:"500"`

	ReceiveRetryPauseSeconds int `env:"RECEIVE_RETRY_PAUSE_SECONDS" envDefault:"5"`

	EnableLeaderElection   bool   `env:"ENABLE_LEADER_ELECTION" envDefault:"false"`
	PodName                string `env:"POD_NAME"`
	PodNamespace           string `env:"POD_NAMESPACE"`
	LeaderElectionLockName string `env:"LEADER_ELECTION_LOCK_NAME" envDefault:"dawdle-poller-lock"`
}

// Env is the process-wide configuration, populated by Setup.
var Env Config

// Setup loads configuration from environment variables into Env.
func Setup() error {
	cfg, err := Parse()
	if err != nil {
		return err
	}
	Env = *cfg
	return nil
}

// Parse loads configuration from environment variables, validates and
// normalizes it.
func Parse() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.normalize()

	return &cfg, nil
}

// validate performs all required configuration checks.
func (c *Config) validate() error {
	switch c.BackendType {
	case "sqs", "redis", "memory":
	default:
		return errors.New("BACKEND_TYPE must be 'sqs', 'redis' or 'memory'")
	}

	if c.WorkerPoolSize <= 0 || c.WorkerPoolSize > 10 {
		return errors.New("WORKER_POOL_SIZE must be between 1 and 10")
	}

	if c.BackendType == "sqs" {
		if c.AwsSqsRegion == "" {
			return errors.New("AWS_SQS_REGION is required for SQS backend")
		}
		if c.AwsSqsWaitTimeSeconds <= 0 || c.AwsSqsWaitTimeSeconds > 20 {
			return errors.New("AWS_SQS_WAIT_TIME_SECONDS must be between 1 and 20")
		}
	}

	if c.BackendType == "redis" && c.RedisEndpoint == "" {
		return errors.New("REDIS_ENDPOINT is required for Redis backend")
	}

	if c.EnableLeaderElection {
		if c.PodName == "" || c.PodNamespace == "" {
			return errors.New("POD_NAME and POD_NAMESPACE are required for leader election")
		}
	}

	return nil
}

// normalize converts int values to duration and sets derived fields.
func (c *Config) normalize() {
	c.SqsWaitTimeDuration = time.Duration(c.AwsSqsWaitTimeSeconds) * time.Second
	c.RedisPollDuration = time.Duration(c.RedisPollIntervalMillis) * time.Millisecond
	c.ReceiveRetryPauseDuration = time.Duration(c.ReceiveRetryPauseSeconds) * time.Second
}
