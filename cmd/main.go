package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/pepsico-ecommerce/dawdle/configs"
	"github.com/pepsico-ecommerce/dawdle/internal/dispatch"
	httpserver "github.com/pepsico-ecommerce/dawdle/internal/http"
	"github.com/pepsico-ecommerce/dawdle/internal/k8s"
	"github.com/pepsico-ecommerce/dawdle/internal/logger"
	"github.com/pepsico-ecommerce/dawdle/internal/metrics"
	"github.com/pepsico-ecommerce/dawdle/internal/queue"
	"github.com/pepsico-ecommerce/dawdle/internal/queue/memory"
	redisqueue "github.com/pepsico-ecommerce/dawdle/internal/queue/redis"
	sqsqueue "github.com/pepsico-ecommerce/dawdle/internal/queue/sqs"
	"github.com/pepsico-ecommerce/dawdle/internal/worker"
)

func main() {
	if err := configs.Setup(); err != nil {
		log.Fatalf("unable to set config: %v", err)
	}

	if err := logger.Setup(configs.Env.LogLevel); err != nil {
		log.Fatalf("unable to set logger: %v", err)
	}

	metrics.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := newBackend(ctx)
	if err != nil {
		logger.Fatal("unable to create %s backend: %s", configs.Env.BackendType, err)
	}
	if err := backend.Init(ctx); err != nil {
		logger.Fatal("unable to init %s backend: %s", configs.Env.BackendType, err)
	}

	httpserver.StartHTTPServer(ctx, configs.Env.MetricsListenAddr)

	registry := dispatch.NewRegistry()
	registry.Register("ping", func(ctx context.Context, signal dispatch.Signal) error {
		logger.InfoCtx(ctx, "ping signal received: %s", signal.Payload)
		return nil
	})

	poller := &worker.Poller{
		Backend:    backend,
		Dispatcher: registry,
		PoolSize:   configs.Env.WorkerPoolSize,
		RetryPause: configs.Env.ReceiveRetryPauseDuration,
	}

	if configs.Env.EnableLeaderElection {
		if err := k8s.Setup(); err != nil {
			logger.Fatal("unable to set k8s: %s", err)
		}
		if err := poller.StartLeaderElection(ctx); err != nil {
			logger.Fatal("unable to start leader election: %s", err)
		}
		<-ctx.Done()
		return
	}

	poller.Run(ctx)
}

func newBackend(ctx context.Context) (queue.Backend, error) {
	switch configs.Env.BackendType {
	case "sqs":
		return sqsqueue.New(ctx, sqsqueue.Options{
			Region:          configs.Env.AwsSqsRegion,
			Endpoint:        configs.Env.AwsSqsEndpoint,
			MessageQueue:    configs.Env.MessageQueueName,
			DelayQueue:      configs.Env.DelayQueueName,
			WaitTimeSeconds: configs.Env.AwsSqsWaitTimeSeconds,
		})
	case "redis":
		return redisqueue.New(redisqueue.Options{
			Endpoint:     configs.Env.RedisEndpoint,
			DB:           configs.Env.RedisDB,
			KeyPrefix:    configs.Env.RedisKeyPrefix,
			PollInterval: configs.Env.RedisPollDuration,
		}), nil
	default:
		return memory.New(0), nil
	}
}
