package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"k8s.io/client-go/tools/leaderelection"

	"github.com/pepsico-ecommerce/dawdle/configs"
	"github.com/pepsico-ecommerce/dawdle/internal/k8s"
	"github.com/pepsico-ecommerce/dawdle/internal/logger"
	"github.com/pepsico-ecommerce/dawdle/internal/queue"
)

// Dispatcher turns received message bodies into application callbacks.
type Dispatcher interface {
	Dispatch(ctx context.Context, body []byte) error
}

// Poller drives a backend: one polling goroutine per queue, each
// receive batch dispatched through a bounded pool and then
// acknowledged as a whole. Retry policy for receive errors lives here,
// not in the backend.
type Poller struct {
	Backend    queue.Backend
	Dispatcher Dispatcher
	PoolSize   int
	RetryPause time.Duration
}

// StartLeaderElection runs the poller only while this instance holds
// the lease, so a FIFO queue has a single consumer across replicas.
func (p *Poller) StartLeaderElection(ctx context.Context) error {
	identity := configs.Env.PodName
	lock := k8s.GetLeaseLock(identity)

	electorConfig := leaderelection.LeaderElectionConfig{
		Lock:            lock,
		LeaseDuration:   15 * time.Second,
		RenewDeadline:   10 * time.Second,
		RetryPeriod:     2 * time.Second,
		ReleaseOnCancel: true,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(ctx context.Context) {
				logger.Info("Leader acquired, starting pollers")
				go p.Run(ctx)
			},
			OnStoppedLeading: func() {
				logger.Info("Lost leadership")
			},
			OnNewLeader: func(id string) {
				if id == identity {
					logger.Info("Current instance is the leader")
				} else {
					logger.Info("New leader elected: %s", id)
				}
			},
		},
	}

	elector, err := leaderelection.NewLeaderElector(electorConfig)
	if err != nil {
		return err
	}

	go elector.Run(ctx)
	return nil
}

// Run polls every queue of the backend until the context ends.
func (p *Poller) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, q := range p.Backend.Queues() {
		wg.Add(1)
		go func(q queue.QueueRef) {
			defer wg.Done()
			defer p.recoverWorker("pollQueue")
			p.pollQueue(ctx, q)
		}(q)
	}
	wg.Wait()
}

func (p *Poller) pollQueue(ctx context.Context, q queue.QueueRef) {
	logger.Info("Polling queue %s", q)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping polling loop for %s", q)
			return
		default:
		}

		messages, err := p.Backend.Receive(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("Failed to receive from %s: %s", q, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.retryPause()):
			}
			continue
		}

		p.processBatch(ctx, q, messages)
	}
}

// processBatch hands each message to the dispatcher through a bounded
// pool, then acknowledges the whole batch. Handler failures are logged
// and counted but do not hold the batch hostage: delivery here is
// at-most-once after receipt.
func (p *Poller) processBatch(ctx context.Context, q queue.QueueRef, messages []queue.Message) {
	pool := p.PoolSize
	if pool <= 0 {
		pool = 1
	}
	sem := make(chan struct{}, pool)

	var wg sync.WaitGroup
	for _, m := range messages {
		wg.Add(1)
		sem <- struct{}{}
		go func(m queue.Message) {
			defer wg.Done()
			defer func() { <-sem }()
			defer p.recoverWorker("dispatch")
			if err := p.Dispatcher.Dispatch(ctx, []byte(m.Body)); err != nil {
				logger.Error("Dispatch of message %s failed: %s", m.MessageID, err)
			}
		}(m)
	}
	wg.Wait()

	if err := p.Backend.Delete(ctx, q, messages); err != nil {
		logger.Error("Failed to delete batch on %s: %s", q, err)
	}
}

func (p *Poller) retryPause() time.Duration {
	if p.RetryPause > 0 {
		return p.RetryPause
	}
	return 5 * time.Second
}

func (p *Poller) recoverWorker(source string) {
	if r := recover(); r != nil {
		logger.Error("Worker panic in %s: %v\nStack: %s", source, r, string(debug.Stack()))
	}
}
