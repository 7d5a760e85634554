// Package worker hosts the asynq task handlers: per-operation processing,
// the finalizer join-point, and the archive task.
package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"pixtools/internal/broker"
	"pixtools/internal/jobstore"
	"pixtools/internal/objectstore"
	"pixtools/internal/tasks"
	"pixtools/internal/webhook"
)

// taskDispatcher is the subset of broker.AsynqDispatcher the task handlers
// depend on, narrowed to an interface so it can be faked in tests.
type taskDispatcher interface {
	EnqueueFinalize(ctx context.Context, jobID string, result tasks.FanOutResult) error
	EnqueueFanOutResult(ctx context.Context, jobID string, result tasks.FanOutResult) error
	EnqueueArchive(ctx context.Context, jobID string) error
}

// webhookDeliverer is the subset of webhook.Deliverer the finalizer
// depends on, narrowed so it can be faked in tests.
type webhookDeliverer interface {
	Deliver(ctx context.Context, target string, payload webhook.Payload) (webhook.Outcome, error)
}

// Server wires the asynq server to PixTools' task handlers.
type Server struct {
	srv        *asynq.Server
	rdb        *redis.Client
	dispatcher taskDispatcher
	store      jobstore.Store
	objects    objectstore.Gateway
	webhook    webhookDeliverer
	metrics    *metrics

	urlExpiry time.Duration
}

// Config bundles the worker server's tunables (spec §6).
type Config struct {
	RedisAddr                string
	StandardQueueConcurrency int
	MLQueueConcurrency       int
	PresignedURLExpiry       time.Duration
}

// NewServer builds the worker server. Concurrency is split across queues
// exactly as spec §4.5/§5 require: the ml queue is pinned to 1 so heavy
// inference never overlaps within a process.
func NewServer(cfg Config, dispatcher *broker.AsynqDispatcher, store jobstore.Store, objects objectstore.Gateway, deliverer *webhook.Deliverer) *Server {
	s := &Server{
		rdb:        redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}),
		dispatcher: dispatcher,
		store:      store,
		objects:    objects,
		webhook:    deliverer,
		metrics:    newMetrics(),
		urlExpiry:  cfg.PresignedURLExpiry,
	}

	s.srv = asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{
			Concurrency: cfg.StandardQueueConcurrency + cfg.MLQueueConcurrency,
			Queues: map[string]int{
				broker.QueueStandard: cfg.StandardQueueConcurrency,
				broker.QueueML:       cfg.MLQueueConcurrency,
			},
			GroupAggregator:  broker.Aggregator(),
			GroupGracePeriod: 2 * time.Second,
			GroupMaxDelay:    30 * time.Second,
			GroupMaxSize:     6, // spec §4.6: operations list is 1-6 items
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				if retried < maxRetry {
					return
				}
				s.deadLetter(ctx, task, err)
			}),
		},
	)

	return s
}

// Run starts serving the standard and ml_inference queues until the process
// is signaled to stop.
func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeProcessOperation, s.handleProcessOperation)
	mux.HandleFunc(tasks.TypeFinalize, s.handleFinalize)
	mux.HandleFunc(tasks.TypeArchive, s.handleArchive)
	return s.srv.Run(mux)
}

// Shutdown stops the server, letting in-flight tasks drain.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
	s.rdb.Close()
}
