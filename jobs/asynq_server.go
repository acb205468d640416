package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/praxis-crm/praxis/internal/authz"
)

// Worker wraps the Asynq server.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Handlers  []TaskHandler
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}
	return &Worker{server: srv, mux: mux, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt, logger *slog.Logger) *Client {
	return &Client{client: asynq.NewClient(redisOpts), logger: logger}
}

// RecordDenied implements authz.DenialSink by enqueueing the sampled denial
// for the worker; the check path never waits on the audit store.
func (c *Client) RecordDenied(ctx context.Context, event authz.DeniedEvent) {
	task, err := NewPermissionDeniedTask(PermissionDeniedPayload{
		PrincipalID:   event.PrincipalID,
		Agent:         string(event.Agent),
		Operation:     string(event.Operation),
		Reason:        string(event.Reason),
		CorrelationID: event.CorrelationID,
		At:            event.At,
	})
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("build denied task", slog.Any("error", err))
		}
		return
	}
	if _, err := c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		if c.logger != nil {
			c.logger.Warn("enqueue denied task", slog.Any("error", err))
		}
	}
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

var _ authz.DenialSink = (*Client)(nil)
