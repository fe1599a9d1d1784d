package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"raglab/internal/domain"
)

// Transport is the coordinator's view of the worker: a message channel in
// each direction. Responses is closed when the worker is gone.
type Transport interface {
	Submit(req Request) error
	Responses() <-chan Response
	Close() error
}

// Options sizes the worker's bounded channels.
type Options struct {
	QueueSize    int
	ResponseSize int
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 8
	}
	if o.ResponseSize <= 0 {
		o.ResponseSize = 64
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Worker runs a controller on one long-lived goroutine. Requests are
// processed one at a time and every response is sent in emission order.
type Worker struct {
	controller *Controller
	requests   chan Request
	responses  chan Response
	done       chan struct{}
	cancel     context.CancelFunc
	logger     *slog.Logger
	closeOnce  sync.Once
}

var _ Transport = (*Worker)(nil)

// Start spawns the worker. It stops when ctx is cancelled or Close is called.
func Start(ctx context.Context, c *Controller, opts Options) (*Worker, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: no controller", domain.ErrChannelInit)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelInit, err)
	}
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(ctx)
	w := &Worker{
		controller: c,
		requests:   make(chan Request, opts.QueueSize),
		responses:  make(chan Response, opts.ResponseSize),
		done:       make(chan struct{}),
		cancel:     cancel,
		logger:     opts.Logger,
	}
	go w.run(ctx)
	return w, nil
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.responses)
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.requests:
			w.process(ctx, req)
		}
	}
}

func (w *Worker) process(ctx context.Context, req Request) {
	emit := func(r Response) {
		select {
		case w.responses <- r:
		case <-ctx.Done():
		}
	}
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("embedding worker panic", "id", req.ID, "panic", p)
			emit(errorResponse(req, fmt.Errorf("%w: %v", domain.ErrEmbeddingCompute, p)))
		}
	}()
	w.logger.Debug("processing request", "id", req.ID, "kind", req.Kind, "items", len(req.Items))
	w.controller.Process(ctx, req, emit)
}

// ErrQueueFull is returned by Submit when the request queue has no room.
var ErrQueueFull = errors.New("worker queue full")

// Submit enqueues req without blocking.
func (w *Worker) Submit(req Request) error {
	select {
	case <-w.done:
		return fmt.Errorf("%w: worker stopped", domain.ErrChannelInit)
	default:
	}
	select {
	case w.requests <- req:
		return nil
	case <-w.done:
		return fmt.Errorf("%w: worker stopped", domain.ErrChannelInit)
	default:
		return ErrQueueFull
	}
}

// Responses delivers worker messages; it is closed when the worker stops.
func (w *Worker) Responses() <-chan Response {
	return w.responses
}

// Close stops the worker and waits for it to exit. The model handle is left
// intact so a new worker on the same controller reuses the loaded model.
func (w *Worker) Close() error {
	w.closeOnce.Do(w.cancel)
	<-w.done
	return nil
}
