package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Deliverer sends one code to one destination.
type Deliverer interface {
	Deliver(ctx context.Context, destination, code string) error
}

// Config controls dispatcher buffering behavior.
type Config struct {
	Async      bool
	BufferSize int
	DropIfFull bool
	// Timeout bounds one background delivery. Zero means 30s.
	Timeout time.Duration
}

// Job is one pending delivery.
type Job struct {
	Destination string
	Code        string
	RequestID   string
}

// Dispatcher forwards jobs to a Deliverer.
//
// A nil *Dispatcher drops every job.
type Dispatcher struct {
	cfg       Config
	deliverer Deliverer
	logger    *slog.Logger
	onFailure func()
	ch        chan Job
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closeOnce sync.Once

	// mu is held shared by Submit across the closed check and the send, and exclusively by
	// Close, so no job lands in ch after the worker has drained it.
	mu     sync.RWMutex
	closed bool
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithFailureHook registers fn to run after each failed or dropped delivery.
func WithFailureHook(fn func()) Option {
	return func(d *Dispatcher) {
		d.onFailure = fn
	}
}

// NewDispatcher returns nil when deliverer is nil. In async mode it starts one worker
// goroutine that runs until Close.
func NewDispatcher(cfg Config, deliverer Deliverer, opts ...Option) *Dispatcher {
	if deliverer == nil {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	d := &Dispatcher{
		cfg:       cfg,
		deliverer: deliverer,
		logger:    slog.Default(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	if cfg.Async {
		d.ch = make(chan Job, cfg.BufferSize)
		d.wg.Add(1)
		go d.run()
	}

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case job := <-d.ch:
			d.deliverDetached(job)
		case <-d.done:
			for {
				select {
				case job := <-d.ch:
					d.deliverDetached(job)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliverDetached(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()
	d.deliver(ctx, job)
}

func (d *Dispatcher) deliver(ctx context.Context, job Job) {
	if err := d.deliverer.Deliver(ctx, job.Destination, job.Code); err != nil {
		d.failed.Add(1)
		d.logger.WarnContext(ctx, "reset code delivery failed",
			"email", job.Destination,
			"request_id", job.RequestID,
			"error", err,
		)
		if d.onFailure != nil {
			d.onFailure()
		}
	}
}

// Submit delivers job inline, or enqueues it in async mode. In async mode with DropIfFull a
// full buffer drops the job; otherwise Submit blocks until there is room or ctx ends. Jobs
// submitted after Close are dropped.
func (d *Dispatcher) Submit(ctx context.Context, job Job) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(ctx, job)
		return
	}

	if !d.cfg.Async {
		d.deliver(ctx, job)
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- job:
		default:
			d.drop(ctx, job)
		}
		return
	}

	select {
	case d.ch <- job:
	case <-ctx.Done():
		d.drop(ctx, job)
	}
}

func (d *Dispatcher) drop(ctx context.Context, job Job) {
	d.dropped.Add(1)
	d.logger.WarnContext(ctx, "reset code delivery dropped",
		"email", job.Destination,
		"request_id", job.RequestID,
	)
	if d.onFailure != nil {
		d.onFailure()
	}
}

// Close stops accepting jobs and waits for buffered ones to be delivered. It waits for
// Submit calls already in progress. It is idempotent.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.done)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

// Dropped returns how many jobs were discarded: buffer full, ctx ended while waiting, or
// submitted after Close.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed returns how many deliveries returned an error.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
