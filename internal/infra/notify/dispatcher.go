package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/beridzemate00/codereview/internal/core/port"
)

const (
	defaultWorkers    = 4
	defaultQueueSize  = 256
	defaultJobTimeout = 10 * time.Second
)

// ErrDispatcherClosed is returned by Close when called twice.
var ErrDispatcherClosed = errors.New("dispatcher already closed")

// DropRecorder counts jobs that could not be queued.
type DropRecorder interface {
	NotificationDropped()
}

type job struct {
	name string
	fn   func(ctx context.Context) error
}

// Dispatcher runs detached jobs on a fixed pool of workers fed by a
// bounded queue. Submit never blocks.
type Dispatcher struct {
	logger  *zap.Logger
	drops   DropRecorder
	timeout time.Duration

	queue chan job
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// DispatcherOptions sizes the pool.
type DispatcherOptions struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	Drops      DropRecorder
}

// NewDispatcher starts the workers.
func NewDispatcher(opts DispatcherOptions, logger *zap.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		logger:  logger,
		drops:   opts.Drops,
		timeout: opts.JobTimeout,
		queue:   make(chan job, opts.QueueSize),
	}

	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.work()
	}

	return d
}

// Submit enqueues fn and reports whether it was accepted. A full queue or
// a closed dispatcher drops the job.
func (d *Dispatcher) Submit(name string, fn func(ctx context.Context) error) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped(name, "closed")
		return false
	}

	select {
	case d.queue <- job{name: name, fn: fn}:
		return true
	default:
		d.dropped(name, "queue full")
		return false
	}
}

func (d *Dispatcher) dropped(name, reason string) {
	d.logger.Warn("background job dropped", zap.String("job", name), zap.String("reason", reason))
	if d.drops != nil {
		d.drops.NotificationDropped()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		d.run(j)
	}
}

func (d *Dispatcher) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("background job panicked", zap.String("job", j.name), zap.Any("panic", r))
		}
	}()

	if err := j.fn(ctx); err != nil {
		d.logger.Error("background job failed", zap.String("job", j.name), zap.Error(err))
	}
}

// Close stops accepting jobs and waits for queued ones to finish or ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain background jobs: %w", ctx.Err())
	}
}

var _ port.BackgroundRunner = (*Dispatcher)(nil)
