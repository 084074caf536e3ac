package worker

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrDispatcherBusy is returned when the job queue is saturated; callers map
// it to a retry-later response.
var ErrDispatcherBusy = errors.New("dispatcher queue is full")

// Job is one unit of background work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// DispatcherConfig sizes the ingestion pool.
type DispatcherConfig struct {
	Workers   int
	QueueSize int
}

// Dispatcher fans jobs out to a fixed set of workers. Ingestion jobs are few
// and uniform, so there is no per-user fairness queue here.
type Dispatcher struct {
	jobQueue chan Job
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewDispatcher starts the worker pool.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 16
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		jobQueue: make(chan Job, queueSize),
		cancel:   cancel,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work(ctx)
	}
	return d
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-d.jobQueue:
			if !ok {
				return
			}
			if job.Run == nil {
				continue
			}
			if err := job.Run(ctx); err != nil {
				log.Printf("job %s failed: %v", job.Name, err)
			}
		}
	}
}

// Dispatch enqueues a job without blocking. The mutex is held across the
// send so Shutdown cannot close the queue between the closed check and the
// send; the send never blocks, so the critical section stays short.
func (d *Dispatcher) Dispatch(job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("dispatcher is shut down")
	}

	select {
	case d.jobQueue <- job:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

// Shutdown stops accepting jobs and waits for in-flight work, bounded by ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobQueue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}
