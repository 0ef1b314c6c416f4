package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sealnote/transfer-service/internal/metrics"
)

const channelBuffer = 256

// ErrPoolClosed is returned by Do after Stop.
var ErrPoolClosed = errors.New("crypto pool closed")

type job struct {
	ctx  context.Context
	name string
	fn   func() error
	done chan error
}

// Pool runs CPU-bound work (key generation, note sealing) on a fixed set of
// workers so it never runs on the request-serving goroutines.
type Pool struct {
	jobs    chan job
	quit    chan struct{}
	wg      sync.WaitGroup
	stop    sync.Once
	workers int
	log     zerolog.Logger
}

// NewPool creates a Pool with numWorkers workers.
// If numWorkers <= 0, one worker per CPU is used.
func NewPool(numWorkers int, log zerolog.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &Pool{
		jobs:    make(chan job, channelBuffer),
		quit:    make(chan struct{}),
		workers: numWorkers,
		log:     log,
	}
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled
// or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
}

// Stop signals the workers to exit and waits for running jobs to finish.
func (p *Pool) Stop() {
	p.stop.Do(func() { close(p.quit) })
	p.wg.Wait()
}

// Do runs fn on a worker and waits for its result. A job whose context is
// cancelled while still queued is skipped and Do returns ctx.Err().
func (p *Pool) Do(ctx context.Context, name string, fn func() error) error {
	select {
	case <-p.quit:
		return ErrPoolClosed
	default:
	}

	j := job{ctx: ctx, name: name, fn: fn, done: make(chan error, 1)}
	select {
	case <-p.quit:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- j:
		metrics.CryptoQueueDepth.Inc()
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolClosed
	}
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		case j := <-p.jobs:
			metrics.CryptoQueueDepth.Dec()
			j.done <- p.run(id, j)
		}
	}
}

func (p *Pool) run(id int, j job) (err error) {
	if err := j.ctx.Err(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("job", j.name).Int("worker_id", id).Msg("crypto job panicked")
			err = fmt.Errorf("crypto job %s panicked: %v", j.name, r)
		}
	}()

	start := time.Now()
	err = j.fn()
	metrics.CryptoJobDuration.WithLabelValues(j.name).Observe(time.Since(start).Seconds())
	return err
}
