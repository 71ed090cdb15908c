// Package worker runs pipeline tasks in the background, detached from the requests that scheduled them
package worker

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/UnendingLoop/ImagePipeline/internal/model"
	"github.com/UnendingLoop/ImagePipeline/internal/mwlogger"
	"github.com/UnendingLoop/ImagePipeline/internal/pipeline"
)

type Runner interface {
	Run(ctx context.Context, task pipeline.Task) pipeline.Outcome
}

type job struct {
	ctx  context.Context
	task pipeline.Task
}

// Pool - фиксированное число воркеров, читающих задачи из общего канала
type Pool struct {
	runner  Runner
	workers int
	queue   chan job

	mu       sync.RWMutex // guards closed and the queue closing
	closed   bool
	closing  chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPool(runner Runner, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		runner:  runner,
		workers: workers,
		queue:   make(chan job, queueSize),
		closing: make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := range p.workers {
		p.wg.Add(1)
		go p.startWorker(i)
	}
	log.Printf("Started %d pipeline workers", p.workers)
}

// Submit enqueues one task. It blocks while the queue is full, until ctx is done or the pool is stopped.
// The run itself never inherits ctx cancellation, only its values.
func (p *Pool) Submit(ctx context.Context, task pipeline.Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return model.ErrPoolClosed
	}

	j := job{ctx: context.WithoutCancel(ctx), task: task}
	select {
	case p.queue <- j:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("task for image %d was not scheduled: %w", task.ImageID, ctx.Err())
	case <-p.closing:
		return model.ErrPoolClosed
	}
}

// Stop rejects new tasks, lets workers drain what is already queued and waits for them
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		// сначала будим заблокированных в Submit, иначе Lock не дождется их RUnlock
		close(p.closing)

		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		p.wg.Wait()
		log.Println("Pipeline workers stopped")
	})
}

func (p *Pool) startWorker(n int) {
	defer p.wg.Done()
	for j := range p.queue {
		p.process(n, j)
	}
}

func (p *Pool) process(n int, j job) {
	logger := mwlogger.LoggerFromContext(j.ctx).With().
		Int("worker", n).
		Int64("image_id", j.task.ImageID).
		Str("filename", j.task.Filename).
		Logger()
	ctx := mwlogger.WithLogger(j.ctx, logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Pipeline run crashed")
		}
	}()

	out := p.runner.Run(ctx, j.task)
	if out.Failed() {
		logger.Error().Err(out.Err).
			Str("stage", out.Stage).
			Str("rendition", out.Rendition).
			Str("state", string(out.State)).
			Msg("Pipeline run failed")
		return
	}
	logger.Info().Str("state", string(out.State)).Msg("Pipeline run finished")
}
