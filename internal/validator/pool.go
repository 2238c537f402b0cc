package validator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kamkard/gltfview/internal/fileset"
	"github.com/kamkard/gltfview/internal/logging"
	"github.com/kamkard/gltfview/internal/metrics"
	"github.com/kamkard/gltfview/internal/viewer"
)

// Handler receives every finished report.
type Handler func(ctx context.Context, r *Report)

type job struct {
	ticket   uint64
	siblings fileset.Set
	scene    *viewer.Scene
}

// Pool validates scenes on background workers and keeps the report of the
// most recently submitted scene.
type Pool struct {
	queue    chan job
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	workers  int
	handlers []Handler

	mu           sync.Mutex
	stopped      bool
	tickets      uint64
	latest       *Report
	latestTicket uint64
}

// NewPool creates a validation pool. Handlers run on the worker goroutine.
func NewPool(workers int, handlers ...Handler) *Pool {
	if workers <= 0 {
		workers = 2
	}
	return &Pool{
		queue:    make(chan job, 64),
		workers:  workers,
		handlers: handlers,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	logging.Info("validator pool started", zap.Int("workers", p.workers))
}

// Stop drains the queue and waits for the workers to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	logging.Info("validator pool stopped")
}

// Validate implements Validator. The display URL is not kept: it is released
// as soon as the load settles, so workers only read the parsed scene.
func (p *Pool) Validate(_ context.Context, _, _ string, siblings fileset.Set, scene *viewer.Scene) {
	if scene == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.tickets++
	j := job{ticket: p.tickets, siblings: siblings, scene: scene}

	select {
	case p.queue <- j:
	default:
		metrics.RecordValidation("dropped")
		logging.Warn("validator queue full, dropping", zap.String("scene", scene.ID))
	}
}

// Latest returns the report of the most recently submitted scene that has
// finished validating, or nil.
func (p *Pool) Latest() *Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for j := range p.queue {
		p.run(ctx, j)
	}
}

func (p *Pool) run(ctx context.Context, j job) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.RecordValidation("panic")
			logging.Error("validator panicked", zap.String("scene", j.scene.ID), zap.Any("panic", rec))
		}
	}()

	report := Check(j.scene, j.siblings)
	if report.Valid() {
		metrics.RecordValidation("valid")
	} else {
		metrics.RecordValidation("invalid")
	}

	p.mu.Lock()
	if j.ticket > p.latestTicket {
		p.latest = report
		p.latestTicket = j.ticket
	}
	p.mu.Unlock()

	logging.Info("validation finished",
		zap.String("scene", j.scene.ID),
		zap.Int("errors", report.NumErrors),
		zap.Int("warnings", report.NumWarnings),
		zap.Duration("duration", report.Duration))

	for _, h := range p.handlers {
		h(ctx, report)
	}
}

// Sync validates synchronously, for one-shot use without a pool.
type Sync struct {
	mu     sync.Mutex
	report *Report
}

// Validate implements Validator.
func (s *Sync) Validate(_ context.Context, _, _ string, siblings fileset.Set, scene *viewer.Scene) {
	if scene == nil {
		return
	}
	r := Check(scene, siblings)
	s.mu.Lock()
	s.report = r
	s.mu.Unlock()
}

// Latest returns the last report, or nil.
func (s *Sync) Latest() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}
