package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/caffe-ja/observer-platform/internal/app/metrics"
	"github.com/caffe-ja/observer-platform/internal/app/system"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

var _ system.Service = (*Dispatcher)(nil)

// Dispatcher periodically inspects pending analysis requests and forwards
// them to the configured resolver. Requests that keep failing are completed
// with a static fallback document instead of staying queued forever.
type Dispatcher struct {
	service  *Service
	log      *logger.Logger
	interval time.Duration
	resolver Resolver

	maxAttempts int

	mu          sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	nextAttempt map[string]time.Time
	attempts    map[string]int
}

// NewDispatcher constructs a lifecycle-managed analysis dispatcher.
func NewDispatcher(service *Service, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("analysis-dispatcher")
	}
	return &Dispatcher{
		service:     service,
		log:         log,
		interval:    15 * time.Second,
		maxAttempts: 3,
		nextAttempt: make(map[string]time.Time),
		attempts:    make(map[string]int),
	}
}

// WithResolver overrides the default resolver.
func (d *Dispatcher) WithResolver(resolver Resolver) {
	d.mu.Lock()
	d.resolver = resolver
	d.mu.Unlock()
}

func (d *Dispatcher) Name() string { return "analysis-dispatcher" }

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				d.tick(runCtx)
			}
		}
	}()

	d.log.Info("analysis dispatcher started")
	return nil
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.log.Info("analysis dispatcher stopped")
	return nil
}

func (d *Dispatcher) tick(ctx context.Context) {
	if d.service == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()

	reqs, err := d.service.ListPending(ctx)
	if err != nil {
		d.log.WithError(err).Warn("analysis dispatcher tick failed")
		return
	}

	now := time.Now()
	for _, req := range reqs {
		if !d.shouldAttempt(req.ID, now) {
			continue
		}
		d.process(ctx, req.ID)
	}
}

func (d *Dispatcher) process(ctx context.Context, id string) {
	req, err := d.service.MarkRunning(ctx, id)
	if err != nil {
		d.log.WithError(err).
			WithField("request_id", id).
			Warn("mark analysis request running failed")
		d.scheduleNext(id)
		return
	}

	d.mu.Lock()
	resolver := d.resolver
	d.mu.Unlock()

	started := time.Now()
	var result string
	if resolver != nil {
		result, err = resolver.Resolve(ctx, req)
	}

	if resolver == nil || err != nil {
		if err != nil {
			d.log.WithError(err).
				WithField("request_id", id).
				WithField("kind", string(req.Kind)).
				Warn("analysis resolver error")
		}
		if d.recordAttempt(id) < d.maxAttempts {
			if _, reErr := d.service.Requeue(ctx, id, errText(err)); reErr != nil {
				d.log.WithError(reErr).
					WithField("request_id", id).
					Warn("requeue analysis request failed")
			}
			d.scheduleNext(id)
			metrics.RecordAnalysisRun(string(req.Kind), "retry", time.Since(started))
			return
		}

		// Attempts exhausted. Ship the static fallback so the caller
		// still gets an answer.
		if _, err := d.service.Complete(ctx, id, FallbackResult(req)); err != nil {
			d.log.WithError(err).
				WithField("request_id", id).
				Warn("complete analysis request with fallback failed")
			d.scheduleNext(id)
			return
		}
		metrics.RecordAnalysisRun(string(req.Kind), "fallback", time.Since(started))
		d.clearSchedule(id)
		return
	}

	if _, err := d.service.Complete(ctx, id, result); err != nil {
		d.log.WithError(err).
			WithField("request_id", id).
			Warn("complete analysis request failed")
		d.scheduleNext(id)
		return
	}
	metrics.RecordAnalysisRun(string(req.Kind), "ok", time.Since(started))
	d.clearSchedule(id)
}

func (d *Dispatcher) shouldAttempt(id string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	next, ok := d.nextAttempt[id]
	if !ok || now.After(next) {
		return true
	}
	return false
}

func (d *Dispatcher) scheduleNext(id string) {
	d.mu.Lock()
	d.nextAttempt[id] = time.Now().Add(d.interval)
	d.mu.Unlock()
}

func (d *Dispatcher) recordAttempt(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts[id]++
	return d.attempts[id]
}

func (d *Dispatcher) clearSchedule(id string) {
	d.mu.Lock()
	delete(d.nextAttempt, id)
	delete(d.attempts, id)
	d.mu.Unlock()
}

func errText(err error) string {
	if err == nil {
		return "no resolver configured"
	}
	return err.Error()
}
