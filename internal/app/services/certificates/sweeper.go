package certificates

import (
	"context"
	"sync"
	"time"

	"github.com/caffe-ja/observer-platform/internal/app/system"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

var _ system.Service = (*Sweeper)(nil)

// Sweeper periodically expires certificates past their validity window.
type Sweeper struct {
	service  *Service
	log      *logger.Logger
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewSweeper creates a lifecycle-managed certificate expiry sweeper.
func NewSweeper(service *Service, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("certificates-sweeper")
	}
	return &Sweeper{
		service:  service,
		log:      log,
		interval: time.Hour,
	}
}

func (s *Sweeper) Name() string { return "certificate-sweeper" }

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()

	s.log.Info("certificate sweeper started")
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("certificate sweeper stopped")
	return nil
}

func (s *Sweeper) tick(ctx context.Context) {
	if s.service == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.service.ExpireOverdue(ctx); err != nil {
		s.log.WithError(err).Warn("certificate sweep failed")
	}
}
