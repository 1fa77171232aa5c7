package weatherfeeds

import (
	"context"
	"sync"
	"time"

	"github.com/caffe-ja/observer-platform/internal/app/domain/station"
	"github.com/caffe-ja/observer-platform/internal/app/metrics"
	"github.com/caffe-ja/observer-platform/internal/app/storage"
	"github.com/caffe-ja/observer-platform/internal/app/system"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

var _ system.Service = (*Refresher)(nil)

// Refresher periodically fetches weather for stations with an enabled
// weather monitor target.
type Refresher struct {
	service  *Service
	stations storage.StationStore
	log      *logger.Logger
	interval time.Duration
	fetcher  Fetcher

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRefresher creates a lifecycle-managed weather refresher.
func NewRefresher(service *Service, stations storage.StationStore, log *logger.Logger) *Refresher {
	if log == nil {
		log = logger.NewDefault("weatherfeeds-runner")
	}
	return &Refresher{
		service:  service,
		stations: stations,
		log:      log,
		interval: 5 * time.Minute,
	}
}

// WithFetcher assigns the fetcher used to retrieve provider data.
func (r *Refresher) WithFetcher(fetcher Fetcher) {
	r.mu.Lock()
	r.fetcher = fetcher
	r.mu.Unlock()
}

func (r *Refresher) Name() string { return "weather-refresher" }

func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.tick(runCtx)
			}
		}
	}()

	r.log.Info("weather refresher started")
	return nil
}

func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.log.Info("weather refresher stopped")
	return nil
}

func (r *Refresher) tick(ctx context.Context) {
	if r.service == nil || r.stations == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	targets, err := r.stations.ListMonitorTargets(ctx, "", station.TargetWeather)
	if err != nil {
		r.log.WithError(err).Warn("weather refresher tick failed")
		return
	}

	r.mu.Lock()
	fetcher := r.fetcher
	r.mu.Unlock()

	for _, target := range targets {
		if !target.Enabled {
			continue
		}

		start := time.Now()
		st, err := r.stations.GetStation(ctx, target.StationID)
		if err != nil {
			r.log.WithError(err).
				WithField("target_id", target.ID).
				Warn("weather target station lookup failed")
			continue
		}

		var obs Observation
		status := "ok"
		if fetcher != nil {
			obs, err = fetcher.Fetch(ctx, st)
		}
		if fetcher == nil || err != nil {
			if err != nil {
				r.log.WithError(err).
					WithField("station_id", st.ID).
					Warn("weather fetch failed, using fallback")
			}
			obs = FallbackObservation()
			status = "fallback"
		}

		if _, err := r.service.RecordSnapshot(ctx, st.ID, obs.Condition, obs.TempC, obs.RainProbability, obs.WindKmh, obs.Source, time.Now()); err != nil {
			r.log.WithError(err).
				WithField("station_id", st.ID).
				Warn("record weather snapshot failed")
			status = "error"
		}
		metrics.RecordFeedRefresh("weather", status, time.Since(start))
	}
}
