package trafficfeeds

import (
	"context"
	"sync"
	"time"

	"github.com/caffe-ja/observer-platform/internal/app/metrics"
	"github.com/caffe-ja/observer-platform/internal/app/storage"
	"github.com/caffe-ja/observer-platform/internal/app/system"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

var _ system.Service = (*Refresher)(nil)

// Refresher periodically fetches conditions for active traffic feeds. When
// the provider fails, a parish fallback keeps snapshots flowing.
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

// NewRefresher creates a lifecycle-managed traffic refresher.
func NewRefresher(service *Service, stations storage.StationStore, log *logger.Logger) *Refresher {
	if log == nil {
		log = logger.NewDefault("trafficfeeds-runner")
	}
	return &Refresher{
		service:  service,
		stations: stations,
		log:      log,
		interval: time.Minute,
	}
}

// WithFetcher assigns the fetcher used to retrieve provider data.
func (r *Refresher) WithFetcher(fetcher Fetcher) {
	r.mu.Lock()
	r.fetcher = fetcher
	r.mu.Unlock()
}

func (r *Refresher) Name() string { return "traffic-refresher" }

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

	r.log.Info("traffic refresher started")
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

	r.log.Info("traffic refresher stopped")
	return nil
}

func (r *Refresher) tick(ctx context.Context) {
	if r.service == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	feeds, err := r.service.ListFeeds(ctx, "")
	if err != nil {
		r.log.WithError(err).Warn("traffic refresher tick failed")
		return
	}

	r.mu.Lock()
	fetcher := r.fetcher
	r.mu.Unlock()

	for _, feed := range feeds {
		if !feed.Active {
			continue
		}

		start := time.Now()
		st, err := r.stations.GetStation(ctx, feed.StationID)
		if err != nil {
			r.log.WithError(err).
				WithField("feed_id", feed.ID).
				Warn("traffic feed station lookup failed")
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
					WithField("feed_id", feed.ID).
					Warn("traffic fetch failed, using fallback")
			}
			obs = FallbackObservation(st.Parish)
			status = "fallback"
		}

		if _, err := r.service.RecordSnapshot(ctx, feed.ID, obs.Severity, obs.SpeedKmh, obs.DelayMinutes, obs.Source, time.Now()); err != nil {
			r.log.WithError(err).
				WithField("feed_id", feed.ID).
				Warn("record traffic snapshot failed")
			status = "error"
		}
		metrics.RecordFeedRefresh("traffic", status, time.Since(start))
	}
}
