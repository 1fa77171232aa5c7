package trafficfeeds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/caffe-ja/observer-platform/internal/app/domain/traffic"
	"github.com/caffe-ja/observer-platform/internal/app/storage"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

// Service manages traffic feeds and congestion snapshots.
type Service struct {
	store    storage.TrafficStore
	stations storage.StationStore
	cache    *Cache
	log      *logger.Logger
}

// New constructs a traffic feed service.
func New(store storage.TrafficStore, stations storage.StationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("trafficfeeds")
	}
	return &Service{
		store:    store,
		stations: stations,
		log:      log,
	}
}

// AttachCache wires the optional latest-snapshot cache.
func (s *Service) AttachCache(cache *Cache) {
	s.cache = cache
}

// CreateFeed registers a traffic monitor for a station.
func (s *Service) CreateFeed(ctx context.Context, stationID, interval string) (traffic.Feed, error) {
	stationID = strings.TrimSpace(stationID)
	interval = strings.TrimSpace(interval)

	if stationID == "" {
		return traffic.Feed{}, fmt.Errorf("station_id is required")
	}
	if interval == "" {
		interval = "@every 5m"
	}
	if _, err := cron.ParseStandard(interval); err != nil {
		return traffic.Feed{}, fmt.Errorf("invalid interval %q: %w", interval, err)
	}

	if s.stations != nil {
		if _, err := s.stations.GetStation(ctx, stationID); err != nil {
			return traffic.Feed{}, fmt.Errorf("station validation failed: %w", err)
		}
	}

	existing, err := s.store.ListTrafficFeeds(ctx, stationID)
	if err != nil {
		return traffic.Feed{}, err
	}
	if len(existing) > 0 {
		return traffic.Feed{}, fmt.Errorf("station %s already has a traffic feed", stationID)
	}

	feed := traffic.Feed{
		StationID: stationID,
		Interval:  interval,
		Active:    true,
	}
	feed, err = s.store.CreateTrafficFeed(ctx, feed)
	if err != nil {
		return traffic.Feed{}, err
	}
	s.log.WithField("feed_id", feed.ID).
		WithField("station_id", stationID).
		Info("traffic feed created")
	return feed, nil
}

// SetActive toggles a feed's active flag.
func (s *Service) SetActive(ctx context.Context, feedID string, active bool) (traffic.Feed, error) {
	feed, err := s.store.GetTrafficFeed(ctx, feedID)
	if err != nil {
		return traffic.Feed{}, err
	}
	if feed.Active == active {
		return feed, nil
	}

	feed.Active = active
	feed, err = s.store.UpdateTrafficFeed(ctx, feed)
	if err != nil {
		return traffic.Feed{}, err
	}
	s.log.WithField("feed_id", feed.ID).
		WithField("active", active).
		Info("traffic feed state changed")
	return feed, nil
}

// RecordSnapshot stores a congestion observation and refreshes the cache.
func (s *Service) RecordSnapshot(ctx context.Context, feedID string, severity traffic.Severity, speedKmh, delayMinutes float64, source string, collectedAt time.Time) (traffic.Snapshot, error) {
	if !traffic.ValidSeverity(severity) {
		return traffic.Snapshot{}, fmt.Errorf("invalid severity %q", severity)
	}
	if speedKmh < 0 || delayMinutes < 0 {
		return traffic.Snapshot{}, fmt.Errorf("speed and delay must not be negative")
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = "manual"
	}

	feed, err := s.store.GetTrafficFeed(ctx, feedID)
	if err != nil {
		return traffic.Snapshot{}, err
	}

	snap := traffic.Snapshot{
		FeedID:       feedID,
		Severity:     severity,
		SpeedKmh:     speedKmh,
		DelayMinutes: delayMinutes,
		Source:       source,
		CollectedAt:  collectedAt.UTC(),
	}
	if snap.CollectedAt.IsZero() {
		snap.CollectedAt = time.Now().UTC()
	}
	snap, err = s.store.CreateTrafficSnapshot(ctx, snap)
	if err != nil {
		return traffic.Snapshot{}, err
	}

	if s.cache != nil {
		if err := s.cache.SetLatest(ctx, snap, ttlForInterval(feed.Interval)); err != nil {
			s.log.WithError(err).WithField("feed_id", feedID).Debug("cache write failed")
		}
	}
	return snap, nil
}

// Latest returns the newest snapshot for a feed, preferring the cache.
func (s *Service) Latest(ctx context.Context, feedID string) (traffic.Snapshot, error) {
	if s.cache != nil {
		if snap, ok, err := s.cache.GetLatest(ctx, feedID); err == nil && ok {
			return snap, nil
		}
	}

	snaps, err := s.store.ListTrafficSnapshots(ctx, feedID)
	if err != nil {
		return traffic.Snapshot{}, err
	}
	if len(snaps) == 0 {
		return traffic.Snapshot{}, fmt.Errorf("no snapshots for feed %s", feedID)
	}
	return snaps[0], nil
}

// Summarize aggregates snapshots within the window ending now.
func (s *Service) Summarize(ctx context.Context, feedID string, window time.Duration) (traffic.Summary, error) {
	if window <= 0 {
		window = time.Hour
	}

	snaps, err := s.store.ListTrafficSnapshots(ctx, feedID)
	if err != nil {
		return traffic.Summary{}, err
	}

	end := time.Now().UTC()
	start := end.Add(-window)
	summary := traffic.Summary{
		FeedID:      feedID,
		WindowStart: start,
		WindowEnd:   end,
	}

	counts := make(map[traffic.Severity]int)
	var speedTotal float64
	for _, snap := range snaps {
		if snap.CollectedAt.Before(start) {
			continue
		}
		summary.Samples++
		speedTotal += snap.SpeedKmh
		if snap.DelayMinutes > summary.MaxDelayMinutes {
			summary.MaxDelayMinutes = snap.DelayMinutes
		}
		counts[snap.Severity]++
	}
	if summary.Samples > 0 {
		summary.AvgSpeedKmh = speedTotal / float64(summary.Samples)
	}

	best := 0
	for severity, count := range counts {
		if count > best {
			best = count
			summary.DominantSeverity = severity
		}
	}
	return summary, nil
}

// GetFeed retrieves a feed by identifier.
func (s *Service) GetFeed(ctx context.Context, feedID string) (traffic.Feed, error) {
	return s.store.GetTrafficFeed(ctx, feedID)
}

// ListFeeds returns feeds, optionally filtered by station.
func (s *Service) ListFeeds(ctx context.Context, stationID string) ([]traffic.Feed, error) {
	return s.store.ListTrafficFeeds(ctx, stationID)
}

// ListSnapshots returns recorded snapshots for a feed, newest first.
func (s *Service) ListSnapshots(ctx context.Context, feedID string) ([]traffic.Snapshot, error) {
	return s.store.ListTrafficSnapshots(ctx, feedID)
}
