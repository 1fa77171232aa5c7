package weatherfeeds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caffe-ja/observer-platform/internal/app/domain/weather"
	"github.com/caffe-ja/observer-platform/internal/app/storage"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

// Service records and serves weather conditions per polling station. Which
// stations are monitored is driven by their weather monitor targets.
type Service struct {
	store    storage.WeatherStore
	stations storage.StationStore
	log      *logger.Logger
}

// New constructs a weather feed service.
func New(store storage.WeatherStore, stations storage.StationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("weatherfeeds")
	}
	return &Service{
		store:    store,
		stations: stations,
		log:      log,
	}
}

// RecordSnapshot stores a weather observation for a station.
func (s *Service) RecordSnapshot(ctx context.Context, stationID, condition string, tempC, rainProbability, windKmh float64, source string, collectedAt time.Time) (weather.Snapshot, error) {
	stationID = strings.TrimSpace(stationID)
	condition = strings.TrimSpace(condition)

	if stationID == "" {
		return weather.Snapshot{}, fmt.Errorf("station_id is required")
	}
	if condition == "" {
		return weather.Snapshot{}, fmt.Errorf("condition is required")
	}
	if rainProbability < 0 || rainProbability > 100 {
		return weather.Snapshot{}, fmt.Errorf("rain_probability must be between 0 and 100")
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = "manual"
	}

	if s.stations != nil {
		if _, err := s.stations.GetStation(ctx, stationID); err != nil {
			return weather.Snapshot{}, fmt.Errorf("station validation failed: %w", err)
		}
	}

	snap := weather.Snapshot{
		StationID:       stationID,
		Condition:       condition,
		TempC:           tempC,
		RainProbability: rainProbability,
		WindKmh:         windKmh,
		Source:          source,
		CollectedAt:     collectedAt.UTC(),
	}
	if snap.CollectedAt.IsZero() {
		snap.CollectedAt = time.Now().UTC()
	}
	return s.store.CreateWeatherSnapshot(ctx, snap)
}

// Latest returns the newest snapshot for a station.
func (s *Service) Latest(ctx context.Context, stationID string) (weather.Snapshot, error) {
	return s.store.LatestWeatherSnapshot(ctx, stationID)
}

// List returns recorded snapshots for a station, newest first.
func (s *Service) List(ctx context.Context, stationID string) ([]weather.Snapshot, error) {
	return s.store.ListWeatherSnapshots(ctx, stationID)
}
