package stations

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/caffe-ja/observer-platform/internal/app/domain/station"
	"github.com/caffe-ja/observer-platform/internal/app/storage"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

// Service manages polling stations and their monitor targets.
type Service struct {
	store storage.StationStore
	log   *logger.Logger
}

// New constructs a station service.
func New(store storage.StationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("stations")
	}
	return &Service{store: store, log: log}
}

// Create registers a polling station.
func (s *Service) Create(ctx context.Context, code, name, parish, address string, lat, lng float64) (station.Station, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	parish = strings.TrimSpace(parish)
	address = strings.TrimSpace(address)

	if code == "" {
		return station.Station{}, fmt.Errorf("code is required")
	}
	if name == "" {
		return station.Station{}, fmt.Errorf("name is required")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return station.Station{}, fmt.Errorf("coordinates out of range")
	}

	st := station.Station{
		Code:      code,
		Name:      name,
		Parish:    parish,
		Address:   address,
		Latitude:  lat,
		Longitude: lng,
		Active:    true,
	}
	st, err := s.store.CreateStation(ctx, st)
	if err != nil {
		return station.Station{}, err
	}
	s.log.WithField("station_id", st.ID).
		WithField("code", st.Code).
		Info("station created")
	return st, nil
}

// Update modifies mutable station fields.
func (s *Service) Update(ctx context.Context, id string, name, parish, address *string, active *bool) (station.Station, error) {
	st, err := s.store.GetStation(ctx, id)
	if err != nil {
		return station.Station{}, err
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return station.Station{}, fmt.Errorf("name cannot be empty")
		}
		st.Name = trimmed
	}
	if parish != nil {
		st.Parish = strings.TrimSpace(*parish)
	}
	if address != nil {
		st.Address = strings.TrimSpace(*address)
	}
	if active != nil {
		st.Active = *active
	}

	st, err = s.store.UpdateStation(ctx, st)
	if err != nil {
		return station.Station{}, err
	}
	s.log.WithField("station_id", st.ID).Info("station updated")
	return st, nil
}

// Get retrieves a station by identifier.
func (s *Service) Get(ctx context.Context, id string) (station.Station, error) {
	return s.store.GetStation(ctx, id)
}

// GetByCode retrieves a station by its ECJ code.
func (s *Service) GetByCode(ctx context.Context, code string) (station.Station, error) {
	return s.store.GetStationByCode(ctx, code)
}

// List returns stations, optionally filtered by parish.
func (s *Service) List(ctx context.Context, parish string) ([]station.Station, error) {
	return s.store.ListStations(ctx, parish)
}

// AddTarget configures a monitor target for a station. The interval must be a
// cron expression or @every duration.
func (s *Service) AddTarget(ctx context.Context, stationID string, kind station.TargetKind, interval string, thresholds map[string]float64) (station.MonitorTarget, error) {
	stationID = strings.TrimSpace(stationID)
	interval = strings.TrimSpace(interval)

	if stationID == "" {
		return station.MonitorTarget{}, fmt.Errorf("station_id is required")
	}
	if !station.ValidTargetKind(kind) {
		return station.MonitorTarget{}, fmt.Errorf("invalid target kind %q", kind)
	}
	if interval == "" {
		interval = "@every 5m"
	}
	if _, err := cron.ParseStandard(interval); err != nil {
		return station.MonitorTarget{}, fmt.Errorf("invalid interval %q: %w", interval, err)
	}

	if _, err := s.store.GetStation(ctx, stationID); err != nil {
		return station.MonitorTarget{}, err
	}

	existing, err := s.store.ListMonitorTargets(ctx, stationID, kind)
	if err != nil {
		return station.MonitorTarget{}, err
	}
	if len(existing) > 0 {
		return station.MonitorTarget{}, fmt.Errorf("station %s already has a %s target", stationID, kind)
	}

	target := station.MonitorTarget{
		StationID:  stationID,
		Kind:       kind,
		Enabled:    true,
		Interval:   interval,
		Thresholds: thresholds,
	}
	target, err = s.store.CreateMonitorTarget(ctx, target)
	if err != nil {
		return station.MonitorTarget{}, err
	}
	s.log.WithField("target_id", target.ID).
		WithField("station_id", stationID).
		WithField("kind", string(kind)).
		Info("monitor target added")
	return target, nil
}

// UpdateTarget modifies a monitor target's interval, thresholds, or enabled
// flag.
func (s *Service) UpdateTarget(ctx context.Context, id string, interval *string, thresholds map[string]float64, enabled *bool) (station.MonitorTarget, error) {
	target, err := s.store.GetMonitorTarget(ctx, id)
	if err != nil {
		return station.MonitorTarget{}, err
	}

	if interval != nil {
		trimmed := strings.TrimSpace(*interval)
		if trimmed == "" {
			return station.MonitorTarget{}, fmt.Errorf("interval cannot be empty")
		}
		if _, err := cron.ParseStandard(trimmed); err != nil {
			return station.MonitorTarget{}, fmt.Errorf("invalid interval %q: %w", trimmed, err)
		}
		target.Interval = trimmed
	}
	if thresholds != nil {
		target.Thresholds = thresholds
	}
	if enabled != nil {
		target.Enabled = *enabled
	}

	target, err = s.store.UpdateMonitorTarget(ctx, target)
	if err != nil {
		return station.MonitorTarget{}, err
	}
	s.log.WithField("target_id", target.ID).Info("monitor target updated")
	return target, nil
}

// ListTargets returns monitor targets filtered by station and kind.
func (s *Service) ListTargets(ctx context.Context, stationID string, kind station.TargetKind) ([]station.MonitorTarget, error) {
	if kind != "" && !station.ValidTargetKind(kind) {
		return nil, fmt.Errorf("invalid target kind %q", kind)
	}
	return s.store.ListMonitorTargets(ctx, stationID, kind)
}

// RemoveTarget deletes a monitor target.
func (s *Service) RemoveTarget(ctx context.Context, id string) error {
	if err := s.store.DeleteMonitorTarget(ctx, id); err != nil {
		return err
	}
	s.log.WithField("target_id", id).Info("monitor target removed")
	return nil
}
