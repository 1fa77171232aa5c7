package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/caffe-ja/observer-platform/internal/app/domain/admin"
	"github.com/caffe-ja/observer-platform/internal/app/domain/alert"
	"github.com/caffe-ja/observer-platform/internal/app/domain/analysis"
	"github.com/caffe-ja/observer-platform/internal/app/domain/certificate"
	"github.com/caffe-ja/observer-platform/internal/app/domain/observer"
	"github.com/caffe-ja/observer-platform/internal/app/domain/settings"
	"github.com/caffe-ja/observer-platform/internal/app/domain/station"
	"github.com/caffe-ja/observer-platform/internal/app/domain/traffic"
	"github.com/caffe-ja/observer-platform/internal/app/domain/training"
	"github.com/caffe-ja/observer-platform/internal/app/domain/weather"
	"github.com/caffe-ja/observer-platform/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu               sync.RWMutex
	nextID           int64
	observers        map[string]observer.Observer
	observersByEmail map[string]string
	stations         map[string]station.Station
	stationsByCode   map[string]string
	targets          map[string]station.MonitorTarget
	courses          map[string]training.Course
	modules          map[string]training.Module
	enrollments      map[string]training.Enrollment
	certificates     map[string]certificate.Certificate
	certsBySerial    map[string]string
	alerts           map[string]alert.Alert
	deliveries       map[string][]alert.Delivery
	trafficFeeds     map[string]traffic.Feed
	trafficSnaps     map[string][]traffic.Snapshot
	weatherSnaps     map[string][]weather.Snapshot
	analysisRequests map[string]analysis.Request
	settings         map[string]settings.Setting
	adminUsers       map[string]admin.User
	adminsByUsername map[string]string
}

var _ storage.ObserverStore = (*Store)(nil)
var _ storage.StationStore = (*Store)(nil)
var _ storage.TrainingStore = (*Store)(nil)
var _ storage.CertificateStore = (*Store)(nil)
var _ storage.AlertStore = (*Store)(nil)
var _ storage.TrafficStore = (*Store)(nil)
var _ storage.WeatherStore = (*Store)(nil)
var _ storage.AnalysisStore = (*Store)(nil)
var _ storage.SettingStore = (*Store)(nil)
var _ storage.AdminStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:           1,
		observers:        make(map[string]observer.Observer),
		observersByEmail: make(map[string]string),
		stations:         make(map[string]station.Station),
		stationsByCode:   make(map[string]string),
		targets:          make(map[string]station.MonitorTarget),
		courses:          make(map[string]training.Course),
		modules:          make(map[string]training.Module),
		enrollments:      make(map[string]training.Enrollment),
		certificates:     make(map[string]certificate.Certificate),
		certsBySerial:    make(map[string]string),
		alerts:           make(map[string]alert.Alert),
		deliveries:       make(map[string][]alert.Delivery),
		trafficFeeds:     make(map[string]traffic.Feed),
		trafficSnaps:     make(map[string][]traffic.Snapshot),
		weatherSnaps:     make(map[string][]weather.Snapshot),
		analysisRequests: make(map[string]analysis.Request),
		settings:         make(map[string]settings.Setting),
		adminUsers:       make(map[string]admin.User),
		adminsByUsername: make(map[string]string),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// ObserverStore implementation ------------------------------------------------

func (s *Store) CreateObserver(_ context.Context, obs observer.Observer) (observer.Observer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(obs.Email)
	if _, exists := s.observersByEmail[email]; exists {
		return observer.Observer{}, fmt.Errorf("observer with email %s already exists", obs.Email)
	}
	if obs.ID == "" {
		obs.ID = s.nextIDLocked()
	} else if _, exists := s.observers[obs.ID]; exists {
		return observer.Observer{}, fmt.Errorf("observer %s already exists", obs.ID)
	}

	now := time.Now().UTC()
	obs.Email = email
	obs.CreatedAt = now
	obs.UpdatedAt = now
	obs.Metadata = cloneMap(obs.Metadata)

	s.observers[obs.ID] = obs
	s.observersByEmail[email] = obs.ID
	return cloneObserver(obs), nil
}

func (s *Store) UpdateObserver(_ context.Context, obs observer.Observer) (observer.Observer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.observers[obs.ID]
	if !ok {
		return observer.Observer{}, fmt.Errorf("observer %s not found: %w", obs.ID, sql.ErrNoRows)
	}

	newEmail := strings.ToLower(obs.Email)
	oldEmail := strings.ToLower(original.Email)
	if newEmail != oldEmail {
		if _, exists := s.observersByEmail[newEmail]; exists {
			return observer.Observer{}, fmt.Errorf("observer with email %s already exists", obs.Email)
		}
		delete(s.observersByEmail, oldEmail)
		s.observersByEmail[newEmail] = obs.ID
	}
	obs.Email = newEmail

	obs.CreatedAt = original.CreatedAt
	obs.UpdatedAt = time.Now().UTC()
	obs.Metadata = cloneMap(obs.Metadata)

	s.observers[obs.ID] = obs
	return cloneObserver(obs), nil
}

func (s *Store) GetObserver(_ context.Context, id string) (observer.Observer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obs, ok := s.observers[id]
	if !ok {
		return observer.Observer{}, fmt.Errorf("observer %s not found: %w", id, sql.ErrNoRows)
	}
	return cloneObserver(obs), nil
}

func (s *Store) GetObserverByEmail(_ context.Context, email string) (observer.Observer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.observersByEmail[strings.ToLower(email)]
	if !ok {
		return observer.Observer{}, fmt.Errorf("observer with email %s not found: %w", email, sql.ErrNoRows)
	}
	return cloneObserver(s.observers[id]), nil
}

func (s *Store) ListObservers(_ context.Context, parish string) ([]observer.Observer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]observer.Observer, 0, len(s.observers))
	for _, obs := range s.observers {
		if parish != "" && !strings.EqualFold(obs.Parish, parish) {
			continue
		}
		result = append(result, cloneObserver(obs))
	}
	sortByCreated(result, func(o observer.Observer) time.Time { return o.CreatedAt })
	return result, nil
}

func (s *Store) DeleteObserver(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obs, ok := s.observers[id]
	if !ok {
		return fmt.Errorf("observer %s not found: %w", id, sql.ErrNoRows)
	}
	delete(s.observers, id)
	delete(s.observersByEmail, strings.ToLower(obs.Email))
	return nil
}

// StationStore implementation -------------------------------------------------

func (s *Store) CreateStation(_ context.Context, st station.Station) (station.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := strings.ToUpper(st.Code)
	if _, exists := s.stationsByCode[code]; exists {
		return station.Station{}, fmt.Errorf("station with code %s already exists", st.Code)
	}
	if st.ID == "" {
		st.ID = s.nextIDLocked()
	} else if _, exists := s.stations[st.ID]; exists {
		return station.Station{}, fmt.Errorf("station %s already exists", st.ID)
	}

	now := time.Now().UTC()
	st.Code = code
	st.CreatedAt = now
	st.UpdatedAt = now

	s.stations[st.ID] = st
	s.stationsByCode[code] = st.ID
	return st, nil
}

func (s *Store) UpdateStation(_ context.Context, st station.Station) (station.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.stations[st.ID]
	if !ok {
		return station.Station{}, fmt.Errorf("station %s not found: %w", st.ID, sql.ErrNoRows)
	}

	newCode := strings.ToUpper(st.Code)
	oldCode := strings.ToUpper(original.Code)
	if newCode != oldCode {
		if _, exists := s.stationsByCode[newCode]; exists {
			return station.Station{}, fmt.Errorf("station with code %s already exists", st.Code)
		}
		delete(s.stationsByCode, oldCode)
		s.stationsByCode[newCode] = st.ID
	}
	st.Code = newCode

	st.CreatedAt = original.CreatedAt
	st.UpdatedAt = time.Now().UTC()

	s.stations[st.ID] = st
	return st, nil
}

func (s *Store) GetStation(_ context.Context, id string) (station.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stations[id]
	if !ok {
		return station.Station{}, fmt.Errorf("station %s not found: %w", id, sql.ErrNoRows)
	}
	return st, nil
}

func (s *Store) GetStationByCode(_ context.Context, code string) (station.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.stationsByCode[strings.ToUpper(code)]
	if !ok {
		return station.Station{}, fmt.Errorf("station with code %s not found: %w", code, sql.ErrNoRows)
	}
	return s.stations[id], nil
}

func (s *Store) ListStations(_ context.Context, parish string) ([]station.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]station.Station, 0, len(s.stations))
	for _, st := range s.stations {
		if parish != "" && !strings.EqualFold(st.Parish, parish) {
			continue
		}
		result = append(result, st)
	}
	sortByCreated(result, func(st station.Station) time.Time { return st.CreatedAt })
	return result, nil
}

func (s *Store) CreateMonitorTarget(_ context.Context, t station.MonitorTarget) (station.MonitorTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stations[t.StationID]; !ok {
		return station.MonitorTarget{}, fmt.Errorf("station %s not found: %w", t.StationID, sql.ErrNoRows)
	}
	if t.ID == "" {
		t.ID = s.nextIDLocked()
	}

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Thresholds = cloneFloatMap(t.Thresholds)

	s.targets[t.ID] = t
	return cloneTarget(t), nil
}

func (s *Store) UpdateMonitorTarget(_ context.Context, t station.MonitorTarget) (station.MonitorTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.targets[t.ID]
	if !ok {
		return station.MonitorTarget{}, fmt.Errorf("monitor target %s not found: %w", t.ID, sql.ErrNoRows)
	}

	t.StationID = original.StationID
	t.CreatedAt = original.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	t.Thresholds = cloneFloatMap(t.Thresholds)

	s.targets[t.ID] = t
	return cloneTarget(t), nil
}

func (s *Store) GetMonitorTarget(_ context.Context, id string) (station.MonitorTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.targets[id]
	if !ok {
		return station.MonitorTarget{}, fmt.Errorf("monitor target %s not found: %w", id, sql.ErrNoRows)
	}
	return cloneTarget(t), nil
}

func (s *Store) ListMonitorTargets(_ context.Context, stationID string, kind station.TargetKind) ([]station.MonitorTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []station.MonitorTarget
	for _, t := range s.targets {
		if stationID != "" && t.StationID != stationID {
			continue
		}
		if kind != "" && t.Kind != kind {
			continue
		}
		result = append(result, cloneTarget(t))
	}
	sortByCreated(result, func(t station.MonitorTarget) time.Time { return t.CreatedAt })
	return result, nil
}

func (s *Store) DeleteMonitorTarget(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.targets[id]; !ok {
		return fmt.Errorf("monitor target %s not found: %w", id, sql.ErrNoRows)
	}
	delete(s.targets, id)
	return nil
}

// TrainingStore implementation ------------------------------------------------

func (s *Store) CreateCourse(_ context.Context, c training.Course) (training.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	s.courses[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCourse(_ context.Context, c training.Course) (training.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.courses[c.ID]
	if !ok {
		return training.Course{}, fmt.Errorf("course %s not found: %w", c.ID, sql.ErrNoRows)
	}
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	s.courses[c.ID] = c
	return c, nil
}

func (s *Store) GetCourse(_ context.Context, id string) (training.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.courses[id]
	if !ok {
		return training.Course{}, fmt.Errorf("course %s not found: %w", id, sql.ErrNoRows)
	}
	return c, nil
}

func (s *Store) ListCourses(_ context.Context) ([]training.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]training.Course, 0, len(s.courses))
	for _, c := range s.courses {
		result = append(result, c)
	}
	sortByCreated(result, func(c training.Course) time.Time { return c.CreatedAt })
	return result, nil
}

func (s *Store) CreateModule(_ context.Context, m training.Module) (training.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.courses[m.CourseID]; !ok {
		return training.Module{}, fmt.Errorf("course %s not found: %w", m.CourseID, sql.ErrNoRows)
	}
	if m.ID == "" {
		m.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	s.modules[m.ID] = m
	return m, nil
}

func (s *Store) UpdateModule(_ context.Context, m training.Module) (training.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.modules[m.ID]
	if !ok {
		return training.Module{}, fmt.Errorf("module %s not found: %w", m.ID, sql.ErrNoRows)
	}
	m.CourseID = original.CourseID
	m.CreatedAt = original.CreatedAt
	m.UpdatedAt = time.Now().UTC()

	s.modules[m.ID] = m
	return m, nil
}

func (s *Store) GetModule(_ context.Context, id string) (training.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.modules[id]
	if !ok {
		return training.Module{}, fmt.Errorf("module %s not found: %w", id, sql.ErrNoRows)
	}
	return m, nil
}

func (s *Store) ListModules(_ context.Context, courseID string) ([]training.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []training.Module
	for _, m := range s.modules {
		if courseID != "" && m.CourseID != courseID {
			continue
		}
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Sequence < result[j].Sequence })
	return result, nil
}

func (s *Store) DeleteModule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.modules[id]; !ok {
		return fmt.Errorf("module %s not found: %w", id, sql.ErrNoRows)
	}
	delete(s.modules, id)
	return nil
}

func (s *Store) CreateEnrollment(_ context.Context, e training.Enrollment) (training.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	s.enrollments[e.ID] = e
	return e, nil
}

func (s *Store) UpdateEnrollment(_ context.Context, e training.Enrollment) (training.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.enrollments[e.ID]
	if !ok {
		return training.Enrollment{}, fmt.Errorf("enrollment %s not found: %w", e.ID, sql.ErrNoRows)
	}
	e.ObserverID = original.ObserverID
	e.CourseID = original.CourseID
	e.CreatedAt = original.CreatedAt
	e.UpdatedAt = time.Now().UTC()

	s.enrollments[e.ID] = e
	return e, nil
}

func (s *Store) GetEnrollment(_ context.Context, id string) (training.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.enrollments[id]
	if !ok {
		return training.Enrollment{}, fmt.Errorf("enrollment %s not found: %w", id, sql.ErrNoRows)
	}
	return e, nil
}

func (s *Store) ListEnrollments(_ context.Context, observerID string) ([]training.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []training.Enrollment
	for _, e := range s.enrollments {
		if observerID != "" && e.ObserverID != observerID {
			continue
		}
		result = append(result, e)
	}
	sortByCreated(result, func(e training.Enrollment) time.Time { return e.CreatedAt })
	return result, nil
}

// CertificateStore implementation ---------------------------------------------

func (s *Store) CreateCertificate(_ context.Context, c certificate.Certificate) (certificate.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	serial := strings.ToUpper(c.SerialNo)
	if _, exists := s.certsBySerial[serial]; exists {
		return certificate.Certificate{}, fmt.Errorf("certificate with serial %s already exists", c.SerialNo)
	}
	if c.ID == "" {
		c.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	c.SerialNo = serial
	c.CreatedAt = now
	c.UpdatedAt = now

	s.certificates[c.ID] = c
	s.certsBySerial[serial] = c.ID
	return c, nil
}

func (s *Store) UpdateCertificate(_ context.Context, c certificate.Certificate) (certificate.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.certificates[c.ID]
	if !ok {
		return certificate.Certificate{}, fmt.Errorf("certificate %s not found: %w", c.ID, sql.ErrNoRows)
	}
	c.ObserverID = original.ObserverID
	c.CourseID = original.CourseID
	c.SerialNo = original.SerialNo
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	s.certificates[c.ID] = c
	return c, nil
}

func (s *Store) GetCertificate(_ context.Context, id string) (certificate.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.certificates[id]
	if !ok {
		return certificate.Certificate{}, fmt.Errorf("certificate %s not found: %w", id, sql.ErrNoRows)
	}
	return c, nil
}

func (s *Store) GetCertificateBySerial(_ context.Context, serial string) (certificate.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.certsBySerial[strings.ToUpper(serial)]
	if !ok {
		return certificate.Certificate{}, fmt.Errorf("certificate with serial %s not found: %w", serial, sql.ErrNoRows)
	}
	return s.certificates[id], nil
}

func (s *Store) ListCertificates(_ context.Context, observerID string) ([]certificate.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []certificate.Certificate
	for _, c := range s.certificates {
		if observerID != "" && c.ObserverID != observerID {
			continue
		}
		result = append(result, c)
	}
	sortByCreated(result, func(c certificate.Certificate) time.Time { return c.CreatedAt })
	return result, nil
}

func (s *Store) CountCertificates(_ context.Context, year int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, c := range s.certificates {
		if year == 0 || c.IssuedAt.Year() == year {
			count++
		}
	}
	return count, nil
}

// AlertStore implementation ---------------------------------------------------

func (s *Store) CreateAlert(_ context.Context, a alert.Alert) (alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	s.alerts[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAlert(_ context.Context, a alert.Alert) (alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.alerts[a.ID]
	if !ok {
		return alert.Alert{}, fmt.Errorf("alert %s not found: %w", a.ID, sql.ErrNoRows)
	}
	a.CreatedAt = original.CreatedAt
	a.UpdatedAt = time.Now().UTC()

	s.alerts[a.ID] = a
	return a, nil
}

func (s *Store) GetAlert(_ context.Context, id string) (alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return alert.Alert{}, fmt.Errorf("alert %s not found: %w", id, sql.ErrNoRows)
	}
	return a, nil
}

func (s *Store) ListAlerts(_ context.Context, status alert.Status, parish string) ([]alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []alert.Alert
	for _, a := range s.alerts {
		if status != "" && a.Status != status {
			continue
		}
		if parish != "" && !strings.EqualFold(a.Parish, parish) {
			continue
		}
		result = append(result, a)
	}
	sortByCreated(result, func(a alert.Alert) time.Time { return a.CreatedAt })
	return result, nil
}

func (s *Store) CreateDelivery(_ context.Context, d alert.Delivery) (alert.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = s.nextIDLocked()
	}
	d.CreatedAt = time.Now().UTC()

	s.deliveries[d.AlertID] = append(s.deliveries[d.AlertID], d)
	return d, nil
}

func (s *Store) ListDeliveries(_ context.Context, alertID string) ([]alert.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds := s.deliveries[alertID]
	out := make([]alert.Delivery, len(ds))
	copy(out, ds)
	return out, nil
}

// TrafficStore implementation -------------------------------------------------

func (s *Store) CreateTrafficFeed(_ context.Context, f traffic.Feed) (traffic.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ID == "" {
		f.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	s.trafficFeeds[f.ID] = f
	return f, nil
}

func (s *Store) UpdateTrafficFeed(_ context.Context, f traffic.Feed) (traffic.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.trafficFeeds[f.ID]
	if !ok {
		return traffic.Feed{}, fmt.Errorf("traffic feed %s not found: %w", f.ID, sql.ErrNoRows)
	}
	f.StationID = original.StationID
	f.CreatedAt = original.CreatedAt
	f.UpdatedAt = time.Now().UTC()

	s.trafficFeeds[f.ID] = f
	return f, nil
}

func (s *Store) GetTrafficFeed(_ context.Context, id string) (traffic.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.trafficFeeds[id]
	if !ok {
		return traffic.Feed{}, fmt.Errorf("traffic feed %s not found: %w", id, sql.ErrNoRows)
	}
	return f, nil
}

func (s *Store) ListTrafficFeeds(_ context.Context, stationID string) ([]traffic.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []traffic.Feed
	for _, f := range s.trafficFeeds {
		if stationID != "" && f.StationID != stationID {
			continue
		}
		result = append(result, f)
	}
	sortByCreated(result, func(f traffic.Feed) time.Time { return f.CreatedAt })
	return result, nil
}

func (s *Store) CreateTrafficSnapshot(_ context.Context, snap traffic.Snapshot) (traffic.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trafficFeeds[snap.FeedID]; !ok {
		return traffic.Snapshot{}, fmt.Errorf("traffic feed %s not found: %w", snap.FeedID, sql.ErrNoRows)
	}
	if snap.ID == "" {
		snap.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	snap.CreatedAt = now
	if snap.CollectedAt.IsZero() {
		snap.CollectedAt = now
	}

	s.trafficSnaps[snap.FeedID] = append(s.trafficSnaps[snap.FeedID], snap)
	return snap, nil
}

func (s *Store) ListTrafficSnapshots(_ context.Context, feedID string) ([]traffic.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := s.trafficSnaps[feedID]
	out := make([]traffic.Snapshot, len(snaps))
	copy(out, snaps)
	sort.Slice(out, func(i, j int) bool { return out[i].CollectedAt.After(out[j].CollectedAt) })
	return out, nil
}

// WeatherStore implementation -------------------------------------------------

func (s *Store) CreateWeatherSnapshot(_ context.Context, snap weather.Snapshot) (weather.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.ID == "" {
		snap.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	snap.CreatedAt = now
	if snap.CollectedAt.IsZero() {
		snap.CollectedAt = now
	}

	s.weatherSnaps[snap.StationID] = append(s.weatherSnaps[snap.StationID], snap)
	return snap, nil
}

func (s *Store) ListWeatherSnapshots(_ context.Context, stationID string) ([]weather.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := s.weatherSnaps[stationID]
	out := make([]weather.Snapshot, len(snaps))
	copy(out, snaps)
	sort.Slice(out, func(i, j int) bool { return out[i].CollectedAt.After(out[j].CollectedAt) })
	return out, nil
}

func (s *Store) LatestWeatherSnapshot(_ context.Context, stationID string) (weather.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := s.weatherSnaps[stationID]
	if len(snaps) == 0 {
		return weather.Snapshot{}, fmt.Errorf("no weather snapshots for station %s: %w", stationID, sql.ErrNoRows)
	}
	latest := snaps[0]
	for _, snap := range snaps[1:] {
		if snap.CollectedAt.After(latest.CollectedAt) {
			latest = snap
		}
	}
	return latest, nil
}

// AnalysisStore implementation ------------------------------------------------

func (s *Store) CreateAnalysisRequest(_ context.Context, r analysis.Request) (analysis.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Context = cloneMap(r.Context)

	s.analysisRequests[r.ID] = r
	return cloneAnalysis(r), nil
}

func (s *Store) UpdateAnalysisRequest(_ context.Context, r analysis.Request) (analysis.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.analysisRequests[r.ID]
	if !ok {
		return analysis.Request{}, fmt.Errorf("analysis request %s not found: %w", r.ID, sql.ErrNoRows)
	}
	r.Kind = original.Kind
	r.CreatedAt = original.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	r.Context = cloneMap(r.Context)

	s.analysisRequests[r.ID] = r
	return cloneAnalysis(r), nil
}

func (s *Store) GetAnalysisRequest(_ context.Context, id string) (analysis.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.analysisRequests[id]
	if !ok {
		return analysis.Request{}, fmt.Errorf("analysis request %s not found: %w", id, sql.ErrNoRows)
	}
	return cloneAnalysis(r), nil
}

func (s *Store) ListAnalysisRequests(_ context.Context, kind analysis.Kind) ([]analysis.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []analysis.Request
	for _, r := range s.analysisRequests {
		if kind != "" && r.Kind != kind {
			continue
		}
		result = append(result, cloneAnalysis(r))
	}
	sortByCreated(result, func(r analysis.Request) time.Time { return r.CreatedAt })
	return result, nil
}

func (s *Store) ListPendingAnalysisRequests(_ context.Context) ([]analysis.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []analysis.Request
	for _, r := range s.analysisRequests {
		if r.Status != analysis.StatusPending && r.Status != analysis.StatusRunning {
			continue
		}
		result = append(result, cloneAnalysis(r))
	}
	sortByCreated(result, func(r analysis.Request) time.Time { return r.CreatedAt })
	return result, nil
}

// SettingStore implementation -------------------------------------------------

func (s *Store) PutSetting(_ context.Context, set settings.Setting) (settings.Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set.UpdatedAt = time.Now().UTC()
	s.settings[set.Key] = set
	return set, nil
}

func (s *Store) GetSetting(_ context.Context, key string) (settings.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.settings[key]
	if !ok {
		return settings.Setting{}, fmt.Errorf("setting %s not found: %w", key, sql.ErrNoRows)
	}
	return set, nil
}

func (s *Store) ListSettings(_ context.Context, category string) ([]settings.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []settings.Setting
	for _, set := range s.settings {
		if category != "" && !strings.EqualFold(set.Category, category) {
			continue
		}
		result = append(result, set)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func (s *Store) DeleteSetting(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.settings[key]; !ok {
		return fmt.Errorf("setting %s not found: %w", key, sql.ErrNoRows)
	}
	delete(s.settings, key)
	return nil
}

// AdminStore implementation ---------------------------------------------------

func (s *Store) CreateAdminUser(_ context.Context, u admin.User) (admin.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(u.Username)
	if _, exists := s.adminsByUsername[username]; exists {
		return admin.User{}, fmt.Errorf("admin user %s already exists", u.Username)
	}
	if u.ID == "" {
		u.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	u.Username = username
	u.CreatedAt = now
	u.UpdatedAt = now

	s.adminUsers[u.ID] = u
	s.adminsByUsername[username] = u.ID
	return u, nil
}

func (s *Store) UpdateAdminUser(_ context.Context, u admin.User) (admin.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.adminUsers[u.ID]
	if !ok {
		return admin.User{}, fmt.Errorf("admin user %s not found: %w", u.ID, sql.ErrNoRows)
	}
	u.Username = original.Username
	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	s.adminUsers[u.ID] = u
	return u, nil
}

func (s *Store) GetAdminUser(_ context.Context, id string) (admin.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.adminUsers[id]
	if !ok {
		return admin.User{}, fmt.Errorf("admin user %s not found: %w", id, sql.ErrNoRows)
	}
	return u, nil
}

func (s *Store) GetAdminUserByUsername(_ context.Context, username string) (admin.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.adminsByUsername[strings.ToLower(username)]
	if !ok {
		return admin.User{}, fmt.Errorf("admin user %s not found: %w", username, sql.ErrNoRows)
	}
	return s.adminUsers[id], nil
}

func (s *Store) ListAdminUsers(_ context.Context) ([]admin.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]admin.User, 0, len(s.adminUsers))
	for _, u := range s.adminUsers {
		result = append(result, u)
	}
	sortByCreated(result, func(u admin.User) time.Time { return u.CreatedAt })
	return result, nil
}

// helpers ----------------------------------------------------------------------

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneFloatMap(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneObserver(obs observer.Observer) observer.Observer {
	obs.Metadata = cloneMap(obs.Metadata)
	return obs
}

func cloneTarget(t station.MonitorTarget) station.MonitorTarget {
	t.Thresholds = cloneFloatMap(t.Thresholds)
	return t
}

func cloneAnalysis(r analysis.Request) analysis.Request {
	r.Context = cloneMap(r.Context)
	return r
}

func sortByCreated[T any](items []T, created func(T) time.Time) {
	sort.Slice(items, func(i, j int) bool {
		ti, tj := created(items[i]), created(items[j])
		if ti.Equal(tj) {
			return i < j
		}
		return ti.Before(tj)
	})
}
