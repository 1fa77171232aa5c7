package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

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

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
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

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- ObserverStore ----------------------------------------------------------

func (s *Store) CreateObserver(ctx context.Context, obs observer.Observer) (observer.Observer, error) {
	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	obs.CreatedAt = now
	obs.UpdatedAt = now

	metadataJSON, err := json.Marshal(obs.Metadata)
	if err != nil {
		return observer.Observer{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO caffe_observers (id, full_name, email, phone, parish, station_id, status, kyc_status, kyc_ref, metadata, created_at, updated_at)
		VALUES ($1, $2, lower($3), $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, obs.ID, obs.FullName, obs.Email, obs.Phone, obs.Parish, obs.StationID, obs.Status, obs.KYCStatus, obs.KYCRef, metadataJSON, obs.CreatedAt, obs.UpdatedAt)
	if err != nil {
		return observer.Observer{}, err
	}
	return obs, nil
}

func (s *Store) UpdateObserver(ctx context.Context, obs observer.Observer) (observer.Observer, error) {
	existing, err := s.GetObserver(ctx, obs.ID)
	if err != nil {
		return observer.Observer{}, err
	}

	obs.CreatedAt = existing.CreatedAt
	obs.UpdatedAt = time.Now().UTC()

	metadataJSON, err := json.Marshal(obs.Metadata)
	if err != nil {
		return observer.Observer{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE caffe_observers
		SET full_name = $2, email = lower($3), phone = $4, parish = $5, station_id = $6, status = $7, kyc_status = $8, kyc_ref = $9, metadata = $10, updated_at = $11
		WHERE id = $1
	`, obs.ID, obs.FullName, obs.Email, obs.Phone, obs.Parish, obs.StationID, obs.Status, obs.KYCStatus, obs.KYCRef, metadataJSON, obs.UpdatedAt)
	if err != nil {
		return observer.Observer{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return observer.Observer{}, sql.ErrNoRows
	}
	return obs, nil
}

const observerColumns = `id, full_name, email, phone, parish, station_id, status, kyc_status, kyc_ref, metadata, created_at, updated_at`

func scanObserver(row interface{ Scan(...any) error }) (observer.Observer, error) {
	var (
		obs         observer.Observer
		metadataRaw []byte
	)
	if err := row.Scan(&obs.ID, &obs.FullName, &obs.Email, &obs.Phone, &obs.Parish, &obs.StationID, &obs.Status, &obs.KYCStatus, &obs.KYCRef, &metadataRaw, &obs.CreatedAt, &obs.UpdatedAt); err != nil {
		return observer.Observer{}, err
	}
	if len(metadataRaw) > 0 {
		_ = json.Unmarshal(metadataRaw, &obs.Metadata)
	}
	return obs, nil
}

func (s *Store) GetObserver(ctx context.Context, id string) (observer.Observer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+observerColumns+`
		FROM caffe_observers
		WHERE id = $1
	`, id)
	return scanObserver(row)
}

func (s *Store) GetObserverByEmail(ctx context.Context, email string) (observer.Observer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+observerColumns+`
		FROM caffe_observers
		WHERE email = lower($1)
	`, email)
	return scanObserver(row)
}

func (s *Store) ListObservers(ctx context.Context, parish string) ([]observer.Observer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+observerColumns+`
		FROM caffe_observers
		WHERE $1 = '' OR lower(parish) = lower($1)
		ORDER BY created_at
	`, parish)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []observer.Observer
	for rows.Next() {
		obs, err := scanObserver(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, obs)
	}
	return result, rows.Err()
}

func (s *Store) DeleteObserver(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM caffe_observers WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- StationStore -----------------------------------------------------------

func (s *Store) CreateStation(ctx context.Context, st station.Station) (station.Station, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO caffe_stations (id, code, name, parish, address, latitude, longitude, active, created_at, updated_at)
		VALUES ($1, upper($2), $3, $4, $5, $6, $7, $8, $9, $10)
	`, st.ID, st.Code, st.Name, st.Parish, st.Address, st.Latitude, st.Longitude, st.Active, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return station.Station{}, err
	}
	return st, nil
}

func (s *Store) UpdateStation(ctx context.Context, st station.Station) (station.Station, error) {
	existing, err := s.GetStation(ctx, st.ID)
	if err != nil {
		return station.Station{}, err
	}

	st.CreatedAt = existing.CreatedAt
	st.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE caffe_stations
		SET code = upper($2), name = $3, parish = $4, address = $5, latitude = $6, longitude = $7, active = $8, updated_at = $9
		WHERE id = $1
	`, st.ID, st.Code, st.Name, st.Parish, st.Address, st.Latitude, st.Longitude, st.Active, st.UpdatedAt)
	if err != nil {
		return station.Station{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return station.Station{}, sql.ErrNoRows
	}
	return st, nil
}

const stationColumns = `id, code, name, parish, address, latitude, longitude, active, created_at, updated_at`

func scanStation(row interface{ Scan(...any) error }) (station.Station, error) {
	var st station.Station
	if err := row.Scan(&st.ID, &st.Code, &st.Name, &st.Parish, &st.Address, &st.Latitude, &st.Longitude, &st.Active, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return station.Station{}, err
	}
	return st, nil
}

func (s *Store) GetStation(ctx context.Context, id string) (station.Station, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+stationColumns+`
		FROM caffe_stations
		WHERE id = $1
	`, id)
	return scanStation(row)
}

func (s *Store) GetStationByCode(ctx context.Context, code string) (station.Station, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+stationColumns+`
		FROM caffe_stations
		WHERE code = upper($1)
	`, code)
	return scanStation(row)
}

func (s *Store) ListStations(ctx context.Context, parish string) ([]station.Station, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stationColumns+`
		FROM caffe_stations
		WHERE $1 = '' OR lower(parish) = lower($1)
		ORDER BY created_at
	`, parish)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []station.Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

func (s *Store) CreateMonitorTarget(ctx context.Context, t station.MonitorTarget) (station.MonitorTarget, error) {
	if t.StationID == "" {
		return station.MonitorTarget{}, errors.New("station_id required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	thresholdsJSON, err := json.Marshal(t.Thresholds)
	if err != nil {
		return station.MonitorTarget{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO caffe_monitor_targets (id, station_id, kind, enabled, interval, thresholds, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.StationID, t.Kind, t.Enabled, t.Interval, thresholdsJSON, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return station.MonitorTarget{}, err
	}
	return t, nil
}

func (s *Store) UpdateMonitorTarget(ctx context.Context, t station.MonitorTarget) (station.MonitorTarget, error) {
	existing, err := s.GetMonitorTarget(ctx, t.ID)
	if err != nil {
		return station.MonitorTarget{}, err
	}

	t.StationID = existing.StationID
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now().UTC()

	thresholdsJSON, err := json.Marshal(t.Thresholds)
	if err != nil {
		return station.MonitorTarget{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE caffe_monitor_targets
		SET kind = $2, enabled = $3, interval = $4, thresholds = $5, updated_at = $6
		WHERE id = $1
	`, t.ID, t.Kind, t.Enabled, t.Interval, thresholdsJSON, t.UpdatedAt)
	if err != nil {
		return station.MonitorTarget{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return station.MonitorTarget{}, sql.ErrNoRows
	}
	return t, nil
}

func (s *Store) GetMonitorTarget(ctx context.Context, id string) (station.MonitorTarget, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, station_id, kind, enabled, interval, thresholds, created_at, updated_at
		FROM caffe_monitor_targets
		WHERE id = $1
	`, id)

	var (
		t             station.MonitorTarget
		thresholdsRaw []byte
	)
	if err := row.Scan(&t.ID, &t.StationID, &t.Kind, &t.Enabled, &t.Interval, &thresholdsRaw, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return station.MonitorTarget{}, err
	}
	if len(thresholdsRaw) > 0 {
		_ = json.Unmarshal(thresholdsRaw, &t.Thresholds)
	}
	return t, nil
}

func (s *Store) ListMonitorTargets(ctx context.Context, stationID string, kind station.TargetKind) ([]station.MonitorTarget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, station_id, kind, enabled, interval, thresholds, created_at, updated_at
		FROM caffe_monitor_targets
		WHERE ($1 = '' OR station_id = $1) AND ($2 = '' OR kind = $2)
		ORDER BY created_at
	`, stationID, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []station.MonitorTarget
	for rows.Next() {
		var (
			t             station.MonitorTarget
			thresholdsRaw []byte
		)
		if err := rows.Scan(&t.ID, &t.StationID, &t.Kind, &t.Enabled, &t.Interval, &thresholdsRaw, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if len(thresholdsRaw) > 0 {
			_ = json.Unmarshal(thresholdsRaw, &t.Thresholds)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) DeleteMonitorTarget(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM caffe_monitor_targets WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- TrainingStore ----------------------------------------------------------

func (s *Store) CreateCourse(ctx context.Context, c training.Course) (training.Course, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO caffe_courses (id, title, description, pass_score, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.Title, c.Description, c.PassScore, c.Active, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return training.Course{}, err
	}
	return c, nil
}

func (s *Store) UpdateCourse(ctx context.Context, c training.Course) (training.Course, error) {
	existing, err := s.GetCourse(ctx, c.ID)
	if err != nil {
		return training.Course{}, err
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE caffe_courses
		SET title = $2, description = $3, pass_score = $4, active = $5, updated_at = $6
		WHERE id = $1
	`, c.ID, c.Title, c.Description, c.PassScore, c.Active, c.UpdatedAt)
	if err != nil {
		return training.Course{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return training.Course{}, sql.ErrNoRows
	}
	return c, nil
}

func (s *Store) GetCourse(ctx context.Context, id string) (training.Course, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, pass_score, active, created_at, updated_at
		FROM caffe_courses
		WHERE id = $1
	`, id)

	var c training.Course
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &c.PassScore, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return training.Course{}, err
	}
	return c, nil
}

func (s *Store) ListCourses(ctx context.Context) ([]training.Course, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, pass_score, active, created_at, updated_at
		FROM caffe_courses
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []training.Course
	for rows.Next() {
		var c training.Course
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.PassScore, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) CreateModule(ctx context.Context, m training.Module) (training.Module, error) {
	if m.CourseID == "" {
		return training.Module{}, errors.New("course_id required")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO caffe_course_modules (id, course_id, title, sequence, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.CourseID, m.Title, m.Sequence, m.Content, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return training.Module{}, err
	}
	return m, nil
}

func (s *Store) UpdateModule(ctx context.Context, m training.Module) (training.Module, error) {
	existing, err := s.GetModule(ctx, m.ID)
	if err != nil {
		return training.Module{}, err
	}
	m.CourseID = existing.CourseID
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE caffe_course_modules
		SET title = $2, sequence = $3, content = $4, updated_at = $5
		WHERE id = $1
	`, m.ID, m.Title, m.Sequence, m.Content, m.UpdatedAt)
	if err != nil {
		return training.Module{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return training.Module{}, sql.ErrNoRows
	}
	return m, nil
}

func (s *Store) GetModule(ctx context.Context, id string) (training.Module, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, course_id, title, sequence, content, created_at, updated_at
		FROM caffe_course_modules
		WHERE id = $1
	`, id)

	var m training.Module
	if err := row.Scan(&m.ID, &m.CourseID, &m.Title, &m.Sequence, &m.Content, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return training.Module{}, err
	}
	return m, nil
}

func (s *Store) ListModules(ctx context.Context, courseID string) ([]training.Module, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, title, sequence, content, created_at, updated_at
		FROM caffe_course_modules
		WHERE $1 = '' OR course_id = $1
		ORDER BY sequence
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []training.Module
	for rows.Next() {
		var m training.Module
		if err := rows.Scan(&m.ID, &m.CourseID, &m.Title, &m.Sequence, &m.Content, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) DeleteModule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM caffe_course_modules WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) CreateEnrollment(ctx context.Context, e training.Enrollment) (training.Enrollment, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO caffe_enrollments (id, observer_id, course_id, status, score, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.ObserverID, e.CourseID, e.Status, e.Score, toNullTime(e.CompletedAt), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return training.Enrollment{}, err
	}
	return e, nil
}

func (s *Store) UpdateEnrollment(ctx context.Context, e training.Enrollment) (training.Enrollment, error) {
	existing, err := s.GetEnrollment(ctx, e.ID)
	if err != nil {
		return training.Enrollment{}, err
	}

	e.ObserverID = existing.ObserverID
	e.CourseID = existing.CourseID
	e.CreatedAt = existing.CreatedAt
	e.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE caffe_enrollments
		SET status = $2, score = $3, completed_at = $4, updated_at = $5
		WHERE id = $1
	`, e.ID, e.Status, e.Score, toNullTime(e.CompletedAt), e.UpdatedAt)
	if err != nil {
		return training.Enrollment{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return training.Enrollment{}, sql.ErrNoRows
	}
	return e, nil
}

func (s *Store) GetEnrollment(ctx context.Context, id string) (training.Enrollment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, observer_id, course_id, status, score, completed_at, created_at, updated_at
		FROM caffe_enrollments
		WHERE id = $1
	`, id)

	var (
		e           training.Enrollment
		completedAt sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.ObserverID, &e.CourseID, &e.Status, &e.Score, &completedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return training.Enrollment{}, err
	}
	if completedAt.Valid {
		e.CompletedAt = completedAt.Time.UTC()
	}
	return e, nil
}

func (s *Store) ListEnrollments(ctx context.Context, observerID string) ([]training.Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, observer_id, course_id, status, score, completed_at, created_at, updated_at
		FROM caffe_enrollments
		WHERE $1 = '' OR observer_id = $1
		ORDER BY created_at
	`, observerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []training.Enrollment
	for rows.Next() {
		var (
			e           training.Enrollment
			completedAt sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.ObserverID, &e.CourseID, &e.Status, &e.Score, &completedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			e.CompletedAt = completedAt.Time.UTC()
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// --- CertificateStore -------------------------------------------------------

func (s *Store) CreateCertificate(ctx context.Context, c certificate.Certificate) (certificate.Certificate, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO caffe_certificates (id, observer_id, course_id, serial_no, status, issued_at, expires_at, revoked_reason, created_at, updated_at)
		VALUES ($1, $2, $3, upper($4), $5, $6, $7, $8, $9, $10)
	`, c.ID, c.ObserverID, c.CourseID, c.SerialNo, c.Status, c.IssuedAt, toNullTime(c.ExpiresAt), c.RevokedReason, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return certificate.Certificate{}, err
	}
	return c, nil
}

func (s *Store) UpdateCertificate(ctx context.Context, c certificate.Certificate) (certificate.Certificate, error) {
	existing, err := s.GetCertificate(ctx, c.ID)
	if err != nil {
		return certificate.Certificate{}, err
	}

	c.ObserverID = existing.ObserverID
	c.CourseID = existing.CourseID
	c.SerialNo = existing.SerialNo
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE caffe_certificates
		SET status = $2, expires_at = $3, revoked_reason = $4, updated_at = $5
		WHERE id = $1
	`, c.ID, c.Status, toNullTime(c.ExpiresAt), c.RevokedReason, c.UpdatedAt)
	if err != nil {
		return certificate.Certificate{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return certificate.Certificate{}, sql.ErrNoRows
	}
	return c, nil
}

const certificateColumns = `id, observer_id, course_id, serial_no, status, issued_at, expires_at, revoked_reason, created_at, updated_at`

func scanCertificate(row interface{ Scan(...any) error }) (certificate.Certificate, error) {
	var (
		c         certificate.Certificate
		expiresAt sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.ObserverID, &c.CourseID, &c.SerialNo, &c.Status, &c.IssuedAt, &expiresAt, &c.RevokedReason, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return certificate.Certificate{}, err
	}
	if expiresAt.Valid {
		c.ExpiresAt = expiresAt.Time.UTC()
	}
	return c, nil
}

func (s *Store) GetCertificate(ctx context.Context, id string) (certificate.Certificate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+certificateColumns+`
		FROM caffe_certificates
		WHERE id = $1
	`, id)
	return scanCertificate(row)
}

func (s *Store) GetCertificateBySerial(ctx context.Context, serial string) (certificate.Certificate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+certificateColumns+`
		FROM caffe_certificates
		WHERE serial_no = upper($1)
	`, serial)
	return scanCertificate(row)
}

func (s *Store) ListCertificates(ctx context.Context, observerID string) ([]certificate.Certificate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+certificateColumns+`
		FROM caffe_certificates
		WHERE $1 = '' OR observer_id = $1
		ORDER BY created_at
	`, observerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []certificate.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) CountCertificates(ctx context.Context, year int) (int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM caffe_certificates
		WHERE $1 = 0 OR date_part('year', issued_at) = $1
	`, year)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// --- AlertStore -------------------------------------------------------------

func (s *Store) CreateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO caffe_alerts (id, severity, title, message, parish, station_id, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.Severity, a.Title, a.Message, a.Parish, a.StationID, a.Status, a.CreatedBy, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return alert.Alert{}, err
	}
	return a, nil
}

func (s *Store) UpdateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error) {
	existing, err := s.GetAlert(ctx, a.ID)
	if err != nil {
		return alert.Alert{}, err
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE caffe_alerts
		SET severity = $2, title = $3, message = $4, parish = $5, station_id = $6, status = $7, updated_at = $8
		WHERE id = $1
	`, a.ID, a.Severity, a.Title, a.Message, a.Parish, a.StationID, a.Status, a.UpdatedAt)
	if err != nil {
		return alert.Alert{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return alert.Alert{}, sql.ErrNoRows
	}
	return a, nil
}

func (s *Store) GetAlert(ctx context.Context, id string) (alert.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, severity, title, message, parish, station_id, status, created_by, created_at, updated_at
		FROM caffe_alerts
		WHERE id = $1
	`, id)

	var a alert.Alert
	if err := row.Scan(&a.ID, &a.Severity, &a.Title, &a.Message, &a.Parish, &a.StationID, &a.Status, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return alert.Alert{}, err
	}
	return a, nil
}

func (s *Store) ListAlerts(ctx context.Context, status alert.Status, parish string) ([]alert.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, severity, title, message, parish, station_id, status, created_by, created_at, updated_at
		FROM caffe_alerts
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR lower(parish) = lower($2))
		ORDER BY created_at DESC
	`, string(status), parish)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alert.Alert
	for rows.Next() {
		var a alert.Alert
		if err := rows.Scan(&a.ID, &a.Severity, &a.Title, &a.Message, &a.Parish, &a.StationID, &a.Status, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) CreateDelivery(ctx context.Context, d alert.Delivery) (alert.Delivery, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO caffe_alert_deliveries (id, alert_id, channel, target, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.ID, d.AlertID, d.Channel, d.Target, d.Status, d.Error, d.CreatedAt)
	if err != nil {
		return alert.Delivery{}, err
	}
	return d, nil
}

func (s *Store) ListDeliveries(ctx context.Context, alertID string) ([]alert.Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, alert_id, channel, target, status, error, created_at
		FROM caffe_alert_deliveries
		WHERE alert_id = $1
		ORDER BY created_at
	`, alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alert.Delivery
	for rows.Next() {
		var d alert.Delivery
		if err := rows.Scan(&d.ID, &d.AlertID, &d.Channel, &d.Target, &d.Status, &d.Error, &d.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// --- TrafficStore -----------------------------------------------------------

func (s *Store) CreateTrafficFeed(ctx context.Context, f traffic.Feed) (traffic.Feed, error) {
	if f.StationID == "" {
		return traffic.Feed{}, errors.New("station_id required")
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO caffe_traffic_feeds (id, station_id, interval, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, f.ID, f.StationID, f.Interval, f.Active, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return traffic.Feed{}, err
	}
	return f, nil
}

func (s *Store) UpdateTrafficFeed(ctx context.Context, f traffic.Feed) (traffic.Feed, error) {
	existing, err := s.GetTrafficFeed(ctx, f.ID)
	if err != nil {
		return traffic.Feed{}, err
	}

	f.StationID = existing.StationID
	f.CreatedAt = existing.CreatedAt
	f.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE caffe_traffic_feeds
		SET interval = $2, active = $3, updated_at = $4
		WHERE id = $1
	`, f.ID, f.Interval, f.Active, f.UpdatedAt)
	if err != nil {
		return traffic.Feed{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return traffic.Feed{}, sql.ErrNoRows
	}
	return f, nil
}

func (s *Store) GetTrafficFeed(ctx context.Context, id string) (traffic.Feed, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, station_id, interval, active, created_at, updated_at
		FROM caffe_traffic_feeds
		WHERE id = $1
	`, id)

	var f traffic.Feed
	if err := row.Scan(&f.ID, &f.StationID, &f.Interval, &f.Active, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return traffic.Feed{}, err
	}
	return f, nil
}

func (s *Store) ListTrafficFeeds(ctx context.Context, stationID string) ([]traffic.Feed, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, station_id, interval, active, created_at, updated_at
		FROM caffe_traffic_feeds
		WHERE $1 = '' OR station_id = $1
		ORDER BY created_at
	`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []traffic.Feed
	for rows.Next() {
		var f traffic.Feed
		if err := rows.Scan(&f.ID, &f.StationID, &f.Interval, &f.Active, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (s *Store) CreateTrafficSnapshot(ctx context.Context, snap traffic.Snapshot) (traffic.Snapshot, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	snap.CreatedAt = now
	if snap.CollectedAt.IsZero() {
		snap.CollectedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO caffe_traffic_snapshots (id, feed_id, severity, speed_kmh, delay_minutes, source, collected_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, snap.ID, snap.FeedID, snap.Severity, snap.SpeedKmh, snap.DelayMinutes, snap.Source, snap.CollectedAt, snap.CreatedAt)
	if err != nil {
		return traffic.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) ListTrafficSnapshots(ctx context.Context, feedID string) ([]traffic.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, feed_id, severity, speed_kmh, delay_minutes, source, collected_at, created_at
		FROM caffe_traffic_snapshots
		WHERE feed_id = $1
		ORDER BY collected_at DESC
	`, feedID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []traffic.Snapshot
	for rows.Next() {
		var snap traffic.Snapshot
		if err := rows.Scan(&snap.ID, &snap.FeedID, &snap.Severity, &snap.SpeedKmh, &snap.DelayMinutes, &snap.Source, &snap.CollectedAt, &snap.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}

// --- WeatherStore -----------------------------------------------------------

func (s *Store) CreateWeatherSnapshot(ctx context.Context, snap weather.Snapshot) (weather.Snapshot, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	snap.CreatedAt = now
	if snap.CollectedAt.IsZero() {
		snap.CollectedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO caffe_weather_snapshots (id, station_id, condition, temp_c, rain_probability, wind_kmh, source, collected_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, snap.ID, snap.StationID, snap.Condition, snap.TempC, snap.RainProbability, snap.WindKmh, snap.Source, snap.CollectedAt, snap.CreatedAt)
	if err != nil {
		return weather.Snapshot{}, err
	}
	return snap, nil
}

const weatherColumns = `id, station_id, condition, temp_c, rain_probability, wind_kmh, source, collected_at, created_at`

func scanWeather(row interface{ Scan(...any) error }) (weather.Snapshot, error) {
	var snap weather.Snapshot
	if err := row.Scan(&snap.ID, &snap.StationID, &snap.Condition, &snap.TempC, &snap.RainProbability, &snap.WindKmh, &snap.Source, &snap.CollectedAt, &snap.CreatedAt); err != nil {
		return weather.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) ListWeatherSnapshots(ctx context.Context, stationID string) ([]weather.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+weatherColumns+`
		FROM caffe_weather_snapshots
		WHERE station_id = $1
		ORDER BY collected_at DESC
	`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []weather.Snapshot
	for rows.Next() {
		snap, err := scanWeather(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}

func (s *Store) LatestWeatherSnapshot(ctx context.Context, stationID string) (weather.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+weatherColumns+`
		FROM caffe_weather_snapshots
		WHERE station_id = $1
		ORDER BY collected_at DESC
		LIMIT 1
	`, stationID)
	return scanWeather(row)
}

// --- AnalysisStore ----------------------------------------------------------

func (s *Store) CreateAnalysisRequest(ctx context.Context, r analysis.Request) (analysis.Request, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	contextJSON, err := json.Marshal(r.Context)
	if err != nil {
		return analysis.Request{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO caffe_analysis_requests (id, kind, station_id, subject, context, status, result, error, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, r.ID, r.Kind, r.StationID, r.Subject, contextJSON, r.Status, r.Result, r.Error, r.CreatedAt, r.UpdatedAt, toNullTime(r.CompletedAt))
	if err != nil {
		return analysis.Request{}, err
	}
	return r, nil
}

func (s *Store) UpdateAnalysisRequest(ctx context.Context, r analysis.Request) (analysis.Request, error) {
	existing, err := s.GetAnalysisRequest(ctx, r.ID)
	if err != nil {
		return analysis.Request{}, err
	}

	r.Kind = existing.Kind
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()

	contextJSON, err := json.Marshal(r.Context)
	if err != nil {
		return analysis.Request{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE caffe_analysis_requests
		SET station_id = $2, subject = $3, context = $4, status = $5, result = $6, error = $7, updated_at = $8, completed_at = $9
		WHERE id = $1
	`, r.ID, r.StationID, r.Subject, contextJSON, r.Status, r.Result, r.Error, r.UpdatedAt, toNullTime(r.CompletedAt))
	if err != nil {
		return analysis.Request{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return analysis.Request{}, sql.ErrNoRows
	}
	return r, nil
}

const analysisColumns = `id, kind, station_id, subject, context, status, result, error, created_at, updated_at, completed_at`

func scanAnalysis(row interface{ Scan(...any) error }) (analysis.Request, error) {
	var (
		r           analysis.Request
		contextRaw  []byte
		completedAt sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.Kind, &r.StationID, &r.Subject, &contextRaw, &r.Status, &r.Result, &r.Error, &r.CreatedAt, &r.UpdatedAt, &completedAt); err != nil {
		return analysis.Request{}, err
	}
	if len(contextRaw) > 0 {
		_ = json.Unmarshal(contextRaw, &r.Context)
	}
	if completedAt.Valid {
		r.CompletedAt = completedAt.Time.UTC()
	}
	return r, nil
}

func (s *Store) GetAnalysisRequest(ctx context.Context, id string) (analysis.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+analysisColumns+`
		FROM caffe_analysis_requests
		WHERE id = $1
	`, id)
	return scanAnalysis(row)
}

func (s *Store) ListAnalysisRequests(ctx context.Context, kind analysis.Kind) ([]analysis.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+analysisColumns+`
		FROM caffe_analysis_requests
		WHERE $1 = '' OR kind = $1
		ORDER BY created_at DESC
	`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []analysis.Request
	for rows.Next() {
		r, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) ListPendingAnalysisRequests(ctx context.Context) ([]analysis.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+analysisColumns+`
		FROM caffe_analysis_requests
		WHERE status IN ('pending','running')
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []analysis.Request
	for rows.Next() {
		r, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// --- SettingStore -----------------------------------------------------------

func (s *Store) PutSetting(ctx context.Context, set settings.Setting) (settings.Setting, error) {
	set.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO caffe_settings (key, value, category, secret, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, category = EXCLUDED.category, secret = EXCLUDED.secret, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
	`, set.Key, set.Value, set.Category, set.Secret, set.UpdatedBy, set.UpdatedAt)
	if err != nil {
		return settings.Setting{}, err
	}
	return set, nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (settings.Setting, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, value, category, secret, updated_by, updated_at
		FROM caffe_settings
		WHERE key = $1
	`, key)

	var set settings.Setting
	if err := row.Scan(&set.Key, &set.Value, &set.Category, &set.Secret, &set.UpdatedBy, &set.UpdatedAt); err != nil {
		return settings.Setting{}, err
	}
	return set, nil
}

func (s *Store) ListSettings(ctx context.Context, category string) ([]settings.Setting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, category, secret, updated_by, updated_at
		FROM caffe_settings
		WHERE $1 = '' OR lower(category) = lower($1)
		ORDER BY key
	`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []settings.Setting
	for rows.Next() {
		var set settings.Setting
		if err := rows.Scan(&set.Key, &set.Value, &set.Category, &set.Secret, &set.UpdatedBy, &set.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, set)
	}
	return result, rows.Err()
}

func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM caffe_settings WHERE key = $1
	`, key)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- AdminStore -------------------------------------------------------------

func (s *Store) CreateAdminUser(ctx context.Context, u admin.User) (admin.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO caffe_admin_users (id, username, password_hash, role, created_at, updated_at)
		VALUES ($1, lower($2), $3, $4, $5, $6)
	`, u.ID, u.Username, u.PasswordHash, u.Role, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return admin.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateAdminUser(ctx context.Context, u admin.User) (admin.User, error) {
	existing, err := s.GetAdminUser(ctx, u.ID)
	if err != nil {
		return admin.User{}, err
	}

	u.Username = existing.Username
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE caffe_admin_users
		SET password_hash = $2, role = $3, updated_at = $4
		WHERE id = $1
	`, u.ID, u.PasswordHash, u.Role, u.UpdatedAt)
	if err != nil {
		return admin.User{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return admin.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) GetAdminUser(ctx context.Context, id string) (admin.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, created_at, updated_at
		FROM caffe_admin_users
		WHERE id = $1
	`, id)

	var u admin.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return admin.User{}, err
	}
	return u, nil
}

func (s *Store) GetAdminUserByUsername(ctx context.Context, username string) (admin.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, created_at, updated_at
		FROM caffe_admin_users
		WHERE username = lower($1)
	`, username)

	var u admin.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return admin.User{}, err
	}
	return u, nil
}

func (s *Store) ListAdminUsers(ctx context.Context) ([]admin.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password_hash, role, created_at, updated_at
		FROM caffe_admin_users
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []admin.User
	for rows.Next() {
		var u admin.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
