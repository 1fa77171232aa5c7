package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"

	"github.com/caffe-ja/observer-platform/internal/app/domain/alert"
	"github.com/caffe-ja/observer-platform/internal/app/domain/observer"
	"github.com/caffe-ja/observer-platform/internal/app/domain/station"
	"github.com/caffe-ja/observer-platform/internal/app/domain/training"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := New(db)

	ctx := context.Background()
	obs, err := store.CreateObserver(ctx, observer.Observer{
		FullName:  "Marcia Brown",
		Email:     "marcia.brown@caffe.org.jm",
		Parish:    "St. Andrew",
		Status:    observer.StatusPending,
		KYCStatus: observer.KYCUnverified,
	})
	if err != nil {
		t.Fatalf("create observer: %v", err)
	}

	st, err := store.CreateStation(ctx, station.Station{Code: "KSA-001", Name: "Mona Primary", Parish: "St. Andrew", Active: true})
	if err != nil {
		t.Fatalf("create station: %v", err)
	}

	if _, err := store.CreateMonitorTarget(ctx, station.MonitorTarget{StationID: st.ID, Kind: station.TargetTraffic, Enabled: true, Interval: "@every 5m"}); err != nil {
		t.Fatalf("create monitor target: %v", err)
	}

	course, err := store.CreateCourse(ctx, training.Course{Title: "Observer Basics", PassScore: 70, Active: true})
	if err != nil {
		t.Fatalf("create course: %v", err)
	}
	if _, err := store.CreateEnrollment(ctx, training.Enrollment{ObserverID: obs.ID, CourseID: course.ID, Status: training.EnrollmentEnrolled}); err != nil {
		t.Fatalf("create enrollment: %v", err)
	}

	if _, err := store.CreateAlert(ctx, alert.Alert{Severity: alert.SeverityWarning, Title: "Road blocked", Parish: "St. Andrew", Status: alert.StatusOpen}); err != nil {
		t.Fatalf("create alert: %v", err)
	}
}

func TestUpdateObserverNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM caffe_observers").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	store := New(db)
	_, err = store.UpdateObserver(context.Background(), observer.Observer{ID: "missing"})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteMonitorTargetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("DELETE FROM caffe_monitor_targets").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := New(db)
	if err := store.DeleteMonitorTarget(context.Background(), "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
