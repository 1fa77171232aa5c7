package storage

import (
	"context"

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
)

// ObserverStore persists observer records.
type ObserverStore interface {
	CreateObserver(ctx context.Context, obs observer.Observer) (observer.Observer, error)
	UpdateObserver(ctx context.Context, obs observer.Observer) (observer.Observer, error)
	GetObserver(ctx context.Context, id string) (observer.Observer, error)
	GetObserverByEmail(ctx context.Context, email string) (observer.Observer, error)
	ListObservers(ctx context.Context, parish string) ([]observer.Observer, error)
	DeleteObserver(ctx context.Context, id string) error
}

// StationStore persists polling stations and their monitor targets.
type StationStore interface {
	CreateStation(ctx context.Context, st station.Station) (station.Station, error)
	UpdateStation(ctx context.Context, st station.Station) (station.Station, error)
	GetStation(ctx context.Context, id string) (station.Station, error)
	GetStationByCode(ctx context.Context, code string) (station.Station, error)
	ListStations(ctx context.Context, parish string) ([]station.Station, error)

	CreateMonitorTarget(ctx context.Context, t station.MonitorTarget) (station.MonitorTarget, error)
	UpdateMonitorTarget(ctx context.Context, t station.MonitorTarget) (station.MonitorTarget, error)
	GetMonitorTarget(ctx context.Context, id string) (station.MonitorTarget, error)
	ListMonitorTargets(ctx context.Context, stationID string, kind station.TargetKind) ([]station.MonitorTarget, error)
	DeleteMonitorTarget(ctx context.Context, id string) error
}

// TrainingStore persists courses, modules, and enrollments.
type TrainingStore interface {
	CreateCourse(ctx context.Context, c training.Course) (training.Course, error)
	UpdateCourse(ctx context.Context, c training.Course) (training.Course, error)
	GetCourse(ctx context.Context, id string) (training.Course, error)
	ListCourses(ctx context.Context) ([]training.Course, error)

	CreateModule(ctx context.Context, m training.Module) (training.Module, error)
	UpdateModule(ctx context.Context, m training.Module) (training.Module, error)
	GetModule(ctx context.Context, id string) (training.Module, error)
	ListModules(ctx context.Context, courseID string) ([]training.Module, error)
	DeleteModule(ctx context.Context, id string) error

	CreateEnrollment(ctx context.Context, e training.Enrollment) (training.Enrollment, error)
	UpdateEnrollment(ctx context.Context, e training.Enrollment) (training.Enrollment, error)
	GetEnrollment(ctx context.Context, id string) (training.Enrollment, error)
	ListEnrollments(ctx context.Context, observerID string) ([]training.Enrollment, error)
}

// CertificateStore persists issued certificates.
type CertificateStore interface {
	CreateCertificate(ctx context.Context, c certificate.Certificate) (certificate.Certificate, error)
	UpdateCertificate(ctx context.Context, c certificate.Certificate) (certificate.Certificate, error)
	GetCertificate(ctx context.Context, id string) (certificate.Certificate, error)
	GetCertificateBySerial(ctx context.Context, serial string) (certificate.Certificate, error)
	ListCertificates(ctx context.Context, observerID string) ([]certificate.Certificate, error)
	CountCertificates(ctx context.Context, year int) (int, error)
}

// AlertStore persists alerts and delivery records.
type AlertStore interface {
	CreateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error)
	UpdateAlert(ctx context.Context, a alert.Alert) (alert.Alert, error)
	GetAlert(ctx context.Context, id string) (alert.Alert, error)
	ListAlerts(ctx context.Context, status alert.Status, parish string) ([]alert.Alert, error)

	CreateDelivery(ctx context.Context, d alert.Delivery) (alert.Delivery, error)
	ListDeliveries(ctx context.Context, alertID string) ([]alert.Delivery, error)
}

// TrafficStore persists traffic feeds and snapshots.
type TrafficStore interface {
	CreateTrafficFeed(ctx context.Context, f traffic.Feed) (traffic.Feed, error)
	UpdateTrafficFeed(ctx context.Context, f traffic.Feed) (traffic.Feed, error)
	GetTrafficFeed(ctx context.Context, id string) (traffic.Feed, error)
	ListTrafficFeeds(ctx context.Context, stationID string) ([]traffic.Feed, error)

	CreateTrafficSnapshot(ctx context.Context, s traffic.Snapshot) (traffic.Snapshot, error)
	ListTrafficSnapshots(ctx context.Context, feedID string) ([]traffic.Snapshot, error)
}

// WeatherStore persists weather snapshots.
type WeatherStore interface {
	CreateWeatherSnapshot(ctx context.Context, s weather.Snapshot) (weather.Snapshot, error)
	ListWeatherSnapshots(ctx context.Context, stationID string) ([]weather.Snapshot, error)
	LatestWeatherSnapshot(ctx context.Context, stationID string) (weather.Snapshot, error)
}

// AnalysisStore persists AI analysis requests.
type AnalysisStore interface {
	CreateAnalysisRequest(ctx context.Context, r analysis.Request) (analysis.Request, error)
	UpdateAnalysisRequest(ctx context.Context, r analysis.Request) (analysis.Request, error)
	GetAnalysisRequest(ctx context.Context, id string) (analysis.Request, error)
	ListAnalysisRequests(ctx context.Context, kind analysis.Kind) ([]analysis.Request, error)
	ListPendingAnalysisRequests(ctx context.Context) ([]analysis.Request, error)
}

// SettingStore persists admin settings.
type SettingStore interface {
	PutSetting(ctx context.Context, s settings.Setting) (settings.Setting, error)
	GetSetting(ctx context.Context, key string) (settings.Setting, error)
	ListSettings(ctx context.Context, category string) ([]settings.Setting, error)
	DeleteSetting(ctx context.Context, key string) error
}

// AdminStore persists admin console users.
type AdminStore interface {
	CreateAdminUser(ctx context.Context, u admin.User) (admin.User, error)
	UpdateAdminUser(ctx context.Context, u admin.User) (admin.User, error)
	GetAdminUser(ctx context.Context, id string) (admin.User, error)
	GetAdminUserByUsername(ctx context.Context, username string) (admin.User, error)
	ListAdminUsers(ctx context.Context) ([]admin.User, error)
}
