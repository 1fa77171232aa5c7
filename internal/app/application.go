package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	adminsvc "github.com/caffe-ja/observer-platform/internal/app/services/admin"
	alertsvc "github.com/caffe-ja/observer-platform/internal/app/services/alerts"
	analysissvc "github.com/caffe-ja/observer-platform/internal/app/services/analysis"
	certsvc "github.com/caffe-ja/observer-platform/internal/app/services/certificates"
	observersvc "github.com/caffe-ja/observer-platform/internal/app/services/observers"
	settingsvc "github.com/caffe-ja/observer-platform/internal/app/services/settings"
	stationsvc "github.com/caffe-ja/observer-platform/internal/app/services/stations"
	trafficsvc "github.com/caffe-ja/observer-platform/internal/app/services/trafficfeeds"
	trainingsvc "github.com/caffe-ja/observer-platform/internal/app/services/training"
	weathersvc "github.com/caffe-ja/observer-platform/internal/app/services/weatherfeeds"
	"github.com/caffe-ja/observer-platform/internal/app/storage"
	"github.com/caffe-ja/observer-platform/internal/app/storage/memory"
	"github.com/caffe-ja/observer-platform/internal/app/system"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Observers    storage.ObserverStore
	Stations     storage.StationStore
	Training     storage.TrainingStore
	Certificates storage.CertificateStore
	Alerts       storage.AlertStore
	Traffic      storage.TrafficStore
	Weather      storage.WeatherStore
	Analysis     storage.AnalysisStore
	Settings     storage.SettingStore
	Admin        storage.AdminStore
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Observers    *observersvc.Service
	Stations     *stationsvc.Service
	Training     *trainingsvc.Service
	Certificates *certsvc.Service
	Alerts       *alertsvc.Service
	AlertHub     *alertsvc.Hub
	Traffic      *trafficsvc.Service
	Weather      *weathersvc.Service
	Analysis     *analysissvc.Service
	Settings     *settingsvc.Service
	Admin        *adminsvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Observers == nil {
		stores.Observers = mem
	}
	if stores.Stations == nil {
		stores.Stations = mem
	}
	if stores.Training == nil {
		stores.Training = mem
	}
	if stores.Certificates == nil {
		stores.Certificates = mem
	}
	if stores.Alerts == nil {
		stores.Alerts = mem
	}
	if stores.Traffic == nil {
		stores.Traffic = mem
	}
	if stores.Weather == nil {
		stores.Weather = mem
	}
	if stores.Analysis == nil {
		stores.Analysis = mem
	}
	if stores.Settings == nil {
		stores.Settings = mem
	}
	if stores.Admin == nil {
		stores.Admin = mem
	}

	manager := system.NewManager()
	httpClient := &http.Client{Timeout: 10 * time.Second}

	stationService := stationsvc.New(stores.Stations, log)
	observerService := observersvc.New(stores.Observers, stores.Stations, log)
	trainingService := trainingsvc.New(stores.Training, stores.Observers, log)
	certService := certsvc.New(stores.Certificates, stores.Observers, stores.Training, log)
	alertService := alertsvc.New(stores.Alerts, stores.Observers, log)
	trafficService := trafficsvc.New(stores.Traffic, stores.Stations, log)
	weatherService := weathersvc.New(stores.Weather, stores.Stations, log)
	analysisService := analysissvc.New(stores.Analysis, stores.Stations, log)
	settingService := settingsvc.New(stores.Settings, log)
	adminService := adminsvc.New(stores.Admin, log)

	trainingService.AttachIssuer(certService)
	settingsvc.DefaultProviders(settingService, httpClient)

	hub := alertsvc.NewHub(log)
	alertService.AttachHub(hub)

	if endpoint := strings.TrimSpace(os.Getenv("MESSAGING_URL")); endpoint != "" {
		notifier, err := alertsvc.NewHTTPNotifier(httpClient, endpoint, os.Getenv("MESSAGING_KEY"), os.Getenv("MESSAGING_SENDER"), log)
		if err != nil {
			log.WithError(err).Warn("configure alert notifier")
		} else {
			alertService.AttachNotifier(notifier)
		}
	} else {
		log.Warn("MESSAGING_URL not set; alert SMS delivery disabled")
	}

	if endpoint := strings.TrimSpace(os.Getenv("KYC_VERIFIER_URL")); endpoint != "" {
		verifier, err := observersvc.NewHTTPVerifier(httpClient, endpoint, os.Getenv("KYC_VERIFIER_KEY"), log)
		if err != nil {
			log.WithError(err).Warn("configure kyc verifier")
		} else {
			observerService.AttachVerifier(verifier)
		}
	} else {
		log.Warn("KYC_VERIFIER_URL not set; observer verification disabled")
	}

	if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		trafficService.AttachCache(trafficsvc.NewCache(client))
	}

	for _, name := range []string{"observers", "stations", "training", "certificates", "settings", "admin"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	trafficRunner := trafficsvc.NewRefresher(trafficService, stores.Stations, log)
	if endpoint := strings.TrimSpace(os.Getenv("TRAFFIC_FETCH_URL")); endpoint != "" {
		fetcher, err := trafficsvc.NewHTTPFetcher(httpClient, endpoint, os.Getenv("TRAFFIC_FETCH_KEY"), log)
		if err != nil {
			log.WithError(err).Warn("configure traffic fetcher")
		} else {
			trafficRunner.WithFetcher(fetcher)
		}
	} else {
		log.Warn("TRAFFIC_FETCH_URL not set; traffic refresher will serve fallback data")
	}

	weatherRunner := weathersvc.NewRefresher(weatherService, stores.Stations, log)
	if endpoint := strings.TrimSpace(os.Getenv("WEATHER_FETCH_URL")); endpoint != "" {
		fetcher, err := weathersvc.NewHTTPFetcher(httpClient, endpoint, os.Getenv("WEATHER_FETCH_KEY"), log)
		if err != nil {
			log.WithError(err).Warn("configure weather fetcher")
		} else {
			weatherRunner.WithFetcher(fetcher)
		}
	} else {
		log.Warn("WEATHER_FETCH_URL not set; weather refresher will serve fallback data")
	}

	analysisRunner := analysissvc.NewDispatcher(analysisService, log)
	if apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); apiKey != "" {
		resolver, err := analysissvc.NewGeminiResolver(&http.Client{Timeout: 30 * time.Second}, apiKey, os.Getenv("GEMINI_MODEL"), log)
		if err != nil {
			log.WithError(err).Warn("configure analysis resolver")
		} else {
			analysisRunner.WithResolver(resolver)
		}
	} else {
		log.Warn("GEMINI_API_KEY not set; analysis requests will resolve to fallback results")
	}

	sweeper := certsvc.NewSweeper(certService, log)

	for _, svc := range []system.Service{trafficRunner, weatherRunner, analysisRunner, sweeper} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:      manager,
		log:          log,
		Observers:    observerService,
		Stations:     stationService,
		Training:     trainingService,
		Certificates: certService,
		Alerts:       alertService,
		AlertHub:     hub,
		Traffic:      trafficService,
		Weather:      weatherService,
		Analysis:     analysisService,
		Settings:     settingService,
		Admin:        adminService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	if a.AlertHub != nil {
		a.AlertHub.Close()
	}
	return a.manager.Stop(ctx)
}
