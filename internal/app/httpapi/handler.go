package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	app "github.com/caffe-ja/observer-platform/internal/app"
	"github.com/caffe-ja/observer-platform/internal/app/domain/admin"
	"github.com/caffe-ja/observer-platform/internal/app/domain/alert"
	"github.com/caffe-ja/observer-platform/internal/app/domain/analysis"
	"github.com/caffe-ja/observer-platform/internal/app/domain/certificate"
	"github.com/caffe-ja/observer-platform/internal/app/domain/observer"
	"github.com/caffe-ja/observer-platform/internal/app/domain/station"
	"github.com/caffe-ja/observer-platform/internal/app/domain/traffic"
	"github.com/caffe-ja/observer-platform/internal/app/metrics"
)

// Options configures the API surface around the domain services.
type Options struct {
	JWTSecret     string
	APITokens     []string
	AuditLogPath  string
	RatePerSecond float64
	RateBurst     int
	AllowedOrigin string
	Health        http.Handler
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app       *app.Application
	audit     *auditLog
	jwtSecret []byte
	apiTokens map[string]bool
	health    http.Handler
}

// NewHandler returns the REST API wrapped in the middleware chain.
func NewHandler(application *app.Application, opts Options) (http.Handler, error) {
	if strings.TrimSpace(opts.JWTSecret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	sink, err := newFileAuditSink(opts.AuditLogPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	h := &handler{
		app:       application,
		jwtSecret: []byte(opts.JWTSecret),
		apiTokens: make(map[string]bool),
		health:    opts.Health,
	}
	if sink != nil {
		h.audit = newAuditLog(0, sink)
	} else {
		h.audit = newAuditLog(0, nil)
	}
	for _, token := range opts.APITokens {
		if t := strings.TrimSpace(token); t != "" {
			h.apiTokens[t] = true
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", h.login)
	mux.HandleFunc("/observers", h.observers)
	mux.HandleFunc("/observers/", h.observerResources)
	mux.HandleFunc("/stations", h.stations)
	mux.HandleFunc("/stations/", h.stationResources)
	mux.HandleFunc("/courses", h.courses)
	mux.HandleFunc("/courses/", h.courseResources)
	mux.HandleFunc("/enrollments", h.enrollments)
	mux.HandleFunc("/enrollments/", h.enrollmentResources)
	mux.HandleFunc("/certificates", h.certificates)
	mux.HandleFunc("/certificates/", h.certificateResources)
	mux.HandleFunc("/alerts", h.alerts)
	mux.HandleFunc("/alerts/", h.alertResources)
	mux.HandleFunc("/analysis", h.analysisCollection)
	mux.HandleFunc("/analysis/", h.analysisResources)
	mux.HandleFunc("/settings", h.settings)
	mux.HandleFunc("/settings/", h.settingResources)
	mux.HandleFunc("/admin/users", h.adminUsers)
	mux.HandleFunc("/admin/users/", h.adminUserResources)
	mux.HandleFunc("/audit", h.auditEntries)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", h.healthz)

	limiter := newRateLimiter(opts.RatePerSecond, opts.RateBurst)

	var chain http.Handler = mux
	chain = h.audit.record(chain)
	chain = h.authenticate(chain)
	chain = cors(opts.AllowedOrigin, chain)
	chain = limiter.middleware(chain)
	chain = metrics.InstrumentHandler(chain)
	return chain, nil
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		h.health.ServeHTTP(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := h.app.Admin.Authenticate(r.Context(), payload.Username, payload.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	token, expires, err := h.issueToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"role":       user.Role,
		"expires_at": expires.UTC().Format(time.RFC3339),
	})
}

func (h *handler) observers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			FullName  string            `json:"full_name"`
			Email     string            `json:"email"`
			Phone     string            `json:"phone"`
			Parish    string            `json:"parish"`
			StationID string            `json:"station_id"`
			Metadata  map[string]string `json:"metadata"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		obs, err := h.app.Observers.Register(r.Context(), payload.FullName, payload.Email, payload.Phone, payload.Parish, payload.StationID, payload.Metadata)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, obs)

	case http.MethodGet:
		obs, err := h.app.Observers.List(r.Context(), r.URL.Query().Get("parish"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, obs)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) observerResources(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/observers")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if parts[0] == "kyc" {
		if len(parts) == 2 && parts[1] == "callback" {
			h.kycCallback(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		return
	}

	observerID := parts[0]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			obs, err := h.app.Observers.Get(r.Context(), observerID)
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, obs)
		case http.MethodPatch:
			var payload struct {
				Phone     *string           `json:"phone"`
				Parish    *string           `json:"parish"`
				StationID *string           `json:"station_id"`
				Metadata  map[string]string `json:"metadata"`
				Status    *string           `json:"status"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			obs, err := h.app.Observers.Get(r.Context(), observerID)
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			if payload.Phone != nil || payload.Parish != nil || payload.StationID != nil || payload.Metadata != nil {
				obs, err = h.app.Observers.Update(r.Context(), observerID, payload.Phone, payload.Parish, payload.StationID, payload.Metadata)
				if err != nil {
					writeError(w, http.StatusBadRequest, err)
					return
				}
			}
			if payload.Status != nil {
				obs, err = h.app.Observers.SetStatus(r.Context(), observerID, observer.Status(*payload.Status))
				if err != nil {
					writeError(w, http.StatusBadRequest, err)
					return
				}
			}
			writeJSON(w, http.StatusOK, obs)
		case http.MethodDelete:
			if err := h.app.Observers.Delete(r.Context(), observerID); err != nil {
				status := http.StatusBadRequest
				if errors.Is(err, sql.ErrNoRows) {
					status = http.StatusNotFound
				}
				writeError(w, status, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "kyc":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		obs, url, err := h.app.Observers.StartKYC(r.Context(), observerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"observer": obs,
			"url":      url,
		})
	case "certificates":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		certs, err := h.app.Certificates.List(r.Context(), observerID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, certs)
	case "enrollments":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		enrollments, err := h.app.Training.ListEnrollments(r.Context(), observerID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, enrollments)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) kycCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		ReferenceID string `json:"reference_id"`
		Approved    bool   `json:"approved"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	obs, err := h.app.Observers.CompleteKYC(r.Context(), payload.ReferenceID, payload.Approved)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

func (h *handler) stations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Code    string  `json:"code"`
			Name    string  `json:"name"`
			Parish  string  `json:"parish"`
			Address string  `json:"address"`
			Lat     float64 `json:"lat"`
			Lng     float64 `json:"lng"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		st, err := h.app.Stations.Create(r.Context(), payload.Code, payload.Name, payload.Parish, payload.Address, payload.Lat, payload.Lng)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, st)

	case http.MethodGet:
		if code := strings.TrimSpace(r.URL.Query().Get("code")); code != "" {
			st, err := h.app.Stations.GetByCode(r.Context(), code)
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, st)
			return
		}
		sts, err := h.app.Stations.List(r.Context(), r.URL.Query().Get("parish"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, sts)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) stationResources(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/stations")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	stationID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			st, err := h.app.Stations.Get(r.Context(), stationID)
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, st)
		case http.MethodPatch:
			var payload struct {
				Name    *string `json:"name"`
				Parish  *string `json:"parish"`
				Address *string `json:"address"`
				Active  *bool   `json:"active"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			st, err := h.app.Stations.Update(r.Context(), stationID, payload.Name, payload.Parish, payload.Address, payload.Active)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, st)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "targets":
		h.stationTargets(w, r, stationID, parts[2:])
	case "traffic":
		h.stationTraffic(w, r, stationID, parts[2:])
	case "weather":
		h.stationWeather(w, r, stationID, parts[2:])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) stationTargets(w http.ResponseWriter, r *http.Request, stationID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			targets, err := h.app.Stations.ListTargets(r.Context(), stationID, station.TargetKind(r.URL.Query().Get("kind")))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, targets)
		case http.MethodPost:
			var payload struct {
				Kind       string             `json:"kind"`
				Interval   string             `json:"interval"`
				Thresholds map[string]float64 `json:"thresholds"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			target, err := h.app.Stations.AddTarget(r.Context(), stationID, station.TargetKind(payload.Kind), payload.Interval, payload.Thresholds)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusCreated, target)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	targetID := rest[0]
	switch r.Method {
	case http.MethodPatch:
		var payload struct {
			Interval   *string            `json:"interval"`
			Thresholds map[string]float64 `json:"thresholds"`
			Enabled    *bool              `json:"enabled"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		target, err := h.app.Stations.UpdateTarget(r.Context(), targetID, payload.Interval, payload.Thresholds, payload.Enabled)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, target)
	case http.MethodDelete:
		if err := h.app.Stations.RemoveTarget(r.Context(), targetID); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeError(w, status, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) stationTraffic(w http.ResponseWriter, r *http.Request, stationID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			feeds, err := h.app.Traffic.ListFeeds(r.Context(), stationID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if len(feeds) == 0 {
				writeErrorMsg(w, http.StatusNotFound, "no traffic feed for station")
				return
			}
			feed := feeds[0]
			out := map[string]any{"feed": feed}
			if latest, err := h.app.Traffic.Latest(r.Context(), feed.ID); err == nil {
				out["latest"] = latest
			}
			window := time.Hour
			if raw := strings.TrimSpace(r.URL.Query().Get("window")); raw != "" {
				parsed, err := time.ParseDuration(raw)
				if err != nil {
					writeErrorMsg(w, http.StatusBadRequest, "window must be a duration such as 1h")
					return
				}
				window = parsed
			}
			if summary, err := h.app.Traffic.Summarize(r.Context(), feed.ID, window); err == nil {
				out["summary"] = summary
			}
			writeJSON(w, http.StatusOK, out)
		case http.MethodPost:
			var payload struct {
				Interval string `json:"interval"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			feed, err := h.app.Traffic.CreateFeed(r.Context(), stationID, payload.Interval)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusCreated, feed)
		case http.MethodPatch:
			var payload struct {
				Active *bool `json:"active"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if payload.Active == nil {
				writeErrorMsg(w, http.StatusBadRequest, "active is required")
				return
			}
			feeds, err := h.app.Traffic.ListFeeds(r.Context(), stationID)
			if err != nil || len(feeds) == 0 {
				writeErrorMsg(w, http.StatusNotFound, "no traffic feed for station")
				return
			}
			feed, err := h.app.Traffic.SetActive(r.Context(), feeds[0].ID, *payload.Active)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, feed)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if rest[0] != "snapshots" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	feeds, err := h.app.Traffic.ListFeeds(r.Context(), stationID)
	if err != nil || len(feeds) == 0 {
		writeErrorMsg(w, http.StatusNotFound, "no traffic feed for station")
		return
	}
	feedID := feeds[0].ID

	switch r.Method {
	case http.MethodGet:
		snaps, err := h.app.Traffic.ListSnapshots(r.Context(), feedID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, snaps)
	case http.MethodPost:
		var payload struct {
			Severity     string  `json:"severity"`
			SpeedKmh     float64 `json:"speed_kmh"`
			DelayMinutes float64 `json:"delay_minutes"`
			Source       string  `json:"source"`
			CollectedAt  string  `json:"collected_at"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		collected, ok := parseOptionalTime(w, payload.CollectedAt)
		if !ok {
			return
		}
		snap, err := h.app.Traffic.RecordSnapshot(r.Context(), feedID, traffic.Severity(payload.Severity), payload.SpeedKmh, payload.DelayMinutes, payload.Source, collected)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, snap)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) stationWeather(w http.ResponseWriter, r *http.Request, stationID string, rest []string) {
	if len(rest) == 1 && rest[0] == "history" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		snaps, err := h.app.Weather.List(r.Context(), stationID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, snaps)
		return
	}
	if len(rest) != 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		snap, err := h.app.Weather.Latest(r.Context(), stationID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	case http.MethodPost:
		var payload struct {
			Condition       string  `json:"condition"`
			TempC           float64 `json:"temp_c"`
			RainProbability float64 `json:"rain_probability"`
			WindKmh         float64 `json:"wind_kmh"`
			Source          string  `json:"source"`
			CollectedAt     string  `json:"collected_at"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		collected, ok := parseOptionalTime(w, payload.CollectedAt)
		if !ok {
			return
		}
		snap, err := h.app.Weather.RecordSnapshot(r.Context(), stationID, payload.Condition, payload.TempC, payload.RainProbability, payload.WindKmh, payload.Source, collected)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, snap)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) courses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			PassScore   int    `json:"pass_score"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		course, err := h.app.Training.CreateCourse(r.Context(), payload.Title, payload.Description, payload.PassScore)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, course)

	case http.MethodGet:
		courses, err := h.app.Training.ListCourses(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, courses)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) courseResources(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/courses")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	courseID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			course, err := h.app.Training.GetCourse(r.Context(), courseID)
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, course)
		case http.MethodPatch:
			var payload struct {
				Title       *string `json:"title"`
				Description *string `json:"description"`
				PassScore   *int    `json:"pass_score"`
				Active      *bool   `json:"active"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			course, err := h.app.Training.UpdateCourse(r.Context(), courseID, payload.Title, payload.Description, payload.PassScore, payload.Active)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, course)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if parts[1] != "modules" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			modules, err := h.app.Training.ListModules(r.Context(), courseID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, modules)
		case http.MethodPost:
			var payload struct {
				Title    string `json:"title"`
				Content  string `json:"content"`
				Sequence int    `json:"sequence"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			module, err := h.app.Training.AddModule(r.Context(), courseID, payload.Title, payload.Content, payload.Sequence)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusCreated, module)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if len(parts) == 3 && r.Method == http.MethodDelete {
		if err := h.app.Training.RemoveModule(r.Context(), parts[2]); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeError(w, status, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *handler) enrollments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			ObserverID string `json:"observer_id"`
			CourseID   string `json:"course_id"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		enrollment, err := h.app.Training.Enroll(r.Context(), payload.ObserverID, payload.CourseID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, enrollment)

	case http.MethodGet:
		enrollments, err := h.app.Training.ListEnrollments(r.Context(), r.URL.Query().Get("observer_id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, enrollments)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) enrollmentResources(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/enrollments")
	if len(parts) != 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	enrollmentID := parts[0]

	switch r.Method {
	case http.MethodGet:
		enrollment, err := h.app.Training.GetEnrollment(r.Context(), enrollmentID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, enrollment)
	case http.MethodPatch:
		var payload struct {
			Status string `json:"status"`
			Score  *int   `json:"score"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		switch strings.ToLower(strings.TrimSpace(payload.Status)) {
		case "in_progress":
			enrollment, err := h.app.Training.MarkInProgress(r.Context(), enrollmentID)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, enrollment)
		case "completed":
			if payload.Score == nil {
				writeErrorMsg(w, http.StatusBadRequest, "score is required for completed status")
				return
			}
			enrollment, err := h.app.Training.Complete(r.Context(), enrollmentID, *payload.Score)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, enrollment)
		default:
			writeErrorMsg(w, http.StatusBadRequest, "unsupported status")
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) certificates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			ObserverID string `json:"observer_id"`
			CourseID   string `json:"course_id"`
			ExpiresAt  string `json:"expires_at"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		expires, ok := parseOptionalTime(w, payload.ExpiresAt)
		if !ok {
			return
		}
		cert, err := h.app.Certificates.Issue(r.Context(), payload.ObserverID, payload.CourseID, expires)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, cert)

	case http.MethodGet:
		certs, err := h.app.Certificates.List(r.Context(), r.URL.Query().Get("observer_id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, certs)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) certificateResources(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/certificates")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if parts[0] == "verify" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		serial := r.URL.Query().Get("serial")
		cert, valid, err := h.app.Certificates.Verify(r.Context(), serial)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Certificate certificate.Certificate `json:"certificate"`
			Valid       bool                    `json:"valid"`
		}{Certificate: cert, Valid: valid})
		return
	}

	certID := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		cert, err := h.app.Certificates.Get(r.Context(), certID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, cert)
		return
	}

	if len(parts) == 2 && parts[1] == "revoke" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			Reason string `json:"reason"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		cert, err := h.app.Certificates.Revoke(r.Context(), certID, payload.Reason)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, cert)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *handler) alerts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Severity  string `json:"severity"`
			Title     string `json:"title"`
			Message   string `json:"message"`
			Parish    string `json:"parish"`
			StationID string `json:"station_id"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		createdBy := ""
		if claims, ok := claimsFrom(r.Context()); ok {
			createdBy = claims.Username
		}
		raised, err := h.app.Alerts.Raise(r.Context(), alert.Severity(payload.Severity), payload.Title, payload.Message, payload.Parish, payload.StationID, createdBy)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, raised)

	case http.MethodGet:
		alerts, err := h.app.Alerts.List(r.Context(), alert.Status(r.URL.Query().Get("status")), r.URL.Query().Get("parish"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, alerts)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) alertResources(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/alerts")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if parts[0] == "stream" {
		if h.app.AlertHub == nil {
			writeErrorMsg(w, http.StatusNotImplemented, "alert stream not configured")
			return
		}
		h.app.AlertHub.ServeHTTP(w, r)
		return
	}

	alertID := parts[0]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			a, err := h.app.Alerts.Get(r.Context(), alertID)
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, a)
		case http.MethodPatch:
			var payload struct {
				Status string `json:"status"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			var (
				a   alert.Alert
				err error
			)
			switch strings.ToLower(strings.TrimSpace(payload.Status)) {
			case "acknowledged":
				a, err = h.app.Alerts.Acknowledge(r.Context(), alertID)
			case "resolved":
				a, err = h.app.Alerts.Resolve(r.Context(), alertID)
			default:
				writeErrorMsg(w, http.StatusBadRequest, "unsupported status")
				return
			}
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, a)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "deliveries" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		deliveries, err := h.app.Alerts.Deliveries(r.Context(), alertID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, deliveries)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *handler) analysisCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Kind      string            `json:"kind"`
			StationID string            `json:"station_id"`
			Subject   string            `json:"subject"`
			Context   map[string]string `json:"context"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		req, err := h.app.Analysis.Submit(r.Context(), analysis.Kind(payload.Kind), payload.StationID, payload.Subject, payload.Context)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusAccepted, req)

	case http.MethodGet:
		reqs, err := h.app.Analysis.List(r.Context(), analysis.Kind(r.URL.Query().Get("kind")))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, reqs)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) analysisResources(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/analysis")
	if len(parts) != 1 || r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	req, err := h.app.Analysis.Get(r.Context(), parts[0])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handler) settings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost, http.MethodPut:
		var payload struct {
			Key      string `json:"key"`
			Value    string `json:"value"`
			Category string `json:"category"`
			Secret   bool   `json:"secret"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updatedBy := ""
		if claims, ok := claimsFrom(r.Context()); ok {
			updatedBy = claims.Username
		}
		setting, err := h.app.Settings.Put(r.Context(), payload.Key, payload.Value, payload.Category, payload.Secret, updatedBy)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, setting)

	case http.MethodGet:
		items, err := h.app.Settings.List(r.Context(), r.URL.Query().Get("category"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, items)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) settingResources(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/settings")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if parts[0] == "validate" {
		if len(parts) != 2 || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		result, err := h.app.Settings.ValidateProvider(r.Context(), parts[1])
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if len(parts) != 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	key := parts[0]

	switch r.Method {
	case http.MethodGet:
		setting, err := h.app.Settings.Get(r.Context(), key)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, setting)
	case http.MethodDelete:
		if err := h.app.Settings.Delete(r.Context(), key); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeError(w, status, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) adminUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Username string `json:"username"`
			Password string `json:"password"`
			Role     string `json:"role"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		user, err := h.app.Admin.CreateUser(r.Context(), payload.Username, payload.Password, admin.Role(payload.Role))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, sanitizeUser(user))

	case http.MethodGet:
		users, err := h.app.Admin.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		out := make([]admin.User, 0, len(users))
		for _, u := range users {
			out = append(out, sanitizeUser(u))
		}
		writeJSON(w, http.StatusOK, out)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) adminUserResources(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/admin/users")
	if len(parts) != 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	userID := parts[0]

	switch r.Method {
	case http.MethodGet:
		user, err := h.app.Admin.Get(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, sanitizeUser(user))
	case http.MethodPatch:
		var payload struct {
			Role     *string `json:"role"`
			Password *string `json:"password"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		user, err := h.app.Admin.Get(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		if payload.Role != nil {
			user, err = h.app.Admin.SetRole(r.Context(), userID, admin.Role(*payload.Role))
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}
		if payload.Password != nil {
			user, err = h.app.Admin.SetPassword(r.Context(), userID, *payload.Password)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, sanitizeUser(user))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeErrorMsg(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

func sanitizeUser(u admin.User) admin.User {
	u.PasswordHash = ""
	return u
}

func pathParts(path, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func parseOptionalTime(w http.ResponseWriter, raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "timestamp must be RFC3339")
		return time.Time{}, false
	}
	return parsed, true
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeErrorMsg(w http.ResponseWriter, status int, msg string) {
	writeError(w, status, errors.New(msg))
}
