package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caffe-ja/observer-platform/internal/app/domain/analysis"
	"github.com/caffe-ja/observer-platform/internal/app/storage"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

// Service manages queued AI analysis requests.
type Service struct {
	store    storage.AnalysisStore
	stations storage.StationStore
	log      *logger.Logger
}

// New constructs an analysis service.
func New(store storage.AnalysisStore, stations storage.StationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("analysis")
	}
	return &Service{
		store:    store,
		stations: stations,
		log:      log,
	}
}

// Submit queues an analysis request for the dispatcher.
func (s *Service) Submit(ctx context.Context, kind analysis.Kind, stationID, subject string, reqContext map[string]string) (analysis.Request, error) {
	stationID = strings.TrimSpace(stationID)
	subject = strings.TrimSpace(subject)

	if !analysis.ValidKind(kind) {
		return analysis.Request{}, fmt.Errorf("invalid analysis kind %q", kind)
	}
	if kind == analysis.KindTrafficPrediction && stationID == "" {
		return analysis.Request{}, fmt.Errorf("station_id is required for traffic predictions")
	}
	if kind == analysis.KindECJSummary && subject == "" {
		return analysis.Request{}, fmt.Errorf("subject is required for summaries")
	}

	if stationID != "" && s.stations != nil {
		if _, err := s.stations.GetStation(ctx, stationID); err != nil {
			return analysis.Request{}, fmt.Errorf("station validation failed: %w", err)
		}
	}

	req := analysis.Request{
		Kind:      kind,
		StationID: stationID,
		Subject:   subject,
		Context:   reqContext,
		Status:    analysis.StatusPending,
	}
	req, err := s.store.CreateAnalysisRequest(ctx, req)
	if err != nil {
		return analysis.Request{}, err
	}
	s.log.WithField("request_id", req.ID).
		WithField("kind", string(kind)).
		Info("analysis request queued")
	return req, nil
}

// MarkRunning transitions a pending request to running.
func (s *Service) MarkRunning(ctx context.Context, id string) (analysis.Request, error) {
	req, err := s.store.GetAnalysisRequest(ctx, id)
	if err != nil {
		return analysis.Request{}, err
	}
	if req.Status != analysis.StatusPending {
		return analysis.Request{}, fmt.Errorf("request %s is %s, expected pending", id, req.Status)
	}
	req.Status = analysis.StatusRunning
	return s.store.UpdateAnalysisRequest(ctx, req)
}

// Complete records a successful result.
func (s *Service) Complete(ctx context.Context, id, result string) (analysis.Request, error) {
	req, err := s.store.GetAnalysisRequest(ctx, id)
	if err != nil {
		return analysis.Request{}, err
	}
	if req.Status != analysis.StatusPending && req.Status != analysis.StatusRunning {
		return analysis.Request{}, fmt.Errorf("request %s is %s, expected pending or running", id, req.Status)
	}

	req.Status = analysis.StatusSucceeded
	req.Result = result
	req.Error = ""
	req.CompletedAt = time.Now().UTC()
	req, err = s.store.UpdateAnalysisRequest(ctx, req)
	if err != nil {
		return analysis.Request{}, err
	}
	s.log.WithField("request_id", req.ID).Info("analysis request completed")
	return req, nil
}

// Requeue returns a running request to pending so the dispatcher can retry
// it, keeping the last error for operators.
func (s *Service) Requeue(ctx context.Context, id, errMsg string) (analysis.Request, error) {
	req, err := s.store.GetAnalysisRequest(ctx, id)
	if err != nil {
		return analysis.Request{}, err
	}
	if req.Status != analysis.StatusRunning {
		return analysis.Request{}, fmt.Errorf("request %s is %s, expected running", id, req.Status)
	}

	req.Status = analysis.StatusPending
	req.Error = errMsg
	return s.store.UpdateAnalysisRequest(ctx, req)
}

// Fail records a terminal failure.
func (s *Service) Fail(ctx context.Context, id, errMsg string) (analysis.Request, error) {
	req, err := s.store.GetAnalysisRequest(ctx, id)
	if err != nil {
		return analysis.Request{}, err
	}
	if req.Status != analysis.StatusPending && req.Status != analysis.StatusRunning {
		return analysis.Request{}, fmt.Errorf("request %s is %s, expected pending or running", id, req.Status)
	}

	req.Status = analysis.StatusFailed
	req.Error = errMsg
	req.CompletedAt = time.Now().UTC()
	req, err = s.store.UpdateAnalysisRequest(ctx, req)
	if err != nil {
		return analysis.Request{}, err
	}
	s.log.WithField("request_id", req.ID).
		WithField("error", errMsg).
		Warn("analysis request failed")
	return req, nil
}

// Get retrieves a single request.
func (s *Service) Get(ctx context.Context, id string) (analysis.Request, error) {
	return s.store.GetAnalysisRequest(ctx, id)
}

// List returns requests, optionally filtered by kind.
func (s *Service) List(ctx context.Context, kind analysis.Kind) ([]analysis.Request, error) {
	if kind != "" && !analysis.ValidKind(kind) {
		return nil, fmt.Errorf("invalid analysis kind %q", kind)
	}
	return s.store.ListAnalysisRequests(ctx, kind)
}

// ListPending returns requests awaiting resolution.
func (s *Service) ListPending(ctx context.Context) ([]analysis.Request, error) {
	return s.store.ListPendingAnalysisRequests(ctx)
}
