package observers

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/caffe-ja/observer-platform/internal/app/domain/observer"
	"github.com/caffe-ja/observer-platform/internal/app/storage"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

// Service manages observer registration and identity verification.
type Service struct {
	store    storage.ObserverStore
	stations storage.StationStore
	verifier Verifier
	log      *logger.Logger
}

// New constructs an observer service.
func New(store storage.ObserverStore, stations storage.StationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("observers")
	}
	return &Service{
		store:    store,
		stations: stations,
		log:      log,
	}
}

// AttachVerifier assigns the KYC provider used for identity checks. Without a
// verifier, StartKYC returns an error and observers remain unverified.
func (s *Service) AttachVerifier(v Verifier) {
	s.verifier = v
}

// Register creates a new observer in pending status.
func (s *Service) Register(ctx context.Context, fullName, email, phone, parish, stationID string, metadata map[string]string) (observer.Observer, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.TrimSpace(email)
	phone = strings.TrimSpace(phone)
	parish = strings.TrimSpace(parish)
	stationID = strings.TrimSpace(stationID)

	if fullName == "" {
		return observer.Observer{}, fmt.Errorf("full_name is required")
	}
	if email == "" {
		return observer.Observer{}, fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return observer.Observer{}, fmt.Errorf("invalid email: %w", err)
	}

	if stationID != "" && s.stations != nil {
		if _, err := s.stations.GetStation(ctx, stationID); err != nil {
			return observer.Observer{}, fmt.Errorf("station validation failed: %w", err)
		}
	}

	obs := observer.Observer{
		FullName:  fullName,
		Email:     email,
		Phone:     phone,
		Parish:    parish,
		StationID: stationID,
		Status:    observer.StatusPending,
		KYCStatus: observer.KYCUnverified,
		Metadata:  metadata,
	}
	obs, err := s.store.CreateObserver(ctx, obs)
	if err != nil {
		return observer.Observer{}, err
	}
	s.log.WithField("observer_id", obs.ID).
		WithField("parish", obs.Parish).
		Info("observer registered")
	return obs, nil
}

// Update modifies mutable observer fields.
func (s *Service) Update(ctx context.Context, id string, phone, parish, stationID *string, metadata map[string]string) (observer.Observer, error) {
	obs, err := s.store.GetObserver(ctx, id)
	if err != nil {
		return observer.Observer{}, err
	}

	if phone != nil {
		obs.Phone = strings.TrimSpace(*phone)
	}
	if parish != nil {
		obs.Parish = strings.TrimSpace(*parish)
	}
	if stationID != nil {
		trimmed := strings.TrimSpace(*stationID)
		if trimmed != "" && s.stations != nil {
			if _, err := s.stations.GetStation(ctx, trimmed); err != nil {
				return observer.Observer{}, fmt.Errorf("station validation failed: %w", err)
			}
		}
		obs.StationID = trimmed
	}
	if metadata != nil {
		obs.Metadata = metadata
	}

	obs, err = s.store.UpdateObserver(ctx, obs)
	if err != nil {
		return observer.Observer{}, err
	}
	s.log.WithField("observer_id", obs.ID).Info("observer updated")
	return obs, nil
}

// SetStatus transitions an observer's lifecycle status. Activation requires an
// approved KYC check.
func (s *Service) SetStatus(ctx context.Context, id string, status observer.Status) (observer.Observer, error) {
	if !observer.ValidStatus(status) {
		return observer.Observer{}, fmt.Errorf("invalid status %q", status)
	}

	obs, err := s.store.GetObserver(ctx, id)
	if err != nil {
		return observer.Observer{}, err
	}
	if status == observer.StatusActive && obs.KYCStatus != observer.KYCApproved {
		return observer.Observer{}, fmt.Errorf("observer %s cannot be activated before KYC approval", id)
	}
	if obs.Status == status {
		return obs, nil
	}

	obs.Status = status
	obs, err = s.store.UpdateObserver(ctx, obs)
	if err != nil {
		return observer.Observer{}, err
	}
	s.log.WithField("observer_id", obs.ID).
		WithField("status", string(status)).
		Info("observer status changed")
	return obs, nil
}

// StartKYC begins an identity verification session with the attached provider
// and moves the observer to pending KYC.
func (s *Service) StartKYC(ctx context.Context, id string) (observer.Observer, string, error) {
	if s.verifier == nil {
		return observer.Observer{}, "", fmt.Errorf("no KYC provider configured")
	}

	obs, err := s.store.GetObserver(ctx, id)
	if err != nil {
		return observer.Observer{}, "", err
	}
	if obs.KYCStatus == observer.KYCApproved {
		return obs, "", fmt.Errorf("observer %s already verified", id)
	}

	session, err := s.verifier.CreateSession(ctx, obs)
	if err != nil {
		return observer.Observer{}, "", fmt.Errorf("start verification: %w", err)
	}

	obs.KYCStatus = observer.KYCPending
	obs.KYCRef = session.Ref
	obs, err = s.store.UpdateObserver(ctx, obs)
	if err != nil {
		return observer.Observer{}, "", err
	}
	s.log.WithField("observer_id", obs.ID).
		WithField("kyc_ref", session.Ref).
		Info("KYC session started")
	return obs, session.URL, nil
}

// CompleteKYC records the provider's verdict for an observer. Approved
// observers move to verified status.
func (s *Service) CompleteKYC(ctx context.Context, ref string, approved bool) (observer.Observer, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return observer.Observer{}, fmt.Errorf("kyc reference is required")
	}

	obs, err := s.findByKYCRef(ctx, ref)
	if err != nil {
		return observer.Observer{}, err
	}

	if approved {
		obs.KYCStatus = observer.KYCApproved
		if obs.Status == observer.StatusPending {
			obs.Status = observer.StatusVerified
		}
	} else {
		obs.KYCStatus = observer.KYCRejected
	}

	obs, err = s.store.UpdateObserver(ctx, obs)
	if err != nil {
		return observer.Observer{}, err
	}
	s.log.WithField("observer_id", obs.ID).
		WithField("approved", approved).
		Info("KYC verdict recorded")
	return obs, nil
}

func (s *Service) findByKYCRef(ctx context.Context, ref string) (observer.Observer, error) {
	all, err := s.store.ListObservers(ctx, "")
	if err != nil {
		return observer.Observer{}, err
	}
	for _, obs := range all {
		if obs.KYCRef == ref {
			return obs, nil
		}
	}
	return observer.Observer{}, fmt.Errorf("no observer with kyc reference %s", ref)
}

// Get retrieves a single observer.
func (s *Service) Get(ctx context.Context, id string) (observer.Observer, error) {
	return s.store.GetObserver(ctx, id)
}

// List returns observers, optionally filtered by parish.
func (s *Service) List(ctx context.Context, parish string) ([]observer.Observer, error) {
	return s.store.ListObservers(ctx, parish)
}

// Delete removes an observer record.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteObserver(ctx, id); err != nil {
		return err
	}
	s.log.WithField("observer_id", id).Info("observer deleted")
	return nil
}
