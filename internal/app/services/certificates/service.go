package certificates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caffe-ja/observer-platform/internal/app/domain/certificate"
	"github.com/caffe-ja/observer-platform/internal/app/domain/observer"
	"github.com/caffe-ja/observer-platform/internal/app/domain/training"
	"github.com/caffe-ja/observer-platform/internal/app/storage"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

// DefaultValidity is how long a certificate stays valid unless the caller
// overrides the expiry.
const DefaultValidity = 2 * 365 * 24 * time.Hour

// Service issues and verifies observer accreditation certificates.
type Service struct {
	store     storage.CertificateStore
	observers storage.ObserverStore
	training  storage.TrainingStore
	log       *logger.Logger
	now       func() time.Time
}

// New constructs a certificate service.
func New(store storage.CertificateStore, observers storage.ObserverStore, training storage.TrainingStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("certificates")
	}
	return &Service{
		store:     store,
		observers: observers,
		training:  training,
		log:       log,
		now:       time.Now,
	}
}

// Issue creates a certificate for a KYC-approved observer who has completed
// the course with a passing score. Serial numbers are CAFFE-<year>-<sequence>,
// unique per issuance year.
func (s *Service) Issue(ctx context.Context, observerID, courseID string, expiresAt time.Time) (certificate.Certificate, error) {
	observerID = strings.TrimSpace(observerID)
	if observerID == "" {
		return certificate.Certificate{}, fmt.Errorf("observer_id is required")
	}
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return certificate.Certificate{}, fmt.Errorf("course_id is required")
	}

	if s.observers != nil {
		obs, err := s.observers.GetObserver(ctx, observerID)
		if err != nil {
			return certificate.Certificate{}, fmt.Errorf("observer validation failed: %w", err)
		}
		if obs.KYCStatus != observer.KYCApproved {
			return certificate.Certificate{}, fmt.Errorf("observer %s is not KYC approved", observerID)
		}
	}

	if s.training != nil {
		if err := s.requirePassingEnrollment(ctx, observerID, courseID); err != nil {
			return certificate.Certificate{}, err
		}
	}

	issuedAt := s.now().UTC()
	if expiresAt.IsZero() {
		expiresAt = issuedAt.Add(DefaultValidity)
	}
	if !expiresAt.After(issuedAt) {
		return certificate.Certificate{}, fmt.Errorf("expires_at must be in the future")
	}

	year := issuedAt.Year()

	// Concurrent issuance can race on the sequence read; the unique serial
	// constraint rejects the loser, which re-reads the count and retries.
	var cert certificate.Certificate
	for attempt := 0; ; attempt++ {
		seq, err := s.store.CountCertificates(ctx, year)
		if err != nil {
			return certificate.Certificate{}, err
		}

		cert, err = s.store.CreateCertificate(ctx, certificate.Certificate{
			ObserverID: observerID,
			CourseID:   courseID,
			SerialNo:   fmt.Sprintf("CAFFE-%d-%06d", year, seq+1),
			Status:     certificate.StatusIssued,
			IssuedAt:   issuedAt,
			ExpiresAt:  expiresAt.UTC(),
		})
		if err == nil {
			break
		}
		if attempt == 2 {
			return certificate.Certificate{}, err
		}
		s.log.WithError(err).WithField("year", year).Debug("serial allocation retry")
	}
	s.log.WithField("certificate_id", cert.ID).
		WithField("observer_id", observerID).
		WithField("serial", cert.SerialNo).
		Info("certificate issued")
	return cert, nil
}

// requirePassingEnrollment checks that the observer holds a completed
// enrollment for the course with a score at or above the course pass mark.
func (s *Service) requirePassingEnrollment(ctx context.Context, observerID, courseID string) error {
	enrollments, err := s.training.ListEnrollments(ctx, observerID)
	if err != nil {
		return fmt.Errorf("enrollment lookup failed: %w", err)
	}

	for _, enrollment := range enrollments {
		if enrollment.CourseID != courseID || enrollment.Status != training.EnrollmentCompleted {
			continue
		}
		course, err := s.training.GetCourse(ctx, courseID)
		if err != nil {
			return fmt.Errorf("course lookup failed: %w", err)
		}
		if enrollment.Score >= course.PassScore {
			return nil
		}
	}
	return fmt.Errorf("observer %s has no passing enrollment for course %s", observerID, courseID)
}

// IssueForCourse issues a certificate with the default validity. It backs the
// training completion hook.
func (s *Service) IssueForCourse(ctx context.Context, observerID, courseID string) error {
	_, err := s.Issue(ctx, observerID, courseID, time.Time{})
	return err
}

// Revoke permanently invalidates a certificate.
func (s *Service) Revoke(ctx context.Context, id, reason string) (certificate.Certificate, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return certificate.Certificate{}, fmt.Errorf("reason is required")
	}

	cert, err := s.store.GetCertificate(ctx, id)
	if err != nil {
		return certificate.Certificate{}, err
	}
	if cert.Status == certificate.StatusRevoked {
		return certificate.Certificate{}, fmt.Errorf("certificate %s already revoked", id)
	}

	cert.Status = certificate.StatusRevoked
	cert.RevokedReason = reason
	cert, err = s.store.UpdateCertificate(ctx, cert)
	if err != nil {
		return certificate.Certificate{}, err
	}
	s.log.WithField("certificate_id", cert.ID).
		WithField("reason", reason).
		Warn("certificate revoked")
	return cert, nil
}

// Verify checks a serial number. It returns the certificate and whether it is
// currently valid; an unknown serial returns an error.
func (s *Service) Verify(ctx context.Context, serial string) (certificate.Certificate, bool, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return certificate.Certificate{}, false, fmt.Errorf("serial is required")
	}

	cert, err := s.store.GetCertificateBySerial(ctx, serial)
	if err != nil {
		return certificate.Certificate{}, false, err
	}

	valid := cert.Status == certificate.StatusIssued &&
		(cert.ExpiresAt.IsZero() || cert.ExpiresAt.After(s.now().UTC()))
	return cert, valid, nil
}

// Get retrieves a certificate by identifier.
func (s *Service) Get(ctx context.Context, id string) (certificate.Certificate, error) {
	return s.store.GetCertificate(ctx, id)
}

// List returns certificates, optionally filtered by observer.
func (s *Service) List(ctx context.Context, observerID string) ([]certificate.Certificate, error) {
	return s.store.ListCertificates(ctx, observerID)
}

// ExpireOverdue marks issued certificates past their expiry as expired and
// returns how many changed.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	all, err := s.store.ListCertificates(ctx, "")
	if err != nil {
		return 0, err
	}

	now := s.now().UTC()
	expired := 0
	for _, cert := range all {
		if cert.Status != certificate.StatusIssued {
			continue
		}
		if cert.ExpiresAt.IsZero() || cert.ExpiresAt.After(now) {
			continue
		}
		cert.Status = certificate.StatusExpired
		if _, err := s.store.UpdateCertificate(ctx, cert); err != nil {
			s.log.WithError(err).
				WithField("certificate_id", cert.ID).
				Warn("certificate expiry update failed")
			continue
		}
		expired++
	}
	if expired > 0 {
		s.log.WithField("count", expired).Info("certificates expired")
	}
	return expired, nil
}
