package training

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caffe-ja/observer-platform/internal/app/domain/training"
	"github.com/caffe-ja/observer-platform/internal/app/storage"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

// CertIssuer issues a certificate when an observer passes a course.
type CertIssuer interface {
	IssueForCourse(ctx context.Context, observerID, courseID string) error
}

// Service manages training courses, course modules, and enrollments.
type Service struct {
	store     storage.TrainingStore
	observers storage.ObserverStore
	issuer    CertIssuer
	log       *logger.Logger
}

// New constructs a training service.
func New(store storage.TrainingStore, observers storage.ObserverStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("training")
	}
	return &Service{
		store:     store,
		observers: observers,
		log:       log,
	}
}

// AttachIssuer wires the certificate issuer invoked on course completion.
func (s *Service) AttachIssuer(issuer CertIssuer) {
	s.issuer = issuer
}

// CreateCourse registers a training course.
func (s *Service) CreateCourse(ctx context.Context, title, description string, passScore int) (training.Course, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)

	if title == "" {
		return training.Course{}, fmt.Errorf("title is required")
	}
	if passScore < 0 || passScore > 100 {
		return training.Course{}, fmt.Errorf("pass_score must be between 0 and 100")
	}

	course := training.Course{
		Title:       title,
		Description: description,
		PassScore:   passScore,
		Active:      true,
	}
	course, err := s.store.CreateCourse(ctx, course)
	if err != nil {
		return training.Course{}, err
	}
	s.log.WithField("course_id", course.ID).Info("course created")
	return course, nil
}

// UpdateCourse modifies mutable course fields.
func (s *Service) UpdateCourse(ctx context.Context, id string, title, description *string, passScore *int, active *bool) (training.Course, error) {
	course, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return training.Course{}, err
	}

	if title != nil {
		trimmed := strings.TrimSpace(*title)
		if trimmed == "" {
			return training.Course{}, fmt.Errorf("title cannot be empty")
		}
		course.Title = trimmed
	}
	if description != nil {
		course.Description = strings.TrimSpace(*description)
	}
	if passScore != nil {
		if *passScore < 0 || *passScore > 100 {
			return training.Course{}, fmt.Errorf("pass_score must be between 0 and 100")
		}
		course.PassScore = *passScore
	}
	if active != nil {
		course.Active = *active
	}

	course, err = s.store.UpdateCourse(ctx, course)
	if err != nil {
		return training.Course{}, err
	}
	s.log.WithField("course_id", course.ID).Info("course updated")
	return course, nil
}

// GetCourse retrieves a single course.
func (s *Service) GetCourse(ctx context.Context, id string) (training.Course, error) {
	return s.store.GetCourse(ctx, id)
}

// ListCourses returns all courses.
func (s *Service) ListCourses(ctx context.Context) ([]training.Course, error) {
	return s.store.ListCourses(ctx)
}

// AddModule appends a content module to a course.
func (s *Service) AddModule(ctx context.Context, courseID, title, content string, sequence int) (training.Module, error) {
	courseID = strings.TrimSpace(courseID)
	title = strings.TrimSpace(title)

	if courseID == "" {
		return training.Module{}, fmt.Errorf("course_id is required")
	}
	if title == "" {
		return training.Module{}, fmt.Errorf("title is required")
	}
	if sequence < 0 {
		return training.Module{}, fmt.Errorf("sequence must not be negative")
	}

	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return training.Module{}, err
	}

	module := training.Module{
		CourseID: courseID,
		Title:    title,
		Sequence: sequence,
		Content:  content,
	}
	module, err := s.store.CreateModule(ctx, module)
	if err != nil {
		return training.Module{}, err
	}
	s.log.WithField("module_id", module.ID).
		WithField("course_id", courseID).
		Info("course module added")
	return module, nil
}

// ListModules returns a course's modules ordered by sequence.
func (s *Service) ListModules(ctx context.Context, courseID string) ([]training.Module, error) {
	return s.store.ListModules(ctx, courseID)
}

// RemoveModule deletes a course module.
func (s *Service) RemoveModule(ctx context.Context, id string) error {
	if err := s.store.DeleteModule(ctx, id); err != nil {
		return err
	}
	s.log.WithField("module_id", id).Info("course module removed")
	return nil
}

// Enroll signs an observer up for an active course.
func (s *Service) Enroll(ctx context.Context, observerID, courseID string) (training.Enrollment, error) {
	observerID = strings.TrimSpace(observerID)
	courseID = strings.TrimSpace(courseID)

	if observerID == "" || courseID == "" {
		return training.Enrollment{}, fmt.Errorf("observer_id and course_id are required")
	}

	if s.observers != nil {
		if _, err := s.observers.GetObserver(ctx, observerID); err != nil {
			return training.Enrollment{}, fmt.Errorf("observer validation failed: %w", err)
		}
	}
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return training.Enrollment{}, err
	}
	if !course.Active {
		return training.Enrollment{}, fmt.Errorf("course %s is not active", courseID)
	}

	existing, err := s.store.ListEnrollments(ctx, observerID)
	if err != nil {
		return training.Enrollment{}, err
	}
	for _, e := range existing {
		if e.CourseID == courseID && e.Status != training.EnrollmentFailed {
			return training.Enrollment{}, fmt.Errorf("observer %s already enrolled in course %s", observerID, courseID)
		}
	}

	enrollment := training.Enrollment{
		ObserverID: observerID,
		CourseID:   courseID,
		Status:     training.EnrollmentEnrolled,
	}
	enrollment, err = s.store.CreateEnrollment(ctx, enrollment)
	if err != nil {
		return training.Enrollment{}, err
	}
	s.log.WithField("enrollment_id", enrollment.ID).
		WithField("observer_id", observerID).
		WithField("course_id", courseID).
		Info("observer enrolled")
	return enrollment, nil
}

// MarkInProgress moves an enrollment from enrolled to in_progress.
func (s *Service) MarkInProgress(ctx context.Context, id string) (training.Enrollment, error) {
	enrollment, err := s.store.GetEnrollment(ctx, id)
	if err != nil {
		return training.Enrollment{}, err
	}
	if enrollment.Status != training.EnrollmentEnrolled {
		return training.Enrollment{}, fmt.Errorf("enrollment %s is %s, expected enrolled", id, enrollment.Status)
	}

	enrollment.Status = training.EnrollmentInProgress
	return s.store.UpdateEnrollment(ctx, enrollment)
}

// Complete records a final score. Scores at or above the course pass mark
// complete the enrollment and trigger certificate issuance; lower scores fail
// it.
func (s *Service) Complete(ctx context.Context, id string, score int) (training.Enrollment, error) {
	if score < 0 || score > 100 {
		return training.Enrollment{}, fmt.Errorf("score must be between 0 and 100")
	}

	enrollment, err := s.store.GetEnrollment(ctx, id)
	if err != nil {
		return training.Enrollment{}, err
	}
	if enrollment.Status == training.EnrollmentCompleted {
		return training.Enrollment{}, fmt.Errorf("enrollment %s already completed", id)
	}

	course, err := s.store.GetCourse(ctx, enrollment.CourseID)
	if err != nil {
		return training.Enrollment{}, err
	}

	enrollment.Score = score
	enrollment.CompletedAt = time.Now().UTC()
	if score >= course.PassScore {
		enrollment.Status = training.EnrollmentCompleted
	} else {
		enrollment.Status = training.EnrollmentFailed
	}

	enrollment, err = s.store.UpdateEnrollment(ctx, enrollment)
	if err != nil {
		return training.Enrollment{}, err
	}

	s.log.WithField("enrollment_id", enrollment.ID).
		WithField("score", score).
		WithField("status", string(enrollment.Status)).
		Info("enrollment completed")

	if enrollment.Status == training.EnrollmentCompleted && s.issuer != nil {
		if err := s.issuer.IssueForCourse(ctx, enrollment.ObserverID, enrollment.CourseID); err != nil {
			s.log.WithError(err).
				WithField("enrollment_id", enrollment.ID).
				Warn("certificate issuance failed")
		}
	}
	return enrollment, nil
}

// GetEnrollment retrieves a single enrollment.
func (s *Service) GetEnrollment(ctx context.Context, id string) (training.Enrollment, error) {
	return s.store.GetEnrollment(ctx, id)
}

// ListEnrollments returns enrollments, optionally filtered by observer.
func (s *Service) ListEnrollments(ctx context.Context, observerID string) ([]training.Enrollment, error) {
	return s.store.ListEnrollments(ctx, observerID)
}
