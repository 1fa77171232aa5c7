package certificates

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/caffe-ja/observer-platform/internal/app/domain/certificate"
	"github.com/caffe-ja/observer-platform/internal/app/domain/observer"
	"github.com/caffe-ja/observer-platform/internal/app/domain/training"
	"github.com/caffe-ja/observer-platform/internal/app/storage/memory"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

func seedApprovedObserver(t *testing.T, store *memory.Store) observer.Observer {
	t.Helper()
	obs, err := store.CreateObserver(context.Background(), observer.Observer{
		FullName:  "Marcia Brown",
		Email:     "marcia@caffe.org.jm",
		Status:    observer.StatusVerified,
		KYCStatus: observer.KYCApproved,
	})
	if err != nil {
		t.Fatalf("seed observer: %v", err)
	}
	return obs
}

func seedPassedCourse(t *testing.T, store *memory.Store, observerID string) training.Course {
	t.Helper()
	ctx := context.Background()
	course, err := store.CreateCourse(ctx, training.Course{
		Title:     "Polling Station Procedures",
		PassScore: 70,
		Active:    true,
	})
	if err != nil {
		t.Fatalf("seed course: %v", err)
	}
	_, err = store.CreateEnrollment(ctx, training.Enrollment{
		ObserverID:  observerID,
		CourseID:    course.ID,
		Status:      training.EnrollmentCompleted,
		Score:       85,
		CompletedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed enrollment: %v", err)
	}
	return course
}

func TestService_IssueAndVerify(t *testing.T) {
	store := memory.New()
	svc := New(store, store, store, nil)
	obs := seedApprovedObserver(t, store)
	course := seedPassedCourse(t, store, obs.ID)

	cert, err := svc.Issue(context.Background(), obs.ID, course.ID, time.Time{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	year := time.Now().UTC().Year()
	if !strings.HasPrefix(cert.SerialNo, fmt.Sprintf("CAFFE-%d-", year)) {
		t.Fatalf("unexpected serial %q", cert.SerialNo)
	}

	second, err := svc.Issue(context.Background(), obs.ID, course.ID, time.Time{})
	if err != nil {
		t.Fatalf("issue second: %v", err)
	}
	if second.SerialNo == cert.SerialNo {
		t.Fatalf("serials must be unique, both %q", cert.SerialNo)
	}

	got, valid, err := svc.Verify(context.Background(), strings.ToLower(cert.SerialNo))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !valid || got.ID != cert.ID {
		t.Fatalf("expected valid certificate, got valid=%v id=%q", valid, got.ID)
	}

	if _, _, err := svc.Verify(context.Background(), "CAFFE-1999-000001"); err == nil {
		t.Fatalf("expected unknown serial error")
	}
}

func TestService_IssueRequiresKYCApproval(t *testing.T) {
	store := memory.New()
	svc := New(store, store, store, nil)

	obs, err := store.CreateObserver(context.Background(), observer.Observer{
		FullName:  "Pending Person",
		Email:     "pending@caffe.org.jm",
		KYCStatus: observer.KYCPending,
	})
	if err != nil {
		t.Fatalf("seed observer: %v", err)
	}
	course := seedPassedCourse(t, store, obs.ID)

	if _, err := svc.Issue(context.Background(), obs.ID, course.ID, time.Time{}); err == nil {
		t.Fatalf("expected KYC approval requirement")
	}
}

func TestService_IssueRequiresPassingEnrollment(t *testing.T) {
	store := memory.New()
	svc := New(store, store, store, nil)
	ctx := context.Background()
	obs := seedApprovedObserver(t, store)

	if _, err := svc.Issue(ctx, obs.ID, "course-never-taken", time.Time{}); err == nil {
		t.Fatalf("expected error without any enrollment")
	}

	course, err := store.CreateCourse(ctx, training.Course{Title: "Count Verification", PassScore: 70, Active: true})
	if err != nil {
		t.Fatalf("seed course: %v", err)
	}
	enrollment, err := store.CreateEnrollment(ctx, training.Enrollment{
		ObserverID: obs.ID,
		CourseID:   course.ID,
		Status:     training.EnrollmentFailed,
		Score:      40,
	})
	if err != nil {
		t.Fatalf("seed enrollment: %v", err)
	}
	if _, err := svc.Issue(ctx, obs.ID, course.ID, time.Time{}); err == nil {
		t.Fatalf("expected error for failed enrollment")
	}

	enrollment.Status = training.EnrollmentCompleted
	enrollment.Score = 90
	enrollment.CompletedAt = time.Now().UTC()
	if _, err := store.UpdateEnrollment(ctx, enrollment); err != nil {
		t.Fatalf("update enrollment: %v", err)
	}
	cert, err := svc.Issue(ctx, obs.ID, course.ID, time.Time{})
	if err != nil {
		t.Fatalf("issue after passing: %v", err)
	}
	if cert.CourseID != course.ID {
		t.Fatalf("certificate course = %q, want %q", cert.CourseID, course.ID)
	}
}

// staleCountStore returns an out-of-date sequence count once to force a
// serial collision on the first create.
type staleCountStore struct {
	*memory.Store
	stale int
}

func (s *staleCountStore) CountCertificates(ctx context.Context, year int) (int, error) {
	if s.stale > 0 {
		s.stale--
		return 0, nil
	}
	return s.Store.CountCertificates(ctx, year)
}

func TestService_IssueRetriesSerialCollision(t *testing.T) {
	store := memory.New()
	svc := New(&staleCountStore{Store: store}, store, store, nil)
	obs := seedApprovedObserver(t, store)
	course := seedPassedCourse(t, store, obs.ID)

	first, err := svc.Issue(context.Background(), obs.ID, course.ID, time.Time{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	svc.store.(*staleCountStore).stale = 1
	second, err := svc.Issue(context.Background(), obs.ID, course.ID, time.Time{})
	if err != nil {
		t.Fatalf("issue with stale count: %v", err)
	}
	if second.SerialNo == first.SerialNo {
		t.Fatalf("serials must be unique, both %q", first.SerialNo)
	}
}

func TestService_RevokeInvalidates(t *testing.T) {
	store := memory.New()
	svc := New(store, store, store, nil)
	obs := seedApprovedObserver(t, store)
	course := seedPassedCourse(t, store, obs.ID)

	cert, err := svc.Issue(context.Background(), obs.ID, course.ID, time.Time{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	revoked, err := svc.Revoke(context.Background(), cert.ID, "misconduct")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked.Status != certificate.StatusRevoked {
		t.Fatalf("status = %s, want revoked", revoked.Status)
	}

	_, valid, err := svc.Verify(context.Background(), cert.SerialNo)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if valid {
		t.Fatalf("revoked certificate must not verify")
	}

	if _, err := svc.Revoke(context.Background(), cert.ID, "again"); err == nil {
		t.Fatalf("expected double revoke error")
	}
}

func TestService_ExpireOverdue(t *testing.T) {
	store := memory.New()
	svc := New(store, store, store, nil)
	obs := seedApprovedObserver(t, store)
	course := seedPassedCourse(t, store, obs.ID)

	cert, err := svc.Issue(context.Background(), obs.ID, course.ID, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }

	expired, err := svc.ExpireOverdue(context.Background())
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}

	_, valid, err := svc.Verify(context.Background(), cert.SerialNo)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if valid {
		t.Fatalf("expired certificate must not verify")
	}
}

func TestSweeper(t *testing.T) {
	store := memory.New()
	svc := New(store, store, store, nil)
	obs := seedApprovedObserver(t, store)
	course := seedPassedCourse(t, store, obs.ID)

	if _, err := svc.Issue(context.Background(), obs.ID, course.ID, time.Now().UTC().Add(10*time.Millisecond)); err != nil {
		t.Fatalf("issue: %v", err)
	}

	sweeper := NewSweeper(svc, nil)
	sweeper.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("start sweeper: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	sweeper.Stop(context.Background())

	certs, err := svc.List(context.Background(), obs.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(certs) != 1 || certs[0].Status != certificate.StatusExpired {
		t.Fatalf("expected expired certificate, got %#v", certs)
	}
}

func ExampleService_Issue() {
	store := memory.New()
	log := logger.NewDefault("example-certificates")
	log.SetOutput(io.Discard)
	obs, _ := store.CreateObserver(context.Background(), observer.Observer{
		FullName:  "Marcia Brown",
		Email:     "marcia@caffe.org.jm",
		KYCStatus: observer.KYCApproved,
	})
	course, _ := store.CreateCourse(context.Background(), training.Course{Title: "Observer Basics", PassScore: 70})
	store.CreateEnrollment(context.Background(), training.Enrollment{
		ObserverID: obs.ID,
		CourseID:   course.ID,
		Status:     training.EnrollmentCompleted,
		Score:      80,
	})
	svc := New(store, store, store, log)
	cert, _ := svc.Issue(context.Background(), obs.ID, course.ID, time.Time{})
	fmt.Println(cert.Status)
	// Output:
	// issued
}
