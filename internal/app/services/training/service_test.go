package training

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/caffe-ja/observer-platform/internal/app/domain/observer"
	"github.com/caffe-ja/observer-platform/internal/app/domain/training"
	"github.com/caffe-ja/observer-platform/internal/app/storage/memory"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

type recordingIssuer struct {
	issued []string
}

func (r *recordingIssuer) IssueForCourse(_ context.Context, observerID, courseID string) error {
	r.issued = append(r.issued, observerID+":"+courseID)
	return nil
}

func seedObserver(t *testing.T, store *memory.Store) observer.Observer {
	t.Helper()
	obs, err := store.CreateObserver(context.Background(), observer.Observer{
		FullName: "Marcia Brown",
		Email:    "marcia@caffe.org.jm",
		Status:   observer.StatusActive,
	})
	if err != nil {
		t.Fatalf("seed observer: %v", err)
	}
	return obs
}

func TestService_CourseAndModules(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)

	course, err := svc.CreateCourse(context.Background(), "Observer Basics", "Core training", 70)
	if err != nil {
		t.Fatalf("create course: %v", err)
	}

	if _, err := svc.CreateCourse(context.Background(), "", "", 50); err == nil {
		t.Fatalf("expected title validation error")
	}
	if _, err := svc.CreateCourse(context.Background(), "Bad", "", 150); err == nil {
		t.Fatalf("expected pass score validation error")
	}

	if _, err := svc.AddModule(context.Background(), course.ID, "Code of Conduct", "...", 1); err != nil {
		t.Fatalf("add module: %v", err)
	}
	if _, err := svc.AddModule(context.Background(), course.ID, "Reporting Incidents", "...", 2); err != nil {
		t.Fatalf("add module: %v", err)
	}

	modules, err := svc.ListModules(context.Background(), course.ID)
	if err != nil {
		t.Fatalf("list modules: %v", err)
	}
	if len(modules) != 2 || modules[0].Sequence > modules[1].Sequence {
		t.Fatalf("unexpected modules: %#v", modules)
	}
}

func TestService_EnrollmentPassIssuesCertificate(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	issuer := &recordingIssuer{}
	svc.AttachIssuer(issuer)

	obs := seedObserver(t, store)
	course, err := svc.CreateCourse(context.Background(), "Observer Basics", "", 70)
	if err != nil {
		t.Fatalf("create course: %v", err)
	}

	enrollment, err := svc.Enroll(context.Background(), obs.ID, course.ID)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if _, err := svc.Enroll(context.Background(), obs.ID, course.ID); err == nil {
		t.Fatalf("expected duplicate enrollment error")
	}

	if _, err := svc.MarkInProgress(context.Background(), enrollment.ID); err != nil {
		t.Fatalf("mark in progress: %v", err)
	}

	done, err := svc.Complete(context.Background(), enrollment.ID, 85)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != training.EnrollmentCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}
	if len(issuer.issued) != 1 || issuer.issued[0] != obs.ID+":"+course.ID {
		t.Fatalf("expected certificate issuance, got %v", issuer.issued)
	}
}

func TestService_EnrollmentFailBelowPassScore(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	issuer := &recordingIssuer{}
	svc.AttachIssuer(issuer)

	obs := seedObserver(t, store)
	course, err := svc.CreateCourse(context.Background(), "Observer Basics", "", 70)
	if err != nil {
		t.Fatalf("create course: %v", err)
	}
	enrollment, err := svc.Enroll(context.Background(), obs.ID, course.ID)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}

	failed, err := svc.Complete(context.Background(), enrollment.ID, 40)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if failed.Status != training.EnrollmentFailed {
		t.Fatalf("status = %s, want failed", failed.Status)
	}
	if len(issuer.issued) != 0 {
		t.Fatalf("expected no issuance on failure, got %v", issuer.issued)
	}

	// A failed attempt can be retried.
	if _, err := svc.Enroll(context.Background(), obs.ID, course.ID); err != nil {
		t.Fatalf("re-enroll after failure: %v", err)
	}
}

func ExampleService_CreateCourse() {
	store := memory.New()
	log := logger.NewDefault("example-training")
	log.SetOutput(io.Discard)
	svc := New(store, store, log)
	course, _ := svc.CreateCourse(context.Background(), "Election Day Procedures", "", 75)
	fmt.Println(course.Title, course.Active)
	// Output:
	// Election Day Procedures true
}
