package analysis

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/caffe-ja/observer-platform/internal/app/domain/analysis"
)

func TestDispatcherResolvesPendingRequests(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Submit(ctx, domain.KindECJSummary, "", "Counting procedures", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	dispatcher := NewDispatcher(svc, quietLogger("dispatcher-test"))
	dispatcher.interval = 5 * time.Millisecond
	dispatcher.WithResolver(ResolverFunc(func(ctx context.Context, r domain.Request) (string, error) {
		return `{"summary":"resolved","key_points":[]}`, nil
	}))

	if err := dispatcher.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer dispatcher.Stop(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		got, err := svc.Get(ctx, req.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status == domain.StatusSucceeded {
			if !strings.Contains(got.Result, "resolved") {
				t.Fatalf("unexpected result: %s", got.Result)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("request never resolved")
}

func TestDispatcherFallsBackAfterRepeatedFailures(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Submit(ctx, domain.KindIncidentTriage, "", "Crowd blocking entrance", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	dispatcher := NewDispatcher(svc, quietLogger("dispatcher-test"))
	dispatcher.interval = time.Millisecond
	dispatcher.WithResolver(ResolverFunc(func(ctx context.Context, r domain.Request) (string, error) {
		return "", fmt.Errorf("model unavailable")
	}))

	if err := dispatcher.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer dispatcher.Stop(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := svc.Get(ctx, req.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status == domain.StatusSucceeded {
			if !strings.Contains(got.Result, `"source":"fallback"`) {
				t.Fatalf("expected fallback result, got %s", got.Result)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("request never completed with fallback")
}

func TestDispatcherStopIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	dispatcher := NewDispatcher(svc, quietLogger("dispatcher-test"))
	dispatcher.WithResolver(ResolverFunc(func(ctx context.Context, r domain.Request) (string, error) {
		return "{}", nil
	}))

	ctx := context.Background()
	if err := dispatcher.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := dispatcher.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := dispatcher.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
