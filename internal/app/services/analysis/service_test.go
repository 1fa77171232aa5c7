package analysis

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domain "github.com/caffe-ja/observer-platform/internal/app/domain/analysis"
	"github.com/caffe-ja/observer-platform/internal/app/services/stations"
	"github.com/caffe-ja/observer-platform/internal/app/storage/memory"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

func quietLogger(name string) *logger.Logger {
	log := logger.NewDefault(name)
	log.SetOutput(io.Discard)
	return log
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	log := quietLogger("analysis-test")
	return New(store, store, log), store
}

func seedStation(t *testing.T, store *memory.Store) string {
	t.Helper()
	svc := stations.New(store, nil)
	st, err := svc.Create(context.Background(), "KGN-001", "Holy Trinity High", "Kingston", "", 17.976, -76.793)
	if err != nil {
		t.Fatalf("create station: %v", err)
	}
	return st.ID
}

func TestSubmitValidation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "sentiment", "", "", nil); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if _, err := svc.Submit(ctx, domain.KindTrafficPrediction, "", "", nil); err == nil {
		t.Fatalf("expected error for traffic prediction without station")
	}
	if _, err := svc.Submit(ctx, domain.KindECJSummary, "", "", nil); err == nil {
		t.Fatalf("expected error for summary without subject")
	}
	if _, err := svc.Submit(ctx, domain.KindTrafficPrediction, "missing", "", nil); err == nil {
		t.Fatalf("expected error for unknown station")
	}

	stationID := seedStation(t, store)
	req, err := svc.Submit(ctx, domain.KindTrafficPrediction, stationID, "", map[string]string{"window": "election day"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if req.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}
	if req.ID == "" {
		t.Fatalf("expected generated id")
	}
}

func TestRequestLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Submit(ctx, domain.KindECJSummary, "", "Polling day procedures", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	req, err = svc.MarkRunning(ctx, req.ID)
	if err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if _, err := svc.MarkRunning(ctx, req.ID); err == nil {
		t.Fatalf("expected error marking running twice")
	}

	req, err = svc.Requeue(ctx, req.ID, "resolver timeout")
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if req.Status != domain.StatusPending || req.Error != "resolver timeout" {
		t.Fatalf("unexpected requeued state: %s %q", req.Status, req.Error)
	}

	if _, err := svc.MarkRunning(ctx, req.ID); err != nil {
		t.Fatalf("mark running after requeue: %v", err)
	}

	req, err = svc.Complete(ctx, req.ID, `{"summary":"ok"}`)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if req.Status != domain.StatusSucceeded || req.Error != "" || req.CompletedAt.IsZero() {
		t.Fatalf("unexpected completed state: %+v", req)
	}

	if _, err := svc.Complete(ctx, req.ID, "{}"); err == nil {
		t.Fatalf("expected error completing a finished request")
	}

	pending, err := svc.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending requests, got %d", len(pending))
	}
}

func TestFailIsTerminal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Submit(ctx, domain.KindIncidentTriage, "", "Ballot box seal broken", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	req, err = svc.Fail(ctx, req.ID, "model unavailable")
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if req.Status != domain.StatusFailed || req.CompletedAt.IsZero() {
		t.Fatalf("unexpected failed state: %+v", req)
	}
	if _, err := svc.Fail(ctx, req.ID, "again"); err == nil {
		t.Fatalf("expected error failing a terminal request")
	}
}

func TestGeminiResolver(t *testing.T) {
	payload := "Here is the forecast:\n```json\n{\"severity\":\"heavy\",\"confidence\":0.8,\"peak_hours\":[\"07:00-09:00\"],\"recommendation\":\"Deploy extra marshals.\"}\n```"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing api key")
		}
		fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, payload)
	}))
	defer server.Close()

	resolver, err := NewGeminiResolver(server.Client(), "test-key", "", quietLogger("gemini-test"))
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	resolver.WithBaseURL(server.URL)

	doc, err := resolver.Resolve(context.Background(), domain.Request{Kind: domain.KindTrafficPrediction, StationID: "st-1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.Contains(doc, `"severity":"heavy"`) {
		t.Fatalf("unexpected document: %s", doc)
	}
}

func TestGeminiResolverRejectsBadSeverity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"{\"severity\":\"apocalyptic\",\"confidence\":0.9}"}]}}]}`)
	}))
	defer server.Close()

	resolver, err := NewGeminiResolver(server.Client(), "test-key", "", quietLogger("gemini-test"))
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	resolver.WithBaseURL(server.URL)

	if _, err := resolver.Resolve(context.Background(), domain.Request{Kind: domain.KindTrafficPrediction}); err == nil {
		t.Fatalf("expected validation error for unknown severity")
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"a":1}`, `{"a":1}`, true},
		{"prose before {\"a\":{\"b\":2}} prose after", `{"a":{"b":2}}`, true},
		{`{"s":"brace } inside"}`, `{"s":"brace } inside"}`, true},
		{"no json here", "", false},
		{`{"unclosed":1`, "", false},
	}
	for _, c := range cases {
		got, err := extractJSON(c.in)
		if c.ok && (err != nil || got != c.want) {
			t.Fatalf("extractJSON(%q) = %q, %v", c.in, got, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("extractJSON(%q) expected error", c.in)
		}
	}
}
