package alerts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/caffe-ja/observer-platform/internal/app/domain/alert"
	"github.com/caffe-ja/observer-platform/internal/app/domain/observer"
	"github.com/caffe-ja/observer-platform/internal/app/storage/memory"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

func TestService_RaiseDeliversToActiveObservers(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)

	if _, err := store.CreateObserver(context.Background(), observer.Observer{
		FullName: "Active",
		Email:    "active@caffe.org.jm",
		Phone:    "876-555-0101",
		Parish:   "Kingston",
		Status:   observer.StatusActive,
	}); err != nil {
		t.Fatalf("seed active observer: %v", err)
	}
	if _, err := store.CreateObserver(context.Background(), observer.Observer{
		FullName: "Suspended",
		Email:    "suspended@caffe.org.jm",
		Phone:    "876-555-0102",
		Parish:   "Kingston",
		Status:   observer.StatusSuspended,
	}); err != nil {
		t.Fatalf("seed suspended observer: %v", err)
	}

	var sent []string
	svc.AttachNotifier(NotifierFunc(func(ctx context.Context, channel alert.Channel, target string, a alert.Alert) error {
		sent = append(sent, string(channel)+":"+target)
		return nil
	}))

	a, err := svc.Raise(context.Background(), alert.SeverityCritical, "Road blocked", "Mandela Highway impassable", "Kingston", "", "ops")
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	if len(sent) != 1 || sent[0] != "sms:876-555-0101" {
		t.Fatalf("unexpected deliveries: %v", sent)
	}

	deliveries, err := svc.Deliveries(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("deliveries: %v", err)
	}
	if len(deliveries) != 1 || deliveries[0].Status != "sent" {
		t.Fatalf("unexpected delivery records: %#v", deliveries)
	}
}

func TestService_RaiseRecordsFailedDelivery(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)

	if _, err := store.CreateObserver(context.Background(), observer.Observer{
		FullName: "Active",
		Email:    "active@caffe.org.jm",
		Phone:    "876-555-0101",
		Parish:   "Kingston",
		Status:   observer.StatusActive,
	}); err != nil {
		t.Fatalf("seed observer: %v", err)
	}

	svc.AttachNotifier(NotifierFunc(func(ctx context.Context, channel alert.Channel, target string, a alert.Alert) error {
		return fmt.Errorf("gateway unavailable")
	}))

	a, err := svc.Raise(context.Background(), alert.SeverityWarning, "Heavy rain", "", "Kingston", "", "ops")
	if err != nil {
		t.Fatalf("raise must not fail on delivery errors: %v", err)
	}

	deliveries, err := svc.Deliveries(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("deliveries: %v", err)
	}
	if len(deliveries) != 1 || deliveries[0].Status != "failed" {
		t.Fatalf("unexpected delivery records: %#v", deliveries)
	}
}

func TestService_StatusTransitions(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)

	a, err := svc.Raise(context.Background(), alert.SeverityInfo, "Station opened late", "", "", "", "ops")
	if err != nil {
		t.Fatalf("raise: %v", err)
	}

	if _, err := svc.Raise(context.Background(), "bogus", "x", "", "", "", ""); err == nil {
		t.Fatalf("expected severity validation error")
	}

	acked, err := svc.Acknowledge(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if acked.Status != alert.StatusAcknowledged {
		t.Fatalf("status = %s, want acknowledged", acked.Status)
	}
	if _, err := svc.Acknowledge(context.Background(), a.ID); err == nil {
		t.Fatalf("expected double acknowledge error")
	}

	resolved, err := svc.Resolve(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != alert.StatusResolved {
		t.Fatalf("status = %s, want resolved", resolved.Status)
	}
	if _, err := svc.Resolve(context.Background(), a.ID); err == nil {
		t.Fatalf("expected double resolve error")
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	sent := hub.Broadcast(alert.Alert{ID: "a-1", Severity: alert.SeverityCritical, Title: "Test"})
	if sent != 1 {
		t.Fatalf("broadcast reached %d clients, want 1", sent)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var payload map[string]string
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if payload["id"] != "a-1" || payload["severity"] != "critical" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestHTTPNotifier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Fatalf("expected auth header, got %q", got)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	notifier, err := NewHTTPNotifier(server.Client(), server.URL, "token", "CAFFE", nil)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	err = notifier.Send(context.Background(), alert.ChannelSMS, "876-555-0101", alert.Alert{Severity: alert.SeverityInfo, Title: "Test"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
}

func ExampleService_Raise() {
	store := memory.New()
	log := logger.NewDefault("example-alerts")
	log.SetOutput(io.Discard)
	svc := New(store, store, log)
	a, _ := svc.Raise(context.Background(), alert.SeverityWarning, "Long queue", "", "St. Ann", "", "ops")
	fmt.Println(a.Severity, a.Status)
	// Output:
	// warning open
}
