package trafficfeeds

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/caffe-ja/observer-platform/internal/app/domain/station"
	"github.com/caffe-ja/observer-platform/internal/app/domain/traffic"
	"github.com/caffe-ja/observer-platform/internal/app/storage/memory"
)

func seedStation(t *testing.T, store *memory.Store, code, parish string) station.Station {
	t.Helper()
	st, err := store.CreateStation(context.Background(), station.Station{
		Code:   code,
		Name:   "Test Station",
		Parish: parish,
		Active: true,
	})
	if err != nil {
		t.Fatalf("seed station: %v", err)
	}
	return st
}

func TestService_FeedLifecycle(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	st := seedStation(t, store, "KSA-001", "St. Andrew")

	feed, err := svc.CreateFeed(context.Background(), st.ID, "@every 5m")
	if err != nil {
		t.Fatalf("create feed: %v", err)
	}
	if !feed.Active {
		t.Fatalf("expected active feed: %#v", feed)
	}

	if _, err := svc.CreateFeed(context.Background(), st.ID, "@every 1m"); err == nil {
		t.Fatalf("expected duplicate feed error")
	}
	if _, err := svc.CreateFeed(context.Background(), "missing", "@every 1m"); err == nil {
		t.Fatalf("expected unknown station error")
	}

	if _, err := svc.SetActive(context.Background(), feed.ID, false); err != nil {
		t.Fatalf("disable feed: %v", err)
	}

	if _, err := svc.RecordSnapshot(context.Background(), feed.ID, "bogus", 10, 5, "", time.Now()); err == nil {
		t.Fatalf("expected severity validation error")
	}
	if _, err := svc.RecordSnapshot(context.Background(), feed.ID, traffic.SeverityHeavy, 15, 20, "manual", time.Now()); err != nil {
		t.Fatalf("record snapshot: %v", err)
	}

	latest, err := svc.Latest(context.Background(), feed.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Severity != traffic.SeverityHeavy {
		t.Fatalf("latest severity = %s, want heavy", latest.Severity)
	}
}

func TestService_Summarize(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	st := seedStation(t, store, "KSA-002", "Kingston")

	feed, err := svc.CreateFeed(context.Background(), st.ID, "@every 5m")
	if err != nil {
		t.Fatalf("create feed: %v", err)
	}

	now := time.Now().UTC()
	fixtures := []struct {
		severity traffic.Severity
		speed    float64
		delay    float64
	}{
		{traffic.SeverityModerate, 30, 10},
		{traffic.SeverityModerate, 26, 14},
		{traffic.SeverityHeavy, 16, 28},
	}
	for i, fx := range fixtures {
		if _, err := svc.RecordSnapshot(context.Background(), feed.ID, fx.severity, fx.speed, fx.delay, "test", now.Add(-time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("record snapshot %d: %v", i, err)
		}
	}

	summary, err := svc.Summarize(context.Background(), feed.ID, time.Hour)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary.Samples != 3 {
		t.Fatalf("samples = %d, want 3", summary.Samples)
	}
	if summary.MaxDelayMinutes != 28 {
		t.Fatalf("max delay = %v, want 28", summary.MaxDelayMinutes)
	}
	if summary.DominantSeverity != traffic.SeverityModerate {
		t.Fatalf("dominant severity = %s, want moderate", summary.DominantSeverity)
	}
}

func TestHTTPFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "token" {
			t.Fatalf("expected api key, got query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"flow": {"jamFactor": 7.2, "speed": 18, "freeFlowSpeed": 50}}`))
	}))
	defer server.Close()

	fetcher, err := NewHTTPFetcher(server.Client(), server.URL, "token", nil)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	obs, err := fetcher.Fetch(context.Background(), station.Station{Latitude: 18.0, Longitude: -76.8})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if obs.Severity != traffic.SeverityHeavy {
		t.Fatalf("severity = %s, want heavy", obs.Severity)
	}
	if obs.DelayMinutes <= 0 {
		t.Fatalf("expected positive delay estimate, got %v", obs.DelayMinutes)
	}
}

func TestSeverityForJamFactor(t *testing.T) {
	cases := []struct {
		jam  float64
		want traffic.Severity
	}{
		{0, traffic.SeverityLight},
		{2.9, traffic.SeverityLight},
		{3, traffic.SeverityModerate},
		{6, traffic.SeverityHeavy},
		{9, traffic.SeveritySevere},
	}
	for _, tc := range cases {
		if got := severityForJamFactor(tc.jam); got != tc.want {
			t.Fatalf("jam %v: got %s, want %s", tc.jam, got, tc.want)
		}
	}
}

func TestRefresherFallsBack(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	st := seedStation(t, store, "KSA-003", "Kingston")

	feed, err := svc.CreateFeed(context.Background(), st.ID, "@every 1m")
	if err != nil {
		t.Fatalf("create feed: %v", err)
	}

	refresher := NewRefresher(svc, store, nil)
	refresher.WithFetcher(FetcherFunc(func(ctx context.Context, st station.Station) (Observation, error) {
		return Observation{}, fmt.Errorf("provider down")
	}))
	refresher.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := refresher.Start(ctx); err != nil {
		t.Fatalf("start refresher: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	refresher.Stop(context.Background())

	snaps, err := svc.ListSnapshots(context.Background(), feed.ID)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(snaps) == 0 {
		t.Fatalf("expected fallback snapshots")
	}
	if snaps[0].Source != "fallback" {
		t.Fatalf("source = %q, want fallback", snaps[0].Source)
	}
	if snaps[0].Severity != traffic.SeverityHeavy {
		t.Fatalf("severity = %s, want heavy for Kingston fallback", snaps[0].Severity)
	}
}

func ExampleFallbackObservation() {
	obs := FallbackObservation("Manchester")
	fmt.Println(obs.Severity, obs.Source)
	// Output:
	// light fallback
}

func TestTTLForInterval(t *testing.T) {
	if got := ttlForInterval("@every 5m"); got != 6*time.Minute {
		t.Fatalf("ttl = %v, want 6m", got)
	}
	if got := ttlForInterval("not-a-schedule"); got != defaultCacheTTL {
		t.Fatalf("ttl = %v, want default for bad interval", got)
	}
	if got := ttlForInterval(""); got != defaultCacheTTL {
		t.Fatalf("ttl = %v, want default for empty interval", got)
	}
}
