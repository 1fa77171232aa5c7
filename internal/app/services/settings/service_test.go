package settings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/caffe-ja/observer-platform/internal/app/storage/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(memory.New(), nil)
}

func TestPutGetDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Put(ctx, "  ", "v", "", false, "admin"); err == nil {
		t.Fatalf("expected error for empty key")
	}

	setting, err := svc.Put(ctx, "Traffic.Endpoint", "https://traffic.example.com/v1", "Traffic", false, "admin")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if setting.Key != "traffic.endpoint" || setting.Category != "traffic" {
		t.Fatalf("expected normalized key and category, got %q %q", setting.Key, setting.Category)
	}

	setting, err = svc.Put(ctx, "traffic.endpoint", "https://traffic.example.com/v2", "traffic", false, "ops")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if setting.Value != "https://traffic.example.com/v2" || setting.UpdatedBy != "ops" {
		t.Fatalf("upsert did not replace: %+v", setting)
	}

	got, err := svc.Get(ctx, "TRAFFIC.ENDPOINT")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Value != "https://traffic.example.com/v2" {
		t.Fatalf("unexpected value %q", got.Value)
	}

	if err := svc.Delete(ctx, "traffic.endpoint"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, "traffic.endpoint"); err == nil {
		t.Fatalf("expected error after delete")
	}
}

func TestListRedactsSecrets(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Put(ctx, "ai.endpoint", "https://ai.example.com", "ai", false, "admin"); err != nil {
		t.Fatalf("put endpoint: %v", err)
	}
	if _, err := svc.Put(ctx, "ai.api_key", "super-secret", "ai", true, "admin"); err != nil {
		t.Fatalf("put key: %v", err)
	}

	items, err := svc.List(ctx, "ai")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 settings, got %d", len(items))
	}
	for _, item := range items {
		if item.Secret && item.Value != RedactedValue {
			t.Fatalf("secret %q not redacted: %q", item.Key, item.Value)
		}
		if !item.Secret && item.Value == RedactedValue {
			t.Fatalf("non-secret %q redacted", item.Key)
		}
	}

	// Get still returns the raw value for use by integrations.
	got, err := svc.Get(ctx, "ai.api_key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Value != "super-secret" {
		t.Fatalf("expected raw value, got %q", got.Value)
	}
}

func TestValidateProvider(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Put(ctx, "kyc.endpoint", server.URL, "kyc", false, "admin"); err != nil {
		t.Fatalf("put endpoint: %v", err)
	}
	if _, err := svc.Put(ctx, "kyc.api_key", "kyc-token", "kyc", true, "admin"); err != nil {
		t.Fatalf("put key: %v", err)
	}
	DefaultProviders(svc, server.Client())

	result, err := svc.ValidateProvider(ctx, "kyc")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.Reachable || result.Message != "ok" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.LatencyMS < 0 {
		t.Fatalf("negative latency")
	}
	if gotKey != "kyc-token" {
		t.Fatalf("credential header not sent, got %q", gotKey)
	}

	if _, err := svc.ValidateProvider(ctx, "unknown"); err == nil {
		t.Fatalf("expected error for unregistered provider")
	}
}

func TestValidateProviderUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Put(ctx, "weather.endpoint", server.URL, "weather", false, "admin"); err != nil {
		t.Fatalf("put endpoint: %v", err)
	}
	if _, err := svc.Put(ctx, "weather.api_key", "w-key", "weather", true, "admin"); err != nil {
		t.Fatalf("put key: %v", err)
	}
	DefaultProviders(svc, server.Client())

	result, err := svc.ValidateProvider(ctx, "weather")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.Reachable {
		t.Fatalf("expected unreachable on server error")
	}
}
