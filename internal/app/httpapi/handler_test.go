package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	app "github.com/caffe-ja/observer-platform/internal/app"
	"github.com/caffe-ja/observer-platform/internal/app/domain/admin"
	"github.com/caffe-ja/observer-platform/internal/app/domain/alert"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

const testAPIToken = "service-token"

func quietLogger() *logger.Logger {
	log := logger.NewDefault("httpapi-test")
	log.SetOutput(io.Discard)
	return log
}

func newTestHandler(t *testing.T) (http.Handler, *app.Application) {
	t.Helper()
	application, err := app.New(app.Stores{}, quietLogger())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	handler, err := NewHandler(application, Options{
		JWTSecret: "test-secret",
		APITokens: []string{testAPIToken},
	})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler, application
}

func marshal(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(b)
}

func authedRequest(method, path string, body io.Reader, token string) *http.Request {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func do(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func loginToken(t *testing.T, handler http.Handler, application *app.Application, username, password string, role admin.Role) string {
	t.Helper()
	if _, err := application.Admin.CreateUser(context.Background(), username, password, role); err != nil {
		t.Fatalf("create user: %v", err)
	}
	resp := do(handler, httptest.NewRequest(http.MethodPost, "/auth/login", marshal(t, map[string]string{
		"username": username,
		"password": password,
	})))
	if resp.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}
	if out.Token == "" {
		t.Fatalf("empty token")
	}
	return out.Token
}

func TestAuthRequired(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := do(handler, httptest.NewRequest(http.MethodGet, "/observers", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}

	resp = do(handler, authedRequest(http.MethodGet, "/observers", nil, "bogus"))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", resp.Code)
	}

	resp = do(handler, authedRequest(http.MethodGet, "/observers", nil, testAPIToken))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with api token, got %d", resp.Code)
	}

	resp = do(handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 healthz without token, got %d", resp.Code)
	}
}

func TestObserverAndStationFlow(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := do(handler, authedRequest(http.MethodPost, "/stations", marshal(t, map[string]any{
		"code":   "KGN-014",
		"name":   "Holy Trinity High",
		"parish": "Kingston",
		"lat":    17.976,
		"lng":    -76.793,
	}), testAPIToken))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create station: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var st struct {
		ID string `json:"ID"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal station: %v", err)
	}

	resp = do(handler, authedRequest(http.MethodPost, "/observers", marshal(t, map[string]any{
		"full_name":  "Marcia Brown",
		"email":      "marcia@example.com",
		"phone":      "+18765550101",
		"parish":     "Kingston",
		"station_id": st.ID,
	}), testAPIToken))
	if resp.Code != http.StatusCreated {
		t.Fatalf("register observer: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var obs struct {
		ID string `json:"ID"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &obs); err != nil {
		t.Fatalf("unmarshal observer: %v", err)
	}

	resp = do(handler, authedRequest(http.MethodGet, "/observers?parish=Kingston", nil, testAPIToken))
	if resp.Code != http.StatusOK {
		t.Fatalf("list observers: expected 200, got %d", resp.Code)
	}

	resp = do(handler, authedRequest(http.MethodPatch, "/observers/"+obs.ID, marshal(t, map[string]any{
		"phone": "+18765550102",
	}), testAPIToken))
	if resp.Code != http.StatusOK {
		t.Fatalf("patch observer: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = do(handler, authedRequest(http.MethodPost, "/stations/"+st.ID+"/targets", marshal(t, map[string]any{
		"kind":     "traffic",
		"interval": "@every 5m",
	}), testAPIToken))
	if resp.Code != http.StatusCreated {
		t.Fatalf("add target: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = do(handler, authedRequest(http.MethodDelete, "/observers/"+obs.ID, nil, testAPIToken))
	if resp.Code != http.StatusNoContent {
		t.Fatalf("delete observer: expected 204, got %d", resp.Code)
	}
	resp = do(handler, authedRequest(http.MethodGet, "/observers/"+obs.ID, nil, testAPIToken))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.Code)
	}
}

func TestTrafficEndpoints(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := do(handler, authedRequest(http.MethodPost, "/stations", marshal(t, map[string]any{
		"code": "SPT-003", "name": "Spanish Town Primary", "parish": "St. Catherine",
		"lat": 17.994, "lng": -76.955,
	}), testAPIToken))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create station: got %d", resp.Code)
	}
	var st struct {
		ID string `json:"ID"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	resp = do(handler, authedRequest(http.MethodPost, "/stations/"+st.ID+"/traffic", marshal(t, map[string]any{
		"interval": "@every 2m",
	}), testAPIToken))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create feed: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = do(handler, authedRequest(http.MethodPost, "/stations/"+st.ID+"/traffic/snapshots", marshal(t, map[string]any{
		"severity":      "heavy",
		"speed_kmh":     18.5,
		"delay_minutes": 12.0,
		"source":        "manual",
	}), testAPIToken))
	if resp.Code != http.StatusCreated {
		t.Fatalf("record snapshot: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = do(handler, authedRequest(http.MethodGet, "/stations/"+st.ID+"/traffic?window=2h", nil, testAPIToken))
	if resp.Code != http.StatusOK {
		t.Fatalf("get traffic: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal traffic: %v", err)
	}
	if _, ok := out["latest"]; !ok {
		t.Fatalf("expected latest snapshot in response: %s", resp.Body.String())
	}
	if _, ok := out["summary"]; !ok {
		t.Fatalf("expected summary in response: %s", resp.Body.String())
	}
}

func TestAlertEndpoints(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := do(handler, authedRequest(http.MethodPost, "/alerts", marshal(t, map[string]any{
		"severity": "critical",
		"title":    "Road blocked",
		"message":  "Protest blocking Spanish Town Road",
		"parish":   "St. Catherine",
	}), testAPIToken))
	if resp.Code != http.StatusCreated {
		t.Fatalf("raise alert: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var a struct {
		ID string `json:"ID"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &a); err != nil {
		t.Fatalf("unmarshal alert: %v", err)
	}

	resp = do(handler, authedRequest(http.MethodPatch, "/alerts/"+a.ID, marshal(t, map[string]string{
		"status": "acknowledged",
	}), testAPIToken))
	if resp.Code != http.StatusOK {
		t.Fatalf("acknowledge: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = do(handler, authedRequest(http.MethodGet, "/alerts/"+a.ID+"/deliveries", nil, testAPIToken))
	if resp.Code != http.StatusOK {
		t.Fatalf("deliveries: expected 200, got %d", resp.Code)
	}

	resp = do(handler, authedRequest(http.MethodPatch, "/alerts/"+a.ID, marshal(t, map[string]string{
		"status": "escalated",
	}), testAPIToken))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported status, got %d", resp.Code)
	}
}

func TestAlertStreamThroughMiddleware(t *testing.T) {
	handler, application := newTestHandler(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/alerts/stream?token=" + testAPIToken
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("stream dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for application.AlertHub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	raised, err := application.Alerts.Raise(context.Background(), alert.SeverityCritical,
		"Station flooded", "Water entering the counting room", "St. Thomas", "", "ops")
	if err != nil {
		t.Fatalf("raise: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var payload map[string]string
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read alert from stream: %v", err)
	}
	if payload["id"] != raised.ID || payload["severity"] != "critical" {
		t.Fatalf("unexpected stream payload %#v", payload)
	}
}

func TestRoleEnforcement(t *testing.T) {
	handler, application := newTestHandler(t)

	viewerToken := loginToken(t, handler, application, "viewer", "viewer-pass-1", admin.RoleViewer)
	adminToken := loginToken(t, handler, application, "root", "root-pass-123", admin.RoleAdmin)

	// Viewers read but never write.
	resp := do(handler, authedRequest(http.MethodGet, "/observers", nil, viewerToken))
	if resp.Code != http.StatusOK {
		t.Fatalf("viewer read: expected 200, got %d", resp.Code)
	}
	resp = do(handler, authedRequest(http.MethodPost, "/alerts", marshal(t, map[string]string{
		"severity": "info", "title": "x", "message": "y",
	}), viewerToken))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("viewer write: expected 403, got %d", resp.Code)
	}

	// Settings mutation and admin endpoints need the admin role.
	body := map[string]any{"key": "ai.api_key", "value": "k", "category": "ai", "secret": true}
	resp = do(handler, authedRequest(http.MethodPut, "/settings", marshal(t, body), testAPIToken))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("api token settings write: expected 403, got %d", resp.Code)
	}
	resp = do(handler, authedRequest(http.MethodPut, "/settings", marshal(t, body), adminToken))
	if resp.Code != http.StatusOK {
		t.Fatalf("admin settings write: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = do(handler, authedRequest(http.MethodGet, "/admin/users", nil, viewerToken))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("viewer admin list: expected 403, got %d", resp.Code)
	}
	resp = do(handler, authedRequest(http.MethodGet, "/admin/users", nil, adminToken))
	if resp.Code != http.StatusOK {
		t.Fatalf("admin list: expected 200, got %d", resp.Code)
	}
	if bytes.Contains(resp.Body.Bytes(), []byte("PasswordHash\":\"$")) {
		t.Fatalf("password hash leaked in listing")
	}
}

func TestMissingResourceReturns404(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := do(handler, authedRequest(http.MethodDelete, "/observers/999", nil, testAPIToken))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("delete missing observer: expected 404, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = do(handler, authedRequest(http.MethodGet, "/stations/999", nil, testAPIToken))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("get missing station: expected 404, got %d", resp.Code)
	}
}

func TestCertificateVerifyIsPublic(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := do(handler, httptest.NewRequest(http.MethodGet, "/certificates/verify?serial=CAFFE-2026-000001", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown serial without auth, got %d", resp.Code)
	}
}

func TestAuditTrail(t *testing.T) {
	handler, application := newTestHandler(t)
	adminToken := loginToken(t, handler, application, "root", "root-pass-123", admin.RoleAdmin)

	resp := do(handler, authedRequest(http.MethodPost, "/stations", marshal(t, map[string]any{
		"code": "MBJ-001", "name": "Sam Sharpe Teachers College", "parish": "St. James",
		"lat": 18.47, "lng": -77.92,
	}), adminToken))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create station: got %d", resp.Code)
	}

	resp = do(handler, authedRequest(http.MethodGet, "/audit", nil, adminToken))
	if resp.Code != http.StatusOK {
		t.Fatalf("audit: expected 200, got %d", resp.Code)
	}
	var entries []map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unmarshal audit: %v", err)
	}
	found := false
	for _, e := range entries {
		if e["path"] == "/stations" && e["method"] == http.MethodPost && e["user"] == "root" {
			found = true
		}
	}
	if !found {
		t.Fatalf("station creation missing from audit trail: %v", entries)
	}
}

func TestRateLimit(t *testing.T) {
	application, err := app.New(app.Stores{}, quietLogger())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	handler, err := NewHandler(application, Options{
		JWTSecret:     "test-secret",
		APITokens:     []string{testAPIToken},
		RatePerSecond: 1,
		RateBurst:     1,
	})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	resp := do(handler, authedRequest(http.MethodGet, "/observers", nil, testAPIToken))
	if resp.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", resp.Code)
	}
	resp = do(handler, authedRequest(http.MethodGet, "/observers", nil, testAPIToken))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", resp.Code)
	}
}
