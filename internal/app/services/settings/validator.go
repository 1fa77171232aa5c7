package settings

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Validator probes an external provider with its stored credentials and
// reports whether it is reachable.
type Validator interface {
	Check(ctx context.Context, svc *Service) (bool, string)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, svc *Service) (bool, string)

func (f ValidatorFunc) Check(ctx context.Context, svc *Service) (bool, string) {
	if f == nil {
		return false, "validator not configured"
	}
	return f(ctx, svc)
}

// HTTPProbe is a Validator that issues one authenticated GET against a
// provider endpoint. The endpoint and credential are read from settings so
// validation always exercises what operators actually saved.
type HTTPProbe struct {
	client *http.Client

	// Setting keys holding the endpoint URL and the credential.
	EndpointKey string
	KeyKey      string

	// Header carrying the credential. Empty means the credential is sent
	// as the "key" query parameter instead.
	AuthHeader string
	// Prefix prepended to the credential in the header, e.g. "Bearer ".
	AuthPrefix string
}

// NewHTTPProbe builds a probe over the given client, defaulting to a
// 10 second timeout client when nil.
func NewHTTPProbe(client *http.Client, endpointKey, keyKey string) *HTTPProbe {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProbe{client: client, EndpointKey: endpointKey, KeyKey: keyKey}
}

func (p *HTTPProbe) Check(ctx context.Context, svc *Service) (bool, string) {
	endpoint, err := svc.Get(ctx, p.EndpointKey)
	if err != nil {
		return false, fmt.Sprintf("endpoint setting %q missing", p.EndpointKey)
	}
	credential := ""
	if p.KeyKey != "" {
		key, err := svc.Get(ctx, p.KeyKey)
		if err != nil {
			return false, fmt.Sprintf("credential setting %q missing", p.KeyKey)
		}
		credential = key.Value
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(endpoint.Value), nil)
	if err != nil {
		return false, fmt.Sprintf("invalid endpoint: %v", err)
	}
	if credential != "" {
		if p.AuthHeader != "" {
			req.Header.Set(p.AuthHeader, p.AuthPrefix+credential)
		} else {
			q := req.URL.Query()
			q.Set("key", credential)
			req.URL.RawQuery = q.Encode()
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return false, fmt.Sprintf("provider returned status %d", resp.StatusCode)
	}
	// 4xx still proves the host is reachable; credentials may be wrong.
	if resp.StatusCode >= 400 {
		return true, fmt.Sprintf("reachable, provider returned status %d", resp.StatusCode)
	}
	return true, "ok"
}

// DefaultProviders registers the standard provider probes. Keys follow the
// "<provider>.endpoint" / "<provider>.api_key" convention.
func DefaultProviders(svc *Service, client *http.Client) {
	providers := map[string]*HTTPProbe{
		"ai":        NewHTTPProbe(client, "ai.endpoint", "ai.api_key"),
		"traffic":   NewHTTPProbe(client, "traffic.endpoint", "traffic.api_key"),
		"weather":   NewHTTPProbe(client, "weather.endpoint", "weather.api_key"),
		"messaging": NewHTTPProbe(client, "messaging.endpoint", "messaging.api_key"),
		"kyc":       NewHTTPProbe(client, "kyc.endpoint", "kyc.api_key"),
	}
	providers["messaging"].AuthHeader = "Authorization"
	providers["messaging"].AuthPrefix = "Bearer "
	providers["kyc"].AuthHeader = "X-Api-Key"

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		svc.RegisterValidator(name, providers[name])
	}
}
