package observers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/caffe-ja/observer-platform/internal/app/domain/observer"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

// Session describes an identity verification session opened at the provider.
type Session struct {
	Ref string
	URL string
}

// Verifier opens identity verification sessions with an external KYC
// provider.
type Verifier interface {
	CreateSession(ctx context.Context, obs observer.Observer) (Session, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, obs observer.Observer) (Session, error)

func (f VerifierFunc) CreateSession(ctx context.Context, obs observer.Observer) (Session, error) {
	if f == nil {
		return Session{}, nil
	}
	return f(ctx, obs)
}

// HTTPVerifier talks to a hosted KYC provider over its JSON API.
type HTTPVerifier struct {
	client   *http.Client
	endpoint string
	apiKey   string
	log      *logger.Logger
}

// NewHTTPVerifier validates the endpoint and returns a provider-backed
// verifier.
func NewHTTPVerifier(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*HTTPVerifier, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("kyc endpoint is required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid kyc endpoint %q", endpoint)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.NewDefault("kyc-verifier")
	}
	return &HTTPVerifier{
		client:   client,
		endpoint: endpoint,
		apiKey:   apiKey,
		log:      log,
	}, nil
}

func (v *HTTPVerifier) CreateSession(ctx context.Context, obs observer.Observer) (Session, error) {
	payload, err := json.Marshal(map[string]string{
		"reference_id": obs.ID,
		"full_name":    obs.FullName,
		"email":        obs.Email,
	})
	if err != nil {
		return Session{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		req.Header.Set("X-Api-Key", v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("kyc request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Session{}, fmt.Errorf("kyc provider returned status %d", resp.StatusCode)
	}

	var body struct {
		SessionID string `json:"session_id"`
		URL       string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Session{}, fmt.Errorf("decode kyc response: %w", err)
	}
	if body.SessionID == "" {
		return Session{}, fmt.Errorf("kyc provider returned no session id")
	}
	return Session{Ref: body.SessionID, URL: body.URL}, nil
}
