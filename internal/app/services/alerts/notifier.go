package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/caffe-ja/observer-platform/internal/app/domain/alert"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

// HTTPNotifier delivers alerts through a hosted messaging gateway's JSON API.
type HTTPNotifier struct {
	client   *http.Client
	endpoint string
	apiKey   string
	sender   string
	log      *logger.Logger
}

// NewHTTPNotifier validates the endpoint and returns a gateway-backed
// notifier.
func NewHTTPNotifier(client *http.Client, endpoint, apiKey, sender string, log *logger.Logger) (*HTTPNotifier, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("notifier endpoint is required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid notifier endpoint %q", endpoint)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.NewDefault("alert-notifier")
	}
	return &HTTPNotifier{
		client:   client,
		endpoint: endpoint,
		apiKey:   apiKey,
		sender:   sender,
		log:      log,
	}, nil
}

func (n *HTTPNotifier) Send(ctx context.Context, channel alert.Channel, target string, a alert.Alert) error {
	payload, err := json.Marshal(map[string]string{
		"channel": string(channel),
		"from":    n.sender,
		"to":      target,
		"body":    fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(a.Severity)), a.Title, a.Message),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notifier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notifier returned status %d", resp.StatusCode)
	}
	return nil
}
