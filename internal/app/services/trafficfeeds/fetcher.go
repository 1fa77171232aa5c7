package trafficfeeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/caffe-ja/observer-platform/internal/app/domain/station"
	"github.com/caffe-ja/observer-platform/internal/app/domain/traffic"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

// Observation is one fetched traffic reading.
type Observation struct {
	Severity     traffic.Severity
	SpeedKmh     float64
	DelayMinutes float64
	Source       string
}

// Fetcher retrieves current traffic conditions near a station.
type Fetcher interface {
	Fetch(ctx context.Context, st station.Station) (Observation, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, st station.Station) (Observation, error)

func (f FetcherFunc) Fetch(ctx context.Context, st station.Station) (Observation, error) {
	if f == nil {
		return Observation{}, nil
	}
	return f(ctx, st)
}

// HTTPFetcher queries a flow-data provider by coordinates. The provider
// reports a 0-10 jam factor plus current and free-flow speeds.
type HTTPFetcher struct {
	client   *http.Client
	endpoint string
	apiKey   string
	log      *logger.Logger
}

// NewHTTPFetcher validates the endpoint and returns a provider-backed
// fetcher.
func NewHTTPFetcher(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*HTTPFetcher, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("traffic endpoint is required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid traffic endpoint %q", endpoint)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.NewDefault("traffic-fetcher")
	}
	return &HTTPFetcher{
		client:   client,
		endpoint: endpoint,
		apiKey:   apiKey,
		log:      log,
	}, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, st station.Station) (Observation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return Observation{}, err
	}
	q := req.URL.Query()
	q.Set("lat", fmt.Sprintf("%f", st.Latitude))
	q.Set("lng", fmt.Sprintf("%f", st.Longitude))
	if f.apiKey != "" {
		q.Set("key", f.apiKey)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := f.client.Do(req)
	if err != nil {
		return Observation{}, fmt.Errorf("traffic request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Observation{}, fmt.Errorf("traffic provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Observation{}, err
	}

	jam := gjson.GetBytes(body, "flow.jamFactor")
	if !jam.Exists() {
		return Observation{}, fmt.Errorf("traffic response missing flow.jamFactor")
	}

	speed := gjson.GetBytes(body, "flow.speed").Float()
	freeFlow := gjson.GetBytes(body, "flow.freeFlowSpeed").Float()

	obs := Observation{
		Severity: severityForJamFactor(jam.Float()),
		SpeedKmh: speed,
		Source:   "provider",
	}
	// Delay estimate over a nominal 10 km approach corridor.
	if speed > 0 && freeFlow > speed {
		obs.DelayMinutes = (10/speed - 10/freeFlow) * 60
	}
	return obs, nil
}

func severityForJamFactor(jam float64) traffic.Severity {
	switch {
	case jam < 3:
		return traffic.SeverityLight
	case jam < 6:
		return traffic.SeverityModerate
	case jam < 8.5:
		return traffic.SeverityHeavy
	default:
		return traffic.SeveritySevere
	}
}
