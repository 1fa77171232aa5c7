package weatherfeeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/caffe-ja/observer-platform/internal/app/domain/station"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

// Observation is one fetched weather reading.
type Observation struct {
	Condition       string
	TempC           float64
	RainProbability float64
	WindKmh         float64
	Source          string
}

// Fetcher retrieves current weather near a station.
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

// FallbackObservation is the static estimate used when the provider is
// unreachable. Tropical baseline for Jamaica.
func FallbackObservation() Observation {
	return Observation{
		Condition:       "partly cloudy",
		TempC:           29,
		RainProbability: 30,
		WindKmh:         15,
		Source:          "fallback",
	}
}

// HTTPFetcher queries a weather provider by coordinates.
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
		return nil, fmt.Errorf("weather endpoint is required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid weather endpoint %q", endpoint)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.NewDefault("weather-fetcher")
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
		return Observation{}, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Observation{}, fmt.Errorf("weather provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Observation{}, err
	}

	condition := gjson.GetBytes(body, "current.condition")
	if !condition.Exists() {
		return Observation{}, fmt.Errorf("weather response missing current.condition")
	}

	return Observation{
		Condition:       condition.String(),
		TempC:           gjson.GetBytes(body, "current.temp_c").Float(),
		RainProbability: gjson.GetBytes(body, "current.rain_probability").Float(),
		WindKmh:         gjson.GetBytes(body, "current.wind_kmh").Float(),
		Source:          "provider",
	}, nil
}
