package trafficfeeds

import (
	"strings"

	"github.com/caffe-ja/observer-platform/internal/app/domain/traffic"
)

// Typical mid-day congestion by parish, used when the provider is
// unreachable so feeds keep producing data on election day.
var parishFallback = map[string]Observation{
	"kingston":      {Severity: traffic.SeverityHeavy, SpeedKmh: 18, DelayMinutes: 25},
	"st. andrew":    {Severity: traffic.SeverityHeavy, SpeedKmh: 22, DelayMinutes: 20},
	"st. catherine": {Severity: traffic.SeverityModerate, SpeedKmh: 35, DelayMinutes: 12},
	"clarendon":     {Severity: traffic.SeverityModerate, SpeedKmh: 40, DelayMinutes: 8},
	"manchester":    {Severity: traffic.SeverityLight, SpeedKmh: 50, DelayMinutes: 4},
	"st. james":     {Severity: traffic.SeverityModerate, SpeedKmh: 32, DelayMinutes: 10},
}

var defaultFallback = Observation{
	Severity:     traffic.SeverityLight,
	SpeedKmh:     45,
	DelayMinutes: 5,
}

// FallbackObservation returns a static estimate for the parish.
func FallbackObservation(parish string) Observation {
	obs, ok := parishFallback[strings.ToLower(strings.TrimSpace(parish))]
	if !ok {
		obs = defaultFallback
	}
	obs.Source = "fallback"
	return obs
}
