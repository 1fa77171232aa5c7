package station

import "time"

// Station is a polling location registered with the ECJ.
type Station struct {
	ID        string
	Code      string
	Name      string
	Parish    string
	Address   string
	Latitude  float64
	Longitude float64
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TargetKind names a monitored condition at a station.
type TargetKind string

const (
	TargetTraffic  TargetKind = "traffic"
	TargetWeather  TargetKind = "weather"
	TargetIncident TargetKind = "incident"
)

// MonitorTarget configures which conditions are monitored for a station and
// how often.
type MonitorTarget struct {
	ID         string
	StationID  string
	Kind       TargetKind
	Enabled    bool
	Interval   string
	Thresholds map[string]float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ValidTargetKind reports whether k names a supported monitor kind.
func ValidTargetKind(k TargetKind) bool {
	switch k {
	case TargetTraffic, TargetWeather, TargetIncident:
		return true
	}
	return false
}
