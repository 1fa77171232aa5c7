package traffic

import "time"

// Severity grades road congestion around a polling station.
type Severity string

const (
	SeverityLight    Severity = "light"
	SeverityModerate Severity = "moderate"
	SeverityHeavy    Severity = "heavy"
	SeveritySevere   Severity = "severe"
)

// Feed is a configured traffic monitor for one station.
type Feed struct {
	ID        string
	StationID string
	Interval  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot captures observed (or estimated) conditions at a point in time.
type Snapshot struct {
	ID           string
	FeedID       string
	Severity     Severity
	SpeedKmh     float64
	DelayMinutes float64
	Source       string
	CollectedAt  time.Time
	CreatedAt    time.Time
}

// Summary aggregates recent snapshots for a feed.
type Summary struct {
	FeedID           string
	Samples          int
	AvgSpeedKmh      float64
	MaxDelayMinutes  float64
	DominantSeverity Severity
	WindowStart      time.Time
	WindowEnd        time.Time
}

// ValidSeverity reports whether s is a known traffic severity.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLight, SeverityModerate, SeverityHeavy, SeveritySevere:
		return true
	}
	return false
}
