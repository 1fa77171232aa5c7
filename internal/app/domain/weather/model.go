package weather

import "time"

// Snapshot captures weather conditions near a polling station.
type Snapshot struct {
	ID              string
	StationID       string
	Condition       string
	TempC           float64
	RainProbability float64
	WindKmh         float64
	Source          string
	CollectedAt     time.Time
	CreatedAt       time.Time
}
