package analysis

import "time"

// Kind names a supported analysis task.
type Kind string

const (
	KindTrafficPrediction Kind = "traffic_prediction"
	KindECJSummary        Kind = "ecj_summary"
	KindIncidentTriage    Kind = "incident_triage"
)

// Status tracks an analysis request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Request is a queued AI analysis task. Result holds the validated JSON
// document produced by the resolver (model output or static fallback).
type Request struct {
	ID          string
	Kind        Kind
	StationID   string
	Subject     string
	Context     map[string]string
	Status      Status
	Result      string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time
}

// TrafficPrediction is the structured shape expected from a traffic
// prediction analysis.
type TrafficPrediction struct {
	Severity       string   `json:"severity"`
	Confidence     float64  `json:"confidence"`
	PeakHours      []string `json:"peak_hours"`
	Recommendation string   `json:"recommendation"`
}

// ValidKind reports whether k names a supported analysis kind.
func ValidKind(k Kind) bool {
	switch k {
	case KindTrafficPrediction, KindECJSummary, KindIncidentTriage:
		return true
	}
	return false
}
