package alert

import "time"

// Severity classifies an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Status tracks an alert through triage.
type Status string

const (
	StatusOpen         Status = "open"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Alert is an emergency or operational alert raised during an election event.
type Alert struct {
	ID        string
	Severity  Severity
	Title     string
	Message   string
	Parish    string
	StationID string
	Status    Status
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Channel names a delivery transport.
type Channel string

const (
	ChannelSMS       Channel = "sms"
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelWebsocket Channel = "ws"
)

// Delivery records one attempted alert delivery to one recipient.
type Delivery struct {
	ID        string
	AlertID   string
	Channel   Channel
	Target    string
	Status    string // sent or failed
	Error     string
	CreatedAt time.Time
}

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}
