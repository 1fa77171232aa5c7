package observer

import "time"

// Status tracks an observer's lifecycle within the programme.
type Status string

const (
	StatusPending   Status = "pending"
	StatusVerified  Status = "verified"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// KYCStatus tracks identity verification delegated to the KYC provider.
type KYCStatus string

const (
	KYCUnverified KYCStatus = "unverified"
	KYCPending    KYCStatus = "pending"
	KYCApproved   KYCStatus = "approved"
	KYCRejected   KYCStatus = "rejected"
)

// Observer is a field volunteer registered to monitor a polling station.
type Observer struct {
	ID        string
	FullName  string
	Email     string
	Phone     string
	Parish    string
	StationID string
	Status    Status
	KYCStatus KYCStatus
	KYCRef    string
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidStatus reports whether s is a known observer status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusVerified, StatusActive, StatusSuspended:
		return true
	}
	return false
}
