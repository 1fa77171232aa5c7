package certificate

import "time"

// Status tracks a certificate through its lifetime.
type Status string

const (
	StatusIssued  Status = "issued"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// Certificate records accreditation of a trained, KYC-approved observer.
type Certificate struct {
	ID            string
	ObserverID    string
	CourseID      string
	SerialNo      string
	Status        Status
	IssuedAt      time.Time
	ExpiresAt     time.Time
	RevokedReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
