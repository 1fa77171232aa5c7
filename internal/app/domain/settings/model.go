package settings

import "time"

// Setting is one admin-managed configuration entry. Secret values are
// redacted when listed.
type Setting struct {
	Key       string
	Value     string
	Category  string
	Secret    bool
	UpdatedBy string
	UpdatedAt time.Time
}

// ValidationResult reports the outcome of probing an external provider with
// its configured credentials.
type ValidationResult struct {
	Provider  string
	Reachable bool
	LatencyMS int64
	Message   string
	CheckedAt time.Time
}
