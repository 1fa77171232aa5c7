// Package health reports process and dependency status for the health
// endpoint.
package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Checker serves a JSON health report.
type Checker struct {
	db      *sql.DB
	started time.Time
}

// Report is the health endpoint payload.
type Report struct {
	Status        string  `json:"status"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	Database      string  `json:"database"`
	MemoryUsedPct float64 `json:"memory_used_pct"`
	CPUPct        float64 `json:"cpu_pct"`
}

// New builds a checker. db may be nil when running on in-memory stores.
func New(db *sql.DB) *Checker {
	return &Checker{db: db, started: time.Now()}
}

// Check assembles the current report.
func (c *Checker) Check(ctx context.Context) Report {
	report := Report{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(c.started).Seconds()),
		Database:      "disabled",
	}

	if c.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := c.db.PingContext(pingCtx); err != nil {
			report.Database = "unreachable"
			report.Status = "degraded"
		} else {
			report.Database = "ok"
		}
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		report.MemoryUsedPct = vm.UsedPercent
	}
	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		report.CPUPct = pcts[0]
	}
	return report
}

func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := c.Check(r.Context())
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}
