package stations

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/caffe-ja/observer-platform/internal/app/domain/station"
	"github.com/caffe-ja/observer-platform/internal/app/storage/memory"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

func TestService_StationLifecycle(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)

	st, err := svc.Create(context.Background(), "ksa-001", "Mona Primary", "St. Andrew", "Mona Rd", 18.006, -76.746)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if st.Code != "KSA-001" || !st.Active {
		t.Fatalf("unexpected station: %#v", st)
	}

	if _, err := svc.Create(context.Background(), "KSA-001", "Duplicate", "", "", 0, 0); err == nil {
		t.Fatalf("expected duplicate code error")
	}
	if _, err := svc.Create(context.Background(), "KSA-002", "Bad Coords", "", "", 200, 0); err == nil {
		t.Fatalf("expected coordinate range error")
	}

	newName := "Mona Primary School"
	inactive := false
	updated, err := svc.Update(context.Background(), st.ID, &newName, nil, nil, &inactive)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != newName || updated.Active {
		t.Fatalf("update not applied: %#v", updated)
	}

	byCode, err := svc.GetByCode(context.Background(), "ksa-001")
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if byCode.ID != st.ID {
		t.Fatalf("code lookup returned %q, want %q", byCode.ID, st.ID)
	}
}

func TestService_MonitorTargets(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)

	st, err := svc.Create(context.Background(), "KSA-003", "Papine High", "St. Andrew", "", 18.017, -76.741)
	if err != nil {
		t.Fatalf("create station: %v", err)
	}

	target, err := svc.AddTarget(context.Background(), st.ID, station.TargetTraffic, "@every 5m", map[string]float64{"delay_minutes": 20})
	if err != nil {
		t.Fatalf("add target: %v", err)
	}
	if !target.Enabled {
		t.Fatalf("expected target enabled: %#v", target)
	}

	if _, err := svc.AddTarget(context.Background(), st.ID, station.TargetTraffic, "@every 1m", nil); err == nil {
		t.Fatalf("expected duplicate kind error")
	}
	if _, err := svc.AddTarget(context.Background(), st.ID, station.TargetWeather, "not-a-schedule", nil); err == nil {
		t.Fatalf("expected interval validation error")
	}
	if _, err := svc.AddTarget(context.Background(), st.ID, "unknown", "@every 5m", nil); err == nil {
		t.Fatalf("expected kind validation error")
	}

	interval := "0 */2 * * *"
	disabled := false
	updated, err := svc.UpdateTarget(context.Background(), target.ID, &interval, nil, &disabled)
	if err != nil {
		t.Fatalf("update target: %v", err)
	}
	if updated.Interval != interval || updated.Enabled {
		t.Fatalf("target update not applied: %#v", updated)
	}

	if err := svc.RemoveTarget(context.Background(), target.ID); err != nil {
		t.Fatalf("remove target: %v", err)
	}
	remaining, err := svc.ListTargets(context.Background(), st.ID, "")
	if err != nil {
		t.Fatalf("list targets: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no targets, got %d", len(remaining))
	}
}

func ExampleService_Create() {
	store := memory.New()
	log := logger.NewDefault("example-stations")
	log.SetOutput(io.Discard)
	svc := New(store, log)
	st, _ := svc.Create(context.Background(), "kgn-014", "Allman Town Primary", "Kingston", "", 17.98, -76.79)
	fmt.Println(st.Code, st.Active)
	// Output:
	// KGN-014 true
}
