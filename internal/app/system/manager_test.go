package system

import (
	"context"
	"errors"
	"testing"
)

type fakeService struct {
	name     string
	startErr error
	events   *[]string
}

func (f fakeService) Name() string { return f.name }

func (f fakeService) Start(context.Context) error {
	*f.events = append(*f.events, "start:"+f.name)
	return f.startErr
}

func (f fakeService) Stop(context.Context) error {
	*f.events = append(*f.events, "stop:"+f.name)
	return nil
}

func TestManagerStartStopOrder(t *testing.T) {
	var events []string
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(fakeService{name: name, events: &events}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestManagerStartFailureUnwinds(t *testing.T) {
	var events []string
	m := NewManager()
	if err := m.Register(fakeService{name: "a", events: &events}); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := m.Register(fakeService{name: "b", startErr: errors.New("boom"), events: &events}); err != nil {
		t.Fatalf("register b: %v", err)
	}

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected start failure")
	}

	want := []string{"start:a", "start:b", "stop:a"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	var events []string
	m := NewManager()
	if err := m.Register(fakeService{name: "dup", events: &events}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(fakeService{name: "dup", events: &events}); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}
}
