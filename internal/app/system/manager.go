package system

import (
	"context"
	"fmt"
	"sync"

	"github.com/caffe-ja/observer-platform/pkg/logger"
)

// Manager starts registered services in registration order and stops them in
// reverse. Registration is rejected after Start.
type Manager struct {
	mu       sync.Mutex
	services []Service
	names    map[string]struct{}
	started  bool
	log      *logger.Logger
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		names: make(map[string]struct{}),
		log:   logger.NewDefault("system"),
	}
}

// Register adds a service to the lifecycle registry. Service names must be
// unique.
func (m *Manager) Register(svc Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("cannot register %s: manager already started", svc.Name())
	}
	if svc.Name() == "" {
		return fmt.Errorf("service name required")
	}
	if _, exists := m.names[svc.Name()]; exists {
		return fmt.Errorf("service %s already registered", svc.Name())
	}
	m.names[svc.Name()] = struct{}{}
	m.services = append(m.services, svc)
	return nil
}

// Start starts all registered services in order. On failure, services already
// started are stopped in reverse before the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("manager already started")
	}

	for i, svc := range m.services {
		if err := svc.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if stopErr := m.services[j].Stop(ctx); stopErr != nil {
					m.log.WithError(stopErr).WithField("service", m.services[j].Name()).Error("stop after failed start")
				}
			}
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		m.log.WithField("service", svc.Name()).Debug("service started")
	}
	m.started = true
	return nil
}

// Stop stops all services in reverse registration order. All services are
// attempted; the first error is returned.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}

	var firstErr error
	for i := len(m.services) - 1; i >= 0; i-- {
		svc := m.services[i]
		if err := svc.Stop(ctx); err != nil {
			m.log.WithError(err).WithField("service", svc.Name()).Error("service stop failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("stop %s: %w", svc.Name(), err)
			}
		}
	}
	m.started = false
	return firstErr
}
