package alerts

import (
	"context"
	"fmt"
	"strings"

	"github.com/caffe-ja/observer-platform/internal/app/domain/alert"
	"github.com/caffe-ja/observer-platform/internal/app/domain/observer"
	"github.com/caffe-ja/observer-platform/internal/app/metrics"
	"github.com/caffe-ja/observer-platform/internal/app/storage"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

// Notifier delivers an alert to one recipient over one channel.
type Notifier interface {
	Send(ctx context.Context, channel alert.Channel, target string, a alert.Alert) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, channel alert.Channel, target string, a alert.Alert) error

func (f NotifierFunc) Send(ctx context.Context, channel alert.Channel, target string, a alert.Alert) error {
	if f == nil {
		return nil
	}
	return f(ctx, channel, target, a)
}

// Broadcaster pushes an alert to all connected live stream clients.
type Broadcaster interface {
	Broadcast(a alert.Alert) int
}

// Service raises alerts and fans them out to observers.
type Service struct {
	store     storage.AlertStore
	observers storage.ObserverStore
	notifier  Notifier
	hub       Broadcaster
	log       *logger.Logger
}

// New constructs an alert service.
func New(store storage.AlertStore, observers storage.ObserverStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("alerts")
	}
	return &Service{
		store:     store,
		observers: observers,
		log:       log,
	}
}

// AttachNotifier wires the SMS/WhatsApp delivery provider.
func (s *Service) AttachNotifier(n Notifier) {
	s.notifier = n
}

// AttachHub wires the websocket broadcast hub.
func (s *Service) AttachHub(h Broadcaster) {
	s.hub = h
}

// Raise creates an alert and delivers it. Delivery failures are recorded but
// never fail the raise.
func (s *Service) Raise(ctx context.Context, severity alert.Severity, title, message, parish, stationID, createdBy string) (alert.Alert, error) {
	title = strings.TrimSpace(title)
	message = strings.TrimSpace(message)
	parish = strings.TrimSpace(parish)

	if !alert.ValidSeverity(severity) {
		return alert.Alert{}, fmt.Errorf("invalid severity %q", severity)
	}
	if title == "" {
		return alert.Alert{}, fmt.Errorf("title is required")
	}

	a := alert.Alert{
		Severity:  severity,
		Title:     title,
		Message:   message,
		Parish:    parish,
		StationID: strings.TrimSpace(stationID),
		Status:    alert.StatusOpen,
		CreatedBy: strings.TrimSpace(createdBy),
	}
	a, err := s.store.CreateAlert(ctx, a)
	if err != nil {
		return alert.Alert{}, err
	}
	s.log.WithField("alert_id", a.ID).
		WithField("severity", string(severity)).
		WithField("parish", parish).
		Info("alert raised")

	s.deliver(ctx, a)
	return a, nil
}

func (s *Service) deliver(ctx context.Context, a alert.Alert) {
	if s.hub != nil {
		reached := s.hub.Broadcast(a)
		s.recordDelivery(ctx, a.ID, alert.ChannelWebsocket, fmt.Sprintf("%d clients", reached), "sent", "")
	}

	if s.notifier == nil || s.observers == nil {
		return
	}

	recipients, err := s.observers.ListObservers(ctx, a.Parish)
	if err != nil {
		s.log.WithError(err).WithField("alert_id", a.ID).Warn("alert recipient lookup failed")
		return
	}
	for _, obs := range recipients {
		if obs.Status != observer.StatusActive && obs.Status != observer.StatusVerified {
			continue
		}
		if obs.Phone == "" {
			continue
		}
		if err := s.notifier.Send(ctx, alert.ChannelSMS, obs.Phone, a); err != nil {
			s.log.WithError(err).
				WithField("alert_id", a.ID).
				WithField("observer_id", obs.ID).
				Warn("alert delivery failed")
			s.recordDelivery(ctx, a.ID, alert.ChannelSMS, obs.Phone, "failed", err.Error())
			continue
		}
		s.recordDelivery(ctx, a.ID, alert.ChannelSMS, obs.Phone, "sent", "")
	}
}

func (s *Service) recordDelivery(ctx context.Context, alertID string, channel alert.Channel, target, status, errMsg string) {
	metrics.RecordAlertDelivery(string(channel), status)
	if _, err := s.store.CreateDelivery(ctx, alert.Delivery{
		AlertID: alertID,
		Channel: channel,
		Target:  target,
		Status:  status,
		Error:   errMsg,
	}); err != nil {
		s.log.WithError(err).WithField("alert_id", alertID).Warn("delivery record failed")
	}
}

// Acknowledge moves an open alert to acknowledged.
func (s *Service) Acknowledge(ctx context.Context, id string) (alert.Alert, error) {
	return s.transition(ctx, id, alert.StatusOpen, alert.StatusAcknowledged)
}

// Resolve closes an alert from either open or acknowledged.
func (s *Service) Resolve(ctx context.Context, id string) (alert.Alert, error) {
	a, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return alert.Alert{}, err
	}
	if a.Status == alert.StatusResolved {
		return alert.Alert{}, fmt.Errorf("alert %s already resolved", id)
	}
	a.Status = alert.StatusResolved
	a, err = s.store.UpdateAlert(ctx, a)
	if err != nil {
		return alert.Alert{}, err
	}
	s.log.WithField("alert_id", a.ID).Info("alert resolved")
	return a, nil
}

func (s *Service) transition(ctx context.Context, id string, from, to alert.Status) (alert.Alert, error) {
	a, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return alert.Alert{}, err
	}
	if a.Status != from {
		return alert.Alert{}, fmt.Errorf("alert %s is %s, expected %s", id, a.Status, from)
	}
	a.Status = to
	a, err = s.store.UpdateAlert(ctx, a)
	if err != nil {
		return alert.Alert{}, err
	}
	s.log.WithField("alert_id", a.ID).
		WithField("status", string(to)).
		Info("alert status changed")
	return a, nil
}

// Get retrieves a single alert.
func (s *Service) Get(ctx context.Context, id string) (alert.Alert, error) {
	return s.store.GetAlert(ctx, id)
}

// List returns alerts filtered by status and parish.
func (s *Service) List(ctx context.Context, status alert.Status, parish string) ([]alert.Alert, error) {
	return s.store.ListAlerts(ctx, status, parish)
}

// Deliveries returns the delivery record for an alert.
func (s *Service) Deliveries(ctx context.Context, alertID string) ([]alert.Delivery, error) {
	return s.store.ListDeliveries(ctx, alertID)
}
