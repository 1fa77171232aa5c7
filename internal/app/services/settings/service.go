package settings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caffe-ja/observer-platform/internal/app/domain/settings"
	"github.com/caffe-ja/observer-platform/internal/app/storage"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

// RedactedValue replaces secret values in listings.
const RedactedValue = "********"

// Service manages admin-editable configuration entries.
type Service struct {
	store      storage.SettingStore
	log        *logger.Logger
	validators map[string]Validator
}

// New constructs a settings service.
func New(store storage.SettingStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("settings")
	}
	return &Service{
		store:      store,
		log:        log,
		validators: make(map[string]Validator),
	}
}

// RegisterValidator binds a provider name to its connectivity check.
func (s *Service) RegisterValidator(provider string, v Validator) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" || v == nil {
		return
	}
	s.validators[provider] = v
}

// Put creates or replaces a setting.
func (s *Service) Put(ctx context.Context, key, value, category string, secret bool, updatedBy string) (settings.Setting, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	category = strings.ToLower(strings.TrimSpace(category))

	if key == "" {
		return settings.Setting{}, fmt.Errorf("setting key is required")
	}
	if category == "" {
		category = "general"
	}

	setting, err := s.store.PutSetting(ctx, settings.Setting{
		Key:       key,
		Value:     value,
		Category:  category,
		Secret:    secret,
		UpdatedBy: strings.TrimSpace(updatedBy),
	})
	if err != nil {
		return settings.Setting{}, err
	}
	s.log.WithField("key", key).
		WithField("category", category).
		Info("setting updated")
	return setting, nil
}

// Get returns one setting with its raw value.
func (s *Service) Get(ctx context.Context, key string) (settings.Setting, error) {
	return s.store.GetSetting(ctx, strings.ToLower(strings.TrimSpace(key)))
}

// List returns settings in a category. Secret values are redacted.
func (s *Service) List(ctx context.Context, category string) ([]settings.Setting, error) {
	items, err := s.store.ListSettings(ctx, strings.ToLower(strings.TrimSpace(category)))
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].Secret {
			items[i].Value = RedactedValue
		}
	}
	return items, nil
}

// Delete removes a setting.
func (s *Service) Delete(ctx context.Context, key string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if err := s.store.DeleteSetting(ctx, key); err != nil {
		return err
	}
	s.log.WithField("key", key).Info("setting deleted")
	return nil
}

// ValidateProvider runs the registered connectivity check for a provider
// using the currently stored credentials.
func (s *Service) ValidateProvider(ctx context.Context, provider string) (settings.ValidationResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	validator, ok := s.validators[provider]
	if !ok {
		return settings.ValidationResult{}, fmt.Errorf("no validator registered for provider %q", provider)
	}

	started := time.Now()
	reachable, msg := validator.Check(ctx, s)
	result := settings.ValidationResult{
		Provider:  provider,
		Reachable: reachable,
		LatencyMS: time.Since(started).Milliseconds(),
		Message:   msg,
		CheckedAt: time.Now().UTC(),
	}

	s.log.WithField("provider", provider).
		WithField("reachable", reachable).
		Info("provider validated")
	return result, nil
}

// Providers lists the provider names that can be validated.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.validators))
	for name := range s.validators {
		names = append(names, name)
	}
	return names
}
