package admin

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/caffe-ja/observer-platform/internal/app/domain/admin"
	"github.com/caffe-ja/observer-platform/internal/app/storage"
	"github.com/caffe-ja/observer-platform/pkg/logger"
)

// MinPasswordLength is the shortest accepted admin password.
const MinPasswordLength = 8

// Service manages admin console accounts.
type Service struct {
	store storage.AdminStore
	log   *logger.Logger
}

// New constructs an admin service.
func New(store storage.AdminStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("admin")
	}
	return &Service{store: store, log: log}
}

// CreateUser registers an admin account with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, username, password string, role admin.Role) (admin.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return admin.User{}, fmt.Errorf("username is required")
	}
	if len(password) < MinPasswordLength {
		return admin.User{}, fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if !admin.ValidRole(role) {
		return admin.User{}, fmt.Errorf("invalid role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return admin.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateAdminUser(ctx, admin.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	})
	if err != nil {
		return admin.User{}, err
	}
	s.log.WithField("username", username).
		WithField("role", string(role)).
		Info("admin user created")
	return user, nil
}

// Authenticate verifies a username/password pair.
func (s *Service) Authenticate(ctx context.Context, username, password string) (admin.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	user, err := s.store.GetAdminUserByUsername(ctx, username)
	if err != nil {
		// Same error for unknown user and wrong password.
		return admin.User{}, fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return admin.User{}, fmt.Errorf("invalid credentials")
	}
	return user, nil
}

// SetPassword replaces an account password.
func (s *Service) SetPassword(ctx context.Context, id, password string) (admin.User, error) {
	if len(password) < MinPasswordLength {
		return admin.User{}, fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	user, err := s.store.GetAdminUser(ctx, id)
	if err != nil {
		return admin.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return admin.User{}, fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	user, err = s.store.UpdateAdminUser(ctx, user)
	if err != nil {
		return admin.User{}, err
	}
	s.log.WithField("username", user.Username).Info("admin password changed")
	return user, nil
}

// SetRole changes an account role.
func (s *Service) SetRole(ctx context.Context, id string, role admin.Role) (admin.User, error) {
	if !admin.ValidRole(role) {
		return admin.User{}, fmt.Errorf("invalid role %q", role)
	}
	user, err := s.store.GetAdminUser(ctx, id)
	if err != nil {
		return admin.User{}, err
	}
	user.Role = role
	user, err = s.store.UpdateAdminUser(ctx, user)
	if err != nil {
		return admin.User{}, err
	}
	s.log.WithField("username", user.Username).
		WithField("role", string(role)).
		Info("admin role changed")
	return user, nil
}

// Get retrieves one account.
func (s *Service) Get(ctx context.Context, id string) (admin.User, error) {
	return s.store.GetAdminUser(ctx, id)
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]admin.User, error) {
	return s.store.ListAdminUsers(ctx)
}

// EnsureBootstrapUser creates the initial admin account when no users exist
// yet. Called at startup with credentials from configuration.
func (s *Service) EnsureBootstrapUser(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	users, err := s.store.ListAdminUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}
	_, err = s.CreateUser(ctx, username, password, admin.RoleAdmin)
	return err
}
