package admin

import (
	"context"
	"strings"
	"testing"

	domain "github.com/caffe-ja/observer-platform/internal/app/domain/admin"
	"github.com/caffe-ja/observer-platform/internal/app/storage/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(memory.New(), nil)
}

func TestCreateUserValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, "", "longenough", domain.RoleAdmin); err == nil {
		t.Fatalf("expected error for empty username")
	}
	if _, err := svc.CreateUser(ctx, "ops", "short", domain.RoleAdmin); err == nil {
		t.Fatalf("expected error for short password")
	}
	if _, err := svc.CreateUser(ctx, "ops", "longenough", "superuser"); err == nil {
		t.Fatalf("expected error for unknown role")
	}

	user, err := svc.CreateUser(ctx, "  Ops  ", "longenough", domain.RoleOperator)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.Username != "ops" {
		t.Fatalf("expected normalized username, got %q", user.Username)
	}
	if user.PasswordHash == "" || strings.Contains(user.PasswordHash, "longenough") {
		t.Fatalf("password not hashed: %q", user.PasswordHash)
	}

	if _, err := svc.CreateUser(ctx, "OPS", "otherpassword", domain.RoleViewer); err == nil {
		t.Fatalf("expected duplicate username error")
	}
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, "admin", "correct-horse", domain.RoleAdmin); err != nil {
		t.Fatalf("create: %v", err)
	}

	user, err := svc.Authenticate(ctx, "Admin", "correct-horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.Role != domain.RoleAdmin {
		t.Fatalf("unexpected role %q", user.Role)
	}

	if _, err := svc.Authenticate(ctx, "admin", "wrong-password"); err == nil {
		t.Fatalf("expected error for wrong password")
	}
	if _, err := svc.Authenticate(ctx, "ghost", "correct-horse"); err == nil {
		t.Fatalf("expected error for unknown user")
	}
}

func TestSetPasswordAndRole(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "viewer", "first-password", domain.RoleViewer)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.SetPassword(ctx, user.ID, "short"); err == nil {
		t.Fatalf("expected error for short replacement password")
	}
	if _, err := svc.SetPassword(ctx, user.ID, "second-password"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "viewer", "first-password"); err == nil {
		t.Fatalf("old password still accepted")
	}
	if _, err := svc.Authenticate(ctx, "viewer", "second-password"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}

	updated, err := svc.SetRole(ctx, user.ID, domain.RoleOperator)
	if err != nil {
		t.Fatalf("set role: %v", err)
	}
	if updated.Role != domain.RoleOperator {
		t.Fatalf("role not updated: %q", updated.Role)
	}
	if _, err := svc.SetRole(ctx, user.ID, "root"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestEnsureBootstrapUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.EnsureBootstrapUser(ctx, "admin", "bootstrap-pass"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	users, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 1 || users[0].Role != domain.RoleAdmin {
		t.Fatalf("unexpected users: %+v", users)
	}

	// Second call is a no-op once any user exists.
	if err := svc.EnsureBootstrapUser(ctx, "other", "other-password"); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	users, _ = svc.List(ctx)
	if len(users) != 1 {
		t.Fatalf("bootstrap created duplicate user")
	}
}
