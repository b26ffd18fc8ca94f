package memory

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
)

func TestSeedWarnsOnDefaultCredentials(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "")
	t.Setenv("SEED_SELLER_PASSWORD", "")

	core, logs := observer.New(zapcore.WarnLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	defer undo()

	s := NewSeeded()

	if got := logs.FilterMessageSnippet("default dev credentials").Len(); got != 1 {
		t.Fatalf("expected one default-credentials warning, got %d", got)
	}

	users, err := s.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	for _, user := range users {
		want := map[string]string{"admin": "admin123", "seller": "seller123"}[user.Username]
		if want == "" {
			t.Fatalf("unexpected seeded user %q", user.Username)
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(want)); err != nil {
			t.Fatalf("seeded password for %s does not verify: %v", user.Username, err)
		}
	}
}

func TestSeedSilentWithExplicitCredentials(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "strong-admin-pass")
	t.Setenv("SEED_SELLER_PASSWORD", "strong-seller-pass")

	core, logs := observer.New(zapcore.WarnLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	defer undo()

	_ = NewSeeded()

	if got := logs.FilterMessageSnippet("default dev credentials").Len(); got != 0 {
		t.Fatalf("expected no warning with explicit seed credentials, got %d", got)
	}
}
