package auth

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	user, err := svc.Register(ctx, "Maker@Example.com", "s3cret-pass", "Maya Maker", "maker")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "maker@example.com" {
		t.Fatalf("email not normalized: %s", user.Email)
	}
	if user.Role != RoleMaker {
		t.Fatalf("unexpected role: %s", user.Role)
	}
	if user.PasswordHash == "s3cret-pass" {
		t.Fatal("password stored in plaintext")
	}

	if _, err := svc.Register(ctx, "maker@example.com", "another-pass", "Other", "checker"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := svc.Authenticate(ctx, "maker@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("unexpected user: %s", got.ID)
	}

	if _, err := svc.Authenticate(ctx, "maker@example.com", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "ghost@example.com", "whatever"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	cases := []struct {
		email, password, name, role string
	}{
		{"", "longenough", "A", "maker"},
		{"not-an-email", "longenough", "A", "maker"},
		{"a@b.co", "short", "A", "maker"},
		{"a@b.co", "longenough", "", "maker"},
		{"a@b.co", "longenough", "A", "admin"},
	}
	for _, tc := range cases {
		if _, err := svc.Register(ctx, tc.email, tc.password, tc.name, tc.role); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", tc, err)
		}
	}
}
