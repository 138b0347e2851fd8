package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/centsify/centsify/internal/auth"
	"github.com/centsify/centsify/internal/storage"
)

func newTestService(now *time.Time) *auth.Service {
	cfg := auth.Config{SessionTTL: time.Hour, BcryptCost: bcrypt.MinCost}
	if now != nil {
		cfg.Now = func() time.Time { return *now }
	}
	return auth.NewService(storage.NewMemoryStore(), cfg)
}

func TestSignupAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)

	user, sess, err := svc.Signup(ctx, " Ana@Example.com ", "Ana", "correct-horse")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if user.Email != "ana@example.com" {
		t.Errorf("Email = %q, want normalized", user.Email)
	}
	if user.PasswordHash == "correct-horse" {
		t.Error("password must be hashed")
	}

	got, err := svc.Authenticate(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("Authenticate() user = %s, want %s", got.ID, user.ID)
	}
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		userName string
		password string
	}{
		{"bad email", "not-an-email", "Ana", "correct-horse"},
		{"empty name", "ana@example.com", " ", "correct-horse"},
		{"short password", "ana@example.com", "Ana", "short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := newTestService(nil).Signup(context.Background(), tt.email, tt.userName, tt.password)
			if !errors.Is(err, auth.ErrInvalidInput) {
				t.Errorf("Signup() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)

	if _, _, err := svc.Signup(ctx, "ana@example.com", "Ana", "correct-horse"); err != nil {
		t.Fatal(err)
	}
	_, _, err := svc.Signup(ctx, "ANA@example.com", "Other", "another-pass")
	if !errors.Is(err, auth.ErrEmailTaken) {
		t.Errorf("Signup() error = %v, want ErrEmailTaken", err)
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	if _, _, err := svc.Signup(ctx, "ana@example.com", "Ana", "correct-horse"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"ok", "ana@example.com", "correct-horse", nil},
		{"case insensitive email", "Ana@Example.com", "correct-horse", nil},
		{"wrong password", "ana@example.com", "wrong-horse", auth.ErrInvalidCredentials},
		{"unknown email", "bob@example.com", "correct-horse", auth.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, sess, err := svc.Login(ctx, tt.email, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Login() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && sess.Token == "" {
				t.Error("Login() should return a token")
			}
		})
	}
}

func TestAuthenticate_Expired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(&now)

	_, sess, err := svc.Signup(ctx, "ana@example.com", "Ana", "correct-horse")
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(59 * time.Minute)
	if _, err := svc.Authenticate(ctx, sess.Token); err != nil {
		t.Fatalf("Authenticate() before expiry error = %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := svc.Authenticate(ctx, sess.Token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("Authenticate() after expiry error = %v, want ErrInvalidToken", err)
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	_, sess, _ := svc.Signup(ctx, "ana@example.com", "Ana", "correct-horse")

	if err := svc.Logout(ctx, sess.Token); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := svc.Authenticate(ctx, sess.Token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("Authenticate() after logout error = %v, want ErrInvalidToken", err)
	}
	if err := svc.Logout(ctx, "unknown"); err != nil {
		t.Errorf("Logout() of unknown token error = %v", err)
	}
}

func TestAuthenticate_EmptyToken(t *testing.T) {
	if _, err := newTestService(nil).Authenticate(context.Background(), ""); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("Authenticate(\"\") error = %v, want ErrInvalidToken", err)
	}
}
