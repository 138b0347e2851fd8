// Package auth implements email/password accounts and bearer-token
// sessions on top of the key-value store.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/centsify/centsify/internal/storage"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired session token")
	ErrInvalidInput       = errors.New("invalid input")
)

const minPasswordLen = 8

// User is a registered learner.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is an issued bearer token.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Config controls session lifetime and hashing cost.
type Config struct {
	SessionTTL time.Duration
	BcryptCost int
	Now        func() time.Time
}

// Service manages accounts and sessions.
type Service struct {
	kv   storage.KV
	ttl  time.Duration
	cost int
	now  func() time.Time

	// Serialises signups so two requests cannot claim the same email.
	signupMu sync.Mutex

	// dummyHash is compared against when the email is unknown, so a miss
	// costs the same bcrypt work as a wrong password.
	dummyHash func() []byte
	compare   func(hash, password []byte) error
}

func NewService(kv storage.KV, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Service{
		kv:      kv,
		ttl:     cfg.SessionTTL,
		cost:    cfg.BcryptCost,
		now:     cfg.Now,
		compare: bcrypt.CompareHashAndPassword,
	}
	s.dummyHash = sync.OnceValue(func() []byte {
		hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.cost)
		if err != nil {
			slog.Error("generating dummy password hash", "error", err)
		}
		return hash
	})
	return s
}

// Signup registers a new user and opens a session for them.
func (s *Service) Signup(ctx context.Context, email, name, password string) (*User, *Session, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, nil, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if name == "" {
		return nil, nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return nil, nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, nil, fmt.Errorf("hashing password: %w", err)
	}

	s.signupMu.Lock()
	defer s.signupMu.Unlock()

	if _, found, err := s.kv.Get(ctx, userKey(email)); err != nil {
		return nil, nil, fmt.Errorf("looking up user: %w", err)
	} else if found {
		return nil, nil, ErrEmailTaken
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.putJSON(ctx, userKey(email), user); err != nil {
		return nil, nil, fmt.Errorf("saving user: %w", err)
	}

	sess, err := s.openSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, sess, nil
}

// Login checks credentials and opens a new session.
func (s *Service) Login(ctx context.Context, email, password string) (*User, *Session, error) {
	user, err := s.lookup(ctx, normalizeEmail(email))
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		_ = s.compare(s.dummyHash(), []byte(password))
		return nil, nil, ErrInvalidCredentials
	}
	if err := s.compare([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	sess, err := s.openSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, sess, nil
}

// Authenticate resolves a bearer token to its user. Expired sessions are
// removed.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	var sess Session
	found, err := s.getJSON(ctx, sessionKey(token), &sess)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrInvalidToken
	}
	if !s.now().Before(sess.ExpiresAt) {
		_ = s.kv.Delete(ctx, sessionKey(token))
		return nil, ErrInvalidToken
	}

	user, err := s.lookup(ctx, sess.Email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.ID != sess.UserID {
		return nil, ErrInvalidToken
	}
	return user, nil
}

// Logout revokes a session token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if err := s.kv.Delete(ctx, sessionKey(token)); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (s *Service) openSession(ctx context.Context, user *User) (*Session, error) {
	sess := &Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		ExpiresAt: s.now().Add(s.ttl).UTC(),
	}
	if err := s.putJSON(ctx, sessionKey(sess.Token), sess); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	return sess, nil
}

func (s *Service) lookup(ctx context.Context, email string) (*User, error) {
	var user User
	found, err := s.getJSON(ctx, userKey(email), &user)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &user, nil
}

func (s *Service) getJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

func (s *Service) putJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, key, string(raw))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func userKey(email string) string    { return "user:" + email }
func sessionKey(token string) string { return "session:" + token }
