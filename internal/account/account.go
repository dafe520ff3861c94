// Package account manages password accounts and login sessions.
package account

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
)

const (
	SessionTTL  = 24 * time.Hour
	RememberTTL = 30 * 24 * time.Hour

	minPasswordLen = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLen = 72
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("authentication required")
)

type User struct {
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login"`
}

// Session is stored under the SHA-256 of its bearer token; the token itself
// is only ever returned to the client.
type Session struct {
	TokenHash  string
	Email      string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RememberMe bool
}

// Store persists users and sessions.
type Store interface {
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, email string) (User, error)
	TouchLogin(ctx context.Context, email string, at time.Time) error
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, tokenHash string) (Session, error)
	DeleteSession(ctx context.Context, tokenHash string) (bool, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

type Service struct {
	store  Store
	cost   int
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost, logger: logger, now: time.Now}
}

// SetClock replaces the time source used for session expiry.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) SetCost(cost int) {
	s.cost = cost
}

// Signup creates a password account. The name defaults to the local part of
// the email address.
func (s *Service) Signup(ctx context.Context, email, password, name string) (User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return User{}, fmt.Errorf("%w: password must be %d to %d characters", calendar.ErrValidation, minPasswordLen, maxPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	u := User{Email: email, Name: name, PasswordHash: string(hash), CreatedAt: s.now().UTC()}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	s.logger.Info("account created", "email", email)
	return u, nil
}

// Login checks the password and opens a session. It returns the bearer
// token alongside the session.
func (s *Service) Login(ctx context.Context, email, password string, rememberMe bool) (string, Session, User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", Session{}, User{}, ErrInvalidCredentials
	}
	u, err := s.store.GetUser(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return "", Session{}, User{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", Session{}, User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", Session{}, User{}, ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return "", Session{}, User{}, err
	}
	now := s.now().UTC()
	ttl := SessionTTL
	if rememberMe {
		ttl = RememberTTL
	}
	sess := Session{TokenHash: hashToken(token), Email: email, CreatedAt: now, ExpiresAt: now.Add(ttl), RememberMe: rememberMe}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return "", Session{}, User{}, err
	}
	if err := s.store.TouchLogin(ctx, email, now); err != nil {
		s.logger.Warn("failed to record login", "email", email, "error", err)
	}
	u.LastLogin = &now
	return token, sess, u, nil
}

// Verify resolves a bearer token to its user. Expired sessions are removed.
func (s *Service) Verify(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrUnauthenticated
	}
	hash := hashToken(token)
	sess, err := s.store.GetSession(ctx, hash)
	if errors.Is(err, ErrSessionNotFound) {
		return User{}, ErrUnauthenticated
	}
	if err != nil {
		return User{}, err
	}
	if !s.now().Before(sess.ExpiresAt) {
		if _, err := s.store.DeleteSession(ctx, hash); err != nil {
			s.logger.Warn("failed to delete expired session", "error", err)
		}
		return User{}, ErrUnauthenticated
	}

	u, err := s.store.GetUser(ctx, sess.Email)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrUnauthenticated
	}
	return u, err
}

// Logout ends the session. It reports whether one existed.
func (s *Service) Logout(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	return s.store.DeleteSession(ctx, hashToken(token))
}

// PruneSessions removes every expired session.
func (s *Service) PruneSessions(ctx context.Context) (int, error) {
	return s.store.DeleteExpiredSessions(ctx, s.now())
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address", calendar.ErrValidation)
	}
	return email, nil
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
