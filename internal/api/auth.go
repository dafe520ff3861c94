package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/tempo/internal/account"
)

const sessionCookie = "session_token"

// SessionVerifier resolves a login session token. *account.Service
// satisfies it.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (account.User, error)
}

type userKey struct{}

// userFrom returns the account behind the request, if it authenticated
// with a login session rather than the static token.
func userFrom(ctx context.Context) (account.User, bool) {
	u, ok := ctx.Value(userKey{}).(account.User)
	return u, ok
}

// requestToken reads the bearer token, falling back to the session cookie.
func requestToken(r *http.Request) string {
	if got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return got
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// AuthMiddleware accepts the static API token or a valid login session.
// When token is empty and required is false nothing is rejected, but a
// valid session still identifies its user.
func AuthMiddleware(token string, sessions SessionVerifier, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" && !required && sessions == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := requestToken(r)
			if token != "" && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			if sessions != nil && got != "" {
				u, err := sessions.Verify(r.Context(), got)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
					return
				}
				if !errors.Is(err, account.ErrUnauthenticated) {
					writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
					return
				}
			}
			if token == "" && !required {
				next.ServeHTTP(w, r)
				return
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		})
	}
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.accounts.Signup(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Account created", "user": u})
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	token, sess, u, err := s.accounts.Login(r.Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": sess.ExpiresAt,
		"user":       u,
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if _, err := s.accounts.Logout(r.Context(), requestToken(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u, ok := userFrom(r.Context())
	if !ok {
		s.writeError(w, r, account.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}
