package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/tempo/internal/account"
	"github.com/MikeSquared-Agency/tempo/internal/learning"
	"github.com/MikeSquared-Agency/tempo/internal/scheduler"
)

type Config struct {
	Port           int
	APIToken       string
	RequestTimeout time.Duration
	StoreName      string
	// RequireLogin demands a token or login session even when APIToken is
	// empty.
	RequireLogin bool
}

type Server struct {
	router    *chi.Mux
	http      *http.Server
	cfg       Config
	scheduler *scheduler.Service
	learner   *learning.Learner
	accounts  *account.Service
	logger    *slog.Logger
}

// NewServer builds the router. A nil accounts disables the /auth routes and
// login sessions.
func NewServer(cfg Config, svc *scheduler.Service, learner *learning.Learner, accounts *account.Service, logger *slog.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		cfg:       cfg,
		scheduler: svc,
		learner:   learner,
		accounts:  accounts,
		logger:    logger,
	}

	router.Get("/health", s.health)

	var sessions SessionVerifier
	if accounts != nil {
		sessions = accounts
		router.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
			r.Post("/auth/signup", s.signup)
			r.Post("/auth/login", s.login)
		})
	}

	router.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.APIToken, sessions, cfg.RequireLogin))
		r.Use(middleware.Timeout(cfg.RequestTimeout))

		r.Get("/api/v1/tempo/status", s.status)

		if accounts != nil {
			r.Post("/auth/logout", s.logout)
			r.Get("/auth/me", s.me)
		}

		r.Post("/schedule", s.schedule)
		r.Get("/tasks", s.tasks)
		r.Get("/events", s.events)
		r.Get("/events.ics", s.eventsICS)
		r.Delete("/delete_event/{id}", s.deleteEvent)

		r.Post("/get_alternatives", s.getAlternatives)
		r.Post("/move_existing_event", s.moveExistingEvent)
		r.Post("/schedule_alternative", s.scheduleAlternative)
		r.Post("/force_schedule", s.forceSchedule)

		r.Post("/suggest_split", s.suggestSplit)
		r.Post("/schedule_split", s.scheduleSplit)

		r.Post("/feedback/smart", s.feedbackSmart)
		r.Get("/feedback/view", s.feedbackView)
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks until the server stops. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"agent":  "tempo",
		"status": "active",
		"store":  s.cfg.StoreName,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
