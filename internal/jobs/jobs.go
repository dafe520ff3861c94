// Package jobs runs tempo's periodic maintenance: pruning old events and
// announcing the daily agenda.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
)

// SubjectAgenda carries the daily agenda on the bus.
const SubjectAgenda = "tempo.agenda.daily"

type Pruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SessionPruner removes expired login sessions. *account.Service satisfies it.
type SessionPruner interface {
	PruneSessions(ctx context.Context) (int, error)
}

type DayLister interface {
	Day(ctx context.Context, t time.Time) ([]calendar.Event, error)
}

type Notifier interface {
	Publish(subject string, data any) error
}

type AgendaPoster interface {
	PostAgenda(ctx context.Context, day time.Time, events []calendar.Event) (string, error)
}

type Config struct {
	RetentionDays int
	RetentionCron string
	AgendaCron    string
	Location      *time.Location
}

// Agenda is the payload published on SubjectAgenda.
type Agenda struct {
	Date   string           `json:"date"`
	Events []calendar.Event `json:"events"`
}

type Runner struct {
	cfg      Config
	cron     *cron.Cron
	pruner   Pruner
	days     DayLister
	notifier Notifier
	poster   AgendaPoster
	sessions SessionPruner
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg Config, pruner Pruner, days DayLister, logger *slog.Logger) *Runner {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cl := cronLogger{logger}
	return &Runner{
		cfg: cfg,
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		pruner: pruner,
		days:   days,
		logger: logger,
		now:    time.Now,
	}
}

func (r *Runner) SetNotifier(n Notifier) { r.notifier = n }

func (r *Runner) SetPoster(p AgendaPoster) { r.poster = p }

func (r *Runner) SetSessions(p SessionPruner) { r.sessions = p }

// Start registers the configured schedules and starts the cron loop.
// An empty schedule disables its job.
func (r *Runner) Start() error {
	if r.cfg.RetentionCron != "" && r.cfg.RetentionDays > 0 {
		if _, err := r.cron.AddFunc(r.cfg.RetentionCron, r.retentionJob); err != nil {
			return fmt.Errorf("retention schedule %q: %w", r.cfg.RetentionCron, err)
		}
	}
	if r.cfg.AgendaCron != "" && (r.notifier != nil || r.poster != nil) {
		if _, err := r.cron.AddFunc(r.cfg.AgendaCron, r.agendaJob); err != nil {
			return fmt.Errorf("agenda schedule %q: %w", r.cfg.AgendaCron, err)
		}
	}
	r.cron.Start()
	r.logger.Info("jobs started", "entries", len(r.cron.Entries()))
	return nil
}

// Stop waits for running jobs until ctx expires.
func (r *Runner) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (r *Runner) retentionJob() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := r.RunRetention(ctx); err != nil {
		r.logger.Error("retention failed", "error", err)
	}
}

func (r *Runner) agendaJob() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := r.RunAgenda(ctx); err != nil {
		r.logger.Error("agenda failed", "error", err)
	}
}

// RunRetention deletes events that ended more than RetentionDays ago and
// any expired login sessions. It returns the number of events deleted.
func (r *Runner) RunRetention(ctx context.Context) (int, error) {
	cutoff := r.now().AddDate(0, 0, -r.cfg.RetentionDays)
	n, err := r.pruner.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete events before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	r.logger.Info("old events pruned", "count", n, "cutoff", cutoff)

	if r.sessions != nil {
		expired, err := r.sessions.PruneSessions(ctx)
		if err != nil {
			return n, fmt.Errorf("prune sessions: %w", err)
		}
		r.logger.Info("expired sessions pruned", "count", expired)
	}
	return n, nil
}

// RunAgenda publishes today's events and posts them to Slack when configured.
func (r *Runner) RunAgenda(ctx context.Context) error {
	today := calendar.StartOfDay(r.now().In(r.cfg.Location))
	events, err := r.days.Day(ctx, today)
	if err != nil {
		return fmt.Errorf("load agenda: %w", err)
	}

	if r.notifier != nil {
		if err := r.notifier.Publish(SubjectAgenda, Agenda{Date: today.Format("2006-01-02"), Events: events}); err != nil {
			r.logger.Warn("failed to publish agenda", "error", err)
		}
	}
	if r.poster != nil {
		if _, err := r.poster.PostAgenda(ctx, today, events); err != nil {
			return fmt.Errorf("post agenda: %w", err)
		}
	}
	return nil
}

// cronLogger routes cron's logr-style calls to slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
