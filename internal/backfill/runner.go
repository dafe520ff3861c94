// Package backfill imports existing calendars from iCalendar files.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MikeSquared-Agency/tempo/internal/calendar"
	"github.com/MikeSquared-Agency/tempo/internal/conflict"
	"github.com/MikeSquared-Agency/tempo/internal/store"
)

type Config struct {
	Files           []string
	StatePath       string
	Since           time.Time // zero means no lower bound
	Until           time.Time // zero means no upper bound
	DryRun          bool
	AllowConflicts  bool // import events even when they overlap stored ones
	Location        *time.Location
	DefaultDuration time.Duration
}

// Report counts what happened to every VEVENT seen.
type Report struct {
	Imported        int `json:"imported"`
	AlreadyImported int `json:"already_imported"`
	Duplicates      int `json:"duplicates"`
	Conflicts       int `json:"conflicts"`
	OutOfRange      int `json:"out_of_range"`
	Skipped         int `json:"skipped"`
	Failed          int `json:"failed"`
}

var errDuplicate = errors.New("identical event already stored")

type Runner struct {
	cfg    Config
	events store.Events
	logger *slog.Logger
}

func NewRunner(cfg Config, events store.Events, logger *slog.Logger) *Runner {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = time.Hour
	}
	return &Runner{cfg: cfg, events: events, logger: logger}
}

func (r *Runner) Run(ctx context.Context) (Report, error) {
	var rep Report
	state, err := LoadState(r.cfg.StatePath)
	if err != nil {
		return rep, fmt.Errorf("load state: %w", err)
	}

	for _, path := range r.cfg.Files {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := r.importFile(ctx, path, state, &rep); err != nil {
			r.logger.Warn("failed to import file", "path", path, "error", err)
			state.AddError(fmt.Sprintf("%s: %v", path, err))
		}
		if !r.cfg.DryRun {
			if err := state.Save(); err != nil {
				return rep, fmt.Errorf("save state: %w", err)
			}
		}
	}

	r.logger.Info("backfill complete",
		"imported", rep.Imported,
		"already_imported", rep.AlreadyImported,
		"duplicates", rep.Duplicates,
		"conflicts", rep.Conflicts,
		"skipped", rep.Skipped,
		"dry_run", r.cfg.DryRun,
	)
	return rep, nil
}

func (r *Runner) importFile(ctx context.Context, path string, state *State, rep *Report) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	candidates, skipped, err := ParseICS(f, r.cfg.Location, r.cfg.DefaultDuration)
	if err != nil {
		return err
	}
	rep.Skipped += len(skipped)
	for _, s := range skipped {
		r.logger.Debug("vevent skipped", "path", path, "uid", s.UID, "reason", s.Reason)
	}

	for _, c := range candidates {
		switch {
		case state.IsImported(c.UID):
			rep.AlreadyImported++
			continue
		case !r.inRange(c.Event):
			rep.OutOfRange++
			continue
		case r.cfg.DryRun:
			rep.Imported++
			continue
		}

		ev, err := r.insert(ctx, c.Event)
		var ce *calendar.ConflictError
		switch {
		case err == nil:
			state.MarkImported(c.UID, ev.ID)
			rep.Imported++
		case errors.Is(err, errDuplicate):
			rep.Duplicates++
		case errors.As(err, &ce):
			rep.Conflicts++
			r.logger.Info("vevent conflicts with stored events", "uid", c.UID, "summary", c.Event.Summary, "conflicts", len(ce.Report.Conflicts))
		default:
			rep.Failed++
			state.AddError(fmt.Sprintf("%s %s: %v", path, c.UID, err))
		}
	}
	return nil
}

// insert stores p unless an identical event exists or, when conflicts are
// not allowed, anything overlaps it.
func (r *Runner) insert(ctx context.Context, p calendar.ProposedEvent) (calendar.Event, error) {
	var created calendar.Event
	err := r.events.Atomic(ctx, func(tx store.Tx) error {
		report, err := conflict.Detect(ctx, tx, p)
		if err != nil {
			return err
		}
		for _, c := range report.Conflicts {
			ex := c.Existing
			if ex.Summary == p.Summary && ex.Start.Equal(p.Start) && ex.End.Equal(p.End) {
				return errDuplicate
			}
		}
		if report.HasConflicts() && !r.cfg.AllowConflicts {
			return &calendar.ConflictError{Report: report}
		}
		created, err = tx.Create(ctx, p)
		return err
	})
	return created, err
}

func (r *Runner) inRange(p calendar.ProposedEvent) bool {
	if !r.cfg.Since.IsZero() && !p.End.After(r.cfg.Since) {
		return false
	}
	if !r.cfg.Until.IsZero() && !p.Start.Before(r.cfg.Until) {
		return false
	}
	return true
}
