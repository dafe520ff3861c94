package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/tempo/internal/backfill"
	"github.com/MikeSquared-Agency/tempo/internal/config"
	"github.com/MikeSquared-Agency/tempo/internal/store"
)

func main() {
	var (
		statePath      = flag.String("state", "~/.tempo/backfill-state.json", "state file recording imported UIDs")
		since          = flag.String("since", "", "skip events ending before this date (YYYY-MM-DD)")
		until          = flag.String("until", "", "skip events starting on or after this date (YYYY-MM-DD)")
		dryRun         = flag.Bool("dry-run", false, "parse and count without writing")
		allowConflicts = flag.Bool("allow-conflicts", false, "import events that overlap stored ones")
	)
	flag.Parse()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	if flag.NArg() == 0 {
		slog.Error("usage: tempo-backfill [flags] calendar.ics ...")
		os.Exit(2)
	}

	loc := cfg.Location()
	sinceT, err := parseDate(*since, loc)
	if err != nil {
		slog.Error("invalid -since", "error", err)
		os.Exit(2)
	}
	untilT, err := parseDate(*until, loc)
	if err != nil {
		slog.Error("invalid -until", "error", err)
		os.Exit(2)
	}

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		slog.Error("failed to load scheduling policy", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if db.Name() == "memory" && !*dryRun {
		slog.Warn("no DATABASE_URL or TEMPO_SQLITE_PATH set, imported events will be discarded on exit")
	}

	runner := backfill.NewRunner(backfill.Config{
		Files:           flag.Args(),
		StatePath:       *statePath,
		Since:           sinceT,
		Until:           untilT,
		DryRun:          *dryRun,
		AllowConflicts:  *allowConflicts,
		Location:        loc,
		DefaultDuration: policy.DefaultDuration,
	}, db, slog.Default())

	rep, err := runner.Run(ctx)
	if err != nil {
		slog.Error("backfill failed", "error", err)
		os.Exit(1)
	}
	json.NewEncoder(os.Stdout).Encode(rep)
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation("2006-01-02", s, loc)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
