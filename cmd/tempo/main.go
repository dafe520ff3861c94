package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/tempo/internal/account"
	"github.com/MikeSquared-Agency/tempo/internal/anthropic"
	"github.com/MikeSquared-Agency/tempo/internal/api"
	"github.com/MikeSquared-Agency/tempo/internal/config"
	"github.com/MikeSquared-Agency/tempo/internal/hermes"
	"github.com/MikeSquared-Agency/tempo/internal/jobs"
	"github.com/MikeSquared-Agency/tempo/internal/learning"
	"github.com/MikeSquared-Agency/tempo/internal/parser"
	"github.com/MikeSquared-Agency/tempo/internal/scheduler"
	"github.com/MikeSquared-Agency/tempo/internal/slack"
	"github.com/MikeSquared-Agency/tempo/internal/slots"
	"github.com/MikeSquared-Agency/tempo/internal/split"
	"github.com/MikeSquared-Agency/tempo/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	loc := cfg.Location()
	slog.Info("tempo starting", "port", cfg.Port, "timezone", loc.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		slog.Error("failed to load scheduling policy", "path", cfg.PolicyFile, "error", err)
		os.Exit(1)
	}
	dayStart, dayEnd, err := policy.Window()
	if err != nil {
		slog.Error("invalid working window", "error", err)
		os.Exit(1)
	}

	// Store
	db, err := store.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("store ready", "backend", db.Name())
	if db.Name() == "memory" {
		slog.Warn("no DATABASE_URL or TEMPO_SQLITE_PATH set, events will not survive a restart")
	}

	// NATS/Hermes (optional, tempo serves HTTP without a bus)
	var (
		hermesClient *hermes.Client
		notifier     scheduler.Notifier
	)
	if cfg.NatsURL != "" {
		hermesClient, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		notifier = hermesClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS_URL not set, running without event bus")
	}

	learner := learning.NewLearner(db, slog.Default())
	if hermesClient != nil {
		learner.SetPublisher(hermesClient)
	}

	// Parser: rules always, the model in front of them when a key is set.
	var p parser.Parser = parser.NewRules(loc, learner, policy.DefaultDuration)
	if cfg.AnthropicAPIKey != "" {
		llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		p = parser.NewLLM(llm, p, loc, slog.Default(), parser.WithPatterns(learner))
		slog.Info("anthropic parser ready", "model", llm.Model())
	} else {
		slog.Info("ANTHROPIC_API_KEY not set, using rule-based parser")
	}

	finder := slots.NewFinder(slots.Policy{
		DayStart:        dayStart,
		DayEnd:          dayEnd,
		Step:            policy.Step,
		Horizon:         policy.Horizon,
		MaxAlternatives: policy.MaxAlternatives,
		MaxPerExisting:  policy.MaxPerExisting,
	}, loc)
	splitter := split.NewSplitter(split.Policy{
		MaxBlock:  policy.Split.MaxBlock,
		MinBlock:  policy.Split.MinBlock,
		Break:     policy.Split.Break,
		MaxBlocks: policy.Split.MaxBlocks,
	}, finder)

	svc := scheduler.New(db, p, finder, splitter, notifier, cfg.SuggestTimeout, slog.Default())

	if hermesClient != nil {
		if err := hermesClient.QueueSubscribe(scheduler.SubjectScheduleRequested, svc.HandleScheduleRequest); err != nil {
			slog.Error("failed to subscribe to schedule requests", "error", err)
			os.Exit(1)
		}
	}

	accounts := account.New(db, slog.Default())

	// Background jobs
	runner := jobs.New(jobs.Config{
		RetentionDays: cfg.RetentionDays,
		RetentionCron: cfg.RetentionCron,
		AgendaCron:    cfg.AgendaCron,
		Location:      loc,
	}, db, svc, slog.Default())
	if notifier != nil {
		runner.SetNotifier(notifier)
	}
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		runner.SetPoster(slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default()))
		slog.Info("slack agenda ready", "channel", cfg.SlackChannel)
	}
	runner.SetSessions(accounts)
	if err := runner.Start(); err != nil {
		slog.Error("failed to start jobs", "error", err)
		os.Exit(1)
	}

	// HTTP API
	srv := api.NewServer(api.Config{
		Port:           cfg.Port,
		APIToken:       cfg.APIToken,
		RequestTimeout: cfg.RequestTimeout,
		StoreName:      db.Name(),
		RequireLogin:   cfg.RequireLogin,
	}, svc, learner, accounts, slog.Default())
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	if hermesClient != nil {
		if err := hermesClient.Publish("swarm.agent.tempo.registered", map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
			"store":     db.Name(),
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	slog.Info("tempo ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	runner.Stop(shutdownCtx)
	cancel()
	slog.Info("tempo stopped")
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
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
