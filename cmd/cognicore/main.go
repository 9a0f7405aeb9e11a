package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/antigravity-dev/cognicore/internal/config"
	"github.com/antigravity-dev/cognicore/internal/dependency"
	"github.com/antigravity-dev/cognicore/internal/goals"
	"github.com/antigravity-dev/cognicore/internal/planning"
	"github.com/antigravity-dev/cognicore/internal/provider"
	"github.com/antigravity-dev/cognicore/internal/provider/deepseek"
	"github.com/antigravity-dev/cognicore/internal/repo"
	"github.com/antigravity-dev/cognicore/internal/settings"
	"github.com/antigravity-dev/cognicore/internal/store"
	"github.com/antigravity-dev/cognicore/internal/tools"
	"github.com/antigravity-dev/cognicore/internal/vault"
)

func parseLogLevel(logLevel string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// configureLogger builds a logger whose level is backed by a slog.LevelVar,
// so a later SIGHUP-triggered config reload can raise or lower verbosity on
// the already-running process instead of only taking effect on the next
// restart.
func configureLogger(level *slog.LevelVar, useJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if useJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func main() {
	configPath := flag.String("config", "cognicore.toml", "path to config file")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	flag.Parse()

	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(bootLogger)
	bootLogger.Info("cognicore starting", "config", *configPath)

	cfgManager, err := config.LoadManager(*configPath)
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	logLevel := &slog.LevelVar{}
	logLevel.Set(parseLogLevel(cfg.General.LogLevel))
	logger := configureLogger(logLevel, !*dev)
	slog.SetDefault(logger)

	cfgManager.OnChange(func(next *config.Config) {
		logLevel.Set(parseLogLevel(next.General.LogLevel))
		logger.Info("config reloaded", "log_level", next.General.LogLevel, "provider_base_url", next.Provider.BaseURL, "provider_model", next.Provider.Model)
	})

	dbPath := config.ExpandHome(cfg.General.StateDB)
	st, err := store.Open(dbPath)
	if err != nil {
		logger.Error("failed to open store", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	v, err := vault.Open(dbPath)
	if err != nil {
		logger.Error("failed to open secrets vault", "path", dbPath, "error", err)
		os.Exit(1)
	}

	taskRepo := repo.NewTaskRepository(st)
	dependencyRepo := repo.NewDependencyRepository(st)
	goalsRepo := repo.NewGoalsRepository(st)
	planningRepo := repo.NewPlanningRepository(st)
	settingsRepo := repo.NewSettingsRepository(st)
	aiSettingsRepo := repo.NewAISettingsRepository(st)

	settingsSvc := settings.NewService(settingsRepo, aiSettingsRepo, v, logger.With("component", "settings"))
	dependencySvc := dependency.NewService(dependencyRepo, taskRepo)
	goalsSvc := goals.NewService(goalsRepo, taskRepo)
	planningSvc := planning.NewService(planningRepo, taskRepo, resolveProvider(settingsSvc, cfgManager))

	reg := tools.NewWithTimeout(cfg.Tools.DefaultTimeout.Duration)
	calendarStore := tools.NewCalendarStore()
	timeBlockStore := tools.NewTimeBlockStore()

	registrars := []struct {
		name string
		fn   func() error
	}{
		{"task", func() error { return tools.RegisterTaskTools(reg, taskRepo) }},
		{"dependency", func() error { return tools.RegisterDependencyTools(reg, dependencySvc) }},
		{"goal", func() error { return tools.RegisterGoalTools(reg, goalsSvc) }},
		{"preferences", func() error { return tools.RegisterPreferencesTools(reg, planningRepo) }},
		{"calendar", func() error { return tools.RegisterCalendarTools(reg, calendarStore) }},
		{"time_management", func() error { return tools.RegisterTimeManagementTools(reg, timeBlockStore, taskRepo) }},
	}
	for _, r := range registrars {
		if err := r.fn(); err != nil {
			logger.Error("failed to register tools", "group", r.name, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("tool registry ready", "tool_count", reg.ToolCount(), "default_timeout", cfg.Tools.DefaultTimeout.Duration)

	_ = planningSvc // wired for use by a future conversation/agent-loop entry point

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	logger.Info("cognicore running", "state_db", dbPath)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			if err := cfgManager.Reload(*configPath); err != nil {
				logger.Error("config reload failed, keeping previous config", "error", err)
			}
			continue
		}
		logger.Info("received signal, shutting down", "signal", sig)
		return
	}
}

// resolveProvider builds a planning.ProviderResolver that asks the settings
// service for a stored API key on every call and, when one is configured,
// hands back a DeepSeek client built from it. It reads cfgManager.Get() fresh
// on each call rather than closing over a fixed snapshot, so a SIGHUP-driven
// config reload (see main) changes the base URL, model, and timeout the very
// next time the resolver runs. The key can be overridden at process start by
// COGNICAL_DEEPSEEK_API_KEY (see config.applyEnv); that override always wins
// over the stored value, live reload or not.
func resolveProvider(settingsSvc *settings.Service, cfgManager config.ConfigManager) planning.ProviderResolver {
	return func(ctx context.Context) (provider.Client, bool, error) {
		cfg := cfgManager.Get()

		apiKey := cfg.Provider.APIKeyOverride
		if apiKey == "" {
			stored, ok, err := settingsSvc.DecryptedAPIKey(ctx)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				return nil, false, nil
			}
			apiKey = stored
		}

		client := deepseek.New(deepseek.Config{
			APIKey:  apiKey,
			BaseURL: cfg.Provider.BaseURL,
			Model:   cfg.Provider.Model,
			Timeout: cfg.Provider.Timeout.Duration,
		})
		return client, true, nil
	}
}
