package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nightthemeswitcher/internal/api"
	"nightthemeswitcher/internal/config"
	"nightthemeswitcher/internal/extension"
	"nightthemeswitcher/internal/ha"
	"nightthemeswitcher/internal/keybinding"
	"nightthemeswitcher/internal/location"
	"nightthemeswitcher/internal/notify"
	"nightthemeswitcher/internal/settings"
	"nightthemeswitcher/internal/switcher"
	"nightthemeswitcher/internal/timer"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// locationTimeout bounds the wait for the first GeoClue fix
const locationTimeout = 30 * time.Second

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the day/night switcher until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer logger.Sync()

			if !cfg.EnvFileLoaded {
				logger.Debug("No .env file found, using environment variables")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	path, err := settingsPath(cfg)
	if err != nil {
		return err
	}

	logger.Info("Starting Night Theme Switcher",
		zap.String("version", version),
		zap.String("settings", path),
		zap.Bool("read_only", cfg.ReadOnly))

	var extBackend settings.Backend = settings.NewFileBackend(path, logger)
	var sysBackend settings.Backend = settings.NewGSettingsBackend(logger)
	var spawner switcher.Spawner = switcher.NewShellSpawner(logger)
	if cfg.ReadOnly {
		logger.Info("Running in READ-ONLY mode - no settings will be changed and no commands will run")
		extBackend = settings.ReadOnly(extBackend, logger)
		sysBackend = settings.ReadOnly(sysBackend, logger)
		spawner = switcher.NewLogSpawner(logger)
	}

	stores, err := extension.OpenStores(extBackend, sysBackend, logger)
	if err != nil {
		return fmt.Errorf("failed to open settings: %w", err)
	}
	defer stores.Close()

	opts := extension.Options{
		Stores:  stores,
		Spawner: spawner,
		OpenPrefs: func() {
			spawnLogged(spawner, "xdg-open "+shellQuote(path), logger)
		},
		OpenLocationSettings: func() {
			spawnLogged(spawner, "gnome-control-center location", logger)
		},
		Locator:  location.Unavailable{},
		Notifier: notify.NewLogNotifier(logger),
		Logger:   logger,
	}

	session, err := dbus.ConnectSessionBus()
	if err != nil {
		logger.Warn("Session bus unavailable, the keybinding and notifications are disabled", zap.Error(err))
	} else {
		defer session.Close()

		if err := keybinding.ClaimName(session); err != nil {
			return err
		}
		opts.Keybindings = keybinding.NewDBusRegistrar(session, logger)

		notifier, err := notify.NewDBusNotifier(session, appName, logger)
		if err != nil {
			logger.Warn("Notifications unavailable", zap.Error(err))
		} else {
			defer notifier.Close()
			opts.Notifier = notifier
		}
	}

	system, err := dbus.ConnectSystemBus()
	if err != nil {
		logger.Warn("System bus unavailable, the location will not be tracked", zap.Error(err))
	} else {
		defer system.Close()
		opts.Locator = location.NewGeoClue(system, appName, locationTimeout, logger)
	}

	if cfg.HomeAssistantEnabled() {
		if client, err := connectHomeAssistant(ctx, cfg, logger); err != nil {
			logger.Warn("Home Assistant unavailable, the state will not be mirrored", zap.Error(err))
		} else {
			defer client.Disconnect()
			opts.HomeAssistant = client
			opts.HomeAssistantEntity = cfg.HAEntity
		}
	}

	ext, err := extension.New(opts)
	if err != nil {
		return err
	}
	if err := ext.Enable(ctx); err != nil {
		return err
	}
	defer ext.Disable()

	logTimer(ext.Timer(), logger)

	if cfg.APIPort != 0 {
		server := api.NewServer(ext.Timer(), logger, cfg.APIPort)
		if err := server.Start(); err != nil {
			logger.Warn("Status API unavailable", zap.Error(err))
		} else {
			defer server.Stop()
		}
	}

	logger.Info("Application running. Press Ctrl+C to exit.")
	<-ctx.Done()

	logger.Info("Shutting down gracefully...")
	return nil
}

func connectHomeAssistant(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ha.Client, error) {
	client := ha.NewClient(cfg.HAURL, cfg.HAToken, logger)

	connectCtx, cancel := context.WithTimeout(ctx, ha.DefaultTimeout)
	defer cancel()

	if err := client.Connect(connectCtx); err != nil {
		return nil, err
	}
	logger.Info("Connected to Home Assistant", zap.String("entity", cfg.HAEntity))
	return client, nil
}

func logTimer(t *timer.Timer, logger *zap.Logger) {
	snapshot := t.Snapshot()
	fields := []zap.Field{
		zap.String("state", string(snapshot.State)),
		zap.String("authority", snapshot.Authority.String()),
	}
	if snapshot.Suntimes != nil {
		fields = append(fields,
			zap.Float64("sunrise", snapshot.Suntimes.Sunrise),
			zap.Float64("sunset", snapshot.Suntimes.Sunset))
	}
	logger.Info("Current time", fields...)
}

func spawnLogged(spawner switcher.Spawner, command string, logger *zap.Logger) {
	if err := spawner.Spawn(command); err != nil {
		logger.Warn("Failed to spawn", zap.String("command", command), zap.Error(err))
	}
}
