// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jolks/todolist/internal/config"
	"github.com/jolks/todolist/internal/logging"
	"github.com/jolks/todolist/internal/model"
	"github.com/jolks/todolist/internal/reminder"
	"github.com/jolks/todolist/internal/scheduler"
	"github.com/jolks/todolist/internal/server"
	"github.com/jolks/todolist/internal/storage"
	"github.com/jolks/todolist/internal/tasks"
)

var (
	// buildVersion is set at build time via -ldflags "-X main.buildVersion=<version>"
	buildVersion   = "dev"
	workDir        = flag.String("work-dir", "", "Working directory (default: ~/.todolist)")
	configPath     = flag.String("config", "", "Path to a TOML configuration file (default: <work-dir>/config.toml if present)")
	address        = flag.String("address", "", "The address to bind the server to")
	port           = flag.Int("port", 0, "The port to bind the server to")
	transport      = flag.String("transport", "", "Transport mode: sse or stdio")
	logLevel       = flag.String("log-level", "", "Logging level: debug, info, warn, error, fatal")
	showVersion    = flag.Bool("version", false, "Show version information and exit")
	storageBackend = flag.String("storage-backend", "", "Storage backend: json, bolt, sqlite or memory (default: json)")
	storageWatch   = flag.Bool("storage-watch", true, "Reload tasks when the task file changes outside the process")
	permission     = flag.String("notification-permission", "", "Initial notification permission: granted, denied or undetermined")
	projectID      = flag.String("project-id", "", "Project ID used to obtain a push token")
	webhookURL     = flag.String("webhook-url", "", "Local endpoint that receives delivered notifications")
	redisAddr      = flag.String("redis-addr", "", "Redis address to publish delivered notifications to")
	autoRefresh    = flag.Bool("auto-refresh", false, "Reschedule recurring reminders after every task change")
)

func main() {
	flag.Parse()

	cfg := loadConfig()

	// Fill in build version from ldflags if available
	if buildVersion != "" {
		cfg.Server.Version = buildVersion
	}

	if *showVersion {
		log.Printf("%s version %s", cfg.Server.Name, cfg.Server.Version)
		os.Exit(0)
	}

	// Create a context that will be cancelled on interrupt signal
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := createApp(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	waitForSignal(cancel, app)
}

// loadConfig layers defaults, the config file, environment variables and
// command line flags, in that order
func loadConfig() *config.Config {
	cfg := config.DefaultConfig()

	if path := resolveConfigPath(resolveWorkDir()); path != "" {
		if err := config.LoadFile(cfg, path); err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}

	config.FromEnv(cfg)

	applyCommandLineFlagsToConfig(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg
}

// resolveWorkDir returns the work directory, creating it if needed
func resolveWorkDir() string {
	wd := *workDir
	if wd == "" {
		home := os.Getenv("HOME")
		if home == "" {
			// Fallback to current directory if HOME is unset
			home, _ = os.Getwd()
		}
		wd = filepath.Join(home, ".todolist")
	}
	_ = os.MkdirAll(wd, 0o755)
	return wd
}

// resolveConfigPath returns the explicit config file, or the work dir one
// when it exists
func resolveConfigPath(wd string) string {
	if *configPath != "" {
		return *configPath
	}
	path := filepath.Join(wd, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// flagPassed reports whether the named flag was set on the command line
func flagPassed(name string) bool {
	passed := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			passed = true
		}
	})
	return passed
}

// applyCommandLineFlagsToConfig applies command line flags to the configuration
func applyCommandLineFlagsToConfig(cfg *config.Config) {
	wd := resolveWorkDir()

	if *address != "" {
		cfg.Server.Address = *address
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *transport != "" {
		cfg.Server.TransportMode = *transport
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	// Logs and data default to the work dir
	if cfg.Logging.FilePath == "" {
		cfg.Logging.FilePath = filepath.Join(wd, "todolist.log")
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = wd
	}
	if *storageBackend != "" {
		cfg.Storage.Backend = *storageBackend
	}
	if flagPassed("storage-watch") {
		cfg.Storage.Watch = *storageWatch
	}
	if *permission != "" {
		cfg.Notifications.Permission = *permission
	}
	if *projectID != "" {
		cfg.Notifications.ProjectID = *projectID
	}
	if *webhookURL != "" {
		cfg.Notifications.WebhookURL = *webhookURL
	}
	if *redisAddr != "" {
		cfg.Notifications.RedisAddr = *redisAddr
	}
	if flagPassed("auto-refresh") {
		cfg.Reminders.AutoRefresh = *autoRefresh
	}
}

// lifecycle is the part of the MCP server the application drives
type lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
}

// Application represents the running application
type Application struct {
	config        *config.Config
	kv            storage.Storage
	store         *tasks.Store
	notifier      scheduler.NotificationService
	reminders     *reminder.Reminders
	server        lifecycle
	logger        *logging.Logger
	subscriptions []scheduler.Subscription
}

// createApp wires storage, the task store, the notification service, the
// reminders and the MCP server
func createApp(cfg *config.Config) (*Application, error) {
	logger, err := server.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	kv, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}

	store, err := tasks.NewStore(kv, tasks.WithLogger(logger))
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	// Load fails open: an unreadable record leaves the list empty and the
	// error visible in the store state
	if err := store.Load(context.Background()); err != nil {
		logger.Warnf("Failed to load tasks: %v", err)
	}

	sinks, err := scheduler.SinksFromConfig(cfg.Notifications, logger)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	notifier := scheduler.NewScheduler(scheduler.Options{
		Permission: model.PermissionStatus(cfg.Notifications.Permission),
		Behavior: scheduler.Behavior{
			ShowAlert: cfg.Notifications.ShowAlert,
			PlaySound: cfg.Notifications.PlaySound,
			SetBadge:  cfg.Notifications.SetBadge,
		},
		Location: cfg.Notifications.Location(),
		Sinks:    sinks,
		Logger:   logger,
	})

	times, err := cfg.Reminders.Times()
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	rem := reminder.New(notifier, kv,
		reminder.WithLogger(logger),
		reminder.WithProjectID(cfg.Notifications.ProjectID),
		reminder.WithInterval(cfg.Reminders.IntervalHours),
		reminder.WithDailyTimes(times),
	)

	if cfg.Reminders.AutoRefresh {
		store.OnChange(func(ctx context.Context, list []model.Task) {
			if err := rem.Refresh(ctx, list, 0); err != nil {
				logger.Warnf("Failed to refresh reminders: %v", err)
			}
		})
	}

	mcpServer, err := server.NewMCPServer(cfg, store, rem)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	app := &Application{
		config:    cfg,
		kv:        kv,
		store:     store,
		notifier:  notifier,
		reminders: rem,
		server:    mcpServer,
		logger:    logger,
	}

	app.subscriptions = append(app.subscriptions,
		notifier.AddReceivedListener(func(n model.Notification) {
			logger.Debugf("Notification %s received: %s", n.ID, n.Content.Title)
		}),
		notifier.AddResponseListener(func(r model.Response) {
			logger.Infof("Notification %s response: %s", r.NotificationID, r.Action)
		}),
	)

	return app, nil
}

// Start starts the application
func (a *Application) Start(ctx context.Context) error {
	a.notifier.Start(ctx)
	a.logger.Infof("Notification scheduler started")

	if a.config.Storage.Watch {
		if err := a.store.Watch(ctx); err != nil {
			a.logger.Warnf("Failed to watch tasks: %v", err)
		}
	}

	if err := a.server.Start(ctx); err != nil {
		return err
	}
	a.logger.Infof("MCP server started")

	return nil
}

// Stop stops the application. The log file is closed last, whatever the
// outcome of the other steps.
func (a *Application) Stop() error {
	defer a.logger.Close()

	for _, sub := range a.subscriptions {
		sub.Remove()
	}
	a.subscriptions = nil

	if err := a.notifier.Stop(); err != nil {
		return err
	}
	a.logger.Infof("Notification scheduler stopped")

	if err := a.server.Stop(); err != nil {
		a.logger.Errorf("Error stopping MCP server: %v", err)
		return err
	}
	a.logger.Infof("MCP server stopped")

	if err := a.kv.Close(); err != nil {
		a.logger.Errorf("Error closing storage: %v", err)
		return err
	}

	return nil
}

// waitForSignal waits for termination signals and performs cleanup
func waitForSignal(cancel context.CancelFunc, app *Application) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	<-signalCh
	app.logger.Infof("Received termination signal, shutting down...")

	// Cancel the context to initiate shutdown
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	shutdownDone := make(chan struct{})
	go func() {
		if err := app.Stop(); err != nil {
			app.logger.Errorf("Error during shutdown: %v", err)
		}
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		app.logger.Infof("Graceful shutdown completed")
	case <-shutdownCtx.Done():
		app.logger.Warnf("Shutdown timed out")
	}
}
