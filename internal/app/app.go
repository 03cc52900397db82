// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shyamb/lesson-notifier/internal/config"
	"github.com/shyamb/lesson-notifier/internal/notify"
	"github.com/shyamb/lesson-notifier/internal/notify/email"
	notifypostgres "github.com/shyamb/lesson-notifier/internal/notify/postgres"
	"github.com/shyamb/lesson-notifier/internal/pkg/ctxlog"
	"github.com/shyamb/lesson-notifier/internal/pkg/httputil"
	"github.com/shyamb/lesson-notifier/internal/pkg/metrics"
	"github.com/shyamb/lesson-notifier/internal/pkg/postgres"
	"github.com/shyamb/lesson-notifier/internal/version"
	"github.com/shyamb/lesson-notifier/migrations"
)

// App represents the application instance.
type App struct {
	config           *config.Config
	logger           *slog.Logger
	db               *pgxpool.Pool
	opsServer        *http.Server
	collectorsCancel context.CancelFunc
	worker           *notify.Worker
}

// New creates a new application instance: it connects to the database,
// applies migrations and wires the repository, sender, renderer, reminder
// scheduler and worker together. Configuration problems surface here,
// before the dispatch loop ever starts.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := postgres.Migrate(cfg.Database.URL, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	repo := notifypostgres.NewRepository(db)

	sender, err := email.NewSender(email.Config{
		SMTPHost:     cfg.SMTP.Host,
		SMTPPort:     cfg.SMTP.Port,
		SMTPUser:     cfg.SMTP.User,
		SMTPPassword: cfg.SMTP.Password,
		FromAddress:  cfg.SMTP.FromAddress,
		RateLimit:    cfg.SMTP.RateLimit,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create email sender: %w", err)
	}

	renderer, err := notify.NewRenderer()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	reminders := notify.NewReminderScheduler(notify.ReminderConfig{
		WindowStart: cfg.Reminders.WindowStart,
		WindowEnd:   cfg.Reminders.WindowEnd,
		DedupKey:    notify.DedupKey(cfg.Reminders.DedupKey),
	}, repo, renderer)

	worker := notify.NewWorker(notify.WorkerConfig{
		BatchSize:      cfg.Worker.BatchSize,
		PollInterval:   cfg.Worker.PollInterval,
		ScanInterval:   cfg.Worker.ScanInterval,
		DefaultSubject: cfg.Worker.DefaultSubject,
	}, repo, sender, renderer, reminders)

	collectorsCtx, collectorsCancel := context.WithCancel(context.Background())

	app := &App{
		config:           cfg,
		logger:           logger,
		db:               db,
		worker:           worker,
		collectorsCancel: collectorsCancel,
	}

	go app.collectDBMetrics(collectorsCtx)
	go app.collectQueueMetrics(collectorsCtx, repo)

	app.opsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           app.opsRouter(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the worker and the ops HTTP server. It blocks until the server
// stops.
func (a *App) Run(ctx context.Context) error {
	a.worker.Start(ctx)

	a.logger.Info("starting ops server",
		"host", a.config.Server.Host,
		"port", a.config.Server.MetricsPort,
	)

	if err := a.opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ops server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application: worker first, so an
// in-flight cycle completes its status writes before the pool closes.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	a.collectorsCancel()
	a.worker.Stop()

	var errs []error
	if err := a.opsServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown ops server: %w", err))
	}

	a.db.Close()

	return errors.Join(errs...)
}

// Worker returns the notification worker instance.
func (a *App) Worker() *notify.Worker {
	return a.worker
}

func (a *App) opsRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func (a *App) collectDBMetrics(ctx context.Context) {
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) collectQueueMetrics(ctx context.Context, repo notify.Repository) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := repo.QueueStats(ctx)
			if err != nil {
				slog.Error("failed to get queue stats", "error", err)
				continue
			}
			notify.RecordQueueStats(stats)
		case <-ctx.Done():
			return
		}
	}
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
