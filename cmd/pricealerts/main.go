// Package main provides the price alert job entry point.
// Each run sweeps expired alerts, matches the rest against current prices and
// emails the owners of matched alerts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/price-alerts/internal/circuitbreaker"
	"github.com/price-alerts/internal/config"
	"github.com/price-alerts/internal/logging"
	"github.com/price-alerts/internal/notify"
	"github.com/price-alerts/internal/report"
	"github.com/price-alerts/internal/service"
	"github.com/price-alerts/internal/storage"
)

func main() {
	var (
		dryRun = flag.Bool("dry-run", false, "Log matches without sweeping, sending or retiring alerts")
		every  = flag.Duration("every", 0, "Repeat the run at this interval until interrupted (0 runs once)")
	)
	flag.Parse()

	os.Exit(run(*dryRun, *every))
}

func run(dryRun bool, every time.Duration) int {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		return 1
	}

	// Initialize logging
	logger := logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	if cfg.Logging.File != "" {
		closer, err := logger.AppendToFile(cfg.Logging.File)
		if err != nil {
			logger.WithError(err).Error("Failed to open log file")
			return 1
		}
		defer closer.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Connecting to database...")
	postgres, err := storage.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Postgres")
		return 1
	}
	defer postgres.Close()

	var locker service.Locker
	if cfg.Lock.RedisURL != "" {
		redisClient, err := storage.NewRedisClient(ctx, &cfg.Lock)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to Redis")
			return 1
		}
		defer redisClient.Close()
		locker = storage.NewRunLock(redisClient, cfg.Lock.Key, cfg.Lock.TTL)
	}

	var reporter service.Reporter
	if cfg.Webhook.URL != "" {
		reporter = report.NewWebhookReporter(&cfg.Webhook, nil)
	}

	deps := &jobDeps{
		cfg:      cfg,
		alerts:   storage.NewAlertRepository(postgres),
		products: storage.NewProductRepository(postgres),
		users:    storage.NewUserRepository(postgres),
		renderer: notify.NewRenderer(&cfg.Alerts),
		mailer:   notify.NewSMTPMailer(&cfg.Mail),
		locker:   locker,
		reporter: reporter,
		dryRun:   dryRun,

		lockRefresh: cfg.Lock.TTL / 3,
	}
	if cfg.Probe.Enabled {
		deps.prober = notify.NewImageProber(&cfg.Probe, &http.Client{Timeout: cfg.Probe.Timeout})
	}

	if every <= 0 {
		if err := runOnce(ctx, deps, logger); err != nil {
			return 1
		}
		return 0
	}

	logger.WithField("every", every.String()).Info("Starting price alert scheduler")
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		// a failed run is retried on the next tick
		_ = runOnce(ctx, deps, logger)

		select {
		case <-ctx.Done():
			logger.Info("Price alert scheduler stopped")
			return 0
		case <-ticker.C:
		}
	}
}

type jobDeps struct {
	cfg      *config.Config
	alerts   *storage.AlertRepository
	products *storage.ProductRepository
	users    *storage.UserRepository
	renderer *notify.Renderer
	mailer   notify.Mailer
	prober   service.ImageProber
	locker   service.Locker
	reporter service.Reporter
	dryRun   bool

	lockRefresh time.Duration
}

// newJob builds a job with a fresh send limiter and breaker, so one run's
// failures do not carry over to the next.
func newJob(d *jobDeps) (*service.AlertJob, error) {
	markMode := d.cfg.Alerts.RetireMode == config.RetireMark

	limit := rate.Inf
	if d.cfg.Mail.SendRate > 0 {
		limit = rate.Limit(d.cfg.Mail.SendRate)
	}

	breaker := circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
		Name:        "smtp",
		MaxFailures: d.cfg.Mail.MaxFailures,
	})

	notifier, err := service.NewNotifyService(service.NotifyServiceConfig{
		Users:    d.users,
		Products: d.products,
		Alerts:   d.alerts,
		Renderer: d.renderer,
		Mailer:   d.mailer,
		Prober:   d.prober,
		Limiter:  rate.NewLimiter(limit, max(d.cfg.Mail.SendBurst, 1)),
		Breaker:  breaker,

		DeleteAfterSend: !markMode,
		DryRun:          d.dryRun,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create notify service: %w", err)
	}

	return service.NewAlertJob(
		service.NewExpiryService(d.alerts, markMode),
		service.NewMatchService(d.alerts, d.products),
		notifier,
		d.locker,
		d.reporter,
		d.dryRun,
	).WithLockRefresh(d.lockRefresh), nil
}

func runOnce(ctx context.Context, deps *jobDeps, logger *logging.Logger) error {
	runID := uuid.NewString()
	runLogger := logger.WithField("run_id", runID)
	ctx = logging.WithLogger(ctx, runLogger)

	job, err := newJob(deps)
	if err != nil {
		runLogger.WithError(err).Error("Failed to build price alert job")
		return err
	}

	if deps.dryRun {
		runLogger.Info("Dry run: no alerts will be swept, emailed or retired")
	}

	if _, err := job.Run(ctx, runID, time.Now().UTC()); err != nil {
		runLogger.WithError(err).Error("Price alert run failed")
		return err
	}
	return nil
}
