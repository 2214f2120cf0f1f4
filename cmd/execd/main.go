package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/execution-core/internal/adapters/sim"
	"github.com/Checker-Finance/execution-core/internal/api"
	"github.com/Checker-Finance/execution-core/internal/execlog"
	"github.com/Checker-Finance/execution-core/internal/notify"
	"github.com/Checker-Finance/execution-core/internal/publisher"
	"github.com/Checker-Finance/execution-core/internal/rate"
	"github.com/Checker-Finance/execution-core/internal/registry"
	"github.com/Checker-Finance/execution-core/internal/router"
	internalsecrets "github.com/Checker-Finance/execution-core/internal/secrets"
	"github.com/Checker-Finance/execution-core/internal/store"
	"github.com/Checker-Finance/execution-core/internal/tracker"
	"github.com/Checker-Finance/execution-core/pkg/config"
	"github.com/Checker-Finance/execution-core/pkg/logger"
	"github.com/Checker-Finance/execution-core/pkg/secrets"
	"github.com/Checker-Finance/execution-core/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	logg := logger.S()
	logg.Info("starting [execd]...")
	if cfg.DatabaseURL != "" {
		logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))
	}

	// --- AWS Secrets Manager provider (per-platform adapter credentials) ---
	credCache := secrets.NewCache[internalsecrets.PlatformCredentials](cfg.CacheTTL)
	stopCleaner := make(chan struct{})
	go credCache.StartCleaner(cfg.CleanupFreq, stopCleaner)

	var resolver *internalsecrets.Resolver
	if awsProvider, err := secrets.NewAWSProvider(cfg.AWSRegion); err != nil {
		logg.Warnw("failed to create AWS Secrets Manager provider; platform credentials unavailable", "error", err)
	} else {
		resolver = internalsecrets.NewResolver(logger.Named("secrets"), cfg.Env, awsProvider, credCache)
	}

	// --- Audit store (Redis + Postgres hybrid, optional) ---
	var st *store.HybridStore
	if cfg.RedisAddr != "" {
		var err error
		st, err = store.NewHybrid(cfg.RedisAddr, cfg.RedisDB, cfg.DatabaseURL, store.PGPoolConfig{
			MaxConns:          int32(cfg.PGMaxConns),
			MinConns:          int32(cfg.PGMinConns),
			MaxConnLifetime:   cfg.PGMaxConnLifetime,
			MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
			HealthCheckPeriod: cfg.PGHealthCheckPeriod,
		}, cfg.AuditTTL, logger.Named("store"))
		if err != nil {
			logg.Fatalw("failed to init audit store", "error", err)
		}
	} else {
		logg.Warn("REDIS_ADDR not configured; execution log persistence disabled")
	}

	// --- Execution logger ---
	execLogCfg := execlog.Config{
		MaxEntries:        cfg.MaxLogEntries,
		EnableConsole:     cfg.EnableConsoleLog,
		ConsoleLogLevel:   cfg.ConsoleLogLevel,
		EnablePersistence: cfg.EnablePersistence && st != nil,
	}
	if execLogCfg.EnablePersistence {
		execLogCfg.Storage = st
	}
	execLog := execlog.New(execLogCfg, logger.Named("execlog"))

	// --- Notifier (RabbitMQ webhook dispatch optional) ---
	var deliverer notify.Deliverer
	if cfg.RabbitMQURL != "" {
		amqpDeliverer, err := notify.NewAMQPDeliverer(cfg.RabbitMQURL, logger.Named("notify"))
		if err != nil {
			logg.Fatalw("failed to connect to RabbitMQ", "error", err)
		}
		defer amqpDeliverer.Close()
		deliverer = amqpDeliverer
	}
	notifier := notify.New(notify.Config{
		EnableWebhooks: cfg.EnableWebhooks,
		EnableEmail:    cfg.EnableEmail,
	}, deliverer, logger.Named("notify"))

	// --- Adapter registry ---
	reg := registry.New()
	reg.Register("sim", sim.Factory(sim.DefaultConfig()))

	// Discovered platforms get their resolved credentials installed as the
	// registry's construction config, so GetOrCreate builds credentialed
	// adapters without callers carrying secrets.
	if resolver != nil {
		if platforms, err := resolver.DiscoverPlatforms(ctx); err != nil {
			logg.Warnw("failed to discover platforms from AWS Secrets Manager", "error", err)
		} else {
			for _, platform := range platforms {
				if !reg.IsRegistered(platform) {
					logg.Warnw("credentials configured for platform without a compiled-in adapter",
						"platform", platform)
					continue
				}
				creds, err := resolver.Resolve(ctx, platform)
				if err != nil {
					logg.Warnw("failed to resolve platform credentials",
						"platform", platform, "error", err)
					continue
				}
				reg.SetDefaultConfig(platform, creds.AdapterConfig())
			}
		}
	}

	// --- Tracker ---
	trk := tracker.New(tracker.Config{
		DefaultPollingInterval: cfg.DefaultPollingInterval,
		DefaultTimeout:         cfg.DefaultTimeout,
		MaxSubscriptions:       cfg.MaxSubscriptions,
	}, reg, execLog, notifier, logger.Named("tracker"))

	// --- Rate limiter ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: 10,
		Burst:             20,
	})

	// --- Router ---
	rtr := router.New(router.Config{
		DefaultMaxRetries:   cfg.DefaultMaxRetries,
		RetryDelay:          cfg.RetryDelay,
		RequestTimeout:      cfg.RequestTimeout,
		EnableLogging:       cfg.EnableLogging,
		EnableTracking:      cfg.EnableTracking,
		EnableNotifications: cfg.EnableNotifications,
	}, reg, trk, execLog, notifier, rateMgr, logger.Named("router"))

	// --- NATS event mirror (optional) ---
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		var err error
		nc, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			logg.Fatalw("failed to connect to NATS", "error", err)
		}
		pub, err := publisher.New(nc, cfg.ServiceName, logger.Named("publisher"))
		if err != nil {
			logg.Fatalw("failed to init publisher", "error", err)
		}
		rtr.SetEvents(pub)
		trk.SetEvents(pub)
	} else {
		logg.Warn("NATS_URL not configured; event mirroring disabled")
	}

	// --- Fiber HTTP server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	handler := api.NewHandler(logger.Named("api"), rtr, trk, execLog, notifier)
	var health api.HealthChecker
	if st != nil {
		health = st
	}
	api.RegisterRoutes(app, handler, health, trk)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[execd] running",
		"env", cfg.Env,
		"polling_interval", cfg.DefaultPollingInterval,
		"max_subscriptions", cfg.MaxSubscriptions,
		"platforms", reg.AvailablePlatforms())

	<-ctx.Done()
	logg.Info("shutting down [execd]...")

	close(stopCleaner)
	trk.Shutdown()
	if err := app.Shutdown(); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if nc != nil {
		nc.Drain()
	}
	if st != nil {
		st.Close()
	}
	logg.Info("[execd] stopped")
	logger.Sync()
}
