package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	httpapi "github.com/gridpulse/energy-sync/internal/api/http"
	"github.com/gridpulse/energy-sync/internal/config"
	"github.com/gridpulse/energy-sync/internal/db"
	"github.com/gridpulse/energy-sync/internal/events"
	"github.com/gridpulse/energy-sync/internal/provider"
	"github.com/gridpulse/energy-sync/internal/repository"
	"github.com/gridpulse/energy-sync/internal/scheduler"
	"github.com/gridpulse/energy-sync/internal/syncer"
)

// startEngine arms the scheduler and serves the trigger/health HTTP
// surface, both tied to the fx lifecycle. Stopping the app prevents new
// ticks but never aborts an in-flight sync.
func startEngine(
	lc fx.Lifecycle,
	cfg *config.Config,
	logger *zap.Logger,
	sched *scheduler.Scheduler,
) {
	app := fiber.New(fiber.Config{
		AppName:               cfg.ServiceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": cfg.ServiceName,
		})
	})

	httpapi.RegisterRoutes(app, sched)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sched.Start()
			go func() {
				addr := fmt.Sprintf(":%d", cfg.ServicePort)
				logger.Info("http server listening", zap.String("addr", addr))
				if err := app.Listen(addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sched.Stop()
			if err := app.ShutdownWithContext(ctx); err != nil {
				logger.Error("error during http shutdown", zap.Error(err))
				return err
			}
			logger.Info("engine stopped gracefully")
			return nil
		},
	})
}

// ProvideDBPool creates the database pool
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL)
}

// ProvideStore creates the upsert store
func ProvideStore(pool *db.Pool) *repository.Store {
	return repository.NewStore(pool)
}

// ProvideSyncLog creates the sync audit log
func ProvideSyncLog(pool *db.Pool) *repository.SyncLog {
	return repository.NewSyncLog(pool)
}

// ProvideEventPublisher creates the optional sync-event publisher
func ProvideEventPublisher(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*events.Publisher, error) {
	return events.NewPublisher(lc, cfg.RabbitMQ, logger)
}

// ProvideEnergyClient creates the consumption provider client
func ProvideEnergyClient(cfg *config.Config, logger *zap.Logger) *provider.EnergyClient {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	return provider.NewEnergyClient(cfg.Energy.ProviderBaseURL, httpClient, cfg.Energy.TokenTTL, logger)
}

// ProvideWeatherClient creates the weather provider client
func ProvideWeatherClient(cfg *config.Config, logger *zap.Logger) *provider.WeatherClient {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	return provider.NewWeatherClient(cfg.Weather.ProviderBaseURL, httpClient, logger)
}

// ProvideEnergySyncer creates the energy sync orchestrator
func ProvideEnergySyncer(
	store *repository.Store,
	audit *repository.SyncLog,
	client *provider.EnergyClient,
	publisher *events.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *syncer.EnergySyncer {
	return syncer.NewEnergySyncer(store, audit, client, publisher, syncer.EnergyConfig{
		AvailabilityLagDays: cfg.Energy.AvailabilityLagDays,
		DefaultLookbackDays: cfg.Energy.DefaultLookbackDays,
	}, logger)
}

// ProvideWeatherSyncer creates the weather sync orchestrator
func ProvideWeatherSyncer(
	store *repository.Store,
	audit *repository.SyncLog,
	client *provider.WeatherClient,
	publisher *events.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *syncer.WeatherSyncer {
	return syncer.NewWeatherSyncer(store, audit, client, publisher, syncer.WeatherConfig{
		AvailabilityLagDays: cfg.Weather.AvailabilityLagDays,
		DefaultLookbackDays: cfg.Weather.DefaultLookbackDays,
		OverlapGuardWindow:  cfg.Weather.OverlapGuardWindow,
		BackfillBatchDays:   cfg.Weather.BackfillBatchDays,
		BackfillBatchDelay:  cfg.Weather.BackfillBatchDelay,
		DefaultLatitude:     cfg.Weather.DefaultLatitude,
		DefaultLongitude:    cfg.Weather.DefaultLongitude,
	}, logger)
}

// ProvideScheduler creates the two-domain sync scheduler
func ProvideScheduler(
	store *repository.Store,
	audit *repository.SyncLog,
	energy *syncer.EnergySyncer,
	weather *syncer.WeatherSyncer,
	cfg *config.Config,
	logger *zap.Logger,
) *scheduler.Scheduler {
	return scheduler.New(cfg.Energy, cfg.Weather, store, audit, energy, weather, logger)
}
