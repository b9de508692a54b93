package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gridpulse/energy-sync/internal/config"
	"github.com/gridpulse/energy-sync/internal/db"
	"github.com/gridpulse/energy-sync/internal/syncer"
)

// EntitySource lists and resolves the entities a sweep visits
type EntitySource interface {
	ListEnergyTargets(ctx context.Context) ([]db.EnergyTarget, error)
	ListWeatherSyncProperties(ctx context.Context) ([]db.Property, error)
	GetMeteringPoint(ctx context.Context, id uuid.UUID) (*db.MeteringPoint, error)
	GetProperty(ctx context.Context, id uuid.UUID) (*db.Property, error)
}

// HealthSource reads the most recent sync log entry per domain
type HealthSource interface {
	Latest(ctx context.Context, domain string) (*db.SyncLogEntry, error)
}

// EnergyRunner is the energy orchestrator as the scheduler drives it
type EnergyRunner interface {
	SyncMeteringPoint(ctx context.Context, mp db.MeteringPoint, credential string, opts syncer.RangeOptions) syncer.EntityResult
}

// WeatherRunner is the weather orchestrator as the scheduler drives it
type WeatherRunner interface {
	SyncProperty(ctx context.Context, prop db.Property, opts syncer.RangeOptions) syncer.EntityResult
	SyncDefaultLocation(ctx context.Context, opts syncer.RangeOptions) syncer.EntityResult
	Backfill(ctx context.Context, lat, lon float64, startDate, endDate time.Time) syncer.BackfillResult
	BackfillDefaultLocation(ctx context.Context, startDate, endDate time.Time) syncer.BackfillResult
}

// Scheduler owns two independent cron timers, one per sync domain, each
// with its own expression, enable flag and timezone. An invalid expression
// or timezone disables only its domain, never the whole scheduler.
type Scheduler struct {
	entities EntitySource
	health   HealthSource
	energy   EnergyRunner
	weather  WeatherRunner
	logger   *zap.Logger

	energyCron  *cron.Cron
	weatherCron *cron.Cron
	tickTimeout time.Duration

	mu      sync.Mutex
	started bool
}

// New builds a scheduler, validating each domain's cron expression and
// timezone at construction. Validation failures are logged and disable the
// affected domain only.
func New(
	energyCfg config.EnergySyncConfig,
	weatherCfg config.WeatherSyncConfig,
	entities EntitySource,
	health HealthSource,
	energy EnergyRunner,
	weather WeatherRunner,
	logger *zap.Logger,
) *Scheduler {
	s := &Scheduler{
		entities:    entities,
		health:      health,
		energy:      energy,
		weather:     weather,
		logger:      logger,
		tickTimeout: 30 * time.Minute,
	}

	s.energyCron = s.buildTimer("energy", energyCfg.Enabled, energyCfg.Cron, energyCfg.Timezone, s.runEnergySweep)
	s.weatherCron = s.buildTimer("weather", weatherCfg.Enabled, weatherCfg.Cron, weatherCfg.Timezone, s.runWeatherSweep)

	return s
}

// buildTimer validates one domain's schedule and returns its armed (but
// not started) cron instance, or nil when the domain is disabled.
func (s *Scheduler) buildTimer(domain string, enabled bool, expr, timezone string, tick func()) *cron.Cron {
	if !enabled {
		s.logger.Info("sync domain disabled by configuration", zap.String("domain", domain))
		return nil
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		s.logger.Error("invalid timezone, disabling sync domain",
			zap.String("domain", domain),
			zap.String("timezone", timezone),
			zap.Error(err))
		return nil
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(expr, tick); err != nil {
		s.logger.Error("invalid cron expression, disabling sync domain",
			zap.String("domain", domain),
			zap.String("cron", expr),
			zap.Error(err))
		return nil
	}

	s.logger.Info("sync domain scheduled",
		zap.String("domain", domain),
		zap.String("cron", expr),
		zap.String("timezone", timezone))
	return c
}

// Start arms both enabled timers. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	if s.energyCron != nil {
		s.energyCron.Start()
	}
	if s.weatherCron != nil {
		s.weatherCron.Start()
	}
	s.logger.Info("scheduler started")
}

// Stop cancels future ticks without aborting an in-flight sweep.
// Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false

	if s.energyCron != nil {
		s.energyCron.Stop()
	}
	if s.weatherCron != nil {
		s.weatherCron.Stop()
	}
	s.logger.Info("scheduler stopped")
}

// runEnergySweep is one energy tick: every metering point, sequentially.
// The catch-all recover keeps a defect in the orchestrator from killing
// the timer.
func (s *Scheduler) runEnergySweep() {
	defer s.recoverTick("energy")

	ctx, cancel := context.WithTimeout(context.Background(), s.tickTimeout)
	defer cancel()

	targets, err := s.entities.ListEnergyTargets(ctx)
	if err != nil {
		s.logger.Error("energy sweep failed to list metering points", zap.Error(err))
		return
	}

	var synced, failed, upToDate int
	for _, target := range targets {
		result := s.runEnergyEntity(ctx, target)
		switch {
		case result.UpToDate:
			upToDate++
		case result.Success:
			synced += result.RecordsSynced
		default:
			failed++
		}
	}

	s.logger.Info("energy sweep completed",
		zap.Int("metering_points", len(targets)),
		zap.Int("records_synced", synced),
		zap.Int("up_to_date", upToDate),
		zap.Int("failed", failed))
}

// runEnergyEntity shields the sweep from one entity's panic
func (s *Scheduler) runEnergyEntity(ctx context.Context, target db.EnergyTarget) (result syncer.EntityResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("energy sync panicked for entity",
				zap.String("metering_point_id", target.MeteringPoint.ID.String()),
				zap.Any("panic", r))
			result = syncer.EntityResult{
				EntityKey:   target.MeteringPoint.ID.String(),
				FailureKind: syncer.FailureCritical,
				Error:       "sync panicked",
			}
		}
	}()

	return s.energy.SyncMeteringPoint(ctx, target.MeteringPoint, target.Credential, syncer.RangeOptions{})
}

// runWeatherSweep is one weather tick: every weather-enabled property, or
// the shared default location when none are configured.
func (s *Scheduler) runWeatherSweep() {
	defer s.recoverTick("weather")

	ctx, cancel := context.WithTimeout(context.Background(), s.tickTimeout)
	defer cancel()

	props, err := s.entities.ListWeatherSyncProperties(ctx)
	if err != nil {
		s.logger.Error("weather sweep failed to list properties", zap.Error(err))
		return
	}

	if len(props) == 0 {
		result := s.runWeatherDefault(ctx)
		s.logger.Info("weather sweep completed for default location",
			zap.Bool("success", result.Success),
			zap.Int("records_synced", result.RecordsSynced))
		return
	}

	var synced, failed int
	for _, prop := range props {
		result := s.runWeatherEntity(ctx, prop)
		if result.Success {
			synced += result.RecordsSynced
		} else {
			failed++
		}
	}

	s.logger.Info("weather sweep completed",
		zap.Int("properties", len(props)),
		zap.Int("records_synced", synced),
		zap.Int("failed", failed))
}

func (s *Scheduler) runWeatherEntity(ctx context.Context, prop db.Property) (result syncer.EntityResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("weather sync panicked for property",
				zap.String("property_id", prop.ID.String()),
				zap.Any("panic", r))
			result = syncer.EntityResult{
				EntityKey:   prop.ID.String(),
				FailureKind: syncer.FailureCritical,
				Error:       "sync panicked",
			}
		}
	}()

	return s.weather.SyncProperty(ctx, prop, syncer.RangeOptions{})
}

func (s *Scheduler) runWeatherDefault(ctx context.Context) (result syncer.EntityResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("weather sync panicked for default location", zap.Any("panic", r))
			result = syncer.EntityResult{
				FailureKind: syncer.FailureCritical,
				Error:       "sync panicked",
			}
		}
	}()

	return s.weather.SyncDefaultLocation(ctx, syncer.RangeOptions{})
}

func (s *Scheduler) recoverTick(domain string) {
	if r := recover(); r != nil {
		s.logger.Error("sync tick panicked",
			zap.String("domain", domain),
			zap.Any("panic", r))
	}
}
