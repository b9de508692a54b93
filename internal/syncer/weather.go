package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gridpulse/energy-sync/internal/db"
	"github.com/gridpulse/energy-sync/internal/logging"
	"github.com/gridpulse/energy-sync/internal/parser"
)

// WeatherConfig holds the weather orchestrator's knobs
type WeatherConfig struct {
	AvailabilityLagDays int
	DefaultLookbackDays int
	// OverlapGuardWindow is how long an in_progress log row blocks a new
	// sync for the same location.
	OverlapGuardWindow time.Duration
	// BackfillBatchDays caps one provider request; the provider rejects
	// ranges over 365 days.
	BackfillBatchDays  int
	BackfillBatchDelay time.Duration
	DefaultLatitude    float64
	DefaultLongitude   float64
}

// WeatherSyncer drives hourly weather ingestion per location. It differs
// from the energy orchestrator in location resolution, the overlap guard,
// and batched backfill.
type WeatherSyncer struct {
	store   WeatherStore
	audit   AuditLog
	fetcher WeatherFetcher
	events  EventSink
	cfg     WeatherConfig
	logger  *zap.Logger
	now     func() time.Time
	locks   *keyedLock
}

// NewWeatherSyncer creates a weather sync orchestrator. events may be nil.
func NewWeatherSyncer(
	store WeatherStore,
	audit AuditLog,
	fetcher WeatherFetcher,
	events EventSink,
	cfg WeatherConfig,
	logger *zap.Logger,
) *WeatherSyncer {
	return &WeatherSyncer{
		store:   store,
		audit:   audit,
		fetcher: fetcher,
		events:  events,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		locks:   newKeyedLock(),
	}
}

// LocationKey is the storage key for a coordinate pair. Coordinates are
// rounded so one location maps to one series regardless of caller
// precision.
func LocationKey(lat, lon float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lon)
}

// SyncDefaultLocation syncs the deployment's shared default location
func (s *WeatherSyncer) SyncDefaultLocation(ctx context.Context, opts RangeOptions) EntityResult {
	return s.SyncLocation(ctx, s.cfg.DefaultLatitude, s.cfg.DefaultLongitude, opts)
}

// SyncProperty syncs a property's stored coordinates. A property with
// weather sync disabled is a no-op success unless the run is forced.
func (s *WeatherSyncer) SyncProperty(ctx context.Context, prop db.Property, opts RangeOptions) EntityResult {
	if !prop.WeatherSyncEnabled && !opts.Force {
		s.logger.Debug("weather sync disabled for property, skipping",
			zap.String("property_id", prop.ID.String()))
		return EntityResult{
			EntityKey: LocationKey(prop.Latitude, prop.Longitude),
			Success:   true,
		}
	}
	return s.SyncLocation(ctx, prop.Latitude, prop.Longitude, opts)
}

// SyncLocation runs one weather sync pass for a coordinate pair.
//
// Before opening a log entry it takes an in-process per-location try-lock
// and then checks the log table for a recent in_progress entry. The log
// check alone is best-effort (check-then-open can interleave across
// processes); the try-lock makes it exact for callers in this process.
// Force bypasses both checks.
func (s *WeatherSyncer) SyncLocation(ctx context.Context, lat, lon float64, opts RangeOptions) EntityResult {
	entityKey := LocationKey(lat, lon)
	log := logging.WithSyncRun(s.logger, db.DomainWeatherHistorical, entityKey)
	result := EntityResult{EntityKey: entityKey}

	if !opts.Force {
		if !s.locks.TryLock(entityKey) {
			log.Warn("weather sync already running in this process, skipping")
			result.FailureKind = FailureOverlap
			result.Error = fmt.Sprintf("weather sync for %s is already in progress", entityKey)
			return result
		}
		defer s.locks.Unlock(entityKey)

		inProgress, err := s.audit.HasRecentInProgress(ctx, entityKey, db.DomainWeatherHistorical, s.cfg.OverlapGuardWindow)
		if err != nil {
			log.Error("failed to check overlap guard", zap.Error(err))
			result.FailureKind = FailureStorage
			result.Error = err.Error()
			return result
		}
		if inProgress {
			log.Warn("recent in-progress weather sync found, skipping",
				zap.Duration("guard_window", s.cfg.OverlapGuardWindow))
			result.FailureKind = FailureOverlap
			result.Error = fmt.Sprintf("weather sync for %s is already in progress", entityKey)
			return result
		}
	}

	// Resolve the date range
	var dateFrom, dateTo time.Time
	if opts.DateFrom != nil && opts.DateTo != nil {
		dateFrom = dayOf(*opts.DateFrom)
		dateTo = dayOf(*opts.DateTo)
	} else {
		available := dayOf(s.now()).AddDate(0, 0, -s.cfg.AvailabilityLagDays)
		dateFrom = available.AddDate(0, 0, -s.cfg.DefaultLookbackDays)
		dateTo = available
	}
	result.DateFrom = dateFrom
	result.DateTo = dateTo

	// Open the log entry before any fetch (fail-fast, same contract as
	// the energy orchestrator).
	logID, err := s.audit.Open(ctx, entityKey, db.DomainWeatherHistorical, dateFrom, dateTo, db.ResolutionHour)
	if err != nil {
		log.Error("critical: failed to open sync log entry, aborting before fetch", zap.Error(err))
		result.FailureKind = FailureCritical
		result.Error = err.Error()
		return result
	}
	result.LogID = logID

	// Fetch
	doc, err := s.fetcher.FetchWeather(ctx, lat, lon, dateFrom, dateTo)
	if err != nil {
		kind, msg := ClassifyFetchError(err)
		if kind == FailureRateLimited {
			log.Warn("weather fetch rate limited", zap.Error(err))
		} else {
			log.Error("weather fetch failed", zap.String("failure_kind", string(kind)), zap.Error(err))
		}
		s.closeLog(ctx, log, logID, db.SyncStatusError, 0, &msg)
		result.FailureKind = kind
		result.Error = msg
		return s.emit(ctx, result)
	}

	// Parse
	records, err := parser.ParseWeather(doc, entityKey)
	if err != nil {
		msg := err.Error()
		log.Error("weather response did not match provider contract", zap.Error(err))
		s.closeLog(ctx, log, logID, db.SyncStatusError, 0, &msg)
		result.FailureKind = FailureParse
		result.Error = msg
		return s.emit(ctx, result)
	}

	// Store
	count, err := s.store.UpsertWeather(ctx, records)
	if err != nil {
		msg := err.Error()
		log.Error("failed to store weather records", zap.Error(err))
		s.closeLog(ctx, log, logID, db.SyncStatusError, 0, &msg)
		result.FailureKind = FailureStorage
		result.Error = msg
		return s.emit(ctx, result)
	}

	s.closeLog(ctx, log, logID, db.SyncStatusSuccess, count, nil)
	result.Success = true
	result.RecordsSynced = count

	log.Info("weather sync completed",
		zap.Time("date_from", dateFrom),
		zap.Time("date_to", dateTo),
		zap.Int("records_synced", count))

	return s.emit(ctx, result)
}

// Backfill ingests an arbitrary [startDate, endDate] range by splitting it
// into provider-sized batches and running the standard sync once per
// batch, with a short delay between batches. The combined result succeeds
// when any batch succeeded; per-batch errors are retained.
func (s *WeatherSyncer) Backfill(ctx context.Context, lat, lon float64, startDate, endDate time.Time) BackfillResult {
	start := dayOf(startDate)
	end := dayOf(endDate)
	log := logging.WithSyncRun(s.logger, db.DomainWeatherHistorical, LocationKey(lat, lon))

	var combined BackfillResult

	for batchStart := start; !batchStart.After(end); {
		batchEnd := batchStart.AddDate(0, 0, s.cfg.BackfillBatchDays-1)
		if batchEnd.After(end) {
			batchEnd = end
		}

		from, to := batchStart, batchEnd
		batch := s.SyncLocation(ctx, lat, lon, RangeOptions{DateFrom: &from, DateTo: &to})
		combined.Batches = append(combined.Batches, batch)
		if batch.Success {
			combined.Success = true
			combined.RecordsSynced += batch.RecordsSynced
		} else {
			log.Warn("backfill batch failed",
				zap.Time("batch_start", batchStart),
				zap.Time("batch_end", batchEnd),
				zap.String("error", batch.Error))
		}

		batchStart = batchEnd.AddDate(0, 0, 1)
		if batchStart.After(end) {
			break
		}

		select {
		case <-time.After(s.cfg.BackfillBatchDelay):
		case <-ctx.Done():
			log.Warn("backfill cancelled between batches", zap.Error(ctx.Err()))
			return combined
		}
	}

	log.Info("backfill finished",
		zap.Int("batches", len(combined.Batches)),
		zap.Int("records_synced", combined.RecordsSynced),
		zap.Bool("success", combined.Success))

	return combined
}

// BackfillDefaultLocation backfills the deployment's shared default
// location.
func (s *WeatherSyncer) BackfillDefaultLocation(ctx context.Context, startDate, endDate time.Time) BackfillResult {
	return s.Backfill(ctx, s.cfg.DefaultLatitude, s.cfg.DefaultLongitude, startDate, endDate)
}

func (s *WeatherSyncer) closeLog(ctx context.Context, log *zap.Logger, id uuid.UUID, status string, records int, errMsg *string) {
	if err := s.audit.Close(ctx, id, status, records, errMsg); err != nil {
		log.Error("failed to close sync log entry",
			zap.String("log_id", id.String()),
			zap.String("status", status),
			zap.Error(err))
	}
}

func (s *WeatherSyncer) emit(ctx context.Context, result EntityResult) EntityResult {
	if s.events == nil {
		return result
	}

	status := db.SyncStatusSuccess
	if !result.Success {
		status = db.SyncStatusError
	}

	s.events.PublishSyncCompleted(ctx, SyncEvent{
		EntityKey:     result.EntityKey,
		Domain:        db.DomainWeatherHistorical,
		Status:        status,
		RecordsSynced: result.RecordsSynced,
		DateFrom:      result.DateFrom.Format("2006-01-02"),
		DateTo:        result.DateTo.Format("2006-01-02"),
		Error:         result.Error,
	})

	return result
}
