package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gridpulse/energy-sync/internal/db"
	"github.com/gridpulse/energy-sync/internal/logging"
	"github.com/gridpulse/energy-sync/internal/parser"
)

// EnergyConfig holds the energy orchestrator's gap-fill knobs
type EnergyConfig struct {
	// AvailabilityLagDays is the provider's publication lag behind today
	AvailabilityLagDays int
	// DefaultLookbackDays bounds the first sync of an empty series
	DefaultLookbackDays int
}

// EnergySyncer drives one consumption sync per metering point:
// resolve range, open log, fetch, parse, store, close log. Failures are
// classified and returned as structured results; nothing propagates past
// this boundary.
type EnergySyncer struct {
	store   ConsumptionStore
	audit   AuditLog
	fetcher ConsumptionFetcher
	events  EventSink
	cfg     EnergyConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewEnergySyncer creates an energy sync orchestrator. events may be nil.
func NewEnergySyncer(
	store ConsumptionStore,
	audit AuditLog,
	fetcher ConsumptionFetcher,
	events EventSink,
	cfg EnergyConfig,
	logger *zap.Logger,
) *EnergySyncer {
	return &EnergySyncer{
		store:   store,
		audit:   audit,
		fetcher: fetcher,
		events:  events,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// SyncMeteringPoint runs one sync pass for a metering point. With no
// explicit range it gap-fills from the last stored timestamp up to the
// provider's availability horizon, short-circuiting when already up to
// date so the hourly schedule never re-fetches settled data.
func (s *EnergySyncer) SyncMeteringPoint(ctx context.Context, mp db.MeteringPoint, credential string, opts RangeOptions) EntityResult {
	entityKey := mp.ID.String()
	log := logging.WithSyncRun(s.logger, db.DomainEnergy, entityKey)
	result := EntityResult{EntityKey: entityKey}

	// Resolve the date range
	var dateFrom, dateTo time.Time
	if opts.DateFrom != nil && opts.DateTo != nil {
		dateFrom = dayOf(*opts.DateFrom)
		dateTo = dayOf(*opts.DateTo)
	} else {
		available := dayOf(s.now()).AddDate(0, 0, -s.cfg.AvailabilityLagDays)

		latest, err := s.store.LatestConsumptionTimestamp(ctx, mp.ID)
		if err != nil {
			log.Error("failed to resolve sync range", zap.Error(err))
			result.FailureKind = FailureStorage
			result.Error = err.Error()
			return result
		}

		if latest == nil {
			dateFrom = available.AddDate(0, 0, -s.cfg.DefaultLookbackDays)
			dateTo = available
		} else {
			next := dayOf(*latest).AddDate(0, 0, 1)
			if next.After(available) {
				log.Debug("metering point already up to date",
					zap.Time("latest", *latest),
					zap.Time("available", available))
				result.Success = true
				result.UpToDate = true
				return result
			}
			dateFrom = next
			dateTo = available
		}
	}
	result.DateFrom = dateFrom
	result.DateTo = dateTo

	// Open the log entry before any fetch. If this fails nothing may be
	// fetched: data that cannot be logged must not be synced.
	logID, err := s.audit.Open(ctx, entityKey, db.DomainEnergy, dateFrom, dateTo, db.ResolutionHour)
	if err != nil {
		log.Error("critical: failed to open sync log entry, aborting before fetch", zap.Error(err))
		result.FailureKind = FailureCritical
		result.Error = err.Error()
		return result
	}
	result.LogID = logID

	// Fetch
	doc, err := s.fetcher.FetchConsumption(ctx, credential, mp.ExternalID, dateFrom, dateTo)
	if err != nil {
		kind, msg := ClassifyFetchError(err)
		if kind == FailureRateLimited {
			log.Warn("consumption fetch rate limited", zap.Error(err))
		} else {
			log.Error("consumption fetch failed", zap.String("failure_kind", string(kind)), zap.Error(err))
		}
		s.closeLog(ctx, log, logID, db.SyncStatusError, 0, &msg)
		result.FailureKind = kind
		result.Error = msg
		return s.emit(ctx, result)
	}

	// Parse
	records, err := parser.ParseConsumption(doc, mp.ID)
	if err != nil {
		msg := err.Error()
		log.Error("consumption response did not match provider contract", zap.Error(err))
		s.closeLog(ctx, log, logID, db.SyncStatusError, 0, &msg)
		result.FailureKind = FailureParse
		result.Error = msg
		return s.emit(ctx, result)
	}

	// Store
	count, err := s.store.UpsertConsumption(ctx, records)
	if err != nil {
		msg := err.Error()
		log.Error("failed to store consumption records", zap.Error(err))
		s.closeLog(ctx, log, logID, db.SyncStatusError, 0, &msg)
		result.FailureKind = FailureStorage
		result.Error = msg
		return s.emit(ctx, result)
	}

	s.closeLog(ctx, log, logID, db.SyncStatusSuccess, count, nil)
	result.Success = true
	result.RecordsSynced = count

	log.Info("consumption sync completed",
		zap.Time("date_from", dateFrom),
		zap.Time("date_to", dateTo),
		zap.Int("records_synced", count))

	return s.emit(ctx, result)
}

// SyncProperty runs the per-metering-point state machine for every
// metering point of a property, independently. One entity's failure never
// aborts its siblings; the aggregate keeps the full breakdown.
func (s *EnergySyncer) SyncProperty(ctx context.Context, prop db.Property, points []db.MeteringPoint, opts RangeOptions) AggregateResult {
	results := make([]EntityResult, 0, len(points))
	for _, mp := range points {
		results = append(results, s.SyncMeteringPoint(ctx, mp, prop.ProviderCredential, opts))
	}
	return Aggregate(results)
}

// closeLog applies the terminal log update. A close failure is logged and
// swallowed so it never masks the run's actual outcome.
func (s *EnergySyncer) closeLog(ctx context.Context, log *zap.Logger, id uuid.UUID, status string, records int, errMsg *string) {
	if err := s.audit.Close(ctx, id, status, records, errMsg); err != nil {
		log.Error("failed to close sync log entry",
			zap.String("log_id", id.String()),
			zap.String("status", status),
			zap.Error(err))
	}
}

// emit publishes the terminal result to the event sink, if one is wired
func (s *EnergySyncer) emit(ctx context.Context, result EntityResult) EntityResult {
	if s.events == nil {
		return result
	}

	status := db.SyncStatusSuccess
	if !result.Success {
		status = db.SyncStatusError
	}

	s.events.PublishSyncCompleted(ctx, SyncEvent{
		EntityKey:     result.EntityKey,
		Domain:        db.DomainEnergy,
		Status:        status,
		RecordsSynced: result.RecordsSynced,
		DateFrom:      result.DateFrom.Format("2006-01-02"),
		DateTo:        result.DateTo.Format("2006-01-02"),
		Error:         result.Error,
	})

	return result
}
