package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gridpulse/energy-sync/internal/db"
	"github.com/gridpulse/energy-sync/internal/provider"
)

// ConsumptionStore is the subset of the upsert store the energy
// orchestrator needs.
type ConsumptionStore interface {
	UpsertConsumption(ctx context.Context, records []db.ConsumptionRecord) (int, error)
	LatestConsumptionTimestamp(ctx context.Context, meteringPointID uuid.UUID) (*time.Time, error)
}

// WeatherStore is the subset of the upsert store the weather orchestrator
// needs.
type WeatherStore interface {
	UpsertWeather(ctx context.Context, records []db.WeatherRecord) (int, error)
}

// AuditLog records every sync attempt
type AuditLog interface {
	Open(ctx context.Context, entityKey, domain string, dateFrom, dateTo time.Time, resolution string) (uuid.UUID, error)
	Close(ctx context.Context, id uuid.UUID, status string, recordsSynced int, errorMessage *string) error
	HasRecentInProgress(ctx context.Context, entityKey, domain string, within time.Duration) (bool, error)
}

// ConsumptionFetcher is the external consumption source adapter
type ConsumptionFetcher interface {
	FetchConsumption(ctx context.Context, credential, meteringPointID string, dateFrom, dateTo time.Time) (*provider.ConsumptionDocument, error)
}

// WeatherFetcher is the external weather source adapter
type WeatherFetcher interface {
	FetchWeather(ctx context.Context, lat, lon float64, dateFrom, dateTo time.Time) (*provider.WeatherDocument, error)
}

// SyncEvent describes one terminal sync run, for downstream consumers
type SyncEvent struct {
	EntityKey     string `json:"entity_key"`
	Domain        string `json:"domain"`
	Status        string `json:"status"`
	RecordsSynced int    `json:"records_synced"`
	DateFrom      string `json:"date_from"`
	DateTo        string `json:"date_to"`
	Error         string `json:"error,omitempty"`
}

// EventSink receives sync-completed events. Implementations must never
// fail the run; publishing is fire-and-forget.
type EventSink interface {
	PublishSyncCompleted(ctx context.Context, event SyncEvent)
}

// RangeOptions carries an optional explicit date range and the force flag
// for a manually triggered run. When both dates are set they are used
// verbatim; otherwise the orchestrator resolves the range itself.
type RangeOptions struct {
	DateFrom *time.Time
	DateTo   *time.Time
	Force    bool
}

// EntityResult is the structured outcome of one entity's sync run.
// Orchestrators never raise past their boundary; every failure path
// produces one of these.
type EntityResult struct {
	EntityKey     string
	LogID         uuid.UUID
	Success       bool
	UpToDate      bool
	RecordsSynced int
	DateFrom      time.Time
	DateTo        time.Time
	FailureKind   FailureKind
	Error         string
}

// AggregateResult is the combined outcome of a multi-entity sync. Success
// requires zero failed entities; the per-entity breakdown is always kept.
type AggregateResult struct {
	Success       bool
	RecordsSynced int
	ErrorCount    int
	Entities      []EntityResult
}

// Aggregate folds per-entity results into an aggregate
func Aggregate(entities []EntityResult) AggregateResult {
	agg := AggregateResult{Success: true, Entities: entities}
	for _, e := range entities {
		if e.Success {
			agg.RecordsSynced += e.RecordsSynced
		} else {
			agg.ErrorCount++
			agg.Success = false
		}
	}
	return agg
}

// BackfillResult is the combined outcome of a batched historical backfill.
// Success is true when at least one batch succeeded; per-batch errors are
// retained for inspection.
type BackfillResult struct {
	Success       bool
	RecordsSynced int
	Batches       []EntityResult
}

// dayOf truncates an instant to its UTC date
func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
