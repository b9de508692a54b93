package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gridpulse/energy-sync/internal/db"
	"github.com/gridpulse/energy-sync/internal/syncer"
)

// Trigger domains accepted by TriggerManualSync
const (
	TriggerEnergy  = "energy"
	TriggerWeather = "weather"
	TriggerBoth    = "both"
)

// TriggerOptions selects what a manual sync covers. EntityID is a metering
// point id for energy and a property id for weather; nil means every
// eligible entity. An explicit range requires both dates.
type TriggerOptions struct {
	Domain   string
	EntityID *uuid.UUID
	DateFrom *time.Time
	DateTo   *time.Time
	Force    bool
}

// TriggerResult is the combined outcome of a manual sync
type TriggerResult struct {
	Success       bool                  `json:"success"`
	RecordsSynced int                   `json:"records_synced"`
	ErrorCount    int                   `json:"error_count"`
	Entities      []syncer.EntityResult `json:"entities"`
}

// DomainHealth summarizes the most recent sync attempt for one domain
type DomainHealth struct {
	Domain        string     `json:"domain"`
	LastRun       *time.Time `json:"last_run"`
	LastStatus    string     `json:"last_status"`
	RecordsSynced int        `json:"records_synced"`
	LastError     *string    `json:"last_error,omitempty"`
}

// TriggerManualSync runs a sync outside the timers. It reuses the same
// orchestrators as scheduled ticks, so manual and scheduled runs share
// every invariant, including the weather overlap guard.
func (s *Scheduler) TriggerManualSync(ctx context.Context, opts TriggerOptions) (*TriggerResult, error) {
	if (opts.DateFrom == nil) != (opts.DateTo == nil) {
		return nil, fmt.Errorf("date_from and date_to must be supplied together")
	}

	rangeOpts := syncer.RangeOptions{
		DateFrom: opts.DateFrom,
		DateTo:   opts.DateTo,
		Force:    opts.Force,
	}

	var results []syncer.EntityResult

	switch opts.Domain {
	case TriggerEnergy:
		entityResults, err := s.triggerEnergy(ctx, opts.EntityID, rangeOpts)
		if err != nil {
			return nil, err
		}
		results = entityResults
	case TriggerWeather:
		entityResults, err := s.triggerWeather(ctx, opts.EntityID, rangeOpts)
		if err != nil {
			return nil, err
		}
		results = entityResults
	case TriggerBoth:
		energyResults, err := s.triggerEnergy(ctx, opts.EntityID, rangeOpts)
		if err != nil {
			return nil, err
		}
		weatherResults, err := s.triggerWeather(ctx, nil, rangeOpts)
		if err != nil {
			return nil, err
		}
		results = append(energyResults, weatherResults...)
	default:
		return nil, fmt.Errorf("unknown sync domain %q", opts.Domain)
	}

	agg := syncer.Aggregate(results)
	s.logger.Info("manual sync completed",
		zap.String("domain", opts.Domain),
		zap.Bool("success", agg.Success),
		zap.Int("records_synced", agg.RecordsSynced),
		zap.Int("error_count", agg.ErrorCount))

	return &TriggerResult{
		Success:       agg.Success,
		RecordsSynced: agg.RecordsSynced,
		ErrorCount:    agg.ErrorCount,
		Entities:      agg.Entities,
	}, nil
}

func (s *Scheduler) triggerEnergy(ctx context.Context, entityID *uuid.UUID, opts syncer.RangeOptions) ([]syncer.EntityResult, error) {
	if entityID != nil {
		mp, err := s.entities.GetMeteringPoint(ctx, *entityID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve metering point %s: %w", entityID, err)
		}
		prop, err := s.entities.GetProperty(ctx, mp.PropertyID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve property for metering point %s: %w", entityID, err)
		}
		return []syncer.EntityResult{
			s.energy.SyncMeteringPoint(ctx, *mp, prop.ProviderCredential, opts),
		}, nil
	}

	targets, err := s.entities.ListEnergyTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list metering points: %w", err)
	}

	results := make([]syncer.EntityResult, 0, len(targets))
	for _, target := range targets {
		results = append(results, s.energy.SyncMeteringPoint(ctx, target.MeteringPoint, target.Credential, opts))
	}
	return results, nil
}

func (s *Scheduler) triggerWeather(ctx context.Context, entityID *uuid.UUID, opts syncer.RangeOptions) ([]syncer.EntityResult, error) {
	if entityID != nil {
		prop, err := s.entities.GetProperty(ctx, *entityID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve property %s: %w", entityID, err)
		}
		return []syncer.EntityResult{s.weather.SyncProperty(ctx, *prop, opts)}, nil
	}

	props, err := s.entities.ListWeatherSyncProperties(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list weather properties: %w", err)
	}

	if len(props) == 0 {
		return []syncer.EntityResult{s.weather.SyncDefaultLocation(ctx, opts)}, nil
	}

	results := make([]syncer.EntityResult, 0, len(props))
	for _, prop := range props {
		results = append(results, s.weather.SyncProperty(ctx, prop, opts))
	}
	return results, nil
}

// TriggerBackfill runs a batched historical weather backfill for either a
// property's coordinates or the shared default location.
func (s *Scheduler) TriggerBackfill(ctx context.Context, propertyID *uuid.UUID, startDate, endDate time.Time) (*syncer.BackfillResult, error) {
	if endDate.Before(startDate) {
		return nil, fmt.Errorf("end date %s is before start date %s",
			endDate.Format("2006-01-02"), startDate.Format("2006-01-02"))
	}

	if propertyID == nil {
		result := s.weather.BackfillDefaultLocation(ctx, startDate, endDate)
		return &result, nil
	}

	prop, err := s.entities.GetProperty(ctx, *propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve property %s: %w", propertyID, err)
	}

	result := s.weather.Backfill(ctx, prop.Latitude, prop.Longitude, startDate, endDate)
	return &result, nil
}

// SyncHealth reads the most recent sync log entry for a domain. Read-only;
// no orchestration is triggered.
func (s *Scheduler) SyncHealth(ctx context.Context, domain string) (*DomainHealth, error) {
	if domain != db.DomainEnergy && domain != db.DomainWeatherHistorical {
		return nil, fmt.Errorf("unknown sync domain %q", domain)
	}

	entry, err := s.health.Latest(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync health: %w", err)
	}

	health := &DomainHealth{Domain: domain, LastStatus: "never_run"}
	if entry != nil {
		health.LastRun = &entry.CreatedAt
		health.LastStatus = entry.Status
		health.RecordsSynced = entry.RecordsSynced
		health.LastError = entry.ErrorMessage
	}

	return health, nil
}
