package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gridpulse/energy-sync/internal/config"
	"github.com/gridpulse/energy-sync/internal/db"
	"github.com/gridpulse/energy-sync/internal/syncer"
)

type fakeEntities struct {
	targets    []db.EnergyTarget
	targetsErr error
	props      []db.Property
	points     map[uuid.UUID]*db.MeteringPoint
	properties map[uuid.UUID]*db.Property
}

func (f *fakeEntities) ListEnergyTargets(ctx context.Context) ([]db.EnergyTarget, error) {
	return f.targets, f.targetsErr
}

func (f *fakeEntities) ListWeatherSyncProperties(ctx context.Context) ([]db.Property, error) {
	return f.props, nil
}

func (f *fakeEntities) GetMeteringPoint(ctx context.Context, id uuid.UUID) (*db.MeteringPoint, error) {
	mp, ok := f.points[id]
	if !ok {
		return nil, errors.New("metering point not found")
	}
	return mp, nil
}

func (f *fakeEntities) GetProperty(ctx context.Context, id uuid.UUID) (*db.Property, error) {
	prop, ok := f.properties[id]
	if !ok {
		return nil, errors.New("property not found")
	}
	return prop, nil
}

type fakeHealth struct {
	entry *db.SyncLogEntry
	err   error
}

func (f *fakeHealth) Latest(ctx context.Context, domain string) (*db.SyncLogEntry, error) {
	return f.entry, f.err
}

type fakeEnergyRunner struct {
	results map[uuid.UUID]syncer.EntityResult
	calls   []uuid.UUID
	gotOpts syncer.RangeOptions
}

func (f *fakeEnergyRunner) SyncMeteringPoint(ctx context.Context, mp db.MeteringPoint, credential string, opts syncer.RangeOptions) syncer.EntityResult {
	f.calls = append(f.calls, mp.ID)
	f.gotOpts = opts
	if result, ok := f.results[mp.ID]; ok {
		return result
	}
	return syncer.EntityResult{EntityKey: mp.ID.String(), Success: true, RecordsSynced: 24}
}

type fakeWeatherRunner struct {
	propCalls     []uuid.UUID
	defaultCalls  int
	backfillCalls []struct{ lat, lon float64 }
	defaultBackf  int
}

func (f *fakeWeatherRunner) SyncProperty(ctx context.Context, prop db.Property, opts syncer.RangeOptions) syncer.EntityResult {
	f.propCalls = append(f.propCalls, prop.ID)
	return syncer.EntityResult{EntityKey: prop.ID.String(), Success: true, RecordsSynced: 48}
}

func (f *fakeWeatherRunner) SyncDefaultLocation(ctx context.Context, opts syncer.RangeOptions) syncer.EntityResult {
	f.defaultCalls++
	return syncer.EntityResult{EntityKey: "default", Success: true, RecordsSynced: 48}
}

func (f *fakeWeatherRunner) Backfill(ctx context.Context, lat, lon float64, startDate, endDate time.Time) syncer.BackfillResult {
	f.backfillCalls = append(f.backfillCalls, struct{ lat, lon float64 }{lat, lon})
	return syncer.BackfillResult{Success: true, RecordsSynced: 100}
}

func (f *fakeWeatherRunner) BackfillDefaultLocation(ctx context.Context, startDate, endDate time.Time) syncer.BackfillResult {
	f.defaultBackf++
	return syncer.BackfillResult{Success: true, RecordsSynced: 100}
}

func validEnergyConfig() config.EnergySyncConfig {
	return config.EnergySyncConfig{Enabled: true, Cron: "0 * * * *", Timezone: "Europe/Copenhagen"}
}

func validWeatherConfig() config.WeatherSyncConfig {
	return config.WeatherSyncConfig{Enabled: true, Cron: "30 * * * *", Timezone: "UTC"}
}

func newSchedulerForTest(entities *fakeEntities, health *fakeHealth, energy *fakeEnergyRunner, weather *fakeWeatherRunner) *Scheduler {
	return New(validEnergyConfig(), validWeatherConfig(), entities, health, energy, weather, zap.NewNop())
}

func TestNew_ValidConfigArmsBothDomains(t *testing.T) {
	s := newSchedulerForTest(&fakeEntities{}, &fakeHealth{}, &fakeEnergyRunner{}, &fakeWeatherRunner{})

	if s.energyCron == nil {
		t.Error("Expected energy timer to be armed")
	}
	if s.weatherCron == nil {
		t.Error("Expected weather timer to be armed")
	}
}

func TestNew_InvalidCronDisablesOnlyThatDomain(t *testing.T) {
	energyCfg := validEnergyConfig()
	energyCfg.Cron = "not a cron expression"

	s := New(energyCfg, validWeatherConfig(), &fakeEntities{}, &fakeHealth{},
		&fakeEnergyRunner{}, &fakeWeatherRunner{}, zap.NewNop())

	if s.energyCron != nil {
		t.Error("Expected invalid cron expression to disable the energy domain")
	}
	if s.weatherCron == nil {
		t.Error("Expected the weather domain to stay armed")
	}
}

func TestNew_InvalidTimezoneDisablesOnlyThatDomain(t *testing.T) {
	weatherCfg := validWeatherConfig()
	weatherCfg.Timezone = "Mars/Olympus_Mons"

	s := New(validEnergyConfig(), weatherCfg, &fakeEntities{}, &fakeHealth{},
		&fakeEnergyRunner{}, &fakeWeatherRunner{}, zap.NewNop())

	if s.weatherCron != nil {
		t.Error("Expected invalid timezone to disable the weather domain")
	}
	if s.energyCron == nil {
		t.Error("Expected the energy domain to stay armed")
	}
}

func TestNew_DisabledDomainHasNoTimer(t *testing.T) {
	energyCfg := validEnergyConfig()
	energyCfg.Enabled = false

	s := New(energyCfg, validWeatherConfig(), &fakeEntities{}, &fakeHealth{},
		&fakeEnergyRunner{}, &fakeWeatherRunner{}, zap.NewNop())

	if s.energyCron != nil {
		t.Error("Expected disabled energy domain to have no timer")
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	s := newSchedulerForTest(&fakeEntities{}, &fakeHealth{}, &fakeEnergyRunner{}, &fakeWeatherRunner{})

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}

func TestTriggerManualSync_EnergyAllEntities(t *testing.T) {
	mp1 := db.MeteringPoint{ID: uuid.New(), ExternalID: "mp-1"}
	mp2 := db.MeteringPoint{ID: uuid.New(), ExternalID: "mp-2"}
	entities := &fakeEntities{targets: []db.EnergyTarget{
		{MeteringPoint: mp1, Credential: "cred-1"},
		{MeteringPoint: mp2, Credential: "cred-2"},
	}}
	energy := &fakeEnergyRunner{}
	s := newSchedulerForTest(entities, &fakeHealth{}, energy, &fakeWeatherRunner{})

	result, err := s.TriggerManualSync(context.Background(), TriggerOptions{Domain: TriggerEnergy})
	if err != nil {
		t.Fatalf("Failed to trigger sync: %v", err)
	}

	if !result.Success {
		t.Error("Expected aggregate success")
	}
	if len(energy.calls) != 2 {
		t.Errorf("Expected 2 metering points synced, got %d", len(energy.calls))
	}
	if result.RecordsSynced != 48 {
		t.Errorf("Expected 48 records across entities, got %d", result.RecordsSynced)
	}
}

func TestTriggerManualSync_EnergySingleEntity(t *testing.T) {
	propID := uuid.New()
	mp := db.MeteringPoint{ID: uuid.New(), PropertyID: propID, ExternalID: "mp-1"}
	entities := &fakeEntities{
		points:     map[uuid.UUID]*db.MeteringPoint{mp.ID: &mp},
		properties: map[uuid.UUID]*db.Property{propID: {ID: propID, ProviderCredential: "cred-1"}},
	}
	energy := &fakeEnergyRunner{}
	s := newSchedulerForTest(entities, &fakeHealth{}, energy, &fakeWeatherRunner{})

	result, err := s.TriggerManualSync(context.Background(), TriggerOptions{
		Domain:   TriggerEnergy,
		EntityID: &mp.ID,
	})
	if err != nil {
		t.Fatalf("Failed to trigger sync: %v", err)
	}

	if len(energy.calls) != 1 || energy.calls[0] != mp.ID {
		t.Errorf("Expected exactly the requested metering point synced, got %v", energy.calls)
	}
	if len(result.Entities) != 1 {
		t.Errorf("Expected 1 entity result, got %d", len(result.Entities))
	}
}

func TestTriggerManualSync_UnknownEntityFails(t *testing.T) {
	entities := &fakeEntities{points: map[uuid.UUID]*db.MeteringPoint{}}
	s := newSchedulerForTest(entities, &fakeHealth{}, &fakeEnergyRunner{}, &fakeWeatherRunner{})

	unknown := uuid.New()
	_, err := s.TriggerManualSync(context.Background(), TriggerOptions{
		Domain:   TriggerEnergy,
		EntityID: &unknown,
	})
	if err == nil {
		t.Fatal("Expected error for unknown metering point")
	}
}

func TestTriggerManualSync_WeatherFallsBackToDefaultLocation(t *testing.T) {
	weather := &fakeWeatherRunner{}
	s := newSchedulerForTest(&fakeEntities{}, &fakeHealth{}, &fakeEnergyRunner{}, weather)

	result, err := s.TriggerManualSync(context.Background(), TriggerOptions{Domain: TriggerWeather})
	if err != nil {
		t.Fatalf("Failed to trigger sync: %v", err)
	}

	if weather.defaultCalls != 1 {
		t.Errorf("Expected default location sync, got %d calls", weather.defaultCalls)
	}
	if !result.Success {
		t.Error("Expected aggregate success")
	}
}

func TestTriggerManualSync_WeatherSyncsConfiguredProperties(t *testing.T) {
	props := []db.Property{
		{ID: uuid.New(), WeatherSyncEnabled: true},
		{ID: uuid.New(), WeatherSyncEnabled: true},
	}
	weather := &fakeWeatherRunner{}
	s := newSchedulerForTest(&fakeEntities{props: props}, &fakeHealth{}, &fakeEnergyRunner{}, weather)

	_, err := s.TriggerManualSync(context.Background(), TriggerOptions{Domain: TriggerWeather})
	if err != nil {
		t.Fatalf("Failed to trigger sync: %v", err)
	}

	if len(weather.propCalls) != 2 {
		t.Errorf("Expected 2 properties synced, got %d", len(weather.propCalls))
	}
	if weather.defaultCalls != 0 {
		t.Errorf("Expected no default location sync, got %d calls", weather.defaultCalls)
	}
}

func TestTriggerManualSync_BothRunsBothDomains(t *testing.T) {
	mp := db.MeteringPoint{ID: uuid.New(), ExternalID: "mp-1"}
	entities := &fakeEntities{targets: []db.EnergyTarget{{MeteringPoint: mp, Credential: "cred"}}}
	energy := &fakeEnergyRunner{}
	weather := &fakeWeatherRunner{}
	s := newSchedulerForTest(entities, &fakeHealth{}, energy, weather)

	result, err := s.TriggerManualSync(context.Background(), TriggerOptions{Domain: TriggerBoth})
	if err != nil {
		t.Fatalf("Failed to trigger sync: %v", err)
	}

	if len(energy.calls) != 1 {
		t.Errorf("Expected energy domain synced, got %d calls", len(energy.calls))
	}
	if weather.defaultCalls != 1 {
		t.Errorf("Expected weather domain synced, got %d calls", weather.defaultCalls)
	}
	if len(result.Entities) != 2 {
		t.Errorf("Expected combined entity results, got %d", len(result.Entities))
	}
}

func TestTriggerManualSync_UnknownDomain(t *testing.T) {
	s := newSchedulerForTest(&fakeEntities{}, &fakeHealth{}, &fakeEnergyRunner{}, &fakeWeatherRunner{})

	_, err := s.TriggerManualSync(context.Background(), TriggerOptions{Domain: "solar"})
	if err == nil {
		t.Fatal("Expected error for unknown domain")
	}
}

func TestTriggerManualSync_RequiresPairedDates(t *testing.T) {
	s := newSchedulerForTest(&fakeEntities{}, &fakeHealth{}, &fakeEnergyRunner{}, &fakeWeatherRunner{})

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.TriggerManualSync(context.Background(), TriggerOptions{
		Domain:   TriggerEnergy,
		DateFrom: &from,
	})
	if err == nil {
		t.Fatal("Expected error when only one date is supplied")
	}
}

func TestTriggerManualSync_PropagatesForceAndRange(t *testing.T) {
	mp := db.MeteringPoint{ID: uuid.New(), ExternalID: "mp-1"}
	entities := &fakeEntities{targets: []db.EnergyTarget{{MeteringPoint: mp, Credential: "cred"}}}
	energy := &fakeEnergyRunner{}
	s := newSchedulerForTest(entities, &fakeHealth{}, energy, &fakeWeatherRunner{})

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	_, err := s.TriggerManualSync(context.Background(), TriggerOptions{
		Domain:   TriggerEnergy,
		DateFrom: &from,
		DateTo:   &to,
		Force:    true,
	})
	if err != nil {
		t.Fatalf("Failed to trigger sync: %v", err)
	}

	if !energy.gotOpts.Force {
		t.Error("Expected force flag to reach the orchestrator")
	}
	if energy.gotOpts.DateFrom == nil || !energy.gotOpts.DateFrom.Equal(from) {
		t.Error("Expected explicit range to reach the orchestrator")
	}
}

func TestTriggerManualSync_PartialFailureReported(t *testing.T) {
	good := db.MeteringPoint{ID: uuid.New(), ExternalID: "mp-good"}
	bad := db.MeteringPoint{ID: uuid.New(), ExternalID: "mp-bad"}
	entities := &fakeEntities{targets: []db.EnergyTarget{
		{MeteringPoint: good, Credential: "cred"},
		{MeteringPoint: bad, Credential: "cred"},
	}}
	energy := &fakeEnergyRunner{results: map[uuid.UUID]syncer.EntityResult{
		bad.ID: {EntityKey: bad.ID.String(), FailureKind: syncer.FailureAuth, Error: "rejected"},
	}}
	s := newSchedulerForTest(entities, &fakeHealth{}, energy, &fakeWeatherRunner{})

	result, err := s.TriggerManualSync(context.Background(), TriggerOptions{Domain: TriggerEnergy})
	if err != nil {
		t.Fatalf("Failed to trigger sync: %v", err)
	}

	if result.Success {
		t.Error("Expected aggregate failure")
	}
	if result.ErrorCount != 1 {
		t.Errorf("Expected 1 failed entity, got %d", result.ErrorCount)
	}
	if result.RecordsSynced != 24 {
		t.Errorf("Expected the successful entity's records kept, got %d", result.RecordsSynced)
	}
}

func TestTriggerBackfill_DefaultLocation(t *testing.T) {
	weather := &fakeWeatherRunner{}
	s := newSchedulerForTest(&fakeEntities{}, &fakeHealth{}, &fakeEnergyRunner{}, weather)

	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)

	result, err := s.TriggerBackfill(context.Background(), nil, start, end)
	if err != nil {
		t.Fatalf("Failed to trigger backfill: %v", err)
	}

	if weather.defaultBackf != 1 {
		t.Errorf("Expected default location backfill, got %d calls", weather.defaultBackf)
	}
	if !result.Success {
		t.Error("Expected backfill success")
	}
}

func TestTriggerBackfill_PropertyCoordinates(t *testing.T) {
	propID := uuid.New()
	entities := &fakeEntities{properties: map[uuid.UUID]*db.Property{
		propID: {ID: propID, Latitude: 57.0488, Longitude: 9.9217},
	}}
	weather := &fakeWeatherRunner{}
	s := newSchedulerForTest(entities, &fakeHealth{}, &fakeEnergyRunner{}, weather)

	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)

	_, err := s.TriggerBackfill(context.Background(), &propID, start, end)
	if err != nil {
		t.Fatalf("Failed to trigger backfill: %v", err)
	}

	if len(weather.backfillCalls) != 1 {
		t.Fatalf("Expected 1 backfill call, got %d", len(weather.backfillCalls))
	}
	if weather.backfillCalls[0].lat != 57.0488 || weather.backfillCalls[0].lon != 9.9217 {
		t.Errorf("Expected property coordinates used, got %+v", weather.backfillCalls[0])
	}
}

func TestTriggerBackfill_RejectsInvertedRange(t *testing.T) {
	s := newSchedulerForTest(&fakeEntities{}, &fakeHealth{}, &fakeEnergyRunner{}, &fakeWeatherRunner{})

	start := time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.TriggerBackfill(context.Background(), nil, start, end)
	if err == nil {
		t.Fatal("Expected error for end date before start date")
	}
}

func TestSyncHealth_NeverRun(t *testing.T) {
	s := newSchedulerForTest(&fakeEntities{}, &fakeHealth{}, &fakeEnergyRunner{}, &fakeWeatherRunner{})

	health, err := s.SyncHealth(context.Background(), db.DomainEnergy)
	if err != nil {
		t.Fatalf("Failed to read health: %v", err)
	}

	if health.LastStatus != "never_run" {
		t.Errorf("Expected never_run status, got %q", health.LastStatus)
	}
	if health.LastRun != nil {
		t.Error("Expected no last run timestamp")
	}
}

func TestSyncHealth_ReportsLatestEntry(t *testing.T) {
	errMsg := "authentication rejected by provider"
	entry := &db.SyncLogEntry{
		Domain:        db.DomainEnergy,
		Status:        db.SyncStatusError,
		RecordsSynced: 0,
		ErrorMessage:  &errMsg,
		CreatedAt:     time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC),
	}
	s := newSchedulerForTest(&fakeEntities{}, &fakeHealth{entry: entry}, &fakeEnergyRunner{}, &fakeWeatherRunner{})

	health, err := s.SyncHealth(context.Background(), db.DomainEnergy)
	if err != nil {
		t.Fatalf("Failed to read health: %v", err)
	}

	if health.LastStatus != db.SyncStatusError {
		t.Errorf("Expected error status, got %q", health.LastStatus)
	}
	if health.LastError == nil || *health.LastError != errMsg {
		t.Error("Expected last error message carried through")
	}
	if health.LastRun == nil || !health.LastRun.Equal(entry.CreatedAt) {
		t.Error("Expected last run timestamp carried through")
	}
}

func TestSyncHealth_UnknownDomain(t *testing.T) {
	s := newSchedulerForTest(&fakeEntities{}, &fakeHealth{}, &fakeEnergyRunner{}, &fakeWeatherRunner{})

	if _, err := s.SyncHealth(context.Background(), "solar"); err == nil {
		t.Fatal("Expected error for unknown domain")
	}
}
