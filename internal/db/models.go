package db

import (
	"time"

	"github.com/google/uuid"
)

// Sync domains recorded in the sync log
const (
	DomainEnergy            = "energy"
	DomainWeatherHistorical = "weather_historical"
)

// Sync log statuses
const (
	SyncStatusInProgress = "in_progress"
	SyncStatusSuccess    = "success"
	SyncStatusError      = "error"
)

// ResolutionHour is the only resolution the engine currently ingests
const ResolutionHour = "Hour"

// Property represents an owning unit (a home or location) in the database
type Property struct {
	ID                 uuid.UUID
	Name               string
	ProviderCredential string
	Latitude           float64
	Longitude          float64
	WeatherSyncEnabled bool
	CreatedAt          time.Time
}

// MeteringPoint represents an external consumption-metering identifier
// scoped to a property. ExternalID is the provider's fixed-length numeric
// metering point identifier.
type MeteringPoint struct {
	ID         uuid.UUID
	PropertyID uuid.UUID
	ExternalID string
	Name       string
	CreatedAt  time.Time
}

// EnergyTarget is a metering point joined with its property's provider
// credential, as the scheduler sweeps it.
type EnergyTarget struct {
	MeteringPoint MeteringPoint
	Credential    string
}

// ConsumptionRecord represents one hourly consumption observation.
// Unique on (metering point, timestamp, resolution); re-ingestion
// overwrites quantity, quality and unit only.
type ConsumptionRecord struct {
	MeteringPointID uuid.UUID
	Timestamp       time.Time
	Resolution      string
	Quantity        float64
	Quality         string
	Unit            string
}

// WeatherRecord represents one hourly weather observation for a location.
// Unique on (location key, timestamp).
type WeatherRecord struct {
	LocationKey   string
	Timestamp     time.Time
	TemperatureC  float64
	Humidity      float64
	Precipitation float64
	WindSpeedMS   float64
	PressureHPa   float64
	ConditionCode string
	Source        string
}

// SyncLogEntry represents one row per sync attempt. Created with
// status=in_progress before any fetch; exactly one terminal update follows.
type SyncLogEntry struct {
	ID            uuid.UUID
	EntityKey     string
	Domain        string
	DateFrom      time.Time
	DateTo        time.Time
	Resolution    string
	Status        string
	ErrorMessage  *string
	RecordsSynced int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
