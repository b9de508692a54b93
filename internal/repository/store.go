package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridpulse/energy-sync/internal/db"
)

// Store handles idempotent time-series persistence and entity reads
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new store
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// UpsertConsumption persists consumption records idempotently, keyed by
// (metering point, timestamp, resolution). Conflicting rows get their
// quantity, quality and unit overwritten; identity fields never change.
// Returns the number of records written. Empty input is a no-op.
func (s *Store) UpsertConsumption(ctx context.Context, records []db.ConsumptionRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO consumption_records (
			metering_point_id, ts, resolution, quantity, quality, unit
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (metering_point_id, ts, resolution)
		DO UPDATE SET quantity = EXCLUDED.quantity,
		              quality  = EXCLUDED.quality,
		              unit     = EXCLUDED.unit
	`

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(query,
			rec.MeteringPointID,
			rec.Timestamp,
			rec.Resolution,
			rec.Quantity,
			rec.Quality,
			rec.Unit,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range records {
		if _, err := results.Exec(); err != nil {
			return 0, fmt.Errorf("failed to upsert consumption records: %w", err)
		}
	}

	return len(records), nil
}

// UpsertWeather persists weather records idempotently, keyed by
// (location key, timestamp). Same contract as UpsertConsumption.
func (s *Store) UpsertWeather(ctx context.Context, records []db.WeatherRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO weather_records (
			location_key, ts, temperature_c, humidity, precipitation,
			wind_speed_ms, pressure_hpa, condition_code, source
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (location_key, ts)
		DO UPDATE SET temperature_c  = EXCLUDED.temperature_c,
		              humidity       = EXCLUDED.humidity,
		              precipitation  = EXCLUDED.precipitation,
		              wind_speed_ms  = EXCLUDED.wind_speed_ms,
		              pressure_hpa   = EXCLUDED.pressure_hpa,
		              condition_code = EXCLUDED.condition_code,
		              source         = EXCLUDED.source
	`

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(query,
			rec.LocationKey,
			rec.Timestamp,
			rec.TemperatureC,
			rec.Humidity,
			rec.Precipitation,
			rec.WindSpeedMS,
			rec.PressureHPa,
			rec.ConditionCode,
			rec.Source,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range records {
		if _, err := results.Exec(); err != nil {
			return 0, fmt.Errorf("failed to upsert weather records: %w", err)
		}
	}

	return len(records), nil
}

// LatestConsumptionTimestamp returns the max observed timestamp for a
// metering point, or nil if no records exist. Used for gap detection.
func (s *Store) LatestConsumptionTimestamp(ctx context.Context, meteringPointID uuid.UUID) (*time.Time, error) {
	query := `
		SELECT max(ts)
		FROM consumption_records
		WHERE metering_point_id = $1
	`

	var latest *time.Time
	if err := s.pool.QueryRow(ctx, query, meteringPointID).Scan(&latest); err != nil {
		return nil, fmt.Errorf("failed to query latest consumption timestamp: %w", err)
	}

	return latest, nil
}

// GetProperty retrieves a property by id
func (s *Store) GetProperty(ctx context.Context, id uuid.UUID) (*db.Property, error) {
	query := `
		SELECT id, name, provider_credential, latitude, longitude, weather_sync_enabled, created_at
		FROM properties
		WHERE id = $1
	`

	var prop db.Property
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&prop.ID,
		&prop.Name,
		&prop.ProviderCredential,
		&prop.Latitude,
		&prop.Longitude,
		&prop.WeatherSyncEnabled,
		&prop.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query property: %w", err)
	}

	return &prop, nil
}

// GetMeteringPoint retrieves a metering point by id
func (s *Store) GetMeteringPoint(ctx context.Context, id uuid.UUID) (*db.MeteringPoint, error) {
	query := `
		SELECT id, property_id, external_id, name, created_at
		FROM metering_points
		WHERE id = $1
	`

	var mp db.MeteringPoint
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&mp.ID,
		&mp.PropertyID,
		&mp.ExternalID,
		&mp.Name,
		&mp.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query metering point: %w", err)
	}

	return &mp, nil
}

// ListMeteringPointsForProperty lists all metering points owned by a property
func (s *Store) ListMeteringPointsForProperty(ctx context.Context, propertyID uuid.UUID) ([]db.MeteringPoint, error) {
	query := `
		SELECT id, property_id, external_id, name, created_at
		FROM metering_points
		WHERE property_id = $1
		ORDER BY created_at
	`

	rows, err := s.pool.Query(ctx, query, propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query metering points: %w", err)
	}
	defer rows.Close()

	var points []db.MeteringPoint
	for rows.Next() {
		var mp db.MeteringPoint
		if err := rows.Scan(&mp.ID, &mp.PropertyID, &mp.ExternalID, &mp.Name, &mp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan metering point: %w", err)
		}
		points = append(points, mp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return points, nil
}

// ListEnergyTargets lists every metering point joined with its property's
// provider credential, for the scheduled energy sweep.
func (s *Store) ListEnergyTargets(ctx context.Context) ([]db.EnergyTarget, error) {
	query := `
		SELECT mp.id, mp.property_id, mp.external_id, mp.name, mp.created_at,
		       p.provider_credential
		FROM metering_points mp
		JOIN properties p ON p.id = mp.property_id
		ORDER BY mp.created_at
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query energy targets: %w", err)
	}
	defer rows.Close()

	var targets []db.EnergyTarget
	for rows.Next() {
		var t db.EnergyTarget
		if err := rows.Scan(
			&t.MeteringPoint.ID,
			&t.MeteringPoint.PropertyID,
			&t.MeteringPoint.ExternalID,
			&t.MeteringPoint.Name,
			&t.MeteringPoint.CreatedAt,
			&t.Credential,
		); err != nil {
			return nil, fmt.Errorf("failed to scan energy target: %w", err)
		}
		targets = append(targets, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return targets, nil
}

// ListWeatherSyncProperties lists every property with weather sync enabled
func (s *Store) ListWeatherSyncProperties(ctx context.Context) ([]db.Property, error) {
	query := `
		SELECT id, name, provider_credential, latitude, longitude, weather_sync_enabled, created_at
		FROM properties
		WHERE weather_sync_enabled = true
		ORDER BY created_at
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query weather sync properties: %w", err)
	}
	defer rows.Close()

	var props []db.Property
	for rows.Next() {
		var p db.Property
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.ProviderCredential,
			&p.Latitude,
			&p.Longitude,
			&p.WeatherSyncEnabled,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		props = append(props, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return props, nil
}
