package parser

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gridpulse/energy-sync/internal/db"
	"github.com/gridpulse/energy-sync/internal/provider"
)

// DefaultQuality is recorded when the source omits a point's quality flag
const DefaultQuality = "OK"

// DefaultUnit is recorded when the source omits the series unit
const DefaultUnit = "kWh"

// ParseError indicates the provider response did not match the documented
// contract. Context carries the shape detail needed to diagnose.
type ParseError struct {
	Context string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error (%s): %v", e.Context, e.Err)
	}
	return fmt.Sprintf("parse error (%s)", e.Context)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseConsumption flattens the provider's nested per-period/per-point
// document into consumption records for one metering point. Hourly point
// timestamps are periodStart + (position-1) hours; positions are
// 1-indexed. A missing quality flag defaults to "OK".
func ParseConsumption(doc *provider.ConsumptionDocument, meteringPointID uuid.UUID) ([]db.ConsumptionRecord, error) {
	if doc == nil {
		return nil, &ParseError{Context: "document is nil"}
	}

	var records []db.ConsumptionRecord

	for _, result := range doc.Result {
		for _, series := range result.Document.TimeSeries {
			unit := series.MeasurementUnit
			if unit == "" {
				unit = DefaultUnit
			}

			for _, period := range series.Periods {
				if period.Resolution != "PT1H" {
					return nil, &ParseError{
						Context: fmt.Sprintf("unsupported period resolution %q", period.Resolution),
					}
				}

				start, err := time.Parse(time.RFC3339, period.TimeInterval.Start)
				if err != nil {
					return nil, &ParseError{
						Context: fmt.Sprintf("period start %q", period.TimeInterval.Start),
						Err:     err,
					}
				}
				start = start.UTC()

				for _, point := range period.Points {
					position, err := strconv.Atoi(point.Position)
					if err != nil || position < 1 {
						return nil, &ParseError{
							Context: fmt.Sprintf("point position %q", point.Position),
							Err:     err,
						}
					}

					quantity, err := strconv.ParseFloat(point.Quantity, 64)
					if err != nil {
						return nil, &ParseError{
							Context: fmt.Sprintf("point quantity %q at position %d", point.Quantity, position),
							Err:     err,
						}
					}

					quality := point.Quality
					if quality == "" {
						quality = DefaultQuality
					}

					records = append(records, db.ConsumptionRecord{
						MeteringPointID: meteringPointID,
						Timestamp:       start.Add(time.Duration(position-1) * time.Hour),
						Resolution:      db.ResolutionHour,
						Quantity:        quantity,
						Quality:         quality,
						Unit:            unit,
					})
				}
			}
		}
	}

	return records, nil
}
