package parser

import (
	"fmt"
	"time"

	"github.com/gridpulse/energy-sync/internal/db"
	"github.com/gridpulse/energy-sync/internal/provider"
)

// WeatherSource is the source tag stored on parsed weather records
const WeatherSource = "open-meteo"

// Stable condition codes derived from the provider's weather codes
const (
	ConditionClear   = "clear"
	ConditionCloudy  = "cloudy"
	ConditionFog     = "fog"
	ConditionRain    = "rain"
	ConditionSnow    = "snow"
	ConditionStorm   = "storm"
	ConditionUnknown = "unknown"
)

// hourlyTimeLayout is the provider's hourly timestamp format (no zone
// suffix; the request pins the response to UTC).
const hourlyTimeLayout = "2006-01-02T15:04"

// ParseWeather flattens the provider's parallel hourly arrays into weather
// records for one location key. All value arrays must match the time
// array's length; a mismatch means the provider contract changed.
func ParseWeather(doc *provider.WeatherDocument, locationKey string) ([]db.WeatherRecord, error) {
	if doc == nil {
		return nil, &ParseError{Context: "document is nil"}
	}

	hourly := doc.Hourly
	n := len(hourly.Time)

	for name, length := range map[string]int{
		"temperature_2m":       len(hourly.Temperature),
		"relative_humidity_2m": len(hourly.Humidity),
		"precipitation":        len(hourly.Precipitation),
		"wind_speed_10m":       len(hourly.WindSpeed),
		"surface_pressure":     len(hourly.Pressure),
		"weather_code":         len(hourly.WeatherCode),
	} {
		if length != n {
			return nil, &ParseError{
				Context: fmt.Sprintf("hourly array %s has %d entries, expected %d", name, length, n),
			}
		}
	}

	records := make([]db.WeatherRecord, 0, n)
	for i := 0; i < n; i++ {
		ts, err := time.Parse(hourlyTimeLayout, hourly.Time[i])
		if err != nil {
			return nil, &ParseError{
				Context: fmt.Sprintf("hourly time %q at index %d", hourly.Time[i], i),
				Err:     err,
			}
		}

		records = append(records, db.WeatherRecord{
			LocationKey:   locationKey,
			Timestamp:     ts.UTC(),
			TemperatureC:  hourly.Temperature[i],
			Humidity:      hourly.Humidity[i],
			Precipitation: hourly.Precipitation[i],
			WindSpeedMS:   hourly.WindSpeed[i],
			PressureHPa:   hourly.Pressure[i],
			ConditionCode: MapWeatherCode(hourly.WeatherCode[i]),
			Source:        WeatherSource,
		})
	}

	return records, nil
}

// MapWeatherCode maps the provider's WMO weather codes onto stable
// condition strings.
func MapWeatherCode(code int) string {
	switch {
	case code == 0:
		return ConditionClear
	case code >= 1 && code <= 3:
		return ConditionCloudy
	case code == 45 || code == 48:
		return ConditionFog
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return ConditionSnow
	case code >= 95:
		return ConditionStorm
	default:
		return ConditionUnknown
	}
}
