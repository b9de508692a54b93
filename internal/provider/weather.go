package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// WeatherDocument is the weather provider's hourly archive response. The
// hourly block holds parallel arrays indexed by observation hour.
type WeatherDocument struct {
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	Hourly    HourlySeries `json:"hourly"`
}

// HourlySeries holds the provider's parallel per-hour arrays
type HourlySeries struct {
	Time          []string  `json:"time"`
	Temperature   []float64 `json:"temperature_2m"`
	Humidity      []float64 `json:"relative_humidity_2m"`
	Precipitation []float64 `json:"precipitation"`
	WindSpeed     []float64 `json:"wind_speed_10m"`
	Pressure      []float64 `json:"surface_pressure"`
	WeatherCode   []int     `json:"weather_code"`
}

// WeatherClient fetches hourly weather observations from the archive API.
// No credentials are required.
type WeatherClient struct {
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewWeatherClient creates a weather provider client
func NewWeatherClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *WeatherClient {
	return &WeatherClient{
		baseURL: baseURL,
		client:  httpClient,
		logger:  logger,
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "weather-provider",
			MaxRequests: 3,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		}),
	}
}

// FetchWeather fetches hourly observations for a coordinate pair over
// [dateFrom, dateTo] inclusive.
func (c *WeatherClient) FetchWeather(ctx context.Context, lat, lon float64, dateFrom, dateTo time.Time) (*WeatherDocument, error) {
	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%.4f", lat))
	values.Set("longitude", fmt.Sprintf("%.4f", lon))
	values.Set("start_date", dateFrom.Format("2006-01-02"))
	values.Set("end_date", dateTo.Format("2006-01-02"))
	values.Set("hourly", "temperature_2m,relative_humidity_2m,precipitation,wind_speed_10m,surface_pressure,weather_code")
	values.Set("timezone", "UTC")

	reqURL := fmt.Sprintf("%s/v1/archive?%s", c.baseURL, values.Encode())

	result, err := c.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
		}

		return body, nil
	})
	if err != nil {
		return nil, err
	}

	var doc WeatherDocument
	if err := json.Unmarshal(result.([]byte), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}

	return &doc, nil
}
