package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ConsumptionDocument is the consumption provider's nested time-series
// response. Numeric fields arrive as strings; the parser owns conversion.
type ConsumptionDocument struct {
	Result []ConsumptionResult `json:"result"`
}

// ConsumptionResult wraps one metering point's market document
type ConsumptionResult struct {
	Document MarketDocument `json:"MyEnergyData_MarketDocument"`
}

// MarketDocument holds the time series for one metering point
type MarketDocument struct {
	TimeSeries []TimeSeries `json:"TimeSeries"`
}

// TimeSeries is one measured series with its unit and daily periods
type TimeSeries struct {
	MeteringPointID string   `json:"mRID"`
	MeasurementUnit string   `json:"measurement_Unit.name"`
	Periods         []Period `json:"Period"`
}

// Period is one day of points at a given resolution
type Period struct {
	Resolution   string       `json:"resolution"`
	TimeInterval TimeInterval `json:"timeInterval"`
	Points       []Point      `json:"Point"`
}

// TimeInterval is the period's UTC start/end
type TimeInterval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Point is a single observation. Position is 1-indexed within the period.
type Point struct {
	Position string `json:"position"`
	Quantity string `json:"out_Quantity.quantity"`
	Quality  string `json:"out_Quantity.quality"`
}

type tokenResponse struct {
	Result string `json:"result"`
}

// EnergyClient fetches consumption time series from the metering provider.
// It owns access-token acquisition for the provider's two-step auth
// (long-lived credential -> short-lived data token).
type EnergyClient struct {
	baseURL string
	client  *http.Client
	tokens  *TokenCache
	circuit *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewEnergyClient creates a consumption provider client
func NewEnergyClient(baseURL string, httpClient *http.Client, tokenTTL time.Duration, logger *zap.Logger) *EnergyClient {
	c := &EnergyClient{
		baseURL: baseURL,
		client:  httpClient,
		logger:  logger,
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "energy-provider",
			MaxRequests: 3,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		}),
	}
	c.tokens = NewTokenCache(tokenTTL, c.fetchAccessToken)
	return c
}

// Tokens exposes the client's token cache so orchestrators can evict a
// credential after an auth failure.
func (c *EnergyClient) Tokens() *TokenCache {
	return c.tokens
}

// FetchConsumption fetches the hourly series for one metering point over
// [dateFrom, dateTo] inclusive. The provider treats its dateTo as
// exclusive, so one day is added on the wire.
func (c *EnergyClient) FetchConsumption(ctx context.Context, credential, meteringPointID string, dateFrom, dateTo time.Time) (*ConsumptionDocument, error) {
	token, err := c.tokens.Token(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire access token: %w", err)
	}

	reqBody, err := json.Marshal(map[string]map[string][]string{
		"meteringPoints": {"meteringPoint": {meteringPointID}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	url := fmt.Sprintf("%s/api/meterdata/gettimeseries/%s/%s/Hour",
		c.baseURL,
		dateFrom.Format("2006-01-02"),
		dateTo.AddDate(0, 0, 1).Format("2006-01-02"),
	)

	body, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.IsAuthStatus() {
			// Token was rejected; force a refresh on the next attempt.
			c.tokens.Evict(credential)
		}
		return nil, err
	}

	var doc ConsumptionDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode consumption response: %w", err)
	}

	return &doc, nil
}

func (c *EnergyClient) fetchAccessToken(ctx context.Context, credential string) (string, error) {
	url := c.baseURL + "/api/token"

	body, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+credential)
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if resp.Result == "" {
		return "", fmt.Errorf("provider returned an empty access token")
	}

	c.logger.Debug("acquired provider access token")
	return resp.Result, nil
}

// do executes a request through the circuit breaker and returns the
// response body. Non-2xx responses become StatusErrors. There is no in-run
// retry; a failed run is retried on the next scheduled tick.
func (c *EnergyClient) do(ctx context.Context, buildRequest func() (*http.Request, error)) ([]byte, error) {
	result, err := c.circuit.Execute(func() (interface{}, error) {
		req, err := buildRequest()
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

	return result.([]byte), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
