package openmeteo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/balloon-reliability-service/internal/enrich"
)

const (
	// DefaultBaseURL is the public Open-Meteo forecast endpoint.
	DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

	defaultRetryAfter = 60 * time.Second
	maxErrorBody      = 300
)

// Client implements enrich.Provider using the Open-Meteo hourly API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	logger     *slog.Logger
}

// NewClient creates an Open-Meteo client for the given weather model.
func NewClient(baseURL, model string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		model:   model,
		logger:  logger,
	}
}

// FetchHourly requests hourly variables for every location in req.
// A 429 is returned as *enrich.RetryableError carrying the server's
// retry-after, other 4xx as *enrich.PermanentError. 5xx and transport
// failures are returned as plain errors, which the retry wrapper retries.
func (c *Client) FetchHourly(ctx context.Context, req enrich.BatchRequest) ([]enrich.LocationHourly, error) {
	if len(req.Lats) == 0 || len(req.Lats) != len(req.Lons) {
		return nil, &enrich.PermanentError{Err: fmt.Errorf("invalid batch: %d lats, %d lons", len(req.Lats), len(req.Lons))}
	}

	params := url.Values{
		"latitude":   {joinCoords(req.Lats)},
		"longitude":  {joinCoords(req.Lons)},
		"hourly":     {strings.Join(enrich.HourlyVars, ",")},
		"timezone":   {"UTC"},
		"start_date": {req.StartDate},
		"end_date":   {req.EndDate},
	}
	if c.model != "" {
		params.Set("models", c.model)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &enrich.PermanentError{Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("open-meteo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		after := retryAfter(resp.Header.Get("Retry-After"))
		c.logger.Warn("open-meteo rate limited", "retry_after", after, "locations", len(req.Lats))
		return nil, &enrich.RetryableError{RetryAfter: &after, Err: statusError(resp.StatusCode, body)}
	case resp.StatusCode >= 500:
		return nil, statusError(resp.StatusCode, body)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &enrich.PermanentError{Err: statusError(resp.StatusCode, body)}
	}

	locs, err := decode(body)
	if err != nil {
		return nil, &enrich.PermanentError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return locs, nil
}

func joinCoords(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

// retryAfter parses a delay in seconds, falling back to one minute.
func retryAfter(h string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

func statusError(status int, body []byte) error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return fmt.Errorf("open-meteo API error: status %d: %s", status, bytes.TrimSpace(body))
}

// decode accepts a single location object or an array of them.
func decode(body []byte) ([]enrich.LocationHourly, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}

	var raw []location
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, err
		}
	} else {
		var one location
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, err
		}
		raw = []location{one}
	}

	out := make([]enrich.LocationHourly, len(raw))
	for i, l := range raw {
		out[i] = enrich.LocationHourly{
			Latitude:  l.Latitude,
			Longitude: l.Longitude,
			Hourly: enrich.HourlySeries{
				Time:          l.Hourly.Time,
				Temp2m:        l.Hourly.Temperature2m,
				WindSpeed10m:  l.Hourly.WindSpeed10m,
				WindDir10m:    l.Hourly.WindDirection10m,
				PressureMSL:   l.Hourly.PressureMSL,
				Precipitation: l.Hourly.Precipitation,
				WindGusts10m:  l.Hourly.WindGusts10m,
			},
		}
	}
	return out, nil
}

// Open-Meteo API response types.

type location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Hourly    hourly  `json:"hourly"`
}

type hourly struct {
	Time             []string   `json:"time"`
	Temperature2m    []*float64 `json:"temperature_2m"`
	WindSpeed10m     []*float64 `json:"windspeed_10m"`
	WindDirection10m []*float64 `json:"winddirection_10m"`
	PressureMSL      []*float64 `json:"pressure_msl"`
	Precipitation    []*float64 `json:"precipitation"`
	WindGusts10m     []*float64 `json:"windgusts_10m"`
}
