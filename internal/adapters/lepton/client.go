// Package lepton implements the catchment-geometry provider client for the
// Lepton Maps API.
package lepton

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/locushq/catchment-api/internal/domain/model"
)

const (
	defaultBaseURL  = "https://api.leptonmaps.com"
	catchmentPath   = "/v1/geojson/catchment"
	defaultAccuracy = "HIGH"
)

// outerRingExpr selects the outer ring of the first polygon in the provider
// response.
const outerRingExpr = "features[0].geometry.coordinates[0]"

// Config captures the subset of Lepton Maps behaviour we need.
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RetryLimit        int
	RetryBackoff      time.Duration
	AccuracyTimeBased string
	Client            *http.Client
}

// Client calls the Lepton Maps catchment endpoint, one request per row.
// Transient failures (transport errors, 5xx) are retried with linear
// backoff; client errors fail immediately.
type Client struct {
	baseURL      string
	apiKey       string
	accuracy     string
	retryLimit   int
	retryBackoff time.Duration
	client       *http.Client
}

// NewClient builds a Lepton Maps client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("lepton api key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid lepton base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	retries := cfg.RetryLimit
	if retries < 0 {
		retries = 0
	}

	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	accuracy := strings.TrimSpace(cfg.AccuracyTimeBased)
	if accuracy == "" {
		accuracy = defaultAccuracy
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		accuracy:     accuracy,
		retryLimit:   retries,
		retryBackoff: backoff,
		client:       hc,
	}, nil
}

// Enrich fetches the catchment polygon for one row and returns the row with
// its GeoJSON attached.
func (c *Client) Enrich(ctx context.Context, row *model.Row) (*model.EnrichedRow, error) {
	if row == nil {
		return nil, errors.New("row is required")
	}

	reqURL := c.buildURL(row)

	body, err := c.fetch(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	geojson, err := extractPolygon(body)
	if err != nil {
		return nil, err
	}

	return &model.EnrichedRow{Row: *row, GeoJSON: geojson}, nil
}

func (c *Client) buildURL(row *model.Row) string {
	lat, lon := gpsParts(row)

	params := url.Values{}
	params.Set("latitude", lat)
	params.Set("longitude", lon)
	params.Set("catchment_type", string(row.Mode()))
	params.Set("accuracy_time_based", c.accuracy)
	switch row.Mode() {
	case model.ModeDriveDistance:
		params.Set("drive_distance", strconv.Itoa(row.ModeValue()))
	case model.ModeDriveTime:
		params.Set("drive_time", strconv.Itoa(row.ModeValue()))
	}

	return c.baseURL + catchmentPath + "?" + params.Encode()
}

// gpsParts prefers the textual coordinates as uploaded so the provider sees
// exactly what validation accepted.
func gpsParts(row *model.Row) (string, string) {
	if parts := strings.SplitN(row.GPSRaw, ",", 2); len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	return strconv.FormatFloat(row.Latitude, 'f', -1, 64),
		strconv.FormatFloat(row.Longitude, 'f', -1, 64)
}

func (c *Client) fetch(ctx context.Context, reqURL string) ([]byte, error) {
	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		body, retryable, err := c.do(ctx, reqURL)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		if attempt < attempts-1 {
			delay := time.Duration(attempt+1) * c.retryBackoff
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil, lastErr
}

// do performs one request. The bool reports whether the failure is safe to
// retry.
func (c *Client) do(ctx context.Context, reqURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create catchment request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("catchment request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, true, fmt.Errorf("read catchment response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, false, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, false, errors.New("Lepton Maps API: Unauthorized (HTTP 401). Your API key is invalid or expired.")
	case resp.StatusCode == http.StatusPaymentRequired:
		return nil, false, errors.New("Lepton Maps API: Not enough credits (HTTP 402). Please check your API quota or upgrade your plan.")
	case resp.StatusCode == http.StatusForbidden:
		return nil, false, errors.New("Lepton Maps API: Forbidden (HTTP 403). Your API key does not have access.")
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("Lepton Maps API: Unexpected status %d: %s", resp.StatusCode, truncate(body, 256))
	default:
		return nil, false, fmt.Errorf("Lepton Maps API: Unexpected status %d: %s", resp.StatusCode, truncate(body, 256))
	}
}

// extractPolygon reduces the provider response to a single-feature
// FeatureCollection holding just the outer ring of the first polygon.
func extractPolygon(body []byte) (string, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decode catchment response: %w", err)
	}

	ring, err := jmespath.Search(outerRingExpr, doc)
	if err != nil {
		return "", fmt.Errorf("extract polygon ring: %w", err)
	}
	ringSlice, ok := ring.([]any)
	if !ok || len(ringSlice) == 0 {
		return "", errors.New("invalid or missing coordinates in geometry")
	}

	collection := map[string]any{
		"type": "FeatureCollection",
		"features": []any{
			map[string]any{
				"type": "Feature",
				"geometry": map[string]any{
					"type":        "Polygon",
					"coordinates": []any{ringSlice},
				},
				"properties": map[string]any{},
			},
		},
	}

	out, err := json.Marshal(collection)
	if err != nil {
		return "", fmt.Errorf("encode polygon: %w", err)
	}
	return string(out), nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
