package adsb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yegors/ogn-tracker/internal/spatial"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

// MaxRadiusNM is the largest radius the point endpoint accepts
const MaxRadiusNM = 250

// Client fetches aircraft around a point from an adsb.lol compatible API
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logger.Logger
}

// NewClient creates a new ADS-B client
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     log.Named("adsb-cli"),
	}
}

// PointURL returns the request URL for a circle of radiusKm around lat/lon
func (c *Client) PointURL(lat, lon, radiusKm float64) string {
	radiusNM := int(math.Min(spatial.KmToNM(radiusKm), MaxRadiusNM))
	return fmt.Sprintf("%s/v2/point/%s/%s/%d", c.baseURL,
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lon, 'f', -1, 64),
		radiusNM)
}

// FetchPoint fetches every target within radiusKm of lat/lon
func (c *Client) FetchPoint(ctx context.Context, lat, lon, radiusKm float64) ([]Target, error) {
	urlStr := c.PointURL(lat, lon, radiusKm)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Fetching ADS-B data", logger.String("url", urlStr))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	targets, err := DecodePoint(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Successfully fetched ADS-B data", logger.Int("aircraft_count", len(targets)))
	return targets, nil
}

// DecodePoint decodes a point response. The API answers either with an
// object carrying an "ac" array or with a bare array.
func DecodePoint(body []byte) ([]Target, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var targets []Target
		if err := json.Unmarshal(trimmed, &targets); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
		return targets, nil
	}

	var resp PointResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if resp.AC == nil {
		return []Target{}, nil
	}
	return resp.AC, nil
}
