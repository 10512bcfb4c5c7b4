package flightapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yegors/skytrail/pkg/logger"
)

var (
	// ErrStatus is returned when the backend answers with a non-2xx status code
	ErrStatus = errors.New("unexpected status code")
	// ErrPayload is returned when the response body does not have the expected shape
	ErrPayload = errors.New("malformed payload")
)

// maxBodyBytes bounds how much of a response is read
const maxBodyBytes = 8 << 20

// Client talks to the flights backend
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logger.Logger
}

// NewClient creates a new flights API client
func NewClient(baseURL string, timeout time.Duration, loggerObj *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  loggerObj.Named("flightapi"),
	}
}

// FetchRoster fetches the full aircraft roster.
// Any status marker other than "success", or a missing data field, is an ErrPayload.
func (c *Client) FetchRoster(ctx context.Context) ([]Flight, error) {
	body, err := c.get(ctx, c.baseURL+"/api/flights")
	if err != nil {
		return nil, err
	}

	var payload rosterPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	if payload.Status == nil {
		return nil, fmt.Errorf("%w: missing status", ErrPayload)
	}
	if *payload.Status != StatusSuccess {
		return nil, fmt.Errorf("%w: status %q", ErrPayload, *payload.Status)
	}
	if payload.Data == nil {
		return nil, fmt.Errorf("%w: missing data", ErrPayload)
	}

	c.logger.Debug("Fetched roster", logger.Int("aircraft_count", len(*payload.Data)))

	return *payload.Data, nil
}

// FetchDetails fetches route details for a single aircraft.
// Departure and arrival are returned verbatim.
func (c *Client) FetchDetails(ctx context.Context, icao24 string) (*Details, error) {
	body, err := c.get(ctx, c.baseURL+"/api/flights/"+url.PathEscape(icao24))
	if err != nil {
		return nil, err
	}

	var details Details
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}

	c.logger.Debug("Fetched details",
		logger.String("icao24", icao24),
		logger.String("departure", details.Departure),
		logger.String("arrival", details.Arrival))

	return &details, nil
}

func (c *Client) get(ctx context.Context, urlStr string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
