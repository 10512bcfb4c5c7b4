package opensky

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/yegors/skytrail/pkg/logger"
)

// tokenExpiryMargin is subtracted from the advertised token lifetime
const tokenExpiryMargin = 60 * time.Second

// ErrNoCredentials is returned by Token when no client credentials are configured
var ErrNoCredentials = errors.New("opensky credentials not configured")

// StatusError is returned when OpenSky answers with a non-200 status code
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected opensky status code: %d", e.StatusCode)
}

// IsRateLimited reports whether err is an upstream 429
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests
}

// IsStatus reports whether err is any non-200 upstream answer
func IsStatus(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// Config configures the OpenSky client
type Config struct {
	BaseURL           string
	TokenURL          string
	ClientID          string
	ClientSecret      string
	Timeout           time.Duration
	RequestsPerMinute float64 // 0 disables throttling
}

// StateVector is the subset of an OpenSky state vector the flights backend uses
type StateVector struct {
	ICAO24        string
	Callsign      *string
	OriginCountry string
	Longitude     *float64
	Latitude      *float64
	TrueTrack     *float64
}

// Flight is one entry of the flights/aircraft endpoint
type Flight struct {
	ICAO24              string  `json:"icao24"`
	FirstSeen           int64   `json:"firstSeen"`
	LastSeen            int64   `json:"lastSeen"`
	EstDepartureAirport *string `json:"estDepartureAirport"`
	EstArrivalAirport   *string `json:"estArrivalAirport"`
	Callsign            *string `json:"callsign"`
}

// Client talks to the OpenSky Network REST API
type Client struct {
	httpClient *http.Client
	cfg        Config
	limiter    *rate.Limiter
	logger     *logger.Logger
	now        func() time.Time

	// Cached OAuth2 token; concurrent refreshes share one request
	token       string
	tokenExpiry time.Time
	tokenMu     sync.Mutex
	tokenGroup  singleflight.Group
}

// NewClient creates a new OpenSky client
func NewClient(cfg Config, loggerObj *logger.Logger) *Client {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(cfg.RequestsPerMinute / 60.0)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  loggerObj.Named("opensky"),
		now:     time.Now,
	}
}

// Token returns a valid access token, requesting a new one with the
// client-credentials grant when the cached one has expired.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	if c.token != "" && c.now().Before(c.tokenExpiry) {
		token := c.token
		c.tokenMu.Unlock()
		return token, nil
	}
	c.tokenMu.Unlock()

	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return "", ErrNoCredentials
	}

	// The shared request outlives any single caller's context
	ch := c.tokenGroup.DoChan("token", func() (interface{}, error) {
		reqCtx := context.WithoutCancel(ctx)
		if c.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(reqCtx, c.cfg.Timeout)
			defer cancel()
		}
		return c.requestToken(reqCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			c.logger.Debug("Shared in-flight OpenSky token request")
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for opensky token: %w", ctx.Err())
	}
}

func (c *Client) requestToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.Debug("Requesting OpenSky OAuth2 token", logger.String("token_url", c.cfg.TokenURL))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to request OpenSky token", logger.Error(err))
		return "", fmt.Errorf("failed to request opensky token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("OpenSky token endpoint returned non-200", logger.Int("status", resp.StatusCode), logger.String("body", string(body)))
		return "", fmt.Errorf("opensky token endpoint error: %w", &StatusError{StatusCode: resp.StatusCode, Body: string(body)})
	}

	var tokResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokResp); err != nil {
		c.logger.Error("Failed to decode OpenSky token response", logger.Error(err))
		return "", fmt.Errorf("failed to decode opensky token response: %w", err)
	}
	if tokResp.AccessToken == "" {
		return "", fmt.Errorf("opensky token response did not contain access_token")
	}

	expiry := c.now().Add(time.Duration(tokResp.ExpiresIn)*time.Second - tokenExpiryMargin)

	c.tokenMu.Lock()
	c.token = tokResp.AccessToken
	c.tokenExpiry = expiry
	c.tokenMu.Unlock()

	c.logger.Info("Obtained new OpenSky access token", logger.Time("expires_at", expiry))

	return tokResp.AccessToken, nil
}

// States fetches all current state vectors worldwide
func (c *Client) States(ctx context.Context, token string) ([]StateVector, error) {
	var osResp struct {
		Time   int64           `json:"time"`
		States [][]interface{} `json:"states"`
	}
	if err := c.getJSON(ctx, token, c.cfg.BaseURL+"/states/all", &osResp); err != nil {
		return nil, err
	}

	states := make([]StateVector, 0, len(osResp.States))
	for _, s := range osResp.States {
		states = append(states, parseStateVector(s))
	}

	c.logger.Debug("Fetched OpenSky state vectors", logger.Int("count", len(states)))

	return states, nil
}

// FlightsByAircraft fetches the flights of one aircraft within [begin, end]
func (c *Client) FlightsByAircraft(ctx context.Context, token, icao24 string, begin, end time.Time) ([]Flight, error) {
	q := url.Values{}
	q.Set("icao24", icao24)
	q.Set("begin", fmt.Sprintf("%d", begin.Unix()))
	q.Set("end", fmt.Sprintf("%d", end.Unix()))

	var flights []Flight
	if err := c.getJSON(ctx, token, c.cfg.BaseURL+"/flights/aircraft?"+q.Encode(), &flights); err != nil {
		return nil, err
	}

	c.logger.Debug("Fetched OpenSky flights",
		logger.String("icao24", icao24),
		logger.Int("count", len(flights)))

	return flights, nil
}

func (c *Client) getJSON(ctx context.Context, token, urlStr string, target interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return fmt.Errorf("failed to create OpenSky request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to execute OpenSky request", logger.Error(err), logger.String("url", urlStr))
		return fmt.Errorf("failed to execute opensky request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("Unexpected OpenSky status code", logger.Int("status_code", resp.StatusCode), logger.String("url", urlStr))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		c.logger.Error("Failed to decode OpenSky response", logger.Error(err))
		return fmt.Errorf("failed to parse opensky JSON: %w", err)
	}
	return nil
}

// parseStateVector extracts fields by position according to the OpenSky docs
func parseStateVector(s []interface{}) StateVector {
	var sv StateVector

	if len(s) > 0 {
		if v, ok := s[0].(string); ok {
			sv.ICAO24 = v
		}
	}
	if len(s) > 1 {
		if v, ok := s[1].(string); ok {
			sv.Callsign = &v
		}
	}
	if len(s) > 2 {
		if v, ok := s[2].(string); ok {
			sv.OriginCountry = v
		}
	}
	sv.Longitude = floatAt(s, 5)
	sv.Latitude = floatAt(s, 6)
	sv.TrueTrack = floatAt(s, 10)

	return sv
}

func floatAt(s []interface{}, i int) *float64 {
	if len(s) <= i {
		return nil
	}
	v, ok := s[i].(float64)
	if !ok || math.IsNaN(v) {
		return nil
	}
	return &v
}
