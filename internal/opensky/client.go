package opensky

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/olneyjr/flightdeck/pkg/logger"
)

const (
	// Tokens are refreshed this long before their reported expiry
	tokenExpiryMargin = 300 * time.Second

	// Backoff suggested to callers when a 429 carries no retry header
	defaultRetryAfter = 60 * time.Second

	retryAfterHeader = "X-Rate-Limit-Retry-After-Seconds"
)

// Credentials holds the OAuth2 client-credentials pair. Immutable after
// construction.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Config contains the settings needed to construct a Client
type Config struct {
	BaseURL     string
	TokenURL    string
	Credentials Credentials
	Timeout     time.Duration
}

// Client talks to the OpenSky Network REST API. It owns OAuth2 token
// acquisition and caching and the translation of the raw tabular
// /states/all response into typed records.
//
// The token cache is guarded by a mutex so concurrent callers cannot race
// on the expiry check.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokenURL   string
	creds      Credentials
	logger     *logger.Logger

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a new OpenSky API client
func NewClient(cfg Config, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tokenURL:   cfg.TokenURL,
		creds:      cfg.Credentials,
		logger:     log.Named("opensky"),
	}
}

// Authenticate returns a valid bearer token, requesting a new one from the
// token endpoint when the cached token is absent or inside the expiry
// margin. A non-2xx token response yields an *AuthError.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.creds.ClientID)
	form.Set("client_secret", c.creds.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.Debug("Requesting OAuth2 token", logger.String("token_url", c.tokenURL))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tokResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokResp.AccessToken == "" {
		return "", fmt.Errorf("token response did not contain access_token")
	}

	c.token = tokResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokResp.ExpiresIn)*time.Second - tokenExpiryMargin)

	c.logger.Debug("Obtained OAuth2 token",
		logger.Int("expires_in_secs", tokResp.ExpiresIn),
		logger.Time("cached_until", c.tokenExpiry))

	return c.token, nil
}

// FetchStates retrieves the current state vectors, always requesting the
// extended schema so the category column is included when the server
// supports it. An absent or null states array yields an empty batch, not
// an error. A 429 response yields a *RateLimitError; the client performs
// no automatic retry.
func (c *Client) FetchStates(ctx context.Context, req StateRequest) (*StateBatch, error) {
	params := url.Values{}
	params.Set("extended", "1")
	if req.BBox != nil {
		params.Set("lamin", formatCoord(req.BBox.LatMin))
		params.Set("lamax", formatCoord(req.BBox.LatMax))
		params.Set("lomin", formatCoord(req.BBox.LonMin))
		params.Set("lomax", formatCoord(req.BBox.LonMax))
	}
	if req.Time > 0 {
		params.Set("time", strconv.FormatInt(req.Time, 10))
	}
	for _, addr := range req.ICAO24 {
		params.Add("icao24", addr)
	}

	body, err := c.get(ctx, "/states/all", params)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Time   int64  `json:"time"`
		States [][]any `json:"states"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse states response: %w", err)
	}

	batch := &StateBatch{Time: time.Unix(raw.Time, 0).UTC()}
	if len(raw.States) == 0 {
		batch.States = []StateVector{}
		c.logger.Debug("States response contained no rows")
		return batch, nil
	}

	// The width of the first row determines the schema for the whole
	// batch: 17 columns is the base schema, 18 appends the category.
	batch.HasCategory = len(raw.States[0]) >= 18
	batch.States = make([]StateVector, 0, len(raw.States))
	for _, row := range raw.States {
		batch.States = append(batch.States, decodeStateRow(row, batch.HasCategory))
	}

	c.logger.Debug("Fetched state vectors",
		logger.Int("count", len(batch.States)),
		logger.Bool("has_category", batch.HasCategory))

	return batch, nil
}

// FlightsInInterval returns all flights seen in [begin, end]. Request
// failures are swallowed and degrade to an empty result; callers must not
// rely on this endpoint failing loudly.
func (c *Client) FlightsInInterval(ctx context.Context, begin, end int64) []Flight {
	params := url.Values{}
	params.Set("begin", strconv.FormatInt(begin, 10))
	params.Set("end", strconv.FormatInt(end, 10))
	return c.fetchFlights(ctx, "/flights/all", params)
}

// ArrivalsForAirport returns flights that arrived at the given airport
// (ICAO code) in [begin, end]. Failures degrade to an empty result.
func (c *Client) ArrivalsForAirport(ctx context.Context, airport string, begin, end int64) []Flight {
	params := url.Values{}
	params.Set("airport", airport)
	params.Set("begin", strconv.FormatInt(begin, 10))
	params.Set("end", strconv.FormatInt(end, 10))
	return c.fetchFlights(ctx, "/flights/arrival", params)
}

// DeparturesForAirport returns flights that departed from the given
// airport (ICAO code) in [begin, end]. Failures degrade to an empty result.
func (c *Client) DeparturesForAirport(ctx context.Context, airport string, begin, end int64) []Flight {
	params := url.Values{}
	params.Set("airport", airport)
	params.Set("begin", strconv.FormatInt(begin, 10))
	params.Set("end", strconv.FormatInt(end, 10))
	return c.fetchFlights(ctx, "/flights/departure", params)
}

func (c *Client) fetchFlights(ctx context.Context, endpoint string, params url.Values) []Flight {
	body, err := c.get(ctx, endpoint, params)
	if err != nil {
		c.logger.Warn("Flight query failed, returning empty result",
			logger.String("endpoint", endpoint),
			logger.Error(err))
		return []Flight{}
	}

	var flights []Flight
	if err := json.Unmarshal(body, &flights); err != nil {
		c.logger.Warn("Failed to parse flight query response, returning empty result",
			logger.String("endpoint", endpoint),
			logger.Error(err))
		return []Flight{}
	}
	if flights == nil {
		flights = []Flight{}
	}
	return flights
}

// get issues an authenticated GET against the API and returns the raw body
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	urlStr := c.baseURL + endpoint
	if len(params) > 0 {
		urlStr += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get(retryAfterHeader))}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

// decodeStateRow binds one fixed-order-column row to a StateVector. Short
// rows are accepted as-is: the column list is effectively truncated to
// whatever the row carries.
func decodeStateRow(row []any, hasCategory bool) StateVector {
	sv := StateVector{
		ICAO24:        stringAt(row, 0),
		Callsign:      strings.TrimSpace(stringAt(row, 1)),
		OriginCountry: stringAt(row, 2),
		TimePosition:  int64PtrAt(row, 3),
		Longitude:     floatPtrAt(row, 5),
		Latitude:      floatPtrAt(row, 6),
		BaroAltitude:  floatPtrAt(row, 7),
		OnGround:      boolAt(row, 8),
		Velocity:      floatPtrAt(row, 9),
		TrueTrack:     floatPtrAt(row, 10),
		VerticalRate:  floatPtrAt(row, 11),
		GeoAltitude:   floatPtrAt(row, 13),
		Squawk:        stringAt(row, 14),
		SPI:           boolAt(row, 15),
	}
	if lc := int64PtrAt(row, 4); lc != nil {
		sv.LastContact = *lc
	}
	if src := floatPtrAt(row, 16); src != nil {
		sv.PositionSource = int(*src)
	}
	if sensors, ok := at(row, 12).([]any); ok {
		for _, s := range sensors {
			if v, ok := s.(float64); ok {
				sv.Sensors = append(sv.Sensors, int(v))
			}
		}
	}
	if hasCategory {
		if cat := floatPtrAt(row, 17); cat != nil {
			sv.Category = int(*cat)
		}
	}
	return sv
}

func at(row []any, i int) any {
	if i >= len(row) {
		return nil
	}
	return row[i]
}

func stringAt(row []any, i int) string {
	if v, ok := at(row, i).(string); ok {
		return v
	}
	return ""
}

func boolAt(row []any, i int) bool {
	if v, ok := at(row, i).(bool); ok {
		return v
	}
	return false
}

func floatPtrAt(row []any, i int) *float64 {
	if v, ok := at(row, i).(float64); ok {
		return &v
	}
	return nil
}

func int64PtrAt(row []any, i int) *int64 {
	if v, ok := at(row, i).(float64); ok {
		n := int64(v)
		return &n
	}
	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
