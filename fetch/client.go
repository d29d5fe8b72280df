package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kalebr/tradeassist/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// BaseURL is the production market data provider endpoint.
	BaseURL = "https://financialmodelingprep.com/stable"
	// requestTimeout bounds every provider request.
	requestTimeout = time.Second * 5
)

// ClientConfig represents the configuration for the market data client.
type ClientConfig struct {
	// APIKey is the provider api key.
	APIKey string
	// BaseURL is the provider endpoint.
	BaseURL string
	// Logger represents the client logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ClientConfig) Validate() error {
	var errs error

	if cfg.APIKey == "" {
		errs = errors.Join(errs, fmt.Errorf("api key cannot be an empty string"))
	}
	if cfg.BaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("base url cannot be an empty string"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Client represents the market data provider client.
type Client struct {
	cfg   *ClientConfig
	httpc http.Client
	loc   *time.Location
}

// Ensure the client implements the MarketSource interface.
var _ shared.MarketSource = (*Client)(nil)

// NewClient initializes a new market data client.
func NewClient(cfg *ClientConfig) (*Client, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating client config: %w", err)
	}

	loc, err := time.LoadLocation(shared.NewYorkLocation)
	if err != nil {
		return nil, fmt.Errorf("loading exchange timezone: %w", err)
	}

	return &Client{
		cfg:   cfg,
		httpc: http.Client{Timeout: requestTimeout},
		loc:   loc,
	}, nil
}

// formURL creates full urls including parameters for the api.
func (c *Client) formURL(path string, params string) string {
	var buf bytes.Buffer
	buf.WriteString(c.cfg.BaseURL)
	buf.WriteString(path)
	buf.WriteString("?")
	buf.WriteString(params)

	return buf.String()
}

// intervalPath returns the provider history path for the provided interval.
func intervalPath(interval shared.Interval) (string, error) {
	switch interval {
	case shared.OneDay:
		return "/historical-price-eod/full", nil
	case shared.OneHour:
		return "/historical-chart/1hour", nil
	case shared.ThirtyMinute:
		return "/historical-chart/30min", nil
	case shared.FiveMinute:
		return "/historical-chart/5min", nil
	case shared.OneMinute:
		return "/historical-chart/1min", nil
	default:
		return "", fmt.Errorf("unknown interval provided: %s", interval)
	}
}

// get issues a provider request and returns the response body. Rate
// limits and provider outages map to their shared sentinels so callers
// can degrade instead of failing.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	params.Add("apikey", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.formURL(path, params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, shared.ErrRateLimited
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, shared.ErrProviderUnavailable
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected provider status %d for %s", resp.StatusCode, path)
	}

	return body, nil
}

// FetchCandles fetches up to limit historical candles for the provided
// symbol, oldest first. It satisfies shared.MarketSource.
func (c *Client) FetchCandles(ctx context.Context, symbol string, interval shared.Interval, limit int) ([]shared.Candle, error) {
	path, err := intervalPath(interval)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("symbol", symbol)

	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, fmt.Errorf("fetching %s history for %s: %w", interval, symbol, err)
	}

	candles, err := shared.ParseCandles(gjson.ParseBytes(body).Array(), symbol, interval, c.loc)
	if err != nil {
		return nil, fmt.Errorf("parsing %s history for %s: %w", interval, symbol, err)
	}

	shared.SortCandles(candles)
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	return candles, nil
}

// FetchQuote fetches the current price of the provided symbol. It
// satisfies shared.MarketSource.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Add("symbol", symbol)

	body, err := c.get(ctx, "/quote", params)
	if err != nil {
		return 0, fmt.Errorf("fetching quote for %s: %w", symbol, err)
	}

	price := gjson.GetBytes(body, "0.price")
	if !price.Exists() {
		return 0, fmt.Errorf("no quote returned for %s", symbol)
	}

	return price.Float(), nil
}
