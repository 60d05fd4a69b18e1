package gains

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/asset-allocation/internal/models"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 2 // requests per second
)

// Client downloads daily price history as CSV (Date,Open,High,Low,Close,...)
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithRateLimit sets the request rate
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log.With().Str("component", "price_client").Logger()
	}
}

// NewClient creates a price history client rooted at baseURL
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-200 response from the price service
type APIError struct {
	StatusCode int
	Ticker     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("price service error for %s: %s (status: %d)", e.Ticker, e.Message, e.StatusCode)
}

// Fetch returns the daily closes of ticker between from and to inclusive
func (c *Client) Fetch(ctx context.Context, ticker string, from, to time.Time) ([]*models.PriceDataDaily, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("period1", strconv.FormatInt(models.TruncateDate(from).Unix(), 10))
	params.Set("period2", strconv.FormatInt(models.TruncateDate(to).AddDate(0, 0, 1).Unix(), 10))
	params.Set("interval", "1d")
	params.Set("events", "history")
	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(ticker), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.log.Debug().Str("ticker", ticker).Msg("Price history request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{StatusCode: resp.StatusCode, Ticker: ticker, Message: strings.TrimSpace(string(body))}
	}

	prices, err := parseHistory(ticker, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse history for %s: %w", ticker, err)
	}
	return prices, nil
}

func parseHistory(ticker string, r io.Reader) ([]*models.PriceDataDaily, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, err
	}
	dateCol, closeCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "Date":
			dateCol = i
		case "Close":
			closeCol = i
		}
	}
	if dateCol < 0 || closeCol < 0 {
		return nil, fmt.Errorf("missing Date or Close column in %v", header)
	}

	var prices []*models.PriceDataDaily
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if dateCol >= len(record) || closeCol >= len(record) {
			continue
		}
		date, err := models.ParseDate(strings.TrimSpace(record[dateCol]))
		if err != nil {
			return nil, err
		}
		closeStr := strings.TrimSpace(record[closeCol])
		if closeStr == "" || closeStr == "null" {
			continue
		}
		closePrice, err := decimal.NewFromString(closeStr)
		if err != nil {
			return nil, fmt.Errorf("invalid close %q on %s", closeStr, date.Format(models.DateLayout))
		}
		prices = append(prices, &models.PriceDataDaily{Symbol: ticker, Date: date, Close: closePrice})
	}
	return prices, nil
}
