package tradier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/xhhuango/json"
)

const DefaultBaseURL = "https://api.tradier.com/v1"

var ErrNoToken = errors.New("tradier: missing API token")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tradier: HTTP %d: %s", e.Code, e.Body)
}

// Client talks to the Tradier market data API. BaseURL and HTTP may be left
// empty.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(token string) *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if c.Token == "" {
		return ErrNoToken
	}
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base + path)
	if err != nil {
		return fmt.Errorf("failed to build url: %w", err)
	}
	u.RawQuery = query.Encode()

	r, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	r.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	r.Header.Add("Accept", "application/json")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(r)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	responseData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response data: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: string(responseData)}
	}
	if err := json.Unmarshal(responseData, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

// History returns daily bars for symbol between start and end (YYYY-MM-DD).
func (c *Client) History(ctx context.Context, symbol, start, end string) ([]Bar, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", "daily")
	q.Set("start", start)
	q.Set("end", end)
	q.Set("session_filter", "all")

	history := &QuoteHistory{}
	if err := c.get(ctx, "/markets/history", q, history); err != nil {
		return nil, err
	}
	return history.History.Day, nil
}

// Expirations lists the option expiration dates of symbol.
func (c *Client) Expirations(ctx context.Context, symbol string) ([]string, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("includeAllRoots", "true")

	exp := &OptionExpirations{}
	if err := c.get(ctx, "/markets/options/expirations", q, exp); err != nil {
		return nil, err
	}
	return exp.Expirations.Date, nil
}

// Chain returns every option of symbol expiring on expiration (YYYY-MM-DD).
func (c *Client) Chain(ctx context.Context, symbol, expiration string) ([]Option, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("expiration", expiration)

	chain := &OptionChain{}
	if err := c.get(ctx, "/markets/options/chains", q, chain); err != nil {
		return nil, err
	}
	return chain.Options.Option, nil
}

// NearestExpiration picks the first expiration at least minDays after now.
func NearestExpiration(expirations []string, now time.Time, minDays int) (string, error) {
	for _, exp := range expirations {
		expirationTime, err := time.Parse("2006-01-02", exp)
		if err != nil {
			return "", fmt.Errorf("failed to parse expiration date: %w", err)
		}
		if int(expirationTime.Sub(now).Hours()/24) >= minDays {
			return exp, nil
		}
	}
	return "", fmt.Errorf("tradier: no expiration %d days or more out", minDays)
}
