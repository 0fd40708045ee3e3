// Package yahoo is a thin client for the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Client fetches daily price history from Yahoo Finance.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Yahoo Finance client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "yahoo").Logger(),
	}
}

// NewClientWithBaseURL creates a client pointed at a custom endpoint.
// Used by tests to target an httptest server.
func NewClientWithBaseURL(log zerolog.Logger, baseURL string) *Client {
	c := NewClient(log)
	c.baseURL = baseURL
	return c
}

// Bar is a single daily observation. Close is the adjusted close when
// Yahoo provides one, the raw close otherwise.
type Bar struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// chartResponse mirrors the v8 chart API payload.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// History fetches daily closing prices for symbol between start and end
// (inclusive). An unknown symbol yields an empty slice, not an error;
// transport and decode failures are errors.
func (c *Client) History(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	reqURL := c.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol)

	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("period1", fmt.Sprintf("%d", start.Unix()))
	// period2 is exclusive, push it past the end of the requested day.
	params.Add("period2", fmt.Sprintf("%d", end.Add(24*time.Hour).Unix()))
	params.Add("events", "history")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Yahoo rejects requests without a browser-like user agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	defer resp.Body.Close()

	// The chart API answers 404 for symbols it does not know.
	if resp.StatusCode == http.StatusNotFound {
		c.log.Debug().Str("symbol", symbol).Msg("Symbol not found")
		return []Bar{}, nil
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chart API returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var result chartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Chart.Error != nil {
		// "No data found" style errors mean the symbol resolved to nothing.
		c.log.Debug().Str("symbol", symbol).Interface("error", result.Chart.Error).Msg("Chart API error for symbol")
		return []Bar{}, nil
	}

	if len(result.Chart.Result) == 0 {
		return []Bar{}, nil
	}

	chartData := result.Chart.Result[0]
	if len(chartData.Indicators.Quote) == 0 {
		return []Bar{}, nil
	}

	quote := chartData.Indicators.Quote[0]

	var adjClose []float64
	if len(chartData.Indicators.AdjClose) > 0 {
		adjClose = chartData.Indicators.AdjClose[0].AdjClose
	}

	bars := make([]Bar, 0, len(chartData.Timestamp))
	for i, ts := range chartData.Timestamp {
		if i >= len(quote.Close) {
			continue
		}
		// Yahoo marks missing sessions with zeroed values.
		if quote.Close[i] == 0 {
			continue
		}

		close := quote.Close[i]
		if i < len(adjClose) && adjClose[i] != 0 {
			close = adjClose[i]
		}

		// Bars carry the session open timestamp; keep calendar dates only.
		t := time.Unix(ts, 0).UTC()
		bars = append(bars, Bar{
			Date:  time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
			Close: close,
		})
	}

	c.log.Debug().
		Str("symbol", symbol).
		Int("count", len(bars)).
		Msg("Fetched price history")

	return bars, nil
}

// CloseOn returns the closing price of each symbol on the given trading
// day. The chart API has no multi-symbol form, so the batch fans out to
// one request per symbol; a failed symbol is skipped, not fatal to the
// batch. Symbols with no bar on that day are absent from the result.
func (c *Client) CloseOn(ctx context.Context, symbols []string, date time.Time) (map[string]float64, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	closes := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bars, err := c.History(ctx, symbol, day, day)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch close, skipping symbol")
			continue
		}
		for _, bar := range bars {
			if bar.Date.Equal(day) {
				closes[symbol] = bar.Close
				break
			}
		}
	}

	return closes, nil
}
