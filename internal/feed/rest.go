// Package feed supplies historical bars and a live bar-update stream per
// symbol + interval, against a Binance-compatible market data API.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"fibwatch/internal/model"
)

// DefaultRESTBase is the Binance spot REST endpoint.
const DefaultRESTBase = "https://api.binance.com"

// Client fetches historical klines over REST. Transport failures are
// returned to the caller, which logs them and leaves prior data in place.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a REST client. An empty baseURL uses DefaultRESTBase.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultRESTBase
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// FetchKlines requests up to limit bars for symbol+interval, ordered by
// time ascending.
func (c *Client) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Bar, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	u := c.baseURL + "/api/v3/klines?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("klines: create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("klines: fetch %s %s: %w", symbol, interval, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("klines: unexpected status %d for %s %s", resp.StatusCode, symbol, interval)
	}

	// Binance kline rows are positional arrays:
	// [openTime, open, high, low, close, volume, closeTime, ...]
	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("klines: decode: %w", err)
	}

	bars := make([]model.Bar, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		bar, err := parseKlineRow(symbol, row)
		if err != nil {
			return nil, fmt.Errorf("klines: parse row: %w", err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseKlineRow(symbol string, row []json.RawMessage) (model.Bar, error) {
	var openMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return model.Bar{}, err
	}
	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return model.Bar{}, err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Bar{}, err
		}
		vals[i] = v
	}
	return model.Bar{
		Symbol: symbol,
		TS:     time.UnixMilli(openMs).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
