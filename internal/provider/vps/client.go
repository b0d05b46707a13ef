// Package vps is the real-time quote feed. Equity prices arrive in
// thousands of VND; index values in points.
package vps

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
	"resty.dev/v3"

	"quoteserve/internal/model"
	"quoteserve/internal/provider"
)

// indexCodes maps index symbols to the feed's market codes.
var indexCodes = map[string]string{
	"VNINDEX":    "10",
	"VN30":       "11",
	"HNXINDEX":   "02",
	"HNX30":      "12",
	"UPCOMINDEX": "03",
}

// stockRow is one row of getliststockdata.
type stockRow struct {
	Symbol    string              `json:"sym"`
	LastPrice decimal.NullDecimal `json:"lastPrice"`
	Reference decimal.NullDecimal `json:"r"`
	Ceiling   decimal.NullDecimal `json:"c"`
	Floor     decimal.NullDecimal `json:"f"`
	Volume    decimal.NullDecimal `json:"lot"`
}

// indexRow is one row of getlistindexdetail.
type indexRow struct {
	Code      string              `json:"mc"`
	Value     decimal.NullDecimal `json:"cIndex"`
	Reference decimal.NullDecimal `json:"oIndex"`
	Volume    decimal.NullDecimal `json:"vol"`
	Turnover  decimal.NullDecimal `json:"value"`
}

// Client fetches batch quotes from the VPS data feed.
type Client struct {
	client  *resty.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// New creates a VPS client.
func New(cfg provider.HTTPConfig) *Client {
	return &Client{
		client:  provider.NewHTTPClient(cfg),
		limiter: provider.NewLimiter(cfg.RPS, cfg.Burst),
		now:     time.Now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string { return provider.NameVPS }

// Close releases the HTTP client.
func (c *Client) Close() error { return c.client.Close() }

// FetchQuotes returns one sample per symbol the feed knows. Indices and
// equities are requested from their own endpoints.
func (c *Client) FetchQuotes(ctx context.Context, symbols []string) ([]model.ProviderSample, error) {
	var stocks, codes []string
	symbolByCode := make(map[string]string)
	for _, s := range symbols {
		if code, ok := indexCodes[s]; ok {
			codes = append(codes, code)
			symbolByCode[code] = s
			continue
		}
		stocks = append(stocks, s)
	}

	var out []model.ProviderSample
	if len(codes) > 0 {
		rows, err := c.fetchIndices(ctx, codes)
		if err != nil {
			return nil, err
		}
		fetched := c.now()
		for _, r := range rows {
			sym, ok := symbolByCode[r.Code]
			if !ok {
				continue
			}
			out = append(out, model.ProviderSample{
				Provider:  provider.NameVPS,
				Symbol:    sym,
				Unit:      model.UnitPoints,
				FetchedAt: fetched,
				Raw: model.RawQuote{
					Price:     r.Value,
					Reference: r.Reference,
					Volume:    r.Volume,
					Turnover:  r.Turnover,
				},
			})
		}
	}

	if len(stocks) > 0 {
		rows, err := c.fetchStocks(ctx, stocks)
		if err != nil {
			return nil, err
		}
		fetched := c.now()
		for _, r := range rows {
			if r.Symbol == "" {
				continue
			}
			out = append(out, model.ProviderSample{
				Provider:  provider.NameVPS,
				Symbol:    strings.ToUpper(r.Symbol),
				FetchedAt: fetched,
				Raw: model.RawQuote{
					Price:     r.LastPrice,
					Reference: r.Reference,
					Ceiling:   r.Ceiling,
					Floor:     r.Floor,
					Volume:    r.Volume,
				},
			})
		}
	}
	return out, nil
}

func (c *Client) fetchStocks(ctx context.Context, symbols []string) ([]stockRow, error) {
	if err := provider.Wait(ctx, provider.NameVPS, c.limiter); err != nil {
		return nil, err
	}
	var rows []stockRow
	resp, err := c.client.R().
		SetContext(ctx).
		SetRawPathParam("symbols", strings.Join(symbols, ",")).
		SetExpectResponseContentType("application/json").
		SetResult(&rows).
		Get("/getliststockdata/{symbols}")
	if err := provider.CheckResponse(provider.NameVPS, resp, err); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) fetchIndices(ctx context.Context, codes []string) ([]indexRow, error) {
	if err := provider.Wait(ctx, provider.NameVPS, c.limiter); err != nil {
		return nil, err
	}
	var rows []indexRow
	resp, err := c.client.R().
		SetContext(ctx).
		SetRawPathParam("codes", strings.Join(codes, ",")).
		SetExpectResponseContentType("application/json").
		SetResult(&rows).
		Get("/getlistindexdetail/{codes}")
	if err := provider.CheckResponse(provider.NameVPS, resp, err); err != nil {
		return nil, err
	}
	return rows, nil
}
