// Package ratios fetches per-symbol financial ratios (P/E, P/B, ROE, ROA,
// market cap).
package ratios

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
	"resty.dev/v3"

	"quoteserve/internal/model"
	"quoteserve/internal/provider"
)

type ratioResponse struct {
	Data *struct {
		PE        decimal.NullDecimal `json:"pe"`
		PB        decimal.NullDecimal `json:"pb"`
		ROE       decimal.NullDecimal `json:"roe"`
		ROA       decimal.NullDecimal `json:"roa"`
		MarketCap decimal.NullDecimal `json:"marketCap"` // VND
	} `json:"data"`
}

// Client fetches ratio summaries.
type Client struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// New creates a ratios client.
func New(cfg provider.HTTPConfig) *Client {
	return &Client{
		client:  provider.NewHTTPClient(cfg),
		limiter: provider.NewLimiter(cfg.RPS, cfg.Burst),
	}
}

// Name returns the provider name.
func (c *Client) Name() string { return provider.NameRatios }

// Close releases the HTTP client.
func (c *Client) Close() error { return c.client.Close() }

// FetchRatios returns the latest ratio summary for symbol. Market cap is
// converted to billions of VND; missing ratios are zero.
func (c *Client) FetchRatios(ctx context.Context, symbol string) (model.Ratios, error) {
	if err := provider.Wait(ctx, provider.NameRatios, c.limiter); err != nil {
		return model.Ratios{}, err
	}

	var result ratioResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetExpectResponseContentType("application/json").
		SetResult(&result).
		Get("/v1/company/{symbol}/ratio-summary")
	if err := provider.CheckResponse(provider.NameRatios, resp, err); err != nil {
		return model.Ratios{}, err
	}
	if result.Data == nil {
		return model.Ratios{}, provider.NewEmpty(provider.NameRatios, "no ratios for "+symbol)
	}

	d := result.Data
	return model.Ratios{
		Symbol:    symbol,
		PE:        value(d.PE),
		PB:        value(d.PB),
		ROE:       value(d.ROE),
		ROA:       value(d.ROA),
		MarketCap: value(d.MarketCap) / 1e9,
	}, nil
}

func value(n decimal.NullDecimal) float64 {
	if !n.Valid {
		return 0
	}
	return n.Decimal.InexactFloat64()
}
