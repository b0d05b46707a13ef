// Package vci is the board snapshot feed and the source of intraday 1-minute
// bars. Equity prices arrive in raw VND.
package vci

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
	"resty.dev/v3"

	"quoteserve/internal/markethours"
	"quoteserve/internal/model"
	"quoteserve/internal/provider"
)

// boardRow is one row of the price board.
type boardRow struct {
	ListingInfo struct {
		Symbol   string              `json:"symbol"`
		RefPrice decimal.NullDecimal `json:"refPrice"`
		Ceiling  decimal.NullDecimal `json:"ceiling"`
		Floor    decimal.NullDecimal `json:"floor"`
	} `json:"listingInfo"`
	MatchPrice struct {
		MatchPrice        decimal.NullDecimal `json:"matchPrice"`
		AccumulatedVolume decimal.NullDecimal `json:"accumulatedVolume"`
		AccumulatedValue  decimal.NullDecimal `json:"accumulatedValue"`
	} `json:"matchPrice"`
}

type boardRequest struct {
	Symbols []string `json:"symbols"`
}

// chartSeries is the columnar OHLCV payload for one symbol.
type chartSeries struct {
	Symbol string            `json:"symbol"`
	Close  []decimal.Decimal `json:"c"`
	Volume []decimal.Decimal `json:"v"`
	Time   []string          `json:"t"` // unix seconds as strings
}

type chartRequest struct {
	TimeFrame string   `json:"timeFrame"`
	Symbols   []string `json:"symbols"`
	To        int64    `json:"to"`
	CountBack int      `json:"countBack"`
}

// Client fetches board snapshots and intraday bars from VCI.
type Client struct {
	client  *resty.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// New creates a VCI client.
func New(cfg provider.HTTPConfig) *Client {
	return &Client{
		client:  provider.NewHTTPClient(cfg),
		limiter: provider.NewLimiter(cfg.RPS, cfg.Burst),
		now:     time.Now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string { return provider.NameVCI }

// Close releases the HTTP client.
func (c *Client) Close() error { return c.client.Close() }

// FetchQuotes returns board snapshot samples for symbols.
func (c *Client) FetchQuotes(ctx context.Context, symbols []string) ([]model.ProviderSample, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	if err := provider.Wait(ctx, provider.NameVCI, c.limiter); err != nil {
		return nil, err
	}

	var rows []boardRow
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(boardRequest{Symbols: symbols}).
		SetExpectResponseContentType("application/json").
		SetResult(&rows).
		Post("/price/symbols/getList")
	if err := provider.CheckResponse(provider.NameVCI, resp, err); err != nil {
		return nil, err
	}

	fetched := c.now()
	out := make([]model.ProviderSample, 0, len(rows))
	for _, r := range rows {
		sym := strings.ToUpper(r.ListingInfo.Symbol)
		if sym == "" {
			continue
		}
		out = append(out, model.ProviderSample{
			Provider:  provider.NameVCI,
			Symbol:    sym,
			FetchedAt: fetched,
			Raw: model.RawQuote{
				Price:     r.MatchPrice.MatchPrice,
				Reference: r.ListingInfo.RefPrice,
				Ceiling:   r.ListingInfo.Ceiling,
				Floor:     r.ListingInfo.Floor,
				Volume:    r.MatchPrice.AccumulatedVolume,
				Turnover:  r.MatchPrice.AccumulatedValue,
			},
		})
	}
	return out, nil
}

// FetchIntraday returns the 1-minute bars of symbol for the session on day,
// ordered by time. An empty session yields a KindEmpty error.
func (c *Client) FetchIntraday(ctx context.Context, symbol string, day time.Time) ([]model.RawBar, error) {
	if err := provider.Wait(ctx, provider.NameVCI, c.limiter); err != nil {
		return nil, err
	}

	open := markethours.TodayOpen(day)
	end := markethours.TodayClose(day).Add(time.Minute)
	var payload []chartSeries
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(chartRequest{
			TimeFrame: "ONE_MINUTE",
			Symbols:   []string{symbol},
			To:        end.Unix(),
			CountBack: markethours.GridLen() + 30,
		}).
		SetExpectResponseContentType("application/json").
		SetResult(&payload).
		Post("/chart/OHLCChart/gap-chart")
	if err := provider.CheckResponse(provider.NameVCI, resp, err); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, provider.NewEmpty(provider.NameVCI, "no chart for "+symbol)
	}

	s := payload[0]
	if len(s.Close) != len(s.Time) {
		return nil, provider.NewMalformed(provider.NameVCI,
			fmt.Sprintf("%s: %d closes for %d timestamps", symbol, len(s.Close), len(s.Time)))
	}

	bars := make([]model.RawBar, 0, len(s.Time))
	for i, ts := range s.Time {
		sec, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return nil, provider.NewMalformed(provider.NameVCI, "timestamp "+ts)
		}
		t := time.Unix(sec, 0).In(markethours.ICT)
		if t.Before(open) || !t.Before(end) {
			continue
		}
		bar := model.RawBar{TS: t, Close: s.Close[i]}
		if i < len(s.Volume) {
			bar.Volume = s.Volume[i]
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, provider.NewEmpty(provider.NameVCI, "no bars in session for "+symbol)
	}
	return bars, nil
}
