// Package provider defines the upstream market-data sources, their error
// taxonomy and the typed call result consumed by normalization.
package provider

import (
	"context"
	"time"

	"quoteserve/internal/model"
)

// Provider names.
const (
	NameVPS    = "vps"
	NameVCI    = "vci"
	NameRatios = "ratios"
)

// QuoteSource is a batch real-time or board snapshot feed.
type QuoteSource interface {
	Name() string
	FetchQuotes(ctx context.Context, symbols []string) ([]model.ProviderSample, error)
}

// BarSource returns provider-native 1-minute bars for one session day.
type BarSource interface {
	Name() string
	FetchIntraday(ctx context.Context, symbol string, day time.Time) ([]model.RawBar, error)
}

// RatioSource returns financial ratios for one symbol.
type RatioSource interface {
	Name() string
	FetchRatios(ctx context.Context, symbol string) (model.Ratios, error)
}

// FetchQuotes calls src and folds the outcome into a Result.
func FetchQuotes(ctx context.Context, src QuoteSource, symbols []string) Result {
	samples, err := src.FetchQuotes(ctx, symbols)
	if err != nil {
		return Failed(src.Name(), Classify(src.Name(), err))
	}
	return OK(src.Name(), samples)
}
