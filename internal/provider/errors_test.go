package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"quoteserve/internal/breaker"
	"quoteserve/internal/model"
)

func TestClassifyHTTP(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{429, KindRateLimit},
		{403, KindRateLimit},
		{500, KindTransient},
		{503, KindTransient},
		{404, KindTransient},
		{400, KindTransient},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := ClassifyHTTP(NameVCI, tt.status)
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, tt.status, err.StatusCode)
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(NameVPS, nil))

	timeout := Classify(NameVPS, fmt.Errorf("get: %w", context.DeadlineExceeded))
	assert.Equal(t, KindTransient, timeout.Kind)
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)

	rl := NewRateLimit(NameVPS, 429)
	assert.Same(t, rl, Classify(NameVPS, fmt.Errorf("wrapped: %w", rl)))

	assert.Equal(t, KindTransient, Classify(NameVPS, errors.New("connection reset")).Kind)
}

func TestRateLimitTripsBreakerOnlyForRateLimits(t *testing.T) {
	assert.True(t, breaker.IsTripping(NewRateLimit(NameVPS, 429)))
	assert.True(t, breaker.IsTripping(fmt.Errorf("batch: %w", ClassifyHTTP(NameVCI, 403))))
	assert.False(t, breaker.IsTripping(NewTransient(NameVPS, errors.New("eof"))))
	assert.False(t, breaker.IsTripping(NewEmpty(NameVPS, "no rows")))
	assert.False(t, breaker.IsTripping(errors.New("plain")))
}

func TestKindHelpers(t *testing.T) {
	assert.True(t, IsRateLimit(NewRateLimit(NameVPS, 429)))
	assert.True(t, IsEmpty(fmt.Errorf("x: %w", NewEmpty(NameVPS, "none"))))
	assert.Equal(t, Kind(""), KindOf(errors.New("other")))
}

func TestErrorMessage(t *testing.T) {
	err := ClassifyHTTP(NameVPS, 429)
	assert.Equal(t, "vps: rate_limit error (status 429): rate limit exceeded", err.Error())

	err = NewTransient(NameVCI, errors.New("eof"))
	assert.Equal(t, "vci: transient error: request failed: eof", err.Error())
}

type stubSource struct {
	samples []model.ProviderSample
	err     error
}

func (s stubSource) Name() string { return "stub" }

func (s stubSource) FetchQuotes(context.Context, []string) ([]model.ProviderSample, error) {
	return s.samples, s.err
}

func TestFetchQuotesResult(t *testing.T) {
	ctx := context.Background()

	ok := FetchQuotes(ctx, stubSource{samples: []model.ProviderSample{{Symbol: "FPT"}, {Symbol: "FPT"}, {Symbol: "VNM"}}}, nil)
	assert.Equal(t, StatusOK, ok.Status)
	assert.True(t, ok.Usable())
	assert.Len(t, ok.BySymbol(), 2)

	empty := FetchQuotes(ctx, stubSource{}, nil)
	assert.Equal(t, StatusEmpty, empty.Status)
	assert.NoError(t, empty.Err)

	emptyErr := FetchQuotes(ctx, stubSource{err: NewEmpty("stub", "no rows")}, nil)
	assert.Equal(t, StatusEmpty, emptyErr.Status)

	failed := FetchQuotes(ctx, stubSource{err: errors.New("dial tcp: refused")}, nil)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, KindTransient, KindOf(failed.Err))
	assert.False(t, failed.Usable())
}

func TestNewLimiter(t *testing.T) {
	unlimited := NewLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.Allow())
	}

	paced := NewLimiter(1, 2)
	assert.True(t, paced.Allow())
	assert.True(t, paced.Allow())
	assert.False(t, paced.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Wait(ctx, NameVPS, paced)
	assert.Equal(t, KindTransient, KindOf(err))
	assert.NoError(t, Wait(context.Background(), NameVPS, nil))
}
