package provider

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	"resty.dev/v3"
)

// HTTPConfig configures an upstream HTTP client.
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
	RPS     float64 // <= 0 disables pacing
	Burst   int
	Retries int
}

const (
	defaultTimeout       = 5 * time.Second
	defaultRetryWaitTime = 200 * time.Millisecond
	defaultRetryMaxWait  = 2 * time.Second
)

// NewHTTPClient creates a resty client that retries network errors and 5xx
// once. Rate-limit responses are not retried; they go to the breaker.
func NewHTTPClient(cfg HTTPConfig) *resty.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "Mozilla/5.0 (quoteserve)").
		SetRetryCount(cfg.Retries).
		SetRetryDefaultConditions(false).
		SetAllowNonIdempotentRetry(true).
		SetRetryWaitTime(defaultRetryWaitTime).
		SetRetryMaxWaitTime(defaultRetryMaxWait).
		AddRetryConditions(retryCondition).
		AddRetryHooks(retryHook)
}

func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	return r.StatusCode() >= 500
}

func retryHook(r *resty.Response, err error) {
	if err != nil {
		slog.Debug("retrying provider request", "url", r.Request.URL, "attempt", r.Request.Attempt, "error", err.Error())
		return
	}
	slog.Debug("retrying provider request", "url", r.Request.URL, "attempt", r.Request.Attempt, "status_code", r.StatusCode())
}

// NewLimiter builds a token bucket for one provider. rps <= 0 means
// unlimited.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Wait blocks on lim and classifies a cancelled wait as transient.
func Wait(ctx context.Context, provider string, lim *rate.Limiter) error {
	if lim == nil {
		return nil
	}
	if err := lim.Wait(ctx); err != nil {
		return NewTransient(provider, err)
	}
	return nil
}

// CheckResponse turns a resty outcome into a classified error.
func CheckResponse(provider string, resp *resty.Response, err error) error {
	if err != nil {
		return Classify(provider, err)
	}
	if !resp.IsSuccess() {
		return ClassifyHTTP(provider, resp.StatusCode())
	}
	return nil
}
