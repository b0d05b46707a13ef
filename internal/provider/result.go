package provider

import "quoteserve/internal/model"

// Status is the outcome of one provider call.
type Status int

const (
	StatusOK     Status = iota // samples present
	StatusEmpty                // call succeeded, nothing returned
	StatusFailed               // call failed or was suppressed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the typed outcome of one provider batch call, threaded through
// normalization and reconciliation in place of panics or sentinel samples.
type Result struct {
	Provider string
	Status   Status
	Samples  []model.ProviderSample
	Err      error
}

// OK builds a result from samples; no samples means Empty.
func OK(provider string, samples []model.ProviderSample) Result {
	if len(samples) == 0 {
		return Result{Provider: provider, Status: StatusEmpty}
	}
	return Result{Provider: provider, Status: StatusOK, Samples: samples}
}

// Failed builds a result from an error. Empty-kind errors map to Empty.
func Failed(provider string, err error) Result {
	if IsEmpty(err) {
		return Result{Provider: provider, Status: StatusEmpty, Err: err}
	}
	return Result{Provider: provider, Status: StatusFailed, Err: err}
}

// Usable reports whether the result carries samples.
func (r Result) Usable() bool { return r.Status == StatusOK }

// BySymbol indexes samples by symbol. Later duplicates are ignored.
func (r Result) BySymbol() map[string]model.ProviderSample {
	out := make(map[string]model.ProviderSample, len(r.Samples))
	for _, s := range r.Samples {
		if _, dup := out[s.Symbol]; !dup {
			out[s.Symbol] = s
		}
	}
	return out
}
