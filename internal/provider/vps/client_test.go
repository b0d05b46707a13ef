package vps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoteserve/internal/model"
	"quoteserve/internal/provider"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(provider.HTTPConfig{BaseURL: srv.URL})
	t.Cleanup(func() { c.Close() })
	return c
}

func TestFetchQuotes_IndicesAndStocks(t *testing.T) {
	var paths []string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/getlistindexdetail/10,11":
			w.Write([]byte(`[{"mc":"10","cIndex":1879.13,"oIndex":1870.5,"vol":512000000,"value":18250000}]`))
		case "/getliststockdata/FPT,VNM":
			w.Write([]byte(`[{"sym":"FPT","lastPrice":96.5,"r":95,"c":101.6,"f":88.4,"lot":1234500},{"sym":"VNM","r":61.2}]`))
		default:
			http.NotFound(w, r)
		}
	})

	samples, err := c.FetchQuotes(context.Background(), []string{"VNINDEX", "FPT", "VN30", "VNM"})
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Len(t, paths, 2)

	idx := samples[0]
	assert.Equal(t, "VNINDEX", idx.Symbol)
	assert.Equal(t, model.UnitPoints, idx.Unit)
	assert.Equal(t, "1879.13", idx.Raw.Price.Decimal.String())
	assert.False(t, idx.Raw.Ceiling.Valid)

	fpt := samples[1]
	assert.Equal(t, "FPT", fpt.Symbol)
	assert.Equal(t, model.UnitUnknown, fpt.Unit)
	assert.Equal(t, "96.5", fpt.Raw.Price.Decimal.String())
	assert.Equal(t, "1234500", fpt.Raw.Volume.Decimal.String())
	assert.False(t, fpt.Raw.Turnover.Valid)

	vnm := samples[2]
	assert.False(t, vnm.Raw.Price.Valid, "omitted field stays absent")
	assert.True(t, vnm.Raw.Reference.Valid)
}

func TestFetchQuotes_RateLimited(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.FetchQuotes(context.Background(), []string{"FPT"})
	require.Error(t, err)
	assert.True(t, provider.IsRateLimit(err))
}

func TestFetchQuotes_MalformedIsTransient(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"broken"`))
	})

	_, err := c.FetchQuotes(context.Background(), []string{"FPT"})
	require.Error(t, err)
	assert.Equal(t, provider.KindTransient, provider.KindOf(err))
}
