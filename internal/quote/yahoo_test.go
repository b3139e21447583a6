package quote

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockledger/stockledger/internal/apperr"
	"github.com/stockledger/stockledger/internal/cache"
)

const chartBody = `{"chart":{"result":[{"meta":{"currency":"INR","regularMarketPrice":2850.5,"chartPreviousClose":2800.0,"regularMarketTime":1700000000},"timestamp":[1699990000,1699990300,1699990600],"indicators":{"quote":[{"open":[2810.0,2820.0,2830.0],"high":[2815.0,2855.0,2851.0],"low":[2805.0,2818.0,2828.0],"close":[2812.0,2841.0,2850.5],"volume":[1000,2000,1500]}]}}],"error":null}}`

func testClient(t *testing.T, handler http.HandlerFunc, c cache.Cache) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig()
	cfg.BaseURL = srv.URL
	cfg.RequestTimeout = 2 * time.Second
	cfg.RPS = 1000
	cfg.Burst = 1000
	return NewClient(cfg, c)
}

func TestFetchChart(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v8/finance/chart/RELIANCE.NS")
		fmt.Fprint(w, chartBody)
	}, nil)

	chart, err := client.FetchChart(context.Background(), "RELIANCE.NS", "1D")
	require.NoError(t, err)

	require.NotNil(t, chart.Quote.Price)
	assert.InDelta(t, 2850.5, *chart.Quote.Price, 1e-9)
	require.NotNil(t, chart.Quote.PreviousClose)
	assert.InDelta(t, 2800.0, *chart.Quote.PreviousClose, 1e-9)
	assert.Equal(t, "INR", chart.Quote.Currency)
	require.NotNil(t, chart.Quote.DayHigh)
	assert.InDelta(t, 2855.0, *chart.Quote.DayHigh, 1e-9)
	require.NotNil(t, chart.Quote.DayLow)
	assert.InDelta(t, 2805.0, *chart.Quote.DayLow, 1e-9)
	require.NotNil(t, chart.Quote.Volume)
	assert.InDelta(t, 4500, *chart.Quote.Volume, 1e-9)
	assert.Len(t, chart.History, 3)
}

func TestFetchChartUnknownSymbol(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
	}, nil)

	_, err := client.FetchChart(context.Background(), "NOPE.NS", "1D")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestFetchChartMissingPriceIsValidationError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[{"meta":{"currency":"INR"},"timestamp":[1],"indicators":{"quote":[{"close":[1.0]}]}}],"error":null}}`)
	}, nil)

	_, err := client.FetchChart(context.Background(), "RELIANCE.NS", "1D")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, apperr.CodeMalformedPayload, apperr.CodeOf(err))
}

func TestFetchChartMissingSeriesIsValidationError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[{"meta":{"regularMarketPrice":10.0},"timestamp":[],"indicators":{"quote":[]}}],"error":null}}`)
	}, nil)

	_, err := client.FetchChart(context.Background(), "RELIANCE.NS", "1D")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeMalformedPayload, apperr.CodeOf(err))
}

func TestFetchChartRateLimitedStatus(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, nil)

	_, err := client.FetchChart(context.Background(), "RELIANCE.NS", "1D")
	require.Error(t, err)
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(err))
}

func TestFetchChartUsesCache(t *testing.T) {
	calls := 0
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, chartBody)
	}, cache.NewMemory())

	_, err := client.FetchChart(context.Background(), "RELIANCE.NS", "1D")
	require.NoError(t, err)
	_, err = client.FetchChart(context.Background(), "RELIANCE.NS", "1D")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestSearch(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/finance/search", r.URL.Path)
		fmt.Fprint(w, `{"quotes":[{"symbol":"RELIANCE.NS","shortname":"Reliance Industries","exchange":"NSI","quoteType":"EQUITY"},{"symbol":"","shortname":"bogus"}]}`)
	}, nil)

	results, err := client.Search(context.Background(), "reliance")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "RELIANCE.NS", results[0].Symbol)
	assert.Equal(t, "Reliance Industries", results[0].Name)
	assert.Equal(t, "NSI", results[0].Exchange)
}

func TestSearchFallbackVariant(t *testing.T) {
	var queries []string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		queries = append(queries, q)
		if q == "TCSNS" {
			fmt.Fprint(w, `{"quotes":[]}`)
			return
		}
		fmt.Fprint(w, `{"quotes":[{"symbol":"TCS.NS","shortname":"TCS","exchange":"NSI"}]}`)
	}, nil)

	results, err := client.Search(context.Background(), "TCSNS")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"TCSNS", "TCS"}, queries)
}

func TestSearchNoResults(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quotes":[]}`)
	}, nil)

	_, err := client.Search(context.Background(), "qqqqq")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNoResults, apperr.CodeOf(err))
}
