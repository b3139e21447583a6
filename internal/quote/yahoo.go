package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/stockledger/stockledger/internal/apperr"
	"github.com/stockledger/stockledger/internal/cache"
	"github.com/stockledger/stockledger/internal/metrics"
	"github.com/stockledger/stockledger/internal/ratelimit"
	"github.com/stockledger/stockledger/internal/symbol"
)

const providerName = "yahoo"

// ClientConfig configures the Yahoo Finance client.
type ClientConfig struct {
	BaseURL        string        // chart + search API base, e.g. https://query1.finance.yahoo.com
	RequestTimeout time.Duration // per-request timeout
	CacheTTL       time.Duration // TTL for cached chart/search responses
	RPS            float64       // outbound requests per second toward the provider
	Burst          int
	UserAgent      string
}

// DefaultClientConfig returns the production Yahoo client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:        "https://query1.finance.yahoo.com",
		RequestTimeout: 10 * time.Second,
		CacheTTL:       5 * time.Second,
		RPS:            2,
		Burst:          4,
		UserAgent:      "stockledger/1.0",
	}
}

// Client fetches quotes and instrument search results from Yahoo Finance,
// behind a per-host rate limiter, a circuit breaker, and a short-TTL
// response cache.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker
	cache   cache.Cache
	metrics *metrics.Registry
}

// NewClient creates a Yahoo Finance client. cache may be nil to disable
// response caching.
func NewClient(cfg ClientConfig, c cache.Cache) *Client {
	settings := gobreaker.Settings{
		Name:     providerName,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: ratelimit.NewLimiter(cfg.RPS, cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
		cache:   c,
	}
}

// WithMetrics attaches the instrumentation registry. Returns the client for
// chaining at construction.
func (c *Client) WithMetrics(m *metrics.Registry) *Client {
	c.metrics = m
	return c
}

// chartResponse mirrors the subset of the Yahoo v8 chart payload we consume.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string   `json:"currency"`
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
				ChartPreviousClose *float64 `json:"chartPreviousClose"`
				RegularMarketTime  int64    `json:"regularMarketTime"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type searchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		ShortName string `json:"shortname"`
		LongName  string `json:"longname"`
		Exchange  string `json:"exchange"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}

// periodParams maps a dashboard period to Yahoo range and interval values.
func periodParams(period string) (rng, interval string) {
	switch period {
	case "1W":
		return "7d", "5m"
	case "1M":
		return "1mo", "30m"
	case "6M":
		return "6mo", "1d"
	case "1Y":
		return "1y", "1d"
	case "YTD":
		return "ytd", "1d"
	case "5Y":
		return "5y", "1wk"
	default: // 1D
		return "1d", "5m"
	}
}

// FetchChart retrieves the current quote and close-price history for a
// normalized symbol. The payload is structurally validated: a current price,
// a timestamp series, and a close series must all be present.
func (c *Client) FetchChart(ctx context.Context, sym, period string) (*Chart, error) {
	rng, interval := periodParams(period)
	u := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=%s",
		c.cfg.BaseURL, url.PathEscape(sym), rng, interval)

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, apperr.CodeMalformedPayload, "provider returned malformed chart payload", err)
	}
	if resp.Chart.Error != nil {
		if strings.EqualFold(resp.Chart.Error.Code, "not found") {
			return nil, apperr.New(apperr.KindNotFound, apperr.CodeSymbolNotFound, fmt.Sprintf("symbol %s not found", sym))
		}
		return nil, apperr.New(apperr.KindValidation, apperr.CodeUpstreamError, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, apperr.New(apperr.KindNotFound, apperr.CodeSymbolNotFound, fmt.Sprintf("symbol %s not found", sym))
	}

	result := resp.Chart.Result[0]
	if result.Meta.RegularMarketPrice == nil {
		return nil, apperr.New(apperr.KindValidation, apperr.CodeMalformedPayload, "chart payload is missing the current price")
	}
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 || len(result.Indicators.Quote[0].Close) == 0 {
		return nil, apperr.New(apperr.KindValidation, apperr.CodeMalformedPayload, "chart payload is missing the price series")
	}

	bars := result.Indicators.Quote[0]
	intraday := interval == "5m" || interval == "30m" || interval == "60m"

	history := make([]PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(bars.Close) || bars.Close[i] == nil || *bars.Close[i] == 0 {
			continue
		}
		var date string
		if intraday {
			date = time.Unix(ts, 0).UTC().Format(time.RFC3339)
		} else {
			date = time.Unix(ts, 0).UTC().Format("2006-01-02")
		}
		history = append(history, PricePoint{Date: date, Price: *bars.Close[i]})
	}

	prevClose := result.Meta.ChartPreviousClose
	if (prevClose == nil || *prevClose == 0) && len(history) > 0 {
		// Some responses omit the previous close; fall back to the first
		// point of the series.
		p := history[0].Price
		prevClose = &p
	}

	currency := result.Meta.Currency
	if currency == "" {
		currency = symbol.Currency(sym)
	}

	q := Quote{
		Symbol:        sym,
		Price:         result.Meta.RegularMarketPrice,
		PreviousClose: prevClose,
		Open:          firstSample(bars.Open),
		DayHigh:       maxSample(bars.High),
		DayLow:        minSample(bars.Low),
		Volume:        sumSamples(bars.Volume),
		Currency:      currency,
		FetchedAt:     time.Now().UTC(),
	}

	return &Chart{Quote: q, History: history}, nil
}

// Search looks up instruments matching query. On zero results one fallback
// variant (the query with any exchange suffix stripped) is attempted before
// reporting NO_RESULTS.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	results, err := c.searchOnce(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		if alt := strings.TrimSuffix(strings.TrimSuffix(query, "NS"), "BO"); alt != query && alt != "" {
			results, err = c.searchOnce(ctx, alt)
			if err != nil {
				return nil, err
			}
		}
	}
	if len(results) == 0 {
		return nil, apperr.New(apperr.KindNotFound, apperr.CodeNoResults, fmt.Sprintf("no instruments match %q", query))
	}
	return results, nil
}

func (c *Client) searchOnce(ctx context.Context, query string) ([]SearchResult, error) {
	u := fmt.Sprintf("%s/v1/finance/search?q=%s&quotesCount=10&newsCount=0",
		c.cfg.BaseURL, url.QueryEscape(query))

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, apperr.CodeMalformedPayload, "provider returned malformed search payload", err)
	}

	results := make([]SearchResult, 0, len(resp.Quotes))
	for _, q := range resp.Quotes {
		if q.Symbol == "" {
			continue
		}
		name := q.LongName
		if name == "" {
			name = q.ShortName
		}
		results = append(results, SearchResult{
			Symbol:   q.Symbol,
			Name:     name,
			Exchange: q.Exchange,
			Market:   q.QuoteType,
		})
	}
	return results, nil
}

// get performs a cached, rate-limited, circuit-protected GET.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	if c.cache != nil {
		if body, ok := c.cache.Get(ctx, u); ok {
			if c.metrics != nil {
				c.metrics.CacheHits.Inc()
			}
			return body, nil
		}
		if c.metrics != nil {
			c.metrics.CacheMisses.Inc()
		}
	}

	if err := c.limiter.Wait(ctx, hostOf(u)); err != nil {
		return nil, apperr.Classify(err)
	}

	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, apperr.Classify(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			// Drain so the connection can be reused.
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return nil, apperr.FromHTTPStatus(resp.StatusCode, providerName)
		}
		return io.ReadAll(resp.Body)
	})
	if c.metrics != nil {
		c.metrics.UpstreamLatency.Observe(time.Since(start).Seconds())
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.metrics.UpstreamFetches.WithLabelValues(outcome).Inc()
	}
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			log.Warn().Str("provider", providerName).Msg("circuit breaker open")
			return nil, apperr.Wrap(apperr.KindTransient, apperr.CodeUpstreamError, "provider temporarily unavailable", err)
		}
		return nil, apperr.Classify(err)
	}

	body := out.([]byte)
	if c.cache != nil {
		c.cache.Set(ctx, u, body, c.cfg.CacheTTL)
	}
	return body, nil
}

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return u.Host
	}
	return raw
}

func firstSample(vals []*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func maxSample(vals []*float64) *float64 {
	var max *float64
	for _, v := range vals {
		if v != nil && (max == nil || *v > *max) {
			max = v
		}
	}
	return max
}

func minSample(vals []*float64) *float64 {
	var min *float64
	for _, v := range vals {
		if v != nil && (min == nil || *v < *min) {
			min = v
		}
	}
	return min
}

func sumSamples(vals []*float64) *float64 {
	var sum float64
	found := false
	for _, v := range vals {
		if v != nil {
			sum += *v
			found = true
		}
	}
	if !found {
		return nil
	}
	return &sum
}
