// Package yahoo fetches daily OHLCV history from the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/s07362022/leadlag/internal/logger"
	"github.com/s07362022/leadlag/internal/models"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned for symbols the API does not know.
var ErrNotFound = errors.New("symbol not found")

// Config holds the chart client settings.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	MaxRetries        int
	RetryDelayBase    time.Duration
	RequestsPerSecond float64
	Burst             int
	BreakerFailures   uint32
	BreakerTimeout    time.Duration
}

// Client provides access to the chart endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger
}

// chartResponse mirrors /v8/finance/chart. Price arrays hold null for
// sessions without a print.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string `json:"symbol"`
				ShortName            string `json:"shortName"`
				ExchangeTimezoneName string `json:"exchangeTimezoneName"`
				GMTOffset            int    `json:"gmtoffset"`
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

// NewClient creates a rate-limited client whose requests pass through a
// circuit breaker.
func NewClient(cfg Config) *Client {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	log := logger.Component("yahoo")
	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "yahoo",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return failures > 0 && counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelayBase,
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		breaker:    breaker,
		log:        log,
	}
}

// FetchBars retrieves the daily bars of symbol dated within [start, end),
// keyed by the exchange-local trading date and sorted ascending. The end day
// is excluded so a session still trading is never returned. Bars with null
// prices are kept with NaN fields for the engine to exclude; complete bars
// that fail validation are dropped.
func (c *Client) FetchBars(ctx context.Context, symbol string, start, end time.Time) (models.Series, error) {
	u, err := url.Parse(c.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol))
	if err != nil {
		return models.Series{}, fmt.Errorf("failed to parse URL: %w", err)
	}

	q := u.Query()
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	q.Set("interval", "1d")
	q.Set("events", "history")
	u.RawQuery = q.Encode()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doRequest(ctx, u.String())
	})
	if err != nil {
		return models.Series{}, fmt.Errorf("failed to fetch %s: %w", symbol, err)
	}

	var chart chartResponse
	if err := json.Unmarshal(out.([]byte), &chart); err != nil {
		return models.Series{}, fmt.Errorf("failed to decode chart for %s: %w", symbol, err)
	}

	series, err := c.toSeries(symbol, chart, models.DayKey(end))
	if err != nil {
		return models.Series{}, err
	}

	c.log.Debug().
		Str("symbol", symbol).
		Int("count", series.Len()).
		Msg("Fetched daily bars")
	return series, nil
}

// doRequest performs the GET with linear-backoff retries on transport
// errors, 429 and 5xx responses.
func (c *Client) doRequest(ctx context.Context, urlStr string) ([]byte, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * c.retryDelay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) leadlag")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, ErrNotFound
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			c.log.Debug().Int("status", resp.StatusCode).Int("attempt", i+1).Msg("Retrying chart request")
			continue
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// toSeries converts the chart payload into bars dated before end.
func (c *Client) toSeries(symbol string, chart chartResponse, end time.Time) (models.Series, error) {
	if e := chart.Chart.Error; e != nil {
		if e.Code == "Not Found" {
			return models.Series{}, fmt.Errorf("%s: %w", symbol, ErrNotFound)
		}
		return models.Series{}, fmt.Errorf("chart error for %s: %s: %s", symbol, e.Code, e.Description)
	}

	series := models.Series{Symbol: symbol}
	if len(chart.Chart.Result) == 0 {
		return series, nil
	}

	res := chart.Chart.Result[0]
	series.Name = res.Meta.ShortName
	if len(res.Indicators.Quote) == 0 {
		return series, nil
	}
	quote := res.Indicators.Quote[0]
	loc := exchangeLocation(res.Meta.ExchangeTimezoneName, res.Meta.GMTOffset)

	byDate := make(map[time.Time]models.PriceBar, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		bar := models.PriceBar{
			Date:   models.DayKey(time.Unix(ts, 0).In(loc)),
			Open:   at(quote.Open, i),
			High:   at(quote.High, i),
			Low:    at(quote.Low, i),
			Close:  at(quote.Close, i),
			Volume: at(quote.Volume, i),
		}
		if !bar.Date.Before(end) {
			continue
		}
		if bar.Valid() {
			if err := bar.Validate(); err != nil {
				c.log.Warn().Str("symbol", symbol).Time("date", bar.Date).Err(err).Msg("Dropping inconsistent bar")
				continue
			}
		}
		if prev, ok := byDate[bar.Date]; ok && prev.Valid() && !bar.Valid() {
			continue
		}
		byDate[bar.Date] = bar
	}

	series.Bars = make([]models.PriceBar, 0, len(byDate))
	for _, b := range byDate {
		series.Bars = append(series.Bars, b)
	}
	sort.Slice(series.Bars, func(i, j int) bool {
		return series.Bars[i].Date.Before(series.Bars[j].Date)
	})
	return series, nil
}

func exchangeLocation(name string, offset int) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.FixedZone("exchange", offset)
}

func at(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return math.NaN()
	}
	return *values[i]
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
