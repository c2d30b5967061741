// Package provider implements the market-data gateway: a bounded-concurrency
// HTTP client with caching, rate limiting, circuit breaking, and bounded
// retry against a Birdeye-style REST API.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/tokenscout/tokenscout/internal/cache"
	"github.com/tokenscout/tokenscout/internal/config"
	"github.com/tokenscout/tokenscout/internal/metrics"
)

// Config holds gateway construction parameters. Zero values fall back to the
// documented defaults.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	BackoffCap     time.Duration
	RateLimitRPS   float64
	MaxConcurrency int
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 20 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 1 * time.Second
	}
	if c.BackoffCap == 0 {
		c.BackoffCap = 8 * time.Second
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 5
	}
}

// Client is the provider gateway. The semaphore bounds in-flight upstream
// requests process-wide; the cache is consulted before a slot is taken, so a
// hit never occupies one.
type Client struct {
	httpClient *http.Client
	config     Config
	cache      cache.Cache
	cfg        *config.Store
	sem        chan struct{}
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	metrics    *metrics.Registry

	now func() time.Time
}

// NewClient creates a gateway over the given cache and config store. The
// semaphore size is fixed at construction from cfg's ext_max_concurrency;
// cache TTLs are re-read from the store on every call.
func NewClient(pc Config, payloadCache cache.Cache, cfgStore *config.Store, reg *metrics.Registry) *Client {
	pc.applyDefaults()
	if cfgStore != nil {
		if n := cfgStore.Current().ExtMaxConcurrency; n > 0 {
			pc.MaxConcurrency = n
		}
	}

	var limiter *rate.Limiter
	if pc.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(pc.RateLimitRPS), int(pc.RateLimitRPS)+1)
	}

	settings := gobreaker.Settings{Name: "market-data"}
	settings.Interval = 60 * time.Second
	settings.Timeout = 30 * time.Second
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: pc.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		config:  pc,
		cache:   payloadCache,
		cfg:     cfgStore,
		sem:     make(chan struct{}, pc.MaxConcurrency),
		limiter: limiter,
		breaker: gobreaker.NewCircuitBreaker(settings),
		metrics: reg,
		now:     time.Now,
	}
}

// Drain blocks until no upstream request holds a semaphore slot, or until
// timeout. Used during shutdown so in-flight calls can finish before their
// collaborators close.
func (c *Client) Drain(timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	taken := 0
	for taken < cap(c.sem) {
		select {
		case c.sem <- struct{}{}:
			taken++
		case <-deadline.C:
			log.Warn().Int("in_flight", cap(c.sem)-taken).Msg("gateway drain timed out")
			for ; taken > 0; taken-- {
				<-c.sem
			}
			return
		}
	}
	for ; taken > 0; taken-- {
		<-c.sem
	}
}

// cacheKey derives the cache identity of a request. url.Values.Encode sorts
// parameters, so equivalent queries share an entry.
func cacheKey(path string, query url.Values) string {
	return path + "?" + query.Encode()
}

// Fetch returns the raw JSON payload for path+query, serving from cache when
// possible. On a miss it takes a semaphore slot, performs the request with
// bounded retry, and caches the successful payload.
func (c *Client) Fetch(ctx context.Context, path string, query url.Values) ([]byte, error) {
	key := cacheKey(path, query)

	if c.cache != nil {
		if payload, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			if c.metrics != nil {
				c.metrics.ProviderCacheHits.Inc()
			}
			return payload, nil
		} else if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("provider cache read failed")
		}
		if c.metrics != nil {
			c.metrics.ProviderCacheMiss.Inc()
		}
	}

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if c.metrics != nil {
		c.metrics.ProviderInFlight.Inc()
	}
	defer func() {
		<-c.sem
		if c.metrics != nil {
			c.metrics.ProviderInFlight.Dec()
		}
	}()

	payload, err := c.fetchWithRetry(ctx, path, query)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		ttl := 30 * time.Second
		if c.cfg != nil {
			ttl = c.cfg.Current().ProviderCacheTTL()
		}
		if err := c.cache.Set(ctx, key, payload, ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("provider cache write failed")
		}
	}
	return payload, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if c.metrics != nil {
				c.metrics.ProviderRetries.Inc()
			}
			if err := c.sleepBackoff(ctx, attempt, lastErr); err != nil {
				return nil, err
			}
		}

		payload, err := c.doOnce(ctx, path, query)
		if err == nil {
			if c.metrics != nil {
				c.metrics.ProviderRequests.WithLabelValues("ok").Inc()
			}
			return payload, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		kind, _ := ErrorKind(err)
		if c.metrics != nil {
			c.metrics.ProviderRequests.WithLabelValues(kind.String()).Inc()
		}
		if !kind.Retryable() {
			return nil, err
		}
		log.Debug().Err(err).Str("path", path).Int("attempt", attempt+1).Msg("provider request failed, will retry")
	}
	return nil, lastErr
}

// sleepBackoff waits the schedule 1s, 2s, 4s (capped) before attempt n; a
// Retry-After hint from the previous failure supersedes the schedule.
func (c *Client) sleepBackoff(ctx context.Context, attempt int, lastErr error) error {
	delay := c.config.RetryBackoff << (attempt - 1)
	if delay > c.config.BackoffCap {
		delay = c.config.BackoffCap
	}
	var fe *FetchError
	if errors.As(lastErr, &fe) && fe.RetryAfter > 0 {
		delay = fe.RetryAfter
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) doOnce(ctx context.Context, path string, query url.Values) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/%s", c.config.BaseURL, path)
	if encoded := query.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, &FetchError{Kind: KindTransport, Path: path, Err: err}
		}
		req.Header.Set("Accept", "application/json")
		if c.config.APIKey != "" {
			req.Header.Set("X-API-KEY", c.config.APIKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &FetchError{Kind: KindTransport, Path: path, Err: err}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &FetchError{Kind: KindTransport, Path: path, Status: resp.StatusCode, Err: err}
		}

		if fe := classifyStatus(path, resp, body); fe != nil {
			return nil, fe
		}
		if !json.Valid(body) {
			return nil, &FetchError{Kind: KindDecode, Path: path, Status: resp.StatusCode,
				Err: errors.New("response is not valid JSON")}
		}
		return body, nil
	})
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		// Breaker-open counts as a transport failure: transient, retryable.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &FetchError{Kind: KindTransport, Path: path, Err: err}
		}
		return nil, &FetchError{Kind: KindTransport, Path: path, Err: err}
	}
	return result.([]byte), nil
}

func classifyStatus(path string, resp *http.Response, body []byte) *FetchError {
	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return &FetchError{
			Kind:       KindRateLimited,
			Path:       path,
			Status:     status,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("rate limited: %s", truncate(body, 120)),
		}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &FetchError{Kind: KindAuthRejected, Path: path, Status: status,
			Err: fmt.Errorf("credentials rejected: %s", truncate(body, 120))}
	case status == http.StatusNotFound:
		return &FetchError{Kind: KindNotFound, Path: path, Status: status,
			Err: errors.New("resource not found")}
	case status >= 500:
		return &FetchError{Kind: KindUpstream5xx, Path: path, Status: status,
			Err: fmt.Errorf("upstream error: %s", truncate(body, 120))}
	default:
		// Remaining 4xx means we sent something the API rejects; retrying the
		// same request cannot help.
		return &FetchError{Kind: KindDecode, Path: path, Status: status,
			Err: fmt.Errorf("unexpected status: %s", truncate(body, 120))}
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Overview fetches and decodes the token overview for address.
func (c *Client) Overview(ctx context.Context, address string) (*TokenOverview, error) {
	query := url.Values{"address": {address}}
	payload, err := c.Fetch(ctx, PathTokenOverview, query)
	if err != nil {
		return nil, err
	}

	var env overviewEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &FetchError{Kind: KindDecode, Path: PathTokenOverview, Err: err}
	}
	return &env.Data, nil
}

// Trades fetches one page of recent swaps for address, newest first.
func (c *Client) Trades(ctx context.Context, address string, limit, offset int) ([]TradeItem, bool, error) {
	query := url.Values{
		"address":   {address},
		"limit":     {strconv.Itoa(limit)},
		"offset":    {strconv.Itoa(offset)},
		"sort_type": {"desc"},
	}
	payload, err := c.Fetch(ctx, PathTokenTrades, query)
	if err != nil {
		return nil, false, err
	}

	var env tradesEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, false, &FetchError{Kind: KindDecode, Path: PathTokenTrades, Err: err}
	}
	return env.Data.Items, env.Data.HasNext, nil
}
