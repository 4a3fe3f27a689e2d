package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"greenlane/backend/libs/schema"
	"greenlane/backend/services/pricing-worker/internal/models"
)

const (
	defaultTimeout        = 5 * time.Second
	defaultMaxAttempts    = 3
	defaultBackoffInitial = 200 * time.Millisecond
	defaultBackoffMax     = 2 * time.Second
	maxQuoteBodyBytes     = 64 << 10
)

const quoteSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["timestamp", "price_per_kwh", "grid_load", "energy_source", "hour"],
  "properties": {
    "timestamp": {"type": "integer"},
    "price_per_kwh": {"type": "number"},
    "grid_load": {"type": "string"},
    "energy_source": {"type": "string"},
    "hour": {"type": "integer", "minimum": 0, "maximum": 23}
  }
}`

var quoteValidator = schema.MustCompile("price-quote.json", quoteSchema)

// HTTPDoer defines http.Client interface subset.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// AttemptObserver is told about every request sent to the pricing endpoint.
type AttemptObserver interface {
	ObserveOracleAttempt(err error)
}

// PricingOptions configures PricingClient. Zero values fall back to defaults.
type PricingOptions struct {
	URL            string
	Timeout        time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// RateLimit caps requests per second across all callers; 0 disables it.
	RateLimit float64
	Observer  AttemptObserver
}

// PricingClient fetches the current grid price. It is safe for concurrent use.
type PricingClient struct {
	url            string
	client         HTTPDoer
	timeout        time.Duration
	maxAttempts    int
	backoffInitial time.Duration
	backoffMax     time.Duration
	limiter        *rate.Limiter
	observer       AttemptObserver
	logger         *zap.Logger
}

// NewPricingClient returns client wrapper. A nil httpClient uses a plain http.Client;
// the per-attempt deadline is enforced through the request context.
func NewPricingClient(opts PricingOptions, httpClient HTTPDoer, logger *zap.Logger) (*PricingClient, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("pricing client: url is empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &PricingClient{
		url:            opts.URL,
		client:         httpClient,
		timeout:        opts.Timeout,
		maxAttempts:    opts.MaxAttempts,
		backoffInitial: opts.BackoffInitial,
		backoffMax:     opts.BackoffMax,
		observer:       opts.Observer,
		logger:         logger,
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.backoffInitial <= 0 {
		c.backoffInitial = defaultBackoffInitial
	}
	if c.backoffMax < c.backoffInitial {
		c.backoffMax = max(defaultBackoffMax, c.backoffInitial)
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c, nil
}

// FetchQuote requests a fresh quote. Timeouts and transport failures are retried with
// exponential backoff; a malformed response is returned immediately.
func (c *PricingClient) FetchQuote(ctx context.Context) (models.PriceQuote, error) {
	attempts := 0
	operation := func() (models.PriceQuote, error) {
		attempts++
		quote, err := c.fetchOnce(ctx)
		if c.observer != nil {
			c.observer.ObserveOracleAttempt(err)
		}
		if err == nil {
			return quote, nil
		}
		var oracleErr *OracleError
		if errors.As(err, &oracleErr) && oracleErr.Kind.Retryable() && ctx.Err() == nil {
			return models.PriceQuote{}, err
		}
		return models.PriceQuote{}, backoff.Permanent(err)
	}

	quote, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn("pricing request failed, retrying",
				zap.Error(err),
				zap.Int("attempt", attempts),
				zap.Duration("backoff", wait),
			)
		}),
	)
	if err == nil {
		return quote, nil
	}

	var oracleErr *OracleError
	if !errors.As(err, &oracleErr) {
		oracleErr = &OracleError{Kind: OracleTransport, Err: err}
	}
	return models.PriceQuote{}, &OracleError{Kind: oracleErr.Kind, Attempts: attempts, Err: oracleErr.Err}
}

func (c *PricingClient) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoffInitial
	b.MaxInterval = c.backoffMax
	return b
}

func (c *PricingClient) fetchOnce(ctx context.Context) (models.PriceQuote, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return models.PriceQuote{}, &OracleError{Kind: OracleTransport, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.url, nil)
	if err != nil {
		return models.PriceQuote{}, &OracleError{Kind: OracleDecode, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return models.PriceQuote{}, classifyRequestError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxQuoteBodyBytes))
	if err != nil {
		return models.PriceQuote{}, classifyRequestError(err)
	}

	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		return models.PriceQuote{}, &OracleError{Kind: OracleTransport, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 300:
		return models.PriceQuote{}, &OracleError{Kind: OracleDecode, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var quote models.PriceQuote
	if err := quoteValidator.Decode(body, &quote); err != nil {
		return models.PriceQuote{}, &OracleError{Kind: OracleDecode, Err: err}
	}
	return quote, nil
}

func classifyRequestError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &OracleError{Kind: OracleTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &OracleError{Kind: OracleTimeout, Err: err}
	}
	return &OracleError{Kind: OracleTransport, Err: err}
}
