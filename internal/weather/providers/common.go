package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/i474232898/weather-records/internal/metrics"
)

const userAgent = "weather-records"

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBackoff is used unless WithBackoff overrides it.
var DefaultBackoff = BackoffConfig{
	MaxRetries:      3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig

	// Limiter, when set, paces every attempt including retries.
	Limiter *rate.Limiter
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
	errNoAPIKey      = errors.New("api key is not configured")
)

// statusError reports a non-success response that survived every retry.
// Providers treat it as "no data" rather than as a failed call.
type statusError struct {
	code  int
	cause error
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v: status %d", e.cause, e.code)
}

func (e *statusError) Unwrap() error { return e.cause }

// Option configures a provider.
type Option func(*baseProvider)

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(u string) Option {
	return func(p *baseProvider) {
		if u != "" {
			p.baseURL = u
		}
	}
}

// WithBackoff overrides the retry policy.
func WithBackoff(b BackoffConfig) Option {
	return func(p *baseProvider) { p.httpCfg.Backoff = b }
}

// WithRateLimit caps outbound requests at rps per second. Zero disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(p *baseProvider) {
		if rps <= 0 {
			p.httpCfg.Limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		p.httpCfg.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics reports request durations to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *baseProvider) { p.metrics = m }
}

// baseProvider holds what every HTTP provider shares: endpoint, client,
// retry policy and circuit breaker.
type baseProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func newBaseProvider(name, baseURL string, client *http.Client, opts []Option) baseProvider {
	p := baseProvider{
		name:    name,
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff,
		},
		tracer: otel.Tracer("github.com/i474232898/weather-records/internal/weather/providers"),
	}
	for _, opt := range opts {
		opt(&p)
	}
	p.circuit = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
	return p
}

// Name returns the provider name.
func (p *baseProvider) Name() string {
	return p.name
}

// get performs a traced, resilient GET against the provider endpoint.
// The caller owns the response body.
func (p *baseProvider) get(ctx context.Context, query string, values url.Values) (*http.Response, error) {
	ctx, span := p.tracer.Start(ctx, p.name+".FetchCurrent",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("weather.provider", p.name),
			attribute.String("weather.query", query),
		),
	)
	defer span.End()

	u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
		return req, nil
	}

	start := time.Now()
	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	p.metrics.ObserveUpstream(p.name, statusLabel(resp, err), time.Since(start))

	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			span.SetAttributes(attribute.Int("http.status_code", se.code))
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

func statusLabel(resp *http.Response, err error) string {
	var se *statusError
	switch {
	case errors.As(err, &se):
		return strconv.Itoa(se.code)
	case errors.Is(err, errCircuitOpen):
		return "circuit_open"
	case err != nil:
		return "error"
	default:
		return strconv.Itoa(resp.StatusCode)
	}
}

// isNoData reports whether err only means the provider had nothing to return.
func isNoData(err error) bool {
	var se *statusError
	return errors.As(err, &se)
}

// doRequestWithResilience executes the HTTP request with retries, exponential backoff,
// and a circuit breaker. Client errors other than 429 are returned as a
// response without retrying and do not count against the breaker.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if cfg.Limiter != nil {
			if err := cfg.Limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			// Handle rate limiting and server errors explicitly.
			if resp.StatusCode == http.StatusTooManyRequests {
				resp.Body.Close()
				return nil, &statusError{code: resp.StatusCode, cause: errRateLimited}
			}
			if resp.StatusCode >= 500 {
				resp.Body.Close()
				return nil, &statusError{code: resp.StatusCode, cause: errServerError}
			}

			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		lastErr = err
		if attempt >= cfg.Backoff.MaxRetries {
			return nil, lastErr
		}

		// Backoff with exponential delay.
		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			// continue to next attempt
		}

		attempt++
	}
}
