// Package scoring bridges to the external AI scoring backend. Every call
// returns a well-formed result: backend failures degrade to a conservative
// fallback score tagged with the triggering error.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/circuitbreaker"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/metrics"
)

const (
	// Conservative fallback served when the backend is unreachable.
	FallbackScore      = 50
	FallbackConfidence = 20

	defaultTimeout       = 30 * time.Second
	defaultRatePerSecond = 5
	defaultBurst         = 10
)

// Result is a normalized scoring response. Fallback is true when the
// backend call failed and Score/Confidence hold the conservative defaults;
// Err then records the triggering error.
type Result struct {
	Score      int
	Confidence int
	Reasoning  string
	Fallback   bool
	Err        error
}

// Scorer requests a score for a domain name.
type Scorer interface {
	Score(ctx context.Context, domainName string) Result
}

// Client talks to the scoring backend over HTTP, rate limited, with a
// circuit breaker that sheds load while the backend is down.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.Breaker
	logger     *slog.Logger
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRatePerSecond), defaultBurst),
		breaker:    circuitbreaker.New(circuitbreaker.Config{}),
		logger:     logger.With("component", "scoring"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type scoreResponse struct {
	TotalScore int    `json:"totalScore"`
	Confidence int    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// Score requests a score for domainName. It never returns an error;
// failures are folded into a fallback Result so callers always have a
// usable score.
func (c *Client) Score(ctx context.Context, domainName string) Result {
	score, err := c.fetch(ctx, domainName)
	if err != nil {
		metrics.ScoringRequestsTotal.WithLabelValues("error").Inc()
		metrics.ScoringFallbacksTotal.Inc()
		c.logger.Warn("scoring backend failed, serving fallback",
			"domain", domainName,
			"error", err,
		)
		return Result{
			Score:      FallbackScore,
			Confidence: FallbackConfidence,
			Reasoning:  fmt.Sprintf("fallback score: backend error: %v", err),
			Fallback:   true,
			Err:        err,
		}
	}
	metrics.ScoringRequestsTotal.WithLabelValues("ok").Inc()
	return score
}

func (c *Client) fetch(ctx context.Context, domainName string) (Result, error) {
	if err := c.breaker.Allow(); err != nil {
		return Result{}, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	resp, err := c.doRequest(ctx, domainName)
	metrics.ScoringRequestLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		c.breaker.RecordFailure()
		return Result{}, err
	}
	c.breaker.RecordSuccess()
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, domainName string) (Result, error) {
	endpoint := fmt.Sprintf("%s/domains/%s/score", c.baseURL, url.PathEscape(domainName))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	var sr scoreResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return Result{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if sr.TotalScore < 0 || sr.TotalScore > 100 {
		return Result{}, fmt.Errorf("score %d out of range [0,100]", sr.TotalScore)
	}

	return Result{
		Score:      sr.TotalScore,
		Confidence: sr.Confidence,
		Reasoning:  sr.Reasoning,
	}, nil
}
