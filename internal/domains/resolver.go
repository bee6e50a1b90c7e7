// Package domains resolves on-chain token identifiers to human domain
// names. Resolution is best effort: lookups that fail degrade to a
// deterministic placeholder so event handlers never block on the registry.
package domains

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/cache"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/metrics"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultCacheCapacity = 10000
	defaultCacheTTL      = 1 * time.Hour
)

// Resolver maps a domain token id to its name.
type Resolver interface {
	Resolve(ctx context.Context, tokenID string) string
}

// FallbackName is the deterministic placeholder used when resolution fails.
func FallbackName(tokenID string) string {
	return "domain-" + tokenID
}

// HTTPResolver resolves names against the domain registry backend with an
// LRU cache in front. Resolve never returns an error.
type HTTPResolver struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache.LRU[string, string]
	logger     *slog.Logger
}

type Option func(*HTTPResolver)

func WithTimeout(d time.Duration) Option {
	return func(r *HTTPResolver) {
		r.httpClient.Timeout = d
	}
}

func WithCacheConfig(capacity int, ttl time.Duration) Option {
	return func(r *HTTPResolver) {
		r.cache = cache.NewLRU[string, string](capacity, ttl)
	}
}

func NewHTTPResolver(baseURL string, logger *slog.Logger, opts ...Option) *HTTPResolver {
	r := &HTTPResolver{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		cache:      cache.NewLRU[string, string](defaultCacheCapacity, defaultCacheTTL),
		logger:     logger.With("component", "resolver"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

type nameResponse struct {
	Name string `json:"name"`
}

func (r *HTTPResolver) Resolve(ctx context.Context, tokenID string) string {
	if name, ok := r.cache.Get(tokenID); ok {
		metrics.ResolverCacheHits.Inc()
		return name
	}

	name, err := r.lookup(ctx, tokenID)
	if err != nil {
		metrics.ResolverLookupsTotal.WithLabelValues("fallback").Inc()
		r.logger.Warn("domain resolution failed, using placeholder",
			"token_id", tokenID,
			"error", err,
		)
		// Placeholders are not cached so a later lookup can still recover
		// the real name.
		return FallbackName(tokenID)
	}

	metrics.ResolverLookupsTotal.WithLabelValues("ok").Inc()
	r.cache.Put(tokenID, name)
	return name
}

func (r *HTTPResolver) lookup(ctx context.Context, tokenID string) (string, error) {
	endpoint := fmt.Sprintf("%s/domains/%s/name", r.baseURL, url.PathEscape(tokenID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	var nr nameResponse
	if err := json.Unmarshal(body, &nr); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if nr.Name == "" {
		return "", fmt.Errorf("empty name for token %s", tokenID)
	}
	return nr.Name, nil
}

// StaticResolver resolves from a fixed map, falling back to the
// placeholder. Used in tests and local development.
type StaticResolver struct {
	Names map[string]string
}

func (s *StaticResolver) Resolve(_ context.Context, tokenID string) string {
	if name, ok := s.Names[tokenID]; ok {
		return name
	}
	return FallbackName(tokenID)
}
