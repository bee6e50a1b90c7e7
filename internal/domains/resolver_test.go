package domains

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolve_CachesSuccessfulLookups(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/domains/101/name", r.URL.Path)
		fmt.Fprint(w, `{"name": "crypto.eth"}`)
	}))
	defer srv.Close()

	resolver := NewHTTPResolver(srv.URL, testLogger())

	assert.Equal(t, "crypto.eth", resolver.Resolve(context.Background(), "101"))
	assert.Equal(t, "crypto.eth", resolver.Resolve(context.Background(), "101"))
	assert.Equal(t, int64(1), hits.Load())
}

func TestResolve_FallbackIsNotCached(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "registry down", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"name": "recovered.eth"}`)
	}))
	defer srv.Close()

	resolver := NewHTTPResolver(srv.URL, testLogger())

	assert.Equal(t, "domain-101", resolver.Resolve(context.Background(), "101"))
	// The placeholder never enters the cache, so the retry hits the backend
	// and picks up the real name.
	assert.Equal(t, "recovered.eth", resolver.Resolve(context.Background(), "101"))
}

func TestResolve_EmptyNameFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"name": ""}`)
	}))
	defer srv.Close()

	resolver := NewHTTPResolver(srv.URL, testLogger())
	assert.Equal(t, "domain-42", resolver.Resolve(context.Background(), "42"))
}

func TestStaticResolver(t *testing.T) {
	resolver := &StaticResolver{Names: map[string]string{"101": "crypto.eth"}}

	assert.Equal(t, "crypto.eth", resolver.Resolve(context.Background(), "101"))
	assert.Equal(t, "domain-999", resolver.Resolve(context.Background(), "999"))
}
