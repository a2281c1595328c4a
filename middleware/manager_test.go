package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/satwatch/satwatch-service/cache"
	"github.com/satwatch/satwatch-service/types"
)

type nopLogger struct{}

func (nopLogger) Error(string, ...zap.Field)                    {}
func (nopLogger) Warn(string, ...zap.Field)                     {}
func (nopLogger) Info(string, ...zap.Field)                     {}
func (nopLogger) Debug(string, ...zap.Field)                    {}
func (nopLogger) Log(zapcore.Level, string, ...zap.Field)       {}
func (nopLogger) ErrorWithErrStack(string, error, ...zap.Field) {}

func fullChainConfig() *types.MiddlewaresConfig {
	return &types.MiddlewaresConfig{
		Enabled:     true,
		Recovery:    &types.MiddlewareItemConfig{Enabled: true, Weight: 10},
		Logging:     &types.MiddlewareItemConfig{Enabled: true, Weight: 20},
		CORS:        &types.MiddlewareItemConfig{Enabled: true, Weight: 30},
		Metadata:    &types.MiddlewareItemConfig{Enabled: true, Weight: 40},
		Cache:       &types.MiddlewareItemConfig{Enabled: true, Weight: 50},
		Compression: &types.MiddlewareItemConfig{Enabled: true, Weight: 60},
	}
}

func newTestManager(t *testing.T, config *types.MiddlewaresConfig) *Manager {
	t.Helper()

	apiCache := cache.NewMemoryCache(nopLogger{}, types.CacheAPI, &types.CacheInstanceConfig{
		MaxEntries: 100,
		DefaultTTL: time.Minute,
	})

	m, err := NewManager(nopLogger{}, nil, config, apiCache)
	require.NoError(t, err)

	return m
}

func newGetCtx(uri string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI(uri)
	ctx.Request.Header.SetMethod(fasthttp.MethodGet)
	return ctx
}

func TestManager_AppliesChainInWeightOrder(t *testing.T) {
	m := newTestManager(t, fullChainConfig())

	var order []string
	handler := m.Apply(func(ctx *fasthttp.RequestCtx) {
		order = append(order, "handler")
		ctx.SetBodyString("ok")
	}, nil)

	handler(newGetCtx("/api/satellites"))
	assert.Equal(t, []string{"handler"}, order)
}

func TestManager_DuplicateWeightRejected(t *testing.T) {
	config := fullChainConfig()
	config.Logging.Weight = 10

	_, err := NewManager(nopLogger{}, nil, config, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate middleware weight")
}

func TestManager_DisabledConfigIsPassthrough(t *testing.T) {
	m := newTestManager(t, &types.MiddlewaresConfig{Enabled: false})

	called := false
	handler := m.Apply(func(ctx *fasthttp.RequestCtx) { called = true }, nil)

	handler(newGetCtx("/api/satellites"))
	assert.True(t, called)
}

func TestRecovery_ConvertsPanicTo500(t *testing.T) {
	m := newTestManager(t, fullChainConfig())

	handler := m.Apply(func(ctx *fasthttp.RequestCtx) {
		panic("satellite catalog corrupted")
	}, nil)

	ctx := newGetCtx("/api/satellites")
	handler(ctx)
	assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
}

func TestMetadata_AssignsRequestID(t *testing.T) {
	m := newTestManager(t, fullChainConfig())

	handler := m.Apply(func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString("ok")
	}, nil)

	ctx := newGetCtx("/api/satellites")
	handler(ctx)
	assert.NotEmpty(t, ctx.Response.Header.Peek("X-Request-ID"))
}

func TestMetadata_KeepsCallerRequestID(t *testing.T) {
	m := newTestManager(t, fullChainConfig())

	handler := m.Apply(func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString("ok")
	}, nil)

	ctx := newGetCtx("/api/satellites")
	ctx.Request.Header.Set("X-Request-ID", "req-from-caller")
	handler(ctx)
	assert.Equal(t, "req-from-caller", string(ctx.Response.Header.Peek("X-Request-ID")))
}

func TestCacheMiddleware_ServesSecondRequestFromCache(t *testing.T) {
	m := newTestManager(t, fullChainConfig())

	calls := 0
	routeConfig := &types.RouteConfig{
		Cache: &types.RouteCacheConfig{Enabled: true, TTL: time.Minute},
	}
	handler := m.Apply(func(ctx *fasthttp.RequestCtx) {
		calls++
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"satellites":[]}`)
	}, routeConfig)

	first := newGetCtx("/api/satellites?constellation=starlink")
	handler(first)
	assert.Empty(t, first.Response.Header.Peek("X-Cache"))

	second := newGetCtx("/api/satellites?constellation=starlink")
	handler(second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "HIT", string(second.Response.Header.Peek("X-Cache")))
	assert.Equal(t, `{"satellites":[]}`, string(second.Response.Body()))
}

func TestCacheMiddleware_QueryOrderDoesNotFragment(t *testing.T) {
	m := newTestManager(t, fullChainConfig())

	calls := 0
	routeConfig := &types.RouteConfig{
		Cache: &types.RouteCacheConfig{Enabled: true, TTL: time.Minute},
	}
	handler := m.Apply(func(ctx *fasthttp.RequestCtx) {
		calls++
		ctx.SetContentType("application/json")
		ctx.SetBodyString("{}")
	}, routeConfig)

	handler(newGetCtx("/api/passes?lat=55.7&lon=37.6"))
	handler(newGetCtx("/api/passes?lon=37.6&lat=55.7"))
	assert.Equal(t, 1, calls)
}

func TestCacheMiddleware_UncachedRouteSkipsCache(t *testing.T) {
	m := newTestManager(t, fullChainConfig())

	calls := 0
	handler := m.Apply(func(ctx *fasthttp.RequestCtx) {
		calls++
		ctx.SetContentType("application/json")
		ctx.SetBodyString("{}")
	}, nil)

	handler(newGetCtx("/api/coverage"))
	handler(newGetCtx("/api/coverage"))
	assert.Equal(t, 2, calls)
}

func TestCompression_GzipsLargeJSONResponses(t *testing.T) {
	m := newTestManager(t, fullChainConfig())

	body := `{"data":"` + strings.Repeat("starlink ", 500) + `"}`
	handler := m.Apply(func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/json")
		ctx.SetBodyString(body)
	}, nil)

	ctx := newGetCtx("/api/satellites")
	ctx.Request.Header.Set("Accept-Encoding", "gzip")
	handler(ctx)

	require.Equal(t, "gzip", string(ctx.Response.Header.Peek("Content-Encoding")))

	r, err := gzip.NewReader(bytes.NewReader(ctx.Response.Body()))
	require.NoError(t, err)
	plain, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, body, string(plain))
}

func TestCompression_SmallBodiesPassThrough(t *testing.T) {
	m := newTestManager(t, fullChainConfig())

	handler := m.Apply(func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/json")
		ctx.SetBodyString("{}")
	}, nil)

	ctx := newGetCtx("/api/satellites")
	ctx.Request.Header.Set("Accept-Encoding", "gzip, br")
	handler(ctx)
	assert.Empty(t, ctx.Response.Header.Peek("Content-Encoding"))
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	m := newTestManager(t, fullChainConfig())

	called := false
	handler := m.Apply(func(ctx *fasthttp.RequestCtx) { called = true }, nil)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/api/satellites")
	ctx.Request.Header.SetMethod(fasthttp.MethodOptions)
	ctx.Request.Header.Set("Origin", "https://dashboard.example")
	handler(ctx)

	assert.False(t, called)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	assert.Equal(t, "*", string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")))
}
