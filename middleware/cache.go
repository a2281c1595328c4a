package middleware

import (
	"sort"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/satwatch/satwatch-service/types"
	"github.com/satwatch/satwatch-service/utils"
)

// CacheMiddleware serves successful GET responses from the api cache.
// Only routes that opt in through their RouteConfig are cached; the key
// is method + path + normalized query, so parameter order does not
// fragment the cache.
type CacheMiddleware struct {
	logger      types.Logger
	metrics     types.MetricsManager
	cache       types.Cache
	cacheConfig *CacheConfig
	weight      int
}

type CacheConfig struct {
	DefaultTTL string `json:"default_ttl"`

	defaultTTL time.Duration
}

// cachedResponse keeps the Content-Encoding header because the
// compression middleware sits closer to the handler: what gets cached
// may already be an encoded body.
type cachedResponse struct {
	Status          int
	ContentType     []byte
	ContentEncoding []byte
	Body            []byte
}

func NewCacheMiddleware(logger types.Logger, metrics types.MetricsManager, item *types.MiddlewareItemConfig, cache types.Cache) (*CacheMiddleware, error) {
	cacheConfig := &CacheConfig{defaultTTL: 5 * time.Minute}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, cacheConfig); err != nil {
			logger.Error("Failed to unmarshal Cache middleware config", zap.Error(err))
			return nil, err
		}
		if cacheConfig.DefaultTTL != "" {
			ttl, err := time.ParseDuration(cacheConfig.DefaultTTL)
			if err != nil {
				return nil, types.NewErrorf("cache middleware default_ttl %q: %v", cacheConfig.DefaultTTL, err)
			}
			cacheConfig.defaultTTL = ttl
		}
	}

	return &CacheMiddleware{
		logger:      logger,
		metrics:     metrics,
		cache:       cache,
		cacheConfig: cacheConfig,
		weight:      item.Weight,
	}, nil
}

func (c *CacheMiddleware) Name() string { return "cache" }
func (c *CacheMiddleware) Weight() int  { return c.weight }

func (c *CacheMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), config *types.RouteConfig) {
	if c.cache == nil || string(ctx.Method()) != fasthttp.MethodGet {
		next(ctx)
		return
	}

	if config == nil || config.Cache == nil || !config.Cache.Enabled {
		next(ctx)
		return
	}

	key := c.buildCacheKey(ctx)

	if cached, ok := c.cache.Get(key); ok {
		if resp, ok := cached.(*cachedResponse); ok {
			c.recordLookup("hit")
			c.restoreResponse(ctx, resp)
			return
		}
	}

	c.recordLookup("miss")

	next(ctx)

	if !c.shouldCacheResponse(ctx) {
		return
	}

	resp := &cachedResponse{
		Status:          ctx.Response.StatusCode(),
		ContentType:     append([]byte(nil), ctx.Response.Header.ContentType()...),
		ContentEncoding: append([]byte(nil), ctx.Response.Header.Peek("Content-Encoding")...),
		Body:            append([]byte(nil), ctx.Response.Body()...),
	}

	if err := c.cache.SetWithTTL(key, resp, c.ttl(config.Cache)); err != nil {
		c.logger.Warn("Failed to cache response",
			zap.String("cache_key", key),
			zap.Error(err))
	}
}

func (c *CacheMiddleware) shouldCacheResponse(ctx *fasthttp.RequestCtx) bool {
	status := ctx.Response.StatusCode()
	if status < 200 || status >= 300 {
		return false
	}
	if len(ctx.Response.Body()) == 0 {
		return false
	}

	cacheControl := strings.ToLower(string(ctx.Response.Header.Peek("Cache-Control")))
	if strings.Contains(cacheControl, "no-cache") || strings.Contains(cacheControl, "no-store") {
		return false
	}

	return true
}

func (c *CacheMiddleware) buildCacheKey(ctx *fasthttp.RequestCtx) string {
	var sb strings.Builder
	sb.Write(ctx.Method())
	sb.WriteByte(' ')
	sb.Write(ctx.Path())

	args := ctx.QueryArgs()
	if args.Len() > 0 {
		params := make([]string, 0, args.Len())
		args.VisitAll(func(key, value []byte) {
			params = append(params, string(key)+"="+string(value))
		})
		sort.Strings(params)
		sb.WriteByte('?')
		sb.WriteString(strings.Join(params, "&"))
	}

	// The stored body may be encoded, so the key varies on
	// Accept-Encoding the same way a Vary-aware proxy would.
	if accept := ctx.Request.Header.Peek("Accept-Encoding"); len(accept) > 0 {
		sb.WriteByte('|')
		sb.Write(accept)
	}

	return sb.String()
}

func (c *CacheMiddleware) ttl(config *types.RouteCacheConfig) time.Duration {
	if config.TTL > 0 {
		return config.TTL
	}
	return c.cacheConfig.defaultTTL
}

func (c *CacheMiddleware) restoreResponse(ctx *fasthttp.RequestCtx, resp *cachedResponse) {
	ctx.SetStatusCode(resp.Status)
	if len(resp.ContentType) > 0 {
		ctx.Response.Header.SetContentTypeBytes(resp.ContentType)
	}
	if len(resp.ContentEncoding) > 0 {
		ctx.Response.Header.SetBytesV("Content-Encoding", resp.ContentEncoding)
	}
	ctx.Response.Header.Set("X-Cache", "HIT")
	ctx.SetBody(resp.Body)
}

func (c *CacheMiddleware) recordLookup(result string) {
	if c.metrics == nil {
		return
	}
	c.metrics.Counter("http_response_cache_total",
		map[string]string{"result": result}).Inc()
}
