package types

import (
	"time"

	"github.com/valyala/fasthttp"
)

type HTTPServer interface {
	LifecycleManager
}

type FastHTTPHandler func(ctx *fasthttp.RequestCtx)

type HTTPRouter interface {
	Add(method, path string, handler FastHTTPHandler, config *RouteConfig)
	GET(path string, handler FastHTTPHandler, config *RouteConfig)
	Lookup(method, path string) (FastHTTPHandler, *RouteConfig, map[string]string, bool)
	Routes() []RouteDefinition
}

type RouteConfig struct {
	Cache   *RouteCacheConfig
	Timeout time.Duration
}

type RouteCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

type RouteDefinition struct {
	Method  string
	Path    string
	Handler FastHTTPHandler
	Config  *RouteConfig
}

type Middleware interface {
	Name() string
	Weight() int
	Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), config *RouteConfig)
}

type MiddlewareManager interface {
	LifecycleManager
	Apply(handler FastHTTPHandler, config *RouteConfig) FastHTTPHandler
}
