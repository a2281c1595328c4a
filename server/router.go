package server

import (
	"strings"
	"sync"

	"github.com/satwatch/satwatch-service/types"
)

type dynamicRoute struct {
	method   string
	segments []string
	handler  types.FastHTTPHandler
	config   *types.RouteConfig
}

// Router dispatches by method and path. Static paths resolve through a
// single map lookup; paths with {param} segments fall through to a
// segment-by-segment scan. Registration happens at bootstrap, lookups on
// the hot path, hence the RWMutex.
type Router struct {
	mu      sync.RWMutex
	static  map[string]*types.RouteDefinition
	dynamic []*dynamicRoute
	routes  []types.RouteDefinition
}

func NewRouter() *Router {
	return &Router{
		static: make(map[string]*types.RouteDefinition),
	}
}

func (r *Router) Add(method, path string, handler types.FastHTTPHandler, config *types.RouteConfig) {
	method = strings.ToUpper(method)
	path = normalizePath(path)

	definition := types.RouteDefinition{
		Method:  method,
		Path:    path,
		Handler: handler,
		Config:  config,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes = append(r.routes, definition)

	if !strings.Contains(path, "{") {
		r.static[method+" "+path] = &definition
		return
	}

	r.dynamic = append(r.dynamic, &dynamicRoute{
		method:   method,
		segments: strings.Split(strings.TrimPrefix(path, "/"), "/"),
		handler:  handler,
		config:   config,
	})
}

func (r *Router) GET(path string, handler types.FastHTTPHandler, config *types.RouteConfig) {
	r.Add("GET", path, handler, config)
}

func (r *Router) POST(path string, handler types.FastHTTPHandler, config *types.RouteConfig) {
	r.Add("POST", path, handler, config)
}

func (r *Router) Lookup(method, path string) (types.FastHTTPHandler, *types.RouteConfig, map[string]string, bool) {
	method = strings.ToUpper(method)
	path = normalizePath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if definition, ok := r.static[method+" "+path]; ok {
		return definition.Handler, definition.Config, nil, true
	}

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")

	for _, route := range r.dynamic {
		if route.method != method || len(route.segments) != len(segments) {
			continue
		}

		params, ok := matchSegments(route.segments, segments)
		if !ok {
			continue
		}

		return route.handler, route.config, params, true
	}

	return nil, nil, nil, false
}

func (r *Router) Routes() []types.RouteDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]types.RouteDefinition, len(r.routes))
	copy(routes, r.routes)

	return routes
}

func matchSegments(pattern, actual []string) (map[string]string, bool) {
	var params map[string]string

	for i, segment := range pattern {
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			if actual[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string, 2)
			}
			params[segment[1:len(segment)-1]] = actual[i]
			continue
		}
		if segment != actual[i] {
			return nil, false
		}
	}

	return params, true
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if path != "/" && strings.HasSuffix(path, "/") {
		path = strings.TrimRight(path, "/")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
