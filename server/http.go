package server

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satwatch/satwatch-service/types"
	"github.com/satwatch/satwatch-service/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type FastHTTPServer struct {
	logger          types.Logger
	metrics         types.MetricsManager
	middlewares     types.MiddlewareManager
	router          types.HTTPRouter
	server          *fasthttp.Server
	listener        net.Listener
	httpConfig      *types.HTTPConfig
	state           atomic.Value
	shutdownTimeout time.Duration
}

func NewHTTPServer(logger types.Logger, metrics types.MetricsManager, middlewares types.MiddlewareManager, router types.HTTPRouter, httpConfig *types.HTTPConfig) *FastHTTPServer {
	shutdownTimeout := 5 * time.Second
	if httpConfig.ShutdownTimeout > 0 {
		shutdownTimeout = time.Duration(httpConfig.ShutdownTimeout) * time.Second
	}

	server := &FastHTTPServer{
		logger:          logger,
		metrics:         metrics,
		middlewares:     middlewares,
		router:          router,
		httpConfig:      httpConfig,
		shutdownTimeout: shutdownTimeout,
	}

	server.state.Store(StateStopped)

	return server
}

func (h *FastHTTPServer) Start() error {
	if !h.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	h.server = &fasthttp.Server{
		Handler:                      h.mainHandler(),
		ReadTimeout:                  time.Duration(h.httpConfig.ReadTimeout) * time.Second,
		WriteTimeout:                 time.Duration(h.httpConfig.WriteTimeout) * time.Second,
		IdleTimeout:                  time.Duration(h.httpConfig.IdleTimeout) * time.Second,
		TCPKeepalive:                 true,
		DisablePreParseMultipartForm: true,
		CloseOnShutdown:              true,
	}

	addr := fmt.Sprintf("%s:%d", h.httpConfig.Host, h.httpConfig.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		h.setState(StateStopped)
		return types.WrapError(err, "HTTP listener failed")
	}
	h.listener = listener

	go func() {
		if err := h.server.Serve(listener); err != nil {
			if h.getState() == StateRunning {
				h.logger.Error("HTTP server failed", zap.Error(err))
				h.setState(StateStopped)
			}
		}
	}()

	h.setState(StateRunning)

	h.logger.Info("HTTP server started",
		zap.String("address", addr))

	return nil
}

func (h *FastHTTPServer) Stop() error {
	if !h.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer h.setState(StateStopped)

	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		return h.server.ShutdownWithContext(ctx)
	})

	if err := g.Wait(); err != nil {
		h.logger.Warn("HTTP server did not stop gracefully", zap.Error(err))
		return nil
	}

	h.logger.Info("HTTP server stopped gracefully")

	return nil
}

func (h *FastHTTPServer) IsRunning() bool {
	return h.getState() == StateRunning
}

// Addr returns the bound listen address, useful when the configured port
// is 0.
func (h *FastHTTPServer) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

func (h *FastHTTPServer) mainHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()

		method := string(ctx.Method())
		path := string(ctx.Path())

		// Handlers come out of the router already wrapped in the
		// middleware chain; wrapping happens once at registration.
		handler, _, params, found := h.router.Lookup(method, path)
		if !found {
			// Let the CORS middleware answer bare preflights for
			// registered GET routes.
			if method == fasthttp.MethodOptions && h.middlewares != nil {
				h.middlewares.Apply(func(ctx *fasthttp.RequestCtx) {}, nil)(ctx)
				return
			}
			utils.CreateNotFoundResponse(ctx)
			h.recordRequest(method, "not_found", fasthttp.StatusNotFound, start)
			return
		}

		for name, value := range params {
			ctx.SetUserValue(name, value)
		}

		handler(ctx)
		h.recordRequest(method, path, ctx.Response.StatusCode(), start)
	}
}

func (h *FastHTTPServer) recordRequest(method, path string, status int, start time.Time) {
	if h.metrics == nil {
		return
	}

	labels := map[string]string{
		"method": method,
		"path":   path,
		"status": fmt.Sprintf("%d", status),
	}

	h.metrics.Counter("http_requests_total", labels).Inc()
	h.metrics.Histogram("http_request_duration_seconds", requestDurationBuckets, labels).ObserveDuration(start)
}

var requestDurationBuckets = []float64{0.001, 0.01, 0.1, 0.5, 1, 5}

func (h *FastHTTPServer) getState() State {
	return h.state.Load().(State)
}

func (h *FastHTTPServer) setState(state State) {
	h.state.Store(state)
}

func (h *FastHTTPServer) transitionState(from, to State) bool {
	return h.state.CompareAndSwap(from, to)
}
