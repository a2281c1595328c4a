package middleware

import (
	"sort"
	"sync/atomic"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/satwatch/satwatch-service/types"
)

type State int32

const (
	StateStopped State = iota
	StateRunning
)

// Manager assembles the middleware chain. Middlewares are ordered by
// weight, lowest first, so recovery wraps everything and compression
// runs closest to the handler. Weights must be unique; a collision is a
// config mistake worth failing loudly on.
type Manager struct {
	logger      types.Logger
	middlewares []types.Middleware
	state       atomic.Value
}

func NewManager(logger types.Logger, metrics types.MetricsManager, config *types.MiddlewaresConfig, responseCache types.Cache) (*Manager, error) {
	m := &Manager{logger: logger}
	m.state.Store(StateStopped)

	if config == nil || !config.Enabled {
		return m, nil
	}

	register := func(item *types.MiddlewareItemConfig, build func(*types.MiddlewareItemConfig) (types.Middleware, error)) error {
		if item == nil || !item.Enabled {
			return nil
		}
		mw, err := build(item)
		if err != nil {
			return err
		}
		m.middlewares = append(m.middlewares, mw)
		m.logger.Info("Middleware registered",
			zap.String("name", mw.Name()),
			zap.Int("weight", mw.Weight()))
		return nil
	}

	builders := []struct {
		item  *types.MiddlewareItemConfig
		build func(*types.MiddlewareItemConfig) (types.Middleware, error)
	}{
		{config.Recovery, func(item *types.MiddlewareItemConfig) (types.Middleware, error) {
			return NewRecoveryMiddleware(logger, metrics, item), nil
		}},
		{config.Logging, func(item *types.MiddlewareItemConfig) (types.Middleware, error) {
			return NewLoggingMiddleware(logger, item)
		}},
		{config.CORS, func(item *types.MiddlewareItemConfig) (types.Middleware, error) {
			return NewCORSMiddleware(logger, item)
		}},
		{config.Metadata, func(item *types.MiddlewareItemConfig) (types.Middleware, error) {
			return NewMetadataMiddleware(logger, item), nil
		}},
		{config.Cache, func(item *types.MiddlewareItemConfig) (types.Middleware, error) {
			return NewCacheMiddleware(logger, metrics, item, responseCache)
		}},
		{config.Compression, func(item *types.MiddlewareItemConfig) (types.Middleware, error) {
			return NewCompressionMiddleware(logger, item)
		}},
	}

	for _, b := range builders {
		if err := register(b.item, b.build); err != nil {
			return nil, err
		}
	}

	weights := make(map[int]string, len(m.middlewares))
	for _, mw := range m.middlewares {
		if other, exists := weights[mw.Weight()]; exists {
			return nil, types.NewErrorf("duplicate middleware weight %d for %q and %q",
				mw.Weight(), other, mw.Name())
		}
		weights[mw.Weight()] = mw.Name()
	}

	sort.Slice(m.middlewares, func(i, j int) bool {
		return m.middlewares[i].Weight() < m.middlewares[j].Weight()
	})

	return m, nil
}

// Apply wraps the handler in the configured chain. The route config is
// threaded to every middleware so per-route settings (response cache TTL)
// reach the one that cares.
func (m *Manager) Apply(handler types.FastHTTPHandler, config *types.RouteConfig) types.FastHTTPHandler {
	if len(m.middlewares) == 0 {
		return handler
	}

	wrapped := handler
	for i := len(m.middlewares) - 1; i >= 0; i-- {
		mw := m.middlewares[i]
		inner := wrapped
		wrapped = func(ctx *fasthttp.RequestCtx) {
			mw.Handle(ctx, func(ctx *fasthttp.RequestCtx) { inner(ctx) }, config)
		}
	}

	return wrapped
}

func (m *Manager) Start() error {
	m.state.Store(StateRunning)
	return nil
}

func (m *Manager) Stop() error {
	m.state.Store(StateStopped)
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.state.Load().(State) == StateRunning
}
