package server

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/satwatch/satwatch-service/tracker"
	"github.com/satwatch/satwatch-service/types"
	"github.com/satwatch/satwatch-service/utils"
)

const defaultSatelliteLimit = 20

// Handlers owns the API surface. Route cache TTLs mirror the refresh
// cadence of what they serve: the catalog changes every few hours, pass
// predictions every few minutes.
type Handlers struct {
	logger      types.Logger
	tracker     *tracker.Tracker
	processor   *tracker.Processor
	health      types.HealthManager
	metrics     types.MetricsManager
	scheduler   types.SchedulerManager
	caches      types.CacheRegistry
	middlewares types.MiddlewareManager
}

func NewHandlers(
	logger types.Logger,
	trk *tracker.Tracker,
	processor *tracker.Processor,
	health types.HealthManager,
	metrics types.MetricsManager,
	scheduler types.SchedulerManager,
	caches types.CacheRegistry,
	middlewares types.MiddlewareManager,
) *Handlers {
	return &Handlers{
		logger:      logger,
		tracker:     trk,
		processor:   processor,
		health:      health,
		metrics:     metrics,
		scheduler:   scheduler,
		caches:      caches,
		middlewares: middlewares,
	}
}

// RegisterRoutes wires every route into the router, wrapping each
// handler in the middleware chain once.
func (h *Handlers) RegisterRoutes(router types.HTTPRouter) {
	add := func(method, path string, handler types.FastHTTPHandler, config *types.RouteConfig) {
		if h.middlewares != nil {
			handler = h.middlewares.Apply(handler, config)
		}
		router.Add(method, path, handler, config)
	}

	add("GET", "/api/satellites", h.handleSatellites, &types.RouteConfig{
		Cache: &types.RouteCacheConfig{Enabled: true, TTL: 10 * time.Minute},
	})
	add("GET", "/api/passes", h.handlePasses, &types.RouteConfig{
		Cache: &types.RouteCacheConfig{Enabled: true, TTL: 5 * time.Minute},
	})
	add("GET", "/api/coverage", h.handleCoverage, &types.RouteConfig{
		Cache: &types.RouteCacheConfig{Enabled: true, TTL: time.Hour},
	})
	add("GET", "/api/export/{format}", h.handleExport, nil)
	add("GET", "/api/jobs", h.handleJobs, nil)
	add("POST", "/api/cache/clear", h.handleCacheClear, nil)
	add("GET", "/health", h.handleHealth, nil)
	add("GET", "/metrics", h.handleMetrics, nil)
}

type satelliteItem struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

func (h *Handlers) handleSatellites(ctx *fasthttp.RequestCtx) {
	satellites, err := h.tracker.UpdateTLEData(ctx, false)
	if err != nil {
		h.writeError(ctx, err)
		return
	}

	if pattern := string(ctx.QueryArgs().Peek("constellation")); pattern != "" {
		satellites = h.processor.FilterSatellites(satellites, pattern)
	}

	limit := defaultSatelliteLimit
	if raw := ctx.QueryArgs().Peek("limit"); len(raw) > 0 {
		parsed, err := strconv.Atoi(string(raw))
		if err != nil || parsed < 1 {
			utils.CreateBadRequestResponse(ctx, "Invalid limit. Must be a positive integer.")
			return
		}
		limit = parsed
	}

	total := len(satellites)
	if len(satellites) > limit {
		satellites = satellites[:limit]
	}

	items := make([]satelliteItem, 0, len(satellites))
	for _, sat := range satellites {
		items = append(items, satelliteItem{Name: sat.Name, ID: satelliteShortID(sat.Name)})
	}

	h.writeJSON(ctx, map[string]interface{}{
		"satellites": items,
		"count":      len(items),
		"total":      total,
		"updated":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) handlePasses(ctx *fasthttp.RequestCtx) {
	query := h.tracker.ObserverQuery()

	args := ctx.QueryArgs()
	var err error

	if query.Latitude, err = floatParam(args, "lat", query.Latitude); err != nil {
		utils.CreateBadRequestResponse(ctx, "Invalid parameter format.")
		return
	}
	if query.Longitude, err = floatParam(args, "lon", query.Longitude); err != nil {
		utils.CreateBadRequestResponse(ctx, "Invalid parameter format.")
		return
	}
	if query.Altitude, err = floatParam(args, "alt", query.Altitude); err != nil {
		utils.CreateBadRequestResponse(ctx, "Invalid parameter format.")
		return
	}
	if query.MinElevation, err = floatParam(args, "min_elevation", query.MinElevation); err != nil {
		utils.CreateBadRequestResponse(ctx, "Invalid parameter format.")
		return
	}
	if raw := args.Peek("hours"); len(raw) > 0 {
		hours, err := strconv.Atoi(string(raw))
		if err != nil {
			utils.CreateBadRequestResponse(ctx, "Invalid parameter format.")
			return
		}
		query.HoursAhead = hours
	}

	switch {
	case query.Latitude < -90 || query.Latitude > 90:
		utils.CreateBadRequestResponse(ctx, "Invalid latitude. Must be between -90 and 90.")
		return
	case query.Longitude < -180 || query.Longitude > 180:
		utils.CreateBadRequestResponse(ctx, "Invalid longitude. Must be between -180 and 180.")
		return
	case query.HoursAhead < 1 || query.HoursAhead > 168:
		utils.CreateBadRequestResponse(ctx, "Invalid hours. Must be between 1 and 168.")
		return
	}

	passes, err := h.tracker.PredictPasses(ctx, query)
	if err != nil {
		h.writeError(ctx, err)
		return
	}

	h.writeJSON(ctx, map[string]interface{}{
		"passes": passes,
		"count":  len(passes),
		"location": map[string]float64{
			"latitude":  query.Latitude,
			"longitude": query.Longitude,
		},
		"period_hours": query.HoursAhead,
	})
}

func (h *Handlers) handleCoverage(ctx *fasthttp.RequestCtx) {
	satellites := h.tracker.Satellites()
	if len(satellites) == 0 {
		h.writeError(ctx, types.ErrNoSatelliteData)
		return
	}

	stats := h.processor.AnalyzeConstellation(satellites)

	h.writeJSON(ctx, stats)
}

func (h *Handlers) handleExport(ctx *fasthttp.RequestCtx) {
	format, _ := ctx.UserValue("format").(string)
	if format == "" {
		format = h.processor.DefaultFormat()
	}

	satellites := h.tracker.Satellites()
	if len(satellites) == 0 {
		h.writeError(ctx, types.ErrNoSatelliteData)
		return
	}

	data, compressed, err := h.processor.Export(satellites, format)
	if err != nil {
		h.writeError(ctx, err)
		return
	}

	switch format {
	case "csv":
		ctx.SetContentType("text/csv")
	default:
		ctx.SetContentType("application/json")
	}
	if compressed {
		ctx.Response.Header.Set("Content-Encoding", "gzip")
	}

	ctx.SetBody(data)
}

func (h *Handlers) handleJobs(ctx *fasthttp.RequestCtx) {
	if h.scheduler == nil {
		h.writeJSON(ctx, map[string]interface{}{
			"jobs":    []types.JobInfo{},
			"running": false,
		})
		return
	}

	h.writeJSON(ctx, map[string]interface{}{
		"jobs":    h.scheduler.Jobs(),
		"running": h.scheduler.IsRunning(),
	})
}

func (h *Handlers) handleCacheClear(ctx *fasthttp.RequestCtx) {
	for _, name := range []string{types.CacheTLE, types.CachePredictions, types.CacheProcessed, types.CacheAPI} {
		c, err := h.caches.Cache(name)
		if err != nil {
			continue
		}
		if err := c.Clear(); err != nil {
			h.logger.Warn("Failed to clear cache",
				zap.String("cache", name),
				zap.Error(err))
		}
	}

	h.writeJSON(ctx, map[string]string{"message": "Cache cleared successfully"})
}

func (h *Handlers) handleHealth(ctx *fasthttp.RequestCtx) {
	report := h.health.Check(ctx)

	if report.Status == types.StatusUnhealthy {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	}

	ctx.SetContentType("application/json")
	ctx.Response.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")

	body, err := utils.Marshal(report)
	if err != nil {
		utils.CreateErrorResponse(ctx)
		return
	}
	ctx.SetBody(body)
}

func (h *Handlers) handleMetrics(ctx *fasthttp.RequestCtx) {
	data, err := h.metrics.Gather()
	if err != nil {
		utils.CreateErrorResponse(ctx)
		return
	}

	ctx.SetContentType("text/plain; version=0.0.4; charset=utf-8")
	ctx.SetBody(data)
}

func (h *Handlers) writeJSON(ctx *fasthttp.RequestCtx, payload interface{}) {
	body, err := utils.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal response", zap.Error(err))
		utils.CreateErrorResponse(ctx)
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func (h *Handlers) writeError(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case types.IsError(err, types.ErrNoSatelliteData):
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"No satellite data available"}`)
	case types.IsError(err, types.ErrExportFormatUnknown):
		utils.CreateBadRequestResponse(ctx, "Unsupported export format.")
	case types.IsError(err, types.ErrPredictorNotConfigured):
		ctx.SetStatusCode(fasthttp.StatusNotImplemented)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"Pass prediction is not configured"}`)
	case types.IsError(err, types.ErrTLESourceUnavailable), types.IsError(err, types.ErrCircuitBreakerOpen):
		ctx.SetStatusCode(fasthttp.StatusBadGateway)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"Upstream TLE source unavailable"}`)
	default:
		h.logger.ErrorWithErrStack("Request handler failed", err)
		utils.CreateErrorResponse(ctx)
	}
}

func floatParam(args *fasthttp.Args, name string, fallback float64) (float64, error) {
	raw := args.Peek(name)
	if len(raw) == 0 {
		return fallback, nil
	}
	return strconv.ParseFloat(string(raw), 64)
}

func satelliteShortID(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '-' {
			return name[i+1:]
		}
	}
	return name
}
