package tracker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/satwatch/satwatch-service/types"
)

const (
	defaultHoursAhead   = 24
	defaultMinElevation = 10.0

	tleCacheKey = "satellites"
)

// Fetcher is the upstream document client. client.HTTPClient satisfies it.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, int, error)
}

// Tracker owns the satellite catalog: fetching TLE data from CelesTrak,
// keeping the parsed set in memory, and computing pass predictions
// through the injected Predictor. Both reads go cache-aside against the
// tle and predictions caches.
type Tracker struct {
	logger      types.Logger
	metrics     types.MetricsManager
	fetcher     Fetcher
	predictor   types.Predictor
	tleCache    types.Cache
	predictions types.Cache
	dataSources *types.DataSourcesConfig
	observer    *types.ObserverConfig

	mu         sync.RWMutex
	satellites []types.Satellite
}

type Dependencies struct {
	Logger      types.Logger
	Metrics     types.MetricsManager
	Fetcher     Fetcher
	Predictor   types.Predictor
	TLECache    types.Cache
	Predictions types.Cache
	DataSources *types.DataSourcesConfig
	Observer    *types.ObserverConfig
}

func NewTracker(deps Dependencies) *Tracker {
	return &Tracker{
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		fetcher:     deps.Fetcher,
		predictor:   deps.Predictor,
		tleCache:    deps.TLECache,
		predictions: deps.Predictions,
		dataSources: deps.DataSources,
		observer:    deps.Observer,
	}
}

// UpdateTLEData refreshes the satellite catalog. Without force, a cached
// catalog short-circuits the download. The primary URL is tried first,
// then each backup URL; when every source fails the previous in-memory
// catalog is returned as a stale fallback if one exists.
func (t *Tracker) UpdateTLEData(ctx context.Context, force bool) ([]types.Satellite, error) {
	if !force {
		if cached, ok := t.tleCache.Get(tleCacheKey); ok {
			if satellites, ok := cached.([]types.Satellite); ok {
				t.logger.Info("Using cached TLE data",
					zap.Int("satellites", len(satellites)))
				t.storeSatellites(satellites)
				return satellites, nil
			}
		}
	}

	urls := make([]string, 0, 1+len(t.dataSources.BackupURLs))
	urls = append(urls, t.dataSources.CelestrakURL)
	urls = append(urls, t.dataSources.BackupURLs...)

	for _, url := range urls {
		satellites, err := t.fetchFromSource(ctx, url)
		if err != nil {
			t.logger.Warn("TLE source failed",
				zap.String("url", url),
				zap.Error(err))
			continue
		}

		if err := t.tleCache.Set(tleCacheKey, satellites); err != nil {
			t.logger.Warn("Failed to cache TLE data", zap.Error(err))
		}

		t.storeSatellites(satellites)
		t.recordUpdate("success")

		t.logger.Info("TLE data updated",
			zap.String("url", url),
			zap.Int("satellites", len(satellites)))

		return satellites, nil
	}

	t.recordUpdate("error")

	// Stale catalog beats no catalog for prediction purposes.
	if stale := t.Satellites(); len(stale) > 0 {
		t.logger.Warn("All TLE sources failed, keeping stale catalog",
			zap.Int("satellites", len(stale)))
		return stale, nil
	}

	return nil, types.Errorf(types.ErrTLESourceUnavailable,
		"all %d sources failed and no cached data available", len(urls))
}

// Satellites returns a snapshot of the current catalog.
func (t *Tracker) Satellites() []types.Satellite {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snapshot := make([]types.Satellite, len(t.satellites))
	copy(snapshot, t.satellites)

	return snapshot
}

// PredictPasses computes passes for the query, cache-aside on the
// predictions cache. Queries with unset lookahead or elevation pick up
// the defaults before the cache key is built, so equivalent queries share
// an entry.
func (t *Tracker) PredictPasses(ctx context.Context, query types.PassQuery) ([]types.Pass, error) {
	if query.HoursAhead <= 0 {
		query.HoursAhead = defaultHoursAhead
	}
	if query.MinElevation <= 0 {
		query.MinElevation = defaultMinElevation
	}

	cacheKey := query.CacheKey()

	if cached, ok := t.predictions.Get(cacheKey); ok {
		if passes, ok := cached.([]types.Pass); ok {
			t.recordPrediction("cached")
			return passes, nil
		}
	}

	if t.predictor == nil {
		return nil, types.ErrPredictorNotConfigured
	}

	satellites := t.Satellites()
	if len(satellites) == 0 {
		return nil, types.Errorf(types.ErrNoSatelliteData, "update TLE data first")
	}

	passes, err := t.predictor.PredictPasses(ctx, satellites, query)
	if err != nil {
		t.recordPrediction("error")
		return nil, types.WrapError(err, "predict passes")
	}

	if err := t.predictions.Set(cacheKey, passes); err != nil {
		t.logger.Warn("Failed to cache predictions", zap.Error(err))
	}

	t.recordPrediction("computed")

	return passes, nil
}

// ObserverQuery builds the default pass query for the configured ground
// observer.
func (t *Tracker) ObserverQuery() types.PassQuery {
	return types.PassQuery{
		Latitude:     t.observer.Latitude,
		Longitude:    t.observer.Longitude,
		Altitude:     t.observer.Altitude,
		HoursAhead:   defaultHoursAhead,
		MinElevation: defaultMinElevation,
	}
}

func (t *Tracker) fetchFromSource(ctx context.Context, url string) ([]types.Satellite, error) {
	body, statusCode, err := t.fetcher.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	if statusCode != 200 {
		return nil, types.Errorf(types.ErrTLESourceUnavailable, "HTTP %d from %s", statusCode, url)
	}

	satellites, skipped, err := ParseTLE(body)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		t.logger.Warn("Skipped malformed TLE records",
			zap.String("url", url),
			zap.Int("skipped", skipped))
	}

	if limit := t.dataSources.MaxSatellites; limit > 0 && len(satellites) > limit {
		satellites = satellites[:limit]
	}

	return satellites, nil
}

func (t *Tracker) storeSatellites(satellites []types.Satellite) {
	t.mu.Lock()
	t.satellites = satellites
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.Gauge("tracker_satellites", nil).Set(float64(len(satellites)))
	}
}

func (t *Tracker) recordUpdate(result string) {
	if t.metrics == nil {
		return
	}
	t.metrics.Counter("tracker_tle_updates_total",
		map[string]string{"result": result}).Inc()
}

func (t *Tracker) recordPrediction(result string) {
	if t.metrics == nil {
		return
	}
	t.metrics.Counter("tracker_predictions_total",
		map[string]string{"result": result}).Inc()
}
