package tracker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

const sampleTLE = `STARLINK-1008
1 44714U 19074B   24001.50000000  .00002182  00000-0  16538-3 0  9998
2 44714  53.0541 157.5052 0001378  90.8566 269.2546 15.06395045227814
STARLINK-1010
1 44716U 19074D   24001.50000000  .00001934  00000-0  14768-3 0  9993
2 44716  53.0540 157.4923 0001418  88.5021 271.6131 15.06395996227816
STARLINK-1130
1 44932U 20001A   24001.50000000  .00001521  00000-0  11882-3 0  9991
2 44932  53.0548 137.4641 0001365  91.9587 268.1561 15.06394337221246
`

type stubFetcher struct {
	responses map[string]string
	status    int
	err       error
	calls     []string
}

func (f *stubFetcher) Get(ctx context.Context, url string) ([]byte, int, error) {
	f.calls = append(f.calls, url)
	if f.err != nil {
		return nil, 500, f.err
	}
	body, ok := f.responses[url]
	if !ok {
		return nil, 404, types.Errorf(types.ErrClientRequestFailed, "HTTP 404")
	}
	status := f.status
	if status == 0 {
		status = 200
	}
	return []byte(body), status, nil
}

type stubPredictor struct {
	passes []types.Pass
	err    error
	calls  int
}

func (p *stubPredictor) PredictPasses(ctx context.Context, satellites []types.Satellite, query types.PassQuery) ([]types.Pass, error) {
	p.calls++
	return p.passes, p.err
}

func newTestCache(t *testing.T, name string) types.Cache {
	t.Helper()
	return cache.NewMemoryCache(nopLogger{}, name, &types.CacheInstanceConfig{
		MaxEntries: 100,
		DefaultTTL: time.Minute,
	})
}

func newTestTracker(t *testing.T, fetcher Fetcher, predictor types.Predictor) *Tracker {
	t.Helper()
	return NewTracker(Dependencies{
		Logger:      nopLogger{},
		Fetcher:     fetcher,
		Predictor:   predictor,
		TLECache:    newTestCache(t, types.CacheTLE),
		Predictions: newTestCache(t, types.CachePredictions),
		DataSources: &types.DataSourcesConfig{
			CelestrakURL: "https://primary.example/tle",
			BackupURLs:   []string{"https://backup.example/tle"},
		},
		Observer: &types.ObserverConfig{Latitude: 55.7558, Longitude: 37.6173, Altitude: 150},
	})
}

func TestParseTLE(t *testing.T) {
	satellites, skipped, err := ParseTLE([]byte(sampleTLE))
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, satellites, 3)
	assert.Equal(t, "STARLINK-1008", satellites[0].Name)
	assert.True(t, strings.HasPrefix(satellites[0].Line1, "1 44714U"))
	assert.True(t, strings.HasPrefix(satellites[0].Line2, "2 44714"))
}

func TestParseTLE_SkipsMalformedGroups(t *testing.T) {
	payload := sampleTLE + "BROKEN-SAT\nnot a tle line\nalso not a tle line\n"

	satellites, skipped, err := ParseTLE([]byte(payload))
	require.NoError(t, err)
	assert.Len(t, satellites, 3)
	assert.Equal(t, 1, skipped)
}

func TestParseTLE_Malformed(t *testing.T) {
	_, _, err := ParseTLE([]byte("just\nsome\ngarbage"))
	assert.ErrorIs(t, err, types.ErrTLEMalformed)

	_, _, err = ParseTLE([]byte(""))
	assert.ErrorIs(t, err, types.ErrTLEMalformed)
}

func TestUpdateTLEData_FetchesAndCaches(t *testing.T) {
	fetcher := &stubFetcher{responses: map[string]string{
		"https://primary.example/tle": sampleTLE,
	}}
	tracker := newTestTracker(t, fetcher, nil)

	satellites, err := tracker.UpdateTLEData(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, satellites, 3)
	assert.Len(t, fetcher.calls, 1)

	// Second call hits the tle cache.
	satellites, err = tracker.UpdateTLEData(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, satellites, 3)
	assert.Len(t, fetcher.calls, 1)
}

func TestUpdateTLEData_ForceBypassesCache(t *testing.T) {
	fetcher := &stubFetcher{responses: map[string]string{
		"https://primary.example/tle": sampleTLE,
	}}
	tracker := newTestTracker(t, fetcher, nil)

	_, err := tracker.UpdateTLEData(context.Background(), false)
	require.NoError(t, err)

	_, err = tracker.UpdateTLEData(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, fetcher.calls, 2)
}

func TestUpdateTLEData_FallsBackToBackupURL(t *testing.T) {
	fetcher := &stubFetcher{responses: map[string]string{
		"https://backup.example/tle": sampleTLE,
	}}
	tracker := newTestTracker(t, fetcher, nil)

	satellites, err := tracker.UpdateTLEData(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, satellites, 3)
	assert.Equal(t, []string{"https://primary.example/tle", "https://backup.example/tle"}, fetcher.calls)
}

func TestUpdateTLEData_StaleCatalogOnTotalFailure(t *testing.T) {
	fetcher := &stubFetcher{responses: map[string]string{
		"https://primary.example/tle": sampleTLE,
	}}
	tracker := newTestTracker(t, fetcher, nil)

	_, err := tracker.UpdateTLEData(context.Background(), false)
	require.NoError(t, err)

	fetcher.responses = nil
	satellites, err := tracker.UpdateTLEData(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, satellites, 3)
}

func TestUpdateTLEData_AllSourcesDown(t *testing.T) {
	fetcher := &stubFetcher{err: types.ErrClientRequestFailed}
	tracker := newTestTracker(t, fetcher, nil)

	_, err := tracker.UpdateTLEData(context.Background(), false)
	assert.ErrorIs(t, err, types.ErrTLESourceUnavailable)
}

func TestUpdateTLEData_MaxSatellitesCap(t *testing.T) {
	fetcher := &stubFetcher{responses: map[string]string{
		"https://primary.example/tle": sampleTLE,
	}}
	tracker := newTestTracker(t, fetcher, nil)
	tracker.dataSources.MaxSatellites = 2

	satellites, err := tracker.UpdateTLEData(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, satellites, 2)
}

func TestPredictPasses_CacheAside(t *testing.T) {
	fetcher := &stubFetcher{responses: map[string]string{
		"https://primary.example/tle": sampleTLE,
	}}
	predictor := &stubPredictor{passes: []types.Pass{
		{Satellite: "STARLINK-1008", Time: time.Now().Add(time.Hour), Altitude: 45},
	}}
	tracker := newTestTracker(t, fetcher, predictor)

	_, err := tracker.UpdateTLEData(context.Background(), false)
	require.NoError(t, err)

	query := types.PassQuery{Latitude: 55.7558, Longitude: 37.6173, HoursAhead: 24, MinElevation: 25}

	passes, err := tracker.PredictPasses(context.Background(), query)
	require.NoError(t, err)
	assert.Len(t, passes, 1)
	assert.Equal(t, 1, predictor.calls)

	// Same query served from the predictions cache.
	passes, err = tracker.PredictPasses(context.Background(), query)
	require.NoError(t, err)
	assert.Len(t, passes, 1)
	assert.Equal(t, 1, predictor.calls)

	// A different observer recomputes.
	query.Latitude = 40.0
	_, err = tracker.PredictPasses(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, 2, predictor.calls)
}

func TestPredictPasses_DefaultsNormalizeCacheKey(t *testing.T) {
	fetcher := &stubFetcher{responses: map[string]string{
		"https://primary.example/tle": sampleTLE,
	}}
	predictor := &stubPredictor{}
	tracker := newTestTracker(t, fetcher, predictor)

	_, err := tracker.UpdateTLEData(context.Background(), false)
	require.NoError(t, err)

	_, err = tracker.PredictPasses(context.Background(), types.PassQuery{Latitude: 55.7558})
	require.NoError(t, err)

	_, err = tracker.PredictPasses(context.Background(), types.PassQuery{
		Latitude:     55.7558,
		HoursAhead:   24,
		MinElevation: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, predictor.calls)
}

func TestPredictPasses_NoPredictor(t *testing.T) {
	tracker := newTestTracker(t, &stubFetcher{}, nil)

	_, err := tracker.PredictPasses(context.Background(), types.PassQuery{})
	assert.ErrorIs(t, err, types.ErrPredictorNotConfigured)
}

func TestPredictPasses_NoSatellites(t *testing.T) {
	tracker := newTestTracker(t, &stubFetcher{}, &stubPredictor{})

	_, err := tracker.PredictPasses(context.Background(), types.PassQuery{})
	assert.ErrorIs(t, err, types.ErrNoSatelliteData)
}
