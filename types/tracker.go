package types

import (
	"context"
	"strconv"
	"time"
)

// Satellite is one TLE record: the display name plus the two element
// lines. The element lines are opaque payload here; orbital mechanics
// lives behind the Predictor interface.
type Satellite struct {
	Name  string `json:"name"`
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

type Pass struct {
	Satellite string    `json:"satellite"`
	Time      time.Time `json:"time"`
	Altitude  float64   `json:"altitude"`
	Azimuth   float64   `json:"azimuth"`
	Distance  float64   `json:"distance"`
}

type PassQuery struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Altitude     float64 `json:"altitude"`
	HoursAhead   int     `json:"hours_ahead"`
	MinElevation float64 `json:"min_elevation"`
}

// CacheKey builds the deterministic prediction-cache key. Coordinates are
// rounded to four decimals so that jittering observer input does not
// fragment the cache.
func (q PassQuery) CacheKey() string {
	buf := make([]byte, 0, 64)
	buf = strconv.AppendFloat(buf, q.Latitude, 'f', 4, 64)
	buf = append(buf, '|')
	buf = strconv.AppendFloat(buf, q.Longitude, 'f', 4, 64)
	buf = append(buf, '|')
	buf = strconv.AppendFloat(buf, q.Altitude, 'f', 0, 64)
	buf = append(buf, '|')
	buf = strconv.AppendInt(buf, int64(q.HoursAhead), 10)
	buf = append(buf, '|')
	buf = strconv.AppendFloat(buf, q.MinElevation, 'f', 1, 64)
	return string(buf)
}

// Predictor computes pass predictions from TLE data. Implementations are
// supplied by the hosting application; this service only caches and
// schedules around them.
type Predictor interface {
	PredictPasses(ctx context.Context, satellites []Satellite, query PassQuery) ([]Pass, error)
}

// Notifier receives upcoming passes found by the notification check task.
// Delivery (email, telegram, ...) is the implementation's concern.
type Notifier interface {
	NotifyUpcomingPass(ctx context.Context, pass Pass) error
}

type ConstellationStats struct {
	TotalSatellites int       `json:"total_satellites"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
	IDRange         *IDRange  `json:"id_range,omitempty"`
}

type IDRange struct {
	Min   int `json:"min"`
	Max   int `json:"max"`
	Count int `json:"count"`
}
