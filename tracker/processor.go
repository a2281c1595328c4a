package tracker

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satwatch/satwatch-service/types"
	"github.com/satwatch/satwatch-service/utils"
)

const statsCacheKey = "constellation_stats"

// Processor covers the analysis side of the catalog: filtering,
// aggregate constellation statistics and export. Statistics go
// cache-aside against the processed cache.
type Processor struct {
	logger types.Logger
	cache  types.Cache
	config *types.ExportConfig
	now    func() time.Time
}

func NewProcessor(logger types.Logger, cache types.Cache, config *types.ExportConfig) *Processor {
	if config == nil {
		config = &types.ExportConfig{DefaultFormat: "json"}
	}

	return &Processor{
		logger: logger,
		cache:  cache,
		config: config,
		now:    time.Now,
	}
}

// FilterSatellites keeps satellites whose name contains the pattern.
// An empty pattern keeps everything.
func (p *Processor) FilterSatellites(satellites []types.Satellite, pattern string) []types.Satellite {
	if pattern == "" {
		return satellites
	}

	filtered := make([]types.Satellite, 0, len(satellites))
	for _, sat := range satellites {
		if strings.Contains(sat.Name, pattern) {
			filtered = append(filtered, sat)
		}
	}

	return filtered
}

// AnalyzeConstellation computes aggregate statistics over the catalog.
// Numeric IDs are extracted from names of the "STARLINK-1234" shape; the
// ID range is omitted when no name carries one.
func (p *Processor) AnalyzeConstellation(satellites []types.Satellite) types.ConstellationStats {
	if cached, ok := p.cache.Get(statsCacheKey); ok {
		if stats, ok := cached.(types.ConstellationStats); ok && stats.TotalSatellites == len(satellites) {
			return stats
		}
	}

	stats := types.ConstellationStats{
		TotalSatellites: len(satellites),
		AnalyzedAt:      p.now().UTC(),
	}

	ids := make([]int, 0, len(satellites))
	for _, sat := range satellites {
		if id, ok := satelliteID(sat.Name); ok {
			ids = append(ids, id)
		}
	}

	if len(ids) > 0 {
		idRange := &types.IDRange{Min: ids[0], Max: ids[0], Count: len(ids)}
		for _, id := range ids[1:] {
			if id < idRange.Min {
				idRange.Min = id
			}
			if id > idRange.Max {
				idRange.Max = id
			}
		}
		stats.IDRange = idRange
	}

	if err := p.cache.Set(statsCacheKey, stats); err != nil {
		p.logger.Warn("Failed to cache constellation stats", zap.Error(err))
	}

	return stats
}

type exportEnvelope struct {
	Satellites []types.Satellite `json:"satellites"`
	Exported   time.Time         `json:"exported"`
	Count      int               `json:"count"`
	Version    string            `json:"version"`
}

// Export renders the catalog as json or csv. Large sets are gzipped when
// the config enables compression and the record count crosses the
// threshold; the compressed return tells the caller which encoding it
// got.
func (p *Processor) Export(satellites []types.Satellite, format string) (data []byte, compressed bool, err error) {
	switch format {
	case "json":
		data, err = utils.Marshal(exportEnvelope{
			Satellites: satellites,
			Exported:   p.now().UTC(),
			Count:      len(satellites),
			Version:    "1.0",
		})
	case "csv":
		data, err = renderCSV(satellites)
	default:
		return nil, false, types.Errorf(types.ErrExportFormatUnknown, "%q", format)
	}
	if err != nil {
		return nil, false, types.WrapError(err, "render export")
	}

	if p.config.CompressLargeFiles && len(satellites) > p.config.CompressThreshold {
		data, err = gzipBytes(data)
		if err != nil {
			return nil, false, types.WrapError(err, "compress export")
		}
		compressed = true
	}

	p.logger.Info("Exported satellite data",
		zap.String("format", format),
		zap.Int("records", len(satellites)),
		zap.Bool("compressed", compressed))

	return data, compressed, nil
}

// DefaultFormat returns the configured export format, falling back to
// json.
func (p *Processor) DefaultFormat() string {
	if p.config.DefaultFormat == "" {
		return "json"
	}
	return p.config.DefaultFormat
}

func renderCSV(satellites []types.Satellite) ([]byte, error) {
	var buf bytes.Buffer

	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"name", "line1", "line2"}); err != nil {
		return nil, err
	}
	for _, sat := range satellites {
		if err := w.Write([]string{sat.Name, sat.Line1, sat.Line2}); err != nil {
			return nil, err
		}
	}
	w.Flush()

	return buf.Bytes(), w.Error()
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func satelliteID(name string) (int, bool) {
	idx := strings.LastIndexByte(name, '-')
	if idx < 0 || idx == len(name)-1 {
		return 0, false
	}

	id, err := strconv.Atoi(name[idx+1:])
	if err != nil {
		return 0, false
	}

	return id, true
}
