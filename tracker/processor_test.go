package tracker

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satwatch/satwatch-service/types"
	"github.com/satwatch/satwatch-service/utils"
)

func newTestProcessor(t *testing.T, config *types.ExportConfig) *Processor {
	t.Helper()
	return NewProcessor(nopLogger{}, newTestCache(t, types.CacheProcessed), config)
}

func sampleCatalog(n int) []types.Satellite {
	satellites := make([]types.Satellite, 0, n)
	for i := 0; i < n; i++ {
		satellites = append(satellites, types.Satellite{
			Name:  fmt.Sprintf("STARLINK-%d", 1000+i),
			Line1: "1 44714U 19074B   24001.50000000  .00002182  00000-0  16538-3 0  9998",
			Line2: "2 44714  53.0541 157.5052 0001378  90.8566 269.2546 15.06395045227814",
		})
	}
	return satellites
}

func TestFilterSatellites(t *testing.T) {
	p := newTestProcessor(t, nil)
	satellites := []types.Satellite{
		{Name: "STARLINK-1008"},
		{Name: "STARLINK-1130"},
		{Name: "ISS (ZARYA)"},
	}

	filtered := p.FilterSatellites(satellites, "STARLINK")
	assert.Len(t, filtered, 2)

	assert.Len(t, p.FilterSatellites(satellites, ""), 3)
	assert.Empty(t, p.FilterSatellites(satellites, "ONEWEB"))
}

func TestAnalyzeConstellation(t *testing.T) {
	p := newTestProcessor(t, nil)
	satellites := []types.Satellite{
		{Name: "STARLINK-1008"},
		{Name: "STARLINK-1130"},
		{Name: "STARLINK-1010"},
		{Name: "UNNUMBERED SAT"},
	}

	stats := p.AnalyzeConstellation(satellites)
	assert.Equal(t, 4, stats.TotalSatellites)
	require.NotNil(t, stats.IDRange)
	assert.Equal(t, 1008, stats.IDRange.Min)
	assert.Equal(t, 1130, stats.IDRange.Max)
	assert.Equal(t, 3, stats.IDRange.Count)
	assert.False(t, stats.AnalyzedAt.IsZero())
}

func TestAnalyzeConstellation_NoNumericIDs(t *testing.T) {
	p := newTestProcessor(t, nil)

	stats := p.AnalyzeConstellation([]types.Satellite{{Name: "ISS (ZARYA)"}})
	assert.Equal(t, 1, stats.TotalSatellites)
	assert.Nil(t, stats.IDRange)
}

func TestExport_JSON(t *testing.T) {
	p := newTestProcessor(t, nil)
	satellites := sampleCatalog(2)

	data, compressed, err := p.Export(satellites, "json")
	require.NoError(t, err)
	assert.False(t, compressed)

	var envelope exportEnvelope
	require.NoError(t, utils.Unmarshal(data, &envelope))
	assert.Equal(t, 2, envelope.Count)
	assert.Equal(t, "1.0", envelope.Version)
	assert.Len(t, envelope.Satellites, 2)
}

func TestExport_CSV(t *testing.T) {
	p := newTestProcessor(t, nil)

	data, compressed, err := p.Export(sampleCatalog(2), "csv")
	require.NoError(t, err)
	assert.False(t, compressed)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"name", "line1", "line2"}, records[0])
	assert.Equal(t, "STARLINK-1000", records[1][0])
}

func TestExport_CompressesLargeSets(t *testing.T) {
	p := newTestProcessor(t, &types.ExportConfig{
		DefaultFormat:      "json",
		CompressLargeFiles: true,
		CompressThreshold:  10,
	})

	data, compressed, err := p.Export(sampleCatalog(11), "json")
	require.NoError(t, err)
	assert.True(t, compressed)

	r, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	plain, err := io.ReadAll(r)
	require.NoError(t, err)

	var envelope exportEnvelope
	require.NoError(t, utils.Unmarshal(plain, &envelope))
	assert.Equal(t, 11, envelope.Count)

	// At the threshold itself, no compression.
	_, compressed, err = p.Export(sampleCatalog(10), "json")
	require.NoError(t, err)
	assert.False(t, compressed)
}

func TestExport_UnknownFormat(t *testing.T) {
	p := newTestProcessor(t, nil)

	_, _, err := p.Export(sampleCatalog(1), "xml")
	assert.ErrorIs(t, err, types.ErrExportFormatUnknown)
}
