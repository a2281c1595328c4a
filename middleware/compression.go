package middleware

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/satwatch/satwatch-service/types"
	"github.com/satwatch/satwatch-service/utils"
)

const (
	AlgorithmBrotli  = "br"
	AlgorithmGzip    = "gzip"
	AlgorithmDeflate = "deflate"

	defaultCompressionLevel     = 4
	defaultCompressionThreshold = 1024
)

// CompressionMiddleware compresses responses the client can decode,
// preferring brotli over gzip over deflate. Small bodies and already
// encoded ones pass through.
type CompressionMiddleware struct {
	logger            types.Logger
	compressionConfig *CompressionConfig
	weight            int
}

type CompressionConfig struct {
	Level        int      `json:"level"`
	Threshold    int      `json:"threshold"`
	AllowedTypes []string `json:"allowed_types"`
}

func NewCompressionMiddleware(logger types.Logger, item *types.MiddlewareItemConfig) (*CompressionMiddleware, error) {
	compressionConfig := &CompressionConfig{
		Level:     defaultCompressionLevel,
		Threshold: defaultCompressionThreshold,
		AllowedTypes: []string{
			"application/json",
			"text/*",
		},
	}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, compressionConfig); err != nil {
			logger.Error("Failed to unmarshal Compression middleware config", zap.Error(err))
			return nil, err
		}
	}

	if compressionConfig.Level < flate.HuffmanOnly || compressionConfig.Level > flate.BestCompression {
		return nil, types.NewErrorf("invalid compression level %d", compressionConfig.Level)
	}

	return &CompressionMiddleware{
		logger:            logger,
		compressionConfig: compressionConfig,
		weight:            item.Weight,
	}, nil
}

func (c *CompressionMiddleware) Name() string { return "compression" }
func (c *CompressionMiddleware) Weight() int  { return c.weight }

func (c *CompressionMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
	next(ctx)

	if len(ctx.Response.Header.Peek("Content-Encoding")) > 0 {
		return
	}

	algorithm := c.pickAlgorithm(ctx.Request.Header.Peek("Accept-Encoding"))
	if algorithm == "" {
		return
	}

	body := ctx.Response.Body()
	if len(body) < c.compressionConfig.Threshold {
		return
	}

	if !c.shouldCompress(ctx.Response.Header.ContentType()) {
		return
	}

	compressed, err := c.compress(body, algorithm)
	if err != nil {
		c.logger.Warn("Compression failed", zap.Error(err))
		return
	}

	// Skip the encoding when it barely helps.
	if len(compressed) >= len(body) {
		return
	}

	ctx.Response.Header.Set("Content-Encoding", algorithm)
	ctx.Response.Header.Set("Vary", "Accept-Encoding")
	ctx.Response.SetBody(compressed)
}

func (c *CompressionMiddleware) pickAlgorithm(acceptEncoding []byte) string {
	if len(acceptEncoding) == 0 {
		return ""
	}

	for _, algorithm := range []string{AlgorithmBrotli, AlgorithmGzip, AlgorithmDeflate} {
		if bytes.Contains(acceptEncoding, []byte(algorithm)) {
			return algorithm
		}
	}

	return ""
}

func (c *CompressionMiddleware) shouldCompress(contentType []byte) bool {
	ct := string(contentType)
	if semicolon := strings.Index(ct, ";"); semicolon != -1 {
		ct = ct[:semicolon]
	}
	ct = strings.TrimSpace(strings.ToLower(ct))

	for _, allowed := range c.compressionConfig.AllowedTypes {
		if allowed == ct {
			return true
		}
		if strings.HasSuffix(allowed, "*") && strings.HasPrefix(ct, strings.TrimSuffix(allowed, "*")) {
			return true
		}
	}

	return false
}

func (c *CompressionMiddleware) compress(body []byte, algorithm string) ([]byte, error) {
	var buf bytes.Buffer

	switch algorithm {
	case AlgorithmBrotli:
		w := brotli.NewWriterLevel(&buf, c.compressionConfig.Level)
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case AlgorithmGzip:
		w, err := gzip.NewWriterLevel(&buf, c.compressionConfig.Level)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case AlgorithmDeflate:
		w, err := flate.NewWriter(&buf, c.compressionConfig.Level)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, types.NewErrorf("unsupported compression algorithm %q", algorithm)
	}

	return buf.Bytes(), nil
}
