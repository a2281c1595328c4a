package middleware

import (
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/satwatch/satwatch-service/types"
	"github.com/satwatch/satwatch-service/utils"
)

type CORSMiddleware struct {
	logger     types.Logger
	corsConfig *CORSConfig
	weight     int

	allowedMethods string
	allowedHeaders string
}

type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers"`
	MaxAge         string   `json:"max_age"`
}

func NewCORSMiddleware(logger types.Logger, item *types.MiddlewareItemConfig) (*CORSMiddleware, error) {
	corsConfig := &CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{fasthttp.MethodGet, fasthttp.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         "86400",
	}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, corsConfig); err != nil {
			logger.Error("Failed to unmarshal CORS middleware config", zap.Error(err))
			return nil, err
		}
	}

	return &CORSMiddleware{
		logger:         logger,
		corsConfig:     corsConfig,
		weight:         item.Weight,
		allowedMethods: strings.Join(corsConfig.AllowedMethods, ", "),
		allowedHeaders: strings.Join(corsConfig.AllowedHeaders, ", "),
	}, nil
}

func (c *CORSMiddleware) Name() string { return "cors" }
func (c *CORSMiddleware) Weight() int  { return c.weight }

func (c *CORSMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
	origin := string(ctx.Request.Header.Peek("Origin"))
	if origin != "" {
		if allowed := c.resolveOrigin(origin); allowed != "" {
			ctx.Response.Header.Set("Access-Control-Allow-Origin", allowed)
			ctx.Response.Header.Set("Access-Control-Allow-Methods", c.allowedMethods)
			ctx.Response.Header.Set("Access-Control-Allow-Headers", c.allowedHeaders)
			ctx.Response.Header.Set("Access-Control-Max-Age", c.corsConfig.MaxAge)
		}
	}

	if string(ctx.Method()) == fasthttp.MethodOptions {
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		return
	}

	next(ctx)
}

func (c *CORSMiddleware) resolveOrigin(origin string) string {
	for _, allowed := range c.corsConfig.AllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}
