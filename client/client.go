package client

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/satwatch/satwatch-service/types"
)

type State int32

const (
	StateRunning State = iota
	StateStopped
)

// HTTPClient fetches documents from an upstream with retries, backoff
// and a circuit breaker. Client errors other than 408 and 429 are not
// retried; a different URL (a backup source) is the caller's move.
type HTTPClient struct {
	logger         types.Logger
	name           string
	client         *fasthttp.Client
	config         *types.ClientConfig
	circuitBreaker *CircuitBreaker
	metrics        types.MetricsManager
	state          atomic.Value
	backoff        func(attempt int) time.Duration
}

func NewHTTPClient(logger types.Logger, metrics types.MetricsManager, name string, config *types.ClientConfig) *HTTPClient {
	if config == nil {
		config = &types.ClientConfig{}
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	client := &HTTPClient{
		logger: logger,
		name:   name,
		config: config,
		client: &fasthttp.Client{
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
		},
		circuitBreaker: NewCircuitBreaker(config.CircuitBreaker, logger, name),
		metrics:        metrics,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt+1) * time.Second
		},
	}

	client.state.Store(StateRunning)

	return client
}

// Get fetches the URL and returns the response body. All attempts share
// the caller's context deadline.
func (c *HTTPClient) Get(ctx context.Context, url string) ([]byte, int, error) {
	if !c.IsRunning() {
		return nil, fasthttp.StatusInternalServerError, types.ErrClientRequestFailed
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderUserAgent, "satwatch-service/1.0")

	var body []byte
	var statusCode int
	var err error

	done := make(chan struct{})
	go func() {
		defer close(done)
		body, statusCode, err = c.executeWithRetries(ctx, req, resp)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, fasthttp.StatusInternalServerError,
			types.Errorf(types.ErrClientTimeout, "fetch from %s", c.name)
	}

	return body, statusCode, err
}

func (c *HTTPClient) BreakerState() string {
	return c.circuitBreaker.State()
}

func (c *HTTPClient) Close() {
	c.state.Store(StateStopped)
}

func (c *HTTPClient) IsRunning() bool {
	return c.state.Load().(State) == StateRunning
}

func (c *HTTPClient) executeWithRetries(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) ([]byte, int, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.Retries; attempt++ {
		if !c.circuitBreaker.CanExecute() {
			return nil, fasthttp.StatusServiceUnavailable, types.ErrCircuitBreakerOpen
		}

		err := c.client.DoTimeout(req, resp, c.config.Timeout)
		statusCode := resp.StatusCode()

		c.recordAttempt(statusCode, err)

		if err == nil && statusCode >= 200 && statusCode < 300 {
			c.circuitBreaker.RecordSuccess()

			body := make([]byte, len(resp.Body()))
			copy(body, resp.Body())

			return body, statusCode, nil
		}

		if err != nil || statusCode >= 500 || statusCode == fasthttp.StatusTooManyRequests {
			c.circuitBreaker.RecordFailure()
		}

		lastErr = err
		if err == nil {
			lastErr = types.Errorf(types.ErrClientRequestFailed, "HTTP %d", statusCode)
		}

		if attempt < c.config.Retries {
			if statusCode >= 400 && statusCode < 500 &&
				statusCode != fasthttp.StatusTooManyRequests &&
				statusCode != fasthttp.StatusRequestTimeout {
				c.logger.Debug("Not retrying client error",
					zap.String("upstream", c.name),
					zap.Int("status_code", statusCode))
				break
			}

			backoff := c.backoff(attempt)

			select {
			case <-time.After(backoff):
				c.logger.Debug("Retrying request",
					zap.String("upstream", c.name),
					zap.Duration("backoff", backoff),
					zap.Error(lastErr))
			case <-ctx.Done():
				return nil, fasthttp.StatusInternalServerError,
					types.Errorf(types.ErrClientTimeout, "fetch from %s aborted during retry", c.name)
			}
		}
	}

	return nil, fasthttp.StatusInternalServerError,
		types.Errorf(types.ErrClientRequestFailed,
			"all %d attempts failed for %s: %v", c.config.Retries+1, c.name, lastErr)
}

func (c *HTTPClient) recordAttempt(statusCode int, err error) {
	if c.metrics == nil {
		return
	}

	result := "success"
	if err != nil || statusCode >= 400 {
		result = "error"
	}

	c.metrics.Counter("client_requests_total",
		map[string]string{"upstream": c.name, "result": result}).Inc()
}
