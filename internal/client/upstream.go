// Package client provides the HTTP client for the local inference server.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"ollama-proxy-go/internal/config"
	"ollama-proxy-go/internal/metrics"
	"ollama-proxy-go/internal/model"
)

// Upstream sends requests to the local inference server.
type Upstream struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstream creates an Upstream client with connection pooling.
// A zero timeout leaves requests unbounded; model generation can run for
// minutes, so that is the default. The metrics parameter is optional;
// pass nil to disable upstream metrics recording.
func NewUpstream(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Upstream {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Upstream{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Do executes an HTTP request against the upstream and returns the buffered
// response. Transport failures return an error. A failure while reading the
// response body does not: the status line and headers already arrived, so
// they are relayed with an empty body instead.
func (c *Upstream) Do(req *http.Request) (*model.UpstreamResult, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("upstream body read failed",
			"method", req.Method,
			"path", req.URL.Path,
			"status", resp.StatusCode,
			"error", err,
		)
		resp.Header.Del("Content-Length")
		body = nil
	}

	return &model.UpstreamResult{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Forward builds a request from the given parts and executes it. The context
// controls the lifetime of the upstream request: when it is canceled (e.g.
// the client disconnects), the upstream request is also canceled.
func (c *Upstream) Forward(ctx context.Context, method, url string, header http.Header, body []byte) (*model.UpstreamResult, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header

	return c.Do(req)
}
