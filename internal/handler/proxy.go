package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"ollama-proxy-go/internal/metrics"
	"ollama-proxy-go/internal/model"
	"ollama-proxy-go/internal/service"
)

// maxBodyBytes caps inbound request bodies at 8 MiB. A body of exactly this
// size passes; one byte more is rejected before anything reaches upstream.
const maxBodyBytes = 8 << 20

// Client-visible reply texts. These are fixed strings so upstream details
// never leak to callers.
const (
	msgUnauthorized   = "Unauthorized"
	msgBodyReadFailed = "Failed to read body"
	msgUpstreamFailed = "Upstream request failed"
)

// ProxyHandler terminates inbound requests: it runs the authorization gate,
// captures the body, and relays the upstream exchange.
type ProxyHandler struct {
	service  *service.ProxyService
	logger   *slog.Logger
	metrics  *metrics.Metrics
	errorLog rate.Sometimes
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is optional;
// pass nil to disable failure counters.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
		metrics: m,
		// A dead upstream turns every request into an error; log the first
		// few, then sample.
		errorLog: rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}
}

// Handle authorizes and forwards one request. The gate runs before the body
// is read, so unauthenticated clients cannot make the proxy consume uploads.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	if reason := h.service.Authorize(req.Header); reason != "" {
		if h.metrics != nil {
			h.metrics.AuthFailures.WithLabelValues(reason).Inc()
		}
		h.logger.Warn("request rejected",
			"reason", reason,
			"method", req.Method,
			"path", req.URL.Path,
			"remote_ip", c.RealIP(),
		)
		return c.String(http.StatusUnauthorized, msgUnauthorized)
	}

	body, err := readBody(req)
	if err != nil {
		h.logger.Warn("request body rejected",
			"method", req.Method,
			"path", req.URL.Path,
			"err", err,
		)
		return c.String(http.StatusBadRequest, msgBodyReadFailed)
	}

	fr := &model.ForwardRequest{
		Ctx:    req.Context(),
		Method: req.Method,
		Suffix: c.Param("*"),
		Header: req.Header,
		Body:   body,
	}

	result, err := h.service.Forward(fr)
	if err != nil {
		return h.mapError(c, err)
	}

	return h.writeResult(c, result)
}

// readBody drains the request body under the inbound cap.
func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	limited := http.MaxBytesReader(nil, req.Body, maxBodyBytes)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return body, nil
}

// mapError converts a forwarding failure into the fixed 502 reply. The cause
// is logged but never sent to the client.
func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	cause := classifyTransportError(err)
	h.errorLog.Do(func() {
		h.logger.Error("upstream request failed",
			"cause", cause,
			"err", err,
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
		)
	})
	return c.String(http.StatusBadGateway, msgUpstreamFailed)
}

// classifyTransportError names the failure category for the log line. Every
// category maps to the same 502 reply.
func classifyTransportError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "client_disconnected"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "connection"
	}
	return "other"
}

// writeResult relays the upstream status, headers and body back to the
// client. If the write fails the status line is already on the wire, so the
// client sees a truncated body with the original status; all we can do is
// log it.
func (h *ProxyHandler) writeResult(c echo.Context, result *model.UpstreamResult) error {
	res := c.Response()
	for key, vals := range result.Header {
		for _, v := range vals {
			res.Header().Add(key, v)
		}
	}

	res.WriteHeader(sanitizeStatus(result.StatusCode))
	if _, err := res.Write(result.Body); err != nil {
		h.logger.Error("writing response body",
			"err", err,
			"path", c.Request().URL.Path,
		)
	}
	return nil
}

// sanitizeStatus clamps status codes that cannot appear on an HTTP status
// line. net/http rejects codes outside 100-999; anything out of range is
// relayed as 200 like the rest of the exchange.
func sanitizeStatus(code int) int {
	if code < 100 || code > 999 {
		return http.StatusOK
	}
	return code
}
