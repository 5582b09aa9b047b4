package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"ollama-proxy-go/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that observes every inbound
// request once: a counter increment and a duration sample, labeled by
// bounded method, status code and path prefix, with an in-flight gauge held
// across the handler. Labels go through the metrics normalizers so wildcard
// /v1 traffic cannot blow up label cardinality.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)
			duration := time.Since(start).Seconds()

			method := metrics.NormalizeMethod(c.Request().Method)
			status := strconv.Itoa(responseStatus(c, err))
			path := metrics.NormalizePath(c.Request().URL.Path)

			m.RequestsTotal.WithLabelValues(method, status, path).Inc()
			m.RequestDuration.WithLabelValues(method, status, path).Observe(duration)

			return err
		}
	}
}

// responseStatus resolves the status code for the metric labels. The proxy
// handlers write their replies (401, 400, 502, relayed upstream statuses)
// before returning, so the response object already holds the code. An
// *echo.HTTPError instead comes from the router, for an unmatched path or
// method, and has not been written when the middleware sees it.
func responseStatus(c echo.Context, err error) int {
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he.Code
		}
	}
	return c.Response().Status
}
