package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ollama-proxy-go/internal/config"
	"ollama-proxy-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Everything
// under /v1/ goes through the authenticated proxy; the operational endpoints
// stay outside the gate.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler, health *HealthHandler, m *metrics.Metrics, cfg *config.Config) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.Any("/v1/*", proxy.Handle)
}
