package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"ollama-proxy-go/internal/config"
	"ollama-proxy-go/internal/keystore"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	keys    keystore.KeySet
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, keys keystore.KeySet, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, keys: keys, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports the proxy configuration summary. Key material itself is
// never exposed, only the count.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      string(h.version),
		"upstream_url": h.cfg.Upstream.BaseURL,
		"api_keys":     len(h.keys),
	})
}
