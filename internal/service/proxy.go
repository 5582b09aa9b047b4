// Package service implements authentication and forwarding for proxied requests.
package service

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"

	"ollama-proxy-go/internal/client"
	"ollama-proxy-go/internal/config"
	"ollama-proxy-go/internal/keystore"
	"ollama-proxy-go/internal/model"
)

// authScheme is the exact prefix required on the Authorization header.
// Matching is case-sensitive and spacing-sensitive: "bearer x" and
// "Bearer  x" are both rejected.
const authScheme = "Bearer "

// proxyPrefix mounts every forwarded request under the upstream API root.
const proxyPrefix = "/v1/"

// Authorization deny reasons, used as metric label values.
const (
	DenyMissingHeader = "missing_header"
	DenyBadScheme     = "bad_scheme"
	DenyUnknownKey    = "unknown_key"
)

// excludedRequestHeaders are never forwarded upstream: Host names the proxy
// rather than the inference server, and Authorization carries the proxy's
// own API key, which the upstream must never see.
var excludedRequestHeaders = map[string]bool{
	"Host":          true,
	"Authorization": true,
}

// ProxyService authorizes inbound requests and forwards them to the
// inference server. All fields are set at construction and read-only
// afterwards, so one instance is shared across requests.
type ProxyService struct {
	keys    keystore.KeySet
	client  *client.Upstream
	logger  *slog.Logger
	baseURL string
}

// NewProxyService creates a ProxyService. The upstream base URL must be
// absolute with an http or https scheme; a trailing slash is tolerated.
func NewProxyService(keys keystore.KeySet, c *client.Upstream, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream base URL %q: scheme must be http or https", cfg.Upstream.BaseURL)
	}

	return &ProxyService{
		keys:    keys,
		client:  c,
		logger:  logger.With("component", "proxy_service"),
		baseURL: strings.TrimRight(cfg.Upstream.BaseURL, "/"),
	}, nil
}

// Authorize checks the Authorization header against the configured key set.
// It returns an empty string when the request is allowed, or the deny
// reason otherwise. The header must be exactly "Bearer <key>" with <key>
// matching a configured key byte for byte.
func (s *ProxyService) Authorize(header http.Header) string {
	auth := header.Get("Authorization")
	if auth == "" {
		return DenyMissingHeader
	}
	key, ok := strings.CutPrefix(auth, authScheme)
	if !ok {
		return DenyBadScheme
	}
	if !s.keys.Contains(key) {
		return DenyUnknownKey
	}
	return ""
}

// Forward relays an authorized request to the inference server and returns
// the buffered upstream response. Upstream error statuses are data, not
// errors: a 500 from the inference server comes back as a result, and only
// transport failures return an error.
func (s *ProxyService) Forward(fr *model.ForwardRequest) (*model.UpstreamResult, error) {
	method := forwardMethod(fr.Method)
	upstreamURL := s.baseURL + proxyPrefix + fr.Suffix

	s.logger.Debug("forwarding request",
		"method", method,
		"suffix", fr.Suffix,
	)

	result, err := s.client.Forward(fr.Ctx, method, upstreamURL, filterHeaders(fr.Header, excludedRequestHeaders), fr.Body)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	result.Header = filterHeaders(result.Header, nil)
	return result, nil
}

// forwardMethod returns the inbound method when it is a valid HTTP token,
// falling back to GET otherwise. Extension methods like PURGE pass through
// unchanged.
func forwardMethod(method string) string {
	if method == "" || !httpguts.ValidHeaderFieldName(method) {
		return http.MethodGet
	}
	return method
}

// filterHeaders copies every representable header field, dropping entries
// whose name or value would be invalid on the wire and any name listed in
// skip (canonical form). Unrepresentable fields are dropped silently rather
// than failing the request.
func filterHeaders(src http.Header, skip map[string]bool) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		if skip[http.CanonicalHeaderKey(key)] {
			continue
		}
		if !httpguts.ValidHeaderFieldName(key) {
			continue
		}
		for _, v := range vals {
			if httpguts.ValidHeaderFieldValue(v) {
				dst.Add(key, v)
			}
		}
	}
	return dst
}
