// Package model defines shared types for the proxy pipeline.
package model

import (
	"context"
	"net/http"
)

// ForwardRequest is an authorized inbound request prepared for forwarding.
// Body is fully buffered and already capped by the handler; Suffix is the
// path remainder after the /v1/ routing prefix.
type ForwardRequest struct {
	Ctx    context.Context
	Method string
	Suffix string
	Header http.Header
	Body   []byte
}

// UpstreamResult is a completed upstream round trip with the body fully
// buffered. Upstream error statuses (4xx/5xx) are results, not errors.
type UpstreamResult struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
