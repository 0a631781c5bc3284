package grpcweb

import (
	"go.uber.org/zap"

	"github.com/Millione/grpc-web/cors"
)

// DenyBehavior controls what happens to a non-preflight request whose
// origin fails the CORS check.
type DenyBehavior int

const (
	// DenyReject responds 403 Forbidden without invoking the inner handler.
	DenyReject DenyBehavior = iota
	// DenyForward invokes the inner handler but attaches no CORS headers,
	// leaving enforcement to the browser.
	DenyForward
)

// Option configures a Handler.
type Option func(*Handler)

// WithCORS sets the cross-origin rule set. The default allows any origin
// without credentials. Wrap fails when the configuration is invalid.
func WithCORS(cfg cors.Config) Option {
	return func(h *Handler) {
		h.corsConfig = cfg
	}
}

// WithMaxFrameSize caps the declared payload length of request frames.
// The default is codec.DefaultMaxFrameSize; 0 disables the cap.
func WithMaxFrameSize(n uint32) Option {
	return func(h *Handler) {
		h.maxFrameSize = n
	}
}

// WithDenyBehavior sets how CORS-denied non-preflight requests are handled.
// The default is DenyReject.
func WithDenyBehavior(b DenyBehavior) Option {
	return func(h *Handler) {
		h.denyBehavior = b
	}
}

// WithWebSockets enables the WebSocket transport for clients that cannot
// stream over plain HTTP/1.1. Disabled by default.
func WithWebSockets(enabled bool) Option {
	return func(h *Handler) {
		h.websockets = enabled
	}
}

// WithLogger sets the logger for denied and failed requests. The default
// discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}
