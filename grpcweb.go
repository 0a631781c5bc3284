// Package grpcweb translates gRPC-Web traffic into plain gRPC, so browsers
// can reach a standard gRPC server through an HTTP/1.1 front door.
//
// Proto definitions and service handlers are the user's responsibility; this
// library only provides the generic protocol translation.
//
// # Architecture
//
//	Browser Client (gRPC-Web)            Inner gRPC Server
//	          |                                 |
//	          |  POST application/grpc-web      |
//	          |-------------------------------->|
//	          |                          CORS check
//	          |                          Decode base64 (text variant)
//	          |                          Validate message framing
//	          |                          Coerce headers to gRPC
//	          |                                 |
//	          |  Messages + Trailer frame       |
//	          |<--------------------------------|
//	          |                                 |
//
// Preflight OPTIONS requests are answered directly from the CORS rule set.
// Native gRPC traffic on HTTP/2 passes through untouched.
//
// # Quick Start
//
//	import (
//	    "log"
//	    "net/http"
//
//	    "github.com/Millione/grpc-web"
//	    "google.golang.org/grpc"
//	)
//
//	srv := grpc.NewServer()
//	// ... register services on srv ...
//
//	handler, err := grpcweb.Wrap(srv)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	http.ListenAndServe(":8080", handler)
//
// # Subpackages
//
// The library is organized into two subpackages:
//
//   - codec: Low-level frame, trailer and base64 encoding/decoding
//   - cors: Cross-origin rule sets for preflight and simple requests
//
// For most use cases, use Wrap and the re-exported types from this package.
package grpcweb

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Millione/grpc-web/codec"
	"github.com/Millione/grpc-web/cors"
)

// Content types understood by the translator.
const (
	// ContentTypeGRPC is what the inner server speaks.
	ContentTypeGRPC = "application/grpc"

	// ContentTypeGRPCWeb and ContentTypeGRPCWebProto carry binary frames.
	ContentTypeGRPCWeb      = "application/grpc-web"
	ContentTypeGRPCWebProto = "application/grpc-web+proto"

	// ContentTypeGRPCWebText and ContentTypeGRPCWebTextProto carry
	// base64-encoded frames.
	ContentTypeGRPCWebText      = "application/grpc-web-text"
	ContentTypeGRPCWebTextProto = "application/grpc-web-text+proto"
)

// Re-export codec types
type (
	// Frame is a single length-prefixed gRPC-Web frame
	Frame = codec.Frame
	// DecodeResult holds frames decoded from a buffer
	DecodeResult = codec.DecodeResult
	// FrameReader reads frames from a byte stream
	FrameReader = codec.FrameReader
	// TrailerPair is one trailing header
	TrailerPair = codec.TrailerPair
	// TrailerSet is an ordered list of trailing headers
	TrailerSet = codec.TrailerSet
)

// Re-export codec constants
const (
	FrameData    = codec.FrameData
	FrameTrailer = codec.FrameTrailer

	DefaultMaxFrameSize = codec.DefaultMaxFrameSize
)

// Re-export codec errors
var (
	ErrNeedMoreData      = codec.ErrNeedMoreData
	ErrMalformedFrame    = codec.ErrMalformedFrame
	ErrFrameTooLarge     = codec.ErrFrameTooLarge
	ErrMalformedTrailers = codec.ErrMalformedTrailers
	ErrMalformedBase64   = codec.ErrMalformedBase64
)

// Re-export codec functions
var (
	// Frame encoding/decoding
	EncodeFrame        = codec.EncodeFrame
	DecodeFrame        = codec.DecodeFrame
	DecodeFrames       = codec.DecodeFrames
	CreateDataFrame    = codec.CreateDataFrame
	CreateTrailerFrame = codec.CreateTrailerFrame
	ParseTrailers      = codec.ParseTrailers

	// Streaming
	NewFrameReader  = codec.NewFrameReader
	NewBase64Reader = codec.NewBase64Reader
	NewBase64Writer = codec.NewBase64Writer
)

// Variant distinguishes the two gRPC-Web body encodings.
type Variant int

const (
	// VariantBinary is raw binary framing (application/grpc-web[+proto]).
	VariantBinary Variant = iota
	// VariantText is base64 framing (application/grpc-web-text[+proto]).
	VariantText
)

// String implements fmt.Stringer.
func (v Variant) String() string {
	if v == VariantText {
		return "text"
	}
	return "binary"
}

// ContentType returns the response content type for this variant.
// Responses always use the explicit +proto form.
func (v Variant) ContentType() string {
	if v == VariantText {
		return ContentTypeGRPCWebTextProto
	}
	return ContentTypeGRPCWebProto
}

// variantOf maps a gRPC-Web content type to its body encoding.
func variantOf(contentType string) Variant {
	switch contentType {
	case ContentTypeGRPCWebText, ContentTypeGRPCWebTextProto:
		return VariantText
	}
	return VariantBinary
}

// isGRPCWebContentType reports whether value is one of the four gRPC-Web
// content types.
func isGRPCWebContentType(value string) bool {
	switch value {
	case ContentTypeGRPCWeb, ContentTypeGRPCWebProto,
		ContentTypeGRPCWebText, ContentTypeGRPCWebTextProto:
		return true
	}
	return false
}

// IsGRPCWebRequest reports whether r carries a gRPC-Web content type,
// regardless of method. Non-POST requests with a gRPC-Web content type are
// answered with 405 by the Handler.
func IsGRPCWebRequest(r *http.Request) bool {
	return isGRPCWebContentType(r.Header.Get("Content-Type"))
}

// IsPreflightRequest reports whether r is a CORS preflight: an OPTIONS
// request announcing the method of the call to follow.
func IsPreflightRequest(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get("Access-Control-Request-Method") != ""
}

// IsWebSocketRequest reports whether r asks for a WebSocket upgrade.
func IsWebSocketRequest(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// Handler fronts an inner gRPC handler and serves gRPC-Web clients.
//
// Use Wrap to build one.
type Handler struct {
	inner        http.Handler
	corsConfig   cors.Config
	policy       *cors.Policy
	maxFrameSize uint32
	denyBehavior DenyBehavior
	websockets   bool
	logger       *zap.Logger
}

// Wrap builds a Handler translating gRPC-Web requests for inner.
//
// inner is typically a *grpc.Server, whose ServeHTTP carries gRPC over
// Go's HTTP stack. Wrap fails when the CORS configuration is invalid.
func Wrap(inner http.Handler, opts ...Option) (*Handler, error) {
	if inner == nil {
		return nil, errors.New("grpcweb: nil inner handler")
	}
	h := &Handler{
		inner:        inner,
		maxFrameSize: codec.DefaultMaxFrameSize,
		denyBehavior: DenyReject,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	policy, err := cors.New(h.corsConfig)
	if err != nil {
		return nil, fmt.Errorf("grpcweb: %w", err)
	}
	h.policy = policy
	return h, nil
}

// ServeHTTP dispatches a request to the matching branch of the translator.
//
//   - CORS preflights are answered directly.
//   - WebSocket upgrades bridge one RPC per socket, when enabled.
//   - gRPC-Web POST bodies are translated and handed to the inner handler.
//   - Anything else on HTTP/2, native gRPC included, passes through.
//   - Anything else on HTTP/1.x is refused with 415.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case IsPreflightRequest(r):
		h.servePreflight(w, r)
	case h.websockets && IsWebSocketRequest(r):
		h.serveWebSocket(w, r)
	case IsGRPCWebRequest(r):
		if r.Method != http.MethodPost {
			http.Error(w, "gRPC-Web requires POST", http.StatusMethodNotAllowed)
			return
		}
		h.serveGRPCWeb(w, r)
	case r.ProtoMajor == 2:
		h.inner.ServeHTTP(w, r)
	default:
		http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
	}
}

func (h *Handler) servePreflight(w http.ResponseWriter, r *http.Request) {
	decision := h.policy.Preflight(
		r.Header.Get("Origin"),
		r.Header.Get("Access-Control-Request-Method"),
		r.Header.Get("Access-Control-Request-Headers"),
	)
	if !decision.Allowed {
		h.logger.Debug("rejected preflight",
			zap.String("origin", r.Header.Get("Origin")),
			zap.String("reason", decision.Reason))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	copyHeader(w.Header(), decision.Header)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) serveGRPCWeb(w http.ResponseWriter, r *http.Request) {
	decision := h.policy.Simple(r.Header.Get("Origin"))
	if !decision.Allowed {
		if h.denyBehavior == DenyReject {
			h.logger.Debug("rejected cross-origin call",
				zap.String("origin", r.Header.Get("Origin")),
				zap.String("reason", decision.Reason))
			w.WriteHeader(http.StatusForbidden)
			return
		}
		// DenyForward: serve the call, let the browser enforce.
		decision.Header = nil
	}

	requestVariant := variantOf(r.Header.Get("Content-Type"))
	responseVariant := requestVariant
	if accept := r.Header.Get("Accept"); isGRPCWebContentType(accept) {
		responseVariant = variantOf(accept)
	}

	var body io.Reader = r.Body
	if requestVariant == VariantText {
		body = codec.NewBase64Reader(body)
	}
	frames := codec.NewFrameReader(body, h.maxFrameSize)

	// Validate the first frame before involving the inner handler, so a
	// malformed body fails at the HTTP level instead of inside an RPC.
	stream := &frameStream{frames: frames}
	first, err := frames.Next()
	switch {
	case err == nil:
		stream.buffer = codec.EncodeFrame(first)
	case errors.Is(err, io.EOF):
		stream.done = true
	default:
		h.logger.Debug("rejected malformed body",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		if errors.Is(err, codec.ErrFrameTooLarge) {
			http.Error(w, "frame exceeds size limit", http.StatusRequestEntityTooLarge)
		} else {
			http.Error(w, "malformed gRPC-Web body", http.StatusBadRequest)
		}
		return
	}

	shim := newResponseWriter(w, responseVariant, decision.Header)
	h.inner.ServeHTTP(shim, coerceRequest(r, stream))
	if err := shim.finish(); err != nil {
		h.logger.Debug("could not finish response",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
}

// copyHeader adds every value in src to dst.
func copyHeader(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}
