// Package cors evaluates cross-origin requests for gRPC-Web endpoints.
//
// A Policy is built once from an immutable rule set and is safe for
// concurrent use; every evaluation is a pure function of the rules and the
// request's Origin and Access-Control-Request-* headers. Two request shapes
// are evaluated:
//
//   - Preflight: the OPTIONS probe a browser sends before the actual call.
//     Origin, requested method and requested headers are all validated; an
//     allow produces the Access-Control-Allow-* header set for an immediate
//     empty response.
//   - Simple: the actual call. Only Origin is validated; an allow produces
//     the headers to attach to the eventual response, always exposing
//     grpc-status and grpc-message so browser clients can read RPC status.
//
// Wildcard origins combined with credentials are rejected at construction
// time; that pairing defeats the purpose of the origin check.
package cors

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxAge is how long browsers may cache a preflight approval when no
// MaxAge is configured.
const DefaultMaxAge = 24 * time.Hour

// Trailer-derived headers browser clients must be able to read; always part
// of Access-Control-Expose-Headers.
var defaultExposedHeaders = []string{"grpc-status", "grpc-message"}

var defaultAllowedMethods = []string{http.MethodPost, http.MethodOptions}

// Config is the rule set a Policy is built from.
type Config struct {
	// AllowedOrigins lists origins matched exactly against the Origin
	// header. The single entry "*" (or an empty list) allows any origin.
	AllowedOrigins []string

	// AllowedHeaders lists the request headers a preflight may ask for,
	// matched case-insensitively. Empty allows any requested header.
	AllowedHeaders []string

	// AllowedMethods lists the methods a preflight may ask for. Empty
	// defaults to POST and OPTIONS, the methods gRPC-Web uses.
	AllowedMethods []string

	// ExposedHeaders extends the response headers visible to browser
	// scripts beyond grpc-status and grpc-message.
	ExposedHeaders []string

	// AllowCredentials emits Access-Control-Allow-Credentials: true.
	// Incompatible with wildcard origins.
	AllowCredentials bool

	// MaxAge caps preflight caching. Zero uses DefaultMaxAge; a negative
	// value omits the Access-Control-Max-Age header.
	MaxAge time.Duration
}

// Policy evaluates requests against a fixed rule set.
type Policy struct {
	wildcard bool
	origins  map[string]struct{}
	headers  map[string]struct{} // lowercase; nil allows any
	methods  map[string]struct{}

	methodList string // precomputed Allow-Methods value
	expose     string // precomputed Expose-Headers value
	maxAge     string // precomputed Max-Age value; "" omits the header
	creds      bool
}

// Decision is the outcome of one evaluation. When Allowed, Header holds the
// Access-Control-* headers to attach to the response; when denied, Reason
// says why.
type Decision struct {
	Allowed bool
	Header  http.Header
	Reason  string
}

// New validates cfg and builds a Policy. It fails when wildcard origins are
// combined with credentials.
func New(cfg Config) (*Policy, error) {
	p := &Policy{creds: cfg.AllowCredentials}

	if len(cfg.AllowedOrigins) == 0 {
		p.wildcard = true
	} else {
		p.origins = make(map[string]struct{}, len(cfg.AllowedOrigins))
		for _, origin := range cfg.AllowedOrigins {
			if origin == "*" {
				p.wildcard = true
				continue
			}
			p.origins[origin] = struct{}{}
		}
	}

	if p.wildcard && cfg.AllowCredentials {
		return nil, errors.New("cors: wildcard origin cannot be combined with credentials")
	}

	if len(cfg.AllowedHeaders) > 0 {
		p.headers = make(map[string]struct{}, len(cfg.AllowedHeaders))
		for _, h := range cfg.AllowedHeaders {
			p.headers[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
		}
	}

	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = defaultAllowedMethods
	}
	p.methods = make(map[string]struct{}, len(methods))
	normalized := make([]string, 0, len(methods))
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if _, ok := p.methods[m]; ok {
			continue
		}
		p.methods[m] = struct{}{}
		normalized = append(normalized, m)
	}
	p.methodList = strings.Join(normalized, ",")

	seen := make(map[string]struct{})
	exposed := make([]string, 0, len(defaultExposedHeaders)+len(cfg.ExposedHeaders))
	for _, h := range append(append([]string{}, defaultExposedHeaders...), cfg.ExposedHeaders...) {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		exposed = append(exposed, h)
	}
	p.expose = strings.Join(exposed, ",")

	switch {
	case cfg.MaxAge == 0:
		p.maxAge = strconv.FormatInt(int64(DefaultMaxAge/time.Second), 10)
	case cfg.MaxAge > 0:
		p.maxAge = strconv.FormatInt(int64(cfg.MaxAge/time.Second), 10)
	}

	return p, nil
}

// Simple evaluates an actual (non-preflight) request. An empty origin means
// the request is not cross-origin: allowed, no headers to attach.
func (p *Policy) Simple(origin string) Decision {
	if origin == "" {
		return Decision{Allowed: true, Header: http.Header{}}
	}

	if !p.originAllowed(origin) {
		return Decision{Reason: "origin not allowed"}
	}

	return Decision{Allowed: true, Header: p.commonHeaders(origin)}
}

// Preflight evaluates an OPTIONS probe. requestMethod is the
// Access-Control-Request-Method value; requestHeaders the raw
// Access-Control-Request-Headers value (comma-separated), echoed back on
// allow.
func (p *Policy) Preflight(origin, requestMethod, requestHeaders string) Decision {
	if origin == "" {
		return Decision{Reason: "origin missing"}
	}
	if !p.originAllowed(origin) {
		return Decision{Reason: "origin not allowed"}
	}

	if _, ok := p.methods[strings.ToUpper(strings.TrimSpace(requestMethod))]; !ok {
		return Decision{Reason: "method not allowed"}
	}

	if p.headers != nil {
		for _, h := range strings.Split(requestHeaders, ",") {
			h = strings.ToLower(strings.TrimSpace(h))
			if h == "" {
				continue
			}
			if _, ok := p.headers[h]; !ok {
				return Decision{Reason: "header not allowed: " + h}
			}
		}
	}

	header := p.commonHeaders(origin)
	header.Set("Access-Control-Allow-Methods", p.methodList)
	if requestHeaders != "" {
		header.Set("Access-Control-Allow-Headers", requestHeaders)
	}
	if p.maxAge != "" {
		header.Set("Access-Control-Max-Age", p.maxAge)
	}

	return Decision{Allowed: true, Header: header}
}

func (p *Policy) originAllowed(origin string) bool {
	if p.wildcard {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

// commonHeaders builds the headers shared by preflight and simple allows.
// The origin is echoed rather than "*" so responses stay correct when the
// rule set changes.
func (p *Policy) commonHeaders(origin string) http.Header {
	header := http.Header{}
	header.Set("Access-Control-Allow-Origin", origin)
	header.Set("Access-Control-Expose-Headers", p.expose)
	if p.creds {
		header.Set("Access-Control-Allow-Credentials", "true")
	}
	return header
}
