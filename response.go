package grpcweb

import (
	"io"
	"net/http"
	"net/textproto"
	"sort"
	"strings"

	"github.com/Millione/grpc-web/codec"
)

// responseWriter rewrites the inner gRPC handler's response into gRPC-Web
// form: the variant content type replaces application/grpc, message frames
// pass through (base64-encoded for the text variant), and trailing headers
// are folded into one final Trailer frame instead of HTTP trailers.
//
// It implements http.Flusher, which the inner transport requires.
type responseWriter struct {
	w          http.ResponseWriter
	variant    Variant
	corsHeader http.Header

	header      http.Header
	body        io.Writer
	text        *codec.Base64Writer
	wroteHeader bool
	sent        map[string]struct{}
}

func newResponseWriter(w http.ResponseWriter, variant Variant, corsHeader http.Header) *responseWriter {
	rw := &responseWriter{
		w:          w,
		variant:    variant,
		corsHeader: corsHeader,
		header:     make(http.Header),
		body:       w,
	}
	if variant == VariantText {
		rw.text = codec.NewBase64Writer(w)
		rw.body = rw.text
	}
	return rw
}

// Header implements http.ResponseWriter. Values set after WriteHeader stay
// on this map and are collected as trailers when the response finishes.
func (rw *responseWriter) Header() http.Header {
	return rw.header
}

// WriteHeader flushes the headers set so far, the CORS headers of the
// exchange, and the gRPC-Web content type.
func (rw *responseWriter) WriteHeader(status int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.sent = make(map[string]struct{}, len(rw.header))

	out := rw.w.Header()
	for key, values := range rw.header {
		if skipResponseHeader(key) {
			continue
		}
		out[key] = append([]string(nil), values...)
		rw.sent[key] = struct{}{}
	}
	copyHeader(out, rw.corsHeader)
	out.Set("Content-Type", rw.variant.ContentType())
	rw.w.WriteHeader(status)
}

// Write implements http.ResponseWriter, passing framed message bytes
// through to the client.
func (rw *responseWriter) Write(p []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.body.Write(p)
}

// Flush implements http.Flusher so streamed messages reach the client as
// they are produced.
func (rw *responseWriter) Flush() {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	if f, ok := rw.w.(http.Flusher); ok {
		f.Flush()
	}
}

// finish appends the Trailer frame and, for the text variant, pads out the
// base64 stream. It must be called exactly once, after the inner handler
// returns.
func (rw *responseWriter) finish() error {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	trailers := collectTrailers(rw.header, rw.sent)
	frame := codec.CreateTrailerFrame(trailers)
	if _, err := rw.body.Write(codec.EncodeFrame(frame)); err != nil {
		return err
	}
	if rw.text != nil {
		return rw.text.Close()
	}
	return nil
}

// skipResponseHeader reports whether a header set by the inner handler must
// not be forwarded to the gRPC-Web client.
func skipResponseHeader(key string) bool {
	return key == "Content-Type" ||
		key == "Content-Length" ||
		key == "Trailer" ||
		strings.HasPrefix(key, http.TrailerPrefix)
}

// collectTrailers gathers the trailing headers of the response: values of
// keys the inner handler declared in Trailer and then set after the headers
// were flushed, plus keys using the net/http TrailerPrefix convention.
// Declared keys keep their declaration order; prefixed keys follow, sorted.
func collectTrailers(header http.Header, sent map[string]struct{}) codec.TrailerSet {
	var trailers codec.TrailerSet
	seen := make(map[string]struct{})

	for _, declared := range header["Trailer"] {
		for _, name := range strings.Split(declared, ",") {
			name = textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			if _, flushed := sent[name]; flushed {
				continue
			}
			for _, value := range header[name] {
				trailers.Add(name, value)
			}
		}
	}

	var prefixed []string
	for key := range header {
		if strings.HasPrefix(key, http.TrailerPrefix) {
			prefixed = append(prefixed, key)
		}
	}
	sort.Strings(prefixed)
	for _, key := range prefixed {
		name := key[len(http.TrailerPrefix):]
		if name == "" {
			continue
		}
		for _, value := range header[key] {
			trailers.Add(name, value)
		}
	}
	return trailers
}
