package grpcweb

import (
	"io"
	"net/http"

	"github.com/Millione/grpc-web/codec"
)

// coerceRequest rewrites a gRPC-Web request into the shape the inner gRPC
// handler expects: the gRPC content type, an explicit HTTP/2 protocol
// version, TE trailers, and a body of validated binary frames.
//
// Content-Length is dropped: the translated body length is unknown once
// base64 text framing is stripped.
func coerceRequest(r *http.Request, body io.Reader) *http.Request {
	out := r.Clone(r.Context())
	out.Proto = "HTTP/2.0"
	out.ProtoMajor = 2
	out.ProtoMinor = 0
	out.Header.Set("Content-Type", ContentTypeGRPC)
	out.Header.Set("TE", "trailers")
	out.Header.Set("Accept-Encoding", "identity,deflate,gzip")
	out.Header.Del("Content-Length")
	out.ContentLength = -1
	out.Body = io.NopCloser(body)
	return out
}

// frameStream re-emits frames from a FrameReader as a plain byte stream,
// validating each frame before it reaches the inner handler. At most one
// frame is buffered at a time.
type frameStream struct {
	frames *codec.FrameReader
	buffer []byte
	done   bool
}

// Read implements io.Reader.
func (s *frameStream) Read(p []byte) (int, error) {
	for len(s.buffer) == 0 {
		if s.done {
			return 0, io.EOF
		}
		frame, err := s.frames.Next()
		if err != nil {
			s.done = true
			if err == io.EOF {
				return 0, io.EOF
			}
			return 0, err
		}
		s.buffer = codec.EncodeFrame(frame)
	}
	n := copy(p, s.buffer)
	s.buffer = s.buffer[n:]
	return n, nil
}
