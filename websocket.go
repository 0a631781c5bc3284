package grpcweb

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Millione/grpc-web/codec"
)

// WebSocketSubprotocol is the subprotocol offered to upgrading clients.
const WebSocketSubprotocol = "grpc-websockets"

// Prefix byte of client-to-server WebSocket messages.
const (
	// webSocketData precedes a chunk of the framed request byte stream.
	webSocketData byte = 0x00
	// webSocketFinish alone ends the request stream.
	webSocketFinish byte = 0x01
)

// serveWebSocket bridges one RPC over a WebSocket, for clients that cannot
// stream request bodies over plain HTTP/1.1.
//
// Client binary messages carry a one-byte prefix: 0x00 followed by a chunk
// of the framed request stream, or 0x01 alone to finish sending. Server
// binary messages carry chunks of the framed response stream, message
// frames first and the Trailer frame last, then the socket closes.
func (h *Handler) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	decision := h.policy.Simple(r.Header.Get("Origin"))
	if !decision.Allowed && h.denyBehavior == DenyReject {
		h.logger.Debug("rejected cross-origin websocket",
			zap.String("origin", r.Header.Get("Origin")),
			zap.String("reason", decision.Reason))
		w.WriteHeader(http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		Subprotocols: []string{WebSocketSubprotocol},
		// The origin was already checked against the CORS rule set.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	pr, pw := io.Pipe()
	go pumpWebSocketRequest(conn, pw)

	body := &frameStream{frames: codec.NewFrameReader(pr, h.maxFrameSize)}
	shim := newWebSocketResponseWriter(conn)
	h.inner.ServeHTTP(shim, webSocketRequest(r, body))

	// Unblock the pump if the RPC finished while the client was still
	// sending.
	pr.Close()

	if err := shim.finish(); err != nil {
		h.logger.Debug("could not finish websocket response",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		return
	}
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteMessage(websocket.CloseMessage, message)
}

// pumpWebSocketRequest feeds client message chunks into the request pipe
// until the finish marker, a close, or an error.
func pumpWebSocketRequest(conn *websocket.Conn, pw *io.PipeWriter) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				pw.Close()
			} else {
				pw.CloseWithError(err)
			}
			return
		}
		if messageType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}
		switch data[0] {
		case webSocketFinish:
			pw.Close()
			return
		case webSocketData:
			if _, err := pw.Write(data[1:]); err != nil {
				return
			}
		default:
			pw.CloseWithError(fmt.Errorf("grpcweb: unknown websocket message prefix 0x%02x", data[0]))
			return
		}
	}
}

// webSocketRequest turns the upgrade request into the POST the inner gRPC
// handler expects, with the upgrade negotiation headers stripped.
func webSocketRequest(r *http.Request, body io.Reader) *http.Request {
	out := coerceRequest(r, body)
	out.Method = http.MethodPost
	for _, key := range []string{
		"Upgrade",
		"Connection",
		"Sec-Websocket-Key",
		"Sec-Websocket-Version",
		"Sec-Websocket-Protocol",
		"Sec-Websocket-Extensions",
	} {
		out.Header.Del(key)
	}
	return out
}

// webSocketResponseWriter carries the framed response stream over binary
// messages. HTTP-level headers have nowhere to go on a WebSocket and are
// dropped; trailing headers still travel in the final Trailer frame.
type webSocketResponseWriter struct {
	conn        *websocket.Conn
	header      http.Header
	wroteHeader bool
	sent        map[string]struct{}
	err         error
}

func newWebSocketResponseWriter(conn *websocket.Conn) *webSocketResponseWriter {
	return &webSocketResponseWriter{
		conn:   conn,
		header: make(http.Header),
	}
}

// Header implements http.ResponseWriter.
func (rw *webSocketResponseWriter) Header() http.Header {
	return rw.header
}

// WriteHeader implements http.ResponseWriter. The status itself is not
// representable on the socket; headers present now are marked as sent so
// they are not repeated as trailers.
func (rw *webSocketResponseWriter) WriteHeader(int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.sent = make(map[string]struct{}, len(rw.header))
	for key := range rw.header {
		rw.sent[key] = struct{}{}
	}
}

// Write implements http.ResponseWriter.
func (rw *webSocketResponseWriter) Write(p []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	if rw.err != nil {
		return 0, rw.err
	}
	if err := rw.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		rw.err = err
		return 0, err
	}
	return len(p), nil
}

// Flush implements http.Flusher. Messages are delivered as they are
// written, so there is nothing to do.
func (rw *webSocketResponseWriter) Flush() {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
}

// finish sends the final Trailer frame.
func (rw *webSocketResponseWriter) finish() error {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	trailers := collectTrailers(rw.header, rw.sent)
	frame := codec.CreateTrailerFrame(trailers)
	if rw.err != nil {
		return rw.err
	}
	if err := rw.conn.WriteMessage(websocket.BinaryMessage, codec.EncodeFrame(frame)); err != nil {
		rw.err = err
		return err
	}
	return nil
}
