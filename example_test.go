package grpcweb_test

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"

	grpcweb "github.com/Millione/grpc-web"
)

// ExampleWrap fronts a handler speaking the inner gRPC conventions and
// shows the translated gRPC-Web exchange.
func ExampleWrap() {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A gRPC server would stream framed messages here; this handler
		// only reports a successful empty response.
		w.Header().Add("Trailer", "Grpc-Status")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		w.Header().Set("Grpc-Status", "0")
	})
	handler, err := grpcweb.Wrap(inner)
	if err != nil {
		log.Fatal(err)
	}
	server := httptest.NewServer(handler)
	defer server.Close()

	body := grpcweb.EncodeFrame(grpcweb.CreateDataFrame([]byte("request")))
	resp, err := http.Post(server.URL+"/pkg.Service/Call", grpcweb.ContentTypeGRPCWebProto, bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal(err)
	}
	result, err := grpcweb.DecodeFrames(payload, 0)
	if err != nil {
		log.Fatal(err)
	}
	last := result.Frames[len(result.Frames)-1]

	fmt.Printf("content type: %s\n", resp.Header.Get("Content-Type"))
	fmt.Printf("trailer: %q\n", last.Data)
	// Output:
	// content type: application/grpc-web+proto
	// trailer: "grpc-status: 0\r\n"
}
