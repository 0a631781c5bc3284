// Package echoserver is a self-contained gRPC echo service used by the
// proxy binary and the end-to-end tests. Messages are hand-framed protobuf
// (field 1, a string), so no generated stubs are needed: the server runs a
// raw codec and answers every method from one stream handler.
package echoserver

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protowire"
)

// Methods answered by the server.
const (
	MethodUnary        = "/echo.Echo/UnaryCall"
	MethodServerStream = "/echo.Echo/ServerStream"
	MethodClientStream = "/echo.Echo/ClientStream"
)

// frame carries raw message bytes through the raw codec.
type frame struct {
	payload []byte
}

// rawCodec moves message bytes through grpc without interpreting them.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*frame)
	if !ok {
		return nil, fmt.Errorf("echoserver: cannot marshal %T", v)
	}
	return f.payload, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*frame)
	if !ok {
		return fmt.Errorf("echoserver: cannot unmarshal into %T", v)
	}
	f.payload = data
	return nil
}

func (rawCodec) Name() string { return "raw" }

// EncodeMessage wraps text as a protobuf message carrying it in field 1.
func EncodeMessage(text string) []byte {
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	out = protowire.AppendString(out, text)
	return out
}

// DecodeMessage extracts the field-1 string from a protobuf message.
// Unknown fields are skipped; a message without field 1 decodes to "".
func DecodeMessage(data []byte) (string, error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", fmt.Errorf("echoserver: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		if num == 1 && typ == protowire.BytesType {
			text, n := protowire.ConsumeString(data)
			if n < 0 {
				return "", fmt.Errorf("echoserver: bad string: %w", protowire.ParseError(n))
			}
			return text, nil
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return "", fmt.Errorf("echoserver: bad field %d: %w", num, protowire.ParseError(n))
		}
		data = data[n:]
	}
	return "", nil
}

// New builds the echo server. Extra options are appended after the raw
// codec and the stream handler.
func New(opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.ForceServerCodec(rawCodec{}),
		grpc.UnknownServiceHandler(handle),
	}
	return grpc.NewServer(append(base, opts...)...)
}

func handle(_ any, stream grpc.ServerStream) error {
	method, ok := grpc.MethodFromServerStream(stream)
	if !ok {
		return status.Error(codes.Internal, "no method in stream")
	}
	switch method {
	case MethodUnary:
		return unaryCall(stream)
	case MethodServerStream:
		return serverStream(stream)
	case MethodClientStream:
		return clientStream(stream)
	default:
		return status.Errorf(codes.Unimplemented, "unknown method %s", method)
	}
}

func recvText(stream grpc.ServerStream) (string, error) {
	var m frame
	if err := stream.RecvMsg(&m); err != nil {
		return "", err
	}
	return DecodeMessage(m.payload)
}

func sendText(stream grpc.ServerStream, text string) error {
	return stream.SendMsg(&frame{payload: EncodeMessage(text)})
}

// unaryCall echoes one message back; "boom" fails with InvalidArgument.
func unaryCall(stream grpc.ServerStream) error {
	text, err := recvText(stream)
	if err != nil {
		return err
	}
	if text == "boom" {
		return status.Error(codes.InvalidArgument, "boom")
	}
	return sendText(stream, text)
}

// serverStream answers one request with two numbered copies of it.
func serverStream(stream grpc.ServerStream) error {
	text, err := recvText(stream)
	if err != nil {
		return err
	}
	for i := 1; i <= 2; i++ {
		if err := sendText(stream, fmt.Sprintf("%d-%s", i, text)); err != nil {
			return err
		}
	}
	return nil
}

// clientStream concatenates every request message into one response and
// reports the message count as trailing metadata.
func clientStream(stream grpc.ServerStream) error {
	var parts []string
	for {
		text, err := recvText(stream)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		parts = append(parts, text)
	}
	stream.SetTrailer(metadata.Pairs("x-echo-count", strconv.Itoa(len(parts))))
	return sendText(stream, strings.Join(parts, ""))
}
