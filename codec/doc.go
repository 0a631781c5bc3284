// Package codec implements the gRPC-Web wire codecs: length-prefixed
// framing, trailer blocks, and streaming base64 for the text variant.
//
// The gRPC-Web protocol uses a simple framing format to transport messages:
//   - 1 byte: flags (bit 7 set = trailer frame, remaining bits reserved)
//   - 4 bytes: big-endian payload length
//   - N bytes: payload
//
// A response body is a sequence of message frames followed by exactly one
// trailer frame whose payload carries the trailing metadata as HTTP/1.1
// style "key: value\r\n" lines. The text variant wraps the same byte stream
// in base64.
//
// Example usage:
//
//	// Encoding
//	frame := codec.CreateDataFrame([]byte("message"))
//	encoded := codec.EncodeFrame(frame)
//
//	// Decoding from an accumulating buffer
//	result, err := codec.DecodeFrames(buffer, codec.DefaultMaxFrameSize)
//	if err != nil {
//	    // handle malformed input
//	}
//	for _, frame := range result.Frames {
//	    // process frame
//	}
//	buffer = result.Remaining // keep for the next read
//
//	// Decoding from a stream
//	fr := codec.NewFrameReader(body, codec.DefaultMaxFrameSize)
//	for {
//	    frame, err := fr.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    // process frame
//	}
//
// The decoders are designed for streaming scenarios where data arrives in
// chunks and may not contain complete frames; the base64 reader and writer
// likewise carry partial groups across chunk boundaries.
package codec
