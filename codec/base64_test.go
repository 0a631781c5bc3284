package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"
)

// chunkReader yields the data in fixed-size chunks to exercise group
// boundaries falling anywhere in the stream.
type chunkReader struct {
	data []byte
	size int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}

	n := c.size
	if n > len(c.data) {
		n = len(c.data)
	}
	if n > len(p) {
		n = len(p)
	}

	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func TestBase64ReaderChunking(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("a"),
		[]byte("ab"),
		[]byte("abc"),
		[]byte("abcd"),
		[]byte("hello gRPC-Web"),
		bytes.Repeat([]byte{0x00, 0x01, 0x02, 0xfe, 0xff}, 1000),
	}
	chunkSizes := []int{1, 2, 3, 4, 5, 7, 64, 8192}

	for _, payload := range payloads {
		encoded := []byte(base64.StdEncoding.EncodeToString(payload))

		for _, size := range chunkSizes {
			r := NewBase64Reader(&chunkReader{data: encoded, size: size})

			decoded, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("payload %d bytes, chunk %d: unexpected error: %v", len(payload), size, err)
			}
			if !bytes.Equal(decoded, payload) {
				t.Errorf("payload %d bytes, chunk %d: decoded %d bytes, mismatch", len(payload), size, len(decoded))
			}
		}
	}
}

func TestBase64ReaderConcatenatedSegments(t *testing.T) {
	// Browser clients encode each frame separately, so a body can be several
	// independently padded base64 segments back to back.
	tests := []struct {
		name     string
		segments []string
		expected string
	}{
		{
			name:     "unpadded then padded",
			segments: []string{"abc", "defg"},
			expected: "abcdefg",
		},
		{
			name:     "padded then padded",
			segments: []string{"a", "bc"},
			expected: "abc",
		},
		{
			name:     "three segments",
			segments: []string{"one", "2", "three!"},
			expected: "one2three!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body strings.Builder
			for _, seg := range tt.segments {
				body.WriteString(base64.StdEncoding.EncodeToString([]byte(seg)))
			}

			r := NewBase64Reader(strings.NewReader(body.String()))

			decoded, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(decoded) != tt.expected {
				t.Errorf("decoded = %q, want %q", decoded, tt.expected)
			}
		})
	}
}

func TestBase64ReaderMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "leftover characters at end", body: "QUJDQQ"},
		{name: "single odd character", body: "QUJERUZHSA=="[:9]},
		{name: "invalid character", body: "QU!D"},
		{name: "padding in the middle of a group", body: "Q=JD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewBase64Reader(strings.NewReader(tt.body))

			_, err := io.ReadAll(r)
			if !errors.Is(err, ErrMalformedBase64) {
				t.Errorf("ReadAll() error = %v, want %v", err, ErrMalformedBase64)
			}
		})
	}
}

func TestBase64ReaderSmallDestination(t *testing.T) {
	payload := []byte("stream me one byte at a time")
	encoded := base64.StdEncoding.EncodeToString(payload)

	r := NewBase64Reader(strings.NewReader(encoded))

	var decoded []byte
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			decoded = append(decoded, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read() unexpected error: %v", err)
		}
	}

	if !bytes.Equal(decoded, payload) {
		t.Errorf("decoded = %q, want %q", decoded, payload)
	}
}

func TestBase64WriterChunking(t *testing.T) {
	payload := []byte("The quick brown fox jumps over the lazy dog\x00\x01\x02")
	splits := []int{1, 2, 3, 4, 5, 7, 11, len(payload)}

	for _, size := range splits {
		var out bytes.Buffer
		w := NewBase64Writer(&out)

		for start := 0; start < len(payload); start += size {
			end := start + size
			if end > len(payload) {
				end = len(payload)
			}
			if _, err := w.Write(payload[start:end]); err != nil {
				t.Fatalf("chunk %d: Write() unexpected error: %v", size, err)
			}
		}
		if err := w.Close(); err != nil {
			t.Fatalf("chunk %d: Close() unexpected error: %v", size, err)
		}

		// The output must be one contiguous base64 stream: decodable as a
		// whole, padding only at the very end.
		decoded, err := base64.StdEncoding.DecodeString(out.String())
		if err != nil {
			t.Fatalf("chunk %d: output not a single base64 stream: %v", size, err)
		}
		if !bytes.Equal(decoded, payload) {
			t.Errorf("chunk %d: decoded mismatch", size)
		}
		if idx := strings.IndexByte(out.String(), '='); idx >= 0 && idx < out.Len()-2 {
			t.Errorf("chunk %d: padding at offset %d before end of stream", size, idx)
		}
	}
}

func TestBase64WriterEmpty(t *testing.T) {
	var out bytes.Buffer
	w := NewBase64Writer(&out)

	if err := w.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("output = %q, want empty", out.String())
	}
}

func TestBase64WriterWriteAfterClose(t *testing.T) {
	w := NewBase64Writer(&bytes.Buffer{})

	if err := w.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}
	if _, err := w.Write([]byte("late")); err == nil {
		t.Error("Write() after Close succeeded, want error")
	}
}

func TestBase64RoundTripThroughPipeline(t *testing.T) {
	payload := bytes.Repeat([]byte("frame data \xde\xad\xbe\xef "), 321)

	var encoded bytes.Buffer
	w := NewBase64Writer(&encoded)
	for start := 0; start < len(payload); start += 13 {
		end := start + 13
		if end > len(payload) {
			end = len(payload)
		}
		if _, err := w.Write(payload[start:end]); err != nil {
			t.Fatalf("Write() unexpected error: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}

	r := NewBase64Reader(&chunkReader{data: encoded.Bytes(), size: 5})
	decoded, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() unexpected error: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Error("round trip mismatch")
	}
}
