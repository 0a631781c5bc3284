package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedBase64 reports invalid characters or a partial 4-character
// group left at the end of a text-variant body.
var ErrMalformedBase64 = errors.New("grpc-web: malformed base64 body")

const base64ChunkSize = 8 * 1024

// Base64Reader decodes a streamed base64 body. Incoming chunks may split
// 4-character groups anywhere; incomplete groups are carried over to the
// next read. A padded group may appear mid-stream (browser clients encode
// each frame separately and concatenate the results); it terminates its own
// decode run and the following characters start a fresh one. A partial
// group left at the end of the stream fails with ErrMalformedBase64.
type Base64Reader struct {
	r       io.Reader
	pending []byte // encoded characters not yet decoded
	out     []byte // decoded bytes not yet delivered
	chunk   []byte // read scratch
	dec     []byte // decode scratch
	err     error  // sticky; io.EOF at a clean end of stream
	eof     bool   // underlying reader exhausted
}

// NewBase64Reader returns a Base64Reader decoding from r.
func NewBase64Reader(r io.Reader) *Base64Reader {
	return &Base64Reader{r: r, chunk: make([]byte, base64ChunkSize)}
}

func (b *Base64Reader) Read(p []byte) (int, error) {
	for len(b.out) == 0 && b.err == nil {
		b.fill()
	}

	if len(b.out) > 0 {
		n := copy(p, b.out)
		b.out = b.out[n:]
		return n, nil
	}

	return 0, b.err
}

// fill decodes buffered complete groups into out, reading another encoded
// chunk when none are decodable yet.
func (b *Base64Reader) fill() {
	decodable := len(b.pending) / 4 * 4

	// A padded group ends its base64 run; decode up to and including it so
	// the characters after it are handled as a fresh run.
	if idx := bytes.IndexByte(b.pending[:decodable], '='); idx >= 0 {
		decodable = (idx/4 + 1) * 4
	}

	if decodable > 0 {
		need := base64.StdEncoding.DecodedLen(decodable)
		if cap(b.dec) < need {
			b.dec = make([]byte, need)
		}

		n, err := base64.StdEncoding.Decode(b.dec[:need], b.pending[:decodable])
		if err != nil {
			b.err = fmt.Errorf("%w: %v", ErrMalformedBase64, err)
			return
		}

		b.out = b.dec[:n]
		b.pending = b.pending[decodable:]
		return
	}

	if b.eof {
		if len(b.pending) > 0 {
			b.err = fmt.Errorf("%w: %d leftover characters at end of stream", ErrMalformedBase64, len(b.pending))
		} else {
			b.err = io.EOF
		}
		return
	}

	n, err := b.r.Read(b.chunk)
	if n > 0 {
		b.pending = append(b.pending, b.chunk[:n]...)
	}
	if err == io.EOF {
		b.eof = true
	} else if err != nil {
		b.err = err
	}
}

// Base64Writer encodes a byte stream into one contiguous base64 stream.
// Chunks may split 3-byte groups anywhere; 0-2 leftover bytes are carried
// until the next write. Close flushes the remainder with standard padding
// and must be called at the true end of the stream; it does not close the
// underlying writer.
type Base64Writer struct {
	w      io.Writer
	carry  [3]byte
	ncarry int
	buf    []byte // encode scratch
	err    error  // sticky
	closed bool
}

// NewBase64Writer returns a Base64Writer encoding to w.
func NewBase64Writer(w io.Writer) *Base64Writer {
	return &Base64Writer{w: w}
}

func (b *Base64Writer) Write(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	if b.closed {
		return 0, errors.New("grpc-web: write on closed base64 writer")
	}

	written := len(p)

	if b.ncarry+len(p) < 3 {
		b.ncarry += copy(b.carry[b.ncarry:], p)
		return written, nil
	}

	var head int
	if b.ncarry > 0 {
		p = p[copy(b.carry[b.ncarry:3], p):]
		head = 4
		b.ncarry = 0
	}

	groups := len(p) / 3 * 3
	need := head + base64.StdEncoding.EncodedLen(groups)
	if cap(b.buf) < need {
		b.buf = make([]byte, need)
	}

	if head > 0 {
		base64.StdEncoding.Encode(b.buf[:4], b.carry[:3])
	}
	if groups > 0 {
		base64.StdEncoding.Encode(b.buf[head:need], p[:groups])
	}

	b.ncarry = copy(b.carry[:], p[groups:])

	if _, err := b.w.Write(b.buf[:need]); err != nil {
		b.err = err
		return 0, err
	}

	return written, nil
}

// Close flushes the 0-2 byte remainder as a final padded group.
func (b *Base64Writer) Close() error {
	if b.closed {
		return b.err
	}
	b.closed = true

	if b.err != nil {
		return b.err
	}

	if b.ncarry > 0 {
		var group [4]byte
		base64.StdEncoding.Encode(group[:], b.carry[:b.ncarry])

		if _, err := b.w.Write(group[:]); err != nil {
			b.err = err
			return err
		}
		b.ncarry = 0
	}

	return nil
}
