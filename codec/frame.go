package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// FrameData marks a frame carrying an RPC message
	FrameData byte = 0x00
	// FrameTrailer marks the final frame carrying trailing metadata (bit 7)
	FrameTrailer byte = 0x80
	// HeaderSize is the size of the frame header (1 byte flags + 4 bytes length)
	HeaderSize = 5
	// DefaultMaxFrameSize caps a frame's declared payload length, matching
	// gRPC's default receive limit of 4 MiB. Passing 0 as a limit disables
	// the cap.
	DefaultMaxFrameSize uint32 = 4 * 1024 * 1024
)

var (
	// ErrNeedMoreData reports that the buffer ends before a complete frame.
	ErrNeedMoreData = errors.New("grpc-web: incomplete frame")
	// ErrMalformedFrame reports a frame with reserved flag bits set or a
	// stream that ends mid-frame.
	ErrMalformedFrame = errors.New("grpc-web: malformed frame")
	// ErrFrameTooLarge reports a declared payload length above the limit.
	ErrFrameTooLarge = errors.New("grpc-web: frame exceeds size limit")
)

// Frame represents a gRPC-Web frame
type Frame struct {
	Flags byte
	Data  []byte
}

// IsTrailer reports whether the frame carries trailing metadata.
func (f Frame) IsTrailer() bool {
	return f.Flags&FrameTrailer != 0
}

// EncodeFrame encodes a single frame into gRPC-Web format
func EncodeFrame(frame Frame) []byte {
	messageLength := len(frame.Data)
	buffer := make([]byte, HeaderSize+messageLength)

	// Write flags (1 byte)
	buffer[0] = frame.Flags

	// Write length in big-endian (4 bytes)
	binary.BigEndian.PutUint32(buffer[1:5], uint32(messageLength))

	// Write message data
	copy(buffer[HeaderSize:], frame.Data)

	return buffer
}

// CreateDataFrame creates a message frame
func CreateDataFrame(data []byte) Frame {
	return Frame{
		Flags: FrameData,
		Data:  data,
	}
}

// DecodeFrame decodes the first frame in buffer and returns it along with
// the number of bytes consumed. It returns ErrNeedMoreData when the buffer
// holds less than one complete frame, ErrMalformedFrame when reserved flag
// bits are set, and ErrFrameTooLarge when the declared payload length
// exceeds maxSize (0 = no limit); the payload is not allocated in that case.
func DecodeFrame(buffer []byte, maxSize uint32) (Frame, int, error) {
	if len(buffer) < HeaderSize {
		return Frame{}, 0, ErrNeedMoreData
	}

	flags := buffer[0]
	if flags&^FrameTrailer != 0 {
		return Frame{}, 0, fmt.Errorf("%w: reserved flag bits set in 0x%02x", ErrMalformedFrame, flags)
	}

	messageLength := binary.BigEndian.Uint32(buffer[1:HeaderSize])
	if maxSize > 0 && messageLength > maxSize {
		return Frame{}, 0, fmt.Errorf("%w: declared %d bytes, limit %d", ErrFrameTooLarge, messageLength, maxSize)
	}

	if uint64(len(buffer)) < HeaderSize+uint64(messageLength) {
		return Frame{}, 0, ErrNeedMoreData
	}

	// Copy the payload so the frame does not reference the caller's buffer
	data := make([]byte, messageLength)
	copy(data, buffer[HeaderSize:HeaderSize+messageLength])

	return Frame{Flags: flags, Data: data}, HeaderSize + int(messageLength), nil
}

// DecodeResult contains the result of decoding frames
type DecodeResult struct {
	Frames    []Frame
	Remaining []byte
}

// DecodeFrames decodes frames from buffer (may contain multiple frames or
// partial frames). It returns the decoded frames and any remaining bytes
// that do not form a complete frame, to be retained for the next read. A
// malformed or oversized frame stops decoding and returns the error along
// with the frames decoded before it.
func DecodeFrames(buffer []byte, maxSize uint32) (DecodeResult, error) {
	frames := []Frame{}
	offset := 0

	for offset < len(buffer) {
		frame, n, err := DecodeFrame(buffer[offset:], maxSize)
		if errors.Is(err, ErrNeedMoreData) {
			break
		}
		if err != nil {
			return DecodeResult{Frames: frames, Remaining: buffer[offset:]}, err
		}

		frames = append(frames, frame)
		offset += n
	}

	return DecodeResult{Frames: frames, Remaining: buffer[offset:]}, nil
}

// FrameReader decodes frames from a byte stream.
type FrameReader struct {
	r       io.Reader
	maxSize uint32
	header  [HeaderSize]byte
}

// NewFrameReader returns a FrameReader over r enforcing maxSize as the
// payload length limit (0 = no limit).
func NewFrameReader(r io.Reader, maxSize uint32) *FrameReader {
	return &FrameReader{r: r, maxSize: maxSize}
}

// Next reads the next frame. It returns io.EOF at a clean end of stream and
// ErrMalformedFrame when the stream ends mid-frame; transport errors are
// returned as-is.
func (fr *FrameReader) Next() (Frame, error) {
	if _, err := io.ReadFull(fr.r, fr.header[:]); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return Frame{}, fmt.Errorf("%w: truncated header", ErrMalformedFrame)
		}
		return Frame{}, err
	}

	flags := fr.header[0]
	if flags&^FrameTrailer != 0 {
		return Frame{}, fmt.Errorf("%w: reserved flag bits set in 0x%02x", ErrMalformedFrame, flags)
	}

	messageLength := binary.BigEndian.Uint32(fr.header[1:HeaderSize])
	if fr.maxSize > 0 && messageLength > fr.maxSize {
		return Frame{}, fmt.Errorf("%w: declared %d bytes, limit %d", ErrFrameTooLarge, messageLength, fr.maxSize)
	}

	data := make([]byte, messageLength)
	if _, err := io.ReadFull(fr.r, data); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Frame{}, fmt.Errorf("%w: truncated payload", ErrMalformedFrame)
		}
		return Frame{}, err
	}

	return Frame{Flags: flags, Data: data}, nil
}
