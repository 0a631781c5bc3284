package codec

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedTrailers reports a trailer block line without a colon
// separator or without a key.
var ErrMalformedTrailers = errors.New("grpc-web: malformed trailers")

// TrailerPair is a single trailing metadata entry.
type TrailerPair struct {
	Key   string
	Value string
}

// TrailerSet is an ordered sequence of trailing metadata entries. Keys are
// lowercase and need not be unique; repeated keys keep their order.
type TrailerSet []TrailerPair

// Add appends an entry, lowercasing the key.
func (ts *TrailerSet) Add(key, value string) {
	*ts = append(*ts, TrailerPair{Key: strings.ToLower(key), Value: value})
}

// Get returns the first value for key (matched case-insensitively) and
// whether it was present.
func (ts TrailerSet) Get(key string) (string, bool) {
	key = strings.ToLower(key)
	for _, t := range ts {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// CreateTrailerFrame serializes trailers into a trailer frame.
// Trailers are encoded as HTTP/1.1 header lines:
// "key1: value1\r\nkey2: value2\r\n"
func CreateTrailerFrame(trailers TrailerSet) Frame {
	var buf bytes.Buffer

	for _, t := range trailers {
		buf.WriteString(strings.ToLower(t.Key))
		buf.WriteString(": ")
		buf.WriteString(t.Value)
		buf.WriteString("\r\n")
	}

	return Frame{
		Flags: FrameTrailer,
		Data:  buf.Bytes(),
	}
}

// ParseTrailers parses a trailer frame payload back into a TrailerSet.
// Expects HTTP/1.1 header lines: "key1: value1\r\nkey2: value2\r\n". The
// space after the colon is optional. A line without a colon, or with an
// empty key, fails with ErrMalformedTrailers.
func ParseTrailers(data []byte) (TrailerSet, error) {
	trailers := TrailerSet{}

	for _, line := range strings.Split(string(data), "\r\n") {
		if line == "" {
			continue
		}

		colonIndex := strings.IndexByte(line, ':')
		if colonIndex == -1 {
			return nil, fmt.Errorf("%w: line %q has no separator", ErrMalformedTrailers, line)
		}

		key := strings.ToLower(strings.TrimSpace(line[:colonIndex]))
		if key == "" {
			return nil, fmt.Errorf("%w: line %q has no key", ErrMalformedTrailers, line)
		}

		value := strings.TrimSpace(line[colonIndex+1:])
		trailers = append(trailers, TrailerPair{Key: key, Value: value})
	}

	return trailers, nil
}
