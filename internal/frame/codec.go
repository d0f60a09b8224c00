package frame

import (
	"encoding/binary"
	"encoding/json"

	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
)

// Codec serializes and deserializes Frames for one negotiated wire format.
type Codec interface {
	Encode(f *Frame) ([]byte, error)
	Decode(b []byte) (*Frame, error)
}

// JSONCodec implements Codec with length-prefixed JSON, the wire format
// this implementation actually negotiates (see DESIGN.md for why a
// hand-rolled protobuf codec was not attempted).
type JSONCodec struct {
	// MaxFrameSize bounds the decoded frame, matching
	// GATEWAY_MAX_MESSAGE_SIZE_BYTES.
	MaxFrameSize int
}

// NewJSONCodec returns a JSONCodec enforcing maxFrameSize (0 disables the
// check, which callers should never do for client-facing transports).
func NewJSONCodec(maxFrameSize int) *JSONCodec {
	return &JSONCodec{MaxFrameSize: maxFrameSize}
}

const lengthPrefixBytes = 4

func (c *JSONCodec) Encode(f *Frame) ([]byte, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode frame")
	}
	if c.MaxFrameSize > 0 && len(body) > c.MaxFrameSize {
		return nil, errors.PayloadTooLarge("encoded frame exceeds max frame size", nil)
	}
	out := make([]byte, lengthPrefixBytes+len(body))
	binary.BigEndian.PutUint32(out[:lengthPrefixBytes], uint32(len(body)))
	copy(out[lengthPrefixBytes:], body)
	return out, nil
}

// Decode expects the length prefix already stripped (the transport read
// loop reads exactly `length` bytes off the prefix before calling Decode);
// b is the JSON body alone.
func (c *JSONCodec) Decode(b []byte) (*Frame, error) {
	if c.MaxFrameSize > 0 && len(b) > c.MaxFrameSize {
		return nil, errors.PayloadTooLarge("frame exceeds max frame size", nil)
	}
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, errors.InvalidArgument("failed to decode frame", err)
	}
	return &f, nil
}

// ReadLengthPrefix parses the 4-byte big-endian length prefix from the
// front of buf.
func ReadLengthPrefix(buf []byte) (uint32, error) {
	if len(buf) < lengthPrefixBytes {
		return 0, errors.InvalidArgument("buffer shorter than length prefix", nil)
	}
	return binary.BigEndian.Uint32(buf[:lengthPrefixBytes]), nil
}
