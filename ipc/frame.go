// Package ipc implements the framed channel transport between the
// desktop client and the CAD-host plugin process.
//
// Wire format: a 4-byte little-endian signed length prefix followed by
// exactly that many UTF-8 bytes of a JSON-encoded envelope. Each
// send/listen call handles exactly one message exchange, which bounds
// the failure blast radius to a single operation.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/planline/planlink/types"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// FrameErrorKind classifies frame encoding and decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a malformed prefix or JSON decoding error.
	FrameErrorDecode
)

// FrameError represents a frame encoding or decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFrameError reports whether err is (or wraps) a FrameError.
func IsFrameError(err error) bool {
	var frameErr *FrameError
	return errors.As(err, &frameErr)
}

// EncodeFrame prepends the little-endian length prefix to payload.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.LittleEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf, nil
}

// EncodeMessage encodes a request envelope as a framed JSON payload.
func EncodeMessage(msg *types.Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to encode message", Err: err}
	}
	return EncodeFrame(payload)
}

// EncodeResponse encodes a response envelope as a framed JSON payload.
func EncodeResponse(resp *types.Response) ([]byte, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to encode response", Err: err}
	}
	return EncodeFrame(payload)
}

// FrameDecoder decodes length-prefixed JSON frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame from the stream and returns the raw
// payload bytes (JSON-encoded). Partial reads of the payload are
// looped via io.ReadFull until the full frame is assembled.
//
// Errors:
//   - io.EOF: stream ended cleanly before the prefix (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit
//   - *FrameError with Kind=FrameErrorDecode: negative length prefix
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	// The prefix is a signed int32; a negative value is malformed.
	payloadSize := int32(binary.LittleEndian.Uint32(lengthBuf[:]))
	if payloadSize < 0 {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  fmt.Sprintf("negative frame length %d", payloadSize),
		}
	}
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// DecodeMessage decodes a payload as a request envelope.
func DecodeMessage(payload []byte) (*types.Message, error) {
	var msg types.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode message envelope",
			Err:  err,
		}
	}
	return &msg, nil
}

// DecodeResponse decodes a payload as a response envelope.
func DecodeResponse(payload []byte) (*types.Response, error) {
	var resp types.Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode response envelope",
			Err:  err,
		}
	}
	return &resp, nil
}
