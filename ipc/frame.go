// Package ipc implements the framing layer of the executor channel.
//
// Each direction of the channel is a sequence of frames: a 4-byte
// unsigned little-endian length prefix followed by that many bytes of
// UTF-8 JSON. Inbound payloads are capped at 1 MiB, matching the
// browser's native-messaging limit; oversized or truncated frames are
// fatal channel errors.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/drover-io/drover/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Frame size constants.
const (
	// MaxInboundPayload is the maximum inbound payload size (1 MiB).
	MaxInboundPayload = 1 * 1024 * 1024
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a payload exceeding MaxInboundPayload.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a JSON decoding error.
	FrameErrorDecode
)

// FrameError represents a framing or decoding error.
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

// IsFatal returns true if this error must terminate the channel.
// Partial and oversized frames leave the stream unsynchronized, so
// there is no recovery short of reconnecting.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if err is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// Decoder reads length-prefixed JSON frames from a stream.
type Decoder struct {
	reader io.Reader
}

// NewDecoder creates a frame decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: r}
}

// ReadFrame reads a single frame and returns the raw JSON payload.
//
// Errors:
//   - io.EOF: stream ended cleanly between frames
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: payload exceeds limit (fatal)
func (d *Decoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.reader, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.LittleEndian.Uint32(lengthBuf[:])

	if payloadSize > MaxInboundPayload {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxInboundPayload),
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

// Encoder writes length-prefixed JSON frames to a stream.
// Not safe for concurrent use; callers serialize writes.
type Encoder struct {
	writer io.Writer
}

// NewEncoder creates a frame encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{writer: w}
}

// WriteFrame writes one frame containing the given JSON payload.
func (e *Encoder) WriteFrame(payload []byte) error {
	var lengthBuf [LengthPrefixSize]byte
	binary.LittleEndian.PutUint32(lengthBuf[:], uint32(len(payload)))

	if _, err := e.writer.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := e.writer.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// WriteCommand encodes and writes a command frame.
// Wire shape: {"command": {"id": N, "action": "...", ...params}}.
func (e *Encoder) WriteCommand(cmd *types.Command) error {
	payload, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}
	return e.WriteFrame(payload)
}

// EncodeCommand builds the JSON payload for a command frame.
// Params are inlined next to id and action rather than nested, matching
// the extension's expected shape.
func EncodeCommand(cmd *types.Command) ([]byte, error) {
	body := make(map[string]any, len(cmd.Params)+2)
	for k, v := range cmd.Params {
		body[k] = v
	}
	body["id"] = cmd.ID
	body["action"] = string(cmd.Action)

	payload, err := json.Marshal(map[string]any{"command": body})
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to encode command",
			Err:  err,
		}
	}
	return payload, nil
}

// idProbe peeks at the id field without a full decode.
type idProbe struct {
	ID *int64 `json:"id"`
}

// DecodeFrame decodes an inbound payload.
// Frames carrying an id are results; everything else is an unsolicited
// message pushed by the browser side, returned as a raw map.
func DecodeFrame(payload []byte) (any, error) {
	var probe idProbe
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to probe frame",
			Err:  err,
		}
	}

	if probe.ID != nil {
		return DecodeResult(payload)
	}
	return DecodeMessage(payload)
}

// DecodeResult decodes a payload as a Result frame.
func DecodeResult(payload []byte) (*types.Result, error) {
	var result types.Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode result",
			Err:  err,
		}
	}
	return &result, nil
}

// DecodeMessage decodes a payload as an unsolicited browser message.
func DecodeMessage(payload []byte) (map[string]any, error) {
	var message map[string]any
	if err := json.Unmarshal(payload, &message); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode message",
			Err:  err,
		}
	}
	return message, nil
}
