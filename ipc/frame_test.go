package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/drover-io/drover/types"
)

// encodeFrame encodes a payload with the little-endian length prefix
// (matches the extension's output).
func encodeFrame(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.LittleEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf
}

func TestEncodeCommand_WireShape(t *testing.T) {
	cmd := &types.Command{
		ID:     7,
		Action: types.ActionNavigate,
		Params: map[string]any{"url": "https://example.com"},
	}

	payload, err := EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("EncodeCommand failed: %v", err)
	}

	var envelope map[string]map[string]any
	if err := json.Unmarshal(payload, &envelope); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}

	body, ok := envelope["command"]
	if !ok {
		t.Fatalf("payload missing command envelope: %s", payload)
	}
	if got := body["id"]; got != float64(7) {
		t.Errorf("id = %v, want 7", got)
	}
	if got := body["action"]; got != "navigate" {
		t.Errorf("action = %v, want navigate", got)
	}
	if got := body["url"]; got != "https://example.com" {
		t.Errorf("url param = %v, want inlined next to action", got)
	}
}

func TestEncoder_Decoder_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	cmd := &types.Command{ID: 1, Action: types.ActionPing}
	if err := enc.WriteCommand(cmd); err != nil {
		t.Fatalf("WriteCommand failed: %v", err)
	}

	// Prefix must be little-endian.
	prefix := binary.LittleEndian.Uint32(buf.Bytes()[:LengthPrefixSize])
	if int(prefix) != buf.Len()-LengthPrefixSize {
		t.Errorf("length prefix = %d, want %d", prefix, buf.Len()-LengthPrefixSize)
	}

	dec := NewDecoder(&buf)
	payload, err := dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Contains(payload, []byte(`"action":"ping"`)) {
		t.Errorf("payload = %s, want ping command", payload)
	}
}

func TestDecoder_EOFBetweenFrames(t *testing.T) {
	dec := NewDecoder(bytes.NewReader(nil))
	if _, err := dec.ReadFrame(); err != io.EOF {
		t.Errorf("ReadFrame on empty stream = %v, want io.EOF", err)
	}
}

func TestDecoder_PartialFrameIsFatal(t *testing.T) {
	frame := encodeFrame([]byte(`{"id":1,"status":"success"}`))
	dec := NewDecoder(bytes.NewReader(frame[:len(frame)-3]))

	_, err := dec.ReadFrame()
	if err == nil {
		t.Fatal("ReadFrame on truncated frame succeeded, want error")
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("error = %T, want *FrameError", err)
	}
	if frameErr.Kind != FrameErrorPartial {
		t.Errorf("Kind = %v, want FrameErrorPartial", frameErr.Kind)
	}
	if !IsFatalFrameError(err) {
		t.Error("partial frame should be fatal")
	}
}

func TestDecoder_OversizedFrameIsFatal(t *testing.T) {
	var prefix [LengthPrefixSize]byte
	binary.LittleEndian.PutUint32(prefix[:], MaxInboundPayload+1)

	dec := NewDecoder(bytes.NewReader(prefix[:]))
	_, err := dec.ReadFrame()

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("error = %T, want *FrameError", err)
	}
	if frameErr.Kind != FrameErrorTooLarge {
		t.Errorf("Kind = %v, want FrameErrorTooLarge", frameErr.Kind)
	}
	if !frameErr.IsFatal() {
		t.Error("oversized frame should be fatal")
	}
}

func TestDecodeFrame_ResultVersusMessage(t *testing.T) {
	decoded, err := DecodeFrame([]byte(`{"id":42,"status":"success","data":[{"title":"a"}]}`))
	if err != nil {
		t.Fatalf("DecodeFrame(result) failed: %v", err)
	}
	result, ok := decoded.(*types.Result)
	if !ok {
		t.Fatalf("decoded = %T, want *types.Result", decoded)
	}
	if result.ID != 42 {
		t.Errorf("ID = %d, want 42", result.ID)
	}
	if result.Status != types.StatusSuccess {
		t.Errorf("Status = %q, want success", result.Status)
	}

	decoded, err = DecodeFrame([]byte(`{"action":"start_task","platform":"duckduckgo"}`))
	if err != nil {
		t.Fatalf("DecodeFrame(message) failed: %v", err)
	}
	message, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded = %T, want map[string]any", decoded)
	}
	if message["platform"] != "duckduckgo" {
		t.Errorf("platform = %v, want duckduckgo", message["platform"])
	}
}

func TestDecodeFrame_MalformedJSONIsRecoverable(t *testing.T) {
	_, err := DecodeFrame([]byte(`{"id":`))
	if err == nil {
		t.Fatal("DecodeFrame on malformed JSON succeeded, want error")
	}
	if IsFatalFrameError(err) {
		t.Error("decode error should not be fatal, the stream stays framed")
	}
}
