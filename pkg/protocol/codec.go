package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Encoder writes protocol messages to an io.Writer.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder creates a new protocol encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w: bufio.NewWriter(w),
	}
}

// Encode frames and writes one message. Each message is a single JSON
// object terminated by a newline and flushed immediately so the peer
// never waits on a buffered frame.
func (e *Encoder) Encode(msgType MessageType, data interface{}) error {
	if err := msgType.Validate(); err != nil {
		return err
	}

	var dataBytes []byte
	var err error
	if data != nil {
		dataBytes, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal data: %w", err)
		}
	}

	msg := Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      dataBytes,
	}

	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := e.w.Write(msgBytes); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := e.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	return nil
}

// EncodeResult sends a RESULT message wrapping the given payload.
func (e *Encoder) EncodeResult(payload interface{}) error {
	return e.Encode(MessageTypeResult, payload)
}

// EncodeError sends an ERROR message.
func (e *Encoder) EncodeError(code, message string) error {
	return e.Encode(MessageTypeError, &ErrorResponse{Code: code, Message: message})
}

// Decoder reads protocol messages from an io.Reader.
type Decoder struct {
	r *bufio.Scanner
}

// NewDecoder creates a new protocol decoder.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	// Large buffer: file intents can carry sizable inline content.
	const maxCapacity = 10 * 1024 * 1024 // 10 MB
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)
	return &Decoder{
		r: scanner,
	}
}

// Decode reads the next message from the input stream. It returns io.EOF
// once the peer closes its end.
func (d *Decoder) Decode() (*Message, error) {
	if !d.r.Scan() {
		if err := d.r.Err(); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		return nil, io.EOF
	}

	line := d.r.Bytes()
	if len(line) == 0 {
		return nil, fmt.Errorf("empty line")
	}

	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	if err := msg.Type.Validate(); err != nil {
		return nil, err
	}

	return &msg, nil
}

// DecodeResult reads the next message and requires it to be a RESULT,
// unmarshalling its payload into target. An ERROR message is returned as
// an *ErrorResponse error.
func (d *Decoder) DecodeResult(target interface{}) error {
	msg, err := d.Decode()
	if err != nil {
		return err
	}

	switch msg.Type {
	case MessageTypeResult:
		if err := ParseData(msg.Data, target); err != nil {
			return err
		}
		return nil
	case MessageTypeError:
		var errResp ErrorResponse
		if err := ParseData(msg.Data, &errResp); err != nil {
			return fmt.Errorf("undecodable error response: %w", err)
		}
		return &errResp
	default:
		return fmt.Errorf("expected RESULT message, got %s", msg.Type)
	}
}

// ParseData parses a message payload into a specific type.
func ParseData(data json.RawMessage, target interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("message has no payload")
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	return nil
}
