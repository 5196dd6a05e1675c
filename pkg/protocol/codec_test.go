package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEncoder(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "encode handshake request",
			msgType: MessageTypeHandshake,
			data: &HandshakeRequest{
				ProtocolVersion: Version,
				EngineName:      "enact",
				EngineVersion:   "0.3.0",
			},
			wantErr: false,
		},
		{
			name:    "encode describe request",
			msgType: MessageTypeDescribe,
			data:    nil,
			wantErr: false,
		},
		{
			name:    "encode apply request",
			msgType: MessageTypeApply,
			data: &ApplyRequest{
				ID:             "step-1",
				Kind:           "package",
				Target:         "curl",
				Parameters:     json.RawMessage(`{"state":"present"}`),
				TimeoutSeconds: 30,
			},
			wantErr: false,
		},
		{
			name:    "encode result",
			msgType: MessageTypeResult,
			data: &ApplyResponse{
				ID:      "step-1",
				Status:  ApplyStatusApplied,
				Changed: true,
			},
			wantErr: false,
		},
		{
			name:    "invalid message type",
			msgType: MessageType("BOGUS"),
			data:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			enc := NewEncoder(&buf)

			err := enc.Encode(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("Encode() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				line := strings.TrimSpace(buf.String())
				var msg Message
				if err := json.Unmarshal([]byte(line), &msg); err != nil {
					t.Errorf("Output is not valid JSON: %v", err)
				}
				if msg.Type != tt.msgType {
					t.Errorf("Message type = %v, want %v", msg.Type, tt.msgType)
				}
			}
		})
	}
}

func TestDecoder(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		msgType MessageType
	}{
		{
			name:    "decode handshake request",
			input:   `{"type":"HANDSHAKE","timestamp":"2026-01-01T00:00:00Z","data":{"protocol_version":"1.0","engine_name":"enact"}}`,
			wantErr: false,
			msgType: MessageTypeHandshake,
		},
		{
			name:    "decode apply request",
			input:   `{"type":"APPLY","timestamp":"2026-01-01T00:00:00Z","data":{"id":"s1","kind":"package","target":"curl","parameters":{"state":"present"},"timeout_seconds":30}}`,
			wantErr: false,
			msgType: MessageTypeApply,
		},
		{
			name:    "decode result",
			input:   `{"type":"RESULT","timestamp":"2026-01-01T00:00:00Z","data":{"id":"s1","status":"applied","changed":false}}`,
			wantErr: false,
			msgType: MessageTypeResult,
		},
		{
			name:    "unknown message type",
			input:   `{"type":"PING","timestamp":"2026-01-01T00:00:00Z"}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			input:   `{broken`,
			wantErr: true,
		},
		{
			name:    "empty line",
			input:   ``,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := NewDecoder(strings.NewReader(tt.input + "\n"))
			msg, err := dec.Decode()

			if (err != nil) != tt.wantErr {
				t.Errorf("Decode() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if msg.Type != tt.msgType {
					t.Errorf("Message type = %v, want %v", msg.Type, tt.msgType)
				}
			}
		})
	}
}

func TestDecodeResult(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.EncodeResult(&HandshakeResponse{
		ProtocolVersion: "1.3",
		BackendName:     "apk",
		BackendVersion:  "0.9.1",
	}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	dec := NewDecoder(&buf)
	var resp HandshakeResponse
	if err := dec.DecodeResult(&resp); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if resp.BackendName != "apk" || resp.ProtocolVersion != "1.3" {
		t.Errorf("Round trip lost fields: %+v", resp)
	}
}

func TestDecodeResult_ErrorMessage(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.EncodeError("UNSUPPORTED", "no such request"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	dec := NewDecoder(&buf)
	var resp DescribeResponse
	err := dec.DecodeResult(&resp)
	var errResp *ErrorResponse
	if !errors.As(err, &errResp) {
		t.Fatalf("Expected *ErrorResponse, got: %v", err)
	}
	if errResp.Code != "UNSUPPORTED" {
		t.Errorf("Expected code UNSUPPORTED, got %q", errResp.Code)
	}
}

func TestDecodeResult_WrongType(t *testing.T) {
	input := `{"type":"APPLY","timestamp":"2026-01-01T00:00:00Z","data":{}}`
	dec := NewDecoder(strings.NewReader(input + "\n"))
	var resp DescribeResponse
	if err := dec.DecodeResult(&resp); err == nil {
		t.Error("Expected an error for a non-RESULT message")
	}
}
