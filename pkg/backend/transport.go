package backend

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/enactproject/enact/pkg/protocol"
)

// Transport reaches one backend. Implementations start fresh backend
// instances on demand; the registry never shares a session between calls.
type Transport interface {
	// Open starts one protocol session. The backend instance lives until
	// the session is closed or ctx ends, whichever comes first.
	Open(ctx context.Context) (*Session, error)

	// Close releases resources held across sessions, such as a compiled
	// module. Open must not be called afterwards.
	Close(ctx context.Context) error

	// String describes the transport for logs and exclusion reasons.
	String() string
}

// Session is one live conversation with a backend instance: requests go
// down its stdin, responses come back on its stdout, one newline-framed
// JSON message each way per call.
type Session struct {
	enc  *protocol.Encoder
	dec  *protocol.Decoder
	stop func() error
	diag func() string

	once    sync.Once
	stopErr error
}

// NewSession wraps a backend's stdio in a protocol session. stop tears the
// backend instance down; diag, when non-nil, reports failure context the
// transport captured (such as a crashed process's stderr tail).
func NewSession(in io.Writer, out io.Reader, stop func() error, diag func() string) *Session {
	return &Session{
		enc:  protocol.NewEncoder(in),
		dec:  protocol.NewDecoder(out),
		stop: stop,
		diag: diag,
	}
}

// Call sends one request and decodes the backend's RESULT payload into
// target. A protocol-level ERROR response comes back as the error.
func (s *Session) Call(msgType protocol.MessageType, payload, target interface{}) error {
	if err := s.enc.Encode(msgType, payload); err != nil {
		return fmt.Errorf("send %s: %w", msgType, err)
	}
	if err := s.dec.DecodeResult(target); err != nil {
		return fmt.Errorf("%s: %w", msgType, err)
	}
	return nil
}

// Close tears the session down and releases the backend instance. Safe to
// call more than once.
func (s *Session) Close() error {
	s.once.Do(func() {
		if s.stop != nil {
			s.stopErr = s.stop()
		}
	})
	return s.stopErr
}

// Diagnostic returns backend-side failure context captured by the
// transport, empty when there is none.
func (s *Session) Diagnostic() string {
	if s.diag == nil {
		return ""
	}
	return s.diag()
}
