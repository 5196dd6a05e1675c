package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Error codes backends use in ERROR responses.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeIncompatible = "INCOMPATIBLE"
	CodeUnsupported  = "UNSUPPORTED"
	CodeInternal     = "INTERNAL"
)

// Handler answers the three protocol requests on behalf of a backend.
// Serve decodes and validates requests before handing them over, so
// implementations see well-formed payloads only. An error returned as
// *ErrorResponse is sent to the engine with its code; any other error is
// reported as CodeInternal.
type Handler interface {
	Handshake(req *HandshakeRequest) (*HandshakeResponse, error)
	Describe() (*DescribeResponse, error)

	// Apply makes one intent true. ctx carries the request's timeout;
	// an apply that cannot finish in time should return a failed
	// response rather than block past it.
	Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error)
}

// Serve answers protocol requests from r with h's responses until the
// peer closes the stream. Malformed payloads and incompatible handshakes
// are answered with ERROR messages without involving the handler; a
// frame-level decode failure is answered and then returned, since the
// stream can no longer be trusted.
func Serve(ctx context.Context, r io.Reader, w io.Writer, h Handler) error {
	enc := NewEncoder(w)
	dec := NewDecoder(r)

	for {
		msg, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			_ = enc.EncodeError(CodeBadRequest, err.Error())
			return err
		}

		if err := serveOne(ctx, enc, msg, h); err != nil {
			return err
		}
	}
}

func serveOne(ctx context.Context, enc *Encoder, msg *Message, h Handler) error {
	switch msg.Type {
	case MessageTypeHandshake:
		var req HandshakeRequest
		if err := ParseData(msg.Data, &req); err != nil {
			return enc.EncodeError(CodeBadRequest, "undecodable handshake: "+err.Error())
		}
		if !CompatibleVersions(Version, req.ProtocolVersion) {
			return enc.EncodeError(CodeIncompatible, fmt.Sprintf(
				"engine speaks protocol %s, this backend speaks %s", req.ProtocolVersion, Version))
		}
		resp, err := h.Handshake(&req)
		return respond(enc, resp, err)

	case MessageTypeDescribe:
		resp, err := h.Describe()
		return respond(enc, resp, err)

	case MessageTypeApply:
		var req ApplyRequest
		if err := ParseData(msg.Data, &req); err != nil {
			return enc.EncodeError(CodeBadRequest, "undecodable apply: "+err.Error())
		}
		if err := req.Validate(); err != nil {
			return enc.EncodeError(CodeBadRequest, err.Error())
		}
		applyCtx, cancel := context.WithTimeout(ctx, time.Duration(req.TimeoutSeconds)*time.Second)
		defer cancel()
		resp, err := h.Apply(applyCtx, &req)
		return respond(enc, resp, err)

	default:
		return enc.EncodeError(CodeUnsupported, fmt.Sprintf("unsupported request type: %s", msg.Type))
	}
}

func respond(enc *Encoder, payload interface{}, err error) error {
	if err != nil {
		var resp *ErrorResponse
		if errors.As(err, &resp) {
			return enc.EncodeError(resp.Code, resp.Message)
		}
		return enc.EncodeError(CodeInternal, err.Error())
	}
	return enc.EncodeResult(payload)
}
