// Package txerrors defines the error taxonomy shared by the node gateway, the offline signer and
// the hex codec. Callers classify failures with errors.As.
package txerrors

import (
	"encoding/json"
	"fmt"
)

// RpcError is returned when the node answered with a JSON-RPC error object.
type RpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RpcError) Error() string {
	data := "null"
	if len(e.Data) > 0 {
		data = string(e.Data)
	}
	return fmt.Sprintf("%d %s: %s", e.Code, e.Message, data)
}

// IOError is a transport level failure (connection refused, bad endpoint, unexpected status).
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("io error: %s", e.Op)
	}
	return fmt.Sprintf("io error: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// DecodeError means a payload, metadata blob or JSON body could not be parsed.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decode error: %s", e.What)
	}
	return fmt.Sprintf("decode error: %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// SigningError means the keypair is unusable or the signing primitive rejected the input.
type SigningError struct {
	Reason string
	Err    error
}

func (e *SigningError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("signing error: %s", e.Reason)
	}
	return fmt.Sprintf("signing error: %s: %v", e.Reason, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// FormatError is returned by the hex codec for odd-length input or non-hex characters.
type FormatError struct {
	Input  string
	Offset int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("format error: %s at offset %d", e.Reason, e.Offset)
	}
	return fmt.Sprintf("format error: %s", e.Reason)
}

// NewIOError wraps a transport failure during op.
func NewIOError(op string, err error) error {
	return &IOError{Op: op, Err: err}
}

// NewDecodeError wraps a failure to parse what.
func NewDecodeError(what string, err error) error {
	return &DecodeError{What: what, Err: err}
}

// NewDecodeErrorf is a DecodeError without a cause.
func NewDecodeErrorf(format string, args ...interface{}) error {
	return &DecodeError{What: fmt.Sprintf(format, args...)}
}

// NewSigningError wraps a keypair or signing primitive failure. err may be nil.
func NewSigningError(reason string, err error) error {
	return &SigningError{Reason: reason, Err: err}
}
