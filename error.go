// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package paychan

import (
	"errors"
	"fmt"
)

var (
	ErrUnsignedMessage         = errors.New("no signature to recover address from")
	ErrAlreadySigned           = errors.New("message already signed")
	ErrInvalidSignature        = errors.New("invalid signature")
	ErrSignerMismatch          = errors.New("unexpected signer")
	ErrUnrecognizedMessageType = errors.New("unrecognized message type")
	ErrMalformedMessage        = errors.New("malformed message")
)

// Error codes carried by *Error
const (
	CodeUnrecognizedMessage int32 = iota + 1
	CodeMalformedMessage
	CodeInvalidSignature
)

// Error represents a coded protocol error reported to a counterparty
type Error struct {
	Code    int32
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("paychan error %d: %s", e.Code, e.Message)
}

// ToError maps a decode or verification failure onto its coded form.
// Errors outside the protocol set yield nil.
func ToError(err error) *Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnrecognizedMessageType):
		return &Error{Code: CodeUnrecognizedMessage, Message: err.Error()}
	case errors.Is(err, ErrMalformedMessage):
		return &Error{Code: CodeMalformedMessage, Message: err.Error()}
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrSignerMismatch), errors.Is(err, ErrUnsignedMessage):
		return &Error{Code: CodeInvalidSignature, Message: err.Error()}
	default:
		return nil
	}
}
