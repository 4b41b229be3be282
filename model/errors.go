package model

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrValidation ErrorCode = "VALIDATION"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrSigning    ErrorCode = "SIGNING"
	ErrKeyGen     ErrorCode = "KEYGEN"
	ErrInternal   ErrorCode = "INTERNAL"
)

// CodedError is a stable error with a machine-readable code and a human message.
//
// Codes are intended to remain stable across versions; callers should branch
// on Code rather than matching error strings.
type CodedError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

func Errorf(code ErrorCode, format string, args ...any) *CodedError {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func WrapError(code ErrorCode, message string, cause error) *CodedError {
	return &CodedError{Code: code, Message: message, Cause: cause}
}

// IsCode reports whether err is (or wraps) a *CodedError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *CodedError
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// CodeOf returns the stable code for a coded error, or ErrInternal if unknown.
func CodeOf(err error) ErrorCode {
	var e *CodedError
	if !errors.As(err, &e) {
		return ErrInternal
	}
	return e.Code
}
