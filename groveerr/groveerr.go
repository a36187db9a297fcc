// Package groveerr defines GroveDB's closed error taxonomy (spec §7).
// Every fallible operation that fails returns an *Error so callers can
// switch on Code instead of string-matching, while %w-wrapping is kept
// throughout in the teacher's idiom (see kvstore/badger, metadata/sqlite
// in the retrieval pack) so the underlying cause is never discarded.
package groveerr

import "fmt"

// Code enumerates the error kinds from spec §7.
type Code int

const (
	_ Code = iota
	PathNotFound
	KeyNotFound
	InvalidPath
	InvalidElementType
	InvalidBatchOperation
	CyclicReference
	HopLimitExceeded
	InvalidProof
	NotSupported
	InvalidPayloadSize
	CapacityExceeded
	StorageError
	CorruptedStorage
)

func (c Code) String() string {
	switch c {
	case PathNotFound:
		return "PathNotFound"
	case KeyNotFound:
		return "KeyNotFound"
	case InvalidPath:
		return "InvalidPath"
	case InvalidElementType:
		return "InvalidElementType"
	case InvalidBatchOperation:
		return "InvalidBatchOperation"
	case CyclicReference:
		return "CyclicReference"
	case HopLimitExceeded:
		return "HopLimitExceeded"
	case InvalidProof:
		return "InvalidProof"
	case NotSupported:
		return "NotSupported"
	case InvalidPayloadSize:
		return "InvalidPayloadSize"
	case CapacityExceeded:
		return "CapacityExceeded"
	case StorageError:
		return "StorageError"
	case CorruptedStorage:
		return "CorruptedStorage"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by GroveDB operations. Op
// names the failing operation (e.g. "merk.Insert", "grove.Get") for
// diagnostics; Err is the wrapped cause, nil for errors raised directly
// from a Code (e.g. KeyNotFound has no underlying cause).
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error with no wrapped cause.
func New(op string, code Code) *Error {
	return &Error{Code: code, Op: op}
}

// Wrap constructs an *Error wrapping err under the given op and code.
// Returns nil if err is nil, so callers can write
// `return groveerr.Wrap("op", Code, err)` unconditionally.
func Wrap(op string, code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Err: err}
}

// Is reports whether err is a *Error with the given code, unwrapping
// through intermediate wrappers.
func Is(err error, code Code) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
