// Package recorderr defines the error taxonomy exposed at the record
// layer's boundary. Every exported operation in this module returns
// either nil, a sentinel from this package (comparable with errors.Is),
// or a *Error wrapping one of these kinds with call-specific context.
package recorderr

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way §7 of the design groups them:
// validation, not-found, invariant, transient, fatal.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindContextAlreadyClosed
	KindIndexNotFound
	KindIndexNotReady
	KindRecordTypeNotFound
	KindInvalidKey
	KindInvalidSerializedData
	KindSerializationFailed
	KindDeserializationFailed
	KindUniquenessViolation
	KindNoValidPlan
	KindInvalidTransition
	KindDuplicateName
	KindNotFound
	KindAlreadyInProgress
	KindNoMigrationPath
	KindUnsupportedExpression
	KindTypeMismatch
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindContextAlreadyClosed:
		return "ContextAlreadyClosed"
	case KindIndexNotFound:
		return "IndexNotFound"
	case KindIndexNotReady:
		return "IndexNotReady"
	case KindRecordTypeNotFound:
		return "RecordTypeNotFound"
	case KindInvalidKey:
		return "InvalidKey"
	case KindInvalidSerializedData:
		return "InvalidSerializedData"
	case KindSerializationFailed:
		return "SerializationFailed"
	case KindDeserializationFailed:
		return "DeserializationFailed"
	case KindUniquenessViolation:
		return "UniquenessViolation"
	case KindNoValidPlan:
		return "NoValidPlan"
	case KindInvalidTransition:
		return "InvalidTransition"
	case KindDuplicateName:
		return "DuplicateName"
	case KindNotFound:
		return "NotFound"
	case KindAlreadyInProgress:
		return "AlreadyInProgress"
	case KindNoMigrationPath:
		return "NoMigrationPath"
	case KindUnsupportedExpression:
		return "UnsupportedExpression"
	case KindTypeMismatch:
		return "TypeMismatch"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is the structured error type carried across the boundary. It
// wraps an underlying cause (possibly nil) and attaches the fields
// callers need to act on the failure without string-matching messages.
type Error struct {
	Kind    Kind
	Message string
	// Field-path context for (de)serialization failures, §7.
	Field string
	// IndexName/PrimaryKey populate UniquenessViolation errors, §7.
	IndexName  string
	PrimaryKey []interface{}
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Field != "" {
		msg += " (field " + e.Field + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, recorderr.KindXxx-sentinel) style checks by
// comparing Kind when the target is also a *Error with no cause set.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapErr(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Sentinels for errors.Is comparisons against a bare kind, mirroring
// the teacher's ethdb.ErrKeyNotFound-style package-level sentinels.
var (
	ErrContextAlreadyClosed   = &Error{Kind: KindContextAlreadyClosed, Message: "transaction context already closed"}
	ErrNotFound               = &Error{Kind: KindNotFound, Message: "not found"}
	ErrIndexNotFound          = &Error{Kind: KindIndexNotFound, Message: "index not found"}
	ErrIndexNotReady          = &Error{Kind: KindIndexNotReady, Message: "index not ready"}
	ErrRecordTypeNotFound     = &Error{Kind: KindRecordTypeNotFound, Message: "record type not found"}
	ErrDuplicateName          = &Error{Kind: KindDuplicateName, Message: "duplicate name"}
	ErrInvalidTransition      = &Error{Kind: KindInvalidTransition, Message: "invalid index state transition"}
	ErrNoValidPlan            = &Error{Kind: KindNoValidPlan, Message: "no valid plan"}
	ErrAlreadyInProgress      = &Error{Kind: KindAlreadyInProgress, Message: "migration already in progress"}
	ErrNoMigrationPath        = &Error{Kind: KindNoMigrationPath, Message: "no migration path to target version"}
	ErrUnsupportedExpression  = &Error{Kind: KindUnsupportedExpression, Message: "unsupported key expression"}
	ErrInvalidKey             = &Error{Kind: KindInvalidKey, Message: "invalid key"}
	ErrTypeMismatch           = &Error{Kind: KindTypeMismatch, Message: "record type does not match this context"}
)

// New constructs a plain *Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return newErr(kind, format, args...)
}

// Wrap constructs a *Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return wrapErr(kind, cause, format, args...)
}

// UniquenessViolation builds the error §7 specifies: it must carry the
// offending index name and the conflicting primary key.
func UniquenessViolation(indexName string, primaryKey []interface{}) *Error {
	return &Error{
		Kind:       KindUniquenessViolation,
		Message:    fmt.Sprintf("duplicate key for unique index %q", indexName),
		IndexName:  indexName,
		PrimaryKey: primaryKey,
	}
}

// Is reports whether err is (or wraps) an error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// Retryable reports whether err belongs to the transient class defined
// in §7 — conflict or too-old-read-version errors surfaced by the KV
// store. The KV store package tags such errors with ErrConflict /
// ErrReadVersionTooOld; this helper is kept here so retry policy and
// error classification live next to each other.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrReadVersionTooOld)
}

// ErrConflict and ErrReadVersionTooOld are the two KV-store-level
// transient conditions named in spec.md §5/§7. The kv package returns
// errors satisfying errors.Is against these sentinels.
var (
	ErrConflict          = errors.New("recordlayer: transaction conflict")
	ErrReadVersionTooOld = errors.New("recordlayer: read version too old")
)
