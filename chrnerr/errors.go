// Package chrnerr defines the error taxonomy shared by every storage layer:
// codec, wal, segment, registry, index, engine, and query. Each layer wraps
// failures in an *Error carrying a Kind so callers can branch on category
// with errors.Is / Is instead of parsing messages.
package chrnerr

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure. The set is closed and mirrors the taxonomy
// every layer in this module is expected to map its failures onto.
type Kind string

const (
	KindIO              Kind = "io"
	KindSerialization   Kind = "serialization"
	KindCompression     Kind = "compression"
	KindCorruption      Kind = "corruption"
	KindMetricNotFound  Kind = "metric_not_found"
	KindInvalidTimeRange Kind = "invalid_time_range"
	KindInvalidSegment  Kind = "invalid_segment"
	KindWAL             Kind = "wal"
	KindLock            Kind = "lock"
	KindConfig          Kind = "config"
)

// Error is a structured, wrapped error. Op names the failing operation
// (e.g. "segment.Open", "wal.Append") for log correlation; Err is the
// underlying cause, possibly nil for a pure sentinel condition.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, chrnerr.Sentinel(chrnerr.KindCorruption)) match
// any *Error of that Kind. A bare Kind is not an error value; wrap it with
// Sentinel to use it as an errors.Is target.
func (e *Error) Is(target error) bool {
	var k kindSentinel
	if errors.As(target, &k) {
		return e.Kind == Kind(k)
	}
	return false
}

type kindSentinel Kind

func (k kindSentinel) Error() string { return string(k) }

// Sentinel returns an error value usable as an errors.Is target for a Kind,
// e.g. errors.Is(err, chrnerr.Sentinel(chrnerr.KindCorruption)).
func Sentinel(k Kind) error { return kindSentinel(k) }

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, otherwise reports false.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is, or wraps, an *Error of the given Kind.
func Is(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}
