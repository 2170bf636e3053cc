// Package status defines the closed set of error codes yokan returns on the
// wire and the Status/error glue that lets handlers return plain Go errors
// while still round-tripping a stable numeric code to the client.
package status

import (
	"errors"
	"fmt"
)

// Code is a signed 32-bit wire error code. Ok is zero; all others are
// negative, so that a non-negative return from a size-returning op is
// always a byte count, never an error.
type Code int32

const (
	Ok Code = 0

	ErrInvalidArgs Code = -(iota + 1)
	ErrInvalidMode
	ErrInvalidProvider
	ErrInvalidDatabase
	ErrInvalidToken
	ErrInvalidConfig
	ErrInvalidBackend
	ErrInvalidFilter
	ErrAllocation
	ErrBufferSize
	ErrKeyNotFound
	ErrKeyExists
	ErrFromTransport
	ErrFromMigration
	ErrOpUnsupported
	ErrOther
)

var names = map[Code]string{
	Ok:                  "Ok",
	ErrInvalidArgs:      "ErrInvalidArgs",
	ErrInvalidMode:      "ErrInvalidMode",
	ErrInvalidProvider:  "ErrInvalidProvider",
	ErrInvalidDatabase:  "ErrInvalidDatabase",
	ErrInvalidToken:     "ErrInvalidToken",
	ErrInvalidConfig:    "ErrInvalidConfig",
	ErrInvalidBackend:   "ErrInvalidBackend",
	ErrInvalidFilter:    "ErrInvalidFilter",
	ErrAllocation:       "ErrAllocation",
	ErrBufferSize:       "ErrBufferSize",
	ErrKeyNotFound:      "ErrKeyNotFound",
	ErrKeyExists:        "ErrKeyExists",
	ErrFromTransport:    "ErrFromTransport",
	ErrFromMigration:    "ErrFromMigration",
	ErrOpUnsupported:    "ErrOpUnsupported",
	ErrOther:            "ErrOther",
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d)", int32(c))
}

// Status is the wire-visible outcome of an RPC: a code plus an optional
// human-readable message. A zero-value Status is Ok.
type Status struct {
	Code    Code
	Message string
}

// OK is the canonical success status.
var OK = Status{Code: Ok}

func New(code Code, format string, args ...any) Status {
	return Status{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (s Status) IsOK() bool { return s.Code == Ok }

func (s Status) Error() string {
	if s.Message == "" {
		return s.Code.String()
	}
	return fmt.Sprintf("%s: %s", s.Code, s.Message)
}

// FromError maps a Go error back to a Status. If err already wraps a
// Status (via errors.As) that Status is returned unchanged; otherwise the
// error is reported as ErrOther with its message preserved.
func FromError(err error) Status {
	if err == nil {
		return OK
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return New(ErrOther, "%s", err.Error())
}

// Err returns nil for OK, and the Status itself (as an error) otherwise,
// so call sites can keep using idiomatic `if err := …; err != nil`.
func (s Status) Err() error {
	if s.IsOK() {
		return nil
	}
	return s
}
