// Package cmn provides the common value types and configuration shared by
// every core package: Bucket, Key, error Kind, and the flat-KV config
// loader.
/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the exit-code-like taxonomy every core operation returns
// (spec §6, §7). These are categories, not Go error types: callers
// switch on Kind, not on the concrete error.
type Kind int

const (
	Ok Kind = iota
	TODO
	Exists
	NotFound
	Waiting
	Recheck
	IOError
	InvalidArg
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "Ok"
	case TODO:
		return "TODO"
	case Exists:
		return "Exists"
	case NotFound:
		return "NotFound"
	case Waiting:
		return "Waiting"
	case Recheck:
		return "Recheck"
	case IOError:
		return "IOError"
	case InvalidArg:
		return "InvalidArg"
	default:
		return "Unknown"
	}
}

// Err pairs a Kind with an optional wrapped cause. Backend errors are
// wrapped with github.com/pkg/errors so the original cause (file-not-
// exist, S3 NoSuchKey, gocql ErrNotFound, buntdb ErrNotFound, ...)
// survives for logging while the caller-visible Kind stays one of the
// eight values above.
type Err struct {
	Kind  Kind
	Msg   string
	cause error
}

func NewErr(kind Kind, format string, args ...interface{}) *Err {
	return &Err{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func WrapErr(kind Kind, cause error, format string, args ...interface{}) *Err {
	return &Err{Kind: kind, Msg: fmt.Sprintf(format, args...), cause: errors.WithStack(cause)}
}

func (e *Err) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Err) Unwrap() error { return e.cause }

func (e *Err) Cause() error {
	if e.cause == nil {
		return e
	}
	return errors.Cause(e.cause)
}

// KindOf extracts the Kind from an error returned by this module,
// defaulting to IOError for anything foreign (e.g. a raw backend error
// that escaped wrapping).
func KindOf(err error) Kind {
	if err == nil {
		return Ok
	}
	var e *Err
	if errors.As(err, &e) {
		return e.Kind
	}
	return IOError
}
