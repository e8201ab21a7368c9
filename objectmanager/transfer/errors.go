// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

// Package transfer defines the error taxonomy shared by the push, pull and
// free-objects paths and its mapping onto rpc status codes.
package transfer

import (
	"context"
	"errors"

	"github.com/zeebo/errs"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrUnreachable is used when a peer cannot be contacted.
	ErrUnreachable = errs.Class("unreachable")
	// ErrNotHeld is used when a peer does not have the requested object.
	ErrNotHeld = errs.Class("not held")
	// ErrCorrupt is used when assembled bytes do not match their object id.
	ErrCorrupt = errs.Class("corrupt")
	// ErrDuplicate is used when the object or the session is already complete.
	// It is a success for the caller.
	ErrDuplicate = errs.Class("duplicate")
	// ErrTimeout is used when a session makes no progress within its bound.
	// Timeouts always also carry ErrUnreachable.
	ErrTimeout = errs.Class("timeout")
	// ErrRejected is used when a peer refuses a request, e.g. because it is
	// evicting the object.
	ErrRejected = errs.Class("rejected")
	// ErrInvalid is used for malformed requests.
	ErrInvalid = errs.Class("invalid")
)

// Timeout returns a timeout error that is also unreachable.
func Timeout(format string, args ...interface{}) error {
	return ErrUnreachable.Wrap(ErrTimeout.New(format, args...))
}

// IsSuccess returns whether err should be treated as a successful transfer.
func IsSuccess(err error) bool {
	return err == nil || ErrDuplicate.Has(err)
}

// Retryable returns whether the operation may succeed when retried against
// the same peer.
func Retryable(err error) bool {
	return ErrUnreachable.Has(err) && !errs.Is(err, context.Canceled)
}

// FromRPC translates an rpc failure into the taxonomy.
func FromRPC(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout("%v", err)
	}

	st, ok := status.FromError(err)
	if !ok {
		return ErrUnreachable.Wrap(err)
	}

	switch st.Code() {
	case codes.NotFound:
		return ErrNotHeld.New("%s", st.Message())
	case codes.AlreadyExists:
		return ErrDuplicate.New("%s", st.Message())
	case codes.DataLoss:
		return ErrCorrupt.New("%s", st.Message())
	case codes.FailedPrecondition:
		return ErrRejected.New("%s", st.Message())
	case codes.InvalidArgument:
		return ErrInvalid.New("%s", st.Message())
	case codes.DeadlineExceeded:
		return Timeout("%s", st.Message())
	case codes.Canceled:
		return ErrUnreachable.Wrap(context.Canceled)
	default:
		return ErrUnreachable.New("%s: %s", st.Code(), st.Message())
	}
}

// ToRPC translates an error into an rpc status error.
func ToRPC(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var code codes.Code
	switch {
	case ErrNotHeld.Has(err):
		code = codes.NotFound
	case ErrDuplicate.Has(err):
		code = codes.AlreadyExists
	case ErrCorrupt.Has(err):
		code = codes.DataLoss
	case ErrRejected.Has(err):
		code = codes.FailedPrecondition
	case ErrInvalid.Has(err):
		code = codes.InvalidArgument
	case ErrTimeout.Has(err), errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case ErrUnreachable.Has(err):
		code = codes.Unavailable
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
