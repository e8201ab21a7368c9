// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package transfer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"storj.io/objectmanager/objectmanager/transfer"
)

func TestRoundTripThroughRPC(t *testing.T) {
	for _, tt := range []struct {
		err   error
		code  codes.Code
		class interface{ Has(error) bool }
	}{
		{transfer.ErrNotHeld.New("x"), codes.NotFound, &transfer.ErrNotHeld},
		{transfer.ErrDuplicate.New("x"), codes.AlreadyExists, &transfer.ErrDuplicate},
		{transfer.ErrCorrupt.New("x"), codes.DataLoss, &transfer.ErrCorrupt},
		{transfer.ErrRejected.New("x"), codes.FailedPrecondition, &transfer.ErrRejected},
		{transfer.ErrInvalid.New("x"), codes.InvalidArgument, &transfer.ErrInvalid},
		{transfer.Timeout("x"), codes.DeadlineExceeded, &transfer.ErrTimeout},
		{transfer.ErrUnreachable.New("x"), codes.Unavailable, &transfer.ErrUnreachable},
	} {
		rpcErr := transfer.ToRPC(tt.err)
		require.Equal(t, tt.code, status.Code(rpcErr))

		back := transfer.FromRPC(rpcErr)
		require.True(t, tt.class.Has(back), "%v", back)
	}
}

func TestTimeoutIsUnreachable(t *testing.T) {
	err := transfer.FromRPC(status.Error(codes.DeadlineExceeded, "slow"))
	require.True(t, transfer.ErrTimeout.Has(err))
	require.True(t, transfer.ErrUnreachable.Has(err))
	require.True(t, transfer.Retryable(err))

	err = transfer.FromRPC(context.DeadlineExceeded)
	require.True(t, transfer.ErrTimeout.Has(err))
}

func TestFromRPCUnknownError(t *testing.T) {
	err := transfer.FromRPC(errors.New("connection refused"))
	require.True(t, transfer.ErrUnreachable.Has(err))
	require.True(t, transfer.Retryable(err))

	require.Nil(t, transfer.FromRPC(nil))
	require.Equal(t, codes.Internal, status.Code(transfer.ToRPC(errors.New("boom"))))
}

func TestIsSuccess(t *testing.T) {
	require.True(t, transfer.IsSuccess(nil))
	require.True(t, transfer.IsSuccess(transfer.ErrDuplicate.New("already stored")))
	require.False(t, transfer.IsSuccess(transfer.ErrNotHeld.New("gone")))
}
