// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package testsuite

import (
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/objectmanager/storage"
)

func testParallel(t *testing.T, store storage.ObjectStore) {
	objects := []storage.Object{
		NewObject(8, 100),
		NewObject(8, 200),
		NewObject(8, 300),
	}
	defer cleanup(t, store, objects...)

	t.Run("group", func(t *testing.T) {
		for i := range objects {
			object := objects[i]
			t.Run(strconv.Itoa(i), func(t *testing.T) {
				t.Parallel()
				ctx := testcontext.New(t)
				defer ctx.Cleanup()

				require.NoError(t, store.Put(ctx, object))

				got, err := store.Get(ctx, object.ID)
				require.NoError(t, err)
				RequireEqualObject(t, object, got)
			})
		}
	})

	t.Run("racing puts", func(t *testing.T) {
		ctx := testcontext.New(t)
		defer ctx.Cleanup()

		object := NewObject(8, 1000)
		defer cleanup(t, store, object)

		var succeeded int64
		for i := 0; i < 8; i++ {
			ctx.Go(func() error {
				err := store.Put(ctx, object)
				switch {
				case err == nil:
					atomic.AddInt64(&succeeded, 1)
				case storage.ErrAlreadyExists.Has(err):
				default:
					return err
				}
				return nil
			})
		}
		ctx.Wait()

		require.EqualValues(t, 1, atomic.LoadInt64(&succeeded))
	})
}
