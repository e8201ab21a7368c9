// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

package memstore_test

import (
	"testing"

	"storj.io/objectmanager/storage/memstore"
	"storj.io/objectmanager/storage/testsuite"
)

func TestSuite(t *testing.T) {
	store := memstore.New()
	testsuite.RunTests(t, store)
}
