// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package objects

import (
	"sync"

	"storj.io/objectmanager/pkg/ids"
)

// keyLock is a mutex per object id. Entries are removed once unused.
type keyLock struct {
	mu    sync.Mutex
	locks map[ids.ObjectID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: map[ids.ObjectID]*lockEntry{}}
}

// Lock locks id and returns the function that unlocks it.
func (kl *keyLock) Lock(id ids.ObjectID) (unlock func()) {
	kl.mu.Lock()
	entry, ok := kl.locks[id]
	if !ok {
		entry = &lockEntry{}
		kl.locks[id] = entry
	}
	entry.refs++
	kl.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		kl.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(kl.locks, id)
		}
		kl.mu.Unlock()
	}
}
