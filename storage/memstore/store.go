// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

// Package memstore implements an in-memory object store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/storage"
)

// Store implements storage.ObjectStore in memory.
type Store struct {
	mu      sync.RWMutex
	objects map[ids.ObjectID]storage.Object

	callMu    sync.Mutex
	callCount CallCount
}

// CallCount counts the calls made to the store.
type CallCount struct {
	Put    int
	Get    int
	Has    int
	Delete int
	List   int
	Close  int
}

var _ storage.ObjectStore = (*Store)(nil)

// New creates a new in-memory object store.
func New() *Store {
	return &Store{objects: map[ids.ObjectID]storage.Object{}}
}

func (store *Store) count(fn func(*CallCount)) {
	store.callMu.Lock()
	fn(&store.callCount)
	store.callMu.Unlock()
}

// CallCount returns how many times each method was called.
func (store *Store) CallCount() CallCount {
	store.callMu.Lock()
	defer store.callMu.Unlock()
	return store.callCount
}

// Put stores a copy of object.
func (store *Store) Put(ctx context.Context, object storage.Object) error {
	store.count(func(c *CallCount) { c.Put++ })

	store.mu.Lock()
	defer store.mu.Unlock()

	if _, ok := store.objects[object.ID]; ok {
		return storage.ErrAlreadyExists.New("%s", object.ID)
	}
	store.objects[object.ID] = object.Clone()
	return nil
}

// Get returns a copy of the object.
func (store *Store) Get(ctx context.Context, id ids.ObjectID) (storage.Object, error) {
	store.count(func(c *CallCount) { c.Get++ })

	store.mu.RLock()
	defer store.mu.RUnlock()

	object, ok := store.objects[id]
	if !ok {
		return storage.Object{}, storage.ErrNotFound.New("%s", id)
	}
	return object.Clone(), nil
}

// Has returns whether the object is stored.
func (store *Store) Has(ctx context.Context, id ids.ObjectID) (bool, error) {
	store.count(func(c *CallCount) { c.Has++ })

	store.mu.RLock()
	defer store.mu.RUnlock()

	_, ok := store.objects[id]
	return ok, nil
}

// Delete removes the object.
func (store *Store) Delete(ctx context.Context, id ids.ObjectID) error {
	store.count(func(c *CallCount) { c.Delete++ })

	store.mu.Lock()
	defer store.mu.Unlock()

	delete(store.objects, id)
	return nil
}

// List returns the stored ids in sorted order.
func (store *Store) List(ctx context.Context) ([]ids.ObjectID, error) {
	store.count(func(c *CallCount) { c.List++ })

	store.mu.RLock()
	list := make([]ids.ObjectID, 0, len(store.objects))
	for id := range store.objects {
		list = append(list, id)
	}
	store.mu.RUnlock()

	sort.Slice(list, func(i, k int) bool { return list[i].Less(list[k]) })
	return list, nil
}

// Close implements storage.ObjectStore.
func (store *Store) Close() error {
	store.count(func(c *CallCount) { c.Close++ })
	return nil
}
