// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

// Package freeobjects evicts objects locally and broadcasts the eviction to
// the rest of the cluster.
package freeobjects

import (
	"context"
	"sync"
	"time"

	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/common/sync2"
	"storj.io/objectmanager/objectmanager/directory"
	"storj.io/objectmanager/objectmanager/nodes"
	"storj.io/objectmanager/objectmanager/objects"
	"storj.io/objectmanager/objectmanager/transfer"
	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/pkg/pb"
)

var (
	// Error is the error class for the free objects service.
	Error = errs.Class("freeobjects")

	mon = monkit.Package()
)

// Config contains the options for freeing objects.
type Config struct {
	BatchSize      int           `help:"maximum number of object ids in one free request" default:"100"`
	FlushInterval  time.Duration `help:"how often queued evictions are broadcast and failed broadcasts are retried" default:"1s"`
	MaxRetries     int           `help:"how many times a failed broadcast to a node is retried" default:"3"`
	Timeout        time.Duration `help:"timeout of a single free request" default:"10s"`
	MaxConcurrency int           `help:"maximum number of nodes contacted at once" default:"8"`
}

// Discarder forgets the transfer state kept for an object.
type Discarder interface {
	Discard(id ids.ObjectID)
}

// Discarders discards through every element.
type Discarders []Discarder

// Discard implements Discarder.
func (discarders Discarders) Discard(id ids.ObjectID) {
	for _, discarder := range discarders {
		discarder.Discard(id)
	}
}

// pending is a broadcast to a node that has to be retried.
type pending struct {
	objects  []ids.ObjectID
	attempts int
}

// Service frees objects.
//
// architecture: Chore
type Service struct {
	log       *zap.Logger
	self      ids.NodeID
	store     *objects.Store
	directory *directory.Directory
	discarder Discarder
	resolver  nodes.Resolver
	peers     transfer.Peers
	config    Config

	Loop *sync2.Cycle

	mu      sync.Mutex
	queue   []ids.ObjectID
	pending map[ids.NodeID][]*pending
}

// NewService creates a new free objects service.
func NewService(log *zap.Logger, self ids.NodeID, store *objects.Store, directory *directory.Directory, discarder Discarder, resolver nodes.Resolver, peers transfer.Peers, config Config) *Service {
	return &Service{
		log:       log,
		self:      self,
		store:     store,
		directory: directory,
		discarder: discarder,
		resolver:  resolver,
		peers:     peers,
		config:    config,
		Loop:      sync2.NewCycle(config.FlushInterval),
		pending:   map[ids.NodeID][]*pending{},
	}
}

// Run broadcasts queued evictions and retries failed ones on every cycle.
func (service *Service) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return service.Loop.Run(ctx, func(ctx context.Context) error {
		service.flush(ctx)
		return nil
	})
}

// Free evicts the objects locally and asks every other node to do the same.
//
// Only local eviction failures are returned. Broadcasts that fail are
// retried by the service loop.
func (service *Service) Free(ctx context.Context, objectIDs []ids.ObjectID) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := service.EvictLocal(ctx, objectIDs); err != nil {
		return err
	}
	service.broadcast(ctx, objectIDs)
	return nil
}

// Queue schedules objects to be freed on the next cycle.
func (service *Service) Queue(objectIDs ...ids.ObjectID) {
	service.mu.Lock()
	defer service.mu.Unlock()
	service.queue = append(service.queue, objectIDs...)
}

// EvictLocal removes the objects from this node only.
//
// The objects are tombstoned before they are deleted, partial inbound
// copies are dropped and every holder is forgotten.
func (service *Service) EvictLocal(ctx context.Context, objectIDs []ids.ObjectID) (err error) {
	defer mon.Task()(&ctx)(&err)

	var group errs.Group
	for _, id := range objectIDs {
		group.Add(service.store.Evict(ctx, id))
		service.discarder.Discard(id)
	}
	service.directory.RemoveObjects(objectIDs...)
	mon.Meter("objects_evicted").Mark(len(objectIDs)) //mon:locked
	return Error.Wrap(group.Err())
}

func (service *Service) flush(ctx context.Context) {
	service.mu.Lock()
	queue := service.queue
	service.queue = nil
	retries := service.pending
	service.pending = map[ids.NodeID][]*pending{}
	service.mu.Unlock()

	if len(queue) > 0 {
		if err := service.Free(ctx, queue); err != nil {
			service.log.Error("freeing queued objects failed", zap.Int("count", len(queue)), zap.Error(err))
		}
	}

	for node, batches := range retries {
		for _, batch := range batches {
			batch.attempts++
			if err := service.send(ctx, node, batch.objects); err != nil {
				service.retry(node, batch, err)
			}
		}
	}
}

// broadcast sends the objects to every other node in batches.
func (service *Service) broadcast(ctx context.Context, objectIDs []ids.ObjectID) {
	members, err := service.resolver.List(ctx)
	if err != nil {
		service.log.Error("listing nodes failed", zap.Error(err))
		return
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(service.config.MaxConcurrency)

	for _, member := range members {
		if member.ID == service.self {
			continue
		}
		node := member.ID
		for _, batch := range batches(objectIDs, service.config.BatchSize) {
			batch := batch
			group.Go(func() error {
				if err := service.send(gctx, node, batch); err != nil {
					service.retry(node, &pending{objects: batch}, err)
				}
				return nil
			})
		}
	}
	_ = group.Wait()
}

func (service *Service) send(ctx context.Context, node ids.NodeID, objectIDs []ids.ObjectID) (err error) {
	defer mon.Task()(&ctx)(&err)

	ctx, cancel := context.WithTimeout(ctx, service.config.Timeout)
	defer cancel()

	req := &pb.FreeObjectsRequest{ObjectIds: make([][]byte, 0, len(objectIDs))}
	for _, id := range objectIDs {
		req.ObjectIds = append(req.ObjectIds, id.Bytes())
	}
	return service.peers.FreeObjects(ctx, node, req)
}

func (service *Service) retry(node ids.NodeID, batch *pending, err error) {
	if batch.attempts >= service.config.MaxRetries {
		mon.Meter("free_dropped").Mark(1) //mon:locked
		service.log.Warn("dropping free request",
			zap.Stringer("Node ID", node),
			zap.Int("objects", len(batch.objects)),
			zap.Int("attempts", batch.attempts),
			zap.Error(err))
		return
	}

	service.log.Debug("free request failed, will retry",
		zap.Stringer("Node ID", node),
		zap.Int("objects", len(batch.objects)),
		zap.Error(err))

	service.mu.Lock()
	defer service.mu.Unlock()
	service.pending[node] = append(service.pending[node], batch)
}

// Pending returns the number of broadcasts waiting to be retried.
func (service *Service) Pending() int {
	service.mu.Lock()
	defer service.mu.Unlock()

	count := 0
	for _, batches := range service.pending {
		count += len(batches)
	}
	return count
}

// Close stops the service loop.
func (service *Service) Close() error {
	service.Loop.Close()
	return nil
}

func batches(objectIDs []ids.ObjectID, size int) [][]ids.ObjectID {
	if size <= 0 {
		size = len(objectIDs)
	}
	var result [][]ids.ObjectID
	for len(objectIDs) > size {
		result = append(result, objectIDs[:size:size])
		objectIDs = objectIDs[size:]
	}
	if len(objectIDs) > 0 {
		result = append(result, objectIDs)
	}
	return result
}
