// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

// Package push sends objects to other nodes in chunks.
package push

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jellydator/ttlcache/v3"
	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"storj.io/common/memory"
	"storj.io/common/sync2"
	"storj.io/objectmanager/objectmanager/objects"
	"storj.io/objectmanager/objectmanager/transfer"
	"storj.io/objectmanager/pkg/chunk"
	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/pkg/pb"
	"storj.io/objectmanager/storage"
)

var (
	// Error is the error class for the push service.
	Error = errs.Class("push")

	mon = monkit.Package()
)

// Config contains the options for pushing objects.
type Config struct {
	ChunkSize           memory.Size   `help:"size of the chunks objects are transferred in, must be the same on every node" default:"5MiB"`
	MaxConcurrentChunks int           `help:"maximum number of chunks of one object in flight" default:"8"`
	MaxRetries          int           `help:"how many times a failed push is retried" default:"5"`
	InitialBackoff      time.Duration `help:"delay before the first retry of a push" default:"100ms"`
	MaxBackoff          time.Duration `help:"maximum delay between retries of a push" default:"5s"`
	RecentWindow        time.Duration `help:"repeated pushes of an object to the same node within this window are skipped" default:"10s"`
	MaxConcurrentPushes int           `help:"maximum number of pushes started by other nodes running at once" default:"16"`
	MaxBytesPerSecond   memory.Size   `help:"limit on outbound chunk bytes per second, 0 means unlimited" default:"0"`
}

type sessionKey struct {
	object      ids.ObjectID
	destination ids.NodeID
}

// session is one outbound push of an object to a destination.
type session struct {
	key     sessionKey
	started time.Time
	done    chan struct{}
	err     error
	cancel  context.CancelFunc
	waiters int // guarded by Service.mu

	mu     sync.Mutex
	pushID ids.PushID
	acked  []bool
	count  int
	tries  int
}

func (s *session) ack(index uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acked[index] {
		s.acked[index] = true
		s.count++
	}
}

// missing returns the chunks that were not acknowledged yet.
func (s *session) missing() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []uint32
	for i, ok := range s.acked {
		if !ok {
			missing = append(missing, uint32(i))
		}
	}
	return missing
}

// Service pushes local objects to other nodes.
//
// architecture: Service
type Service struct {
	log     *zap.Logger
	self    ids.NodeID
	store   *objects.Store
	peers   transfer.Peers
	config  Config
	limiter *rate.Limiter

	workers *sync2.Limiter
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	sessions map[sessionKey]*session
	recent   *ttlcache.Cache[sessionKey, struct{}]
	wg       sync.WaitGroup
}

// NewService creates a new push service.
func NewService(log *zap.Logger, self ids.NodeID, store *objects.Store, peers transfer.Peers, config Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	service := &Service{
		log:      log,
		self:     self,
		store:    store,
		peers:    peers,
		config:   config,
		workers:  sync2.NewLimiter(config.MaxConcurrentPushes),
		ctx:      ctx,
		cancel:   cancel,
		sessions: map[sessionKey]*session{},
		recent: ttlcache.New[sessionKey, struct{}](
			ttlcache.WithTTL[sessionKey, struct{}](config.RecentWindow),
			ttlcache.WithDisableTouchOnHit[sessionKey, struct{}](),
		),
	}
	if config.MaxBytesPerSecond > 0 {
		burst := config.MaxBytesPerSecond.Int()
		if chunkSize := config.ChunkSize.Int(); burst < chunkSize {
			burst = chunkSize
		}
		service.limiter = rate.NewLimiter(rate.Limit(config.MaxBytesPerSecond.Int()), burst)
	}
	return service
}

// Run removes expired entries of the recent window until ctx is canceled.
func (service *Service) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		service.recent.Stop()
	}()
	service.recent.Start()
	return nil
}

// Push sends the object to destination and waits until every chunk has
// been acknowledged.
//
// Concurrent pushes of the same object to the same destination share one
// session. The session runs until the last caller stops waiting. A
// destination that already holds the object ends the push successfully.
// Pushes that succeeded within the recent window are not repeated.
func (service *Service) Push(ctx context.Context, id ids.ObjectID, destination ids.NodeID) (err error) {
	defer mon.Task()(&ctx)(&err)
	return service.await(ctx, id, destination, true)
}

// PushAsync starts a push on the worker pool. The push outlives ctx; ctx
// only bounds waiting for a free worker.
//
// The recent window is not applied: the destination asking for the object
// means it does not hold it anymore.
func (service *Service) PushAsync(ctx context.Context, id ids.ObjectID, destination ids.NodeID) bool {
	return service.workers.Go(ctx, func() {
		err := service.await(service.ctx, id, destination, false)
		if err != nil {
			service.log.Warn("push failed",
				zap.Stringer("Object ID", id),
				zap.Stringer("Destination", destination),
				zap.Error(err))
		}
	})
}

// Discard forgets the recent pushes of the object, so that it is sent
// again once it is requested.
func (service *Service) Discard(id ids.ObjectID) {
	for _, key := range service.recent.Keys() {
		if key.object == id {
			service.recent.Delete(key)
		}
	}
}

// await joins or starts the session for the object and destination and
// waits until it finishes or ctx is canceled.
func (service *Service) await(ctx context.Context, id ids.ObjectID, destination ids.NodeID, skipRecent bool) error {
	if destination == service.self {
		return nil
	}

	key := sessionKey{object: id, destination: destination}
	if skipRecent && service.recent.Has(key) {
		mon.Meter("push_recent_skip").Mark(1) //mon:locked
		return nil
	}

	service.mu.Lock()
	s, ok := service.sessions[key]
	if ok {
		mon.Meter("push_joined").Mark(1) //mon:locked
	} else {
		sessionCtx, cancel := context.WithCancel(service.ctx)
		s = &session{
			key:     key,
			started: time.Now(),
			done:    make(chan struct{}),
			cancel:  cancel,
		}
		service.sessions[key] = s
		service.wg.Add(1)
		go func() {
			defer service.wg.Done()
			service.run(sessionCtx, s)
		}()
	}
	s.waiters++
	service.mu.Unlock()

	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		service.mu.Lock()
		s.waiters--
		if s.waiters == 0 {
			s.cancel()
			// later callers start a new session
			if service.sessions[key] == s {
				delete(service.sessions, key)
			}
		}
		service.mu.Unlock()
		return ctx.Err()
	}
}

func (service *Service) run(ctx context.Context, s *session) {
	defer s.cancel()

	err := service.push(ctx, s)

	service.mu.Lock()
	if service.sessions[s.key] == s {
		delete(service.sessions, s.key)
	}
	service.mu.Unlock()

	if err == nil {
		service.recent.Set(s.key, struct{}{}, ttlcache.DefaultTTL)
	}
	s.err = err
	close(s.done)
}

func (service *Service) push(ctx context.Context, s *session) (err error) {
	defer mon.Task()(&ctx)(&err)

	object, err := service.store.Get(ctx, s.key.object)
	if err != nil {
		if storage.ErrNotFound.Has(err) {
			return transfer.ErrNotHeld.Wrap(err)
		}
		return Error.Wrap(err)
	}

	source, err := chunk.NewSource(object.Metadata, object.Data, service.config.ChunkSize.Int())
	if err != nil {
		return Error.Wrap(err)
	}

	pushID, err := ids.NewPushID()
	if err != nil {
		return Error.Wrap(err)
	}
	s.mu.Lock()
	s.pushID = pushID
	s.acked = make([]bool, source.Layout.Count())
	s.mu.Unlock()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = service.config.InitialBackoff
	policy.MaxInterval = service.config.MaxBackoff
	policy.MaxElapsedTime = 0

	err = backoff.Retry(func() error {
		s.mu.Lock()
		s.tries++
		s.mu.Unlock()

		err := service.sendMissing(ctx, s, source, object)
		switch {
		case err == nil:
			return nil
		case transfer.ErrDuplicate.Has(err):
			mon.Meter("push_duplicate").Mark(1) //mon:locked
			return nil
		case transfer.Retryable(err) && ctx.Err() == nil:
			mon.Meter("push_retry").Mark(1) //mon:locked
			service.log.Debug("push attempt failed",
				zap.Stringer("Object ID", s.key.object),
				zap.Stringer("Destination", s.key.destination),
				zap.Error(err))
			return err
		default:
			return backoff.Permanent(err)
		}
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(service.config.MaxRetries)), ctx))
	if err != nil {
		if errs.Is(err, context.Canceled) || errs.Is(err, context.DeadlineExceeded) {
			return transfer.ErrUnreachable.Wrap(err)
		}
		return err
	}

	service.log.Debug("pushed",
		zap.Stringer("Object ID", s.key.object),
		zap.Stringer("Destination", s.key.destination),
		zap.Uint32("Chunks", source.Layout.Count()))
	return nil
}

// sendMissing sends every chunk that was not acknowledged yet.
func (service *Service) sendMissing(ctx context.Context, s *session, source *chunk.Source, object storage.Object) error {
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(service.config.MaxConcurrentChunks)

	s.mu.Lock()
	pushID := s.pushID
	s.mu.Unlock()

	for _, index := range s.missing() {
		index := index
		payload, err := source.Chunk(index)
		if err != nil {
			return Error.Wrap(err)
		}

		group.Go(func() error {
			if service.limiter != nil {
				if err := service.limiter.WaitN(gctx, len(payload)); err != nil {
					return transfer.ErrUnreachable.Wrap(err)
				}
			}

			err := service.peers.Push(gctx, s.key.destination, &pb.PushRequest{
				PushId:       pushID.Bytes(),
				ObjectId:     s.key.object.Bytes(),
				NodeId:       service.self.Bytes(),
				OwnerAddress: object.Owner,
				ChunkIndex:   index,
				DataSize:     source.Layout.DataSize,
				MetadataSize: source.Layout.MetadataSize,
				Data:         payload,
			})
			if err != nil {
				return err
			}
			s.ack(index)
			mon.Meter("push_chunk").Mark(1)                            //mon:locked
			mon.IntVal("push_chunk_size").Observe(int64(len(payload))) //mon:locked
			return nil
		})
	}
	return group.Wait()
}

// SessionInfo describes an outbound push.
type SessionInfo struct {
	ObjectID    ids.ObjectID `json:"object_id"`
	Destination ids.NodeID   `json:"destination"`
	PushID      ids.PushID   `json:"push_id"`
	Chunks      int          `json:"chunks"`
	Acked       int          `json:"acked"`
	Attempts    int          `json:"attempts"`
	Waiters     int          `json:"waiters"`
	Started     time.Time    `json:"started"`
}

// Sessions returns the pushes in progress.
func (service *Service) Sessions() []SessionInfo {
	service.mu.Lock()
	sessions := make([]*session, 0, len(service.sessions))
	waiters := make([]int, 0, len(service.sessions))
	for _, s := range service.sessions {
		sessions = append(sessions, s)
		waiters = append(waiters, s.waiters)
	}
	service.mu.Unlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for i, s := range sessions {
		s.mu.Lock()
		infos = append(infos, SessionInfo{
			ObjectID:    s.key.object,
			Destination: s.key.destination,
			PushID:      s.pushID,
			Chunks:      len(s.acked),
			Acked:       s.count,
			Attempts:    s.tries,
			Waiters:     waiters[i],
			Started:     s.started,
		})
		s.mu.Unlock()
	}
	return infos
}

// Close cancels running pushes and waits for them to finish.
func (service *Service) Close() error {
	service.cancel()
	service.workers.Wait()
	service.wg.Wait()
	return nil
}
