// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

// Package pull fetches objects the local node does not hold from the
// nodes that do.
package pull

import (
	"context"
	"sync"
	"time"

	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/sync2"
	"storj.io/objectmanager/objectmanager/directory"
	"storj.io/objectmanager/objectmanager/objects"
	"storj.io/objectmanager/objectmanager/transfer"
	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/pkg/pb"
)

var (
	// Error is the error class for the pull service.
	Error = errs.Class("pull")

	mon = monkit.Package()
)

// Config contains the options for pulling objects.
type Config struct {
	AwaitTimeout  time.Duration `help:"how long to wait for chunks after a holder accepted a pull" default:"10s"`
	RetryInterval time.Duration `help:"delay before asking the holders again after all of them failed" default:"1s"`
	MaxAttempts   int           `help:"how many rounds over the known holders are made" default:"3"`
	Timeout       time.Duration `help:"upper bound for a whole pull" default:"2m0s"`
	ProbeAllNodes bool          `help:"ask every node of the cluster when no holder is known" default:"false"`
}

// Locator finds nodes that may hold an object when the directory runs out
// of candidates.
type Locator interface {
	Locate(ctx context.Context, id ids.ObjectID) ([]ids.NodeID, error)
}

// Discarder drops partial assemblies of an object.
type Discarder interface {
	Discard(id ids.ObjectID)
}

// State is the state of a pull.
type State int

const (
	// Requested means a pull request is being sent to a candidate.
	Requested State = iota
	// AwaitingChunks means a candidate accepted and chunks are expected.
	AwaitingChunks
	// Complete means the object is in the local store.
	Complete
	// Failed means every candidate failed.
	Failed
)

// String returns the name of the state.
func (state State) String() string {
	switch state {
	case Requested:
		return "requested"
	case AwaitingChunks:
		return "awaiting-chunks"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (state State) MarshalText() ([]byte, error) { return []byte(state.String()), nil }

// request is one outstanding pull of an object shared by all its callers.
type request struct {
	id      ids.ObjectID
	started time.Time
	cancel  context.CancelFunc
	waiters int
	done    chan struct{}
	err     error

	// progress and failed coalesce notifications, committed is closed once
	progress   chan struct{}
	failed     chan struct{}
	committed  chan struct{}
	commitOnce sync.Once

	mu        sync.Mutex
	state     State
	candidate ids.NodeID
	attempt   int
	failures  map[ids.NodeID]error
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (req *request) set(state State, candidate ids.NodeID) {
	req.mu.Lock()
	defer req.mu.Unlock()
	req.state = state
	req.candidate = candidate
}

func (req *request) commit() {
	req.commitOnce.Do(func() { close(req.committed) })
}

func (req *request) isCommitted() bool {
	select {
	case <-req.committed:
		return true
	default:
		return false
	}
}

func (req *request) fail(sender ids.NodeID, err error) {
	req.mu.Lock()
	req.failures[sender] = err
	req.mu.Unlock()
	signal(req.failed)
}

func (req *request) failure(sender ids.NodeID) error {
	req.mu.Lock()
	defer req.mu.Unlock()
	return req.failures[sender]
}

func (req *request) forget(sender ids.NodeID) {
	req.mu.Lock()
	defer req.mu.Unlock()
	delete(req.failures, sender)
}

// Service pulls objects from other nodes.
//
// architecture: Service
type Service struct {
	log       *zap.Logger
	self      ids.NodeID
	store     *objects.Store
	directory *directory.Directory
	peers     transfer.Peers
	discarder Discarder
	locator   Locator
	config    Config

	mu       sync.Mutex
	requests map[ids.ObjectID]*request
	wg       sync.WaitGroup
}

// NewService creates a new pull service. locator may be nil.
func NewService(log *zap.Logger, self ids.NodeID, store *objects.Store, directory *directory.Directory, peers transfer.Peers, discarder Discarder, locator Locator, config Config) *Service {
	return &Service{
		log:       log,
		self:      self,
		store:     store,
		directory: directory,
		peers:     peers,
		discarder: discarder,
		locator:   locator,
		config:    config,
		requests:  map[ids.ObjectID]*request{},
	}
}

// Pull makes the object available in the local store.
//
// Concurrent pulls of the same object share one request. Canceling ctx only
// stops waiting; the request is canceled once nobody waits for it.
func (service *Service) Pull(ctx context.Context, id ids.ObjectID) (err error) {
	defer mon.Task()(&ctx)(&err)

	// a local pull means the object is wanted again
	service.store.Clear(id)

	has, err := service.store.Has(ctx, id)
	if err != nil {
		return Error.Wrap(err)
	}
	if has {
		return nil
	}

	service.mu.Lock()
	req, ok := service.requests[id]
	if !ok {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), service.config.Timeout)
		req = &request{
			id:        id,
			started:   time.Now(),
			cancel:    cancel,
			done:      make(chan struct{}),
			progress:  make(chan struct{}, 1),
			failed:    make(chan struct{}, 1),
			committed: make(chan struct{}),
			failures:  map[ids.NodeID]error{},
		}
		service.requests[id] = req
		service.wg.Add(1)
		go func() {
			defer service.wg.Done()
			service.run(runCtx, req)
		}()
	} else {
		mon.Meter("pull_joined").Mark(1) //mon:locked
	}
	req.waiters++
	service.mu.Unlock()

	select {
	case <-req.done:
		return req.err
	case <-ctx.Done():
		service.mu.Lock()
		req.waiters--
		if req.waiters == 0 {
			req.cancel()
		}
		service.mu.Unlock()
		return ctx.Err()
	}
}

func (service *Service) run(ctx context.Context, req *request) {
	defer req.cancel()

	err := service.pull(ctx, req)
	if err != nil {
		req.set(Failed, ids.NodeID{})
		service.discarder.Discard(req.id)
		mon.Meter("pull_failed").Mark(1) //mon:locked
		service.log.Debug("pull failed", zap.Stringer("Object ID", req.id), zap.Error(err))
	} else {
		req.set(Complete, ids.NodeID{})
		mon.DurationVal("pull_duration").Observe(time.Since(req.started)) //mon:locked
	}

	service.mu.Lock()
	delete(service.requests, req.id)
	service.mu.Unlock()

	req.err = err
	close(req.done)
}

func (service *Service) pull(ctx context.Context, req *request) (err error) {
	defer mon.Task()(&ctx)(&err)

	var lastErr error
	for attempt := 0; attempt < service.config.MaxAttempts; attempt++ {
		req.mu.Lock()
		req.attempt = attempt
		req.mu.Unlock()

		if attempt > 0 {
			service.locate(ctx, req.id)
			if !sync2.Sleep(ctx, service.config.RetryInterval) {
				return service.canceled(ctx, req.id)
			}
		} else if len(service.directory.Holders(req.id)) == 0 {
			service.locate(ctx, req.id)
		}

		candidates := service.directory.Candidates(req.id, service.self)
		for _, candidate := range candidates {
			if has, _ := service.store.Has(ctx, req.id); has {
				return nil
			}

			err := service.tryCandidate(ctx, req, candidate)
			if err == nil {
				service.directory.MarkSucceeded(candidate)
				return nil
			}
			if ctx.Err() != nil {
				return service.canceled(ctx, req.id)
			}

			switch {
			case transfer.ErrNotHeld.Has(err), transfer.ErrCorrupt.Has(err), transfer.ErrRejected.Has(err):
				service.directory.Remove(req.id, candidate)
			default:
				service.directory.MarkFailed(candidate)
			}
			service.log.Debug("pull candidate failed",
				zap.Stringer("Object ID", req.id),
				zap.Stringer("Candidate", candidate),
				zap.Error(err))

			// unreachable holders are more informative than holders that
			// turned out not to have the object
			if lastErr == nil || !transfer.ErrNotHeld.Has(err) {
				lastErr = err
			}
		}
	}

	if has, _ := service.store.Has(ctx, req.id); has {
		return nil
	}
	if lastErr == nil || transfer.ErrNotHeld.Has(lastErr) {
		return transfer.ErrNotHeld.New("no holder of %s after %d attempts", req.id, service.config.MaxAttempts)
	}
	return lastErr
}

// tryCandidate asks candidate to push the object and waits for it to arrive.
func (service *Service) tryCandidate(ctx context.Context, req *request, candidate ids.NodeID) (err error) {
	defer mon.Task()(&ctx)(&err)

	if req.isCommitted() {
		return nil
	}
	// drop progress and failures of earlier attempts
	req.forget(candidate)
	select {
	case <-req.progress:
	default:
	}

	req.set(Requested, candidate)
	err = service.peers.Pull(ctx, candidate, &pb.PullRequest{
		NodeId:   service.self.Bytes(),
		ObjectId: req.id.Bytes(),
	})
	if err != nil {
		return err
	}

	req.set(AwaitingChunks, candidate)

	// the object may have arrived before we started waiting
	if has, _ := service.store.Has(ctx, req.id); has {
		return nil
	}

	timer := time.NewTimer(service.config.AwaitTimeout)
	defer timer.Stop()

	for {
		select {
		case <-req.committed:
			return nil
		case <-req.progress:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(service.config.AwaitTimeout)
		case <-req.failed:
			if err := req.failure(candidate); err != nil {
				return err
			}
		case <-timer.C:
			return transfer.Timeout("no progress pulling %s from %s", req.id, candidate)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (service *Service) locate(ctx context.Context, id ids.ObjectID) {
	if service.locator == nil {
		return
	}
	nodes, err := service.locator.Locate(ctx, id)
	if err != nil {
		service.log.Debug("locating holders failed", zap.Stringer("Object ID", id), zap.Error(err))
		return
	}
	service.directory.Add(id, nodes...)
}

func (service *Service) canceled(ctx context.Context, id ids.ObjectID) error {
	if errs.Is(ctx.Err(), context.DeadlineExceeded) {
		return transfer.Timeout("pulling %s took longer than %s", id, service.config.Timeout)
	}
	return ctx.Err()
}

func (service *Service) request(id ids.ObjectID) *request {
	service.mu.Lock()
	defer service.mu.Unlock()
	return service.requests[id]
}

// ChunkReceived implements receive.Observer.
func (service *Service) ChunkReceived(id ids.ObjectID) {
	if req := service.request(id); req != nil {
		signal(req.progress)
	}
}

// ObjectCommitted implements receive.Observer.
func (service *Service) ObjectCommitted(id ids.ObjectID) {
	if req := service.request(id); req != nil {
		req.commit()
	}
}

// ObjectFailed implements receive.Observer.
func (service *Service) ObjectFailed(id ids.ObjectID, sender ids.NodeID, err error) {
	if req := service.request(id); req != nil {
		req.fail(sender, err)
	}
}

// Info describes an outstanding pull.
type Info struct {
	ObjectID  ids.ObjectID `json:"object_id"`
	State     State        `json:"state"`
	Candidate ids.NodeID   `json:"candidate"`
	Attempt   int          `json:"attempt"`
	Waiters   int          `json:"waiters"`
	Started   time.Time    `json:"started"`
}

// State returns the state of the outstanding pull of the object.
func (service *Service) State(id ids.ObjectID) (Info, bool) {
	service.mu.Lock()
	req, ok := service.requests[id]
	var waiters int
	if ok {
		waiters = req.waiters
	}
	service.mu.Unlock()
	if !ok {
		return Info{}, false
	}
	return req.info(waiters), true
}

// Active returns all outstanding pulls.
func (service *Service) Active() []Info {
	service.mu.Lock()
	defer service.mu.Unlock()

	infos := make([]Info, 0, len(service.requests))
	for _, req := range service.requests {
		infos = append(infos, req.info(req.waiters))
	}
	return infos
}

func (req *request) info(waiters int) Info {
	req.mu.Lock()
	defer req.mu.Unlock()
	return Info{
		ObjectID:  req.id,
		State:     req.state,
		Candidate: req.candidate,
		Attempt:   req.attempt,
		Waiters:   waiters,
		Started:   req.started,
	}
}

// Close cancels outstanding pulls and waits for them to finish.
func (service *Service) Close() error {
	service.mu.Lock()
	for _, req := range service.requests {
		req.cancel()
	}
	service.mu.Unlock()

	service.wg.Wait()
	return nil
}
