// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

// Package objectmanager wires the object transfer services of a node.
package objectmanager

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"storj.io/common/errs2"
	"storj.io/objectmanager/objectmanager/directory"
	"storj.io/objectmanager/objectmanager/endpoint"
	"storj.io/objectmanager/objectmanager/freeobjects"
	"storj.io/objectmanager/objectmanager/nodes"
	"storj.io/objectmanager/objectmanager/objects"
	"storj.io/objectmanager/objectmanager/pull"
	"storj.io/objectmanager/objectmanager/push"
	"storj.io/objectmanager/objectmanager/receive"
	"storj.io/objectmanager/objectmanager/transfer"
	"storj.io/objectmanager/pkg/debug"
	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/pkg/pb"
	"storj.io/objectmanager/pkg/rpc"
	"storj.io/objectmanager/pkg/server"
	"storj.io/objectmanager/storage"
)

var (
	mon = monkit.Package()

	// Error is the error class for the peer.
	Error = errs.Class("objectmanager")
)

// NodeConfig identifies the node.
type NodeConfig struct {
	ID              string `help:"base58 id of this node" default:""`
	ExternalAddress string `help:"address other nodes use to reach this node, defaults to the server address" default:""`
}

// Config is all the configuration parameters for a node.
type Config struct {
	Node    NodeConfig
	Server  server.Config
	Debug   debug.Config
	Storage StorageConfig
	Nodes   nodes.Config
	RPC     rpc.Config
	Objects objects.Config
	Push    push.Config
	Pull    pull.Config
	Receive receive.Config
	Free    freeobjects.Config
}

// Verify verifies whether configuration is consistent and acceptable.
func (config *Config) Verify(log *zap.Logger) error {
	if _, err := ids.NodeIDFromString(config.Node.ID); err != nil {
		return Error.New("invalid node id %q: %v", config.Node.ID, err)
	}
	if config.Push.ChunkSize <= 0 {
		return Error.New("push.chunk-size must be positive")
	}
	if config.Receive.MaxObjectSize < config.Push.ChunkSize {
		log.Warn("receive.max-object-size is smaller than a single chunk",
			zap.Stringer("max-object-size", config.Receive.MaxObjectSize),
			zap.Stringer("chunk-size", config.Push.ChunkSize))
	}
	return nil
}

// Peer is a node of the object transfer cluster.
//
// architecture: Peer
type Peer struct {
	Log  *zap.Logger
	Self ids.NodeURL

	Server *server.Server

	Debug struct {
		Listener net.Listener
		Server   *debug.Server
	}

	Storage struct {
		DB      storage.ObjectStore
		Objects *objects.Store
	}

	Nodes struct {
		Resolver     nodes.Resolver
		Registration *nodes.Registration
	}

	Dialer struct {
		Pool   *rpc.Pool
		Client *transfer.Client
	}

	Transfer struct {
		Directory *directory.Directory
		Receiver  *receive.Receiver
		Push      *push.Service
		Pull      *pull.Service
		Free      *freeobjects.Service
		Endpoint  *endpoint.Endpoint
	}
}

// New creates a new node. The node takes ownership of db but not of
// resolver.
func New(log *zap.Logger, config Config, db storage.ObjectStore, resolver nodes.Resolver) (*Peer, error) {
	peer := &Peer{Log: log}

	id, err := ids.NodeIDFromString(config.Node.ID)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	{ // setup server
		maxMessageSize := pb.MaxMessageSize(config.Push.ChunkSize.Int())
		peer.Server, err = server.New(log.Named("server"), config.Server,
			grpc.MaxRecvMsgSize(maxMessageSize),
			grpc.MaxSendMsgSize(maxMessageSize))
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}

		address := config.Node.ExternalAddress
		if address == "" {
			address = peer.Server.Addr().String()
		}
		peer.Self = ids.NodeURL{ID: id, Address: address}
	}

	{ // setup debug
		if config.Debug.Address != "" {
			peer.Debug.Listener, err = net.Listen("tcp", config.Debug.Address)
			if err != nil {
				return nil, errs.Combine(Error.Wrap(err), peer.Close())
			}
		}
		peer.Debug.Server = debug.NewServer(log.Named("debug"), peer.Debug.Listener, monkit.Default)
	}

	{ // setup storage
		peer.Storage.DB = db
		peer.Storage.Objects = objects.NewStore(log.Named("objects"), db, config.Objects)
	}

	{ // setup node table
		peer.Nodes.Resolver = resolver
		if registry, ok := resolver.(nodes.Registry); ok && config.Nodes.Interval > 0 {
			peer.Nodes.Registration = nodes.NewRegistration(log.Named("nodes:registration"), registry, peer.Self, config.Nodes.Interval)
		}
	}

	{ // setup dialing
		dialer := rpc.NewDefaultDialer()
		dialer.DialTimeout = config.RPC.DialTimeout
		dialer.MaxMessageSize = pb.MaxMessageSize(config.Push.ChunkSize.Int())
		peer.Dialer.Pool = rpc.NewPool(log.Named("rpc"), dialer, config.RPC.IdleExpiration)
		peer.Dialer.Client = transfer.NewClient(resolver, peer.Dialer.Pool, config.RPC.RequestTimeout)
	}

	{ // setup transfers
		peer.Transfer.Directory = directory.New()
		peer.Transfer.Receiver = receive.NewReceiver(log.Named("receive"), peer.Storage.Objects, peer.Transfer.Directory, config.Push.ChunkSize.Int(), config.Receive)
		peer.Transfer.Push = push.NewService(log.Named("push"), id, peer.Storage.Objects, peer.Dialer.Client, config.Push)

		var locator pull.Locator
		if config.Pull.ProbeAllNodes {
			locator = pull.ClusterLocator{Self: id, Resolver: resolver}
		}
		peer.Transfer.Pull = pull.NewService(log.Named("pull"), id, peer.Storage.Objects, peer.Transfer.Directory, peer.Dialer.Client, peer.Transfer.Receiver, locator, config.Pull)
		peer.Transfer.Receiver.Subscribe(peer.Transfer.Pull)

		peer.Transfer.Free = freeobjects.NewService(log.Named("free"), id, peer.Storage.Objects, peer.Transfer.Directory,
			freeobjects.Discarders{peer.Transfer.Receiver, peer.Transfer.Push}, resolver, peer.Dialer.Client, config.Free)
	}

	{ // setup endpoint
		peer.Transfer.Endpoint = endpoint.New(log.Named("endpoint"), peer.Transfer.Receiver, peer.Transfer.Push, peer.Transfer.Free, peer.Storage.Objects)
		pb.RegisterObjectManagerServiceServer(peer.Server.GRPC(), peer.Transfer.Endpoint)
	}

	peer.registerDebug()

	return peer, nil
}

// registerDebug exposes the state of the transfers on the debug server.
func (peer *Peer) registerDebug() {
	peer.Debug.Server.JSON("/objectmanager/node", func(r *http.Request) (interface{}, error) {
		return map[string]string{"id": peer.Self.ID.String(), "address": peer.Self.Address}, nil
	})
	peer.Debug.Server.JSON("/objectmanager/objects", func(r *http.Request) (interface{}, error) {
		return peer.Storage.Objects.List(r.Context())
	})
	peer.Debug.Server.JSON("/objectmanager/holders", func(r *http.Request) (interface{}, error) {
		return peer.Transfer.Directory.Snapshot(), nil
	})
	peer.Debug.Server.JSON("/objectmanager/holders/{id}", func(r *http.Request) (interface{}, error) {
		id, err := ids.ObjectIDFromString(chi.URLParam(r, "id"))
		if err != nil {
			return nil, debug.ErrBadRequest.Wrap(err)
		}
		return peer.Transfer.Directory.Holders(id), nil
	})
	peer.Debug.Server.JSON("/objectmanager/push", func(r *http.Request) (interface{}, error) {
		return peer.Transfer.Push.Sessions(), nil
	})
	peer.Debug.Server.JSON("/objectmanager/pull", func(r *http.Request) (interface{}, error) {
		return peer.Transfer.Pull.Active(), nil
	})
	peer.Debug.Server.JSON("/objectmanager/pull/{id}", func(r *http.Request) (interface{}, error) {
		id, err := ids.ObjectIDFromString(chi.URLParam(r, "id"))
		if err != nil {
			return nil, debug.ErrBadRequest.Wrap(err)
		}
		info, ok := peer.Transfer.Pull.State(id)
		if !ok {
			return nil, debug.ErrNotFound.New("no pull of %s", id)
		}
		return info, nil
	})
	peer.Debug.Server.JSON("/objectmanager/receive", func(r *http.Request) (interface{}, error) {
		return peer.Transfer.Receiver.Sessions(), nil
	})
	peer.Debug.Server.JSON("/objectmanager/nodes", func(r *http.Request) (interface{}, error) {
		list, err := peer.Nodes.Resolver.List(r.Context())
		if err != nil {
			return nil, err
		}
		urls := make([]string, 0, len(list))
		for _, node := range list {
			urls = append(urls, node.String())
		}
		return urls, nil
	})
}

// Run runs the node until it's either closed or it errors.
func (peer *Peer) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return errs2.IgnoreCanceled(peer.Server.Run(ctx))
	})
	group.Go(func() error {
		return errs2.IgnoreCanceled(peer.Debug.Server.Run(ctx))
	})
	group.Go(func() error {
		return errs2.IgnoreCanceled(peer.Storage.Objects.Run(ctx))
	})
	group.Go(func() error {
		return errs2.IgnoreCanceled(peer.Dialer.Pool.Run(ctx))
	})
	group.Go(func() error {
		return errs2.IgnoreCanceled(peer.Transfer.Receiver.Run(ctx))
	})
	group.Go(func() error {
		return errs2.IgnoreCanceled(peer.Transfer.Push.Run(ctx))
	})
	group.Go(func() error {
		return errs2.IgnoreCanceled(peer.Transfer.Free.Run(ctx))
	})
	if peer.Nodes.Registration != nil {
		group.Go(func() error {
			return errs2.IgnoreCanceled(peer.Nodes.Registration.Run(ctx))
		})
	}

	return group.Wait()
}

// Close closes all the resources.
func (peer *Peer) Close() error {
	var errlist errs.Group

	// close services in reverse initialization order
	if peer.Transfer.Free != nil {
		errlist.Add(peer.Transfer.Free.Close())
	}
	if peer.Transfer.Pull != nil {
		errlist.Add(peer.Transfer.Pull.Close())
	}
	if peer.Transfer.Push != nil {
		errlist.Add(peer.Transfer.Push.Close())
	}
	if peer.Dialer.Pool != nil {
		errlist.Add(peer.Dialer.Pool.Close())
	}
	if peer.Nodes.Registration != nil {
		errlist.Add(peer.Nodes.Registration.Close())
	}

	// close servers
	if peer.Debug.Server != nil {
		errlist.Add(peer.Debug.Server.Close())
	} else if peer.Debug.Listener != nil {
		errlist.Add(peer.Debug.Listener.Close())
	}
	if peer.Server != nil {
		errlist.Add(peer.Server.Close())
	}

	if peer.Storage.Objects != nil {
		errlist.Add(peer.Storage.Objects.Close())
	}
	return errlist.Err()
}

// ID returns the id of the node.
func (peer *Peer) ID() ids.NodeID { return peer.Self.ID }

// Addr returns the address other nodes reach this node at.
func (peer *Peer) Addr() string { return peer.Self.Address }

// URL returns the node url.
func (peer *Peer) URL() ids.NodeURL { return peer.Self }

// Put stores a locally created object and returns its id. The node is
// recorded as the owner.
func (peer *Peer) Put(ctx context.Context, metadata, data []byte) (_ ids.ObjectID, err error) {
	defer mon.Task()(&ctx)(&err)

	object := storage.Object{
		ID:       ids.ObjectIDFromContent(metadata, data),
		Metadata: metadata,
		Data:     data,
		Owner:    peer.address(),
	}
	err = peer.Storage.Objects.Put(ctx, object)
	if err != nil && !storage.ErrAlreadyExists.Has(err) {
		return ids.ObjectID{}, err
	}
	return object.ID, nil
}

// Get returns a local object.
func (peer *Peer) Get(ctx context.Context, id ids.ObjectID) (_ storage.Object, err error) {
	defer mon.Task()(&ctx)(&err)

	ok, err := peer.Storage.Objects.Serveable(ctx, id)
	if err != nil {
		return storage.Object{}, err
	}
	if !ok {
		return storage.Object{}, transfer.ErrNotHeld.New("%s", id)
	}
	return peer.Storage.Objects.Get(ctx, id)
}

// Pull makes the object available locally.
func (peer *Peer) Pull(ctx context.Context, id ids.ObjectID) error {
	return peer.Transfer.Pull.Pull(ctx, id)
}

// Push sends a local object to destination.
func (peer *Peer) Push(ctx context.Context, id ids.ObjectID, destination ids.NodeID) error {
	return peer.Transfer.Push.Push(ctx, id, destination)
}

// Free evicts the objects from every node of the cluster.
func (peer *Peer) Free(ctx context.Context, objectIDs ...ids.ObjectID) error {
	return peer.Transfer.Free.Free(ctx, objectIDs)
}

// QueueFree schedules the objects to be freed on the next broadcast cycle.
func (peer *Peer) QueueFree(objectIDs ...ids.ObjectID) {
	peer.Transfer.Free.Queue(objectIDs...)
}

// Announce records that holders have the object.
func (peer *Peer) Announce(id ids.ObjectID, holders ...ids.NodeID) {
	peer.Transfer.Directory.Add(id, holders...)
}

// address returns the wire address of the node.
func (peer *Peer) address() *pb.Address {
	address := &pb.Address{NodeId: peer.Self.ID.Bytes()}
	host, port, err := net.SplitHostPort(peer.Self.Address)
	if err != nil {
		address.IpAddress = peer.Self.Address
		return address
	}
	address.IpAddress = host
	if n, err := strconv.Atoi(port); err == nil {
		address.Port = int32(n)
	}
	return address
}
