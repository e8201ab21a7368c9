// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/process"
	"storj.io/objectmanager/objectmanager/nodes"
	"storj.io/objectmanager/objectmanager/transfer"
	"storj.io/objectmanager/pkg/ids"
	"storj.io/objectmanager/pkg/pb"
	"storj.io/objectmanager/pkg/rpc"
)

var (
	freeCmd = &cobra.Command{
		Use:   "free <object-id>...",
		Short: "Ask a node to evict its copies of objects",
		Args:  cobra.MinimumNArgs(1),
		RunE:  cmdFree,
	}
	pullCmd = &cobra.Command{
		Use:   "pull <object-id>",
		Short: "Ask a holder to push an object to another node",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdPull,
	}

	freeCfg struct {
		Node string `help:"id@host:port of the node to send the request to" default:""`
		RPC  rpc.Config
	}
	pullCfg struct {
		Node      string `help:"id@host:port of the node holding the object" default:""`
		Requester string `help:"id@host:port of the node that receives the object" default:""`
		RPC       rpc.Config
	}
)

// dialNode returns a client that reaches only the listed nodes.
func dialNode(log *zap.Logger, config rpc.Config, urls ...ids.NodeURL) (*transfer.Client, func() error) {
	dialer := rpc.NewDefaultDialer()
	dialer.DialTimeout = config.DialTimeout
	pool := rpc.NewPool(log, dialer, config.IdleExpiration)
	return transfer.NewClient(nodes.NewStatic(urls...), pool, config.RequestTimeout), pool.Close
}

func parseObjectIDs(args []string) ([]ids.ObjectID, error) {
	objectIDs := make([]ids.ObjectID, 0, len(args))
	for _, arg := range args {
		id, err := ids.ObjectIDFromString(arg)
		if err != nil {
			return nil, err
		}
		objectIDs = append(objectIDs, id)
	}
	return objectIDs, nil
}

func cmdFree(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	node, err := ids.ParseNodeURL(freeCfg.Node)
	if err != nil {
		return errs.New("invalid --node: %+v", err)
	}
	objectIDs, err := parseObjectIDs(args)
	if err != nil {
		return err
	}

	client, closeClient := dialNode(log.Named("rpc"), freeCfg.RPC, node)
	defer func() { err = errs.Combine(err, closeClient()) }()

	return sendFree(ctx, client, node.ID, objectIDs)
}

func sendFree(ctx context.Context, peers transfer.Peers, node ids.NodeID, objectIDs []ids.ObjectID) error {
	req := &pb.FreeObjectsRequest{ObjectIds: make([][]byte, 0, len(objectIDs))}
	for _, id := range objectIDs {
		req.ObjectIds = append(req.ObjectIds, id.Bytes())
	}
	if err := peers.FreeObjects(ctx, node, req); err != nil {
		return err
	}
	zap.L().Info("Objects freed.", zap.Stringer("Node ID", node), zap.Int("Count", len(objectIDs)))
	return nil
}

func cmdPull(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	holder, err := ids.ParseNodeURL(pullCfg.Node)
	if err != nil {
		return errs.New("invalid --node: %+v", err)
	}
	requester, err := ids.ParseNodeURL(pullCfg.Requester)
	if err != nil {
		return errs.New("invalid --requester: %+v", err)
	}
	objectID, err := ids.ObjectIDFromString(args[0])
	if err != nil {
		return err
	}

	client, closeClient := dialNode(log.Named("rpc"), pullCfg.RPC, holder)
	defer func() { err = errs.Combine(err, closeClient()) }()

	return sendPull(ctx, client, holder.ID, requester.ID, objectID)
}

func sendPull(ctx context.Context, peers transfer.Peers, holder, requester ids.NodeID, objectID ids.ObjectID) error {
	err := peers.Pull(ctx, holder, &pb.PullRequest{
		NodeId:   requester.Bytes(),
		ObjectId: objectID.Bytes(),
	})
	if transfer.ErrNotHeld.Has(err) {
		return errs.New("node %v does not hold object %v", holder, objectID)
	}
	if err != nil {
		return err
	}
	zap.L().Info("Pull accepted.",
		zap.Stringer("Object ID", objectID),
		zap.Stringer("Holder", holder),
		zap.Stringer("Requester", requester))
	return nil
}
