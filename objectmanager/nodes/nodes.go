// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

// Package nodes resolves node ids to dialable addresses.
package nodes

import (
	"context"

	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"storj.io/objectmanager/pkg/ids"
)

var mon = monkit.Package()

var (
	// Error is the error class for node table failures.
	Error = errs.Class("nodes")
	// ErrUnknownNode is returned when a node id has no known address.
	ErrUnknownNode = errs.Class("unknown node")
)

// Resolver resolves node ids to addresses.
type Resolver interface {
	// Resolve returns the address of the node.
	Resolve(ctx context.Context, id ids.NodeID) (address string, err error)
	// List returns all known nodes.
	List(ctx context.Context) ([]ids.NodeURL, error)
}

// Registry is a Resolver that nodes can announce themselves to.
type Registry interface {
	Resolver
	// Register adds or refreshes the address of a node.
	Register(ctx context.Context, node ids.NodeURL) error
	// Unregister removes a node.
	Unregister(ctx context.Context, id ids.NodeID) error
}
