// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package pull

import (
	"context"

	"storj.io/objectmanager/objectmanager/nodes"
	"storj.io/objectmanager/pkg/ids"
)

// ClusterLocator treats every other member of the cluster as a candidate.
type ClusterLocator struct {
	Self     ids.NodeID
	Resolver nodes.Resolver
}

// Locate returns all known nodes except self.
func (locator ClusterLocator) Locate(ctx context.Context, id ids.ObjectID) (_ []ids.NodeID, err error) {
	defer mon.Task()(&ctx)(&err)

	members, err := locator.Resolver.List(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]ids.NodeID, 0, len(members))
	for _, member := range members {
		if member.ID != locator.Self {
			candidates = append(candidates, member.ID)
		}
	}
	return candidates, nil
}
