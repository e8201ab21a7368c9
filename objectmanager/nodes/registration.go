// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package nodes

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storj.io/common/sync2"
	"storj.io/objectmanager/pkg/ids"
)

// Config contains the node table options.
type Config struct {
	Static   string        `help:"comma separated list of id@host:port of the nodes in the cluster" default:""`
	RedisURL string        `help:"redis://host:port?db=N of a shared node table, empty uses only the static list" default:""`
	TTL      time.Duration `help:"how long a registration in the shared node table stays valid" default:"1m0s"`
	Interval time.Duration `help:"how often the node refreshes its registration" default:"20s"`
}

// Registration is the chore that keeps the node registered in a shared node table.
//
// architecture: Chore
type Registration struct {
	log      *zap.Logger
	registry Registry
	self     ids.NodeURL

	Loop *sync2.Cycle
}

// NewRegistration creates a new registration chore.
func NewRegistration(log *zap.Logger, registry Registry, self ids.NodeURL, interval time.Duration) *Registration {
	return &Registration{
		log:      log,
		registry: registry,
		self:     self,
		Loop:     sync2.NewCycle(interval),
	}
}

// Run registers the node on every cycle.
func (chore *Registration) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return chore.Loop.Run(ctx, func(ctx context.Context) error {
		if err := chore.registry.Register(ctx, chore.self); err != nil {
			chore.log.Error("registration failed", zap.Stringer("Node ID", chore.self.ID), zap.Error(err))
		}
		return nil
	})
}

// Close stops the chore and removes the registration.
func (chore *Registration) Close() error {
	chore.Loop.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return chore.registry.Unregister(ctx, chore.self.ID)
}
