// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package rpc dials other nodes of the cluster.
package rpc

import (
	"context"
	"net"
	"time"

	"github.com/zeebo/errs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"storj.io/objectmanager/pkg/pb"
)

// Error is the error class for dialing failures.
var Error = errs.Class("rpc")

// Config contains the dialing options.
type Config struct {
	DialTimeout    time.Duration `help:"timeout for establishing a connection to another node" default:"5s"`
	RequestTimeout time.Duration `help:"timeout of a single request to another node" default:"30s"`
	IdleExpiration time.Duration `help:"how long an unused connection is kept open" default:"2m0s"`
}

// Dialer holds configuration for dialing.
type Dialer struct {
	// DialTimeout causes all the tcp dials to error if they take longer
	// than it if it is non-zero.
	DialTimeout time.Duration

	// DialLatency sleeps this amount if it is non-zero before every dial.
	// The timeout runs while the sleep is happening.
	DialLatency time.Duration

	// MaxMessageSize raises the limit of sent and received messages above
	// the grpc default if it is non-zero.
	MaxMessageSize int
}

// NewDefaultDialer returns a Dialer with default timeouts set.
func NewDefaultDialer() Dialer {
	return Dialer{DialTimeout: 5 * time.Second}
}

// dialContext does a raw tcp dial to the address with the configured timeout.
func (d Dialer) dialContext(ctx context.Context, address string) (net.Conn, error) {
	if d.DialTimeout > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, d.DialTimeout)
		defer cancel()
	}

	if d.DialLatency > 0 {
		timer := time.NewTimer(d.DialLatency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	var dialer net.Dialer
	return dialer.DialContext(ctx, "tcp", address)
}

// Dial creates a client connection to address. Connecting happens lazily on
// the first request.
func (d Dialer) Dial(address string) (*grpc.ClientConn, error) {
	callOptions := []grpc.CallOption{grpc.CallContentSubtype(pb.CodecName)}
	if d.MaxMessageSize > 0 {
		callOptions = append(callOptions,
			grpc.MaxCallSendMsgSize(d.MaxMessageSize),
			grpc.MaxCallRecvMsgSize(d.MaxMessageSize))
	}

	conn, err := grpc.NewClient(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(d.dialContext),
		grpc.WithDefaultCallOptions(callOptions...),
	)
	return conn, Error.Wrap(err)
}
