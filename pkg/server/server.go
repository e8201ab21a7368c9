// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package server implements the rpc server of a node.
package server

import (
	"context"
	"net"
	"sync"
	"time"

	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	mon = monkit.Package()

	// Error is the error class for the server.
	Error = errs.Class("server")
)

// gracefulStopTimeout bounds how long Run waits for clients to disconnect.
const gracefulStopTimeout = 2 * time.Second

// Config holds server specific configuration parameters.
type Config struct {
	Address     string `user:"true" help:"public address to listen on" default:":7777"`
	LogRequests bool   `help:"log every request at debug level" default:"false"`
}

// Server represents the rpc server of a node.
type Server struct {
	log      *zap.Logger
	listener net.Listener
	grpc     *grpc.Server

	mu   sync.Mutex
	wg   sync.WaitGroup
	once sync.Once
	done chan struct{}
}

// New creates a Server listening on the configured address. opts are
// passed to the grpc server.
func New(log *zap.Logger, config Config, opts ...grpc.ServerOption) (*Server, error) {
	listener, err := net.Listen("tcp", config.Address)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	server := &Server{
		log:      log,
		listener: listener,
		done:     make(chan struct{}),
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(server.monitor(config.LogRequests)))
	server.grpc = grpc.NewServer(opts...)
	return server, nil
}

// Addr returns the server's listener address.
func (p *Server) Addr() net.Addr { return p.listener.Addr() }

// GRPC returns the server's gRPC handle for registration purposes.
func (p *Server) GRPC() *grpc.Server { return p.grpc }

// Close shuts down the server.
func (p *Server) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Close done and wait for any Runs to exit.
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()

	// Ensure the listener is closed in case Run was never called.
	_ = p.listener.Close()
	return nil
}

// Run will run the server and all of its services.
func (p *Server) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	// Make sure the server isn't already closed. If it is, register
	// ourselves in the wait group so that Close can wait on it.
	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		return Error.New("server closed")
	default:
		p.wg.Add(1)
		defer p.wg.Done()
	}
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var group errgroup.Group
	group.Go(func() error {
		select {
		case <-p.done:
		case <-ctx.Done():
		}

		stopped := make(chan struct{})
		go func() {
			p.grpc.GracefulStop()
			close(stopped)
		}()

		timer := time.NewTimer(gracefulStopTimeout)
		defer timer.Stop()
		select {
		case <-stopped:
		case <-timer.C:
			p.log.Debug("graceful stop timed out, closing connections")
			p.grpc.Stop()
			<-stopped
		}
		return nil
	})
	group.Go(func() error {
		defer cancel()
		err := p.grpc.Serve(p.listener)
		if errs.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return Error.Wrap(err)
	})
	return group.Wait()
}

// monitor returns an interceptor that measures every request.
func (p *Server) monitor(logRequests bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (_ interface{}, err error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		mon.Counter("rpc_requests", monkit.NewSeriesTag("method", info.FullMethod), monkit.NewSeriesTag("code", code.String())).Inc(1) //mon:locked
		mon.DurationVal("rpc_duration", monkit.NewSeriesTag("method", info.FullMethod)).Observe(time.Since(start))                     //mon:locked

		if logRequests {
			p.log.Debug("request",
				zap.String("Method", info.FullMethod),
				zap.Stringer("Code", code),
				zap.Duration("Duration", time.Since(start)))
		}
		return resp, err
	}
}
