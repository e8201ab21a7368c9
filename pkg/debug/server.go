// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package debug implements the debug server of a node.
package debug

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/spacemonkeygo/monkit/v3/present"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config defines configuration for debug server.
type Config struct {
	Address string `help:"address to listen on for debug endpoints, empty disables the server" default:""`
}

// Server provides endpoints for debugging.
type Server struct {
	log *zap.Logger

	listener net.Listener
	server   http.Server
	router   chi.Router

	registry *monkit.Registry
}

// NewServer returns a new debug.Server. listener may be nil, in which case
// Run does nothing.
func NewServer(log *zap.Logger, listener net.Listener, registry *monkit.Registry) *Server {
	server := &Server{
		log:      log,
		listener: listener,
		router:   chi.NewRouter(),
		registry: registry,
	}
	server.server.Handler = server.router

	server.router.Use(middleware.Recoverer)

	server.router.HandleFunc("/debug/pprof/*", pprof.Index)
	server.router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	server.router.HandleFunc("/debug/pprof/profile", pprof.Profile)
	server.router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	server.router.HandleFunc("/debug/pprof/trace", pprof.Trace)

	server.router.Mount("/mon", http.StripPrefix("/mon", present.HTTP(server.registry)))
	server.router.Get("/metrics", server.metrics)

	server.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	})

	return server
}

// Handler returns the http handler of the server.
func (server *Server) Handler() http.Handler { return server.router }

// Addr returns the address the server listens on.
func (server *Server) Addr() net.Addr {
	if server.listener == nil {
		return nil
	}
	return server.listener.Addr()
}

// JSON registers an endpoint at pattern that responds with the value
// returned by fn.
func (server *Server) JSON(pattern string, fn func(r *http.Request) (interface{}, error)) {
	server.router.Get(pattern, func(w http.ResponseWriter, r *http.Request) {
		value, err := fn(r)
		if err != nil {
			server.log.Debug("debug request failed", zap.String("Path", r.URL.Path), zap.Error(err))
			http.Error(w, err.Error(), statusCode(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(value); err != nil {
			server.log.Debug("writing response failed", zap.String("Path", r.URL.Path), zap.Error(err))
		}
	})
}

// Run starts the debug endpoint.
func (server *Server) Run(ctx context.Context) error {
	if server.listener == nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		return Error.Wrap(server.server.Shutdown(context.Background()))
	})
	group.Go(func() error {
		defer cancel()
		err := server.server.Serve(server.listener)
		if err == http.ErrServerClosed {
			return nil
		}
		return Error.Wrap(err)
	})
	return group.Wait()
}

// Close closes server and underlying listener.
func (server *Server) Close() error {
	return Error.Wrap(server.server.Close())
}

// metrics writes https://prometheus.io/docs/instrumenting/exposition_formats/
func (server *Server) metrics(w http.ResponseWriter, r *http.Request) {
	server.registry.Stats(func(key monkit.SeriesKey, field string, val float64) {
		metric := sanitize(key.Measurement + "_" + field)
		_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n%s%s %g\n",
			metric, metric, labels(key.Tags), val)
	})
}

func labels(tags *monkit.TagSet) string {
	all := tags.All()
	if len(all) == 0 {
		return ""
	}
	keys := make([]string, 0, len(all))
	for key := range all {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%q", sanitize(key), all[key]))
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

// sanitize formats val to be suitable for prometheus.
func sanitize(val string) string {
	// https://prometheus.io/docs/concepts/data_model/
	// specifies all metric names must match [a-zA-Z_:][a-zA-Z0-9_:]*
	// Note: The colons are reserved for user defined recording rules.
	// They should not be used by exporters or direct instrumentation.
	if val != "" && '0' <= val[0] && val[0] <= '9' {
		val = "_" + val
	}
	return strings.Map(func(r rune) rune {
		switch {
		case 'a' <= r && r <= 'z':
			return r
		case 'A' <= r && r <= 'Z':
			return r
		case '0' <= r && r <= '9':
			return r
		default:
			return '_'
		}
	}, val)
}
