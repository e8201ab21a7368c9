// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

// Package redisserver starts redis servers for tests.
package redisserver

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	fallbackAddr = "localhost:3780"
	fallbackPort = 3780
)

// Server is a running redis test server.
type Server interface {
	Addr() string
	// FastForward advances expirations, it is a no-op for a real process.
	FastForward(time.Duration)
	Close()
}

func freeport() (addr string, port int) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fallbackAddr, fallbackPort
	}

	addr = listener.Addr().String()
	port = listener.Addr().(*net.TCPAddr).Port

	_ = listener.Close()
	return addr, port
}

// Start starts a redis-server when available, otherwise falls back to miniredis.
func Start() (Server, error) {
	server, err := Process()
	if err != nil {
		log.Println("failed to start redis-server: ", err)
		return Mini()
	}
	return server, nil
}

type process struct {
	addr    string
	cleanup func()
}

func (p *process) Addr() string                { return p.addr }
func (p *process) FastForward(d time.Duration) { time.Sleep(d) }
func (p *process) Close()                      { p.cleanup() }

// Process starts a redis-server test process.
func Process() (Server, error) {
	if _, err := exec.LookPath("redis-server"); err != nil {
		return nil, err
	}

	tmpdir, err := os.MkdirTemp("", "objectmanager-redis")
	if err != nil {
		return nil, err
	}

	// find a suitable port for listening
	addr, port := freeport()

	// write a configuration file, because redis doesn't support flags
	confpath := filepath.Join(tmpdir, "test.conf")
	arguments := []string{
		"daemonize no",
		"port " + strconv.Itoa(port),
		"timeout 0",
		"databases 2",
		"dbfilename dump.rdb",
		"dir " + tmpdir,
	}
	conf := strings.Join(arguments, "\n") + "\n"
	err = os.WriteFile(confpath, []byte(conf), 0755)
	if err != nil {
		return nil, err
	}

	// start the process
	cmd := exec.Command("redis-server", confpath)
	read, write, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = write
	if err := cmd.Start(); err != nil {
		_ = read.Close()
		_ = write.Close()
		return nil, err
	}

	cleanup := func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		_ = write.Close()
		_ = read.Close()
		_ = os.RemoveAll(tmpdir)
	}

	// wait for redis to become ready
	waitForReady := make(chan struct{}, 5)
	go func() {
		// wait for the message that looks like
		//   "The server is now ready to accept connections on port 6379"
		scanner := bufio.NewScanner(read)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.Contains(line, "now ready to accept") {
				break
			}
		}
		waitForReady <- struct{}{}
		close(waitForReady)
		_, _ = io.Copy(io.Discard, read)
	}()

	select {
	case <-waitForReady:
	case <-time.After(3 * time.Second):
		cleanup()
		return nil, errors.New("redis timeout")
	}

	// test whether we can actually connect
	if !pingServer(addr) {
		cleanup()
		return nil, errors.New("unable to ping")
	}

	return &process{addr: addr, cleanup: cleanup}, nil
}

func pingServer(addr string) bool {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return client.Ping(ctx).Err() == nil
}

// Mini starts miniredis server.
func Mini() (Server, error) {
	server, err := miniredis.Run()
	if err != nil {
		return nil, err
	}
	return server, nil
}
