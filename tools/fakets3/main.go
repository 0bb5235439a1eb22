// Package main implements fakets3, a deterministic TeamSpeak 3
// ServerQuery TCP responder for integration testing of query clients. It
// speaks the raw line protocol on the query port: banner greeting,
// escaped key=value records, trailing error status lines, and pushed
// notify lines for sessions registered with servernotifyregister. The
// world it serves (virtual servers, channels, clients, credentials) is
// loaded from a YAML file or falls back to a small built-in default.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
)

var (
	flagAddr    = flag.String("addr", "127.0.0.1:10011", "listen address")
	flagConfig  = flag.String("config", "", "YAML world definition (built-in default world when empty)")
	flagBanner  = flag.String("banner", "Welcome to the TeamSpeak 3 ServerQuery interface.", "welcome line sent after the TS3 greeting")
	flagLogConn = flag.Bool("log-conn", true, "log connect/disconnect events")
)

var globalConnectionsAccepted atomic.Uint64

func main() {
	flag.Parse()

	config := defaultWorldConfig()
	if *flagConfig != "" {
		loaded, err := loadWorldConfig(*flagConfig)
		if err != nil {
			log.Fatalf("fakets3: %v", err)
		}
		config = loaded
	}
	w := newWorld(config)
	registry := newSessionRegistry()

	listener, err := net.Listen("tcp", *flagAddr)
	if err != nil {
		log.Fatalf("fakets3: listen %s failed: %v", *flagAddr, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("fakets3: received %v, shutting down", sig)
		_ = listener.Close()
	}()

	log.Printf("fakets3 listening on %s (servers=%d auth=%v)",
		*flagAddr, len(config.Servers), len(config.Credentials) > 0)

	for {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			if isClosedError(acceptErr) {
				log.Printf("fakets3: listener closed, exiting")
				return
			}
			log.Printf("fakets3: accept: %v", acceptErr)
			continue
		}
		globalConnectionsAccepted.Add(1)
		go handleConnection(conn, w, registry, *flagBanner, *flagLogConn)
	}
}

func isClosedError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "use of closed network connection")
}

func init() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stderr)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "fakets3 — deterministic ServerQuery TCP responder for client testing\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}
