// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command ihtnode is a minimal entry point for one node's participation in
// an Interlocked Hash Table run: it loads a node's config.Config, bootstraps
// either as the table's host or as a peer, runs the fixed smoke-test
// operation sequence from original_source/role_client.h, and exits.
// Workload generation, QPS pacing, and result-proto emission across a
// fleet of nodes are out of scope here; see driver.GenerateStream for the
// building block a harness would drive this with instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/iht/bootstrap"
	"github.com/luxfi/iht/config"
	"github.com/luxfi/iht/control"
	"github.com/luxfi/iht/control/tcp"
	"github.com/luxfi/iht/driver"
	"github.com/luxfi/iht/iht"
	"github.com/luxfi/iht/rma/local"
)

func main() {
	configPath := flag.String("config", "", "path to a JSONC node config file (defaults to config.Default())")
	listen := flag.String("listen", "127.0.0.1:9001", "address the host listens on; peers dial this")
	flag.Parse()

	logger := log.NewNoOpLogger()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if cfg.HostAddr == "" {
		cfg.HostAddr = *listen
	}

	if err := run(cfg, logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger log.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	self := config.NodeIDFor(cfg.NodeID)
	ihtCfg := iht.DefaultConfig()

	// A single-process run (config.Default()'s NodeCount == 1) never needs
	// a real control channel: the one node is its own host.
	if cfg.NodeCount == 1 {
		cluster := local.NewCluster()
		pool := local.NewPool(cluster, self)
		table, err := iht.NewTable[uint64, uint64](pool, ihtCfg, iht.Uint64Hasher)
		if err != nil {
			return err
		}
		if _, err := table.InitRoot(); err != nil {
			return err
		}
		return runSmokeTest(table, logger)
	}

	peers := otherPeerIDs(cfg)

	var ch control.Channel
	var err error
	if cfg.IsHost() {
		ch, err = tcp.NewHost(ctx, logger, self, cfg.HostAddr, peers)
	} else {
		ch, err = tcp.NewPeer(ctx, logger, self, cfg.HostAddr, peers)
	}
	if err != nil {
		return fmt.Errorf("ihtnode: control channel: %w", err)
	}
	defer ch.Close()

	cluster := local.NewCluster()
	pool := local.NewPool(cluster, self)

	var table *iht.Table[uint64, uint64]
	if cfg.IsHost() {
		table, err = bootstrap.InitAsHost[uint64, uint64](ctx, logger, pool, ihtCfg, iht.Uint64Hasher, ch)
	} else {
		table, err = bootstrap.InitAsPeer[uint64, uint64](ctx, logger, pool, ihtCfg, iht.Uint64Hasher, ch)
	}
	if err != nil {
		return err
	}

	if err := ch.Barrier(ctx, "ready"); err != nil {
		return err
	}

	if err := runSmokeTest(table, logger); err != nil {
		return err
	}

	return ch.DrainAck(ctx)
}

func runSmokeTest(table *iht.Table[uint64, uint64], logger log.Logger) error {
	if err := driver.Operations[uint64, uint64](table); err != nil {
		return fmt.Errorf("ihtnode: smoke test: %w", err)
	}
	logger.Info("smoke test passed")
	return nil
}

// otherPeerIDs returns every node's id except cfg's own, the set NewHost
// accepts connections from and NewPeer reports itself against.
func otherPeerIDs(cfg config.Config) []ids.NodeID {
	peers := make([]ids.NodeID, 0, cfg.NodeCount-1)
	for i := 0; i < cfg.NodeCount; i++ {
		if i == cfg.NodeID {
			continue
		}
		peers = append(peers, config.NodeIDFor(i))
	}
	return peers
}
