// Command rubin-indexer runs the secondary-index engine against a
// chainsrc.Client adapter: it loads configuration, opens the configured KV
// backend, builds the configured indexer plugins, opens the index engine,
// and runs until signaled.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"rubin.dev/indexer/chainsrc"
	"rubin.dev/indexer/indexconfig"
	"rubin.dev/indexer/indexdb"
	"rubin.dev/indexer/indexerr"
	"rubin.dev/indexer/indexlog"
	"rubin.dev/indexer/kvstore"
	"rubin.dev/indexer/kvstore/boltstore"
	"rubin.dev/indexer/kvstore/memstore"
)

// newChainClientFn is the index engine's one pluggable seam onto a running
// chain node: a real deployment replaces this with an adapter that
// subscribes to its node's mempool/chain events (out of this engine's scope
// per spec.md ยง1, which places tx/block serialization and networking with
// the producer, not the index core). The default below returns
// chainsrc.NullClient, which has no tip or blocks, so indexdb.Open fails
// fast rather than silently indexing nothing.
var newChainClientFn = func(cfg indexconfig.Config) (chainsrc.Client, error) {
	return chainsrc.NullClient{}, nil
}

var newStoreFn = func(cfg indexconfig.Config) (kvstore.Store, error) {
	if cfg.Memory {
		return memstore.New(), nil
	}
	return boltstore.Open(cfg.Location, boltstore.Options{
		MaxFiles:    cfg.MaxFiles,
		CacheSize:   cfg.CacheSize,
		Compression: cfg.Compression,
	})
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := indexconfig.Default()
	cfg := defaults

	fs := flag.NewFlagSet("rubin-indexer", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "optional config file (toml/yaml/json)")
	fs.StringVar(&cfg.Network, "network", defaults.Network, "network name")
	fs.BoolVar(&cfg.Memory, "memory", defaults.Memory, "use an ephemeral in-memory store instead of on-disk bbolt")
	fs.StringVar(&cfg.Location, "location", defaults.Location, "on-disk store directory (ignored when -memory)")
	var maxFiles uint
	fs.UintVar(&maxFiles, "max-files", uint(defaults.MaxFiles), "backend max open files")
	var cacheSize uint64
	fs.Uint64Var(&cacheSize, "cache-size", defaults.CacheSize, "backend cache size in bytes")
	fs.BoolVar(&cfg.Compression, "compression", defaults.Compression, "enable backend compression")
	dryRun := fs.Bool("dry-run", false, "print effective config and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg.MaxFiles = uint32(maxFiles)
	cfg.CacheSize = cacheSize

	if *configPath != "" {
		loaded, err := indexconfig.Load(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "config load failed: %v\n", err)
			return 2
		}
		cfg = loaded
	}

	if err := indexconfig.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}

	if *dryRun {
		fmt.Fprintf(stdout, "%+v\n", cfg)
		return 0
	}

	log, err := indexlog.New()
	if err != nil {
		fmt.Fprintf(stderr, "logger init failed: %v\n", err)
		return 2
	}
	defer log.Sync()

	store, err := newStoreFn(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "store open failed: %v\n", err)
		return 2
	}
	defer store.Close()

	client, err := newChainClientFn(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "chain client init failed: %v\n", err)
		return 2
	}

	plugins, err := indexdb.BuildPlugins(cfg.Indexers)
	if err != nil {
		fmt.Fprintf(stderr, "plugin setup failed: %v\n", err)
		return 2
	}

	db, err := indexdb.Open(store, client, indexdb.Options{
		NetworkMagic: indexconfig.NetworkMagic(cfg.Network),
		Logger:       log,
	}, plugins...)
	if err != nil {
		fmt.Fprintf(stderr, "index engine open failed: %v\n", err)
		return 2
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return 0
		case err, ok := <-db.Errors():
			if !ok {
				return 0
			}
			log.Error("index engine error", zap.Error(err))
			if indexerr.Fatal(err) {
				fmt.Fprintf(stderr, "fatal index error: %v\n", err)
				return 1
			}
		}
	}
}
