// credchaind is the credchain node: it serves the identity, credential, and
// chain HTTP API and optionally archives sealed blocks to a CAS.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/credchain/credchain/config"
	"github.com/credchain/credchain/credential"
	"github.com/credchain/credchain/httpapi"
	"github.com/credchain/credchain/identity"
	"github.com/credchain/credchain/keys"
	"github.com/credchain/credchain/ledger"
	"github.com/credchain/credchain/storage"
	"github.com/credchain/credchain/storage/grpccas"
	"github.com/credchain/credchain/storage/localfs"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("credchaind", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	listen := fs.String("listen", "", "Listen address (overrides config)")
	difficulty := fs.Int("difficulty", 0, "Proof-of-work difficulty (overrides config)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *difficulty != 0 {
		cfg.Difficulty = *difficulty
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	archive, closeArchive, err := openArchive(cfg.Archive)
	if err != nil {
		return err
	}
	if closeArchive != nil {
		defer closeArchive()
	}

	chain, err := openChain(cfg, archive, log)
	if err != nil {
		return err
	}

	registry := identity.NewRegistry(keys.Algorithm(cfg.KeyAlg))
	credentials, err := credential.NewService(registry, chain, cfg.HashAlg)
	if err != nil {
		return err
	}

	api := httpapi.New(log, registry, credentials, chain, archive)
	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: api.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Listen, "difficulty", cfg.Difficulty, "hashAlg", cfg.HashAlg)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	return <-errCh
}

// openArchive builds the chain archive selected by cfg, or none at all.
func openArchive(cfg config.Archive) (*storage.ChainArchive, func(), error) {
	switch {
	case cfg.Dir != "":
		cas, err := localfs.New(filepath.Join(cfg.Dir, "objects"))
		if err != nil {
			return nil, nil, err
		}
		archive, err := storage.NewChainArchive(cas, filepath.Join(cfg.Dir, "HEAD"))
		if err != nil {
			return nil, nil, err
		}
		return archive, nil, nil
	case cfg.GRPCTarget != "":
		client, err := grpccas.Dial(cfg.GRPCTarget, grpccas.DialOptions{Timeout: 5 * time.Second})
		if err != nil {
			return nil, nil, err
		}
		home, err := os.UserHomeDir()
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		// The CID log stays local even when blocks live in a remote CAS.
		headPath := filepath.Join(home, ".credchain", "archive", "HEAD")
		archive, err := storage.NewChainArchive(client, headPath)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return archive, func() { _ = client.Close() }, nil
	default:
		return nil, nil, nil
	}
}

// openChain restores the chain from the archive when one exists, otherwise
// mines a fresh genesis block and seeds the archive with it.
func openChain(cfg config.Config, archive *storage.ChainArchive, log *slog.Logger) (*ledger.Ledger, error) {
	ledgerCfg := ledger.Config{Difficulty: cfg.Difficulty, HashAlg: cfg.HashAlg}

	if archive == nil {
		return ledger.New(ledgerCfg)
	}

	snapshots, err := archive.Replay()
	if err != nil {
		return nil, err
	}
	if len(snapshots) > 0 {
		blocks := make([]ledger.Block, len(snapshots))
		for i, snapshot := range snapshots {
			if err := json.Unmarshal(snapshot, &blocks[i]); err != nil {
				return nil, fmt.Errorf("archived block %d: %w", i, err)
			}
		}
		chain, err := ledger.FromBlocks(ledgerCfg, blocks)
		if err != nil {
			return nil, err
		}
		log.Info("chain restored from archive", "blocks", len(blocks))
		return chain, nil
	}

	chain, err := ledger.New(ledgerCfg)
	if err != nil {
		return nil, err
	}
	genesis := chain.Chain()[0]
	snapshot, err := json.Marshal(&genesis)
	if err != nil {
		return nil, err
	}
	if _, err := archive.Append(snapshot); err != nil {
		return nil, err
	}
	log.Info("genesis block archived", "hash", genesis.Hash)
	return chain, nil
}
