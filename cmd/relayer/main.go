// Command relayer runs the cross-chain token-bridge relayer-indexer:
// two chain ingestors, a finality sweeper, and a cross-chain
// distributor, supervised for graceful shutdown and pause/unpause.
package main

import (
	"context"
	"log"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/bridge-relayer/pkg/chain"
	"github.com/certen/bridge-relayer/pkg/config"
	"github.com/certen/bridge-relayer/pkg/distributor"
	"github.com/certen/bridge-relayer/pkg/finality"
	"github.com/certen/bridge-relayer/pkg/ingestor"
	"github.com/certen/bridge-relayer/pkg/metrics"
	"github.com/certen/bridge-relayer/pkg/store"
	"github.com/certen/bridge-relayer/pkg/supervisor"
)

func main() {
	logger := log.New(log.Writer(), "[Relayer] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storeClient, err := store.NewClient(store.Config{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DatabaseMaxConns,
		MinConns:    cfg.DatabaseMinConns,
		MaxIdleTime: cfg.DatabaseMaxIdleTime,
		MaxLifetime: cfg.DatabaseMaxLifetime,
	})
	if err != nil {
		logger.Fatalf("failed to connect to store: %v", err)
	}
	defer storeClient.Close()

	if err := storeClient.InitSchema(ctx); err != nil {
		logger.Fatalf("failed to initialize schema: %v", err)
	}

	deposits := store.NewDepositRepository(storeClient)
	checkpoints := store.NewCheckpointRepository(storeClient)

	chainA, err := chain.NewClient("A", cfg.ChainA.WSURL, cfg.ChainA.ChainNumericID,
		common.HexToAddress(cfg.ChainA.BridgeAddress), common.HexToAddress(cfg.ChainA.TokenAddress), cfg.PrivateKey)
	if err != nil {
		logger.Fatalf("failed to connect to chain A: %v", err)
	}
	defer chainA.Close()

	chainB, err := chain.NewClient("B", cfg.ChainB.WSURL, cfg.ChainB.ChainNumericID,
		common.HexToAddress(cfg.ChainB.BridgeAddress), common.HexToAddress(cfg.ChainB.TokenAddress), cfg.PrivateKey)
	if err != nil {
		logger.Fatalf("failed to connect to chain B: %v", err)
	}
	defer chainB.Close()

	startA := cfg.ChainA.StartBlock
	if startA == 0 {
		if cp, err := checkpoints.GetCheckpoint(ctx, "A"); err == nil {
			startA = cp
		}
	}
	startB, err := checkpoints.GetCheckpoint(ctx, "B")
	if err != nil {
		logger.Printf("failed to read checkpoint for chain B, starting from 0: %v", err)
	}

	ingestorA := ingestor.New("A", startA, chainA, deposits)
	ingestorB := ingestor.New("B", startB, chainB, deposits)

	sweeper := finality.New([]finality.Chain{
		{ChainID: "A", Head: chainA},
		{ChainID: "B", Head: chainB},
	}, cfg.FinalityDepth, cfg.SweepInterval, deposits)

	dist := distributor.New(map[string]distributor.Route{
		// A deposit recorded on chain A is distributed on chain B, using
		// chain B's configured token; the deposit's own token address must
		// match chain A's configured token (spec.md §4.5b/c).
		"A": {Sender: chainB, SourceToken: common.HexToAddress(cfg.ChainA.TokenAddress), TargetToken: common.HexToAddress(cfg.ChainB.TokenAddress)},
		"B": {Sender: chainA, SourceToken: common.HexToAddress(cfg.ChainB.TokenAddress), TargetToken: common.HexToAddress(cfg.ChainA.TokenAddress)},
	}, cfg.DistributeInterval, deposits)

	super := supervisor.New(map[string]supervisor.Pauser{
		"A": chainA,
		"B": chainB,
	})
	dist.SetPauseFunc(super.Paused)

	metricsServer := metrics.NewServer(cfg.MetricsAddr)

	// Unpause both bridge contracts before any worker starts submitting
	// transactions, per spec.md §4.6. Best-effort: a failure here is
	// logged but never aborts startup.
	super.Unpause(ctx)

	go ingestorA.Run(ctx)
	go ingestorB.Run(ctx)
	go sweeper.Run(ctx)
	go dist.Run(ctx)
	go func() {
		if err := metricsServer.Start(ctx); err != nil {
			logger.Printf("metrics server stopped: %v", err)
		}
	}()

	logger.Printf("relayer running (chain A=%s, chain B=%s)", cfg.ChainA.WSURL, cfg.ChainB.WSURL)
	super.Run(ctx, cancel)
	logger.Println("shutdown complete")
}
