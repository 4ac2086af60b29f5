// Package finality periodically promotes deposits to finality-confirmed
// once they sit behind the chain tip by the configured confirmation
// depth, per spec.md §4.4.
package finality

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/certen/bridge-relayer/pkg/metrics"
)

// HeadReader is the capability a Sweeper needs from a chain client.
type HeadReader interface {
	HeadBlock(ctx context.Context) (uint64, error)
}

// Store is the capability a Sweeper needs from the store.
type Store interface {
	BulkConfirmFinality(ctx context.Context, chainID string, horizon uint64) (int64, error)
}

// Chain pairs a chain's identifier with its head-reading client.
type Chain struct {
	ChainID string
	Head    HeadReader
}

// Sweeper confirms finality for deposits on every configured chain once
// they are buried at least Depth blocks deep, on a fixed interval.
type Sweeper struct {
	chains   []Chain
	depth    uint64
	interval time.Duration
	store    Store
	logger   *log.Logger
}

// New creates a Sweeper covering the given chains.
func New(chains []Chain, depth uint64, interval time.Duration, store Store) *Sweeper {
	return &Sweeper{
		chains:   chains,
		depth:    depth,
		interval: interval,
		store:    store,
		logger:   log.New(log.Writer(), "[Sweeper] ", log.LstdFlags),
	}
}

// Run sweeps every configured chain once immediately, then on Interval,
// until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweepAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAll(ctx)
		}
	}
}

func (s *Sweeper) sweepAll(ctx context.Context) {
	for _, c := range s.chains {
		if err := s.sweepChain(ctx, c); err != nil {
			s.logger.Printf("sweep failed for chain %s: %v", c.ChainID, err)
		}
	}
}

func (s *Sweeper) sweepChain(ctx context.Context, c Chain) error {
	head, err := c.Head.HeadBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to read head block: %w", err)
	}
	metrics.ChainHeadBlock.WithLabelValues(c.ChainID).Set(float64(head))
	if head < s.depth {
		// Chain hasn't produced enough blocks yet for any deposit to be
		// confirmable; nothing to do.
		return nil
	}

	horizon := head - s.depth
	confirmed, err := s.store.BulkConfirmFinality(ctx, c.ChainID, horizon)
	if err != nil {
		return fmt.Errorf("failed to confirm finality up to block %d: %w", horizon, err)
	}
	if confirmed > 0 {
		s.logger.Printf("confirmed finality for %d deposit(s) on chain %s up to block %d", confirmed, c.ChainID, horizon)
		metrics.FinalityConfirmed.WithLabelValues(c.ChainID).Add(float64(confirmed))
	}
	return nil
}
