// Package distributor submits distribute() transactions on the
// destination chain for deposits that have cleared finality, with
// double-spend protection and bounded retries, per spec.md §4.5.
package distributor

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/certen/bridge-relayer/pkg/metrics"
	"github.com/certen/bridge-relayer/pkg/store"
)

// maxAttempts and retryDelay implement spec.md §4.5's literal "3
// attempts, 5 seconds apart" retry policy. This is deliberately not
// exponential backoff: the spec fixes both the count and the spacing,
// so a small local loop expresses it more directly than a generic
// backoff policy would.
const maxAttempts = 3

// retryDelay is a var, not a const, so tests can shrink it.
var retryDelay = 5 * time.Second

// Sender is the capability a Distributor needs from a destination
// chain's client.
type Sender interface {
	CallProcessedDeposits(ctx context.Context, nonce *big.Int) (bool, error)
	SendDistribute(ctx context.Context, token, to common.Address, amount, nonce *big.Int) (*types.Transaction, error)
	Await(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// DepositStore is the capability a Distributor needs from the store.
type DepositStore interface {
	ListDeliverable(ctx context.Context) ([]store.Deposit, error)
	MarkDelivered(ctx context.Context, depositID uuid.UUID) error
}

// Route binds a deposit's origin chain to the opposite chain's Sender
// and the two chains' configured token addresses, per spec.md §4.5b/c:
// SourceToken is what a deposit on this route's origin chain must carry
// to be in-spec; TargetToken is what gets distributed on the opposite
// chain, which is not necessarily the same address.
type Route struct {
	Sender      Sender
	SourceToken common.Address
	TargetToken common.Address
}

// Distributor delivers finality-confirmed deposits to their
// destination chain. routes maps a deposit's origin chain_id to the
// Route describing the OTHER chain, since a deposit recorded on chain A
// is distributed on chain B and vice versa.
type Distributor struct {
	routes   map[string]Route
	interval time.Duration
	store    DepositStore
	logger   *log.Logger
	paused   func() bool
}

// New creates a Distributor. routes keys are the origin chain_id of a
// deposit; each value describes the chain that deposit should be
// distributed to.
func New(routes map[string]Route, interval time.Duration, depositStore DepositStore) *Distributor {
	return &Distributor{
		routes:   routes,
		interval: interval,
		store:    depositStore,
		logger:   log.New(log.Writer(), "[Distributor] ", log.LstdFlags),
		paused:   func() bool { return false },
	}
}

// SetPauseFunc installs a callback consulted before every sweep; while
// it returns true the Distributor skips distribution entirely, per
// spec.md §4.6's pause lifecycle.
func (d *Distributor) SetPauseFunc(f func() bool) {
	d.paused = f
}

// Run polls for deliverable deposits and distributes them on Interval,
// until ctx is cancelled.
func (d *Distributor) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Distributor) sweep(ctx context.Context) {
	if d.paused() {
		return
	}
	deposits, err := d.store.ListDeliverable(ctx)
	if err != nil {
		d.logger.Printf("failed to list deliverable deposits: %v", err)
		return
	}
	for _, dep := range deposits {
		if ctx.Err() != nil {
			return
		}
		d.deliver(ctx, dep)
	}
}

func (d *Distributor) deliver(ctx context.Context, dep store.Deposit) {
	route, ok := d.routes[dep.ChainID]
	if !ok {
		d.logger.Printf("unknown source chain %s, skipping deposit %s", dep.ChainID, dep.DepositID)
		metrics.DistributionsFailed.WithLabelValues(dep.ChainID).Inc()
		return
	}

	// 4.5c: the deposit's token must be this route's configured source
	// token; anything else is out-of-spec and left unresolved.
	if !addressesEqual(dep.TokenAddress, route.SourceToken) {
		d.logger.Printf("deposit %s token %s does not match configured source token %s, skipping",
			dep.DepositID, dep.TokenAddress, route.SourceToken.Hex())
		metrics.DistributionsFailed.WithLabelValues(dep.ChainID).Inc()
		return
	}

	amount, ok := new(big.Int).SetString(dep.Amount, 10)
	if !ok {
		d.logger.Printf("deposit %s has unparseable amount %q, skipping", dep.DepositID, dep.Amount)
		metrics.DistributionsFailed.WithLabelValues(dep.ChainID).Inc()
		return
	}
	nonce, ok := new(big.Int).SetString(dep.Nonce, 10)
	if !ok {
		d.logger.Printf("deposit %s has unparseable nonce %q, skipping", dep.DepositID, dep.Nonce)
		metrics.DistributionsFailed.WithLabelValues(dep.ChainID).Inc()
		return
	}

	// A failed processedDeposits read is treated as "already processed":
	// submitting blind risks a double spend, so the record is marked
	// delivered without submitting and is not re-checked on later sweeps.
	already, err := route.Sender.CallProcessedDeposits(ctx, nonce)
	if err != nil {
		d.logger.Printf("failed to check processedDeposits for deposit %s, marking delivered: %v", dep.DepositID, err)
		if err := d.store.MarkDelivered(ctx, dep.DepositID); err != nil {
			d.logger.Printf("failed to mark deposit %s delivered after read failure: %v", dep.DepositID, err)
		}
		return
	}
	if already {
		// Already delivered on-chain, possibly by a prior crashed attempt
		// whose local MarkDelivered never ran. Reconcile the local record
		// without resubmitting, per spec.md §4.5's double-spend guard.
		if err := d.store.MarkDelivered(ctx, dep.DepositID); err != nil {
			d.logger.Printf("failed to mark already-processed deposit %s delivered: %v", dep.DepositID, err)
		}
		return
	}

	to := common.HexToAddress(dep.ToAddress)
	tx, err := d.sendWithRetry(ctx, route.Sender, route.TargetToken, to, amount, nonce, dep.DepositID)
	if err != nil {
		// Submission never succeeded; leave the record for the next tick.
		d.logger.Printf("failed to submit distribute for deposit %s after %d attempts: %v", dep.DepositID, maxAttempts, err)
		metrics.DistributionsFailed.WithLabelValues(dep.ChainID).Inc()
		return
	}

	receipt, err := route.Sender.Await(ctx, tx)
	if err != nil {
		// 4.5g: any await error is logged and the record is left for the
		// next tick; it is NOT resubmitted, since the transaction may yet
		// land.
		d.logger.Printf("failed to await distribute receipt for deposit %s: %v", dep.DepositID, err)
		metrics.DistributionsFailed.WithLabelValues(dep.ChainID).Inc()
		return
	}
	if receipt == nil || receipt.Status != types.ReceiptStatusSuccessful {
		// 4.5f: reverted or missing receipt, left for the next tick.
		d.logger.Printf("distribute for deposit %s reverted or produced no receipt, leaving for next tick", dep.DepositID)
		metrics.DistributionsFailed.WithLabelValues(dep.ChainID).Inc()
		return
	}

	if err := d.store.MarkDelivered(ctx, dep.DepositID); err != nil {
		d.logger.Printf("distributed deposit %s but failed to mark it delivered: %v", dep.DepositID, err)
		return
	}
	metrics.DistributionsSucceeded.WithLabelValues(dep.ChainID).Inc()
}

// sendWithRetry submits distribute() with up to maxAttempts tries spaced
// retryDelay apart, per spec.md §4.5e/§7. Retrying only covers submission
// failures (transport errors); awaiting the mined receipt happens exactly
// once per successful submission, by the caller.
func (d *Distributor) sendWithRetry(ctx context.Context, dest Sender, token, to common.Address, amount, nonce *big.Int, depositID uuid.UUID) (*types.Transaction, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tx, err := dest.SendDistribute(ctx, token, to, amount, nonce)
		if err == nil {
			return tx, nil
		}
		lastErr = err
		d.logger.Printf("distribute submission attempt %d/%d for deposit %s failed: %v", attempt, maxAttempts, depositID, err)

		if attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("exhausted submission retries: %w", lastErr)
}

// addressesEqual compares a hex address string against a common.Address,
// case-insensitively, since hex-encoded addresses may or may not be
// checksum-cased depending on their source.
func addressesEqual(hexAddr string, addr common.Address) bool {
	return common.HexToAddress(hexAddr) == addr
}
