// Package supervisor owns process lifecycle: translating OS signals
// into graceful shutdown and pause/unpause requests, and coordinating
// the bridge's on-chain paused state with the Distributor's local
// pause flag, per spec.md §4.6.
package supervisor

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/certen/bridge-relayer/pkg/metrics"
)

// Pauser is the capability a Supervisor needs from a chain client to
// submit pause()/unpause() calls.
type Pauser interface {
	SendPause(ctx context.Context) (*types.Transaction, error)
	SendUnpause(ctx context.Context) (*types.Transaction, error)
	Await(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Supervisor coordinates shutdown signals and pause/unpause requests
// across every configured chain. SIGINT/SIGTERM trigger graceful
// shutdown; SIGUSR1 pauses the bridge; SIGUSR2 resumes it.
type Supervisor struct {
	chains map[string]Pauser
	paused int32 // atomic; 1 from the start of Pause, whether or not any chain's pause() succeeds
	logger *log.Logger
}

// New creates a Supervisor over the given chains, keyed by chain_id.
func New(chains map[string]Pauser) *Supervisor {
	return &Supervisor{
		chains: chains,
		logger: log.New(log.Writer(), "[Supervisor] ", log.LstdFlags),
	}
}

// Paused reports the bridge's last-known local pause state. Distributor
// consults this via SetPauseFunc before every delivery sweep.
func (s *Supervisor) Paused() bool {
	return atomic.LoadInt32(&s.paused) == 1
}

// Pause sets the local pause flag immediately, then best-effort submits
// pause() on every chain. The flag is set first so no new distribution
// attempt starts while on-chain calls are still in flight, per spec.md
// §4.6's "pause takes effect for new work immediately" requirement.
func (s *Supervisor) Pause(ctx context.Context) {
	atomic.StoreInt32(&s.paused, 1)
	metrics.Paused.Set(1)
	s.logger.Printf("pausing")
	for chainID, p := range s.chains {
		if err := s.submitAndAwait(ctx, p, "pause"); err != nil {
			s.logger.Printf("failed to pause chain %s: %v", chainID, err)
		}
	}
}

// Unpause submits unpause() on every chain and then clears the local
// pause flag. The flag is cleared last so the Distributor does not
// resume work until every chain has at least been attempted.
func (s *Supervisor) Unpause(ctx context.Context) {
	s.logger.Printf("unpausing")
	for chainID, p := range s.chains {
		if err := s.submitAndAwait(ctx, p, "unpause"); err != nil {
			s.logger.Printf("failed to unpause chain %s: %v", chainID, err)
		}
	}
	atomic.StoreInt32(&s.paused, 0)
	metrics.Paused.Set(0)
}

func (s *Supervisor) submitAndAwait(ctx context.Context, p Pauser, action string) error {
	var (
		tx  *types.Transaction
		err error
	)
	if action == "pause" {
		tx, err = p.SendPause(ctx)
	} else {
		tx, err = p.SendUnpause(ctx)
	}
	if err != nil {
		return err
	}
	_, err = p.Await(ctx, tx)
	return err
}

// Run blocks until ctx is cancelled or a terminating signal arrives,
// handling SIGUSR1/SIGUSR2 as pause/unpause requests in the meantime.
// A terminating signal invokes cancel and returns.
func (s *Supervisor) Run(ctx context.Context, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGUSR1:
				s.Pause(ctx)
			case syscall.SIGUSR2:
				s.Unpause(ctx)
			default:
				s.logger.Printf("received signal %s, shutting down", sig)
				s.Pause(ctx)
				cancel()
				return
			}
		}
	}
}
