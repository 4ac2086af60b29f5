// Package metrics exposes Prometheus counters and gauges for the
// relayer's ingestion, finality and distribution pipelines, served
// over HTTP via promhttp, per spec.md §6.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DepositsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_deposits_ingested_total",
		Help: "Deposits recorded per chain.",
	}, []string{"chain_id"})

	DepositsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_deposits_rejected_total",
		Help: "Deposits rejected as malformed per chain.",
	}, []string{"chain_id"})

	FinalityConfirmed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_finality_confirmed_total",
		Help: "Deposits promoted to finality-confirmed per chain.",
	}, []string{"chain_id"})

	DistributionsSucceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_distributions_succeeded_total",
		Help: "distribute() calls that were mined successfully, per source chain of the deposit.",
	}, []string{"chain_id"})

	DistributionsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_distributions_failed_total",
		Help: "Deposits skipped as invalid or left undelivered after a failed submit, await or reverted receipt, per source chain of the deposit.",
	}, []string{"chain_id"})

	ChainHeadBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bridge_chain_head_block",
		Help: "Last observed head block per chain.",
	}, []string{"chain_id"})

	Paused = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_paused",
		Help: "1 if the relayer is currently paused, 0 otherwise.",
	})
)

// Server serves /metrics and /healthz on its own listener, independent
// of the bridge's own chain RPC endpoints.
type Server struct {
	addr   string
	server *http.Server
}

// NewServer creates a metrics/health server bound to addr. It does not
// start listening until Start is called.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return &Server{
		addr:   addr,
		server: &http.Server{Addr: addr, Handler: mux},
	}
}

// Start runs the server until ctx is cancelled, then shuts it down
// gracefully with a bounded timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
