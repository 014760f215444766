// Package scheduler runs background maintenance: periodic relay health
// checks and expired-row cleanup, both driven by simple tickers.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/swapnilraj/atomic-bundler/internal/metrics"
	"github.com/swapnilraj/atomic-bundler/internal/relay"
	"github.com/swapnilraj/atomic-bundler/internal/storage"
)

const (
	healthCheckInterval = 30 * time.Second
	cleanupInterval     = 1 * time.Hour
	bundleRetention     = 7 * 24 * time.Hour
)

// RelayLister supplies the current set of relay clients, so the
// scheduler keeps pace with config reloads without owning the list.
type RelayLister func() []*relay.Client

// Scheduler owns the background tickers. Start returns immediately;
// the goroutines stop when ctx is canceled.
type Scheduler struct {
	relays  RelayLister
	store   *storage.Store
	metrics *metrics.Collectors
	log     zerolog.Logger

	healthStatus sync.Map // relay name -> bool (healthy)
}

func New(relays RelayLister, store *storage.Store, collectors *metrics.Collectors, log zerolog.Logger) *Scheduler {
	return &Scheduler{relays: relays, store: store, metrics: collectors, log: log}
}

// IsHealthy reports the last observed health-check result for a relay,
// defaulting to true until the first check completes.
func (s *Scheduler) IsHealthy(relayName string) bool {
	v, ok := s.healthStatus.Load(relayName)
	if !ok {
		return true
	}
	return v.(bool)
}

// Start launches the health-check and cleanup loops in background
// goroutines and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	go s.runHealthChecks(ctx)
	go s.runCleanup(ctx)
}

func (s *Scheduler) runHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAllRelays(ctx)
		}
	}
}

func (s *Scheduler) checkAllRelays(ctx context.Context) {
	for _, rc := range s.relays() {
		latency, err := rc.HealthCheck(ctx)
		healthy := err == nil
		s.healthStatus.Store(rc.Name, healthy)
		if healthy {
			s.metrics.RelayHealthLatency.WithLabelValues(rc.Name).Set(latency.Seconds())
		} else {
			s.log.Warn().Str("relay", rc.Name).Err(err).Msg("relay health check failed")
		}
	}
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupOnce(ctx)
		}
	}
}

func (s *Scheduler) cleanupOnce(ctx context.Context) {
	if s.store == nil {
		return
	}
	cutoff := time.Now().UTC().Add(-bundleRetention)
	n, err := s.store.DeleteBundlesOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Warn().Err(err).Msg("bundle cleanup failed")
		return
	}
	if n > 0 {
		s.log.Info().Int64("deleted", n).Msg("cleaned up expired bundle rows")
	}
}
