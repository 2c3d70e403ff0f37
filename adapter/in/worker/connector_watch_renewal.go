// Package worker hosts the background schedulers.
package worker

import (
	"context"
	"time"

	"github.com/rish231294/pipeshub-ai/core/service/sync"
	"github.com/rish231294/pipeshub-ai/pkg/logger"
)

// =============================================================================
// WatchRenewScheduler
// =============================================================================
//
// Provider change watches expire (Gmail after 7 days, Drive channels after
// their registered TTL). The scheduler re-registers any channel expiring
// inside the renewal window before it lapses.

const (
	defaultCheckInterval = 1 * time.Hour
	defaultRenewalWindow = 24 * time.Hour
)

type WatchRenewScheduler struct {
	orchestrator  *sync.Orchestrator
	checkInterval time.Duration
	renewalWindow time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWatchRenewScheduler creates a new watch renew scheduler.
func NewWatchRenewScheduler(orchestrator *sync.Orchestrator) *WatchRenewScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &WatchRenewScheduler{
		orchestrator:  orchestrator,
		checkInterval: defaultCheckInterval,
		renewalWindow: defaultRenewalWindow,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start starts the watch renew scheduler.
func (s *WatchRenewScheduler) Start() {
	logger.Info("[WatchRenewScheduler] Starting with interval %v, window %v", s.checkInterval, s.renewalWindow)
	go s.run()
}

// Stop stops the watch renew scheduler.
func (s *WatchRenewScheduler) Stop() {
	logger.Info("[WatchRenewScheduler] Stopping...")
	s.cancel()
}

// run is the main loop that checks for expiring watches.
func (s *WatchRenewScheduler) run() {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	// Check once immediately on startup
	s.renewExpiringWatches()

	for {
		select {
		case <-s.ctx.Done():
			logger.Info("[WatchRenewScheduler] Stopped")
			return
		case <-ticker.C:
			s.renewExpiringWatches()
		}
	}
}

// renewExpiringWatches renews watches that are about to expire.
func (s *WatchRenewScheduler) renewExpiringWatches() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	renewed, err := s.orchestrator.RenewExpiringWatches(ctx, s.renewalWindow)
	if err != nil {
		logger.Error("[WatchRenewScheduler] Failed to renew watches: %v", err)
		return
	}
	if renewed > 0 {
		logger.Info("[WatchRenewScheduler] Renewed %d watches", renewed)
	}
}

// SetCheckInterval sets the check interval (for testing).
func (s *WatchRenewScheduler) SetCheckInterval(interval time.Duration) {
	s.checkInterval = interval
}
