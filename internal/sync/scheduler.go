// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/castellan-io/castellan/internal/database"
	"github.com/castellan-io/castellan/internal/logging"
	"github.com/castellan-io/castellan/internal/metrics"
)

// ScheduleResult reports one scheduler pass.
type ScheduleResult struct {
	ServersScheduled int `json:"servers_scheduled"`
	TotalActive      int `json:"total_active"`
}

// Scheduler selects due feed servers and dispatches orchestrator runs.
//
// Dispatch is fire-and-forget: each run executes in its own goroutine and
// the scheduler never blocks on completion. A per-server in-flight lease,
// taken with a compare-and-set before dispatch and released when the run
// finishes, prevents two scheduler passes inside one interval window from
// double-dispatching the same server.
type Scheduler struct {
	db           *database.DB
	orchestrator *Orchestrator
	opts         Options

	inFlight gosync.Map
	wg       gosync.WaitGroup

	// now is swappable for tests.
	now func() time.Time
}

// NewScheduler creates a scheduler dispatching runs with the given default
// options.
func NewScheduler(db *database.DB, orchestrator *Orchestrator, opts Options) *Scheduler {
	return &Scheduler{
		db:           db,
		orchestrator: orchestrator,
		opts:         opts,
		now:          time.Now,
	}
}

// ScheduleDueServers runs one scheduler pass: every enabled server whose
// interval has elapsed since its last successful sync (or that has never
// synced) gets a run dispatched, unless one is already in flight.
func (s *Scheduler) ScheduleDueServers(ctx context.Context) (ScheduleResult, error) {
	now := s.now()

	servers, err := s.db.ListEnabledFeedServers(ctx)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("failed to list feed servers: %w", err)
	}

	result := ScheduleResult{TotalActive: len(servers)}

	for i := range servers {
		server := servers[i]
		if !server.Due(now) {
			continue
		}
		if !s.acquire(server.ID) {
			logging.Debug().Str("server", server.Name).Msg("Sync already in flight, skipping dispatch")
			continue
		}

		result.ServersScheduled++
		metrics.SyncRunsScheduled.Inc()
		logging.Info().Str("server", server.Name).Str("server_id", server.ID).Msg("Dispatching sync run")

		s.wg.Add(1)
		go func(serverID string) {
			defer s.wg.Done()
			defer s.release(serverID)
			runCtx := logging.ContextWithNewCorrelationID(context.WithoutCancel(ctx))
			s.orchestrator.Run(runCtx, serverID, s.opts)
		}(server.ID)
	}

	logging.Info().Int("scheduled", result.ServersScheduled).Int("active", result.TotalActive).Msg("Scheduler pass completed")
	return result, nil
}

// Wait blocks until all dispatched runs have finished. Used on shutdown and
// in tests.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// acquire takes the per-server dispatch lease.
func (s *Scheduler) acquire(serverID string) bool {
	_, loaded := s.inFlight.LoadOrStore(serverID, struct{}{})
	return !loaded
}

func (s *Scheduler) release(serverID string) {
	s.inFlight.Delete(serverID)
}
