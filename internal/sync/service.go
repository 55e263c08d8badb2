// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package sync

import (
	"context"
	"time"

	"github.com/castellan-io/castellan/internal/logging"
)

// Service runs the scheduler as a supervised background loop. It satisfies
// suture.Service.
type Service struct {
	scheduler *Scheduler
	interval  time.Duration
}

// NewService creates the supervised scheduler loop ticking at the given
// interval.
func NewService(scheduler *Scheduler, interval time.Duration) *Service {
	return &Service{scheduler: scheduler, interval: interval}
}

// Serve runs scheduler passes until the context is canceled. The first pass
// happens immediately so a restart doesn't wait a full interval. On
// shutdown, in-flight sync runs are drained before returning.
func (s *Service) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", s.interval).Msg("Sync scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Sync scheduler stopping, draining in-flight runs")
			s.scheduler.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *Service) pass(ctx context.Context) {
	if _, err := s.scheduler.ScheduleDueServers(ctx); err != nil {
		logging.Error().Err(err).Msg("Scheduler pass failed")
	}
}

func (s *Service) String() string {
	return "sync-scheduler"
}
