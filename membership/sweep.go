package membership

import (
	"context"
	"log/slog"

	"github.com/warp/frontdesk/core"
)

// Sweeper writes recomputed statuses back to subscriptions whose stored
// status says active but whose dates say expired. Reads never depend on
// it; it only keeps stored status honest for reports and exports.
type Sweeper struct {
	store  core.SubscriptionStore
	clock  core.Clock
	logger *slog.Logger
}

func NewSweeper(store core.SubscriptionStore, clock core.Clock, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, clock: clock, logger: logger}
}

// Run expires overdue subscriptions and returns how many changed.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	now := s.clock.Now()
	n, err := s.store.ExpireOverdue(ctx, core.DateOf(now), now)
	if err != nil {
		s.logger.Error("status sweep failed", "error", err)
		return 0, err
	}
	s.logger.Info("status sweep finished", "expired", n, "today", core.DateOf(now).String())
	return n, nil
}
