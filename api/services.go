package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/warp/frontdesk/access"
	"github.com/warp/frontdesk/core"
	"github.com/warp/frontdesk/factory"
	"github.com/warp/frontdesk/inventory"
	"github.com/warp/frontdesk/membership"
	"github.com/warp/frontdesk/metrics"
	"github.com/warp/frontdesk/payments"
	"github.com/warp/frontdesk/reports"
	"github.com/warp/frontdesk/rewards"
	"github.com/warp/frontdesk/shifts"
)

// Options are the business rules the engines are built with.
type Options struct {
	DuplicateWindow   time.Duration
	MorningCutoffHour int
	ExpiringDays      int
	PlanCacheSize     int
}

// Services is every engine the HTTP layer and the CLI commands call.
// All of them share one store and one clock.
type Services struct {
	Store        core.Store
	Clock        core.Clock
	Plans        *membership.PlanCache
	Resolver     *membership.Resolver
	Visits       *membership.VisitLedger
	Directory    *membership.Directory
	Sweeper      *membership.Sweeper
	Access       *access.Engine
	Payments     *payments.Reconciler
	Catalog      *inventory.Catalog
	Shifts       *shifts.Reconciler
	Reports      *reports.Service
	Rewards      *rewards.Service
	Factory      *factory.PlanFactory
	ExpiringDays int
}

// NewServices builds the engines over store. notifier may be nil.
func NewServices(store core.Store, clock core.Clock, opts Options, logger *slog.Logger, m *metrics.Metrics, notifier shifts.Notifier) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ExpiringDays < 0 {
		opts.ExpiringDays = membership.DefaultExpiringDays
	}

	plans, err := membership.NewPlanCache(store, opts.PlanCacheSize)
	if err != nil {
		return nil, err
	}
	resolver := membership.NewResolver(store, plans, clock)

	return &Services{
		Store:        store,
		Clock:        clock,
		Plans:        plans,
		Resolver:     resolver,
		Visits:       membership.NewVisitLedger(store),
		Directory:    membership.NewDirectory(store, clock, logger.With("component", "members")),
		Sweeper:      membership.NewSweeper(store, clock, logger.With("component", "sweeper")),
		Access:       access.NewEngine(store, resolver, clock, logger.With("component", "access"), m),
		Payments:     payments.NewReconciler(store, plans, clock, logger.With("component", "payments"), m, opts.DuplicateWindow),
		Catalog:      inventory.NewCatalog(store, logger.With("component", "inventory")),
		Shifts:       shifts.NewReconciler(store, clock, logger.With("component", "shifts"), m, notifier, opts.MorningCutoffHour),
		Reports:      reports.NewService(store, resolver, clock, opts.ExpiringDays),
		Rewards:      rewards.NewService(store, clock),
		Factory:      factory.NewPlanFactory(),
		ExpiringDays: opts.ExpiringDays,
	}, nil
}

// SeedPlans parses a plan catalog and upserts every plan in it. Nothing is
// stored when any entry is invalid.
func (s *Services) SeedPlans(ctx context.Context, data []byte, format factory.Format) ([]factory.Result, error) {
	results, err := s.Factory.ParseCatalog(data, format)
	if err != nil {
		return nil, err
	}
	err = core.RunInTx(ctx, s.Store, func(st core.Store) error {
		for _, res := range results {
			if err := st.CreatePlan(ctx, res.Plan); err != nil {
				return fmt.Errorf("plan %s: %w", res.Plan.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		s.Plans.Forget(res.Plan.ID)
	}
	return results, nil
}
