package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/julienbonastre/order-profit/internal/calculator"
	"github.com/julienbonastre/order-profit/internal/ccapi"
	"github.com/julienbonastre/order-profit/internal/countries"
	"github.com/julienbonastre/order-profit/internal/database"
	"github.com/julienbonastre/order-profit/internal/products"
	"github.com/julienbonastre/order-profit/internal/shipping"
)

const (
	DefaultOrderType    = 1
	DefaultLookbackDays = 1
)

// OrderSource is where dispatched orders and courier rules come from
type OrderSource interface {
	OrdersForDispatch(ctx context.Context, orderType, days int) ([]ccapi.DispatchOrder, error)
	CourierRules(ctx context.Context) ([]ccapi.CourierRule, error)
}

// RunStore records runs and their results
type RunStore interface {
	CreateRun(ctx context.Context, run *database.Run) error
	UpdateRun(ctx context.Context, run *database.Run) error
	CompleteRun(ctx context.Context, run *database.Run, orders []calculator.Order) error
}

// ProgressFunc is called after each order is processed
type ProgressFunc func(done, total int)

// Config holds the dependencies of a Service
type Config struct {
	Source    OrderSource
	Catalog   products.Catalog
	Countries *countries.Reference
	Rules     *shipping.Registry
	// Store is optional; without it runs are not persisted
	Store RunStore
	// Retry configures product fetches
	Retry    products.Options
	Progress ProgressFunc
	Logger   *zap.Logger
}

// Options selects the orders a run processes
type Options struct {
	OrderType    int
	LookbackDays int
}

// Result is the outcome of a run
type Result struct {
	RunID   string             `json:"runId"`
	Orders  []calculator.Order `json:"orders"` // ranked
	Errored int                `json:"errored"`
	Skipped int                `json:"skipped"`
}

// Service processes batches of dispatched orders into ranked profit results
type Service struct {
	cfg    Config
	logger *zap.Logger
}

// NewService creates a new batch service
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = logger
	}
	return &Service{cfg: cfg, logger: logger}
}

// Run fetches the dispatched orders selected by opts, calculates each one
// in fetch order and returns them ranked by profit after VAT
func (s *Service) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.OrderType == 0 {
		opts.OrderType = DefaultOrderType
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = DefaultLookbackDays
	}

	run := &database.Run{
		ID:           uuid.NewString(),
		OrderType:    opts.OrderType,
		LookbackDays: opts.LookbackDays,
		Status:       database.StatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	logger := s.logger.With(zap.String("run_id", run.ID))

	if s.cfg.Store != nil {
		if err := s.cfg.Store.CreateRun(ctx, run); err != nil {
			return nil, err
		}
	}

	result, err := s.process(ctx, logger, run.ID, opts)
	now := time.Now().UTC()
	run.CompletedAt = &now
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		run.Status = database.StatusFailed
		run.ErrorMessage = err.Error()
		if s.cfg.Store != nil {
			if storeErr := s.cfg.Store.UpdateRun(context.WithoutCancel(ctx), run); storeErr != nil {
				logger.Error("failed to record failed run", zap.Error(storeErr))
			}
		}
		return nil, err
	}

	run.Status = database.StatusSuccess
	run.OrdersTotal = len(result.Orders)
	run.OrdersErrored = result.Errored
	run.OrdersSkipped = result.Skipped
	if s.cfg.Store != nil {
		if err := s.cfg.Store.CompleteRun(ctx, run, result.Orders); err != nil {
			return nil, fmt.Errorf("failed to save run %s: %w", run.ID, err)
		}
	}

	logger.Info("run complete",
		zap.Int("orders", run.OrdersTotal),
		zap.Int("errored", run.OrdersErrored),
		zap.Int("skipped", run.OrdersSkipped),
		zap.Duration("elapsed", now.Sub(run.StartedAt)))
	return result, nil
}

func (s *Service) process(ctx context.Context, logger *zap.Logger, runID string, opts Options) (*Result, error) {
	courierRules, err := s.cfg.Source.CourierRules(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := s.cfg.Source.OrdersForDispatch(ctx, opts.OrderType, opts.LookbackDays)
	if err != nil {
		return nil, err
	}
	orders := FilterResends(raw)
	logger.Info("processing orders",
		zap.Int("fetched", len(raw)),
		zap.Int("orders", len(orders)),
		zap.Int("courier_rules", len(courierRules)))

	calc := calculator.NewCalculator(calculator.Deps{
		Countries:    s.cfg.Countries,
		Rules:        s.cfg.Rules,
		Products:     products.NewResolver(s.cfg.Catalog, s.cfg.Retry),
		CourierRules: courierRules,
		Logger:       logger,
	})

	result := &Result{
		RunID:   runID,
		Orders:  make([]calculator.Order, 0, len(orders)),
		Skipped: len(raw) - len(orders),
	}
	for i, o := range orders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		order := calc.Calculate(ctx, o)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if order.Errored() {
			result.Errored++
		}
		result.Orders = append(result.Orders, order)
		if s.cfg.Progress != nil {
			s.cfg.Progress(i+1, len(orders))
		}
	}

	calculator.Rank(result.Orders)
	return result, nil
}

// FilterResends drops orders with no gross value. Those are resends
// of earlier orders and carry no revenue.
func FilterResends(orders []ccapi.DispatchOrder) []ccapi.DispatchOrder {
	kept := make([]ccapi.DispatchOrder, 0, len(orders))
	for _, o := range orders {
		if o.TotalGrossGBP.IsPositive() {
			kept = append(kept, o)
		}
	}
	return kept
}
