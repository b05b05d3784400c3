package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/quantbt-lab/quantbt/internal/backtest/broker"
	"github.com/quantbt-lab/quantbt/internal/backtest/engine"
	"github.com/quantbt-lab/quantbt/internal/backtest/feed"
	"github.com/quantbt-lab/quantbt/internal/backtest/store"
	"github.com/quantbt-lab/quantbt/internal/logger"
	"github.com/quantbt-lab/quantbt/internal/strategy"
	"github.com/quantbt-lab/quantbt/internal/types"
	"github.com/quantbt-lab/quantbt/pkg/errors"
)

// DefaultMaxConcurrentRuns bounds the worker pool when the config leaves it
// unset.
const DefaultMaxConcurrentRuns = 4

// Config parameterizes the service.
type Config struct {
	// MaxConcurrentRuns bounds how many backtests execute at once; further
	// submissions queue.
	MaxConcurrentRuns int64 `yaml:"max_concurrent_runs" json:"max_concurrent_runs"`
	// RunTimeout is the per-run wall-clock budget; zero disables it.
	RunTimeout time.Duration `yaml:"run_timeout" json:"run_timeout"`
}

// FeedResolver turns a request's symbol-to-file mapping into feeds.
type FeedResolver interface {
	Resolve(ctx context.Context, data map[string]string) (map[string]feed.Feed, error)
}

// SubmitRequest describes one backtest submission.
type SubmitRequest struct {
	StrategyID string         `yaml:"strategy_id" json:"strategy_id" validate:"required"`
	Params     map[string]any `yaml:"params" json:"params"`
	// Data maps each symbol to its bar file (CSV or Parquet).
	Data      map[string]string `yaml:"data" json:"data" validate:"required,min=1"`
	StartTime time.Time         `yaml:"start_time" json:"start_time" validate:"required"`
	EndTime   time.Time         `yaml:"end_time" json:"end_time" validate:"required"`

	Broker broker.Config `yaml:"broker" json:"broker"`

	BarsPerYear  float64 `yaml:"bars_per_year" json:"bars_per_year" validate:"gte=0"`
	RiskFreeRate float64 `yaml:"risk_free_rate" json:"risk_free_rate"`
}

// Service runs backtests asynchronously: Submit validates the request and
// returns a task ID immediately; execution happens out-of-band on a bounded
// worker pool, and terminal results land in the store.
type Service struct {
	cfg      Config
	registry *strategy.Registry
	resolver FeedResolver
	store    store.Store
	logger   *logger.Logger

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu       sync.RWMutex
	statuses map[string]types.RunStatus
	cancels  map[string]context.CancelFunc
}

// NewService wires a service from its collaborators.
func NewService(cfg Config, registry *strategy.Registry, resolver FeedResolver, st store.Store, log *logger.Logger) *Service {
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = DefaultMaxConcurrentRuns
	}

	return &Service{
		cfg:      cfg,
		registry: registry,
		resolver: resolver,
		store:    st,
		logger:   log,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentRuns),
		statuses: make(map[string]types.RunStatus),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Submit validates the request, assigns a task ID, and schedules the run. It
// returns as soon as the task is queued; progress is observable through
// Status and Result.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := validator.New().Struct(&req); err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidSubmission, "invalid backtest submission", err)
	}

	if !req.EndTime.After(req.StartTime) {
		return "", errors.Newf(errors.ErrCodeInvalidDateRange,
			"end time %s is not after start time %s", req.EndTime, req.StartTime)
	}

	reg, err := s.registry.Resolve(req.StrategyID)
	if err != nil {
		return "", err
	}

	taskID := uuid.New().String()

	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.statuses[taskID] = types.RunStatusPending
	s.cancels[taskID] = cancel
	s.mu.Unlock()

	s.logger.Info("Backtest submitted",
		zap.String("task_id", taskID),
		zap.String("strategy", req.StrategyID),
	)

	s.wg.Add(1)
	go s.run(runCtx, taskID, req, reg)

	return taskID, nil
}

func (s *Service) run(ctx context.Context, taskID string, req SubmitRequest, reg strategy.Registration) {
	defer s.wg.Done()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.finish(taskID, canceledResult(taskID, req))
		return
	}
	defer s.sem.Release(1)

	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	strat := reg.Factory()
	if err := strat.Initialize(req.Params); err != nil {
		s.finish(taskID, failedResult(taskID, req, err))
		return
	}

	feeds, err := s.resolver.Resolve(ctx, req.Data)
	if err != nil {
		s.finish(taskID, failedResult(taskID, req, err))
		return
	}

	s.setStatus(taskID, types.RunStatusRunning)

	runner := engine.NewRunner(engine.RunConfig{
		RunID:        taskID,
		StrategyID:   req.StrategyID,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Broker:       req.Broker,
		BarsPerYear:  req.BarsPerYear,
		RiskFreeRate: req.RiskFreeRate,
	}, strat, feeds, s.logger)

	s.finish(taskID, runner.Run(ctx))
}

func (s *Service) finish(taskID string, result *types.BacktestResult) {
	if err := s.store.Put(context.Background(), taskID, result); err != nil {
		s.logger.Error("Failed to store backtest result",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
	}

	s.mu.Lock()
	s.statuses[taskID] = result.Status
	delete(s.cancels, taskID)
	s.mu.Unlock()
}

func (s *Service) setStatus(taskID string, status types.RunStatus) {
	s.mu.Lock()
	s.statuses[taskID] = status
	s.mu.Unlock()
}

// Status returns the current lifecycle state of a task.
func (s *Service) Status(taskID string) (types.RunStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.statuses[taskID]
	if !ok {
		return "", errors.Newf(errors.ErrCodeRunNotFound, "unknown task: %s", taskID)
	}

	return status, nil
}

// Result returns the stored result of a terminal task. A task that is still
// pending or running yields an incomplete-result error.
func (s *Service) Result(ctx context.Context, taskID string) (*types.BacktestResult, error) {
	status, err := s.Status(taskID)
	if err != nil {
		return nil, err
	}

	if !status.IsTerminal() {
		return nil, errors.Newf(errors.ErrCodeResultIncomplete, "task %s is still %s", taskID, status)
	}

	return s.store.Get(ctx, taskID)
}

// Cancel requests cooperative cancellation of a queued or running task.
// Canceling a terminal task is a no-op.
func (s *Service) Cancel(taskID string) error {
	s.mu.RLock()
	cancel, ok := s.cancels[taskID]
	_, known := s.statuses[taskID]
	s.mu.RUnlock()

	if !known {
		return errors.Newf(errors.ErrCodeRunNotFound, "unknown task: %s", taskID)
	}

	if ok {
		cancel()
	}

	return nil
}

// Strategies returns the catalog of registered strategies.
func (s *Service) Strategies() []strategy.Registration {
	return s.registry.List()
}

// Wait blocks until every scheduled run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func failedResult(taskID string, req SubmitRequest, err error) *types.BacktestResult {
	return &types.BacktestResult{
		RunID:       taskID,
		Status:      types.RunStatusFailed,
		StrategyID:  req.StrategyID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		InitialCash: req.Broker.InitialCash,
		Error:       err.Error(),
	}
}

func canceledResult(taskID string, req SubmitRequest) *types.BacktestResult {
	return &types.BacktestResult{
		RunID:       taskID,
		Status:      types.RunStatusCanceled,
		StrategyID:  req.StrategyID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		InitialCash: req.Broker.InitialCash,
	}
}
