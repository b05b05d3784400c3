package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantbt-lab/quantbt/internal/backtest/broker"
	"github.com/quantbt-lab/quantbt/internal/backtest/feed"
	"github.com/quantbt-lab/quantbt/internal/backtest/metrics"
	"github.com/quantbt-lab/quantbt/internal/backtest/record"
	"github.com/quantbt-lab/quantbt/internal/indicator"
	"github.com/quantbt-lab/quantbt/internal/logger"
	"github.com/quantbt-lab/quantbt/internal/strategy"
	"github.com/quantbt-lab/quantbt/internal/types"
	"github.com/quantbt-lab/quantbt/pkg/errors"
)

// DefaultLookback is the per-symbol bar history capacity handed to
// strategies when the config leaves it unset.
const DefaultLookback = 512

// RunConfig describes one backtest run.
type RunConfig struct {
	RunID      string    `yaml:"run_id" json:"run_id"`
	StrategyID string    `yaml:"strategy_id" json:"strategy_id"`
	StartTime  time.Time `yaml:"start_time" json:"start_time" validate:"required"`
	EndTime    time.Time `yaml:"end_time" json:"end_time" validate:"required"`

	Broker broker.Config `yaml:"broker" json:"broker"`

	// BarsPerYear is the annualization factor; 252 when unset.
	BarsPerYear float64 `yaml:"bars_per_year" json:"bars_per_year" validate:"gte=0"`
	// RiskFreeRate is the annual risk-free rate used by Sharpe and Sortino;
	// it is divided by BarsPerYear before the per-bar excess returns are taken.
	RiskFreeRate float64 `yaml:"risk_free_rate" json:"risk_free_rate"`
	// Lookback is the per-symbol bar history capacity; 512 when unset.
	Lookback int `yaml:"lookback" json:"lookback" validate:"gte=0"`
}

// Runner executes one backtest: it drives all feeds in timestamp lock-step,
// submits the strategy's intents to the execution simulator, records equity
// and trades, and reduces them to metrics. A Runner is single-use.
type Runner struct {
	cfg        RunConfig
	strat      strategy.Strategy
	feeds      map[string]feed.Feed
	logger     *logger.Logger
	onProgress func(done, total int)
}

// NewRunner creates a runner over the given feeds, keyed by symbol.
func NewRunner(cfg RunConfig, strat strategy.Strategy, feeds map[string]feed.Feed, log *logger.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		strat:  strat,
		feeds:  feeds,
		logger: log,
	}
}

// OnProgress registers an optional per-bar progress callback.
func (r *Runner) OnProgress(fn func(done, total int)) {
	r.onProgress = fn
}

// Run executes the backtest. It always returns a result; the run lifecycle is
// Pending -> Running -> {Completed, Failed, Canceled} and the returned result
// carries the terminal status. Pre-run validation failures produce a Failed
// result with zero bars processed. Cancellation is cooperative and only
// observed between bars; partial equity and trade data survive both failure
// and cancellation.
func (r *Runner) Run(ctx context.Context) *types.BacktestResult {
	runID := r.cfg.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	result := &types.BacktestResult{
		RunID:       runID,
		Status:      types.RunStatusPending,
		StrategyID:  r.cfg.StrategyID,
		StartTime:   r.cfg.StartTime,
		EndTime:     r.cfg.EndTime,
		InitialCash: r.cfg.Broker.InitialCash,
	}

	symbols := r.sortedSymbols()
	result.Symbols = symbols

	if err := r.validate(symbols); err != nil {
		return fail(result, err)
	}

	sim, err := broker.NewSimulator(r.cfg.Broker, symbols, r.logger)
	if err != nil {
		return fail(result, err)
	}

	recorder := record.NewRecorder()
	sim.OnFill(recorder.OnFill)
	sim.OnTradeClosed(recorder.OnTradeClosed)

	lookback := r.cfg.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	history := make(map[string]*indicator.BarSeries, len(symbols))
	for _, symbol := range symbols {
		series, err := indicator.NewBarSeries(lookback)
		if err != nil {
			return fail(result, err)
		}

		history[symbol] = series
	}

	steps := r.timeline(symbols)
	if len(steps) == 0 {
		return fail(result, errors.Newf(errors.ErrCodeRangeOutsideSpan,
			"no bars between %s and %s", r.cfg.StartTime, r.cfg.EndTime))
	}

	result.Status = types.RunStatusRunning
	r.logger.Info("Backtest started",
		zap.String("run_id", runID),
		zap.String("strategy", r.cfg.StrategyID),
		zap.Strings("symbols", symbols),
		zap.Int("bars", len(steps)),
	)

	lastClose := make(map[string]float64, len(symbols))
	canceled := false

	var runErr error

	for barIndex, step := range steps {
		if ctx.Err() != nil {
			canceled = true
			break
		}

		for _, symbol := range symbols {
			bar, ok := step.bars[symbol]
			if !ok {
				continue
			}

			history[symbol].Push(bar)
			lastClose[symbol] = bar.Close
		}

		bctx := &strategy.Context{
			Time:      step.time,
			BarIndex:  barIndex,
			Symbols:   symbols,
			Bars:      history,
			Current:   step.bars,
			Portfolio: sim,
			Logger:    r.logger,
		}

		intents, err := r.callStrategy(ctx, bctx)
		if err != nil {
			runErr = errors.Wrapf(errors.ErrCodeStrategyRuntimeError, err,
				"strategy failed at bar %d (%s)", barIndex, step.time)
			break
		}

		for _, intent := range intents {
			sim.Submit(intent, barIndex, step.time)
		}

		sim.ProcessBar(step.bars, barIndex)

		recorder.OnBarClose(step.time, sim.Cash(), positionValue(sim, lastClose))

		if r.onProgress != nil {
			r.onProgress(barIndex+1, len(steps))
		}
	}

	sim.CancelOpen()

	result.EquityCurve = recorder.EquityCurve()
	result.Trades = recorder.Trades()
	result.Warnings = sim.Warnings()
	result.BarsProcessed = recorder.Bars()
	result.DrawdownCurve = metrics.DrawdownCurve(result.EquityCurve)

	if len(result.EquityCurve) > 0 {
		result.FinalEquity = result.EquityCurve[len(result.EquityCurve)-1].Equity
	}

	result.Metrics = metrics.Compute(metrics.Input{
		EquityCurve:     result.EquityCurve,
		Trades:          result.Trades,
		InitialCash:     r.cfg.Broker.InitialCash,
		BarsPerYear:     r.cfg.BarsPerYear,
		RiskFreeRate:    r.cfg.RiskFreeRate,
		TotalCommission: recorder.TotalCommission(),
	})

	switch {
	case runErr != nil:
		result.Status = types.RunStatusFailed
		result.Error = runErr.Error()
	case canceled:
		result.Status = types.RunStatusCanceled
	default:
		result.Status = types.RunStatusCompleted

		finishCtx := &strategy.Context{
			Time:      r.cfg.EndTime,
			BarIndex:  len(steps) - 1,
			Symbols:   symbols,
			Bars:      history,
			Portfolio: sim,
			Logger:    r.logger,
		}
		r.strat.OnFinish(finishCtx)
	}

	r.logger.Info("Backtest finished",
		zap.String("run_id", runID),
		zap.String("status", string(result.Status)),
		zap.Int("bars", result.BarsProcessed),
		zap.Int("trades", len(result.Trades)),
		zap.Float64("final_equity", result.FinalEquity),
	)

	return result
}

// callStrategy invokes OnBar with panic recovery so a strategy bug fails the
// run at the bar boundary instead of crashing the process.
func (r *Runner) callStrategy(ctx context.Context, bctx *strategy.Context) (intents []types.OrderIntent, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Newf(errors.ErrCodeStrategyRuntimeError, "strategy panic: %v", rec)
		}
	}()

	return r.strat.OnBar(ctx, bctx)
}

func (r *Runner) validate(symbols []string) error {
	if r.strat == nil {
		return errors.New(errors.ErrCodeInvalidConfig, "no strategy configured")
	}

	if len(symbols) == 0 {
		return errors.New(errors.ErrCodeDataNotFound, "no feeds configured")
	}

	if err := validator.New().Struct(&r.cfg); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, "invalid run config", err)
	}

	if !r.cfg.EndTime.After(r.cfg.StartTime) {
		return errors.Newf(errors.ErrCodeInvalidDateRange,
			"end time %s is not after start time %s", r.cfg.EndTime, r.cfg.StartTime)
	}

	if r.cfg.Broker.InitialCash <= 0 {
		return errors.Newf(errors.ErrCodeInvalidCash,
			"initial cash must be positive, got %f", r.cfg.Broker.InitialCash)
	}

	inSpan := false
	for _, symbol := range symbols {
		first, last := r.feeds[symbol].Span()
		if !r.cfg.EndTime.Before(first) && !r.cfg.StartTime.After(last) {
			inSpan = true
			break
		}
	}

	if !inSpan {
		return errors.Newf(errors.ErrCodeRangeOutsideSpan,
			"requested range %s..%s is outside every feed span", r.cfg.StartTime, r.cfg.EndTime)
	}

	return nil
}

func (r *Runner) sortedSymbols() []string {
	symbols := make([]string, 0, len(r.feeds))
	for symbol := range r.feeds {
		symbols = append(symbols, symbol)
	}

	sort.Strings(symbols)

	return symbols
}

// step is one lock-step iteration: all bars sharing one timestamp.
type step struct {
	time time.Time
	bars map[string]types.Bar
}

// timeline merges every feed's bars in the configured range into the sorted
// union of their timestamps. An instrument without a bar at a given
// timestamp is simply absent from that step.
func (r *Runner) timeline(symbols []string) []step {
	perSymbol := make(map[string][]types.Bar, len(symbols))
	cursors := make(map[string]int, len(symbols))

	for _, symbol := range symbols {
		perSymbol[symbol] = r.feeds[symbol].Bars(r.cfg.StartTime, r.cfg.EndTime)
	}

	var steps []step

	for {
		var next time.Time

		found := false
		for _, symbol := range symbols {
			bars := perSymbol[symbol]
			i := cursors[symbol]
			if i >= len(bars) {
				continue
			}

			if !found || bars[i].Time.Before(next) {
				next = bars[i].Time
				found = true
			}
		}

		if !found {
			break
		}

		current := step{time: next, bars: make(map[string]types.Bar)}
		for _, symbol := range symbols {
			bars := perSymbol[symbol]
			i := cursors[symbol]
			if i < len(bars) && bars[i].Time.Equal(next) {
				current.bars[symbol] = bars[i]
				cursors[symbol] = i + 1
			}
		}

		steps = append(steps, current)
	}

	return steps
}

func positionValue(sim *broker.Simulator, lastClose map[string]float64) float64 {
	positions := sim.Positions()

	// Positions() has map iteration order; float summation needs a fixed order.
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	total := 0.0
	for _, pos := range positions {
		total += pos.MarketValue(lastClose[pos.Symbol])
	}

	return total
}

func fail(result *types.BacktestResult, err error) *types.BacktestResult {
	result.Status = types.RunStatusFailed
	result.Error = err.Error()

	return result
}

// Describe renders a one-line human summary of a result, used by the CLI.
func Describe(result *types.BacktestResult) string {
	return fmt.Sprintf("%s [%s] bars=%d trades=%d final_equity=%.2f",
		result.RunID, result.Status, result.BarsProcessed, len(result.Trades), result.FinalEquity)
}
