package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/quantbt-lab/quantbt/internal/backtest/broker"
	"github.com/quantbt-lab/quantbt/internal/backtest/broker/commission"
	"github.com/quantbt-lab/quantbt/internal/backtest/feed"
	"github.com/quantbt-lab/quantbt/internal/logger"
	"github.com/quantbt-lab/quantbt/internal/strategy"
	"github.com/quantbt-lab/quantbt/internal/types"
)

// scriptedStrategy drives the engine with a test-provided OnBar function.
type scriptedStrategy struct {
	onBar    func(bctx *strategy.Context) ([]types.OrderIntent, error)
	finished bool
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) Initialize(params map[string]any) error { return nil }

func (s *scriptedStrategy) OnBar(ctx context.Context, bctx *strategy.Context) ([]types.OrderIntent, error) {
	if s.onBar == nil {
		return nil, nil
	}

	return s.onBar(bctx)
}

func (s *scriptedStrategy) OnFinish(bctx *strategy.Context) { s.finished = true }

type RunnerTestSuite struct {
	suite.Suite
	base time.Time
}

func TestRunnerSuite(t *testing.T) {
	suite.Run(t, new(RunnerTestSuite))
}

func (suite *RunnerTestSuite) SetupTest() {
	suite.base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (suite *RunnerTestSuite) makeFeed(symbol string, offset time.Duration, closes ...float64) feed.Feed {
	bars := make([]types.Bar, len(closes))
	for i, c := range closes {
		bars[i] = types.Bar{
			Time:  suite.base.Add(offset + time.Duration(i)*time.Hour),
			Open:  c,
			High:  c + 1,
			Low:   c - 1,
			Close: c,
		}
	}

	f, err := feed.NewMemoryFeed(symbol, bars)
	suite.Require().NoError(err)

	return f
}

func (suite *RunnerTestSuite) runConfig(bars int) RunConfig {
	return RunConfig{
		RunID:     "test-run",
		StartTime: suite.base,
		EndTime:   suite.base.Add(time.Duration(bars) * time.Hour),
		Broker: broker.Config{
			InitialCash: 1000,
		},
	}
}

func (suite *RunnerTestSuite) TestBuyAndHoldTwoBars() {
	feeds := map[string]feed.Feed{
		"BTC": suite.makeFeed("BTC", 0, 100, 110),
	}

	strat := &scriptedStrategy{
		onBar: func(bctx *strategy.Context) ([]types.OrderIntent, error) {
			if bctx.BarIndex == 0 {
				return []types.OrderIntent{{
					Symbol:    "BTC",
					Side:      types.SideBuy,
					Quantity:  1,
					PriceMode: types.PriceModeAtClose,
				}}, nil
			}

			return nil, nil
		},
	}

	cfg := suite.runConfig(2)
	cfg.Broker.Commission = commission.Config{Type: commission.SchemeTypePercent, Rate: 0.001}

	result := NewRunner(cfg, strat, feeds, logger.NewNopLogger()).Run(context.Background())

	suite.Equal(types.RunStatusCompleted, result.Status)
	suite.Equal(2, result.BarsProcessed)
	suite.Require().Len(result.EquityCurve, 2)

	// Entry at 100 plus 0.1 commission.
	suite.InDelta(999.9, result.EquityCurve[0].Equity, 1e-9)
	suite.InDelta(1009.9, result.EquityCurve[1].Equity, 1e-9)
	suite.InDelta(1009.9, result.FinalEquity, 1e-9)
	suite.InDelta(0.1, result.Metrics.TotalCommission, 1e-9)
	suite.Empty(result.Trades)
	suite.True(strat.finished)
}

func (suite *RunnerTestSuite) TestFlatSeriesPreservesCapital() {
	feeds := map[string]feed.Feed{
		"BTC": suite.makeFeed("BTC", 0, 100, 100, 100, 100),
	}

	strat := &scriptedStrategy{
		onBar: func(bctx *strategy.Context) ([]types.OrderIntent, error) {
			if bctx.BarIndex == 0 {
				return []types.OrderIntent{{
					Symbol:    "BTC",
					Side:      types.SideBuy,
					Quantity:  2,
					PriceMode: types.PriceModeAtClose,
				}}, nil
			}

			return nil, nil
		},
	}

	result := NewRunner(suite.runConfig(4), strat, feeds, logger.NewNopLogger()).Run(context.Background())

	suite.Equal(types.RunStatusCompleted, result.Status)
	suite.Require().Len(result.EquityCurve, 4)

	for _, point := range result.EquityCurve {
		suite.InDelta(1000.0, point.Equity, 1e-9)
		suite.InDelta(1000.0, point.Cash+point.PositionValue, 1e-9)
	}

	suite.InDelta(1000.0, result.FinalEquity, 1e-9)
	suite.Zero(result.Metrics.TotalReturn)
	suite.Zero(result.Metrics.MaxDrawdown)
	suite.True(result.Metrics.SharpeRatio.IsNone())
	suite.True(result.Metrics.SortinoRatio.IsNone())
	suite.True(result.Metrics.CalmarRatio.IsNone())
}

func (suite *RunnerTestSuite) TestStrategyErrorFailsRunWithPartialData() {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}

	feeds := map[string]feed.Feed{
		"BTC": suite.makeFeed("BTC", 0, closes...),
	}

	strat := &scriptedStrategy{
		onBar: func(bctx *strategy.Context) ([]types.OrderIntent, error) {
			if bctx.BarIndex == 50 {
				panic("boom at bar 50")
			}

			return nil, nil
		},
	}

	result := NewRunner(suite.runConfig(60), strat, feeds, logger.NewNopLogger()).Run(context.Background())

	suite.Equal(types.RunStatusFailed, result.Status)
	suite.Len(result.EquityCurve, 50)
	suite.Equal(50, result.BarsProcessed)
	suite.NotEmpty(result.Error)
	suite.Contains(result.Error, "boom at bar 50")
	suite.False(strat.finished)
}

func (suite *RunnerTestSuite) TestCancellationBetweenBars() {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}

	feeds := map[string]feed.Feed{
		"BTC": suite.makeFeed("BTC", 0, closes...),
	}

	ctx, cancel := context.WithCancel(context.Background())

	strat := &scriptedStrategy{
		onBar: func(bctx *strategy.Context) ([]types.OrderIntent, error) {
			if bctx.BarIndex == 4 {
				cancel()
			}

			return nil, nil
		},
	}

	result := NewRunner(suite.runConfig(20), strat, feeds, logger.NewNopLogger()).Run(ctx)

	suite.Equal(types.RunStatusCanceled, result.Status)
	// The bar in flight completes; the run stops before the next one.
	suite.Len(result.EquityCurve, 5)
	suite.Empty(result.Error)
}

func (suite *RunnerTestSuite) TestValidationFailures() {
	feeds := map[string]feed.Feed{
		"BTC": suite.makeFeed("BTC", 0, 100, 101),
	}

	testCases := []struct {
		name   string
		mutate func(cfg *RunConfig)
	}{
		{
			name: "inverted date range",
			mutate: func(cfg *RunConfig) {
				cfg.StartTime, cfg.EndTime = cfg.EndTime, cfg.StartTime
			},
		},
		{
			name: "non-positive cash",
			mutate: func(cfg *RunConfig) {
				cfg.Broker.InitialCash = 0
			},
		},
		{
			name: "range outside span",
			mutate: func(cfg *RunConfig) {
				cfg.StartTime = suite.base.AddDate(1, 0, 0)
				cfg.EndTime = suite.base.AddDate(1, 0, 1)
			},
		},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			cfg := suite.runConfig(2)
			tc.mutate(&cfg)

			result := NewRunner(cfg, &scriptedStrategy{}, feeds, logger.NewNopLogger()).Run(context.Background())

			suite.Equal(types.RunStatusFailed, result.Status)
			suite.Zero(result.BarsProcessed)
			suite.Empty(result.EquityCurve)
			suite.NotEmpty(result.Error)
		})
	}
}

func (suite *RunnerTestSuite) TestNilStrategyFails() {
	feeds := map[string]feed.Feed{
		"BTC": suite.makeFeed("BTC", 0, 100, 101),
	}

	result := NewRunner(suite.runConfig(2), nil, feeds, logger.NewNopLogger()).Run(context.Background())

	suite.Equal(types.RunStatusFailed, result.Status)
	suite.Zero(result.BarsProcessed)
}

func (suite *RunnerTestSuite) TestMultiSymbolLockStep() {
	feeds := map[string]feed.Feed{
		// ETH bars sit on the half hour, so no timestamp is shared.
		"BTC": suite.makeFeed("BTC", 0, 100, 101, 102),
		"ETH": suite.makeFeed("ETH", 30*time.Minute, 200, 201),
	}

	var seen [][]string

	strat := &scriptedStrategy{
		onBar: func(bctx *strategy.Context) ([]types.OrderIntent, error) {
			var present []string
			for _, symbol := range bctx.Symbols {
				if _, ok := bctx.Current[symbol]; ok {
					present = append(present, symbol)
				}
			}

			seen = append(seen, present)

			return nil, nil
		},
	}

	result := NewRunner(suite.runConfig(4), strat, feeds, logger.NewNopLogger()).Run(context.Background())

	suite.Equal(types.RunStatusCompleted, result.Status)
	suite.Equal(5, result.BarsProcessed)
	suite.Equal([]string{"BTC", "ETH"}, result.Symbols)

	suite.Require().Len(seen, 5)
	suite.Equal([]string{"BTC"}, seen[0])
	suite.Equal([]string{"ETH"}, seen[1])
	suite.Equal([]string{"BTC"}, seen[2])
	suite.Equal([]string{"ETH"}, seen[3])
	suite.Equal([]string{"BTC"}, seen[4])
}

func (suite *RunnerTestSuite) TestDeterminism() {
	feeds := map[string]feed.Feed{
		"BTC": suite.makeFeed("BTC", 0, 100, 105, 95, 110, 98, 120),
		"ETH": suite.makeFeed("ETH", 0, 200, 190, 210, 205, 220, 215),
	}

	makeStrategy := func() strategy.Strategy {
		return &scriptedStrategy{
			onBar: func(bctx *strategy.Context) ([]types.OrderIntent, error) {
				if bctx.BarIndex%2 == 0 {
					return []types.OrderIntent{
						{Symbol: "BTC", Side: types.SideBuy, Quantity: 1, PriceMode: types.PriceModeAtClose},
						{Symbol: "ETH", Side: types.SideSell, Quantity: 1, PriceMode: types.PriceModeMarketOnOpen},
					}, nil
				}

				return []types.OrderIntent{
					{Symbol: "BTC", Side: types.SideClose, PriceMode: types.PriceModeAtClose},
				}, nil
			},
		}
	}

	first := NewRunner(suite.runConfig(6), makeStrategy(), feeds, logger.NewNopLogger()).Run(context.Background())
	second := NewRunner(suite.runConfig(6), makeStrategy(), feeds, logger.NewNopLogger()).Run(context.Background())

	suite.Equal(types.RunStatusCompleted, first.Status)
	suite.Equal(first.EquityCurve, second.EquityCurve)
	suite.Equal(first.DrawdownCurve, second.DrawdownCurve)
	suite.Equal(first.Trades, second.Trades)
	suite.Equal(first.Metrics, second.Metrics)
	suite.Equal(first.FinalEquity, second.FinalEquity)
}

func (suite *RunnerTestSuite) TestRejectionsBecomeWarningsNotFailures() {
	feeds := map[string]feed.Feed{
		"BTC": suite.makeFeed("BTC", 0, 100, 101),
	}

	strat := &scriptedStrategy{
		onBar: func(bctx *strategy.Context) ([]types.OrderIntent, error) {
			if bctx.BarIndex == 0 {
				return []types.OrderIntent{{
					Symbol:    "BTC",
					Side:      types.SideBuy,
					Quantity:  1000, // far beyond available cash
					PriceMode: types.PriceModeAtClose,
				}}, nil
			}

			return nil, nil
		},
	}

	result := NewRunner(suite.runConfig(2), strat, feeds, logger.NewNopLogger()).Run(context.Background())

	suite.Equal(types.RunStatusCompleted, result.Status)
	suite.Require().Len(result.Warnings, 1)
	suite.Contains(result.Warnings[0], "MARGIN_REJECTED")
	suite.Empty(result.Error)
	suite.InDelta(1000.0, result.FinalEquity, 1e-9)
}
