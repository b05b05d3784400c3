package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/quantbt-lab/quantbt/internal/types"
)

type MetricsTestSuite struct {
	suite.Suite
	base time.Time
}

func TestMetricsSuite(t *testing.T) {
	suite.Run(t, new(MetricsTestSuite))
}

func (suite *MetricsTestSuite) SetupTest() {
	suite.base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (suite *MetricsTestSuite) curve(values ...float64) []types.EquityPoint {
	points := make([]types.EquityPoint, len(values))
	for i, v := range values {
		points[i] = types.EquityPoint{
			Time:   suite.base.AddDate(0, 0, i),
			Equity: v,
		}
	}

	return points
}

func (suite *MetricsTestSuite) TestFlatEquityCurve() {
	m := Compute(Input{
		EquityCurve: suite.curve(1000, 1000, 1000, 1000),
		InitialCash: 1000,
	})

	suite.Zero(m.TotalReturn)
	suite.Zero(m.AnnualizedReturn)
	suite.Zero(m.MaxDrawdown)
	suite.Zero(m.MaxDrawdownBars)
	suite.True(m.SharpeRatio.IsNone(), "zero volatility must yield no sharpe")
	suite.True(m.SortinoRatio.IsNone())
	suite.True(m.CalmarRatio.IsNone(), "zero drawdown must yield no calmar")
	suite.True(m.ProfitFactor.IsNone())
	suite.Zero(m.WinRate)
	suite.Zero(m.TotalTrades)
}

func (suite *MetricsTestSuite) TestDegenerateCurves() {
	testCases := []struct {
		name   string
		equity []types.EquityPoint
	}{
		{name: "empty", equity: nil},
		{name: "single point", equity: suite.curve(1000)},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			m := Compute(Input{EquityCurve: tc.equity, InitialCash: 1000})
			suite.True(m.SharpeRatio.IsNone())
			suite.True(m.SortinoRatio.IsNone())
			suite.True(m.CalmarRatio.IsNone())
		})
	}
}

func (suite *MetricsTestSuite) TestTotalAndAnnualizedReturn() {
	m := Compute(Input{
		EquityCurve: suite.curve(1000, 1050, 1100),
		InitialCash: 1000,
		BarsPerYear: 252,
	})

	suite.InDelta(0.1, m.TotalReturn, 1e-9)
	suite.InDelta(math.Pow(1.1, 252.0/3.0)-1, m.AnnualizedReturn, 1e-9)
}

func (suite *MetricsTestSuite) TestDrawdown() {
	curve := DrawdownCurve(suite.curve(1000, 1200, 900, 1000, 1300))

	suite.Require().Len(curve, 5)
	suite.Zero(curve[0])
	suite.Zero(curve[1])
	suite.InDelta(0.25, curve[2], 1e-9)
	suite.InDelta(1.0/6.0, curve[3], 1e-9)
	suite.Zero(curve[4])

	maxDD, bars := maxDrawdown(curve)
	suite.InDelta(0.25, maxDD, 1e-9)
	suite.Equal(2, bars)
}

func (suite *MetricsTestSuite) TestDrawdownBounds() {
	for _, dd := range DrawdownCurve(suite.curve(100, 80, 120, 50, 200, 10)) {
		suite.GreaterOrEqual(dd, 0.0)
		suite.LessOrEqual(dd, 1.0)
	}
}

func (suite *MetricsTestSuite) TestSharpePositiveForRisingVolatileCurve() {
	m := Compute(Input{
		EquityCurve: suite.curve(1000, 1020, 1010, 1040, 1030, 1060),
		InitialCash: 1000,
	})

	suite.Require().True(m.SharpeRatio.IsSome())
	suite.Positive(m.SharpeRatio.Unwrap())

	// All-positive excess returns leave no downside deviation.
	rising := Compute(Input{
		EquityCurve: suite.curve(1000, 1010, 1021, 1035),
		InitialCash: 1000,
	})
	suite.True(rising.SortinoRatio.IsNone())
}

func (suite *MetricsTestSuite) TestRiskFreeRateIsAnnual() {
	// Per-bar returns are 1% and 3%. An annual rate of 1.26 over 252 bars is
	// 0.5% per bar, so the mean excess return is 1.5%.
	m := Compute(Input{
		EquityCurve:  suite.curve(1000, 1010, 1040.3),
		InitialCash:  1000,
		BarsPerYear:  252,
		RiskFreeRate: 1.26,
	})

	suite.Require().True(m.SharpeRatio.IsSome())
	suite.InDelta(0.015/math.Sqrt(0.0002)*math.Sqrt(252), m.SharpeRatio.Unwrap(), 1e-6)

	// Both per-bar returns clear the 0.5% per-bar hurdle, so the downside
	// deviation is empty.
	suite.True(m.SortinoRatio.IsNone())
}

func (suite *MetricsTestSuite) TestTradeStats() {
	trades := []types.Trade{
		{NetPnL: 10, Commission: 1},
		{NetPnL: 20, Commission: 1},
		{NetPnL: -5, Commission: 1},
		{NetPnL: -5, Commission: 1},
		{NetPnL: 15, Commission: 1},
	}

	m := Compute(Input{
		EquityCurve: suite.curve(1000, 1035),
		InitialCash: 1000,
		Trades:      trades,
	})

	suite.Equal(5, m.TotalTrades)
	suite.Equal(3, m.WinningTrades)
	suite.Equal(2, m.LosingTrades)
	suite.InDelta(0.6, m.WinRate, 1e-9)
	suite.Equal(2, m.MaxConsecutiveWins)
	suite.Equal(2, m.MaxConsecutiveLosses)
	suite.InDelta(5.0, m.TotalCommission, 1e-9)

	suite.Require().True(m.ProfitFactor.IsSome())
	suite.InDelta(4.5, m.ProfitFactor.Unwrap(), 1e-9)
}

func (suite *MetricsTestSuite) TestProfitFactorUndefinedWithoutLosers() {
	m := Compute(Input{
		EquityCurve: suite.curve(1000, 1010),
		InitialCash: 1000,
		Trades:      []types.Trade{{NetPnL: 10}},
	})

	suite.True(m.ProfitFactor.IsNone())
	suite.InDelta(1.0, m.WinRate, 1e-9)
}

func (suite *MetricsTestSuite) TestCommissionOverride() {
	m := Compute(Input{
		EquityCurve:     suite.curve(1000, 990),
		InitialCash:     1000,
		Trades:          []types.Trade{{NetPnL: -10, Commission: 2}},
		TotalCommission: 3.5,
	})

	suite.InDelta(3.5, m.TotalCommission, 1e-9)
}

func (suite *MetricsTestSuite) TestPureness() {
	equity := suite.curve(1000, 1100, 900)
	trades := []types.Trade{{NetPnL: 5}}

	in := Input{EquityCurve: equity, Trades: trades, InitialCash: 1000}

	first := Compute(in)
	second := Compute(in)

	suite.Equal(first, second)
	suite.Equal(1000.0, equity[0].Equity)
	suite.Equal(5.0, trades[0].NetPnL)
}
