// Package metrics reduces an equity curve and a trade ledger to performance
// metrics. Every function is pure: same input, same output, no mutation of
// arguments and no I/O.
package metrics

import (
	"math"

	"github.com/moznion/go-optional"

	"github.com/quantbt-lab/quantbt/internal/types"
)

// DefaultBarsPerYear is the annualization factor for daily bars.
const DefaultBarsPerYear = 252.0

// Input carries everything Compute needs. RiskFreeRate is an annual rate;
// Compute divides it by BarsPerYear before subtracting it from each per-bar
// return in the Sharpe and Sortino numerators. BarsPerYear defaults to 252
// when non-positive.
type Input struct {
	EquityCurve  []types.EquityPoint
	Trades       []types.Trade
	InitialCash  float64
	BarsPerYear  float64
	RiskFreeRate float64
	// TotalCommission overrides the trade-ledger sum when positive, so entry
	// commissions of still-open positions are counted.
	TotalCommission float64
}

// Compute reduces the input to a full metric set. Degenerate inputs yield
// None for the ratio metrics rather than zero or an infinity sentinel: a
// flat equity curve has no Sharpe, a run with no drawdown has no Calmar, and
// a ledger with no losing trades has no profit factor.
func Compute(in Input) types.Metrics {
	barsPerYear := in.BarsPerYear
	if barsPerYear <= 0 {
		barsPerYear = DefaultBarsPerYear
	}

	m := types.Metrics{}

	equity := in.EquityCurve
	if len(equity) > 0 && in.InitialCash > 0 {
		final := equity[len(equity)-1].Equity
		m.TotalReturn = final/in.InitialCash - 1
		m.AnnualizedReturn = annualize(m.TotalReturn, len(equity), barsPerYear)
	}

	drawdown := DrawdownCurve(equity)
	m.MaxDrawdown, m.MaxDrawdownBars = maxDrawdown(drawdown)

	returns := barReturns(equity)
	riskFreePerBar := in.RiskFreeRate / barsPerYear
	m.SharpeRatio = sharpe(returns, riskFreePerBar, barsPerYear)
	m.SortinoRatio = sortino(returns, riskFreePerBar, barsPerYear)

	if m.MaxDrawdown > 0 {
		m.CalmarRatio = optional.Some(m.AnnualizedReturn / m.MaxDrawdown)
	}

	fillTradeStats(&m, in.Trades)

	if in.TotalCommission > 0 {
		m.TotalCommission = in.TotalCommission
	}

	return m
}

// DrawdownCurve returns, per equity point, the fractional decline from the
// running peak. Values are in [0, 1] for non-negative equity.
func DrawdownCurve(equity []types.EquityPoint) []float64 {
	if len(equity) == 0 {
		return nil
	}

	curve := make([]float64, len(equity))
	peak := equity[0].Equity

	for i, point := range equity {
		if point.Equity > peak {
			peak = point.Equity
		}

		if peak > 0 {
			curve[i] = (peak - point.Equity) / peak
		}
	}

	return curve
}

func annualize(totalReturn float64, numBars int, barsPerYear float64) float64 {
	if numBars == 0 {
		return 0
	}

	growth := 1 + totalReturn
	if growth <= 0 {
		// Total loss or worse; compounding is undefined, report -100%.
		return -1
	}

	return math.Pow(growth, barsPerYear/float64(numBars)) - 1
}

func maxDrawdown(curve []float64) (float64, int) {
	maxDD := 0.0
	maxRun := 0
	run := 0

	for _, dd := range curve {
		if dd > maxDD {
			maxDD = dd
		}

		if dd > 0 {
			run++
			if run > maxRun {
				maxRun = run
			}
		} else {
			run = 0
		}
	}

	return maxDD, maxRun
}

// barReturns converts the equity curve into simple per-bar returns. A bar
// whose previous equity is non-positive produces no return.
func barReturns(equity []types.EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev <= 0 {
			continue
		}

		returns = append(returns, equity[i].Equity/prev-1)
	}

	return returns
}

// sharpe is the annualized mean excess return over its sample standard
// deviation. None when fewer than two returns exist or volatility is zero.
func sharpe(returns []float64, riskFree float64, barsPerYear float64) optional.Option[float64] {
	if len(returns) < 2 {
		return optional.None[float64]()
	}

	mean := meanOf(returns) - riskFree
	stdev := sampleStdev(returns)

	if stdev == 0 {
		return optional.None[float64]()
	}

	return optional.Some(mean / stdev * math.Sqrt(barsPerYear))
}

// sortino replaces the full standard deviation with the downside deviation:
// the root mean square of negative excess returns over all observations.
func sortino(returns []float64, riskFree float64, barsPerYear float64) optional.Option[float64] {
	if len(returns) < 2 {
		return optional.None[float64]()
	}

	mean := meanOf(returns) - riskFree

	sumSq := 0.0
	for _, r := range returns {
		excess := r - riskFree
		if excess < 0 {
			sumSq += excess * excess
		}
	}

	downside := math.Sqrt(sumSq / float64(len(returns)))
	if downside == 0 {
		return optional.None[float64]()
	}

	return optional.Some(mean / downside * math.Sqrt(barsPerYear))
}

func fillTradeStats(m *types.Metrics, trades []types.Trade) {
	m.TotalTrades = len(trades)

	grossProfit := 0.0
	grossLoss := 0.0
	winStreak := 0
	lossStreak := 0
	commission := 0.0

	for _, trade := range trades {
		commission += trade.Commission

		switch {
		case trade.NetPnL > 0:
			m.WinningTrades++
			grossProfit += trade.NetPnL
			winStreak++
			lossStreak = 0
		case trade.NetPnL < 0:
			m.LosingTrades++
			grossLoss += -trade.NetPnL
			lossStreak++
			winStreak = 0
		default:
			winStreak = 0
			lossStreak = 0
		}

		if winStreak > m.MaxConsecutiveWins {
			m.MaxConsecutiveWins = winStreak
		}

		if lossStreak > m.MaxConsecutiveLosses {
			m.MaxConsecutiveLosses = lossStreak
		}
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	}

	if grossLoss > 0 {
		m.ProfitFactor = optional.Some(grossProfit / grossLoss)
	}

	m.TotalCommission = commission
}

func meanOf(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// sampleStdev uses the n-1 denominator.
func sampleStdev(values []float64) float64 {
	mean := meanOf(values)

	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}

	return math.Sqrt(sumSq / float64(len(values)-1))
}
