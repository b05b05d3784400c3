package record

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantbt-lab/quantbt/internal/types"
)

// Recorder accumulates the raw time series of a single run: one equity point
// per processed bar and every closed round-trip trade in exit order. It is a
// passive observer; it never influences execution.
type Recorder struct {
	equity     []types.EquityPoint
	trades     []types.Trade
	commission decimal.Decimal
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// OnBarClose appends exactly one equity point for the processed bar. Equity
// is cash plus the signed market value of all open positions at their latest
// known close.
func (r *Recorder) OnBarClose(t time.Time, cash float64, positionValue float64) {
	equity, _ := decimal.NewFromFloat(cash).Add(decimal.NewFromFloat(positionValue)).Float64()

	r.equity = append(r.equity, types.EquityPoint{
		Time:          t,
		Equity:        equity,
		Cash:          cash,
		PositionValue: positionValue,
	})
}

// OnTradeClosed appends a closed trade. Trades arrive in exit order and the
// ledger is append-only.
func (r *Recorder) OnTradeClosed(trade types.Trade) {
	r.trades = append(r.trades, trade)
}

// OnFill tallies the commission charged on a fill. This includes entry legs
// of positions still open at the end of the run, which trade records alone
// would miss.
func (r *Recorder) OnFill(fill types.Fill) {
	r.commission = r.commission.Add(decimal.NewFromFloat(fill.Commission))
}

// EquityCurve returns the recorded equity points.
func (r *Recorder) EquityCurve() []types.EquityPoint {
	return r.equity
}

// Trades returns the closed trades in exit order.
func (r *Recorder) Trades() []types.Trade {
	return r.trades
}

// TotalCommission returns the sum of commissions across all fills.
func (r *Recorder) TotalCommission() float64 {
	v, _ := r.commission.Float64()
	return v
}

// Bars returns the number of bars recorded so far.
func (r *Recorder) Bars() int {
	return len(r.equity)
}
