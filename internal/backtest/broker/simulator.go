package broker

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantbt-lab/quantbt/internal/backtest/broker/commission"
	"github.com/quantbt-lab/quantbt/internal/logger"
	"github.com/quantbt-lab/quantbt/internal/types"
)

// Config parameterizes a Simulator.
type Config struct {
	InitialCash float64 `yaml:"initial_cash" json:"initial_cash" validate:"gt=0"`
	// DisableShort rejects any fill that would take a position below zero.
	DisableShort bool `yaml:"disable_short" json:"disable_short"`
	// MarginRatio is the fraction of short notional that must be covered by
	// cash when opening or increasing a short. Zero disables the check.
	MarginRatio float64 `yaml:"margin_ratio" json:"margin_ratio" validate:"gte=0"`
	Commission  commission.Config `yaml:"commission" json:"commission"`
}

// positionState is the broker-internal bookkeeping around an open position:
// realized PnL and exit commissions accumulate across partial reductions and
// are flushed into a Trade only when the position returns to flat.
type positionState struct {
	pos            types.Position
	side           types.TradeSide
	openedQuantity float64
	realizedGross  decimal.Decimal
	exitCommission decimal.Decimal
	lastExitFill   types.Fill
}

// Simulator is a single-run execution simulator. It matches order intents
// against bars using bar-boundary price modes, charges commissions at fill
// time, tracks cash and signed positions, and emits fills and round-trip
// trades through callbacks. It is not safe for concurrent use; the
// orchestrator drives it from a single goroutine.
type Simulator struct {
	scheme       commission.Scheme
	disableShort bool
	marginRatio  float64
	logger       *logger.Logger

	cash      decimal.Decimal
	positions map[string]*positionState
	symbols   map[string]bool

	// open holds non-terminal orders in submission order; fill eligibility
	// is evaluated in this order on every processed bar.
	open   []*types.Order
	orders map[string]*types.Order

	warnings []string

	onFill        func(types.Fill)
	onTradeClosed func(types.Trade)
}

// NewSimulator creates a simulator for the given instrument universe. Intents
// for symbols outside the universe are rejected.
func NewSimulator(cfg Config, symbols []string, log *logger.Logger) (*Simulator, error) {
	scheme, err := commission.NewScheme(cfg.Commission)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		known[symbol] = true
	}

	return &Simulator{
		scheme:       scheme,
		disableShort: cfg.DisableShort,
		marginRatio:  cfg.MarginRatio,
		logger:       log,
		cash:         decimal.NewFromFloat(cfg.InitialCash),
		positions:    make(map[string]*positionState),
		symbols:      known,
		orders:       make(map[string]*types.Order),
	}, nil
}

// OnFill registers the fill callback.
func (s *Simulator) OnFill(fn func(types.Fill)) {
	s.onFill = fn
}

// OnTradeClosed registers the trade-close callback.
func (s *Simulator) OnTradeClosed(fn func(types.Trade)) {
	s.onTradeClosed = fn
}

// Submit validates and accepts an order intent. Invalid intents come back
// with a terminal REJECTED status and a reason; a rejection is recorded as a
// warning and never fails the run. Accepted orders wait for an eligible bar.
func (s *Simulator) Submit(intent types.OrderIntent, barIndex int, barTime time.Time) *types.Order {
	order := &types.Order{
		ID:           uuid.New().String(),
		Intent:       intent,
		Status:       types.OrderStatusSubmitted,
		SubmittedAt:  barTime,
		SubmittedBar: barIndex,
	}
	s.orders[order.ID] = order

	if reason, ok := s.validate(intent); !ok {
		s.reject(order, types.OrderStatusRejected, reason)
		return order
	}

	order.Status = types.OrderStatusAccepted
	s.open = append(s.open, order)

	return order
}

func (s *Simulator) validate(intent types.OrderIntent) (string, bool) {
	if !s.symbols[intent.Symbol] {
		return types.RejectReasonUnknownInstrument, false
	}

	if intent.Side != types.SideClose && intent.Quantity <= 0 {
		return types.RejectReasonZeroQuantity, false
	}

	if intent.PriceMode == types.PriceModeLimit && intent.LimitPrice.IsNone() {
		return types.RejectReasonMissingLimitPrice, false
	}

	if intent.Side == types.SideClose && s.Position(intent.Symbol).IsFlat() {
		return types.RejectReasonNoPosition, false
	}

	return "", true
}

// ProcessBar evaluates every open order against the bars of the current
// timestamp, in submission order. bars holds only the instruments that have a
// bar at this timestamp; orders whose instrument is absent stay open.
func (s *Simulator) ProcessBar(bars map[string]types.Bar, barIndex int) {
	remaining := s.open[:0]

	for _, order := range s.open {
		bar, ok := bars[order.Intent.Symbol]
		if !ok {
			remaining = append(remaining, order)
			continue
		}

		price, eligible := s.fillPrice(order, bar, barIndex)
		if !eligible {
			remaining = append(remaining, order)
			continue
		}

		s.execute(order, price, bar.Time, barIndex)
	}

	s.open = remaining
}

// fillPrice returns the execution price for the order against the bar, or
// false when the order is not yet eligible. Limit orders fill at the limit
// price exactly, never better.
func (s *Simulator) fillPrice(order *types.Order, bar types.Bar, barIndex int) (float64, bool) {
	switch order.Intent.PriceMode {
	case types.PriceModeAtClose:
		return bar.Close, barIndex >= order.SubmittedBar

	case types.PriceModeMarketOnOpen:
		return bar.Open, barIndex > order.SubmittedBar

	case types.PriceModeLimit:
		if barIndex <= order.SubmittedBar {
			return 0, false
		}

		limit := order.Intent.LimitPrice.Unwrap()

		side := order.Intent.Side
		if side == types.SideClose && s.Position(order.Intent.Symbol).Quantity > 0 {
			side = types.SideSell
		}

		if side == types.SideSell {
			return limit, bar.High >= limit
		}

		return limit, bar.Low <= limit

	default:
		return 0, false
	}
}

// execute fills the order at price, updating cash and positions. A fill that
// would drive cash negative is margin-rejected in full; there are no partial
// fills.
func (s *Simulator) execute(order *types.Order, price float64, barTime time.Time, barIndex int) {
	state := s.positions[order.Intent.Symbol]

	side := order.Intent.Side
	quantity := order.Intent.Quantity

	if side == types.SideClose {
		if state == nil || state.pos.IsFlat() {
			s.reject(order, types.OrderStatusCanceled, types.RejectReasonNoPosition)
			return
		}

		quantity = math.Abs(state.pos.Quantity)
		if state.pos.Quantity > 0 {
			side = types.SideSell
		} else {
			side = types.SideBuy
		}
	}

	signed := quantity
	if side == types.SideSell {
		signed = -quantity
	}

	held := 0.0
	if state != nil {
		held = state.pos.Quantity
	}

	if s.disableShort && held+signed < 0 {
		s.reject(order, types.OrderStatusRejected, types.RejectReasonShortDisabled)
		return
	}

	fee := s.scheme.Calculate(quantity, price)
	notional := decimal.NewFromFloat(signed).Mul(decimal.NewFromFloat(price))
	cost := notional.Add(decimal.NewFromFloat(fee))

	// Buys must be fully funded; shorts optionally post margin.
	if signed > 0 && cost.GreaterThan(s.cash) {
		s.reject(order, types.OrderStatusMarginRejected, types.RejectReasonInsufficientCash)
		return
	}

	if signed < 0 && s.marginRatio > 0 && held+signed < 0 {
		required := notional.Abs().Mul(decimal.NewFromFloat(s.marginRatio))
		if required.GreaterThan(s.cash) {
			s.reject(order, types.OrderStatusMarginRejected, types.RejectReasonInsufficientCash)
			return
		}
	}

	s.cash = s.cash.Sub(cost)

	fill := types.Fill{
		OrderID:    order.ID,
		Symbol:     order.Intent.Symbol,
		Price:      price,
		Quantity:   signed,
		Commission: fee,
		Time:       barTime,
		BarIndex:   barIndex,
	}

	s.apply(fill)

	order.Status = types.OrderStatusCompleted

	s.logger.Debug("Order filled",
		zap.String("order_id", order.ID),
		zap.String("symbol", fill.Symbol),
		zap.Float64("price", price),
		zap.Float64("quantity", signed),
		zap.Float64("commission", fee),
		zap.Int("bar", barIndex),
	)

	if s.onFill != nil {
		s.onFill(fill)
	}
}

// apply folds a fill into the position for its symbol, emitting a Trade when
// the position returns to flat. A reversal closes the old trade at the fill
// price and opens a new one, splitting the fill commission pro rata between
// the closing and opening legs.
func (s *Simulator) apply(fill types.Fill) {
	state, ok := s.positions[fill.Symbol]
	if !ok || state.pos.IsFlat() {
		s.positions[fill.Symbol] = newPositionState(fill)
		return
	}

	held := state.pos.Quantity
	if sameSign(held, fill.Quantity) {
		state.increase(fill)
		return
	}

	closed := math.Min(math.Abs(fill.Quantity), math.Abs(held))
	reversal := math.Abs(fill.Quantity) > math.Abs(held)

	closeFee := fill.Commission
	if reversal {
		closeFee = fill.Commission * closed / math.Abs(fill.Quantity)
	}

	state.reduce(fill, closed, closeFee)

	if state.pos.IsFlat() || reversal {
		trade := state.closeTrade()
		if s.onTradeClosed != nil {
			s.onTradeClosed(trade)
		}

		if reversal {
			opening := fill
			opening.Quantity = held + fill.Quantity
			opening.Commission = fill.Commission - closeFee
			s.positions[fill.Symbol] = newPositionState(opening)
		} else {
			delete(s.positions, fill.Symbol)
		}
	}
}

// CancelOpen cancels every order still waiting for a fill. Called once when
// the bar stream is exhausted.
func (s *Simulator) CancelOpen() {
	for _, order := range s.open {
		order.Status = types.OrderStatusCanceled
		order.Reason = "backtest_ended"
	}

	s.open = nil
}

func (s *Simulator) reject(order *types.Order, status types.OrderStatus, reason string) {
	order.Status = status
	order.Reason = reason

	warning := fmt.Sprintf("order %s %s %s: %s (%s)",
		order.ID, order.Intent.Side, order.Intent.Symbol, status, reason)
	s.warnings = append(s.warnings, warning)

	s.logger.Warn("Order not filled",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Intent.Symbol),
		zap.String("status", string(status)),
		zap.String("reason", reason),
	)
}

// Cash returns the current cash balance.
func (s *Simulator) Cash() float64 {
	v, _ := s.cash.Float64()
	return v
}

// Position returns the current position for the symbol; a flat zero-value
// position when none is open.
func (s *Simulator) Position(symbol string) types.Position {
	state, ok := s.positions[symbol]
	if !ok {
		return types.Position{Symbol: symbol}
	}

	return state.pos
}

// Positions returns all open positions.
func (s *Simulator) Positions() []types.Position {
	out := make([]types.Position, 0, len(s.positions))
	for _, state := range s.positions {
		out = append(out, state.pos)
	}

	return out
}

// Order returns the order with the given ID, or nil.
func (s *Simulator) Order(id string) *types.Order {
	return s.orders[id]
}

// OpenOrders returns the number of orders still waiting for a fill.
func (s *Simulator) OpenOrders() int {
	return len(s.open)
}

// Warnings returns the accumulated non-fatal rejection messages.
func (s *Simulator) Warnings() []string {
	return s.warnings
}

func newPositionState(fill types.Fill) *positionState {
	side := types.TradeSideLong
	if fill.Quantity < 0 {
		side = types.TradeSideShort
	}

	return &positionState{
		pos: types.Position{
			Symbol:          fill.Symbol,
			Quantity:        fill.Quantity,
			AvgEntryPrice:   fill.Price,
			EntryTime:       fill.Time,
			EntryBar:        fill.BarIndex,
			EntryCommission: fill.Commission,
		},
		side:           side,
		openedQuantity: math.Abs(fill.Quantity),
	}
}

// increase grows the position in its current direction, recomputing the
// volume-weighted average entry price.
func (ps *positionState) increase(fill types.Fill) {
	oldAbs := decimal.NewFromFloat(math.Abs(ps.pos.Quantity))
	addAbs := decimal.NewFromFloat(math.Abs(fill.Quantity))

	oldNotional := oldAbs.Mul(decimal.NewFromFloat(ps.pos.AvgEntryPrice))
	addNotional := addAbs.Mul(decimal.NewFromFloat(fill.Price))

	totalAbs := oldAbs.Add(addAbs)
	avg, _ := oldNotional.Add(addNotional).Div(totalAbs).Float64()

	ps.pos.Quantity += fill.Quantity
	ps.pos.AvgEntryPrice = avg
	ps.pos.EntryCommission += fill.Commission
	ps.openedQuantity += math.Abs(fill.Quantity)
}

// reduce realizes PnL on the closed portion of the position.
func (ps *positionState) reduce(fill types.Fill, closed float64, closeFee float64) {
	direction := decimal.NewFromFloat(1)
	if ps.pos.Quantity < 0 {
		direction = decimal.NewFromFloat(-1)
	}

	move := decimal.NewFromFloat(fill.Price).Sub(decimal.NewFromFloat(ps.pos.AvgEntryPrice))
	gross := move.Mul(decimal.NewFromFloat(closed)).Mul(direction)

	ps.realizedGross = ps.realizedGross.Add(gross)
	ps.exitCommission = ps.exitCommission.Add(decimal.NewFromFloat(closeFee))
	ps.lastExitFill = fill

	if ps.pos.Quantity > 0 {
		ps.pos.Quantity -= closed
	} else {
		ps.pos.Quantity += closed
	}
}

// closeTrade flushes the accumulated round trip into a Trade record.
func (ps *positionState) closeTrade() types.Trade {
	gross, _ := ps.realizedGross.Float64()
	exitFee, _ := ps.exitCommission.Float64()
	totalFee := ps.pos.EntryCommission + exitFee
	net, _ := ps.realizedGross.
		Sub(decimal.NewFromFloat(ps.pos.EntryCommission)).
		Sub(ps.exitCommission).
		Float64()

	return types.Trade{
		Symbol:      ps.pos.Symbol,
		Side:        ps.side,
		Quantity:    ps.openedQuantity,
		EntryTime:   ps.pos.EntryTime,
		EntryPrice:  ps.pos.AvgEntryPrice,
		EntryBar:    ps.pos.EntryBar,
		ExitTime:    ps.lastExitFill.Time,
		ExitPrice:   ps.lastExitFill.Price,
		ExitBar:     ps.lastExitFill.BarIndex,
		GrossPnL:    gross,
		NetPnL:      net,
		Commission:  totalFee,
		HoldingBars: ps.lastExitFill.BarIndex - ps.pos.EntryBar,
	}
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
