package strategy

import (
	"context"

	"go.uber.org/zap"

	"github.com/quantbt-lab/quantbt/internal/indicator"
	"github.com/quantbt-lab/quantbt/internal/types"
)

// SMACrossParams configures the moving-average crossover strategy.
type SMACrossParams struct {
	Symbol     string  `json:"symbol,omitempty" jsonschema:"description=Instrument to trade; defaults to the first instrument of the run"`
	FastPeriod int     `json:"fast_period" validate:"gt=0" jsonschema:"description=Fast moving-average window,minimum=1"`
	SlowPeriod int     `json:"slow_period" validate:"gt=0,gtfield=FastPeriod" jsonschema:"description=Slow moving-average window,minimum=2"`
	Quantity   float64 `json:"quantity" validate:"gt=0" jsonschema:"description=Quantity per entry,minimum=0"`
}

// SMACross goes long when the fast moving average crosses above the slow one
// and closes the position on the opposite cross. Entries and exits execute
// at the next bar's open.
type SMACross struct {
	params SMACrossParams
	fast   *indicator.SMA
	slow   *indicator.SMA
	// prevDiff is the fast-minus-slow spread of the previous bar, NaN-free:
	// zero until both averages are warm.
	prevDiff float64
	warm     bool
}

func (s *SMACross) Name() string {
	return "sma_cross"
}

func (s *SMACross) Initialize(params map[string]any) error {
	if err := DecodeParams(params, &s.params); err != nil {
		return err
	}

	fast, err := indicator.NewSMA(s.params.FastPeriod)
	if err != nil {
		return err
	}

	slow, err := indicator.NewSMA(s.params.SlowPeriod)
	if err != nil {
		return err
	}

	s.fast = fast
	s.slow = slow

	return nil
}

func (s *SMACross) OnBar(ctx context.Context, bctx *Context) ([]types.OrderIntent, error) {
	symbol := s.params.Symbol
	if symbol == "" && len(bctx.Symbols) > 0 {
		symbol = bctx.Symbols[0]
	}

	bar, ok := bctx.Current[symbol]
	if !ok {
		return nil, nil
	}

	s.fast.Update(bar.Close)
	s.slow.Update(bar.Close)

	fastVal := s.fast.Value()
	slowVal := s.slow.Value()

	if fastVal.IsNone() || slowVal.IsNone() {
		return nil, nil
	}

	diff := fastVal.Unwrap() - slowVal.Unwrap()
	defer func() {
		s.prevDiff = diff
		s.warm = true
	}()

	if !s.warm {
		return nil, nil
	}

	position := bctx.Portfolio.Position(symbol)

	if s.prevDiff <= 0 && diff > 0 && position.IsFlat() {
		if bctx.Logger != nil {
			bctx.Logger.Debug("Golden cross",
				zap.String("symbol", symbol),
				zap.Int("bar", bctx.BarIndex),
			)
		}

		return []types.OrderIntent{{
			Symbol:    symbol,
			Side:      types.SideBuy,
			Quantity:  s.params.Quantity,
			PriceMode: types.PriceModeMarketOnOpen,
		}}, nil
	}

	if s.prevDiff >= 0 && diff < 0 && !position.IsFlat() {
		if bctx.Logger != nil {
			bctx.Logger.Debug("Death cross",
				zap.String("symbol", symbol),
				zap.Int("bar", bctx.BarIndex),
			)
		}

		return []types.OrderIntent{{
			Symbol:    symbol,
			Side:      types.SideClose,
			PriceMode: types.PriceModeMarketOnOpen,
		}}, nil
	}

	return nil, nil
}

func (s *SMACross) OnFinish(bctx *Context) {}
