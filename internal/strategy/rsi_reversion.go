package strategy

import (
	"context"

	"github.com/quantbt-lab/quantbt/internal/indicator"
	"github.com/quantbt-lab/quantbt/internal/types"
)

// RSIReversionParams configures the RSI mean-reversion strategy.
type RSIReversionParams struct {
	Symbol string `json:"symbol,omitempty" jsonschema:"description=Instrument to trade; defaults to the first instrument of the run"`
	// Period is the RSI lookback; 14 when omitted.
	Period     int     `json:"period,omitempty" validate:"gte=0" jsonschema:"description=RSI lookback; defaults to 14"`
	Oversold   float64 `json:"oversold" validate:"gt=0,lt=100" jsonschema:"description=RSI level treated as oversold,minimum=0,maximum=100"`
	Overbought float64 `json:"overbought" validate:"gt=0,lt=100,gtfield=Oversold" jsonschema:"description=RSI level treated as overbought,minimum=0,maximum=100"`
	Quantity   float64 `json:"quantity" validate:"gt=0" jsonschema:"description=Quantity per entry,minimum=0"`
}

// RSIReversion buys when RSI drops below the oversold level and closes the
// position when RSI recovers above the overbought level.
type RSIReversion struct {
	params RSIReversionParams
	rsi    *indicator.RSI
}

func (s *RSIReversion) Name() string {
	return "rsi_reversion"
}

func (s *RSIReversion) Initialize(params map[string]any) error {
	if err := DecodeParams(params, &s.params); err != nil {
		return err
	}

	if s.params.Period == 0 {
		s.params.Period = 14
	}

	rsi, err := indicator.NewRSI(s.params.Period)
	if err != nil {
		return err
	}

	s.rsi = rsi

	return nil
}

func (s *RSIReversion) OnBar(ctx context.Context, bctx *Context) ([]types.OrderIntent, error) {
	symbol := s.params.Symbol
	if symbol == "" && len(bctx.Symbols) > 0 {
		symbol = bctx.Symbols[0]
	}

	bar, ok := bctx.Current[symbol]
	if !ok {
		return nil, nil
	}

	s.rsi.Update(bar.Close)

	value := s.rsi.Value()
	if value.IsNone() {
		return nil, nil
	}

	rsi := value.Unwrap()
	position := bctx.Portfolio.Position(symbol)

	if rsi <= s.params.Oversold && position.IsFlat() {
		return []types.OrderIntent{{
			Symbol:    symbol,
			Side:      types.SideBuy,
			Quantity:  s.params.Quantity,
			PriceMode: types.PriceModeMarketOnOpen,
		}}, nil
	}

	if rsi >= s.params.Overbought && !position.IsFlat() {
		return []types.OrderIntent{{
			Symbol:    symbol,
			Side:      types.SideClose,
			PriceMode: types.PriceModeMarketOnOpen,
		}}, nil
	}

	return nil, nil
}

func (s *RSIReversion) OnFinish(bctx *Context) {}
