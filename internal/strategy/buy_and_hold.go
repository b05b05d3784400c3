package strategy

import (
	"context"

	"github.com/quantbt-lab/quantbt/internal/types"
)

// BuyAndHoldParams configures the buy-and-hold strategy.
type BuyAndHoldParams struct {
	// Symbol to buy; defaults to the first instrument of the run.
	Symbol string `json:"symbol,omitempty" jsonschema:"description=Instrument to buy; defaults to the first instrument of the run"`
	// Quantity bought on the first bar.
	Quantity float64 `json:"quantity" validate:"gt=0" jsonschema:"description=Quantity bought on the first bar,minimum=0"`
}

// BuyAndHold buys a fixed quantity at the close of the first bar of its
// instrument and never trades again.
type BuyAndHold struct {
	params BuyAndHoldParams
	bought bool
}

func (s *BuyAndHold) Name() string {
	return "buy_and_hold"
}

func (s *BuyAndHold) Initialize(params map[string]any) error {
	return DecodeParams(params, &s.params)
}

func (s *BuyAndHold) OnBar(ctx context.Context, bctx *Context) ([]types.OrderIntent, error) {
	if s.bought {
		return nil, nil
	}

	symbol := s.params.Symbol
	if symbol == "" && len(bctx.Symbols) > 0 {
		symbol = bctx.Symbols[0]
	}

	if _, ok := bctx.Current[symbol]; !ok {
		return nil, nil
	}

	s.bought = true

	return []types.OrderIntent{{
		Symbol:    symbol,
		Side:      types.SideBuy,
		Quantity:  s.params.Quantity,
		PriceMode: types.PriceModeAtClose,
	}}, nil
}

func (s *BuyAndHold) OnFinish(bctx *Context) {}
