package commission

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/quantbt-lab/quantbt/pkg/errors"
)

// PercentOfNotional charges a fixed fraction of the fill notional.
type PercentOfNotional struct {
	rate float64
}

// NewPercentOfNotional creates a percent-of-notional scheme with the given rate.
func NewPercentOfNotional(rate float64) (*PercentOfNotional, error) {
	if rate < 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "commission rate must not be negative, got %f", rate)
	}

	return &PercentOfNotional{rate: rate}, nil
}

// Calculate implements Scheme.
func (p *PercentOfNotional) Calculate(quantity float64, price float64) float64 {
	notional := decimal.NewFromFloat(math.Abs(quantity)).Mul(decimal.NewFromFloat(price))
	fee, _ := notional.Mul(decimal.NewFromFloat(p.rate)).Float64()

	return fee
}
