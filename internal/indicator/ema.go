package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/quantbt-lab/quantbt/pkg/errors"
)

// EMA implements a streaming exponential moving average, seeded with the
// simple average of the first period values.
type EMA struct {
	period     int
	multiplier float64
	seedSum    float64
	seedCount  int
	value      float64
	ready      bool
}

// NewEMA creates an exponential moving average indicator with the given period.
func NewEMA(period int) (*EMA, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "ema period must be positive, got %d", period)
	}

	return &EMA{
		period:     period,
		multiplier: 2.0 / (float64(period) + 1.0),
		seedSum:    0,
		seedCount:  0,
		value:      0,
		ready:      false,
	}, nil
}

// Update feeds the next value into the average.
func (e *EMA) Update(v float64) {
	if !e.ready {
		e.seedSum += v
		e.seedCount++

		if e.seedCount == e.period {
			e.value = e.seedSum / float64(e.period)
			e.ready = true
		}

		return
	}

	e.value = (v-e.value)*e.multiplier + e.value
}

// Value returns the current average, or None during the seed phase.
func (e *EMA) Value() optional.Option[float64] {
	if !e.ready {
		return optional.None[float64]()
	}

	return optional.Some(e.value)
}
