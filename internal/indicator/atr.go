package indicator

import (
	"math"

	"github.com/moznion/go-optional"

	"github.com/quantbt-lab/quantbt/internal/types"
	"github.com/quantbt-lab/quantbt/pkg/errors"
)

// ATR implements the average true range with Wilder smoothing.
type ATR struct {
	period    int
	prevClose float64
	hasPrev   bool
	value     float64
	seedSum   float64
	seedCount int
	ready     bool
}

// NewATR creates an average true range indicator with the given period.
func NewATR(period int) (*ATR, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "atr period must be positive, got %d", period)
	}

	return &ATR{period: period}, nil
}

// Update feeds the next bar into the range.
func (a *ATR) Update(bar types.Bar) {
	tr := bar.High - bar.Low
	if a.hasPrev {
		tr = math.Max(tr, math.Max(
			math.Abs(bar.High-a.prevClose),
			math.Abs(bar.Low-a.prevClose),
		))
	}

	a.prevClose = bar.Close
	a.hasPrev = true

	if !a.ready {
		a.seedSum += tr
		a.seedCount++

		if a.seedCount == a.period {
			a.value = a.seedSum / float64(a.period)
			a.ready = true
		}

		return
	}

	a.value = (a.value*float64(a.period-1) + tr) / float64(a.period)
}

// Value returns the current range, or None during warmup.
func (a *ATR) Value() optional.Option[float64] {
	if !a.ready {
		return optional.None[float64]()
	}

	return optional.Some(a.value)
}
