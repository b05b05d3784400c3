package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/quantbt-lab/quantbt/pkg/errors"
)

// RSI implements the relative strength index with Wilder smoothing.
type RSI struct {
	period    int
	prev      float64
	hasPrev   bool
	avgGain   float64
	avgLoss   float64
	seedGain  float64
	seedLoss  float64
	seedCount int
	ready     bool
}

// NewRSI creates a relative strength index indicator with the given period.
func NewRSI(period int) (*RSI, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "rsi period must be positive, got %d", period)
	}

	return &RSI{period: period}, nil
}

// Update feeds the next close price into the index.
func (r *RSI) Update(v float64) {
	if !r.hasPrev {
		r.prev = v
		r.hasPrev = true

		return
	}

	change := v - r.prev
	r.prev = v

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	if !r.ready {
		r.seedGain += gain
		r.seedLoss += loss
		r.seedCount++

		if r.seedCount == r.period {
			r.avgGain = r.seedGain / float64(r.period)
			r.avgLoss = r.seedLoss / float64(r.period)
			r.ready = true
		}

		return
	}

	// Wilder smoothing
	r.avgGain = (r.avgGain*float64(r.period-1) + gain) / float64(r.period)
	r.avgLoss = (r.avgLoss*float64(r.period-1) + loss) / float64(r.period)
}

// Value returns the current index in [0, 100], or None during warmup.
func (r *RSI) Value() optional.Option[float64] {
	if !r.ready {
		return optional.None[float64]()
	}

	if r.avgLoss == 0 {
		return optional.Some(100.0)
	}

	rs := r.avgGain / r.avgLoss

	return optional.Some(100.0 - 100.0/(1.0+rs))
}
