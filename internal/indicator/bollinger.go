package indicator

import (
	"math"

	"github.com/moznion/go-optional"

	"github.com/quantbt-lab/quantbt/pkg/errors"
)

// BollingerBands computes a middle SMA band with upper/lower bands at a
// configurable number of standard deviations.
type BollingerBands struct {
	period int
	stdDev float64
	window *Series
}

// Bands holds one evaluation of the three bands.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// NewBollingerBands creates a Bollinger band indicator.
func NewBollingerBands(period int, stdDev float64) (*BollingerBands, error) {
	if period <= 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "bollinger period must be greater than 1, got %d", period)
	}

	if stdDev <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "bollinger std dev multiplier must be positive, got %f", stdDev)
	}

	window, err := NewSeries(period)
	if err != nil {
		return nil, err
	}

	return &BollingerBands{
		period: period,
		stdDev: stdDev,
		window: window,
	}, nil
}

// Update feeds the next value into the window.
func (b *BollingerBands) Update(v float64) {
	b.window.Push(v)
}

// Value returns the three bands, or None until the window is full.
func (b *BollingerBands) Value() optional.Option[Bands] {
	if b.window.Len() < b.period {
		return optional.None[Bands]()
	}

	sum := 0.0

	for i := 0; i < b.period; i++ {
		v, err := b.window.At(-i)
		if err != nil {
			return optional.None[Bands]()
		}

		sum += v
	}

	mean := sum / float64(b.period)

	variance := 0.0

	for i := 0; i < b.period; i++ {
		v, _ := b.window.At(-i)
		variance += (v - mean) * (v - mean)
	}

	sd := math.Sqrt(variance / float64(b.period))

	return optional.Some(Bands{
		Upper:  mean + b.stdDev*sd,
		Middle: mean,
		Lower:  mean - b.stdDev*sd,
	})
}
