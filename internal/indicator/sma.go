package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/quantbt-lab/quantbt/pkg/errors"
)

// SMA implements a streaming simple moving average over a fixed window.
type SMA struct {
	period int
	window *Series
	sum    float64
}

// NewSMA creates a simple moving average indicator with the given period.
func NewSMA(period int) (*SMA, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "sma period must be positive, got %d", period)
	}

	window, err := NewSeries(period)
	if err != nil {
		return nil, err
	}

	return &SMA{
		period: period,
		window: window,
		sum:    0,
	}, nil
}

// Update feeds the next value into the window.
func (s *SMA) Update(v float64) {
	if s.window.Len() == s.period {
		oldest, err := s.window.At(-(s.period - 1))
		if err == nil {
			s.sum -= oldest
		}
	}

	s.window.Push(v)
	s.sum += v
}

// Value returns the current average, or None until the window is full.
func (s *SMA) Value() optional.Option[float64] {
	if s.window.Len() < s.period {
		return optional.None[float64]()
	}

	return optional.Some(s.sum / float64(s.period))
}
