package indicator

import (
	"github.com/quantbt-lab/quantbt/internal/types"
	"github.com/quantbt-lab/quantbt/pkg/errors"
)

// Series is a fixed-capacity ring buffer of float64 values with
// bounds-checked lookback. At(0) is the most recent value, At(-1) the one
// before it, and so on down to the buffer capacity.
type Series struct {
	buf  []float64
	head int
	size int
}

// NewSeries creates a Series with the given capacity.
func NewSeries(capacity int) (*Series, error) {
	if capacity <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "series capacity must be positive, got %d", capacity)
	}

	return &Series{
		buf:  make([]float64, capacity),
		head: -1,
		size: 0,
	}, nil
}

// Push appends a value, evicting the oldest once the buffer is full.
func (s *Series) Push(v float64) {
	s.head = (s.head + 1) % len(s.buf)
	s.buf[s.head] = v

	if s.size < len(s.buf) {
		s.size++
	}
}

// Len returns the number of values currently held.
func (s *Series) Len() int {
	return s.size
}

// At returns the value at the given non-positive offset from the most recent
// value. At(0) is the latest, At(-1) the previous one.
func (s *Series) At(offset int) (float64, error) {
	if offset > 0 {
		return 0, errors.Newf(errors.ErrCodeLookbackExceeded, "offset must be zero or negative, got %d", offset)
	}

	back := -offset
	if back >= s.size {
		return 0, errors.Newf(errors.ErrCodeLookbackExceeded, "offset %d exceeds stored history of %d values", offset, s.size)
	}

	idx := (s.head - back + len(s.buf)) % len(s.buf)

	return s.buf[idx], nil
}

// Last returns the most recent value.
func (s *Series) Last() (float64, error) {
	return s.At(0)
}

// BarSeries is a fixed-capacity ring buffer of bars, giving strategies
// bounds-checked access to recent history for one instrument.
type BarSeries struct {
	buf  []types.Bar
	head int
	size int
}

// NewBarSeries creates a BarSeries with the given capacity.
func NewBarSeries(capacity int) (*BarSeries, error) {
	if capacity <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "bar series capacity must be positive, got %d", capacity)
	}

	return &BarSeries{
		buf:  make([]types.Bar, capacity),
		head: -1,
		size: 0,
	}, nil
}

// Push appends a bar, evicting the oldest once the buffer is full.
func (b *BarSeries) Push(bar types.Bar) {
	b.head = (b.head + 1) % len(b.buf)
	b.buf[b.head] = bar

	if b.size < len(b.buf) {
		b.size++
	}
}

// Len returns the number of bars currently held.
func (b *BarSeries) Len() int {
	return b.size
}

// At returns the bar at the given non-positive offset from the most recent
// bar. At(0) is the current bar, At(-1) the previous one.
func (b *BarSeries) At(offset int) (types.Bar, error) {
	if offset > 0 {
		return types.Bar{}, errors.Newf(errors.ErrCodeLookbackExceeded, "offset must be zero or negative, got %d", offset)
	}

	back := -offset
	if back >= b.size {
		return types.Bar{}, errors.Newf(errors.ErrCodeLookbackExceeded, "offset %d exceeds stored history of %d bars", offset, b.size)
	}

	idx := (b.head - back + len(b.buf)) % len(b.buf)

	return b.buf[idx], nil
}

// Last returns the most recent bar.
func (b *BarSeries) Last() (types.Bar, error) {
	return b.At(0)
}
