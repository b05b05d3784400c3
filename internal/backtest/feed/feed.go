package feed

import (
	"sort"
	"time"

	"github.com/quantbt-lab/quantbt/internal/types"
	"github.com/quantbt-lab/quantbt/pkg/errors"
)

// Feed supplies an ordered, immutable sequence of bars for one instrument.
// Implementations must be safe to share across concurrent runs: the bars are
// read-only snapshots and every run owns its own cursor over them.
type Feed interface {
	// Symbol returns the instrument identifier for this feed.
	Symbol() string
	// Bars returns the bars within [start, end] inclusive. The returned
	// slice is a view of the snapshot and must not be mutated.
	Bars(start time.Time, end time.Time) []types.Bar
	// Span returns the timestamps of the first and last bar.
	Span() (time.Time, time.Time)
	// Len returns the total number of bars held.
	Len() int
}

// MemoryFeed is an in-memory immutable bar snapshot.
type MemoryFeed struct {
	symbol string
	bars   []types.Bar
}

// NewMemoryFeed creates a feed over the given bars. Bars must be in strictly
// increasing timestamp order.
func NewMemoryFeed(symbol string, bars []types.Bar) (*MemoryFeed, error) {
	if symbol == "" {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "feed symbol must not be empty")
	}

	if len(bars) == 0 {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "feed for %s has no bars", symbol)
	}

	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return nil, errors.Newf(errors.ErrCodeBarOrderViolation,
				"bars for %s are not strictly increasing at index %d (%s then %s)",
				symbol, i, bars[i-1].Time, bars[i].Time)
		}
	}

	snapshot := make([]types.Bar, len(bars))
	copy(snapshot, bars)

	for i := range snapshot {
		snapshot[i].Symbol = symbol
	}

	return &MemoryFeed{
		symbol: symbol,
		bars:   snapshot,
	}, nil
}

// Symbol implements Feed.
func (f *MemoryFeed) Symbol() string {
	return f.symbol
}

// Bars implements Feed.
func (f *MemoryFeed) Bars(start time.Time, end time.Time) []types.Bar {
	lo := sort.Search(len(f.bars), func(i int) bool {
		return !f.bars[i].Time.Before(start)
	})
	hi := sort.Search(len(f.bars), func(i int) bool {
		return f.bars[i].Time.After(end)
	})

	if lo >= hi {
		return nil
	}

	return f.bars[lo:hi]
}

// Span implements Feed.
func (f *MemoryFeed) Span() (time.Time, time.Time) {
	return f.bars[0].Time, f.bars[len(f.bars)-1].Time
}

// Len implements Feed.
func (f *MemoryFeed) Len() int {
	return len(f.bars)
}
