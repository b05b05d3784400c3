package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/quantbt-lab/quantbt/internal/types"
	"github.com/quantbt-lab/quantbt/pkg/errors"
)

type MemoryFeedTestSuite struct {
	suite.Suite
	base time.Time
}

func TestMemoryFeedSuite(t *testing.T) {
	suite.Run(t, new(MemoryFeedTestSuite))
}

func (suite *MemoryFeedTestSuite) SetupTest() {
	suite.base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (suite *MemoryFeedTestSuite) bars(n int) []types.Bar {
	bars := make([]types.Bar, n)
	for i := range bars {
		bars[i] = types.Bar{
			Time:  suite.base.Add(time.Duration(i) * time.Hour),
			Open:  100 + float64(i),
			High:  101 + float64(i),
			Low:   99 + float64(i),
			Close: 100.5 + float64(i),
		}
	}

	return bars
}

func (suite *MemoryFeedTestSuite) TestRejectsEmptyAndUnordered() {
	_, err := NewMemoryFeed("BTC", nil)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeDataNotFound))

	bars := suite.bars(3)
	bars[2].Time = bars[1].Time

	_, err = NewMemoryFeed("BTC", bars)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeBarOrderViolation))

	_, err = NewMemoryFeed("", suite.bars(1))
	suite.Require().Error(err)
}

func (suite *MemoryFeedTestSuite) TestSnapshotIsDetached() {
	bars := suite.bars(2)

	feed, err := NewMemoryFeed("BTC", bars)
	suite.Require().NoError(err)

	bars[0].Close = -1

	got := feed.Bars(suite.base, suite.base.Add(time.Hour))
	suite.Require().Len(got, 2)
	suite.Equal(100.5, got[0].Close)
	suite.Equal("BTC", got[0].Symbol)
}

func (suite *MemoryFeedTestSuite) TestRangeSlicing() {
	feed, err := NewMemoryFeed("BTC", suite.bars(5))
	suite.Require().NoError(err)

	testCases := []struct {
		name  string
		start time.Time
		end   time.Time
		want  int
	}{
		{name: "full span", start: suite.base, end: suite.base.Add(4 * time.Hour), want: 5},
		{name: "interior", start: suite.base.Add(time.Hour), end: suite.base.Add(3 * time.Hour), want: 3},
		{name: "inclusive bounds", start: suite.base.Add(2 * time.Hour), end: suite.base.Add(2 * time.Hour), want: 1},
		{name: "before span", start: suite.base.Add(-2 * time.Hour), end: suite.base.Add(-time.Hour), want: 0},
		{name: "after span", start: suite.base.Add(5 * time.Hour), end: suite.base.Add(9 * time.Hour), want: 0},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			suite.Len(feed.Bars(tc.start, tc.end), tc.want)
		})
	}
}

func (suite *MemoryFeedTestSuite) TestSpanAndLen() {
	feed, err := NewMemoryFeed("BTC", suite.bars(4))
	suite.Require().NoError(err)

	first, last := feed.Span()
	suite.Equal(suite.base, first)
	suite.Equal(suite.base.Add(3*time.Hour), last)
	suite.Equal(4, feed.Len())
	suite.Equal("BTC", feed.Symbol())
}
