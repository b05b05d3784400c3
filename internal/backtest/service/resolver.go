package service

import (
	"context"

	"github.com/quantbt-lab/quantbt/internal/backtest/feed"
	"github.com/quantbt-lab/quantbt/internal/logger"
)

// FileFeedResolver loads bar files from local disk through a DuckDB loader.
type FileFeedResolver struct {
	logger *logger.Logger
}

// NewFileFeedResolver creates a file-backed resolver.
func NewFileFeedResolver(log *logger.Logger) *FileFeedResolver {
	return &FileFeedResolver{logger: log}
}

// Resolve implements FeedResolver. Each run gets its own loader so concurrent
// runs never share a database handle.
func (r *FileFeedResolver) Resolve(ctx context.Context, data map[string]string) (map[string]feed.Feed, error) {
	loader, err := feed.NewDuckDBLoader(r.logger)
	if err != nil {
		return nil, err
	}
	defer loader.Close()

	feeds := make(map[string]feed.Feed, len(data))

	for symbol, path := range data {
		f, err := loader.Load(symbol, path)
		if err != nil {
			return nil, err
		}

		feeds[symbol] = f
	}

	return feeds, nil
}

// StaticFeedResolver serves a fixed feed set, ignoring the request's file
// mapping. Used by tests and embedded callers that already hold bars.
type StaticFeedResolver struct {
	feeds map[string]feed.Feed
}

// NewStaticFeedResolver creates a resolver over pre-built feeds.
func NewStaticFeedResolver(feeds map[string]feed.Feed) *StaticFeedResolver {
	return &StaticFeedResolver{feeds: feeds}
}

// Resolve implements FeedResolver.
func (r *StaticFeedResolver) Resolve(ctx context.Context, data map[string]string) (map[string]feed.Feed, error) {
	return r.feeds, nil
}
