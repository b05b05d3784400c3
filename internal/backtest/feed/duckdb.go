package feed

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/quantbt-lab/quantbt/internal/logger"
	"github.com/quantbt-lab/quantbt/internal/types"
	"github.com/quantbt-lab/quantbt/pkg/errors"
)

// DuckDBLoader loads bar files (Parquet or CSV) into immutable MemoryFeed
// snapshots through an in-memory DuckDB instance. Files must expose the
// columns time, open, high, low, close, volume.
type DuckDBLoader struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewDuckDBLoader creates a loader backed by an in-memory DuckDB database.
func NewDuckDBLoader(log *logger.Logger) (*DuckDBLoader, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFeedUnavailable, "failed to open duckdb", err)
	}

	return &DuckDBLoader{
		db:     db,
		logger: log,
	}, nil
}

// Load reads all bars for the given symbol from the file at path, ordered by
// timestamp. The file format is chosen by extension (.parquet or .csv).
func (l *DuckDBLoader) Load(symbol string, path string) (*MemoryFeed, error) {
	var reader string

	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		reader = fmt.Sprintf("read_parquet('%s')", path)
	case ".csv":
		reader = fmt.Sprintf("read_csv_auto('%s')", path)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "unsupported bar file extension: %s", filepath.Ext(path))
	}

	query := fmt.Sprintf(`
		SELECT time, open, high, low, close, volume
		FROM %s
		ORDER BY time ASC
	`, reader)

	rows, err := l.db.Query(query)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to read bars from %s", path)
	}
	defer rows.Close()

	var bars []types.Bar

	for rows.Next() {
		var bar types.Bar

		err := rows.Scan(&bar.Time, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan bar", err)
		}

		bar.Time = bar.Time.UTC()
		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating bars", err)
	}

	l.logger.Debug("Loaded bars",
		zap.String("symbol", symbol),
		zap.String("path", path),
		zap.Int("count", len(bars)),
	)

	return NewMemoryFeed(symbol, bars)
}

// Close releases the underlying database.
func (l *DuckDBLoader) Close() error {
	return l.db.Close()
}
