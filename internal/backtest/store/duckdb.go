package store

import (
	"context"
	"database/sql"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/quantbt-lab/quantbt/internal/types"
	"github.com/quantbt-lab/quantbt/pkg/errors"
)

// DuckDBStore persists results in a DuckDB database as JSON payloads keyed
// by task ID. An empty path opens an in-memory database.
type DuckDBStore struct {
	db *sql.DB
	sq sq.StatementBuilderType
}

// NewDuckDBStore opens (and if needed initializes) a result store at path.
func NewDuckDBStore(path string) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed to open duckdb store", err)
	}

	s := &DuckDBStore{
		db: db,
		sq: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *DuckDBStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS backtest_results (
			task_id VARCHAR PRIMARY KEY,
			status VARCHAR NOT NULL,
			strategy_id VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL,
			payload VARCHAR NOT NULL
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to create results table", err)
	}

	return nil
}

// Put implements Store.
func (s *DuckDBStore) Put(ctx context.Context, taskID string, result *types.BacktestResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to serialize result", err)
	}

	query := s.sq.
		Insert("backtest_results").
		Options("OR REPLACE").
		Columns("task_id", "status", "strategy_id", "created_at", "payload").
		Values(taskID, string(result.Status), result.StrategyID, result.StartTime, string(payload))

	if _, err := query.RunWith(s.db).ExecContext(ctx); err != nil {
		return errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to store result for task %s", taskID)
	}

	return nil
}

// Get implements Store.
func (s *DuckDBStore) Get(ctx context.Context, taskID string) (*types.BacktestResult, error) {
	query := s.sq.
		Select("payload").
		From("backtest_results").
		Where(sq.Eq{"task_id": taskID})

	var payload string

	err := query.RunWith(s.db).QueryRowContext(ctx).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrCodeRunNotFound, "no result for task %s", taskID)
	}

	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to load result for task %s", taskID)
	}

	var result types.BacktestResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed to deserialize result", err)
	}

	return &result, nil
}

// List implements Store.
func (s *DuckDBStore) List(ctx context.Context) ([]string, error) {
	query := s.sq.
		Select("task_id").
		From("backtest_results").
		OrderBy("created_at ASC")

	rows, err := query.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed to list results", err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed to scan task id", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, "error iterating results", err)
	}

	return ids, nil
}

// Close implements Store.
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}
