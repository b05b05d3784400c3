package types

import (
	"fmt"
	"os"
	"time"

	"github.com/moznion/go-optional"
	"gopkg.in/yaml.v3"
)

type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCanceled  RunStatus = "CANCELED"
)

// IsTerminal reports whether the run has reached a final state. A result is
// immutable once its status is terminal.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCanceled:
		return true
	default:
		return false
	}
}

// EquityPoint is one per-bar snapshot of account value. Equity is cash plus
// the signed market value of all open positions at the bar close.
type EquityPoint struct {
	Time          time.Time `yaml:"time" json:"time"`
	Equity        float64   `yaml:"equity" json:"equity"`
	Cash          float64   `yaml:"cash" json:"cash"`
	PositionValue float64   `yaml:"position_value" json:"position_value"`
}

// Metrics is the performance-metric set reduced from an equity curve and a
// trade ledger. Ratio metrics are explicitly optional: None means the input
// was too degenerate to define them (for example fewer than two returns, or
// zero volatility) and must never be coerced to zero.
type Metrics struct {
	TotalReturn      float64 `yaml:"total_return" json:"total_return"`
	AnnualizedReturn float64 `yaml:"annualized_return" json:"annualized_return"`
	MaxDrawdown      float64 `yaml:"max_drawdown" json:"max_drawdown"`
	// MaxDrawdownBars is the longest run of bars where equity stays below
	// the prior peak.
	MaxDrawdownBars int `yaml:"max_drawdown_bars" json:"max_drawdown_bars"`

	SharpeRatio  optional.Option[float64] `yaml:"sharpe_ratio" json:"sharpe_ratio"`
	SortinoRatio optional.Option[float64] `yaml:"sortino_ratio" json:"sortino_ratio"`
	CalmarRatio  optional.Option[float64] `yaml:"calmar_ratio" json:"calmar_ratio"`
	ProfitFactor optional.Option[float64] `yaml:"profit_factor" json:"profit_factor"`

	WinRate              float64 `yaml:"win_rate" json:"win_rate"`
	TotalTrades          int     `yaml:"total_trades" json:"total_trades"`
	WinningTrades        int     `yaml:"winning_trades" json:"winning_trades"`
	LosingTrades         int     `yaml:"losing_trades" json:"losing_trades"`
	MaxConsecutiveWins   int     `yaml:"max_consecutive_wins" json:"max_consecutive_wins"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses" json:"max_consecutive_losses"`
	TotalCommission      float64 `yaml:"total_commission" json:"total_commission"`
}

// BacktestResult is the aggregate outcome of one run. Partial equity and
// trade data are preserved on failure for diagnostics.
type BacktestResult struct {
	RunID      string    `yaml:"run_id" json:"run_id"`
	Status     RunStatus `yaml:"status" json:"status"`
	StrategyID string    `yaml:"strategy_id" json:"strategy_id"`
	Symbols    []string  `yaml:"symbols" json:"symbols"`
	StartTime  time.Time `yaml:"start_time" json:"start_time"`
	EndTime    time.Time `yaml:"end_time" json:"end_time"`

	InitialCash float64 `yaml:"initial_cash" json:"initial_cash"`
	FinalEquity float64 `yaml:"final_equity" json:"final_equity"`

	EquityCurve   []EquityPoint `yaml:"equity_curve" json:"equity_curve"`
	DrawdownCurve []float64     `yaml:"drawdown_curve" json:"drawdown_curve"`
	Trades        []Trade       `yaml:"trades" json:"trades"`
	Metrics       Metrics       `yaml:"metrics" json:"metrics"`

	// Warnings lists per-order rejections. They never fail a run.
	Warnings []string `yaml:"warnings,omitempty" json:"warnings,omitempty"`
	// Error holds the failure detail when Status is FAILED.
	Error string `yaml:"error,omitempty" json:"error,omitempty"`

	BarsProcessed int `yaml:"bars_processed" json:"bars_processed"`
}

// WriteResult writes the result as YAML to the given path.
func WriteResult(path string, result *BacktestResult) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal backtest result to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write backtest result to file: %w", err)
	}

	return nil
}
