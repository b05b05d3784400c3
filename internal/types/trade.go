package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeSide string

const (
	TradeSideLong  TradeSide = "LONG"
	TradeSideShort TradeSide = "SHORT"
)

// Position is the per-instrument holding owned exclusively by the broker.
// Quantity is signed: positive = long, negative = short. A zero quantity
// always carries a zero average entry price.
type Position struct {
	Symbol        string    `yaml:"symbol" json:"symbol"`
	Quantity      float64   `yaml:"quantity" json:"quantity"`
	AvgEntryPrice float64   `yaml:"avg_entry_price" json:"avg_entry_price"`
	EntryTime     time.Time `yaml:"entry_time" json:"entry_time"`
	EntryBar      int       `yaml:"entry_bar" json:"entry_bar"`
	// EntryCommission accumulates commissions paid on the entry leg(s)
	// of the currently open trade.
	EntryCommission float64 `yaml:"entry_commission" json:"entry_commission"`
}

// MarketValue returns the signed position value at the given price.
func (p Position) MarketValue(price float64) float64 {
	v, _ := decimal.NewFromFloat(p.Quantity).Mul(decimal.NewFromFloat(price)).Float64()

	return v
}

// UnrealizedPnL returns the open profit/loss of the position at the given price.
func (p Position) UnrealizedPnL(price float64) float64 {
	entry := decimal.NewFromFloat(p.Quantity).Mul(decimal.NewFromFloat(p.AvgEntryPrice))
	current := decimal.NewFromFloat(p.Quantity).Mul(decimal.NewFromFloat(price))
	v, _ := current.Sub(entry).Float64()

	return v
}

// IsFlat reports whether the position holds no quantity.
func (p Position) IsFlat() bool {
	return p.Quantity == 0
}

// Trade is a complete round trip: opened when a position leaves flat (or
// reverses), closed when it returns to flat. Append-only once closed.
type Trade struct {
	Symbol     string    `yaml:"symbol" json:"symbol"`
	Side       TradeSide `yaml:"side" json:"side"`
	Quantity   float64   `yaml:"quantity" json:"quantity"`
	EntryTime  time.Time `yaml:"entry_time" json:"entry_time"`
	EntryPrice float64   `yaml:"entry_price" json:"entry_price"`
	EntryBar   int       `yaml:"entry_bar" json:"entry_bar"`
	ExitTime   time.Time `yaml:"exit_time" json:"exit_time"`
	ExitPrice  float64   `yaml:"exit_price" json:"exit_price"`
	ExitBar    int       `yaml:"exit_bar" json:"exit_bar"`
	// GrossPnL is the price-move profit before commissions.
	GrossPnL float64 `yaml:"gross_pnl" json:"gross_pnl"`
	// NetPnL is GrossPnL minus the cumulative commission of both legs.
	NetPnL     float64 `yaml:"net_pnl" json:"net_pnl"`
	Commission float64 `yaml:"commission" json:"commission"`
	// HoldingBars is exit bar index minus entry bar index.
	HoldingBars int `yaml:"holding_bars" json:"holding_bars"`
}
