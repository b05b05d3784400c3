package types

import (
	"time"
)

// Bar is one OHLCV candle for a single instrument. Bars are immutable and
// arrive in strictly increasing Time order within a feed; timestamps are
// comparable across instruments.
type Bar struct {
	Symbol string    `yaml:"symbol" json:"symbol" csv:"symbol"`
	Time   time.Time `yaml:"time" json:"time" csv:"time"`
	Open   float64   `yaml:"open" json:"open" csv:"open"`
	High   float64   `yaml:"high" json:"high" csv:"high"`
	Low    float64   `yaml:"low" json:"low" csv:"low"`
	Close  float64   `yaml:"close" json:"close" csv:"close"`
	Volume float64   `yaml:"volume" json:"volume" csv:"volume"`

	// Aux carries optional per-bar fields beyond OHLCV, such as a premium
	// rate or a sentiment index. Strategies read it by key; the engine never
	// interprets it.
	Aux map[string]float64 `yaml:"aux,omitempty" json:"aux,omitempty"`
}
