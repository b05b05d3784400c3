package commission

import (
	"github.com/quantbt-lab/quantbt/pkg/errors"
)

// Scheme computes the commission charged for one fill. The fee is computed
// at fill time from the executed quantity and price and is never
// retroactively adjusted.
type Scheme interface {
	// Calculate returns the commission in account currency for a fill of
	// the given absolute quantity at the given price.
	Calculate(quantity float64, price float64) float64
}

type SchemeType string

const (
	SchemeTypePercent SchemeType = "percent_of_notional"
	SchemeTypePerUnit SchemeType = "fixed_per_unit"
	SchemeTypeZero    SchemeType = "zero"
)

// Config selects and parameterizes a commission scheme.
type Config struct {
	Type SchemeType `yaml:"type" json:"type"`
	// Rate is the fraction of notional for percent schemes, or the fee
	// per unit for per-unit schemes. Ignored by the zero scheme.
	Rate float64 `yaml:"rate" json:"rate"`
}

// NewScheme builds the scheme described by the config. An empty type with a
// positive rate defaults to percent-of-notional; an empty config is zero
// commission.
func NewScheme(cfg Config) (Scheme, error) {
	schemeType := cfg.Type
	if schemeType == "" {
		if cfg.Rate > 0 {
			schemeType = SchemeTypePercent
		} else {
			schemeType = SchemeTypeZero
		}
	}

	switch schemeType {
	case SchemeTypePercent:
		return NewPercentOfNotional(cfg.Rate)
	case SchemeTypePerUnit:
		return NewPerUnit(cfg.Rate)
	case SchemeTypeZero:
		return NewZero(), nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "unknown commission scheme: %s", cfg.Type)
	}
}
