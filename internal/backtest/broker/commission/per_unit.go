package commission

import (
	"math"

	"github.com/quantbt-lab/quantbt/pkg/errors"
)

// PerUnit charges a fixed fee for every unit traded.
type PerUnit struct {
	feePerUnit float64
}

// NewPerUnit creates a fixed-per-unit scheme with the given fee.
func NewPerUnit(feePerUnit float64) (*PerUnit, error) {
	if feePerUnit < 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "per-unit fee must not be negative, got %f", feePerUnit)
	}

	return &PerUnit{feePerUnit: feePerUnit}, nil
}

// Calculate implements Scheme.
func (p *PerUnit) Calculate(quantity float64, price float64) float64 {
	return math.Abs(quantity) * p.feePerUnit
}
