package commission

// Zero charges no commission.
type Zero struct{}

// NewZero creates a zero-commission scheme.
func NewZero() *Zero {
	return &Zero{}
}

// Calculate implements Scheme.
func (z *Zero) Calculate(quantity float64, price float64) float64 {
	return 0.0
}
