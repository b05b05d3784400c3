package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"

	"github.com/quantbt-lab/quantbt/pkg/errors"
)

type Side string

type PriceMode string

type OrderStatus string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
	// SideClose closes the full open position regardless of its direction.
	SideClose Side = "CLOSE"
)

const (
	// PriceModeMarketOnOpen fills at the following bar's open.
	PriceModeMarketOnOpen PriceMode = "MARKET_ON_OPEN"
	// PriceModeAtClose fills at the current bar's close.
	PriceModeAtClose PriceMode = "AT_CLOSE"
	// PriceModeLimit fills at the limit price once a subsequent bar's
	// high/low range crosses it, never better.
	PriceModeLimit PriceMode = "LIMIT"
)

const (
	OrderStatusSubmitted OrderStatus = "SUBMITTED"
	OrderStatusAccepted  OrderStatus = "ACCEPTED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
	OrderStatusRejected  OrderStatus = "REJECTED"
	// OrderStatusMarginRejected marks an order whose fill would have
	// required more cash than available. Terminal but non-fatal.
	OrderStatusMarginRejected OrderStatus = "MARGIN_REJECTED"
)

const (
	RejectReasonInsufficientCash  string = "insufficient_cash"
	RejectReasonZeroQuantity      string = "zero_quantity"
	RejectReasonUnknownInstrument string = "unknown_instrument"
	RejectReasonShortDisabled     string = "short_selling_disabled"
	RejectReasonMissingLimitPrice string = "missing_limit_price"
	RejectReasonNoPosition        string = "no_position_to_close"
)

// OrderIntent is a single order decision emitted by strategy logic. It is
// consumed exactly once by the broker at the bar boundary determined by its
// price mode.
type OrderIntent struct {
	Symbol    string    `yaml:"symbol" json:"symbol" validate:"required"`
	Side      Side      `yaml:"side" json:"side" validate:"required,oneof=BUY SELL CLOSE"`
	Quantity  float64   `yaml:"quantity" json:"quantity" validate:"gte=0"`
	PriceMode PriceMode `yaml:"price_mode" json:"price_mode" validate:"required,oneof=MARKET_ON_OPEN AT_CLOSE LIMIT"`
	// LimitPrice must be set for LIMIT intents and is ignored otherwise.
	LimitPrice optional.Option[float64] `yaml:"limit_price,omitempty" json:"limit_price,omitempty"`
}

// Validate validates the OrderIntent struct.
func (oi *OrderIntent) Validate() error {
	validate := validator.New()
	if err := validate.Struct(oi); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidIntent, "invalid order intent", err)
	}

	return nil
}

// Order is the broker-side handle for a submitted intent. Its status moves
// Submitted -> Accepted -> {Completed | Canceled | Rejected | MarginRejected};
// terminal states are final and a completed order yields exactly one fill.
type Order struct {
	ID           string      `yaml:"id" json:"id"`
	Intent       OrderIntent `yaml:"intent" json:"intent"`
	Status       OrderStatus `yaml:"status" json:"status"`
	Reason       string      `yaml:"reason,omitempty" json:"reason,omitempty"`
	SubmittedAt  time.Time   `yaml:"submitted_at" json:"submitted_at"`
	SubmittedBar int         `yaml:"submitted_bar" json:"submitted_bar"`
}

// IsTerminal reports whether the order has reached a final state.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusCompleted, OrderStatusCanceled, OrderStatusRejected, OrderStatusMarginRejected:
		return true
	default:
		return false
	}
}

// Fill is the execution record produced when an order is matched against a
// bar. Commission is computed at fill time and never retroactively adjusted.
type Fill struct {
	OrderID    string    `yaml:"order_id" json:"order_id"`
	Symbol     string    `yaml:"symbol" json:"symbol"`
	Price      float64   `yaml:"price" json:"price"`
	Quantity   float64   `yaml:"quantity" json:"quantity"` // signed, positive = buy
	Commission float64   `yaml:"commission" json:"commission"`
	Time       time.Time `yaml:"time" json:"time"`
	BarIndex   int       `yaml:"bar_index" json:"bar_index"`
}
