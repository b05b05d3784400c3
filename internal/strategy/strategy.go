package strategy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/quantbt-lab/quantbt/internal/indicator"
	"github.com/quantbt-lab/quantbt/internal/logger"
	"github.com/quantbt-lab/quantbt/internal/types"
	"github.com/quantbt-lab/quantbt/pkg/errors"
)

// PortfolioView is the read-only account state exposed to strategies. The
// broker owns the authoritative state; strategies can only observe it and
// emit order intents.
type PortfolioView interface {
	Cash() float64
	Position(symbol string) types.Position
	Positions() []types.Position
}

// Context is the per-bar view handed to a strategy. Bars holds the rolling
// history per symbol including the current bar; Current holds only the
// instruments that produced a bar at this timestamp.
type Context struct {
	Time     time.Time
	BarIndex int
	// Symbols is the instrument universe in sorted order.
	Symbols   []string
	Bars      map[string]*indicator.BarSeries
	Current   map[string]types.Bar
	Portfolio PortfolioView
	Logger    *logger.Logger
}

// Strategy is a pre-registered, compiled decision unit. Initialize is called
// once before the first bar with the run's parameter map; OnBar is called
// once per timestamp and returns the order intents to submit; OnFinish is
// called after the last bar of a completed run.
//
// Strategies must be deterministic: no wall clock, no randomness, no
// external I/O. A returned error fails the run.
type Strategy interface {
	Name() string
	Initialize(params map[string]any) error
	OnBar(ctx context.Context, bctx *Context) ([]types.OrderIntent, error)
	OnFinish(bctx *Context)
}

// DecodeParams unmarshals a raw parameter map into a typed parameter struct
// and validates it against its validate tags.
func DecodeParams(params map[string]any, out any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "failed to encode strategy params", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "failed to decode strategy params", err)
	}

	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid strategy params", err)
	}

	return nil
}
