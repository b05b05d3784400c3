package strategy

import (
	"sort"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/quantbt-lab/quantbt/pkg/errors"
)

// Factory builds a fresh strategy instance for one run. Instances are never
// shared between runs.
type Factory func() Strategy

// Registration describes one catalog entry: a stable ID, a factory, and the
// JSON schema of the parameters the strategy accepts.
type Registration struct {
	ID          string
	Description string
	Factory     Factory
	ParamSchema *jsonschema.Schema
}

// Registry is the strategy catalog. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Registration),
	}
}

// NewDefaultRegistry creates a registry preloaded with the built-in
// strategies.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()

	// Registration of built-ins cannot collide.
	_ = r.Register(Registration{
		ID:          "buy_and_hold",
		Description: "Buys a fixed quantity on the first bar and holds it",
		Factory:     func() Strategy { return &BuyAndHold{} },
		ParamSchema: ParamSchema(&BuyAndHoldParams{}),
	})
	_ = r.Register(Registration{
		ID:          "sma_cross",
		Description: "Enters long on a fast/slow moving-average golden cross, exits on the death cross",
		Factory:     func() Strategy { return &SMACross{} },
		ParamSchema: ParamSchema(&SMACrossParams{}),
	})
	_ = r.Register(Registration{
		ID:          "rsi_reversion",
		Description: "Buys oversold RSI readings and exits when RSI recovers",
		Factory:     func() Strategy { return &RSIReversion{} },
		ParamSchema: ParamSchema(&RSIReversionParams{}),
	})

	return r
}

// Register adds a catalog entry. Registering an existing ID is an error.
func (r *Registry) Register(reg Registration) error {
	if reg.ID == "" || reg.Factory == nil {
		return errors.New(errors.ErrCodeInvalidParameter, "strategy registration requires an ID and a factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[reg.ID]; exists {
		return errors.Newf(errors.ErrCodeStrategyExists, "strategy already registered: %s", reg.ID)
	}

	r.entries[reg.ID] = reg

	return nil
}

// Resolve returns the registration for the given ID.
func (r *Registry) Resolve(id string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entries[id]
	if !ok {
		return Registration{}, errors.Newf(errors.ErrCodeStrategyNotFound, "strategy not found: %s", id)
	}

	return reg, nil
}

// List returns all registrations sorted by ID.
func (r *Registry) List() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registration, 0, len(r.entries))
	for _, reg := range r.entries {
		out = append(out, reg)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// ParamSchema reflects the JSON schema of a parameter struct.
func ParamSchema(params any) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}

	return reflector.Reflect(params)
}
