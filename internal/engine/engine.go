package engine

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultConversionRate is the average market price of one kWh cumac, in euros
const DefaultConversionRate = 0.0065

// Result is the outcome of one calculation. Failures carry a Kind and a
// displayable Error; Cumacs and Euros are zero in that case.
type Result struct {
	Success bool      `json:"success"`
	Cumacs  float64   `json:"cumacs"`
	Euros   float64   `json:"euros"`
	Error   string    `json:"error,omitempty"`
	Kind    ErrorKind `json:"kind,omitempty"`
}

func failure(kind ErrorKind, err error) Result {
	return Result{Success: false, Error: err.Error(), Kind: kind}
}

// Engine holds the calculation function of one fiche selection. It is not
// safe for concurrent use: give every user session its own Engine.
type Engine struct {
	loader  *Loader
	rate    decimal.Decimal
	logger  *log.Logger
	current *FunctionDefinition
	lastErr error
}

// Option configures an Engine
type Option func(*Engine)

// WithConversionRate sets the euro price of one kWh cumac
func WithConversionRate(rate float64) Option {
	return func(e *Engine) {
		e.rate = decimal.NewFromFloat(rate)
	}
}

// WithLoader replaces the default strict loader
func WithLoader(l *Loader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithLogger routes load and calculation diagnostics to logger
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an engine with no function loaded
func New(opts ...Option) *Engine {
	e := &Engine{
		loader: DefaultLoader(),
		rate:   decimal.NewFromFloat(DefaultConversionRate),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ConversionRate returns the euro price of one kWh cumac
func (e *Engine) ConversionRate() float64 {
	return e.rate.InexactFloat64()
}

// LoadFunction replaces the current function with the one defined in src.
// On failure the engine is left with no function and the cause is logged
// and kept for LastLoadError.
func (e *Engine) LoadFunction(src string) bool {
	def, err := e.loader.Load(src)
	if err != nil {
		e.current = nil
		e.lastErr = err
		e.logger.Printf("Warning: failed to load calculation function: %v", err)
		return false
	}
	e.current = def
	e.lastErr = nil
	return true
}

// LastLoadError returns why the last LoadFunction call failed, if it did
func (e *Engine) LastLoadError() error {
	return e.lastErr
}

// Loaded reports whether a function is ready to calculate
func (e *Engine) Loaded() bool {
	return e.current != nil
}

// Current returns the loaded function definition, or nil
func (e *Engine) Current() *FunctionDefinition {
	return e.current
}

// RequiredParameters returns the signature of the loaded function, or nil
// when nothing is loaded.
func (e *Engine) RequiredParameters() []Parameter {
	if e.current == nil {
		return nil
	}
	params := make([]Parameter, len(e.current.Parameters))
	copy(params, e.current.Parameters)
	return params
}

// Unload forgets the current function
func (e *Engine) Unload() {
	e.current = nil
	e.lastErr = nil
}

// Calculate runs the loaded function on raw form values. It never returns an
// error: every failure is reported through the Result.
func (e *Engine) Calculate(raw map[string]any) Result {
	if e.current == nil {
		return failure(KindNotLoaded, ErrNotLoaded)
	}

	if v := Validate(e.current.Parameters, present(raw)); !v.Valid {
		return failure(KindMissingArguments, fmt.Errorf("%w: %s", ErrMissingArguments, strings.Join(v.Missing, ", ")))
	}

	value, err := e.loader.Call(e.current, Coerce(raw))
	if err != nil {
		e.logger.Printf("Warning: %s: %v", e.current.Name, err)
		return failure(KindInvocation, err)
	}

	cumacs, err := toNumber(value)
	if err != nil {
		e.logger.Printf("Warning: %s: %v", e.current.Name, err)
		return failure(KindCoercion, err)
	}

	return Result{
		Success: true,
		Cumacs:  cumacs,
		Euros:   e.toEuros(cumacs),
	}
}

// toEuros converts cumacs to euros in decimal arithmetic
func (e *Engine) toEuros(cumacs float64) float64 {
	return decimal.NewFromFloat(cumacs).Mul(e.rate).InexactFloat64()
}

// Describe returns a one-line description of a failed load, for UI display
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrParse):
		return "the fiche has no valid calculation function"
	case errors.Is(err, ErrTypeMismatch):
		return "the fiche calculation entry point is not a function"
	case errors.Is(err, ErrLoad):
		return "the fiche calculation function could not be executed"
	default:
		return err.Error()
	}
}
