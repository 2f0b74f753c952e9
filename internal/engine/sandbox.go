package engine

import (
	"fmt"
	"math"
	"math/big"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// defaultUniverse lists the interpreter builtins calculation functions may use
var defaultUniverse = []string{
	"None", "True", "False",
	"abs", "min", "max", "len", "range",
	"int", "float", "str", "bool", "list", "dict", "tuple",
	"enumerate", "zip", "sorted", "reversed", "any", "all",
}

// maxPowExponent bounds integer exponentiation so a fiche cannot allocate
// unbounded big integers.
const maxPowExponent = 4096

// Sandbox is the frozen execution namespace offered to calculation
// functions. Build one with SandboxBuilder and share it freely: nothing in
// it can be mutated by executed code.
type Sandbox struct {
	predeclared starlark.StringDict
	universal   map[string]bool
}

// SandboxBuilder assembles a Sandbox allow-list
type SandboxBuilder struct {
	universal map[string]bool
	builtins  starlark.StringDict
}

// NewSandboxBuilder returns an empty builder
func NewSandboxBuilder() *SandboxBuilder {
	return &SandboxBuilder{
		universal: make(map[string]bool),
		builtins:  make(starlark.StringDict),
	}
}

// WithUniverse allows the named interpreter builtins. Names the interpreter
// does not provide are ignored.
func (b *SandboxBuilder) WithUniverse(names ...string) *SandboxBuilder {
	for _, name := range names {
		if _, ok := starlark.Universe[name]; ok {
			b.universal[name] = true
		}
	}
	return b
}

// WithBuiltin adds a Go implemented builtin under name
func (b *SandboxBuilder) WithBuiltin(name string, fn func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)) *SandboxBuilder {
	b.builtins[name] = starlark.NewBuiltin(name, fn)
	return b
}

// Build freezes the allow-list into a Sandbox
func (b *SandboxBuilder) Build() *Sandbox {
	predeclared := make(starlark.StringDict, len(b.builtins))
	for name, v := range b.builtins {
		predeclared[name] = v
	}
	predeclared.Freeze()

	universal := make(map[string]bool, len(b.universal))
	for name := range b.universal {
		universal[name] = true
	}

	return &Sandbox{predeclared: predeclared, universal: universal}
}

// DefaultSandbox returns the standard allow-list: the pure interpreter
// builtins plus sum, round, pow and abs.
func DefaultSandbox() *Sandbox {
	b := NewSandboxBuilder().
		WithUniverse(defaultUniverse...).
		WithBuiltin("sum", builtinSum).
		WithBuiltin("round", builtinRound).
		WithBuiltin("pow", builtinPow)
	if _, ok := starlark.Universe["abs"]; !ok {
		b.WithBuiltin("abs", builtinAbs)
	}
	return b.Build()
}

// IsPredeclared reports whether name is a sandbox builtin
func (s *Sandbox) IsPredeclared(name string) bool {
	return s.predeclared.Has(name)
}

// IsUniversal reports whether name is an allowed interpreter builtin
func (s *Sandbox) IsUniversal(name string) bool {
	return s.universal[name]
}

// Names returns every identifier the sandbox exposes, sorted
func (s *Sandbox) Names() []string {
	names := make([]string, 0, len(s.predeclared)+len(s.universal))
	for name := range s.predeclared {
		names = append(names, name)
	}
	for name := range s.universal {
		if !s.predeclared.Has(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func builtinSum(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Iterable
	var start starlark.Value = starlark.MakeInt(0)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "iterable", &iterable, "start?", &start); err != nil {
		return nil, err
	}

	iter := iterable.Iterate()
	defer iter.Done()

	acc := start
	var x starlark.Value
	for iter.Next(&x) {
		next, err := starlark.Binary(syntax.PLUS, acc, x)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		acc = next
	}
	return acc, nil
}

func builtinRound(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var number starlark.Value
	var ndigits starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "number", &number, "ndigits?", &ndigits); err != nil {
		return nil, err
	}

	f, ok := starlark.AsFloat(number)
	if !ok {
		return nil, fmt.Errorf("%s: got %s, want number", b.Name(), number.Type())
	}

	if ndigits == starlark.None {
		if i, ok := number.(starlark.Int); ok {
			return i, nil
		}
		return starlark.NumberToInt(starlark.Float(math.RoundToEven(f)))
	}

	n, err := starlark.AsInt32(ndigits)
	if err != nil {
		return nil, fmt.Errorf("%s: ndigits: %w", b.Name(), err)
	}
	if i, ok := number.(starlark.Int); ok && n >= 0 {
		return i, nil
	}
	scale := math.Pow(10, float64(n))
	return starlark.Float(math.RoundToEven(f*scale) / scale), nil
}

func builtinPow(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var base, exp starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &base, &exp); err != nil {
		return nil, err
	}

	if bi, ok := base.(starlark.Int); ok {
		if ei, ok := exp.(starlark.Int); ok && ei.Sign() >= 0 {
			e, ok := ei.Int64()
			if !ok || e > maxPowExponent {
				return nil, fmt.Errorf("%s: exponent too large", b.Name())
			}
			return starlark.MakeBigInt(new(big.Int).Exp(bi.BigInt(), big.NewInt(e), nil)), nil
		}
	}

	x, ok := starlark.AsFloat(base)
	if !ok {
		return nil, fmt.Errorf("%s: got %s, want number", b.Name(), base.Type())
	}
	y, ok := starlark.AsFloat(exp)
	if !ok {
		return nil, fmt.Errorf("%s: got %s, want number", b.Name(), exp.Type())
	}
	if x == 0 && y < 0 {
		return nil, fmt.Errorf("%s: zero cannot be raised to a negative power", b.Name())
	}
	return starlark.Float(math.Pow(x, y)), nil
}

func builtinAbs(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	switch v := x.(type) {
	case starlark.Int:
		if v.Sign() < 0 {
			return starlark.MakeInt(0).Sub(v), nil
		}
		return v, nil
	case starlark.Float:
		return starlark.Float(math.Abs(float64(v))), nil
	}
	return nil, fmt.Errorf("%s: got %s, want number", b.Name(), x.Type())
}
