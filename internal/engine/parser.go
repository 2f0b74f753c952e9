package engine

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// sourceFilename is the pseudo file name reported in parse and runtime errors
const sourceFilename = "fiche.star"

// fileOptions enables the Python constructs fiche authors rely on. Global
// reassignment stays on so that a source rebinding its function name is
// reported as a type mismatch rather than a syntax error.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// ParamKind classifies a formal parameter
type ParamKind string

const (
	PositionalOrKeyword ParamKind = "positional_or_keyword"
	KeywordOnly         ParamKind = "keyword_only"
	VarPositional       ParamKind = "var_positional"
	VarKeyword          ParamKind = "var_keyword"
)

// Parameter describes one formal parameter of a calculation function
type Parameter struct {
	Name       string    `json:"name"`
	Default    any       `json:"default,omitempty"`
	HasDefault bool      `json:"has_default"`
	Required   bool      `json:"required"`
	Kind       ParamKind `json:"kind"`
	// Annotation is kept for callers that render type hints. Starlark has
	// no annotation syntax, so it is always empty: a source with annotated
	// parameters such as def f(surface: float) is rejected with ErrParse.
	Annotation string `json:"annotation,omitempty"`
}

// parseSource parses src and returns the file together with its first
// top-level function definition.
func parseSource(src string) (*syntax.File, *syntax.DefStmt, error) {
	f, err := fileOptions.Parse(sourceFilename, src, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	for _, stmt := range f.Stmts {
		if def, ok := stmt.(*syntax.DefStmt); ok {
			return f, def, nil
		}
	}

	return nil, nil, fmt.Errorf("%w: no function definition found", ErrParse)
}

// ExtractFunctionName returns the name of the first function defined at the
// top level of src. Later definitions are ignored.
func ExtractFunctionName(src string) (string, error) {
	_, def, err := parseSource(src)
	if err != nil {
		return "", err
	}
	return def.Name.Name, nil
}

// ExtractParameters lists the formal parameters of fn in declaration order.
// The interpreter reports *args and **kwargs after the named parameters.
func ExtractParameters(fn *starlark.Function) []Parameter {
	total := fn.NumParams()
	named := total
	if fn.HasVarargs() {
		named--
	}
	if fn.HasKwargs() {
		named--
	}
	kwonlyStart := named - fn.NumKwonlyParams()

	params := make([]Parameter, 0, total)
	for i := 0; i < total; i++ {
		name, _ := fn.Param(i)
		p := Parameter{Name: name}

		switch {
		case i < kwonlyStart:
			p.Kind = PositionalOrKeyword
		case i < named:
			p.Kind = KeywordOnly
		case fn.HasVarargs() && i == named:
			p.Kind = VarPositional
		default:
			p.Kind = VarKeyword
		}

		if i < named {
			if d := fn.ParamDefault(i); d != nil {
				p.Default = fromStarlark(d)
				p.HasDefault = true
			}
			p.Required = !p.HasDefault
		}

		params = append(params, p)
	}

	return params
}
