package engine

import (
	"fmt"
	"log"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
)

// DefaultMaxSteps bounds the interpreter steps of one load or one call
const DefaultMaxSteps uint64 = 1_000_000

// FunctionDefinition is a loaded calculation function
type FunctionDefinition struct {
	Source     string
	Name       string
	Callable   *starlark.Function
	Parameters []Parameter
}

// RequiredNames returns the names of the required parameters in order
func (d *FunctionDefinition) RequiredNames() []string {
	var names []string
	for _, p := range d.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// LoaderOptions tunes how function sources are resolved and executed
type LoaderOptions struct {
	// Strict restricts identifiers to the sandbox allow-list. When false the
	// whole interpreter universe resolves, which is still free of I/O.
	Strict bool
	// MaxSteps caps interpreter steps per execution, 0 means unlimited
	MaxSteps uint64
}

// Loader turns function source text into a FunctionDefinition
type Loader struct {
	sandbox *Sandbox
	opts    LoaderOptions
}

// NewLoader creates a loader bound to sandbox
func NewLoader(sandbox *Sandbox, opts LoaderOptions) *Loader {
	if sandbox == nil {
		sandbox = DefaultSandbox()
	}
	return &Loader{sandbox: sandbox, opts: opts}
}

// DefaultLoader returns a strict loader over the default sandbox
func DefaultLoader() *Loader {
	return NewLoader(DefaultSandbox(), LoaderOptions{Strict: true, MaxSteps: DefaultMaxSteps})
}

// Sandbox returns the loader's execution namespace
func (l *Loader) Sandbox() *Sandbox {
	return l.sandbox
}

// Load parses src, executes it in the sandbox and binds its first function
func (l *Loader) Load(src string) (*FunctionDefinition, error) {
	file, def, err := parseSource(src)
	if err != nil {
		return nil, err
	}
	name := def.Name.Name

	if l.opts.Strict {
		if err := resolve.File(file, l.sandbox.IsPredeclared, l.sandbox.IsUniversal); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoad, err)
		}
	}

	thread := l.newThread("load " + name)
	globals, err := starlark.ExecFileOptions(fileOptions, thread, sourceFilename, src, l.sandbox.predeclared)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	value, ok := globals[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not bound after execution", ErrTypeMismatch, name)
	}
	fn, ok := value.(*starlark.Function)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s", ErrTypeMismatch, name, value.Type())
	}

	return &FunctionDefinition{
		Source:     src,
		Name:       name,
		Callable:   fn,
		Parameters: ExtractParameters(fn),
	}, nil
}

// Call invokes def with keyword arguments converted from args
func (l *Loader) Call(def *FunctionDefinition, args map[string]any) (result starlark.Value, err error) {
	kwargs := make([]starlark.Tuple, 0, len(args))
	for _, p := range def.Parameters {
		v, ok := args[p.Name]
		if !ok {
			continue
		}
		sv, err := toStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvocation, p.Name, err)
		}
		kwargs = append(kwargs, starlark.Tuple{starlark.String(p.Name), sv})
	}
	// Arguments outside the signature are passed through so the function
	// reports them, as a direct call would.
	for _, name := range sortedKeys(args) {
		if def.hasParameter(name) {
			continue
		}
		sv, err := toStarlark(args[name])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvocation, name, err)
		}
		kwargs = append(kwargs, starlark.Tuple{starlark.String(name), sv})
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: panic: %v", ErrInvocation, r)
		}
	}()

	thread := l.newThread("call " + def.Name)
	result, err = starlark.Call(thread, def.Callable, nil, kwargs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvocation, err)
	}
	return result, nil
}

func (l *Loader) newThread(name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(t *starlark.Thread, msg string) {
			log.Printf("[%s] %s", t.Name, msg)
		},
	}
	if l.opts.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(l.opts.MaxSteps)
	}
	return thread
}

func (d *FunctionDefinition) hasParameter(name string) bool {
	for _, p := range d.Parameters {
		if p.Name == name {
			return true
		}
	}
	return false
}
