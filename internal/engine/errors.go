package engine

import "errors"

// Sentinel errors returned by the parser and loader. The Engine converts
// every one of them into a Result, so they only escape through the lower
// level Loader API.
var (
	ErrParse            = errors.New("invalid function source")
	ErrLoad             = errors.New("failed to execute function source")
	ErrTypeMismatch     = errors.New("symbol is not a function")
	ErrMissingArguments = errors.New("missing required parameters")
	ErrInvocation       = errors.New("calculation failed")
	ErrCoercion         = errors.New("result is not a number")
	ErrNotLoaded        = errors.New("no calculation function loaded")
)

// ErrorKind tags a failed Result with the category of its failure
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindNotLoaded        ErrorKind = "not_loaded"
	KindMissingArguments ErrorKind = "missing_arguments"
	KindInvocation       ErrorKind = "invocation"
	KindCoercion         ErrorKind = "coercion"
)
