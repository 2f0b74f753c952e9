package engine

import (
	"errors"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// Literal answers of the French yes/no form fields
const (
	answerYes = "Oui"
	answerNo  = "Non"
)

// Coerce converts raw form values into typed arguments. Empty strings, nil
// and nested mappings (unfilled compound fields) are dropped. "Oui" and
// "Non" become booleans, strings with a '.' or ',' become floats (comma as
// decimal separator), other strings become integers. Surrounding whitespace
// is ignored when parsing numbers, and integers beyond int64 become *big.Int.
// A value that fails to parse is kept as the original string, and non-string
// values pass through.
func Coerce(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		if isUnset(value) {
			continue
		}
		out[key] = coerceValue(value)
	}
	return out
}

func coerceValue(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}

	switch s {
	case answerYes:
		return true
	case answerNo:
		return false
	}

	t := strings.TrimSpace(s)
	if strings.ContainsAny(t, ".,") {
		f, err := strconv.ParseFloat(strings.ReplaceAll(t, ",", "."), 64)
		if err != nil {
			return s
		}
		return f
	}

	i, err := strconv.ParseInt(t, 10, 64)
	if err == nil {
		return i
	}
	if errors.Is(err, strconv.ErrRange) {
		if n, ok := new(big.Int).SetString(t, 10); ok {
			return n
		}
	}
	return s
}

// isUnset reports whether a raw form value counts as not provided
func isUnset(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case map[string]any, map[string]string:
		return true
	}
	return false
}

// present keeps the raw entries that count as provided, values untouched
func present(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		if !isUnset(value) {
			out[key] = value
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
