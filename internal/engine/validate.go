package engine

// Validation is the outcome of checking arguments against a signature
type Validation struct {
	Valid   bool
	Missing []string
}

// Validate lists the required parameters that args does not provide. A
// parameter bound to the empty string counts as missing.
func Validate(params []Parameter, args map[string]any) Validation {
	var missing []string
	for _, p := range params {
		if !p.Required {
			continue
		}
		v, ok := args[p.Name]
		if !ok {
			missing = append(missing, p.Name)
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			missing = append(missing, p.Name)
		}
	}
	return Validation{Valid: len(missing) == 0, Missing: missing}
}
