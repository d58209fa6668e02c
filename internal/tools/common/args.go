package common

// GetStringArg extracts a string argument, returning fallback when the
// argument is absent, empty, or not a string.
func GetStringArg(args map[string]interface{}, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// GetIntArg extracts an integer argument. JSON numbers arrive as float64,
// so both forms are accepted.
func GetIntArg(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

// GetBoolArg extracts a boolean argument, returning fallback when absent
// or not a bool.
func GetBoolArg(args map[string]interface{}, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}
