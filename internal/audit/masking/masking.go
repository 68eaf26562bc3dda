package masking

import "strings"

const maskToken = "****"

// DefaultSensitiveKeys are occupant contact details that must not leave the
// service in clear text.
var DefaultSensitiveKeys = []string{"email", "phone", "tenant_name"}

// MaskSecret redacts a value while keeping a minimal suffix for correlation.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskFields returns a copy of input in which string values stored under any of
// the sensitive keys, at any depth, are masked. Other values are copied as is.
func MaskFields(input map[string]any, sensitive ...string) map[string]any {
	if len(input) == 0 {
		return input
	}
	keys := make(map[string]struct{}, len(sensitive))
	for _, key := range sensitive {
		keys[strings.ToLower(strings.TrimSpace(key))] = struct{}{}
	}
	return maskMap(input, keys)
}

func maskMap(input map[string]any, keys map[string]struct{}) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		if _, ok := keys[strings.ToLower(key)]; ok {
			if s, isString := value.(string); isString {
				out[key] = MaskSecret(s)
				continue
			}
		}
		out[key] = maskValue(value, keys)
	}
	return out
}

func maskValue(value any, keys map[string]struct{}) any {
	switch cast := value.(type) {
	case map[string]any:
		return maskMap(cast, keys)
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskValue(item, keys))
		}
		return out
	default:
		return value
	}
}
