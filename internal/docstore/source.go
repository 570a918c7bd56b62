package docstore

import "strings"

// LookupField finds a dotted field in a document source. Both nested objects
// ({"file":{"uri":...}}) and flattened keys ({"file.uri":...}) are understood,
// as is any mix of the two.
func LookupField(source map[string]any, field string) (any, bool) {
	if source == nil {
		return nil, false
	}
	if v, ok := source[field]; ok {
		return v, true
	}
	for i := 0; i < len(field); i++ {
		if field[i] != '.' {
			continue
		}
		child, ok := source[field[:i]].(map[string]any)
		if !ok {
			continue
		}
		if v, ok := LookupField(child, field[i+1:]); ok {
			return v, true
		}
	}
	return nil, false
}

// FirstString returns the field as a string. ECS keyword fields may hold
// either a scalar or an array; for arrays the first element is used.
func FirstString(source map[string]any, field string) (string, bool) {
	v, ok := LookupField(source, field)
	if !ok {
		return "", false
	}
	return firstString(v)
}

func firstString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case []any:
		if len(val) == 0 {
			return "", false
		}
		return firstString(val[0])
	case []string:
		if len(val) == 0 {
			return "", false
		}
		return val[0], true
	default:
		return "", false
	}
}

// splitIndexPattern splits a comma-separated index expression.
func splitIndexPattern(pattern string) []string {
	parts := strings.Split(pattern, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
