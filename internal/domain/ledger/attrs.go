package ledger

// Remote field-length limits. Writes exceeding these are rejected by the
// ledger service, so desired attributes are truncated before dispatch.
const (
	LimitFirstName     = 100
	LimitLastName      = 100
	LimitStreet        = 50
	LimitHouseNumber   = 9
	LimitPostCode      = 15
	LimitCity          = 50
	LimitCountry       = 2
	LimitEmail         = 65
	LimitArticleNumber = 50
	LimitText          = 100
)

// Trunc shortens s to at most n runes.
func Trunc(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Str reads a string attribute from a decoded payload, returning "" when the
// key is absent or not a string.
func Str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// Int64 reads a numeric attribute from a decoded payload. JSON numbers decode
// as float64; integral string values are not accepted.
func Int64(m map[string]any, key string) (int64, bool) {
	switch v := m[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// Bool reads a boolean attribute from a decoded payload.
func Bool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

// Maps reads a list-of-objects attribute from a decoded payload.
func Maps(m map[string]any, key string) []map[string]any {
	list, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if entry, ok := item.(map[string]any); ok {
			out = append(out, entry)
		}
	}
	return out
}
