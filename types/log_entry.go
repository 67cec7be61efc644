package types

// LogEntry is the decoded structured form of a raw record payload - a JSON
// object keyed by string field names. Entries are treated as immutable once
// extraction has run; they live only within one invocation.
type LogEntry map[string]any

// GetString looks up a field and returns its value as a string.
// The second return reports whether the field was present with a usable
// value - explicit nulls and empty strings count as absent.
func (e LogEntry) GetString(field string) (string, bool) {
	v, ok := e[field]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// GetValue looks up a field, reporting presence explicitly rather than
// relying on zero values.
func (e LogEntry) GetValue(field string) (any, bool) {
	v, ok := e[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
