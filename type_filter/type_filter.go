// Package type_filter admits or drops log entries based on a configured type
// whitelist.
package type_filter

// Filter holds the set of admitted log types. An empty whitelist admits
// every type - the filter is default-open so a missing configuration value
// archives everything rather than silently dropping it.
type Filter struct {
	admitted map[string]struct{}
}

func New(whitelist []string) *Filter {
	f := &Filter{}
	if len(whitelist) > 0 {
		f.admitted = make(map[string]struct{}, len(whitelist))
		for _, t := range whitelist {
			f.admitted[t] = struct{}{}
		}
	}
	return f
}

// Admit reports whether entries of the given type should be archived.
// Dropped entries are a success outcome, not an error: they must not trigger
// retry and must not count as write failures.
func (f *Filter) Admit(logType string) bool {
	if f.admitted == nil {
		return true
	}
	_, ok := f.admitted[logType]
	return ok
}

// Open reports whether the filter admits all types.
func (f *Filter) Open() bool {
	return f.admitted == nil
}
