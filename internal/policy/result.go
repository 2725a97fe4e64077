package policy

// Result maps field paths to violation messages, separated into hard
// errors (block submission) and soft exceptions (submittable, but an
// approver must justify the override). Expected business violations are
// returned here, never raised as Go errors.
type Result struct {
	Errors     map[string][]string `json:"errors"`
	Exceptions map[string][]string `json:"exceptions"`
}

// NewResult creates an empty result
func NewResult() *Result {
	return &Result{
		Errors:     make(map[string][]string),
		Exceptions: make(map[string][]string),
	}
}

// AddError records a hard violation for a field path
func (r *Result) AddError(field, message string) {
	r.Errors[field] = append(r.Errors[field], message)
}

// AddException records a soft violation for a field path
func (r *Result) AddException(field, message string) {
	r.Exceptions[field] = append(r.Exceptions[field], message)
}

// HasErrors returns true if any hard violation was recorded
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasExceptions returns true if any soft violation was recorded
func (r *Result) HasExceptions() bool {
	return len(r.Exceptions) > 0
}

// Merge folds another result into this one
func (r *Result) Merge(other *Result) {
	for field, messages := range other.Errors {
		r.Errors[field] = append(r.Errors[field], messages...)
	}
	for field, messages := range other.Exceptions {
		r.Exceptions[field] = append(r.Exceptions[field], messages...)
	}
}
