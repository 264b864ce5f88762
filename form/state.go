package form

import (
	"maps"
	"sync"
)

// Values maps field names to their current text.
type Values map[string]string

// ValidateFunc returns field-name to message for every invalid field.
type ValidateFunc func(Values) map[string]string

// State is safe for concurrent use.
type State struct {
	mu       sync.Mutex
	fields   []string
	values   Values
	touched  map[string]bool
	errors   map[string]string
	validate ValidateFunc
}

// View is an immutable copy of a State.
type View struct {
	Values  Values
	Touched map[string]bool
	Errors  map[string]string
}

// New creates a State with empty values for fields.
func New(validate ValidateFunc, fields ...string) *State {
	s := &State{
		fields:   append([]string(nil), fields...),
		values:   make(Values, len(fields)),
		touched:  make(map[string]bool, len(fields)),
		errors:   make(map[string]string, len(fields)),
		validate: validate,
	}
	for _, f := range fields {
		s.values[f] = ""
	}
	return s
}

// SetValidator swaps the validation function and re-runs it.
func (s *State) SetValidator(validate ValidateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validate = validate
	s.revalidateLocked()
}

// Change sets the value of field and re-validates.
func (s *State) Change(field, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[field] = value
	s.revalidateLocked()
}

// Blur marks field touched and re-validates.
func (s *State) Blur(field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[field] = true
	s.revalidateLocked()
}

// Touch marks fields touched without re-validating.
func (s *State) Touch(fields ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fields {
		s.touched[f] = true
	}
}

// Validate re-runs validation and returns the current errors.
func (s *State) Validate() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revalidateLocked()
	return maps.Clone(s.errors)
}

// Value returns the current value of field.
func (s *State) Value(field string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[field]
}

// VisibleError returns the error for field if it is touched.
func (s *State) VisibleError(field string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.touched[field] {
		return ""
	}
	return s.errors[field]
}

// ResetStatus clears touched flags and errors of fields. Values are kept.
func (s *State) ResetStatus(fields ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(fields) == 0 {
		fields = s.fields
	}
	for _, f := range fields {
		delete(s.touched, f)
		delete(s.errors, f)
	}
}

// Reset empties every value and clears touched flags and errors.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.fields {
		s.values[f] = ""
	}
	clear(s.touched)
	clear(s.errors)
}

// Snapshot returns a copy of the state.
func (s *State) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Values:  maps.Clone(s.values),
		Touched: maps.Clone(s.touched),
		Errors:  maps.Clone(s.errors),
	}
}

func (s *State) revalidateLocked() {
	clear(s.errors)
	if s.validate == nil {
		return
	}
	for field, msg := range s.validate(maps.Clone(s.values)) {
		s.errors[field] = msg
	}
}
