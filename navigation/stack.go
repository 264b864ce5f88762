package navigation

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
)

// ErrUnknownScreen is returned when navigating to a screen not registered
// with the stack.
var ErrUnknownScreen = errors.New("unknown screen")

// Entry is one navigation.
type Entry struct {
	Screen string
	Params map[string]string
}

// Stack records navigations in order.
type Stack struct {
	mu      sync.Mutex
	allowed map[string]struct{}
	entries []Entry
	onNav   func(Entry)
}

// NewStack creates a Stack. With no screens every name is accepted.
func NewStack(screens ...string) *Stack {
	s := &Stack{}
	if len(screens) > 0 {
		s.allowed = make(map[string]struct{}, len(screens))
		for _, name := range screens {
			s.allowed[name] = struct{}{}
		}
	}
	return s
}

// OnNavigate registers a callback invoked after each successful navigation.
func (s *Stack) OnNavigate(fn func(Entry)) {
	s.mu.Lock()
	s.onNav = fn
	s.mu.Unlock()
}

// Navigate pushes screen with a copy of params.
func (s *Stack) Navigate(ctx context.Context, screen string, params map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.allowed != nil {
		if _, ok := s.allowed[screen]; !ok {
			s.mu.Unlock()
			return ErrUnknownScreen
		}
	}
	entry := Entry{Screen: screen, Params: maps.Clone(params)}
	s.entries = append(s.entries, entry)
	fn := s.onNav
	s.mu.Unlock()

	if fn != nil {
		fn(entry)
	}
	return nil
}

// Current returns the top of the stack.
func (s *Stack) Current() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[len(s.entries)-1], true
}

// History returns every navigation in order.
func (s *Stack) History() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// Back pops the top entry.
func (s *Stack) Back() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	last := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	return last, true
}
