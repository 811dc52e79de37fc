package auth

import "sync"

// State tracks the current viewer and notifies subscribers when it changes.
// Components that render access-filtered data subscribe so a sign-in or
// sign-out re-filters anything already on screen, not just new requests.
type State struct {
	mu      sync.RWMutex
	current Viewer
	nextID  int
	subs    map[int]func(Viewer)
}

// NewState creates a State with the anonymous viewer.
func NewState() *State {
	return &State{subs: make(map[int]func(Viewer))}
}

// Current returns the viewer as of the last Set.
func (s *State) Current() Viewer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set updates the current viewer and notifies every subscriber.
func (s *State) Set(v Viewer) {
	s.mu.Lock()
	s.current = v
	subs := make([]func(Viewer), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(v)
	}
}

// SignOut resets the state to the anonymous viewer.
func (s *State) SignOut() {
	s.Set(Anonymous)
}

// Subscribe registers fn to run on every state change and returns a cancel
// function that removes the subscription.
func (s *State) Subscribe(fn func(Viewer)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
