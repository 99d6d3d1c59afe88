package stream

import "sync"

// Session gates fragment delivery for one conversation. Exactly one buffer
// is current at a time; fragments carrying a stale generation token are
// discarded, which covers streams abandoned by navigation or by starting a
// new turn while their producer goroutine is still draining.
type Session struct {
	mu  sync.Mutex
	cur *Buffer
	gen uint64
}

// Begin abandons any current buffer and installs a fresh one, returning it
// together with its generation token.
func (s *Session) Begin() (*Buffer, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.cur = New()
	return s.cur, s.gen
}

// Append applies fragment to the current buffer if gen is still current.
// The second return is false when the fragment was discarded as stale.
func (s *Session) Append(gen uint64, fragment string) (string, bool) {
	s.mu.Lock()
	buf := s.cur
	ok := buf != nil && gen == s.gen
	s.mu.Unlock()
	if !ok {
		staleFragments.Inc()
		return "", false
	}
	return buf.Append(fragment), true
}

// Finalize seals the current buffer if gen is still current.
func (s *Session) Finalize(gen uint64) (string, bool) {
	s.mu.Lock()
	buf := s.cur
	ok := buf != nil && gen == s.gen
	s.mu.Unlock()
	if !ok {
		return "", false
	}
	return buf.Finalize(), true
}

// Fail seals the current buffer with an error marker if gen is still
// current.
func (s *Session) Fail(gen uint64, err error) bool {
	s.mu.Lock()
	buf := s.cur
	ok := buf != nil && gen == s.gen
	s.mu.Unlock()
	if !ok {
		return false
	}
	buf.Fail(err)
	return true
}

// Abandon detaches the current buffer so any late fragments from its
// producer are discarded. The abandoned buffer, if unfinished, is sealed
// with ErrFinalized so readers holding it observe completion.
func (s *Session) Abandon() {
	s.mu.Lock()
	buf := s.cur
	s.cur = nil
	s.gen++
	s.mu.Unlock()
	if buf != nil && !buf.Done() {
		buf.Fail(ErrFinalized)
	}
}

// Current returns the buffer serving the in-flight response, nil when idle.
func (s *Session) Current() *Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}
