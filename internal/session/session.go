package session

import "time"

// Key identifies the session of one user on one platform
func Key(platform, userID string) string {
	return platform + ":" + userID
}

// Scheduled returns the scheduling state and whether it has been loaded
func (s *Session) Scheduled() (ScheduledContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduled, s.loaded
}

// Load seeds the scheduling state, typically from the newest persisted message
func (s *Session) Load(ctx ScheduledContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = ctx
	s.loaded = true
}

// MarkScheduledSent records a delivered proactive message
func (s *Session) MarkScheduledSent(at, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = ScheduledContext{LastScheduledAt: at, LastWasScheduled: true, NextScheduledTime: next}
	s.loaded = true
}

// MarkActivity records a conversational message in either direction, which
// ends any wait for a reply to a scheduled message.
func (s *Session) MarkActivity(next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled.LastWasScheduled = false
	s.scheduled.NextScheduledTime = next
	s.loaded = true
}

// Lock blocks until the processing lock is held.
func (s *Session) Lock() {
	s.processing.Lock()
}

// TryAcquire attempts to acquire the processing lock.
// Returns true if acquired, false if already processing.
func (s *Session) TryAcquire() bool {
	return s.processing.TryLock()
}

// Release releases the processing lock.
func (s *Session) Release() {
	s.processing.Unlock()
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (s *Store) Get(sessionID string) *Session {
	s.mu.RLock()

	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok = s.sessions[sessionID]; ok {
		return sess
	}

	sess = &Session{}
	s.sessions[sessionID] = sess

	return sess
}

// Drop forgets a session; the next Get starts from scratch
func (s *Store) Drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
