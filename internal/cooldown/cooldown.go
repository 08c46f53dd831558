// Package cooldown tracks when each (session, faucet) pair may claim next.
package cooldown

import (
	"sync"
	"time"
)

type key struct {
	session string
	faucet  string
}

// Scheduler holds next-eligible times in memory. A pair with no entry is
// eligible immediately. The zero value is not usable; call New.
type Scheduler struct {
	mu   sync.Mutex
	next map[key]time.Time
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{next: make(map[key]time.Time)}
}

// IsEligible reports whether the pair's next-eligible time is at or before now.
func (s *Scheduler) IsEligible(sessionID, faucetID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.next[key{sessionID, faucetID}]
	return !ok || !now.Before(t)
}

// MarkClaimed sets the pair's next-eligible time to now + cooldown.
func (s *Scheduler) MarkClaimed(sessionID, faucetID string, cooldown time.Duration, now time.Time) {
	s.mu.Lock()
	s.next[key{sessionID, faucetID}] = now.Add(cooldown)
	s.mu.Unlock()
}

// Defer pushes the pair's next-eligible time out to until. Earlier values
// are ignored.
func (s *Scheduler) Defer(sessionID, faucetID string, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{sessionID, faucetID}
	if cur, ok := s.next[k]; ok && !until.After(cur) {
		return
	}
	s.next[k] = until
}

// NextEligible returns the pair's next-eligible time, or the zero time when
// the pair has never claimed.
func (s *Scheduler) NextEligible(sessionID, faucetID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next[key{sessionID, faucetID}]
}

// Wait returns how long until the pair becomes eligible, zero if it already is.
func (s *Scheduler) Wait(sessionID, faucetID string, now time.Time) time.Duration {
	t := s.NextEligible(sessionID, faucetID)
	if t.IsZero() || !now.Before(t) {
		return 0
	}
	return t.Sub(now)
}

// Forget drops every entry for a session.
func (s *Scheduler) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.next {
		if k.session == sessionID {
			delete(s.next, k)
		}
	}
}

// Len returns the number of tracked pairs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.next)
}
