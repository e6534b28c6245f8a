package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/linkscope/linkscope/pkg/types"
)

// Store is the thread-safe owner of the session's snapshot.
type Store struct {
	mu   sync.RWMutex
	snap types.NetworkSnapshot
	subs map[chan types.NetworkSnapshot]struct{}
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store holding types.NewSnapshot().
func New() *Store {
	return &Store{
		snap: types.NewSnapshot(),
		subs: make(map[chan types.NetworkSnapshot]struct{}),
		now:  time.Now,
	}
}

// Dispatch applies the events in order under one lock, so observers never
// see a state between them, then notifies subscribers once. It returns the
// resulting snapshot.
func (s *Store) Dispatch(events ...Event) types.NetworkSnapshot {
	s.mu.Lock()
	next := s.snap
	for _, ev := range events {
		if h, ok := ev.(AddHistoryEntry); ok && h.At.IsZero() {
			h.At = s.now()
			ev = h
		}
		next = Reduce(next, ev)
		slog.Debug("store: applied event", "event", ev.Kind())
	}
	s.snap = next
	for ch := range s.subs {
		publish(ch, next)
	}
	s.mu.Unlock()
	return clone(next)
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() types.NetworkSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.snap)
}

// Subscribe returns a channel that receives the snapshot after every
// Dispatch. Slow readers only ever see the latest value. The returned func
// unsubscribes and closes the channel; calling it more than once is safe.
func (s *Store) Subscribe() (<-chan types.NetworkSnapshot, func()) {
	ch := make(chan types.NetworkSnapshot, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			close(ch)
			s.mu.Unlock()
		})
	}
}

// publish replaces any unread value in ch with snap. Callers hold s.mu, which
// makes them the only sender.
func publish(ch chan types.NetworkSnapshot, snap types.NetworkSnapshot) {
	select {
	case <-ch:
	default:
	}
	ch <- clone(snap)
}
