package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// serializer runs functions one at a time per board. Boards never contend
// with each other; idle entries are dropped.
type serializer struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*boardLock
}

type boardLock struct {
	mu   sync.Mutex
	refs int
}

func newSerializer() *serializer {
	return &serializer{locks: make(map[uuid.UUID]*boardLock)}
}

// Do runs fn while holding boardID's lock.
func (s *serializer) Do(boardID uuid.UUID, fn func() error) error {
	s.mu.Lock()
	l, ok := s.locks[boardID]
	if !ok {
		l = &boardLock{}
		s.locks[boardID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	defer func() {
		l.mu.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, boardID)
		}
		s.mu.Unlock()
	}()

	return fn()
}

func (s *serializer) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
