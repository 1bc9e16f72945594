package storage

import "sync"

// studentLocks hands out one mutex per student ID so balance recomputes of
// the same student run one at a time while different students proceed.
type studentLocks struct {
	mu    sync.Mutex
	locks map[string]*studentLock
}

type studentLock struct {
	sync.Mutex
	refs int
}

func newStudentLocks() *studentLocks {
	return &studentLocks{locks: make(map[string]*studentLock)}
}

// Lock blocks until the student's lock is held and returns its release func.
func (l *studentLocks) Lock(studentID string) func() {
	l.mu.Lock()
	lk, ok := l.locks[studentID]
	if !ok {
		lk = &studentLock{}
		l.locks[studentID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.Lock()
	return func() {
		lk.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, studentID)
		}
		l.mu.Unlock()
	}
}

func (l *studentLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
