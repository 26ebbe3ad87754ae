package command

import "sync"

// SubjectLocks serializes all mutation of one subject behind a per-subject
// mutex. Every write handler acquires the subject's lock before loading the
// subject, so resolve-transition-save sequences never interleave for the
// same subject while different subjects proceed in parallel.
type SubjectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSubjectLocks creates an empty lock table.
func NewSubjectLocks() *SubjectLocks {
	return &SubjectLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for the subject and returns its unlock function.
//
//	defer locks.Lock(cmd.SubjectID)()
func (l *SubjectLocks) Lock(subjectID string) func() {
	l.mu.Lock()
	m, ok := l.locks[subjectID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[subjectID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
