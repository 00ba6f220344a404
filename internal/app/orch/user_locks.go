package orch

import (
	"sync"

	"github.com/dkeye/owndc/internal/domain"
)

// userLocks serializes identity transitions per user: the registry
// mutation, the stored status write and the presence announcement of
// one authenticate or release never interleave with another for the
// same user.
type userLocks struct {
	mu sync.Mutex
	m  map[domain.UserID]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

// lock blocks until uid is free and returns its unlock func.
func (l *userLocks) lock(uid domain.UserID) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[domain.UserID]*userLock)
	}
	ul, ok := l.m[uid]
	if !ok {
		ul = &userLock{}
		l.m[uid] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.m, uid)
		}
		l.mu.Unlock()
	}
}
