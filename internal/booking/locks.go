package booking

import (
	"context"
	"sync"
)

// carLocks hands out one lock per car key.  A waiter gives up when its
// context ends, so a timed-out request never holds or queues on a lock.
// Entries are dropped once nobody holds or waits for them.
type carLocks struct {
	mu sync.Mutex
	m  map[string]*carLock
}

type carLock struct {
	ch   chan struct{}
	refs int
}

func newCarLocks() *carLocks {
	return &carLocks{m: make(map[string]*carLock)}
}

func (l *carLocks) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e := l.m[key]
	if e == nil {
		e = &carLock{ch: make(chan struct{}, 1)}
		l.m[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				l.put(key, e)
			})
		}, nil
	case <-ctx.Done():
		l.put(key, e)
		return nil, ctx.Err()
	}
}

func (l *carLocks) put(key string, e *carLock) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.m, key)
	}
	l.mu.Unlock()
}

func (l *carLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
