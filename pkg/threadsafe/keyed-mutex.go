package threadsafe

import (
	"context"
	"fmt"
	"sync"
)

type keyedLock struct {
	sem  chan struct{}
	refs int
}

// KeyedMutex serializes callers that use the same key. Entries are removed
// once nobody holds or waits for them.
type KeyedMutex struct {
	locks map[string]*keyedLock
	mux   *sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]*keyedLock),
		mux:   &sync.Mutex{},
	}
}

func (km *KeyedMutex) Lock(ctx context.Context, key string) (unlock func(), err error) {
	km.mux.Lock()
	lock, ok := km.locks[key]
	if !ok {
		lock = &keyedLock{sem: make(chan struct{}, 1)}
		km.locks[key] = lock
	}
	lock.refs++
	km.mux.Unlock()

	select {
	case lock.sem <- struct{}{}:
	case <-ctx.Done():
		km.release(key, lock)
		return nil, fmt.Errorf("waiting for lock %q canceled: %w", key, ctx.Err())
	}

	once := &sync.Once{}
	return func() {
		once.Do(func() {
			<-lock.sem
			km.release(key, lock)
		})
	}, nil
}

func (km *KeyedMutex) Len() int {
	km.mux.Lock()
	defer km.mux.Unlock()
	return len(km.locks)
}

func (km *KeyedMutex) release(key string, lock *keyedLock) {
	km.mux.Lock()
	defer km.mux.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(km.locks, key)
	}
}
